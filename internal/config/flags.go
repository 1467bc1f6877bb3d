package config

import "flag"

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagNumEnvs  = flag.Int("num_envs", 0, "Number of environments to simulate")
	flagHeadless = flag.Bool("headless", false, "Do not open a window")
	flagDevice   = flag.String("device", "", "Device for camera buffers (cpu, cuda:0, ...)")
	flagOutput   = flag.String("output", "", "Path of the saved visualization")
	flagServe    = flag.String("serve", "", "Stream frames over websocket on this address, e.g. :8080")
	flagWidth    = flag.Int("width", 0, "Camera width per environment")
	flagHeight   = flag.Int("height", 0, "Camera height per environment")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagNumEnvs > 0 {
		cfg.Sim.NumEnvs = *flagNumEnvs
	}
	if *flagHeadless {
		cfg.Display.Headless = true
	}
	if *flagDevice != "" {
		cfg.Sim.Device = *flagDevice
	}
	if *flagOutput != "" {
		cfg.Output.Path = *flagOutput
	}
	if *flagServe != "" {
		cfg.Stream.Addr = *flagServe
	}
	if *flagWidth > 0 {
		cfg.Camera.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Camera.Height = *flagHeight
	}
}
