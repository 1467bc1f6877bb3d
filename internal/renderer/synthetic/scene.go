package synthetic

import (
	"fmt"

	"github.com/chewxy/math32"
)

const (
	maxDistance = 50
	epsilon     = 1e-4
	ambient     = 0.25
)

var (
	lightDir  = vec3{0.5, 1, 0.3}.normalize()
	skyBottom = [3]float32{0.55, 0.70, 0.90}
	skyTop    = [3]float32{0.90, 0.95, 1.00}
)

type shapeKind int

const (
	shapePlane shapeKind = iota
	shapeSphere
	shapeBox
)

// object is one primitive of an environment's scene.
type object struct {
	name    string
	kind    shapeKind
	center  vec3
	radius  float32 // sphere
	half    vec3    // box half extents
	albedo  [3]float32
	checker bool
}

// hit records the nearest intersection along a ray. obj is -1 for a miss.
type hit struct {
	t      float32
	normal vec3
	obj    int
}

// pinhole is a perspective camera looking from eye towards target.
type pinhole struct {
	eye        vec3
	forward    vec3
	right      vec3
	up         vec3
	tanHalfFOV float32
	aspect     float32
	width      int
	height     int
}

func newPinhole(eye, target vec3, fovDegrees float32, width, height int) pinhole {
	forward := target.sub(eye).normalize()
	right := forward.cross(vec3{0, 1, 0}).normalize()
	return pinhole{
		eye:        eye,
		forward:    forward,
		right:      right,
		up:         right.cross(forward),
		tanHalfFOV: math32.Tan(fovDegrees * math32.Pi / 360),
		aspect:     float32(width) / float32(height),
		width:      width,
		height:     height,
	}
}

// rayAt returns the primary ray through the centre of pixel (row, col).
func (c pinhole) rayAt(row, col int) ray {
	u := ((float32(col)+0.5)/float32(c.width)*2 - 1) * c.aspect * c.tanHalfFOV
	v := (1 - (float32(row)+0.5)/float32(c.height)*2) * c.tanHalfFOV
	dir := c.forward.add(c.right.scale(u)).add(c.up.scale(v)).normalize()
	return ray{Origin: c.eye, Dir: dir}
}

// sceneFor builds the scene of env at frame. The sphere bounces over time and
// its colour depends on the environment, so tiles are distinguishable.
func sceneFor(env int, frame uint64, hueOffset float32) []object {
	phase := float32(frame)*0.15 + float32(env)
	return []object{
		{
			name:    "Ground",
			kind:    shapePlane,
			albedo:  [3]float32{0.55, 0.55, 0.55},
			checker: true,
		},
		{
			name:   "Sphere",
			kind:   shapeSphere,
			center: vec3{-0.6 + 0.15*math32.Sin(phase*0.5), 0.5 + 0.25*math32.Abs(math32.Sin(phase)), 0},
			radius: 0.5,
			albedo: hsv(math32.Mod(float32(env)*0.618+hueOffset, 1), 0.7, 0.9),
		},
		{
			name:   "Cube",
			kind:   shapeBox,
			center: vec3{0.8, 0.4, -0.3},
			half:   vec3{0.4, 0.4, 0.4},
			albedo: [3]float32{0.9, 0.5, 0.15},
		},
	}
}

// primPath is the scene-graph path of an object in env.
func primPath(env int, obj object) string {
	return fmt.Sprintf("/World/envs/env_%d/%s", env, obj.name)
}

func intersect(r ray, objects []object) hit {
	best := hit{t: maxDistance, obj: -1}
	for i, o := range objects {
		var t float32
		var n vec3
		var ok bool
		switch o.kind {
		case shapePlane:
			t, n, ok = intersectPlane(r)
		case shapeSphere:
			t, n, ok = intersectSphere(r, o.center, o.radius)
		case shapeBox:
			t, n, ok = intersectBox(r, o.center, o.half)
		}
		if ok && t > epsilon && t < best.t {
			best = hit{t: t, normal: n, obj: i}
		}
	}
	return best
}

// intersectPlane hits the ground plane y = 0 from above.
func intersectPlane(r ray) (float32, vec3, bool) {
	if r.Dir.Y > -epsilon {
		return 0, vec3{}, false
	}
	return -r.Origin.Y / r.Dir.Y, vec3{0, 1, 0}, true
}

func intersectSphere(r ray, center vec3, radius float32) (float32, vec3, bool) {
	oc := r.Origin.sub(center)
	b := oc.dot(r.Dir)
	c := oc.dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, vec3{}, false
	}
	sq := math32.Sqrt(disc)
	t := -b - sq
	if t <= epsilon {
		t = -b + sq
	}
	if t <= epsilon {
		return 0, vec3{}, false
	}
	return t, r.at(t).sub(center).scale(1 / radius), true
}

// intersectBox is the slab test against an axis-aligned box.
func intersectBox(r ray, center, half vec3) (float32, vec3, bool) {
	lo := center.sub(half)
	hi := center.add(half)
	tNear, tFar := float32(-maxDistance), float32(maxDistance)
	var normal vec3

	axes := [3]struct {
		o, d, lo, hi float32
		n            vec3
	}{
		{r.Origin.X, r.Dir.X, lo.X, hi.X, vec3{1, 0, 0}},
		{r.Origin.Y, r.Dir.Y, lo.Y, hi.Y, vec3{0, 1, 0}},
		{r.Origin.Z, r.Dir.Z, lo.Z, hi.Z, vec3{0, 0, 1}},
	}
	for _, a := range axes {
		if math32.Abs(a.d) < epsilon {
			if a.o < a.lo || a.o > a.hi {
				return 0, vec3{}, false
			}
			continue
		}
		t1 := (a.lo - a.o) / a.d
		t2 := (a.hi - a.o) / a.d
		n := a.n.scale(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			n = a.n
		}
		if t1 > tNear {
			tNear = t1
			normal = n
		}
		tFar = math32.Min(tFar, t2)
		if tNear > tFar {
			return 0, vec3{}, false
		}
	}
	if tNear <= epsilon {
		return 0, vec3{}, false
	}
	return tNear, normal, true
}

// albedoAt returns the diffuse colour of obj at point p.
func albedoAt(obj object, p vec3) [3]float32 {
	if !obj.checker {
		return obj.albedo
	}
	if (int(math32.Floor(p.X*2))+int(math32.Floor(p.Z*2)))&1 == 0 {
		return obj.albedo
	}
	return [3]float32{obj.albedo[0] * 0.6, obj.albedo[1] * 0.6, obj.albedo[2] * 0.6}
}

// shade applies lambert lighting with a hard shadow from the directional light.
func shade(albedo [3]float32, p, n vec3, objects []object) [3]float32 {
	diffuse := math32.Max(0, n.dot(lightDir))
	if diffuse > 0 {
		shadow := ray{Origin: p.add(n.scale(1e-3)), Dir: lightDir}
		if intersect(shadow, objects).obj >= 0 {
			diffuse = 0
		}
	}
	k := ambient + (1-ambient)*diffuse
	return [3]float32{albedo[0] * k, albedo[1] * k, albedo[2] * k}
}

func sky(dir vec3) [3]float32 {
	t := math32.Max(0, math32.Min(1, dir.Y*0.5+0.5))
	return [3]float32{
		skyBottom[0] + (skyTop[0]-skyBottom[0])*t,
		skyBottom[1] + (skyTop[1]-skyBottom[1])*t,
		skyBottom[2] + (skyTop[2]-skyBottom[2])*t,
	}
}

// hsv converts a hue/saturation/value triple in [0,1] to linear RGB.
func hsv(h, s, v float32) [3]float32 {
	i := int(h * 6)
	f := h*6 - float32(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	switch i % 6 {
	case 0:
		return [3]float32{v, t, p}
	case 1:
		return [3]float32{q, v, p}
	case 2:
		return [3]float32{p, v, t}
	case 3:
		return [3]float32{p, q, v}
	case 4:
		return [3]float32{t, p, v}
	default:
		return [3]float32{v, p, q}
	}
}
