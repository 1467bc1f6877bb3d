package synthetic

import "github.com/chewxy/math32"

type vec3 struct {
	X, Y, Z float32
}

func (v vec3) add(o vec3) vec3      { return vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v vec3) sub(o vec3) vec3      { return vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v vec3) scale(s float32) vec3 { return vec3{v.X * s, v.Y * s, v.Z * s} }
func (v vec3) dot(o vec3) float32   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v vec3) normalize() vec3 {
	l := math32.Sqrt(v.dot(v))
	if l == 0 {
		return vec3{}
	}
	return v.scale(1 / l)
}

// ray is a half-line from Origin along unit Dir.
type ray struct {
	Origin vec3
	Dir    vec3
}

func (r ray) at(t float32) vec3 {
	return r.Origin.add(r.Dir.scale(t))
}
