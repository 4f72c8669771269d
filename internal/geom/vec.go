package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Up is the world z-axis; gravity acts along -Up.
var Up = r3.Vec{Z: 1}

func Finite(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Hadamard multiplies a and b component-wise. Per-axis gains use it.
func Hadamard(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// ClampAbs limits every component of v to [-limit, limit].
func ClampAbs(v r3.Vec, limit float64) r3.Vec {
	return r3.Vec{
		X: Clamp(v.X, -limit, limit),
		Y: Clamp(v.Y, -limit, limit),
		Z: Clamp(v.Z, -limit, limit),
	}
}

// ClampNorm rescales v so that its length does not exceed max.
func ClampNorm(v r3.Vec, max float64) r3.Vec {
	n := r3.Norm(v)
	if n <= max || n == 0 {
		return v
	}
	return r3.Scale(max/n, v)
}

// UnitOr normalises v, returning fallback when |v| < eps.
func UnitOr(v r3.Vec, eps float64, fallback r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < eps || !finite(n) {
		return fallback
	}
	return r3.Scale(1/n, v)
}

// SoftClamp saturates x into [lo, hi]. Inside [lo+band, hi-band] it is the
// identity; within band of a bound it bends onto the bound with a tanh knee
// that is C1 at the junction and never reaches the bound itself.
func SoftClamp(x, lo, hi, band float64) float64 {
	if band <= 0 || 2*band >= hi-lo {
		return Clamp(x, lo, hi)
	}
	switch {
	case x > hi-band:
		x = hi - band + band*math.Tanh((x-(hi-band))/band)
	case x < lo+band:
		x = lo + band - band*math.Tanh((lo+band-x)/band)
	}
	return Clamp(x, lo, hi)
}

// TiltAngle is the angle between unit vector z and world vertical.
func TiltAngle(z r3.Vec) float64 {
	return math.Acos(Clamp(z.Z, -1, 1))
}

// LimitTilt returns the unit vector z with its angle from vertical limited
// to maxTilt. The horizontal direction is preserved; a vector pointing
// straight down has no horizontal direction and maps to Up.
func LimitTilt(z r3.Vec, maxTilt float64) r3.Vec {
	z = UnitOr(z, 1e-9, Up)
	if TiltAngle(z) <= maxTilt {
		return z
	}
	h := math.Hypot(z.X, z.Y)
	if h < 1e-9 {
		return Up
	}
	s := math.Sin(maxTilt) / h
	return r3.Vec{X: z.X * s, Y: z.Y * s, Z: math.Cos(maxTilt)}
}

// MaxAbs returns the largest absolute component of v.
func MaxAbs(v r3.Vec) float64 {
	return math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z)))
}

// SetAxis returns v with component i replaced by x.
func SetAxis(v r3.Vec, i int, x float64) r3.Vec {
	switch i {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
	return v
}
