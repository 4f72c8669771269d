package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the unit quaternion.
var Identity = quat.Number{Real: 1}

// QuatFromEuler builds the attitude for ZYX Euler angles in radians.
func QuatFromEuler(roll, pitch, yaw float64) quat.Number {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// EulerFromQuat is the inverse of QuatFromEuler. Pitch is clamped to ±pi/2.
func EulerFromQuat(q quat.Number) (roll, pitch, yaw float64) {
	q = NormalizeQuat(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	pitch = math.Asin(Clamp(2*(w*y-z*x), -1, 1))
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// NormalizeQuat returns q scaled to unit length, or Identity if q is zero or
// not finite.
func NormalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < 1e-12 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// QuatFinite reports whether every component of q is finite.
func QuatFinite(q quat.Number) bool {
	return finite(q.Real) && finite(q.Imag) && finite(q.Jmag) && finite(q.Kmag)
}

// QuatRate returns dq/dt = 0.5 q ⊗ (0, omega) for body angular velocity omega.
func QuatRate(q quat.Number, omega r3.Vec) quat.Number {
	return quat.Scale(0.5, quat.Mul(q, quat.Number{Imag: omega.X, Jmag: omega.Y, Kmag: omega.Z}))
}

// RotationFromQuat returns the body-to-world rotation matrix of q.
func RotationFromQuat(q quat.Number) *mat.Dense {
	q = NormalizeQuat(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// FromColumns assembles a matrix whose columns are x, y and z.
func FromColumns(x, y, z r3.Vec) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	})
}

func Column(m mat.Matrix, j int) r3.Vec {
	return r3.Vec{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

// MulVec returns m·v for a 3x3 matrix m.
func MulVec(m mat.Matrix, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Vee maps a skew-symmetric matrix to its axial vector, reading the
// (2,1), (0,2) and (1,0) entries. The other three are ignored, so m must
// already be skew.
func Vee(m mat.Matrix) r3.Vec {
	return r3.Vec{X: m.At(2, 1), Y: m.At(0, 2), Z: m.At(1, 0)}
}

// FrameFromZYaw builds the rotation whose z-axis is z and whose x-axis is
// the yaw heading projected into the plane normal to z. When the heading
// is parallel to z any horizontal axis is used instead.
func FrameFromZYaw(z r3.Vec, yaw float64) *mat.Dense {
	heading := r3.Vec{X: math.Cos(yaw), Y: math.Sin(yaw)}
	y := r3.Cross(z, heading)
	if r3.Norm(y) < 1e-6 {
		y = r3.Cross(z, r3.Vec{X: 1})
		if r3.Norm(y) < 1e-6 {
			y = r3.Cross(z, r3.Vec{Y: 1})
		}
	}
	y = r3.Unit(y)
	x := r3.Cross(y, z)
	return FromColumns(x, y, z)
}
