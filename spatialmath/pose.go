// Package spatialmath defines spatial mathematical operations for 6-DoF poses.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// If the dot product of two unit quaternions is closer to 1 than this, slerp
// degenerates numerically and we fall back to lerp-and-renormalize.
const slerpEpsilon = 1e-8

// Pose represents a 6-DoF position and orientation in 3D space. The orientation
// is a unit quaternion. A Pose is a value; operations on poses always return
// fresh Pose objects and never modify their operands.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewPose creates a pose from a point and an orientation quaternion. The
// quaternion is normalized so downstream math can assume a unit rotation.
func NewPose(pt r3.Vector, o quat.Number) *Pose {
	return &Pose{Point: pt, Orientation: Normalize(o)}
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() *Pose {
	return &Pose{Orientation: quat.Number{Real: 1}}
}

// Interpolate returns a new pose that is between the given poses, the
// proportion determined by by (0 yields p1, 1 yields p2). Translation is
// linearly interpolated and orientation is spherically interpolated.
func Interpolate(p1, p2 *Pose, by float64) *Pose {
	return &Pose{
		Point:       p1.Point.Mul(1 - by).Add(p2.Point.Mul(by)),
		Orientation: slerp(p1.Orientation, p2.Orientation, by),
	}
}

// PoseAlmostEqual returns whether two poses are within epsilon of each other
// in both translation and orientation.
func PoseAlmostEqual(p1, p2 *Pose, epsilon float64) bool {
	return p1.Point.Sub(p2.Point).Norm() < epsilon &&
		QuaternionAlmostEqual(p1.Orientation, p2.Orientation, epsilon)
}

// QuaternionAlmostEqual returns whether two quaternions represent nearly the
// same orientation. q and -q are the same rotation, so both octants are checked.
func QuaternionAlmostEqual(q1, q2 quat.Number, epsilon float64) bool {
	return quatDist(q1, q2) < epsilon || quatDist(q1, Flip(q2)) < epsilon
}

func quatDist(q1, q2 quat.Number) float64 {
	d := quat.Sub(q1, q2)
	return math.Sqrt(d.Real*d.Real + d.Imag*d.Imag + d.Jmag*d.Jmag + d.Kmag*d.Kmag)
}

// Norm returns the norm of the quaternion, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// Normalize scales a quaternion to unit length. The zero quaternion has no
// direction; it normalizes to the identity rotation.
func Normalize(q quat.Number) quat.Number {
	length := quat.Abs(q)
	if length == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/length, q)
}

// slerp spherically interpolates between two unit quaternions. The shorter of
// the two great-circle arcs is always taken.
func slerp(q1, q2 quat.Number, by float64) quat.Number {
	dot := q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
	if dot < 0 {
		q2 = Flip(q2)
		dot = -dot
	}
	if dot > 1-slerpEpsilon {
		return Normalize(quat.Add(q1, quat.Scale(by, quat.Sub(q2, q1))))
	}
	theta0 := math.Acos(dot)
	sinTheta0 := math.Sin(theta0)
	theta := theta0 * by
	s1 := math.Cos(theta) - dot*math.Sin(theta)/sinTheta0
	s2 := math.Sin(theta) / sinTheta0
	return quat.Add(quat.Scale(s1, q1), quat.Scale(s2, q2))
}
