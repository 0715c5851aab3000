package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// a 45 degree rotation around the x axis in quaternion representation
var q45x = quat.Number{Real: math.Cos(math.Pi / 8.), Imag: math.Sin(math.Pi / 8.)}

func TestSlerp(t *testing.T) {
	q1 := q45x
	q2 := quat.Conj(q45x)
	s1 := slerp(q1, q2, 0.25)
	s2 := slerp(q1, q2, 0.5)

	expect1 := quat.Number{Real: 0.9808, Imag: 0.1951}
	expect2 := quat.Number{Real: 1}

	test.That(t, s1.Real, test.ShouldAlmostEqual, expect1.Real, 0.001)
	test.That(t, s1.Imag, test.ShouldAlmostEqual, expect1.Imag, 0.001)
	test.That(t, s1.Jmag, test.ShouldAlmostEqual, expect1.Jmag, 0.001)
	test.That(t, s1.Kmag, test.ShouldAlmostEqual, expect1.Kmag, 0.001)
	test.That(t, s2.Real, test.ShouldAlmostEqual, expect2.Real)
	test.That(t, s2.Imag, test.ShouldAlmostEqual, expect2.Imag)
	test.That(t, s2.Jmag, test.ShouldAlmostEqual, expect2.Jmag)
	test.That(t, s2.Kmag, test.ShouldAlmostEqual, expect2.Kmag)
}

func TestSlerpShortestPath(t *testing.T) {
	// q and -q are the same rotation, so interpolating towards a flipped
	// quaternion must not take the long way around.
	s := slerp(q45x, Flip(q45x), 0.5)
	test.That(t, QuaternionAlmostEqual(s, q45x, 1e-6), test.ShouldBeTrue)
}

func TestInterpolate(t *testing.T) {
	p1 := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, quat.Number{Real: 1})
	p2 := NewPose(r3.Vector{X: 3, Y: 6, Z: 9}, q45x)

	mid := Interpolate(p1, p2, 0.5)
	test.That(t, mid.Point.X, test.ShouldAlmostEqual, 2)
	test.That(t, mid.Point.Y, test.ShouldAlmostEqual, 4)
	test.That(t, mid.Point.Z, test.ShouldAlmostEqual, 6)
	// halfway between identity and 45 degrees about x is 22.5 degrees about x
	test.That(t, mid.Orientation.Real, test.ShouldAlmostEqual, math.Cos(math.Pi/16.), 1e-6)
	test.That(t, mid.Orientation.Imag, test.ShouldAlmostEqual, math.Sin(math.Pi/16.), 1e-6)

	start := Interpolate(p1, p2, 0)
	end := Interpolate(p1, p2, 1)
	test.That(t, PoseAlmostEqual(start, p1, 1e-9), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(end, p2, 1e-9), test.ShouldBeTrue)
}

func TestInterpolateDoesNotMutate(t *testing.T) {
	p1 := NewPose(r3.Vector{X: 1}, quat.Number{Real: 1})
	p2 := NewPose(r3.Vector{X: -1}, q45x)
	before1, before2 := *p1, *p2

	Interpolate(p1, p2, 0.75)
	Interpolate(p1, p2, 0.75)

	test.That(t, *p1, test.ShouldResemble, before1)
	test.That(t, *p2, test.ShouldResemble, before2)
}

func TestNormalize(t *testing.T) {
	n := Normalize(quat.Number{Real: 0, Imag: 10})
	test.That(t, n, test.ShouldResemble, quat.Number{Imag: 1})
	test.That(t, Normalize(quat.Number{}), test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, Norm(n), test.ShouldAlmostEqual, 1)
}
