package rimage

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestNDCToLinearDepthParams(t *testing.T) {
	x, y := NDCToLinearDepthParams(0.1, 10.0)
	test.That(t, x, test.ShouldAlmostEqual, -2.0*10.0*0.1/(10.0-0.1))
	test.That(t, y, test.ShouldAlmostEqual, -(10.0+0.1)/(10.0-0.1))

	// reversed-Z infinite far plane
	x, y = NDCToLinearDepthParams(0.1, math.Inf(1))
	test.That(t, x, test.ShouldAlmostEqual, -0.2)
	test.That(t, y, test.ShouldAlmostEqual, -1.0)
}

func TestToLinearDepthZeroDenominator(t *testing.T) {
	// x=1, y=0 makes the denominator vanish exactly at d=0.5
	test.That(t, ToLinearDepth(0.5, 1.0, 0.0), test.ShouldEqual, 0.0)
}

func TestToLinearDepthFinite(t *testing.T) {
	x, y := NDCToLinearDepthParams(0.1, 10.0)
	for d := 0.0; d <= 1.0; d += 1.0 / 512.0 {
		v := ToLinearDepth(d, x, y)
		test.That(t, math.IsNaN(v), test.ShouldBeFalse)
		test.That(t, math.IsInf(v, 0), test.ShouldBeFalse)
	}

	// recovered magnitudes hit the clip planes at the buffer extremes
	test.That(t, math.Abs(ToLinearDepth(0, x, y)), test.ShouldAlmostEqual, 10.0, 1e-9)
	test.That(t, math.Abs(ToLinearDepth(1, x, y)), test.ShouldAlmostEqual, 0.1, 1e-9)
}

func TestConvertDepthToLinear(t *testing.T) {
	dm := NewEmptyDepthMap(3, 1)
	dm.Set(0, 0, 0.0)
	dm.Set(1, 0, 0.5)
	dm.Set(2, 0, 1.0)
	before := dm.Clone()

	out := ConvertDepthToLinear(dm, 0.1, 10.0)
	test.That(t, out.Width(), test.ShouldEqual, 3)
	test.That(t, out.Height(), test.ShouldEqual, 1)

	x, y := NDCToLinearDepthParams(0.1, 10.0)
	for i := 0; i < 3; i++ {
		got := float64(out.GetDepth(i, 0))
		test.That(t, math.IsNaN(got), test.ShouldBeFalse)
		test.That(t, math.IsInf(got, 0), test.ShouldBeFalse)
		test.That(t, got, test.ShouldAlmostEqual, ToLinearDepth(float64(before.GetDepth(i, 0)), x, y), 1e-5)
	}

	// the source buffer is untouched
	for i := 0; i < 3; i++ {
		test.That(t, dm.GetDepth(i, 0), test.ShouldEqual, before.GetDepth(i, 0))
	}
}

func TestDepthMapAbs(t *testing.T) {
	dm := NewEmptyDepthMap(2, 1)
	dm.Set(0, 0, -3.5)
	dm.Set(1, 0, 2.0)

	abs := dm.Abs()
	test.That(t, abs.GetDepth(0, 0), test.ShouldEqual, float32(3.5))
	test.That(t, abs.GetDepth(1, 0), test.ShouldEqual, float32(2.0))
	test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, float32(-3.5))
}
