package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestIntrinsicsFromFOVTangentsSymmetric(t *testing.T) {
	// symmetric tangents of 1.0 give a 90 degree half-angle FOV with the
	// principal point dead center
	intrinsics := IntrinsicsFromFOVTangents(1, 1, 1, 1, 256, 256)
	test.That(t, intrinsics.Fx, test.ShouldEqual, 128.0)
	test.That(t, intrinsics.Fy, test.ShouldEqual, 128.0)
	test.That(t, intrinsics.Ppx, test.ShouldEqual, 128.0)
	test.That(t, intrinsics.Ppy, test.ShouldEqual, 128.0)
	test.That(t, intrinsics.Width, test.ShouldEqual, 256)
	test.That(t, intrinsics.Height, test.ShouldEqual, 256)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
}

func TestIntrinsicsFromFOVTangentsAsymmetric(t *testing.T) {
	intrinsics := IntrinsicsFromFOVTangents(0.5, 1.5, 0.8, 1.2, 200, 100)
	test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 100.0)
	test.That(t, intrinsics.Ppx, test.ShouldAlmostEqual, 50.0)
	test.That(t, intrinsics.Fy, test.ShouldAlmostEqual, 50.0)
	test.That(t, intrinsics.Ppy, test.ShouldAlmostEqual, 40.0)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
}

func TestCheckValid(t *testing.T) {
	var nilParams *PinholeCameraIntrinsics
	test.That(t, nilParams.CheckValid(), test.ShouldNotBeNil)

	bad := &PinholeCameraIntrinsics{Width: 100, Height: 100, Fx: -1, Fy: 50, Ppx: 50, Ppy: 50}
	err := bad.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Fx")

	zeroSize := &PinholeCameraIntrinsics{Fx: 50, Fy: 50}
	test.That(t, zeroSize.CheckValid(), test.ShouldNotBeNil)
}

func TestPixelToPointRoundtrip(t *testing.T) {
	intrinsics := IntrinsicsFromFOVTangents(1, 1, 1, 1, 256, 256)

	x, y, z := intrinsics.PixelToPoint(200, 70, 2.5)
	px, py := intrinsics.PointToPixel(x, y, z)
	test.That(t, px, test.ShouldEqual, 200.0)
	test.That(t, py, test.ShouldEqual, 70.0)

	// zero depth maps off the image so downstream cropping discards it
	px, py = intrinsics.PointToPixel(1, 1, 0)
	test.That(t, px, test.ShouldEqual, -1.0)
	test.That(t, py, test.ShouldEqual, -1.0)
}

func TestGetCameraMatrix(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 10, Height: 10, Fx: 50, Fy: 55, Ppx: 320, Ppy: 160}
	m := intrinsics.GetCameraMatrix()
	test.That(t, m.At(0, 0), test.ShouldEqual, 50.0)
	test.That(t, m.At(1, 1), test.ShouldEqual, 55.0)
	test.That(t, m.At(0, 2), test.ShouldEqual, 320.0)
	test.That(t, m.At(1, 2), test.ShouldEqual, 160.0)
	test.That(t, m.At(2, 2), test.ShouldEqual, 1.0)
	test.That(t, m.At(0, 1), test.ShouldEqual, 0.0)

	var nilParams *PinholeCameraIntrinsics
	test.That(t, nilParams.GetCameraMatrix(), test.ShouldBeNil)
}
