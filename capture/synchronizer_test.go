package capture

import (
	"context"
	stderrors "errors"
	"image"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/perseusxr/reconprep/rimage"
)

func testFrameDescriptor(tsMS int64) FrameDescriptor {
	return FrameDescriptor{
		TimeMS: tsMS,
		FOV:    FOVTangents{Left: 1, Right: 1, Top: 1, Bottom: 1},
		NearZ:  0.1,
		FarZ:   10.0,
		Width:  4,
		Height: 4,
	}
}

func testRawFrame(tsMS int64) RawFrame {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	dm := rimage.NewEmptyDepthMap(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			i := img.PixOffset(x, y)
			v := uint8(40 + 10*(x+y))
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
			dm.Set(x, y, float32(x+y)/8.0)
		}
	}
	return RawFrame{Desc: testFrameDescriptor(tsMS), Image: img, Depth: dm}
}

func TestSynchronizerMatchAndDrop(t *testing.T) {
	logger := golog.NewTestLogger(t)
	base := int64(1740000000000)
	ps := mustPoseStream(t, makePoses(base, 10.0, 50.0))

	fs, err := NewFrameSynchronizer(ps, SyncConfig{ToneMapMethod: rimage.ToneMapGamma, Gamma: 2.0}, logger)
	test.That(t, err, test.ShouldBeNil)

	badFOV := testRawFrame(base + 50)
	badFOV.Desc.FOV = FOVTangents{}

	frames := []RawFrame{
		testRawFrame(base + 10),
		testRawFrame(base + 100_000), // far outside the pose span
		badFOV,
	}
	results, err := fs.Sync(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results, test.ShouldHaveLength, 3)

	test.That(t, results[0].Matched(), test.ShouldBeTrue)
	test.That(t, results[0].FrameTimeMS, test.ShouldEqual, base+10)
	sample := results[0].Sample
	test.That(t, sample.Pose, test.ShouldNotBeNil)
	test.That(t, sample.Intrinsics.Fx, test.ShouldAlmostEqual, 2.0)
	test.That(t, sample.Intrinsics.Ppx, test.ShouldAlmostEqual, 2.0)
	test.That(t, sample.Image.Bounds().Dx(), test.ShouldEqual, 4)
	test.That(t, sample.Depth.Width(), test.ShouldEqual, 4)
	// the depth buffer came out linearized, not raw NDC
	x, y := rimage.NDCToLinearDepthParams(0.1, 10.0)
	test.That(t, float64(sample.Depth.GetDepth(2, 2)), test.ShouldAlmostEqual, rimage.ToLinearDepth(0.5, x, y), 1e-5)

	test.That(t, results[1].Matched(), test.ShouldBeFalse)
	test.That(t, results[1].Drop, test.ShouldEqual, DropNoPoseWithinWindow)
	test.That(t, results[1].Sample, test.ShouldBeNil)

	test.That(t, results[2].Matched(), test.ShouldBeFalse)
	test.That(t, results[2].Drop, test.ShouldEqual, DropInvalidDescriptor)

	st := fs.Stats(results)
	test.That(t, st.Total, test.ShouldEqual, 3)
	test.That(t, st.Matched, test.ShouldEqual, 1)
	test.That(t, st.MatchRate, test.ShouldAlmostEqual, 1.0/3.0)
	test.That(t, st.Drops[DropNoPoseWithinWindow], test.ShouldEqual, 1)
	test.That(t, st.Drops[DropInvalidDescriptor], test.ShouldEqual, 1)
	test.That(t, st.MedianAbsOffsetMS, test.ShouldBeLessThanOrEqualTo, float64(DefaultWindowMS))
}

func TestSynchronizerRejectsUnknownToneMapMethod(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ps := mustPoseStream(t, makePoses(0, 1.0, 50.0))

	_, err := NewFrameSynchronizer(ps, SyncConfig{ToneMapMethod: "nonexistent"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	var unsupported *rimage.UnsupportedMethodError
	test.That(t, stderrors.As(err, &unsupported), test.ShouldBeTrue)
	test.That(t, unsupported.Method, test.ShouldEqual, "nonexistent")
}

func TestSynchronizerDoesNotMutateInputs(t *testing.T) {
	logger := golog.NewTestLogger(t)
	base := int64(5000)
	ps := mustPoseStream(t, makePoses(base, 1.0, 50.0))

	fs, err := NewFrameSynchronizer(ps, SyncConfig{ToneMapMethod: rimage.ToneMapCLAHE}, logger)
	test.That(t, err, test.ShouldBeNil)

	frame := testRawFrame(base + 10)
	depthBefore := frame.Depth.Clone()
	imgBefore := append([]uint8(nil), frame.Image.(*image.NRGBA).Pix...)

	results, err := fs.Sync(context.Background(), []RawFrame{frame})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results[0].Matched(), test.ShouldBeTrue)

	for yy := 0; yy < 4; yy++ {
		for xx := 0; xx < 4; xx++ {
			test.That(t, frame.Depth.GetDepth(xx, yy), test.ShouldEqual, depthBefore.GetDepth(xx, yy))
		}
	}
	test.That(t, frame.Image.(*image.NRGBA).Pix, test.ShouldResemble, imgBefore)
}

func TestSynchronizerDepthDimensionMismatch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	base := int64(5000)
	ps := mustPoseStream(t, makePoses(base, 1.0, 50.0))

	fs, err := NewFrameSynchronizer(ps, SyncConfig{}, logger)
	test.That(t, err, test.ShouldBeNil)

	frame := testRawFrame(base + 10)
	frame.Depth = rimage.NewEmptyDepthMap(2, 2)

	results, err := fs.Sync(context.Background(), []RawFrame{frame})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not match")
	test.That(t, results[0].Matched(), test.ShouldBeFalse)
}

func TestSynchronizerStatsDeterministic(t *testing.T) {
	logger := golog.NewTestLogger(t)
	base := int64(1740000000000)
	ps := mustPoseStream(t, makePoses(base, 10.0, 50.0))

	fs, err := NewFrameSynchronizer(ps, SyncConfig{}, logger)
	test.That(t, err, test.ShouldBeNil)

	frames := make([]RawFrame, 0, 30)
	for _, ts := range makeFrameTimes(base, 10.0, 3.0) {
		frames = append(frames, testRawFrame(ts))
	}

	first, err := fs.Sync(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	second, err := fs.Sync(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, fs.Stats(first), test.ShouldResemble, fs.Stats(second))
	test.That(t, fs.Stats(first).MatchRate, test.ShouldBeGreaterThan, 0.9)
}
