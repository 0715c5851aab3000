package capture

import (
	"context"
	"image"
	"sync"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/perseusxr/reconprep/rimage"
	"github.com/perseusxr/reconprep/rimage/transform"
	"github.com/perseusxr/reconprep/utils"
)

// SyncConfig is the already-validated numeric configuration surface of the
// synchronizer. The core never reads configuration files; orchestration fills
// this in.
type SyncConfig struct {
	// WindowMS is the pose matching window; 0 means DefaultWindowMS.
	WindowMS int64
	// ToneMapMethod selects the image enhancement strategy; empty disables
	// tone mapping and passes images through untouched.
	ToneMapMethod rimage.ToneMapMethod
	// CLAHEClipLimit is the CLAHE contrast limit; 0 means the rimage default.
	CLAHEClipLimit float64
	// Gamma is the gamma correction exponent; 0 means 1 (identity).
	Gamma float64
	// NearZ and FarZ override a frame's clip planes when the descriptor
	// leaves them unset (zero).
	NearZ float64
	FarZ  float64
}

func (c *SyncConfig) windowMS() int64 {
	if c.WindowMS <= 0 {
		return DefaultWindowMS
	}
	return c.WindowMS
}

// FrameSynchronizer matches every raw frame against the session's pose stream
// and assembles calibrated, synchronized samples. Frames are independent of
// one another; the synchronizer shares only the immutable pose stream and
// configuration across them.
type FrameSynchronizer struct {
	poses  *PoseStream
	conf   SyncConfig
	logger golog.Logger
}

// NewFrameSynchronizer returns a synchronizer over the given pose stream. The
// tone mapping method is validated here so a misconfigured run fails before
// any frame work starts, not per frame.
func NewFrameSynchronizer(poses *PoseStream, conf SyncConfig, logger golog.Logger) (*FrameSynchronizer, error) {
	if poses == nil {
		return nil, errors.New("pose stream cannot be nil")
	}
	if conf.ToneMapMethod != "" {
		if err := rimage.ValidateToneMapMethod(conf.ToneMapMethod); err != nil {
			return nil, err
		}
	}
	return &FrameSynchronizer{poses: poses, conf: conf, logger: logger}, nil
}

// Sync processes every frame in parallel and returns one terminal result per
// frame, indexed by input position so aggregation is deterministic regardless
// of completion order. Drops are recorded, not returned as errors; the
// returned error only reflects hard per-frame failures such as mismatched
// buffer dimensions, combined across frames.
func (fs *FrameSynchronizer) Sync(ctx context.Context, frames []RawFrame) ([]FrameResult, error) {
	results := make([]FrameResult, len(frames))

	var errMu sync.Mutex
	var batchErr error
	storeErr := func(err error) {
		errMu.Lock()
		batchErr = multierr.Combine(batchErr, err)
		errMu.Unlock()
	}

	if err := utils.GroupWorkParallel(
		ctx,
		len(frames),
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				res, err := fs.processFrame(&frames[workNum])
				if err != nil {
					storeErr(errors.Wrapf(err, "frame %dms", frames[workNum].Desc.TimeMS))
				}
				results[workNum] = res
			}, nil
		},
	); err != nil {
		return nil, err
	}
	return results, batchErr
}

// processFrame runs one frame through its PENDING -> MATCHED | DROPPED state
// transition. All derived values are freshly allocated; the raw frame is
// read-only.
func (fs *FrameSynchronizer) processFrame(frame *RawFrame) (FrameResult, error) {
	desc := frame.Desc
	if desc.NearZ == 0 {
		desc.NearZ = fs.conf.NearZ
	}
	if desc.FarZ == 0 {
		desc.FarZ = fs.conf.FarZ
	}

	res := FrameResult{FrameTimeMS: desc.TimeMS}

	if err := desc.CheckValid(); err != nil {
		fs.logger.Debugw("dropping frame with invalid descriptor", "timestamp_ms", desc.TimeMS, "error", err)
		res.Drop = DropInvalidDescriptor
		return res, nil
	}

	pose := fs.poses.InterpolatePose(desc.TimeMS, fs.conf.windowMS())
	if pose == nil {
		fs.logger.Debugw("dropping frame with no pose within window",
			"timestamp_ms", desc.TimeMS, "window_ms", fs.conf.windowMS())
		res.Drop = DropNoPoseWithinWindow
		return res, nil
	}

	intrinsics := transform.IntrinsicsFromFOVTangents(
		desc.FOV.Left, desc.FOV.Right, desc.FOV.Top, desc.FOV.Bottom, desc.Width, desc.Height)
	if err := intrinsics.CheckValid(); err != nil {
		return res, err
	}

	var depth *rimage.DepthMap
	if frame.Depth != nil {
		if frame.Depth.Width() != desc.Width || frame.Depth.Height() != desc.Height {
			return res, errors.Errorf("depth buffer dimensions (%d, %d) do not match descriptor (%d, %d)",
				frame.Depth.Width(), frame.Depth.Height(), desc.Width, desc.Height)
		}
		depth = rimage.ConvertDepthToLinear(frame.Depth, desc.NearZ, desc.FarZ)
	}

	var enhanced *image.NRGBA
	if frame.Image != nil {
		var err error
		enhanced, err = fs.toneMap(frame.Image)
		if err != nil {
			return res, err
		}
	}

	res.Sample = &SynchronizedSample{
		FrameTimeMS: desc.TimeMS,
		Pose:        pose,
		Intrinsics:  intrinsics,
		Depth:       depth,
		Image:       enhanced,
	}
	return res, nil
}

func (fs *FrameSynchronizer) toneMap(img image.Image) (*image.NRGBA, error) {
	if fs.conf.ToneMapMethod == "" {
		return rimage.CloneToNRGBA(img), nil
	}
	return rimage.ApplyToneMapping(img, fs.conf.ToneMapMethod, rimage.ToneMapOptions{
		CLAHEClipLimit: fs.conf.CLAHEClipLimit,
		Gamma:          fs.conf.Gamma,
	})
}

// SyncStats aggregates the outcome of a batch for diagnostics. Offsets are the
// absolute time gaps between each matched frame and its nearest pose sample.
type SyncStats struct {
	Total             int
	Matched           int
	MatchRate         float64
	Drops             map[DropReason]int
	MeanAbsOffsetMS   float64
	MedianAbsOffsetMS float64
}

// Stats summarizes a batch of results. Results are index-addressed, so the
// summary is deterministic for a given input regardless of the completion
// order inside Sync.
func (fs *FrameSynchronizer) Stats(results []FrameResult) SyncStats {
	st := SyncStats{Total: len(results), Drops: map[DropReason]int{}}

	var offsets []float64
	for _, res := range results {
		if !res.Matched() {
			st.Drops[res.Drop]++
			continue
		}
		st.Matched++
		if gap, ok := fs.poses.nearestOffsetMS(res.FrameTimeMS); ok {
			offsets = append(offsets, float64(utils.AbsInt64(gap)))
		}
	}
	if st.Total > 0 {
		st.MatchRate = float64(st.Matched) / float64(st.Total)
	}
	if len(offsets) > 0 {
		if m, err := stats.Mean(offsets); err == nil {
			st.MeanAbsOffsetMS = m
		}
		if m, err := stats.Median(offsets); err == nil {
			st.MedianAbsOffsetMS = m
		}
	}
	return st
}
