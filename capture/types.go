// Package capture aligns asynchronous head-mounted sensor streams (camera
// frames, depth buffers, pose logs) into calibrated, temporally consistent
// samples ready for a reconstruction exporter.
package capture

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/perseusxr/reconprep/rimage"
	"github.com/perseusxr/reconprep/rimage/transform"
	"github.com/perseusxr/reconprep/spatialmath"
)

// TimestampedPose is one sample of the device pose log. Immutable once recorded.
type TimestampedPose struct {
	TimeMS      int64
	Position    r3.Vector
	Orientation quat.Number
}

// Pose returns the sample as a fresh spatialmath.Pose.
func (tp TimestampedPose) Pose() *spatialmath.Pose {
	return spatialmath.NewPose(tp.Position, tp.Orientation)
}

// FOVTangents are the tangents of a frame's four half-angles off the forward axis.
type FOVTangents struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// FrameDescriptor describes one captured camera/depth frame: when it was
// taken, its field of view, its clip planes and its dimensions. FarZ may be
// +Inf for a reversed-Z infinite far plane.
type FrameDescriptor struct {
	TimeMS int64       `json:"timestamp_ms"`
	FOV    FOVTangents `json:"fov"`
	NearZ  float64     `json:"near_z"`
	FarZ   float64     `json:"far_z"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

// CheckValid checks the descriptor for the degenerate geometry that the
// intrinsics and depth math assume away.
func (fd *FrameDescriptor) CheckValid() error {
	if fd.Width <= 0 || fd.Height <= 0 {
		return errors.Errorf("invalid frame dimensions (%d, %d)", fd.Width, fd.Height)
	}
	if fd.FOV.Left+fd.FOV.Right <= 0 {
		return errors.Errorf("degenerate horizontal FOV tangents (%v, %v)", fd.FOV.Left, fd.FOV.Right)
	}
	if fd.FOV.Top+fd.FOV.Bottom <= 0 {
		return errors.Errorf("degenerate vertical FOV tangents (%v, %v)", fd.FOV.Top, fd.FOV.Bottom)
	}
	if fd.NearZ <= 0 {
		return errors.Errorf("near plane must be positive, got %v", fd.NearZ)
	}
	if fd.FarZ <= fd.NearZ {
		return errors.Errorf("far plane %v must exceed near plane %v", fd.FarZ, fd.NearZ)
	}
	return nil
}

// RawFrame pairs a frame descriptor with its decoded image and NDC depth
// buffer. Image and Depth may each be nil if the corresponding sensor did not
// produce data for this frame.
type RawFrame struct {
	Desc  FrameDescriptor
	Image image.Image
	Depth *rimage.DepthMap
}

// DropReason enumerates why a frame was excluded from the synchronized output.
type DropReason int

// The reasons a frame can be dropped. A drop is a final, cheap, expected
// outcome, never a fault.
const (
	DropNone DropReason = iota
	DropNoPoseWithinWindow
	DropInvalidDescriptor
)

func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropNoPoseWithinWindow:
		return "no_pose_within_window"
	case DropInvalidDescriptor:
		return "invalid_descriptor"
	default:
		return "unknown"
	}
}

// SynchronizedSample is one calibrated frame-pose-depth triple. Every field is
// a fresh value owned solely by the sample; nothing aliases back into the
// source buffers and nothing is modified after assembly.
type SynchronizedSample struct {
	FrameTimeMS int64
	Pose        *spatialmath.Pose
	Intrinsics  *transform.PinholeCameraIntrinsics
	Depth       *rimage.DepthMap
	Image       *image.NRGBA
}

// FrameResult is the terminal state of one frame: either a matched sample or
// a drop with its reason, always attributable to the frame timestamp.
type FrameResult struct {
	FrameTimeMS int64
	Sample      *SynchronizedSample
	Drop        DropReason
}

// Matched reports whether the frame produced a synchronized sample.
func (fr FrameResult) Matched() bool {
	return fr.Drop == DropNone && fr.Sample != nil
}
