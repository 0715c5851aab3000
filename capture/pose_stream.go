package capture

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/perseusxr/reconprep/spatialmath"
)

// DefaultWindowMS is the default matching window between a frame timestamp and
// a pose timestamp, sized to the pose sensor's expected max frame-to-frame jitter.
const DefaultWindowMS = int64(30)

// PoseStream is an immutable, time-ordered sequence of pose samples. Ordering
// is established at construction so lookups can binary search without
// defending against unsorted input on every call.
type PoseStream struct {
	poses []TimestampedPose
}

// NewPoseStream copies the given samples into a new stream. The samples must
// already be sorted non-decreasing by timestamp; an unsorted stream is a
// programming error in the logging layer and is rejected rather than silently
// mis-matched.
func NewPoseStream(poses []TimestampedPose) (*PoseStream, error) {
	for i := 1; i < len(poses); i++ {
		if poses[i].TimeMS < poses[i-1].TimeMS {
			return nil, errors.Errorf("pose stream not sorted: sample %d (%dms) precedes sample %d (%dms)",
				i, poses[i].TimeMS, i-1, poses[i-1].TimeMS)
		}
	}
	out := &PoseStream{poses: make([]TimestampedPose, len(poses))}
	copy(out.poses, poses)
	return out, nil
}

// Len returns the number of pose samples in the stream.
func (ps *PoseStream) Len() int {
	return len(ps.poses)
}

// At returns the pose sample at the given index.
func (ps *PoseStream) At(i int) TimestampedPose {
	return ps.poses[i]
}

// Shift returns a new stream with every timestamp moved by offsetMS. The
// receiver is left untouched; clock reconciliation always produces a fresh
// corrected stream.
func (ps *PoseStream) Shift(offsetMS int64) *PoseStream {
	out := &PoseStream{poses: make([]TimestampedPose, len(ps.poses))}
	copy(out.poses, ps.poses)
	for i := range out.poses {
		out.poses[i].TimeMS += offsetMS
	}
	return out
}

// FindNearestFrames returns the pose samples bracketing targetMS: the greatest
// timestamp at or before the target and the least timestamp at or after it,
// each only if it lies within windowMS of the target and nil otherwise. A pose
// whose timestamp equals the target satisfies both sides. A target that falls
// off the end of the recorded pose span but within the window of the first or
// last sample clamps to that sample on both sides; a side whose nearest
// interior candidate exceeds the window stays nil. The returned samples are
// copies; they never alias stream storage.
func (ps *PoseStream) FindNearestFrames(targetMS, windowMS int64) (prev, next *TimestampedPose) {
	n := len(ps.poses)
	i := sort.Search(n, func(i int) bool { return ps.poses[i].TimeMS >= targetMS })

	if i < n && ps.poses[i].TimeMS-targetMS <= windowMS {
		p := ps.poses[i]
		next = &p
	}

	prevIdx := i - 1
	if i < n && ps.poses[i].TimeMS == targetMS {
		prevIdx = i
	}
	if prevIdx >= 0 && targetMS-ps.poses[prevIdx].TimeMS <= windowMS {
		p := ps.poses[prevIdx]
		prev = &p
	}

	// clamp at the stream extent: the lone in-window neighbor brackets degenerately
	if prev == nil && next != nil && i == 0 {
		prev = next
	}
	if next == nil && prev != nil && prevIdx == n-1 {
		next = prev
	}
	return prev, next
}

// InterpolatePose returns the pose at targetMS interpolated between the two
// bracketing samples, or nil if either bracket is missing within the window.
// A nil result is an expected per-frame outcome whenever the sensor clocks are
// not co-registered; callers treat it as a drop signal, not a failure. The
// stream performs no clock correction of its own; removing a constant offset
// between pose and frame clocks is an explicit upstream step (see
// EstimateClockOffset and Shift).
func (ps *PoseStream) InterpolatePose(targetMS, windowMS int64) *spatialmath.Pose {
	prev, next := ps.FindNearestFrames(targetMS, windowMS)
	if prev == nil || next == nil {
		return nil
	}
	if next.TimeMS == prev.TimeMS {
		return prev.Pose()
	}
	by := float64(targetMS-prev.TimeMS) / float64(next.TimeMS-prev.TimeMS)
	return spatialmath.Interpolate(prev.Pose(), next.Pose(), by)
}

// nearestOffsetMS returns the signed time from targetMS to the closest pose
// sample, unbounded by any window. Used for diagnostics and offset estimation.
func (ps *PoseStream) nearestOffsetMS(targetMS int64) (int64, bool) {
	n := len(ps.poses)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return ps.poses[i].TimeMS >= targetMS })
	best := int64(0)
	found := false
	if i < n {
		best = ps.poses[i].TimeMS - targetMS
		found = true
	}
	if i > 0 {
		d := ps.poses[i-1].TimeMS - targetMS
		if !found || -d < best {
			best = d
		}
		found = true
	}
	return best, found
}
