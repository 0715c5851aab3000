package capture

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// EstimateClockOffset estimates the constant offset between the frame clock
// and the pose clock as the difference between the median pose timestamp and
// the median frame timestamp. Both streams cover the same recording session,
// so their midpoints coincide once the clocks agree; the median keeps ragged
// stream edges from skewing the estimate. Adding the returned offset to every
// frame timestamp co-registers the two streams; equivalently, the pose stream
// can be shifted by its negation:
//
//	offset, err := capture.EstimateClockOffset(poses, frameTimes)
//	...
//	corrected := poses.Shift(-offset)
//
// This is the explicit, opt-in reconciliation step that must run before
// interpolation when the capture app and the pose logger started their clocks
// at different times. The interpolator itself never infers or corrects drift.
func EstimateClockOffset(ps *PoseStream, frameTimesMS []int64) (int64, error) {
	if ps.Len() == 0 {
		return 0, errors.New("cannot estimate clock offset from an empty pose stream")
	}
	if len(frameTimesMS) == 0 {
		return 0, errors.New("cannot estimate clock offset without frame timestamps")
	}

	poseTimes := make([]float64, ps.Len())
	for i := 0; i < ps.Len(); i++ {
		poseTimes[i] = float64(ps.At(i).TimeMS)
	}
	frameTimes := make([]float64, len(frameTimesMS))
	for i, ts := range frameTimesMS {
		frameTimes[i] = float64(ts)
	}

	poseMed, err := stats.Median(poseTimes)
	if err != nil {
		return 0, errors.Wrap(err, "error computing pose clock midpoint")
	}
	frameMed, err := stats.Median(frameTimes)
	if err != nil {
		return 0, errors.Wrap(err, "error computing frame clock midpoint")
	}
	return int64(math.Round(poseMed - frameMed)), nil
}
