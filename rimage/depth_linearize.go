package rimage

import (
	"math"
)

// NDCToLinearDepthParams returns the two projection constants (x, y) needed to
// invert a perspective projection and recover linear depth from NDC samples.
// A far plane of +Inf selects the reversed-Z infinite projection.
func NDCToLinearDepthParams(near, far float64) (float64, float64) {
	if math.IsInf(far, 1) {
		return -2 * near, -1
	}
	x := -2 * far * near / (far - near)
	y := -(far + near) / (far - near)
	return x, y
}

// ToLinearDepth converts a single NDC depth sample to linear eye-space depth
// using projection constants from NDCToLinearDepthParams. The sign of the
// result follows the source projection's eye-space convention; magnitudes are
// metric. Singular samples (a zero denominator, which occurs routinely at
// buffer edges) yield 0 rather than a non-finite value, because depth buffers
// feed directly into fusion and must stay finite.
func ToLinearDepth(ndc, x, y float64) float64 {
	denom := ndc*2 - 1 - y
	if denom == 0 {
		return 0
	}
	linear := x / denom
	if math.IsNaN(linear) || math.IsInf(linear, 0) {
		return 0
	}
	return linear
}

// ConvertDepthToLinear converts a whole NDC depth buffer to linear depth,
// returning a fresh buffer of the same shape. The source buffer is never
// modified. Every output value is finite for finite input in [0, 1].
func ConvertDepthToLinear(dm *DepthMap, near, far float64) *DepthMap {
	x, y := NDCToLinearDepthParams(near, far)
	out := NewEmptyDepthMap(dm.width, dm.height)
	for i, v := range dm.data {
		linear := float32(ToLinearDepth(float64(v), x, y))
		if math.IsInf(float64(linear), 0) {
			// finite in float64 but overflowed float32
			linear = 0
		}
		out.data[i] = linear
	}
	return out
}

// Abs returns a fresh depth map holding the magnitude of every sample, for
// consumers that want unsigned metric range rather than signed eye-space depth.
func (dm *DepthMap) Abs() *DepthMap {
	out := NewEmptyDepthMap(dm.width, dm.height)
	for i, v := range dm.data {
		out.data[i] = float32(math.Abs(float64(v)))
	}
	return out
}
