package utils

// ClampF64 returns min if x is less than min, max if x is greater than max, and x otherwise.
func ClampF64(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// AbsInt64 returns the absolute value of an int64.
func AbsInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
