package stats

import "slices"

// Median returns the median of data, averaging the two middle values for
// even lengths. Returns 0 for empty input. data is not modified.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return MedianInPlace(slices.Clone(data))
}

// MedianInPlace is Median without the copy; buf is reordered.
func MedianInPlace(buf []float64) float64 {
	n := len(buf)
	if n == 0 {
		return 0
	}

	slices.Sort(buf)
	mid := n / 2
	if n%2 == 0 {
		return (buf[mid-1] + buf[mid]) / 2.0
	}
	return buf[mid]
}
