package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the chroma, tonal and temporal packages

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// FrequencyToMIDI converts frequency to a fractional MIDI note number
// relative to the given A4 tuning: 69 + 12 * log2(f/tuning)
func FrequencyToMIDI(frequency, tuning float64) float64 {
	if frequency <= 0 || tuning <= 0 {
		return 0
	}
	return 69.0 + 12.0*math.Log2(frequency/tuning)
}

// PitchClass folds a MIDI note number into 0..11 (0 = C)
func PitchClass(note int) int {
	pc := note % 12
	if pc < 0 {
		pc += 12
	}
	return pc
}

// HalfWaveRectify keeps the positive part of x
func HalfWaveRectify(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// LocalMaxima returns the indices i where data[i] is strictly greater than
// its left neighbour and not smaller than its right neighbour. Edges count
// as maxima when they beat their single neighbour.
func LocalMaxima(data []float64) []int {
	n := len(data)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []int{0}
	}

	var peaks []int
	for i := range n {
		left := i == 0 || data[i] > data[i-1]
		right := i == n-1 || data[i] >= data[i+1]
		if left && right {
			peaks = append(peaks, i)
		}
	}
	return peaks
}
