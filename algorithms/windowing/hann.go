package windowing

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

// Hann represents a Hann window function
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window. Symmetric windows (denominator size-1)
// come straight from go-dsp; periodic windows (denominator size) are the
// variant used for overlapped STFT frames.
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	if h.size <= 0 {
		h.coefficients = []float64{}
		return
	}

	if h.symmetric {
		h.coefficients = window.Hann(h.size)
		return
	}

	h.coefficients = make([]float64, h.size)
	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/float64(h.size)))
	}
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range h.size {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// Coefficients returns a copy of the window coefficients
func (h *Hann) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Sum returns the sum of the coefficients, used to normalize kernel gain
func (h *Hann) Sum() float64 {
	total := 0.0
	for _, c := range h.coefficients {
		total += c
	}
	return total
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}
