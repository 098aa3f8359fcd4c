package filters

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

// Default anti-aliasing design for halving the sample rate. A cutoff at 90% of
// the decimated Nyquist keeps the top octave of the next constant-Q level
// clean while leaving room for the Blackman transition band.
const (
	DefaultDecimatorTaps   = 129
	DefaultDecimatorCutoff = 0.225 // cycles/sample at the input rate
)

// HalfbandDecimator low-pass filters a signal with a linear-phase windowed-sinc
// FIR and keeps every second sample.
//
// The filter is applied zero-phase: output sample m is aligned with input
// sample 2m, so frame positions computed on the original grid stay valid after
// dividing by two.
//
// References:
//   - Oppenheim, A.V., Schafer, R.W. "Discrete-Time Signal Processing",
//     Section 7.5 (window method) and Section 4.6 (downsampling)
type HalfbandDecimator struct {
	taps   []float64
	center int
}

// NewHalfbandDecimator designs a decimator with the given (odd) number of taps
// and cutoff in cycles per input sample (0 < cutoff < 0.25).
func NewHalfbandDecimator(numTaps int, cutoff float64) (*HalfbandDecimator, error) {
	if numTaps < 3 || numTaps%2 == 0 {
		return nil, fmt.Errorf("decimator needs an odd tap count >= 3, got %d", numTaps)
	}
	if cutoff <= 0 || cutoff >= 0.25 {
		return nil, fmt.Errorf("decimator cutoff %.4f outside (0, 0.25)", cutoff)
	}

	win := window.Blackman(numTaps)
	center := (numTaps - 1) / 2
	taps := make([]float64, numTaps)

	sum := 0.0
	for i := range numTaps {
		n := float64(i - center)
		var sinc float64
		if n == 0 {
			sinc = 2 * cutoff
		} else {
			sinc = math.Sin(2*math.Pi*cutoff*n) / (math.Pi * n)
		}
		taps[i] = sinc * win[i]
		sum += taps[i]
	}

	// unity DC gain so every octave level has comparable magnitude
	for i := range taps {
		taps[i] /= sum
	}

	return &HalfbandDecimator{taps: taps, center: center}, nil
}

// NewDefaultHalfbandDecimator returns the decimator used by the constant-Q
// chroma transform.
func NewDefaultHalfbandDecimator() *HalfbandDecimator {
	d, err := NewHalfbandDecimator(DefaultDecimatorTaps, DefaultDecimatorCutoff)
	if err != nil {
		panic(err)
	}
	return d
}

// Decimate returns ceil(len(signal)/2) samples of the filtered signal.
// Samples outside the input are treated as zero.
func (d *HalfbandDecimator) Decimate(signal []float64) []float64 {
	n := len(signal)
	out := make([]float64, (n+1)/2)

	for m := range out {
		pos := 2*m - d.center
		acc := 0.0
		for k, h := range d.taps {
			idx := pos + k
			if idx < 0 {
				continue
			}
			if idx >= n {
				break
			}
			acc += h * signal[idx]
		}
		out[m] = acc
	}

	return out
}

// Taps returns a copy of the filter coefficients
func (d *HalfbandDecimator) Taps() []float64 {
	taps := make([]float64, len(d.taps))
	copy(taps, d.taps)
	return taps
}
