package spectral

import (
	"math"
)

// MelScale provides mel frequency conversion utilities (HTK formula)
type MelScale struct{}

// NewMelScale creates a new mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterBank is a set of triangular filters over the bins of a one-sided
// spectrum. Filter edges are placed on exact frequencies rather than rounded
// to FFT bins, so narrow low-frequency filters never collapse to zero.
type MelFilterBank struct {
	filters    [][]float64
	fftSize    int
	sampleRate int
}

// NewMelFilterBank creates numFilters triangular filters spaced evenly on the
// mel scale between lowFreq and highFreq
func NewMelFilterBank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) *MelFilterBank {
	ms := NewMelScale()
	bins := fftSize/2 + 1

	fb := &MelFilterBank{
		filters:    make([][]float64, max(numFilters, 0)),
		fftSize:    fftSize,
		sampleRate: sampleRate,
	}
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return fb
	}

	// Equally spaced mel points converted back to Hz
	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)
	hzPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range hzPoints {
		hzPoints[i] = ms.MelToHz(lowMel + float64(i)*melStep)
	}

	binHz := float64(sampleRate) / float64(fftSize)
	for m := range numFilters {
		left, center, right := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		filter := make([]float64, bins)
		for k := range bins {
			f := float64(k) * binHz
			rising := (f - left) / (center - left)
			falling := (right - f) / (right - center)
			filter[k] = math.Max(0, math.Min(rising, falling))
		}
		fb.filters[m] = filter
	}

	return fb
}

// NumFilters returns the number of mel bands
func (fb *MelFilterBank) NumFilters() int {
	return len(fb.filters)
}

// Apply maps a one-sided power spectrum to mel band energies
func (fb *MelFilterBank) Apply(powerSpectrum []float64) []float64 {
	melSpectrum := make([]float64, len(fb.filters))

	for i, filter := range fb.filters {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}

// ApplyFrames maps every frame of a power spectrogram to mel bands
func (fb *MelFilterBank) ApplyFrames(powerSpectrogram [][]float64) [][]float64 {
	melSpectrogram := make([][]float64, len(powerSpectrogram))
	for t, frame := range powerSpectrogram {
		melSpectrogram[t] = fb.Apply(frame)
	}
	return melSpectrogram
}
