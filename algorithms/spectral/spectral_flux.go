package spectral

import (
	"github.com/RyanBlaney/sonido-chords/algorithms/common"
)

// SpectralFlux computes spectral flux (measure of spectral change)
type SpectralFlux struct {
	lag int // frames between compared spectra
}

// NewSpectralFlux creates a flux calculator comparing adjacent frames
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{lag: 1}
}

// Compute returns, for every frame, the mean half-wave rectified increase of
// each band relative to lag frames earlier. The first lag frames are zero, so
// the output has the same length as the spectrogram.
func (sf *SpectralFlux) Compute(spectrogram [][]float64) []float64 {
	flux := make([]float64, len(spectrogram))

	for t := sf.lag; t < len(spectrogram); t++ {
		current, previous := spectrogram[t], spectrogram[t-sf.lag]
		if len(current) == 0 {
			continue
		}

		sum := 0.0
		for f := 0; f < len(current) && f < len(previous); f++ {
			sum += common.HalfWaveRectify(current[f] - previous[f])
		}
		flux[t] = sum / float64(len(current))
	}

	return flux
}
