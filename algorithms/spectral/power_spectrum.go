package spectral

import (
	"math"
)

// PowerSpectrum converts magnitude spectrograms to power and decibels
type PowerSpectrum struct {
	amin  float64 // power floor before taking the log
	topDB float64 // dynamic range kept below the loudest entry, 0 disables
}

// NewPowerSpectrum creates a power spectrum calculator with a 1e-10 floor and
// an 80 dB dynamic range
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{
		amin:  1e-10,
		topDB: 80.0,
	}
}

// FromSTFT squares the magnitudes of an STFT result
func (ps *PowerSpectrum) FromSTFT(stftResult *STFTResult) [][]float64 {
	power := make([][]float64, stftResult.TimeFrames)

	for t := range stftResult.TimeFrames {
		power[t] = make([]float64, stftResult.FreqBins)
		for f := range stftResult.FreqBins {
			mag := stftResult.Magnitude[t][f]
			power[t][f] = mag * mag
		}
	}

	return power
}

// ToDB converts a power spectrogram to decibels (reference power 1) in place.
// Entries more than topDB below the loudest entry are raised to that level.
func (ps *PowerSpectrum) ToDB(power [][]float64) [][]float64 {
	peak := math.Inf(-1)
	for _, frame := range power {
		for i, p := range frame {
			frame[i] = 10 * math.Log10(math.Max(ps.amin, p))
			peak = math.Max(peak, frame[i])
		}
	}

	if ps.topDB > 0 {
		floor := peak - ps.topDB
		for _, frame := range power {
			for i := range frame {
				frame[i] = math.Max(frame[i], floor)
			}
		}
	}

	return power
}
