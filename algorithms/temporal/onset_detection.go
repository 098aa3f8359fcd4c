package temporal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-chords/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
)

// Onset strength defaults, matching the chroma frame grid at hop 512
const (
	DefaultOnsetWindowSize = 2048
	DefaultOnsetHopSize    = 512
	DefaultOnsetMelBands   = 128
)

// OnsetDetection computes an onset strength envelope: the spectral flux of a
// log-power mel spectrogram.
//
// Each frame's value is the mean, over mel bands, of the positive change in
// dB from the previous frame. Frames are centered like the chromagram, and the
// envelope is shifted by half a window so a peak sits on the frame whose
// center is closest to the onset, not the first frame whose window reaches it.
//
// References:
//   - Böck, S., Widmer, G. (2013). "Maximum filter vibrato suppression for
//     onset detection" DAFx-13
//   - Ellis, D.P.W. (2007). "Beat Tracking by Dynamic Programming"
//     Journal of New Music Research, 36(1), 51-60
type OnsetDetection struct {
	windowSize int
	hopSize    int
	melBands   int

	stft  *spectral.STFT
	power *spectral.PowerSpectrum
	flux  *spectral.SpectralFlux
}

// NewOnsetDetection creates an onset detector with the default 2048/512 STFT
func NewOnsetDetection() *OnsetDetection {
	return NewOnsetDetectionWithParams(DefaultOnsetWindowSize, DefaultOnsetHopSize, DefaultOnsetMelBands)
}

// NewOnsetDetectionWithParams creates an onset detector with explicit STFT
// and mel settings
func NewOnsetDetectionWithParams(windowSize, hopSize, melBands int) *OnsetDetection {
	return &OnsetDetection{
		windowSize: windowSize,
		hopSize:    hopSize,
		melBands:   melBands,
		stft:       spectral.NewSTFT(),
		power:      spectral.NewPowerSpectrum(),
		flux:       spectral.NewSpectralFlux(),
	}
}

// HopSize returns the envelope hop in samples
func (od *OnsetDetection) HopSize() int {
	return od.hopSize
}

// OnsetStrength returns one onset strength value per frame, 1 + len/hop
// values in total
func (od *OnsetDetection) OnsetStrength(signal []float64, sampleRate int) ([]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	hann := windowing.NewHann(od.windowSize, false)
	result, err := od.stft.ComputeWithWindow(signal, od.windowSize, od.hopSize, sampleRate, hann, true)
	if err != nil {
		return nil, fmt.Errorf("onset stft: %w", err)
	}

	melBank := spectral.NewMelFilterBank(od.melBands, od.windowSize, sampleRate, 0, float64(sampleRate)/2)
	mel := melBank.ApplyFrames(od.power.FromSTFT(result))
	flux := od.flux.Compute(od.power.ToDB(mel))

	// align peaks with frame centers
	shift := od.windowSize / (2 * od.hopSize)
	envelope := make([]float64, len(flux))
	for t := shift; t < len(flux); t++ {
		envelope[t] = flux[t-shift]
	}

	return envelope, nil
}
