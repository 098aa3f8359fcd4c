package temporal

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Tempo search defaults
const (
	DefaultStartBPM = 120.0 // center of the tempo prior
	DefaultStdBPM   = 1.0   // prior width in octaves
	DefaultMinBPM   = 30.0
	DefaultMaxBPM   = 300.0
)

// TempoEstimation estimates a global tempo from an onset strength envelope.
//
// The autocorrelation of the envelope is weighted by a log-normal prior
// centered on startBPM, so among the tempo octaves that explain the envelope
// equally well (60, 120, 240 BPM for a steady pulse) the one nearest the prior
// wins. The winning lag is refined with parabolic interpolation.
//
// References:
//   - Ellis, D.P.W. (2007). "Beat Tracking by Dynamic Programming"
//     Journal of New Music Research, 36(1), 51-60
type TempoEstimation struct {
	startBPM float64
	stdBPM   float64
	minBPM   float64
	maxBPM   float64
}

// NewTempoEstimation creates a tempo estimator with a 120 BPM prior
func NewTempoEstimation() *TempoEstimation {
	return NewTempoEstimationWithPrior(DefaultStartBPM, DefaultStdBPM)
}

// NewTempoEstimationWithPrior creates a tempo estimator with a custom prior
// center (BPM) and width (octaves)
func NewTempoEstimationWithPrior(startBPM, stdBPM float64) *TempoEstimation {
	return &TempoEstimation{
		startBPM: startBPM,
		stdBPM:   stdBPM,
		minBPM:   DefaultMinBPM,
		maxBPM:   DefaultMaxBPM,
	}
}

// EstimateFromEnvelope returns the tempo in BPM, or 0 when the envelope has
// no periodic energy
func (te *TempoEstimation) EstimateFromEnvelope(envelope []float64, sampleRate, hopSize int) float64 {
	if len(envelope) < 4 || sampleRate <= 0 || hopSize <= 0 {
		return 0.0
	}
	if floats.Max(envelope) <= 0 {
		return 0.0
	}

	frameRate := float64(sampleRate) / float64(hopSize)
	minLag := max(1, int(math.Floor(60.0*frameRate/te.maxBPM)))
	maxLag := min(len(envelope)-1, int(math.Ceil(60.0*frameRate/te.minBPM)))
	if maxLag <= minLag {
		return 0.0
	}

	autocorr := te.calculateAutocorrelation(envelope, maxLag+1)

	// weighted[lag] for lag in [minLag-1, maxLag+1] so every candidate has
	// neighbours for interpolation
	weighted := make([]float64, maxLag+2)
	for lag := max(1, minLag-1); lag <= maxLag+1 && lag < len(autocorr); lag++ {
		bpm := 60.0 * frameRate / float64(lag)
		weighted[lag] = autocorr[lag] * te.prior(bpm)
	}

	bestLag := -1
	bestScore := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if weighted[lag] > bestScore {
			bestScore = weighted[lag]
			bestLag = lag
		}
	}
	if bestLag < 0 {
		return 0.0
	}

	lag := float64(bestLag) + parabolicOffset(weighted[bestLag-1], weighted[bestLag], weighted[bestLag+1])
	return 60.0 * frameRate / lag
}

// prior is the unnormalized log-normal tempo weight
func (te *TempoEstimation) prior(bpm float64) float64 {
	octaves := math.Log2(bpm/te.startBPM) / te.stdBPM
	return math.Exp(-0.5 * octaves * octaves)
}

// calculateAutocorrelation calculates the (unnormalized) autocorrelation
// function for lags 0..maxLag
func (te *TempoEstimation) calculateAutocorrelation(signal []float64, maxLag int) []float64 {
	maxLag = min(maxLag, len(signal)-1)
	autocorr := make([]float64, maxLag+1)

	for lag := 0; lag <= maxLag; lag++ {
		autocorr[lag] = floats.Dot(signal[:len(signal)-lag], signal[lag:])
	}

	return autocorr
}

// parabolicOffset returns the vertex offset (-0.5..0.5) of the parabola
// through three equally spaced points
func parabolicOffset(left, center, right float64) float64 {
	denom := left - 2*center + right
	if denom >= 0 {
		return 0
	}
	offset := 0.5 * (left - right) / denom
	return math.Max(-0.5, math.Min(0.5, offset))
}
