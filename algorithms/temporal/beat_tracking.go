package temporal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-chords/algorithms/common"
	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
	"github.com/RyanBlaney/sonido-chords/logging"
)

// DefaultTightness penalizes deviation from the tempo period
const DefaultTightness = 100.0

// BeatResult holds the tempo and beat positions of a track
type BeatResult struct {
	Tempo   float64 `json:"tempo"`    // BPM, 0 when no beat was found
	Frames  []int   `json:"frames"`   // beat frame indices, ascending
	HopSize int     `json:"hop_size"` // samples per frame
}

// BeatTracker finds beats with dynamic programming over the onset envelope.
//
// Every frame gets a cumulative score: its own onset strength plus the best
// score of a predecessor between half and twice the tempo period earlier,
// penalized by the squared log-ratio of the actual gap to the period. The
// last strong cumulative peak is then backtracked to recover the beat chain,
// and weak beats at either end (fade-in, fade-out, silence) are trimmed.
//
// References:
//   - Ellis, D.P.W. (2007). "Beat Tracking by Dynamic Programming"
//     Journal of New Music Research, 36(1), 51-60
type BeatTracker struct {
	onsets    *OnsetDetection
	tempo     *TempoEstimation
	tightness float64
	trim      bool
	logger    logging.Logger
}

// NewBeatTracker creates a beat tracker with the default onset detector and
// tempo prior
func NewBeatTracker() *BeatTracker {
	return NewBeatTrackerWithParams(NewOnsetDetection(), NewTempoEstimation(), DefaultTightness)
}

// NewBeatTrackerWithParams creates a beat tracker from its parts
func NewBeatTrackerWithParams(onsets *OnsetDetection, tempo *TempoEstimation, tightness float64) *BeatTracker {
	return &BeatTracker{
		onsets:    onsets,
		tempo:     tempo,
		tightness: tightness,
		trim:      true,
		logger: logging.WithFields(logging.Fields{
			"component": "beat_tracker",
		}),
	}
}

// Track estimates tempo and beat frames for a mono signal. Silence yields an
// empty result with tempo 0, not an error.
func (bt *BeatTracker) Track(signal []float64, sampleRate int) (*BeatResult, error) {
	envelope, err := bt.onsets.OnsetStrength(signal, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("onset strength: %w", err)
	}

	return bt.TrackEnvelope(envelope, sampleRate, bt.onsets.HopSize()), nil
}

// TrackEnvelope runs tempo estimation and beat tracking on a precomputed
// onset strength envelope
func (bt *BeatTracker) TrackEnvelope(envelope []float64, sampleRate, hopSize int) *BeatResult {
	result := &BeatResult{HopSize: hopSize}

	if len(envelope) == 0 || floats.Max(envelope) <= 0 {
		return result
	}

	bpm := bt.tempo.EstimateFromEnvelope(envelope, sampleRate, hopSize)
	if bpm <= 0 {
		return result
	}

	result.Tempo = bpm
	result.Frames = bt.trackBeats(envelope, bpm, float64(sampleRate)/float64(hopSize))

	bt.logger.Debug("Tracked beats", logging.Fields{
		"tempo": bpm,
		"beats": len(result.Frames),
	})

	return result
}

// trackBeats is the dynamic program proper
func (bt *BeatTracker) trackBeats(envelope []float64, bpm, frameRate float64) []int {
	period := math.Round(60.0 * frameRate / bpm)
	if period < 1 {
		return nil
	}

	localScore := bt.localScore(envelope, period)

	// predecessor offsets -2*period .. -period/2
	first := -int(math.Round(2 * period))
	last := -int(math.Round(period / 2))
	if last > -1 {
		last = -1
	}
	offsets := make([]int, 0, last-first+1)
	txwt := make([]float64, 0, last-first+1)
	for off := first; off <= last; off++ {
		ratio := math.Log(float64(-off) / period)
		offsets = append(offsets, off)
		txwt = append(txwt, -bt.tightness*ratio*ratio)
	}

	n := len(localScore)
	cumScore := make([]float64, n)
	backlink := make([]int, n)
	maxLocal := floats.Max(localScore)
	firstBeat := true

	for i, score := range localScore {
		bestIdx := -1
		bestVal := math.Inf(-1)
		for k, off := range offsets {
			val := txwt[k]
			if j := i + off; j >= 0 {
				val += cumScore[j]
			}
			if val > bestVal {
				bestVal = val
				bestIdx = i + off
			}
		}

		cumScore[i] = score + bestVal

		// leading frames before the first real onset start a new chain
		if firstBeat && score < 0.01*maxLocal {
			backlink[i] = -1
		} else {
			backlink[i] = bestIdx
			firstBeat = false
		}
	}

	end := bt.lastBeat(cumScore)
	if end < 0 {
		return nil
	}

	beats := []int{end}
	for backlink[beats[len(beats)-1]] >= 0 {
		beats = append(beats, backlink[beats[len(beats)-1]])
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}

	if bt.trim {
		beats = bt.trimBeats(localScore, beats)
	}

	return beats
}

// localScore smooths the std-normalized envelope with a Gaussian whose width
// scales with the beat period
func (bt *BeatTracker) localScore(envelope []float64, period float64) []float64 {
	normalized := make([]float64, len(envelope))
	copy(normalized, envelope)
	if std := common.StandardDeviation(envelope); std > 0 {
		floats.Scale(1.0/std, normalized)
	}

	half := int(period)
	kernel := make([]float64, 2*half+1)
	for i := range kernel {
		x := float64(i-half) * 32.0 / period
		kernel[i] = math.Exp(-0.5 * x * x)
	}

	return convolveSame(normalized, kernel)
}

// lastBeat returns the last local maximum of the cumulative score that is
// above half the median local-maximum score
func (bt *BeatTracker) lastBeat(cumScore []float64) int {
	peaks := common.LocalMaxima(cumScore)
	if len(peaks) == 0 {
		return -1
	}

	peakScores := make([]float64, len(peaks))
	for i, p := range peaks {
		peakScores[i] = cumScore[p]
	}
	threshold := 0.5 * stats.MedianInPlace(peakScores)

	for i := len(peaks) - 1; i >= 0; i-- {
		if cumScore[peaks[i]] > threshold {
			return peaks[i]
		}
	}
	return peaks[len(peaks)-1]
}

// trimBeats drops leading and trailing beats whose smoothed onset strength is
// below half the RMS of the beat strengths
func (bt *BeatTracker) trimBeats(localScore []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}

	strength := make([]float64, len(beats))
	for i, b := range beats {
		strength[i] = localScore[b]
	}
	smooth := convolveSame(strength, windowing.NewHann(5, true).Coefficients())
	threshold := 0.5 * common.RMS(smooth)

	start, end := 0, len(beats)
	for start < end && smooth[start] < threshold {
		start++
	}
	for end > start && smooth[end-1] < threshold {
		end--
	}

	return beats[start:end]
}

// convolveSame returns the centered part of the full convolution of x and an
// odd-length kernel, the same length as x
func convolveSame(x, kernel []float64) []float64 {
	out := make([]float64, len(x))
	half := len(kernel) / 2

	for i := range x {
		acc := 0.0
		for k, w := range kernel {
			j := i + half - k
			if j >= 0 && j < len(x) {
				acc += x[j] * w
			}
		}
		out[i] = acc
	}

	return out
}
