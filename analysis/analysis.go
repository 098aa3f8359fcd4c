package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/temporal"
	"github.com/RyanBlaney/sonido-chords/algorithms/tonal"
	"github.com/RyanBlaney/sonido-chords/analysis/config"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// ErrInvalidInput is returned for an empty waveform, a non-positive sample
// rate or an empty beat sequence. No partial result accompanies it.
var ErrInvalidInput = chroma.ErrInvalidInput

// Result is the outcome of one analysis request
type Result struct {
	Filename  string               `json:"filename"`
	Tempo     float64              `json:"tempo"`      // BPM, one decimal
	Key       string               `json:"key"`        // "A Minor", "" when no key matched
	MainChord string               `json:"main_chord"` // root token of Key
	Chords    []tonal.ChordSegment `json:"chords"`
}

// Profiler turns a waveform into a chromagram
type Profiler interface {
	Compute(signal []float64) (*chroma.Matrix, error)
}

// ProfilerFactory builds a profiler for one sample rate
type ProfilerFactory func(sampleRate int) (Profiler, error)

// BeatDetector estimates tempo and beat frames on the chroma frame grid
type BeatDetector interface {
	Track(signal []float64, sampleRate int) (*temporal.BeatResult, error)
}

// Analyzer runs the key and chord pipeline:
//
//	waveform -> chromagram -> key estimate
//	                       -> beat sync -> chord timeline
//
// The chromagram is computed once and shared by both branches. An Analyzer
// holds no per-request state and is safe for concurrent use.
type Analyzer struct {
	config      *config.AnalysisConfig
	newProfiler ProfilerFactory
	beats       BeatDetector
	keys        *tonal.KeyEstimator
	chords      *tonal.ChordTimeline
	logger      logging.Logger
}

// NewAnalyzer creates an analyzer from configuration (nil selects defaults)
func NewAnalyzer(cfg *config.AnalysisConfig) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultAnalysisConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}

	keyProfile, err := tonal.ParseProfile(cfg.KeyProfile)
	if err != nil {
		return nil, fmt.Errorf("key profile: %w", err)
	}
	chordProfile, err := tonal.ParseProfile(cfg.ChordProfile)
	if err != nil {
		return nil, fmt.Errorf("chord profile: %w", err)
	}

	chords := tonal.NewChordTimeline(tonal.NewTemplateBank(chordProfile))
	if cfg.ChordWorkers > 0 {
		chords.SetWorkers(cfg.ChordWorkers)
	}

	onsets := temporal.NewOnsetDetectionWithParams(cfg.Beat.WindowSize, cfg.HopSize, cfg.Beat.MelBands)
	tempo := temporal.NewTempoEstimationWithPrior(cfg.Beat.StartBPM, cfg.Beat.StdBPM)

	a := &Analyzer{
		config: cfg,
		beats:  temporal.NewBeatTrackerWithParams(onsets, tempo, cfg.Beat.Tightness),
		keys:   tonal.NewKeyEstimator(tonal.NewTemplateBank(keyProfile)),
		chords: chords,
		logger: logging.WithFields(logging.Fields{
			"component": "analyzer",
		}),
	}
	a.newProfiler = a.defaultProfiler

	return a, nil
}

func (a *Analyzer) defaultProfiler(sampleRate int) (Profiler, error) {
	return chroma.NewChromaCQT(
		sampleRate,
		a.config.HopSize,
		a.config.MinFreq,
		a.config.Octaves,
		a.config.BinsPerOctave,
		a.config.TuningFreq,
	)
}

// SetProfilerFactory replaces the constant-Q chroma profiler
func (a *Analyzer) SetProfilerFactory(f ProfilerFactory) {
	if f != nil {
		a.newProfiler = f
	}
}

// SetBeatDetector replaces the dynamic-programming beat tracker
func (a *Analyzer) SetBeatDetector(d BeatDetector) {
	if d != nil {
		a.beats = d
	}
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() *config.AnalysisConfig {
	return a.config
}

// AnalyzeAudio detects beats in decoded audio and runs the pipeline. The
// context is checked between stages; a stage already running is not
// interrupted.
func (a *Analyzer) AnalyzeAudio(ctx context.Context, audio *transcode.AudioData) (*Result, error) {
	if audio == nil {
		return nil, fmt.Errorf("audio data cannot be nil: %w", ErrInvalidInput)
	}
	if len(audio.PCM) == 0 {
		return nil, fmt.Errorf("empty waveform: %w", ErrInvalidInput)
	}
	if audio.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d: %w", audio.SampleRate, ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	beats, err := a.beats.Track(audio.PCM, audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("beat tracking: %w", err)
	}

	a.logger.Debug("Beat tracking completed", logging.Fields{
		"tempo":       beats.Tempo,
		"beats":       len(beats.Frames),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return a.Analyze(audio.PCM, audio.SampleRate, beats.Frames, beats.Tempo)
}

// Analyze runs the pipeline on a waveform with externally supplied beat
// frames (on the chroma hop grid) and tempo
func (a *Analyzer) Analyze(waveform []float64, sampleRate int, beatFrames []int, tempo float64) (*Result, error) {
	if len(waveform) == 0 {
		return nil, fmt.Errorf("empty waveform: %w", ErrInvalidInput)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d: %w", sampleRate, ErrInvalidInput)
	}
	if len(beatFrames) == 0 {
		return nil, fmt.Errorf("no beats detected: %w", ErrInvalidInput)
	}

	logger := a.logger.WithFields(logging.Fields{
		"function":    "Analyze",
		"sample_rate": sampleRate,
		"samples":     len(waveform),
		"beats":       len(beatFrames),
	})

	profiler, err := a.newProfiler(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("chroma profiler: %w", err)
	}

	start := time.Now()
	chromagram, err := profiler.Compute(waveform)
	if err != nil {
		return nil, fmt.Errorf("chroma: %w", err)
	}

	key := a.keys.Estimate(chromagram)
	synced := chroma.SyncToBeats(chromagram, beatFrames)
	segments := a.chords.Build(synced, chromagram.SampleRate, chromagram.HopSize)

	if len(synced) < len(beatFrames) {
		logger.Debug("Beat boundaries truncated to chroma frames", logging.Fields{
			"frames": chromagram.Frames(),
			"synced": len(synced),
		})
	}

	result := &Result{
		Tempo:     RoundTempo(tempo),
		Key:       key.KeyLabel(),
		MainChord: MainChord(key.KeyLabel()),
		Chords:    segments,
	}

	logger.Info("Analysis completed", logging.Fields{
		"key":         result.Key,
		"tempo":       result.Tempo,
		"chords":      len(result.Chords),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return result, nil
}

// RoundTempo rounds a tempo to one decimal place
func RoundTempo(bpm float64) float64 {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return 0
	}
	return math.Round(bpm*10) / 10
}

// MainChord returns the root token of a key label ("F#" for "F# Minor")
func MainChord(key string) string {
	root, _, _ := strings.Cut(key, " ")
	return root
}
