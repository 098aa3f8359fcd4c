package config

import (
	"fmt"
	"time"
)

// AnalysisConfig configures the key and chord analysis pipeline
type AnalysisConfig struct {
	// Audio
	SampleRate  int           `json:"sample_rate"`  // decode target, Hz
	MaxDuration time.Duration `json:"max_duration"` // 0 analyses the whole file

	// Chroma
	HopSize       int     `json:"hop_size"`        // shared by chroma and beat frames
	MinFreq       float64 `json:"min_freq"`        // lowest CQT bin at A4 = 440 Hz
	Octaves       int     `json:"octaves"`         // CQT range above MinFreq
	BinsPerOctave int     `json:"bins_per_octave"` // multiple of 12
	TuningFreq    float64 `json:"tuning_freq"`     // A4 reference

	// Templates
	KeyProfile   string `json:"key_profile"`   // "krumhansl" or "diatonic"
	ChordProfile string `json:"chord_profile"` // "krumhansl" or "diatonic"
	ChordWorkers int    `json:"chord_workers,omitempty"`

	Beat BeatConfig `json:"beat"`
}

// BeatConfig configures onset strength, tempo and beat tracking
type BeatConfig struct {
	WindowSize int     `json:"window_size"` // onset STFT size
	MelBands   int     `json:"mel_bands"`
	StartBPM   float64 `json:"start_bpm"` // tempo prior center
	StdBPM     float64 `json:"std_bpm"`   // tempo prior width in octaves
	Tightness  float64 `json:"tightness"` // beat spacing penalty
}

// DefaultAnalysisConfig returns the standard analysis settings:
// 22050 Hz mono, two minutes at most, 512-sample frames, C1..C8 chroma and
// Krumhansl-Schmuckler templates for both keys and chords
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		SampleRate:    22050,
		MaxDuration:   120 * time.Second,
		HopSize:       512,
		MinFreq:       32.70319566257483, // C1
		Octaves:       7,
		BinsPerOctave: 36,
		TuningFreq:    440.0,
		KeyProfile:    "krumhansl",
		ChordProfile:  "krumhansl",
		Beat:          DefaultBeatConfig(),
	}
}

// DefaultBeatConfig returns the beat tracker defaults
func DefaultBeatConfig() BeatConfig {
	return BeatConfig{
		WindowSize: 2048,
		MelBands:   128,
		StartBPM:   120.0,
		StdBPM:     1.0,
		Tightness:  100.0,
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *AnalysisConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.HopSize <= 0 {
		return fmt.Errorf("hop size must be positive: %d", c.HopSize)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", c.MaxDuration)
	}
	if c.BinsPerOctave <= 0 || c.BinsPerOctave%12 != 0 {
		return fmt.Errorf("bins per octave must be a positive multiple of 12: %d", c.BinsPerOctave)
	}
	if c.Octaves <= 0 {
		return fmt.Errorf("octaves must be positive: %d", c.Octaves)
	}
	if c.MinFreq <= 0 || c.TuningFreq <= 0 {
		return fmt.Errorf("min frequency and tuning must be positive")
	}
	if c.Beat.WindowSize < c.HopSize {
		return fmt.Errorf("beat window size %d smaller than hop size %d", c.Beat.WindowSize, c.HopSize)
	}
	if c.Beat.StartBPM <= 0 || c.Beat.StdBPM <= 0 {
		return fmt.Errorf("tempo prior must be positive")
	}
	return nil
}
