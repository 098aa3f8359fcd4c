package analysis

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/temporal"
	"github.com/RyanBlaney/sonido-chords/algorithms/tonal"
	"github.com/RyanBlaney/sonido-chords/analysis/config"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

const (
	testSampleRate = 22050
	testHop        = 512
)

// fixedProfiler returns the same pitch classes at equal energy in every frame
type fixedProfiler struct {
	energy float64
	pcs    []int
}

func (p fixedProfiler) Compute(signal []float64) (*chroma.Matrix, error) {
	m := chroma.NewMatrix(1+len(signal)/testHop, testHop, testSampleRate)
	for t := range m.Data {
		for _, pc := range p.pcs {
			m.Data[t][pc] = p.energy
		}
	}
	return m, nil
}

type stubBeats struct {
	result *temporal.BeatResult
	err    error
	calls  int
}

func (s *stubBeats) Track(signal []float64, sampleRate int) (*temporal.BeatResult, error) {
	s.calls++
	return s.result, s.err
}

func newTestAnalyzer(t *testing.T, p Profiler) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(nil)
	require.NoError(t, err)
	if p != nil {
		a.SetProfilerFactory(func(int) (Profiler, error) { return p, nil })
	}
	return a
}

func sineMix(seconds float64, freqs ...float64) []float64 {
	signal := make([]float64, int(seconds*testSampleRate))
	for i := range signal {
		t := float64(i) / testSampleRate
		for _, f := range freqs {
			signal[i] += 0.3 * math.Sin(2*math.Pi*f*t)
		}
	}
	return signal
}

var everyTenFrames = []int{0, 10, 20, 30, 40}

func TestAnalyze_Scenarios(t *testing.T) {
	waveform := make([]float64, testSampleRate) // 44 frames

	tests := []struct {
		name      string
		profiler  fixedProfiler
		key       string
		mainChord string
		chord     string
	}{
		{"C major triad", fixedProfiler{1, []int{0, 4, 7}}, "C Major", "C", "C Maj"},
		{"A minor triad", fixedProfiler{1, []int{9, 0, 4}}, "A Minor", "A", "A Min"},
		{"silence", fixedProfiler{0, nil}, "", "", tonal.NoChord},
		{"doubled C major", fixedProfiler{2, []int{0, 4, 7}}, "C Major", "C", "C Maj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, tt.profiler)

			result, err := a.Analyze(waveform, testSampleRate, everyTenFrames, 119.96)
			require.NoError(t, err)

			assert.Equal(t, tt.key, result.Key)
			assert.Equal(t, tt.mainChord, result.MainChord)
			assert.Equal(t, 120.0, result.Tempo)
			require.Len(t, result.Chords, len(everyTenFrames))
			for _, seg := range result.Chords {
				assert.Equal(t, tt.chord, seg.Chord)
			}
		})
	}
}

func TestAnalyze_ScaleInvariant(t *testing.T) {
	waveform := make([]float64, testSampleRate)
	pcs := []int{2, 5, 9}

	single, err := newTestAnalyzer(t, fixedProfiler{0.5, pcs}).Analyze(waveform, testSampleRate, everyTenFrames, 90)
	require.NoError(t, err)
	doubled, err := newTestAnalyzer(t, fixedProfiler{1.0, pcs}).Analyze(waveform, testSampleRate, everyTenFrames, 90)
	require.NoError(t, err)

	assert.Equal(t, single.Key, doubled.Key)
	for i := range single.Chords {
		assert.Equal(t, single.Chords[i].Chord, doubled.Chords[i].Chord)
		assert.Equal(t, single.Chords[i].Match.Root, doubled.Chords[i].Match.Root)
	}
}

func TestAnalyze_Timestamps(t *testing.T) {
	a := newTestAnalyzer(t, fixedProfiler{1, []int{0, 4, 7}})

	// 44 frames: boundaries past the last frame are dropped
	result, err := a.Analyze(make([]float64, testSampleRate), testSampleRate, []int{3, 21, 43, 50, 90}, 120)
	require.NoError(t, err)
	require.Len(t, result.Chords, 3)

	assert.True(t, sort.SliceIsSorted(result.Chords, func(i, j int) bool {
		return result.Chords[i].Time < result.Chords[j].Time
	}))
	assert.InDelta(t, 3*512/22050.0, result.Chords[0].Time, 1e-12)
	assert.InDelta(t, 43*512/22050.0, result.Chords[2].Time, 1e-12)
}

func TestAnalyze_InvalidInput(t *testing.T) {
	a := newTestAnalyzer(t, nil)

	tests := []struct {
		name       string
		waveform   []float64
		sampleRate int
		beats      []int
	}{
		{"empty waveform", nil, testSampleRate, []int{0}},
		{"zero sample rate", make([]float64, 100), 0, []int{0}},
		{"negative sample rate", make([]float64, 100), -1, []int{0}},
		{"no beats", make([]float64, 100), testSampleRate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Analyze(tt.waveform, tt.sampleRate, tt.beats, 120)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
		})
	}
}

func TestAnalyze_SineTriadWaveform(t *testing.T) {
	a := newTestAnalyzer(t, nil)

	// C4, E4, G4 through the real constant-Q profiler
	waveform := sineMix(1.0, 261.6256, 329.6276, 391.9954)
	result, err := a.Analyze(waveform, testSampleRate, []int{5, 15, 25, 35}, 120)
	require.NoError(t, err)

	assert.Equal(t, "C Major", result.Key)
	assert.Equal(t, "C", result.MainChord)
	require.Len(t, result.Chords, 4)
	for _, seg := range result.Chords {
		assert.Equal(t, "C Maj", seg.Chord)
	}
}

func TestAnalyzeAudio_UsesBeatDetector(t *testing.T) {
	a := newTestAnalyzer(t, fixedProfiler{1, []int{9, 0, 4}})
	beats := &stubBeats{result: &temporal.BeatResult{Tempo: 97.53, Frames: []int{0, 20}, HopSize: testHop}}
	a.SetBeatDetector(beats)

	audio := &transcode.AudioData{PCM: make([]float64, testSampleRate), SampleRate: testSampleRate, Channels: 1}
	result, err := a.AnalyzeAudio(context.Background(), audio)
	require.NoError(t, err)

	assert.Equal(t, 1, beats.calls)
	assert.Equal(t, 97.5, result.Tempo)
	assert.Equal(t, "A Minor", result.Key)
	assert.Len(t, result.Chords, 2)
}

func TestAnalyzeAudio_NoBeatsIsInvalidInput(t *testing.T) {
	a := newTestAnalyzer(t, fixedProfiler{0, nil})
	a.SetBeatDetector(&stubBeats{result: &temporal.BeatResult{HopSize: testHop}})

	audio := &transcode.AudioData{PCM: make([]float64, testSampleRate), SampleRate: testSampleRate}
	_, err := a.AnalyzeAudio(context.Background(), audio)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestAnalyzeAudio_Errors(t *testing.T) {
	a := newTestAnalyzer(t, fixedProfiler{1, []int{0, 4, 7}})
	beats := &stubBeats{err: errors.New("tracker exploded")}
	a.SetBeatDetector(beats)

	_, err := a.AnalyzeAudio(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	audio := &transcode.AudioData{PCM: make([]float64, 1000), SampleRate: testSampleRate}
	_, err = a.AnalyzeAudio(context.Background(), audio)
	assert.ErrorContains(t, err, "tracker exploded")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.AnalyzeAudio(ctx, audio)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, beats.calls, "cancelled request must not run the tracker")
}

func TestNewAnalyzer_RejectsBadConfig(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	cfg.ChordProfile = "jazz"
	_, err := NewAnalyzer(cfg)
	assert.Error(t, err)

	cfg = config.DefaultAnalysisConfig()
	cfg.HopSize = 0
	_, err = NewAnalyzer(cfg)
	assert.Error(t, err)
}

func TestRoundTempoAndMainChord(t *testing.T) {
	assert.Equal(t, 123.5, RoundTempo(123.456))
	assert.Equal(t, 0.0, RoundTempo(math.NaN()))
	assert.Equal(t, "F#", MainChord("F# Minor"))
	assert.Equal(t, "", MainChord(""))
}
