package tonal

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
)

func triad(pcs ...int) chroma.Vector {
	var v chroma.Vector
	for _, pc := range pcs {
		v[pc] = 1
	}
	return v
}

func TestRotate_RoundTrip(t *testing.T) {
	bank := DefaultTemplateBank()

	for root := range chroma.PitchClasses {
		major := bank.MajorTemplate(root)
		minor := bank.MinorTemplate(root)

		assert.Equal(t, KrumhanslMajor[0], major[root], "root %d", root)
		assert.Equal(t, KrumhanslMinor[0], minor[root], "root %d", root)
		assert.Equal(t, KrumhanslMajor, Rotate(major, 12-root), "root %d", root)
		assert.Equal(t, KrumhanslMinor, Rotate(minor, 12-root), "root %d", root)
	}
}

func TestRotate_IsRightRotation(t *testing.T) {
	base := Template{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	assert.Equal(t, Template{11, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Rotate(base, 1))
	assert.Equal(t, Rotate(base, 11), Rotate(base, -1))
	assert.Equal(t, base, Rotate(base, 24))
}

func TestTemplateBank_PanicsOnInvalidRoot(t *testing.T) {
	bank := DefaultTemplateBank()
	assert.Panics(t, func() { bank.MajorTemplate(12) })
	assert.Panics(t, func() { bank.MinorTemplate(-1) })
	assert.Panics(t, func() { bank.Template(Quality(5), 0) })
}

func TestTemplateBank_ReturnsCopies(t *testing.T) {
	bank := DefaultTemplateBank()
	tpl := bank.MajorTemplate(0)
	tpl[0] = 100
	assert.Equal(t, KrumhanslMajor, bank.MajorTemplate(0))
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", ProfileKrumhansl, false},
		{"Krumhansl", ProfileKrumhansl, false},
		{"diatonic", ProfileDiatonic, false},
		{"temperley", ProfileKrumhansl, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProfile(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, NewTemplateBank(got).Profile())
		})
	}
}

func TestCorrelator_SelfMatch(t *testing.T) {
	for _, profile := range []Profile{ProfileKrumhansl, ProfileDiatonic} {
		bank := NewTemplateBank(profile)
		c := NewCorrelator(bank)

		for _, quality := range Qualities {
			for root := range chroma.PitchClasses {
				match := c.BestMatch(chroma.Vector(bank.Template(quality, root)))
				require.True(t, match.OK)
				assert.Equal(t, quality, match.Quality, "%s %s root %d", profile, quality, root)
				assert.Equal(t, root, match.Root, "%s %s root %d", profile, quality, root)
				assert.InDelta(t, 1.0, match.Score, 1e-9)
			}
		}
	}
}

func TestCorrelator_NoMatch(t *testing.T) {
	c := NewCorrelator(nil)

	for name, v := range map[string]chroma.Vector{
		"silence":  {},
		"constant": {1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	} {
		t.Run(name, func(t *testing.T) {
			match := c.BestMatch(v)
			assert.False(t, match.OK)
			assert.True(t, math.IsInf(match.Score, -1))
			assert.Equal(t, NoChord, match.ChordLabel())
			assert.Equal(t, "", match.KeyLabel())
			assert.Nil(t, c.Scores(v))
		})
	}
}

func TestCorrelator_TinyEnergy(t *testing.T) {
	c := NewCorrelator(nil)
	want := c.BestMatch(triad(0, 4, 7))

	for _, scale := range []float64{1e-6, 1e-10, 1e-12} {
		v := triad(0, 4, 7)
		for i := range v {
			v[i] *= scale
		}
		match := c.BestMatch(v)
		require.True(t, match.OK, "scale %g", scale)
		assert.Equal(t, "C Maj", match.ChordLabel(), "scale %g", scale)
		assert.InDelta(t, want.Score, match.Score, 1e-9, "scale %g", scale)
	}
}

func TestCorrelator_Triads(t *testing.T) {
	c := NewCorrelator(nil)

	tests := []struct {
		name  string
		v     chroma.Vector
		key   string
		chord string
	}{
		{"C major", triad(0, 4, 7), "C Major", "C Maj"},
		{"A minor", triad(9, 0, 4), "A Minor", "A Min"},
		{"G major", triad(7, 11, 2), "G Major", "G Maj"},
		{"E minor", triad(4, 7, 11), "E Minor", "E Min"},
		{"D major", triad(2, 6, 9), "D Major", "D Maj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := c.BestMatch(tt.v)
			assert.Equal(t, tt.key, match.KeyLabel())
			assert.Equal(t, tt.chord, match.ChordLabel())
		})
	}
}

func TestCorrelator_Deterministic(t *testing.T) {
	c := NewCorrelator(nil)
	v := chroma.Vector{0.9, 0.1, 0.3, 0.05, 0.7, 0.2, 0.1, 0.8, 0.15, 0.4, 0.1, 0.3}

	first := c.BestMatch(v)
	for range 50 {
		assert.Equal(t, first, c.BestMatch(v))
	}
}

func TestCorrelator_ScaleInvariant(t *testing.T) {
	c := NewCorrelator(nil)
	v := chroma.Vector{0.9, 0.1, 0.3, 0.05, 0.7, 0.2, 0.1, 0.8, 0.15, 0.4, 0.1, 0.3}

	var doubled chroma.Vector
	for i := range v {
		doubled[i] = 2 * v[i]
	}

	a, b := c.BestMatch(v), c.BestMatch(doubled)
	assert.Equal(t, a.Quality, b.Quality)
	assert.Equal(t, a.Root, b.Root)
	assert.InDelta(t, a.Score, b.Score, 1e-12)
}

func TestCorrelator_TieBreaksMajorThenLowerRoot(t *testing.T) {
	// minor templates identical to major: every major/minor pair ties exactly
	twin := buildBank(ProfileKrumhansl, KrumhanslMajor, KrumhanslMajor)
	match := NewCorrelator(&twin).BestMatch(chroma.Vector(KrumhanslMajor))
	assert.Equal(t, Major, match.Quality)
	assert.Equal(t, 0, match.Root)

	// a template with period 6 ties root r with root r+6
	tritone := Template{1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0}
	periodic := buildBank(ProfileDiatonic, tritone, DiatonicMinor)
	match = NewCorrelator(&periodic).BestMatch(chroma.Vector(tritone))
	assert.Equal(t, Major, match.Quality)
	assert.Equal(t, 0, match.Root)
}

func TestCorrelator_Scores(t *testing.T) {
	c := NewCorrelator(nil)
	scores := c.Scores(triad(0, 4, 7))
	require.Len(t, scores, 24)

	best := c.BestMatch(triad(0, 4, 7))
	assert.Equal(t, best.Score, scores[0])
	for _, s := range scores {
		assert.LessOrEqual(t, s, best.Score)
	}
}

func TestKeyEstimator(t *testing.T) {
	m := chroma.NewMatrix(20, 512, 22050)
	for f := range m.Data {
		m.Data[f] = triad(9, 0, 4)
	}

	est := NewKeyEstimator(nil)
	assert.Equal(t, "A Minor", est.Estimate(m).KeyLabel())

	silent := chroma.NewMatrix(20, 512, 22050)
	assert.False(t, est.Estimate(silent).OK)
	assert.Equal(t, "", est.Estimate(chroma.NewMatrix(0, 512, 22050)).KeyLabel())
}

func TestChromaProfile(t *testing.T) {
	m := chroma.NewMatrix(3, 512, 22050)
	m.Data[0][0] = 1
	m.Data[1][0] = 2
	m.Data[2][7] = 0.5

	profile := ChromaProfile(m)
	assert.Equal(t, 3.0, profile[0])
	assert.Equal(t, 0.5, profile[7])
	assert.Equal(t, chroma.Vector{}, ChromaProfile(nil))
}

func TestChordTimeline_Build(t *testing.T) {
	synced := []chroma.BeatVector{
		{Frame: 0, Chroma: triad(0, 4, 7)},
		{Frame: 43, Chroma: triad(9, 0, 4)},
		{Frame: 86, Chroma: chroma.Vector{}},
	}

	segments := NewChordTimeline(nil).Build(synced, 22050, 512)
	require.Len(t, segments, 3)

	assert.Equal(t, "C Maj", segments[0].Chord)
	assert.Equal(t, "A Min", segments[1].Chord)
	assert.Equal(t, NoChord, segments[2].Chord)
	assert.Equal(t, 0.0, segments[0].Time)
	assert.InDelta(t, 43*512/22050.0, segments[1].Time, 1e-12)
}

func TestChordTimeline_ParallelMatchesSequential(t *testing.T) {
	chords := []chroma.Vector{triad(0, 4, 7), triad(9, 0, 4), triad(7, 11, 2), {}}
	synced := make([]chroma.BeatVector, 1000)
	for i := range synced {
		synced[i] = chroma.BeatVector{Frame: i * 20, Chroma: chords[i%len(chords)]}
	}

	sequential := NewChordTimeline(nil)
	sequential.SetWorkers(1)
	parallel := NewChordTimeline(nil)
	parallel.SetWorkers(8)

	want := sequential.Build(synced, 22050, 512)
	got := parallel.Build(synced, 22050, 512)

	require.Len(t, got, len(synced))
	assert.Equal(t, want, got)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Time < got[j].Time }))
}

func TestChordTimeline_Empty(t *testing.T) {
	assert.Empty(t, NewChordTimeline(nil).Build(nil, 22050, 512))
}
