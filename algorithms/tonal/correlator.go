package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
)

// NoChord is the chord label used when a vector matches no template
const NoChord = "--"

// Match is the best-scoring template for a chroma vector
type Match struct {
	Quality Quality `json:"quality"`
	Root    int     `json:"root"`  // 0=C ... 11=B
	Score   float64 `json:"score"` // Pearson correlation, -Inf when !OK
	OK      bool    `json:"ok"`    // false when the vector has no variance
}

// NoMatch is returned for vectors whose correlation is undefined
func NoMatch() Match {
	return Match{Score: math.Inf(-1)}
}

// RootName returns the root spelled with sharps ("C", "C#", ...)
func (m Match) RootName() string {
	if !m.OK {
		return ""
	}
	return chroma.PitchClassNames[m.Root]
}

// KeyLabel renders the match as a key ("A Minor"), or "" for no match
func (m Match) KeyLabel() string {
	if !m.OK {
		return ""
	}
	if m.Quality == Minor {
		return m.RootName() + " Minor"
	}
	return m.RootName() + " Major"
}

// ChordLabel renders the match as a triad ("A Min"), or NoChord
func (m Match) ChordLabel() string {
	if !m.OK {
		return NoChord
	}
	if m.Quality == Minor {
		return m.RootName() + " Min"
	}
	return m.RootName() + " Maj"
}

// Correlator scores chroma vectors against every template of a bank. It is
// the single place key and chord decisions are made.
type Correlator struct {
	bank *TemplateBank
}

// NewCorrelator creates a correlator over bank (nil selects the default bank)
func NewCorrelator(bank *TemplateBank) *Correlator {
	if bank == nil {
		bank = DefaultTemplateBank()
	}
	return &Correlator{bank: bank}
}

// BestMatch returns the template with the highest Pearson correlation to
// vector.
//
// Templates are visited major roots 0..11 then minor roots 0..11 and only a
// strictly greater score replaces the current best, so exact ties resolve to
// major before minor and then to the lower root. A vector with zero variance
// (silence, or equal energy everywhere) yields NoMatch.
func (c *Correlator) BestMatch(vector chroma.Vector) Match {
	best := NoMatch()

	for _, quality := range Qualities {
		for root := range chroma.PitchClasses {
			template := c.bank.templates[quality][root]
			score, ok := stats.Pearson(vector[:], template[:])
			if !ok {
				// undefined for one template means undefined for all
				return NoMatch()
			}
			if score > best.Score {
				best = Match{Quality: quality, Root: root, Score: score, OK: true}
			}
		}
	}

	return best
}

// Scores returns the correlation against all 24 templates in iteration
// order, or nil when the vector has no variance
func (c *Correlator) Scores(vector chroma.Vector) []float64 {
	scores := make([]float64, 0, len(Qualities)*chroma.PitchClasses)
	for _, quality := range Qualities {
		for root := range chroma.PitchClasses {
			template := c.bank.templates[quality][root]
			score, ok := stats.Pearson(vector[:], template[:])
			if !ok {
				return nil
			}
			scores = append(scores, score)
		}
	}
	return scores
}
