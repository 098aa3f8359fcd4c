package tonal

import (
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/logging"
)

// KeyEstimator estimates one global key for a whole chromagram.
//
// The chroma energy of every frame is summed into a single 12-bin profile,
// which is then matched against all 24 major and minor templates. Only one
// key is reported per track; modulations are not tracked.
//
// References:
//   - Krumhansl, C.L., Kessler, E.J. (1982). "Tracing the dynamic changes in
//     perceived tonal organization in a spatial representation of musical keys"
//     Psychological Review, 89(4), 334-368
//   - Temperley, D. (1999). "What's key for key? The Krumhansl-Schmuckler
//     key-finding algorithm reconsidered" Music Perception, 17(1), 65-100
type KeyEstimator struct {
	correlator *Correlator
	logger     logging.Logger
}

// NewKeyEstimator creates a key estimator over bank (nil selects the
// Krumhansl-Schmuckler bank)
func NewKeyEstimator(bank *TemplateBank) *KeyEstimator {
	return &KeyEstimator{
		correlator: NewCorrelator(bank),
		logger: logging.WithFields(logging.Fields{
			"component": "key_estimator",
		}),
	}
}

// Estimate returns the best-matching key, or NoMatch for an empty or silent
// chromagram
func (k *KeyEstimator) Estimate(m *chroma.Matrix) Match {
	profile := ChromaProfile(m)
	match := k.correlator.BestMatch(profile)

	k.logger.Debug("Estimated key", logging.Fields{
		"frames": m.Frames(),
		"key":    match.KeyLabel(),
		"score":  match.Score,
		"scores": k.correlator.Scores(profile),
	})

	return match
}

// ChromaProfile sums a chromagram over all frames
func ChromaProfile(m *chroma.Matrix) chroma.Vector {
	var profile chroma.Vector
	if m == nil {
		return profile
	}
	for t := range m.Data {
		floats.Add(profile[:], m.Data[t][:])
	}
	return profile
}
