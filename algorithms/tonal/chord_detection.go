package tonal

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/logging"
)

// beats per worker before the timeline is split across goroutines
const beatsPerWorker = 128

// ChordSegment is the chord heard from Time until the next segment
type ChordSegment struct {
	Time  float64 `json:"time"`  // seconds
	Chord string  `json:"chord"` // "A Min", "C Maj" or NoChord
	Match Match   `json:"-"`
}

// ChordTimeline labels beat-synchronized chroma vectors with major or minor
// triads.
//
// Every beat vector goes through the Correlator on its own; nothing is
// smoothed across beats. Vectors without variance are labelled NoChord.
type ChordTimeline struct {
	correlator *Correlator
	workers    int
	logger     logging.Logger
}

// NewChordTimeline creates a chord timeline builder over bank (nil selects the
// Krumhansl-Schmuckler bank)
func NewChordTimeline(bank *TemplateBank) *ChordTimeline {
	return &ChordTimeline{
		correlator: NewCorrelator(bank),
		workers:    runtime.NumCPU(),
		logger: logging.WithFields(logging.Fields{
			"component": "chord_timeline",
		}),
	}
}

// SetWorkers bounds the goroutines used for long timelines (minimum 1)
func (c *ChordTimeline) SetWorkers(n int) {
	c.workers = max(1, n)
}

// Build returns one segment per beat vector, in beat order. The timestamp of
// a segment is the start frame of its beat converted with hopSize and
// sampleRate.
func (c *ChordTimeline) Build(synced []chroma.BeatVector, sampleRate, hopSize int) []ChordSegment {
	segments := make([]ChordSegment, len(synced))
	if len(synced) == 0 {
		return segments
	}

	label := func(i int) {
		match := c.correlator.BestMatch(synced[i].Chroma)
		segments[i] = ChordSegment{
			Time:  chroma.FrameToTime(synced[i].Frame, hopSize, sampleRate),
			Chord: match.ChordLabel(),
			Match: match,
		}
	}

	if len(synced) <= beatsPerWorker || c.workers == 1 {
		for i := range synced {
			label(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.workers)
		for start := 0; start < len(synced); start += beatsPerWorker {
			end := min(start+beatsPerWorker, len(synced))
			g.Go(func() error {
				for i := start; i < end; i++ {
					label(i)
				}
				return nil
			})
		}
		_ = g.Wait() // workers never fail
	}

	c.logger.Debug("Built chord timeline", logging.Fields{
		"beats": len(segments),
	})

	return segments
}
