package chroma

import (
	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
)

// BeatVector is one beat-synchronized chroma vector together with the frame
// that starts its interval
type BeatVector struct {
	Frame  int    `json:"frame"`
	Chroma Vector `json:"chroma"`
}

// SyncToBeats reduces the chromagram to one vector per beat interval.
//
// Interval i spans frames [boundaries[i], boundaries[i+1]) and the last one
// runs to the end of the matrix. Every pitch class is reduced with the median
// over the interval.
//
// Boundaries outside [0, T) are dropped, as is any boundary not after the
// previously kept one, so the output is in frame order, never longer than the
// boundary list, and empty when no boundaries are given.
func SyncToBeats(m *Matrix, boundaries []int) []BeatVector {
	numFrames := m.Frames()
	if numFrames == 0 || len(boundaries) == 0 {
		return nil
	}

	usable := make([]int, 0, len(boundaries))
	for _, b := range boundaries {
		if b < 0 || b >= numFrames {
			continue
		}
		if n := len(usable); n > 0 && b <= usable[n-1] {
			continue
		}
		usable = append(usable, b)
	}

	synced := make([]BeatVector, 0, len(usable))
	buf := make([]float64, 0, numFrames)

	for i, start := range usable {
		end := numFrames
		if i+1 < len(usable) {
			end = usable[i+1]
		}

		var v Vector
		for pc := range PitchClasses {
			buf = buf[:0]
			for t := start; t < end; t++ {
				buf = append(buf, m.Data[t][pc])
			}
			v[pc] = stats.MedianInPlace(buf)
		}

		synced = append(synced, BeatVector{Frame: start, Chroma: v})
	}

	return synced
}
