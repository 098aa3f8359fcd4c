package chroma

import "errors"

// ErrInvalidInput is returned when an analysis input cannot produce a
// chromagram: an empty waveform, a non-positive sample rate, or (at the
// pipeline level) an empty beat sequence.
var ErrInvalidInput = errors.New("invalid input")

// PitchClasses is the number of chroma bins (C, C#, ..., B)
const PitchClasses = 12

// PitchClassNames in row order of a Matrix
var PitchClassNames = [PitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Vector is the pitch-class energy of one frame or one beat
type Vector = [PitchClasses]float64

// Matrix is a 12xT chromagram stored column-wise: Data[t][pc] is the energy of
// pitch class pc in frame t. Entries are non-negative.
type Matrix struct {
	Data       []Vector `json:"data"`
	HopSize    int      `json:"hop_size"`    // samples between frame centers
	SampleRate int      `json:"sample_rate"` // Hz
}

// NewMatrix allocates a zeroed chromagram with the given frame count
func NewMatrix(frames, hopSize, sampleRate int) *Matrix {
	return &Matrix{
		Data:       make([]Vector, frames),
		HopSize:    hopSize,
		SampleRate: sampleRate,
	}
}

// Frames returns T, the number of columns
func (m *Matrix) Frames() int {
	if m == nil {
		return 0
	}
	return len(m.Data)
}

// FrameToTime converts a frame index to seconds for the given hop and rate
func FrameToTime(frame, hopSize, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(frame) * float64(hopSize) / float64(sampleRate)
}
