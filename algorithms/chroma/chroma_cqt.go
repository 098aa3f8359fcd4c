package chroma

import (
	"fmt"
	"math"
	"math/cmplx"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-chords/algorithms/common"
	"github.com/RyanBlaney/sonido-chords/algorithms/filters"
	"github.com/RyanBlaney/sonido-chords/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
	"github.com/RyanBlaney/sonido-chords/logging"
)

const (
	// DefaultHopSize gives ~23 ms frames at 22050 Hz
	DefaultHopSize = 512
	// DefaultMinFreq is C1
	DefaultMinFreq = 32.70319566257483
	// DefaultOctaves spans C1..C8
	DefaultOctaves = 7
	// DefaultBinsPerOctave gives three bins per semitone
	DefaultBinsPerOctave = 36
	// DefaultTuning is the A4 reference in Hz
	DefaultTuning = 440.0

	// spectral kernel entries below this fraction of the kernel peak are dropped
	sparsityThreshold = 0.0054
	// highest analysed frequency as a fraction of Nyquist
	nyquistHeadroom = 0.95
	// columns whose peak is below this are left unscaled
	minNormalizable = 1e-300
	framesPerJob    = 64
)

// ChromaCQT computes a chromagram from a Constant-Q Transform.
//
// CQT frequency spacing: f_k = f_min * 2^(k/bins_per_octave), so each octave
// doubles in frequency and every bin has the same quality factor
// Q = 1 / (2^(1/bins_per_octave) - 1).
//
// The transform uses the spectral-kernel method with multirate processing:
//   - kernels are designed once for the top octave and moved to the frequency
//     domain, where they are sparse
//   - every lower octave reuses the same kernels on a copy of the signal that
//     has been low-passed and decimated by two, which keeps the FFT size fixed
//     instead of growing with the lowest frequency
//
// The CQT magnitudes are folded onto 12 pitch classes (all octaves and all
// bins belonging to a semitone are summed) and each frame is scaled so that
// its loudest pitch class is 1. Silent frames stay zero.
//
// Frames are centered: frame t covers the window around sample t*hopSize,
// with zeros outside the signal, giving 1 + len(signal)/hopSize frames.
//
// References:
//   - Brown, J.C. (1991). "Calculation of a constant Q spectral transform"
//     JASA 89(1), 425-434
//   - Brown, J.C., Puckette, M.S. (1992). "An efficient algorithm for the
//     calculation of a constant Q transform" JASA 92(5), 2698-2701
//   - Schörkhuber, C., Klapuri, A. (2010). "Constant-Q transform toolbox for
//     music processing" SMC 2010
type ChromaCQT struct {
	sampleRate    int
	hopSize       int
	minFreq       float64 // tuned lowest bin frequency
	octaves       int
	binsPerOctave int
	tuningFreq    float64
	qFactor       float64

	fftSize    int
	kernels    []sparseKernel // top octave, lowest bin first
	pitchClass []int          // pitch class of each bin within an octave

	fft       *spectral.FFT
	decimator *filters.HalfbandDecimator
	logger    logging.Logger
}

// sparseKernel holds the non-negligible entries of one conjugated,
// FFT-size-normalized spectral kernel
type sparseKernel struct {
	index  []int
	weight []complex128
}

// NewChromaCQT designs the constant-Q kernels for the given sample rate.
//
// Parameters:
//   - sampleRate: Sample rate in Hz
//   - hopSize: Samples between frame centers
//   - minFreq: Lowest bin frequency at A4 = 440 Hz (C1 for the default)
//   - octaves: Number of octaves; reduced until the top bin fits below Nyquist
//   - binsPerOctave: A multiple of 12
//   - tuningFreq: A4 reference in Hz; all bin frequencies scale with it
func NewChromaCQT(sampleRate, hopSize int, minFreq float64, octaves, binsPerOctave int, tuningFreq float64) (*ChromaCQT, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d: %w", sampleRate, ErrInvalidInput)
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive, got %d: %w", hopSize, ErrInvalidInput)
	}
	if minFreq <= 0 || tuningFreq <= 0 {
		return nil, fmt.Errorf("minimum frequency and tuning must be positive: %w", ErrInvalidInput)
	}
	if binsPerOctave <= 0 || binsPerOctave%PitchClasses != 0 {
		return nil, fmt.Errorf("bins per octave must be a positive multiple of 12, got %d: %w", binsPerOctave, ErrInvalidInput)
	}
	if octaves <= 0 {
		return nil, fmt.Errorf("octave count must be positive, got %d: %w", octaves, ErrInvalidInput)
	}

	fmin := minFreq * tuningFreq / DefaultTuning
	limit := nyquistHeadroom * float64(sampleRate) / 2.0
	for octaves > 0 && fmin*math.Pow(2, float64(octaves)) > limit {
		octaves--
	}
	if octaves == 0 {
		return nil, fmt.Errorf("sample rate %d too low for minimum frequency %.2f Hz: %w", sampleRate, fmin, ErrInvalidInput)
	}

	cqt := &ChromaCQT{
		sampleRate:    sampleRate,
		hopSize:       hopSize,
		minFreq:       fmin,
		octaves:       octaves,
		binsPerOctave: binsPerOctave,
		tuningFreq:    tuningFreq,
		qFactor:       1.0 / (math.Pow(2, 1.0/float64(binsPerOctave)) - 1.0),
		fft:           spectral.NewFFT(),
		decimator:     filters.NewDefaultHalfbandDecimator(),
		logger: logging.WithFields(logging.Fields{
			"component": "chroma_cqt",
		}),
	}

	cqt.computePitchClasses()
	cqt.computeKernels()

	return cqt, nil
}

// NewChromaCQTDefault creates a CQT chromagram with standard musical settings
// (C1..C8, 36 bins per octave, hop 512, A4 = 440 Hz)
func NewChromaCQTDefault(sampleRate int) (*ChromaCQT, error) {
	return NewChromaCQT(
		sampleRate,
		DefaultHopSize,
		DefaultMinFreq,
		DefaultOctaves,
		DefaultBinsPerOctave,
		DefaultTuning,
	)
}

// computePitchClasses maps every bin within an octave to its pitch class.
// Each semitone owns the bin on its center plus the neighbours within half a
// semitone.
func (cqt *ChromaCQT) computePitchClasses() {
	binsPerSemitone := cqt.binsPerOctave / PitchClasses
	baseNote := int(math.Round(common.FrequencyToMIDI(cqt.minFreq, cqt.tuningFreq)))

	cqt.pitchClass = make([]int, cqt.binsPerOctave)
	for b := range cqt.binsPerOctave {
		semitone := (b + binsPerSemitone/2) / binsPerSemitone
		cqt.pitchClass[b] = common.PitchClass(baseNote + semitone)
	}
}

// computeKernels builds the sparse spectral kernels for the top octave
func (cqt *ChromaCQT) computeKernels() {
	sr := float64(cqt.sampleRate)
	topMin := cqt.minFreq * math.Pow(2, float64(cqt.octaves-1))

	// The lowest bin has the longest kernel
	cqt.fftSize = common.NextPowerOfTwo(int(math.Ceil(cqt.qFactor * sr / topMin)))
	cqt.kernels = make([]sparseKernel, cqt.binsPerOctave)

	for b := range cqt.binsPerOctave {
		freq := topMin * math.Pow(2, float64(b)/float64(cqt.binsPerOctave))
		length := min(int(math.Ceil(cqt.qFactor*sr/freq)), cqt.fftSize)

		hann := windowing.NewHann(length, false)
		coeffs := hann.Coefficients()
		norm := hann.Sum()

		// Time-domain kernel centered in the FFT frame
		kernel := make([]complex128, cqt.fftSize)
		start := cqt.fftSize/2 - length/2
		for n := range length {
			t := float64(n - length/2)
			phase := 2.0 * math.Pi * freq * t / sr
			kernel[start+n] = complex(coeffs[n]/norm, 0) * cmplx.Exp(complex(0, phase))
		}

		spectrum := cqt.fft.ComputeComplex(kernel)

		peak := 0.0
		for _, v := range spectrum {
			peak = math.Max(peak, cmplx.Abs(v))
		}

		var sk sparseKernel
		scale := complex(1.0/float64(cqt.fftSize), 0)
		for j, v := range spectrum {
			if cmplx.Abs(v) >= sparsityThreshold*peak {
				sk.index = append(sk.index, j)
				sk.weight = append(sk.weight, cmplx.Conj(v)*scale)
			}
		}
		cqt.kernels[b] = sk
	}
}

// Compute returns the chromagram of a mono signal
func (cqt *ChromaCQT) Compute(signal []float64) (*Matrix, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty waveform: %w", ErrInvalidInput)
	}

	numFrames := 1 + len(signal)/cqt.hopSize
	result := NewMatrix(numFrames, cqt.hopSize, cqt.sampleRate)

	// levels[o] is the signal at sampleRate / 2^o, analysed by the top-octave
	// kernels for octave (octaves-1-o)
	levels := make([][]float64, cqt.octaves)
	levels[0] = signal
	for o := 1; o < cqt.octaves; o++ {
		levels[o] = cqt.decimator.Decimate(levels[o-1])
	}

	workers := runtime.NumCPU()
	var g errgroup.Group
	g.SetLimit(workers)

	for start := 0; start < numFrames; start += framesPerJob {
		end := min(start+framesPerJob, numFrames)
		g.Go(func() error {
			frame := make([]float64, cqt.fftSize)
			for t := start; t < end; t++ {
				cqt.computeFrame(levels, t, frame, &result.Data[t])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chroma frames: %w", err)
	}

	cqt.logger.Debug("Computed CQT chromagram", logging.Fields{
		"frames":   numFrames,
		"octaves":  cqt.octaves,
		"fft_size": cqt.fftSize,
	})

	return result, nil
}

// computeFrame accumulates every octave level into one chroma column and
// max-normalizes it
func (cqt *ChromaCQT) computeFrame(levels [][]float64, t int, frame []float64, col *Vector) {
	half := cqt.fftSize / 2

	for o, level := range levels {
		center := int(math.Round(float64(t*cqt.hopSize) / float64(int(1)<<o)))
		startIdx := center - half

		silent := true
		for i := range frame {
			pos := startIdx + i
			if pos >= 0 && pos < len(level) {
				frame[i] = level[pos]
				if frame[i] != 0 {
					silent = false
				}
			} else {
				frame[i] = 0
			}
		}
		if silent {
			continue
		}

		spectrum := cqt.fft.Compute(frame)
		for b, kernel := range cqt.kernels {
			var acc complex128
			for i, j := range kernel.index {
				acc += spectrum[j] * kernel.weight[i]
			}
			col[cqt.pitchClass[b]] += cmplx.Abs(acc)
		}
	}

	peak := floats.Max(col[:])
	if peak > minNormalizable {
		floats.Scale(1.0/peak, col[:])
	}
}

// Octaves returns the number of octaves actually analysed
func (cqt *ChromaCQT) Octaves() int {
	return cqt.octaves
}

// HopSize returns the frame hop in samples
func (cqt *ChromaCQT) HopSize() int {
	return cqt.hopSize
}

// BinFrequency returns the center frequency of CQT bin k counted from the
// lowest bin
func (cqt *ChromaCQT) BinFrequency(k int) float64 {
	return cqt.minFreq * math.Pow(2, float64(k)/float64(cqt.binsPerOctave))
}
