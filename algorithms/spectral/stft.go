package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTResult holds the magnitude spectrogram of a signal
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	Centered       bool        `json:"centered"`        // Frame t is centered on sample t*HopSize
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// FrameCount returns the number of frames produced for a signal of n samples
func FrameCount(n, windowSize, hopSize int, centered bool) int {
	if hopSize <= 0 || n <= 0 {
		return 0
	}
	if centered {
		return 1 + n/hopSize
	}
	if n < windowSize {
		return 0
	}
	return (n-windowSize)/hopSize + 1
}

// ComputeWithWindow computes a magnitude STFT with parallel frame processing.
// When centered is true the signal is treated as zero-padded by windowSize/2
// on both sides, so frame t is centered on sample t*hopSize and the frame
// grid lines up with the chroma frame grid.
func (s *STFT) ComputeWithWindow(signal []float64, windowSize, hopSize, sampleRate int, window Window, centered bool) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	numFrames := FrameCount(len(signal), windowSize, hopSize, centered)
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	offset := 0
	if centered {
		offset = windowSize / 2
	}

	freqBins := windowSize/2 + 1
	magnitude := make([][]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)
	errs := make(chan error, numWorkers)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				start := frameIdx*hopSize - offset
				for i := range windowSize {
					pos := start + i
					if pos >= 0 && pos < len(signal) {
						frameBuffer[i] = signal[pos]
					} else {
						frameBuffer[i] = 0
					}
				}

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errs <- err
						return
					}
				}

				fftResult := s.fft.Compute(frameBuffer)
				for i := range freqBins {
					magnitude[frameIdx][i] = cmplx.Abs(fftResult[i])
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)

	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("window frame: %w", err)
	}

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		Centered:       centered,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// getOptimalWorkerCount determines the optimal number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	// For medium workloads, use most CPUs
	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
