package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/RyanBlaney/sonido-chords/logging"
)

// ErrEmptyAudio is returned when ffmpeg produced no samples
var ErrEmptyAudio = errors.New("no audio samples decoded")

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64       `json:"-"` // Raw PCM data, interleaved when Channels > 1
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	Duration   time.Duration   `json:"duration"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   *StreamMetadata `json:"metadata,omitempty"`
}

// StreamMetadata describes the source the audio was decoded from
type StreamMetadata struct {
	Source         string        `json:"source"`
	Format         string        `json:"format"`
	Codec          string        `json:"codec,omitempty"`
	Bitrate        int           `json:"bitrate,omitempty"`
	SampleRate     int           `json:"sample_rate,omitempty"` // of the source
	Channels       int           `json:"channels,omitempty"`    // of the source
	ContentType    string        `json:"content_type,omitempty"`
	SourceDuration time.Duration `json:"source_duration,omitempty"`
	Truncated      bool          `json:"truncated"` // MaxDuration cut the source short
	Timestamp      time.Time     `json:"timestamp"`
}

// AudioLoader loads a mono waveform at a known sample rate
type AudioLoader interface {
	DecodeFile(ctx context.Context, filename string) (*AudioData, error)
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration"`     // 0 decodes everything
	ResampleQuality  string        `json:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `json:"ffmpeg_path"`      // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"`     // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`          // Timeout for each ffmpeg/ffprobe run
	// Normalization: "" (none), "loudnorm" or "dynaudnorm"
	NormalizationMethod string  `json:"normalization_method"`
	TargetLUFS          float64 `json:"target_lufs"`
	TargetPeak          float64 `json:"target_peak"`
	LoudnessRange       float64 `json:"loudness_range"`
}

// DefaultDecoderConfig returns the analysis decode settings: mono 22050 Hz,
// first two minutes, no loudness normalization
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 22050,
		TargetChannels:   1,
		MaxDuration:      120 * time.Second,
		ResampleQuality:  "medium",
		FFmpegPath:       "ffmpeg",  // Assume in PATH
		FFprobePath:      "ffprobe", // Assume in PATH
		Timeout:          60 * time.Second,
		TargetLUFS:       -16.0,
		TargetPeak:       -1.0,
		LoudnessRange:    8.0,
	}
}

// Decoder handles audio decoding using FFmpeg
type Decoder struct {
	config *DecoderConfig
	runner CommandRunner
	logger logging.Logger
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"` // seconds, 0 when unknown
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		runner: execRunner,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// Config returns the decoder configuration
func (d *Decoder) Config() *DecoderConfig {
	return d.config
}

// DecodeFile probes and decodes an audio file
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})

	logger.Debug("Starting audio file decode")

	metadata, err := d.Probe(ctx, filename)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	args := append([]string{"-i", filename}, d.buildFFmpegArgs(metadata)...)
	args = append(args, "pipe:1")

	output, err := d.run(ctx, d.config.FFmpegPath, args, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	return d.processFFmpegOutput(output, metadata, filename, logger)
}

// DecodeReader decodes audio read from r, feeding it to ffprobe and ffmpeg
// on stdin. Containers that need seeking (mp4 with a trailing moov atom)
// may fail; DecodeFile handles those.
func (d *Decoder) DecodeReader(ctx context.Context, r io.Reader) (*AudioData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	logger := d.logger.WithFields(logging.Fields{
		"function":  "DecodeReader",
		"data_size": len(data),
	})

	probeArgs := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		"pipe:0",
	}
	probeOut, err := d.run(ctx, d.config.FFprobePath, probeArgs, data, logger)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	metadata, err := ParseFFprobeOutput(probeOut)
	if err != nil {
		return nil, err
	}

	args := append([]string{"-i", "pipe:0"}, d.buildFFmpegArgs(metadata)...)
	args = append(args, "pipe:1")

	output, err := d.run(ctx, d.config.FFmpegPath, args, data, logger)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	return d.processFFmpegOutput(output, metadata, "", logger)
}

// Probe uses ffprobe to read the first audio stream of a file
func (d *Decoder) Probe(ctx context.Context, filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		filename,
	}

	output, err := d.run(ctx, d.config.FFprobePath, args, nil, d.logger)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return ParseFFprobeOutput(output)
}

// CommandRunner runs an external tool, feeding stdin when non-nil, and
// returns its stdout
type CommandRunner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

func execRunner(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return nil, err
	}
	return output, nil
}

// SetRunner replaces the command runner (tests stub ffmpeg and ffprobe)
func (d *Decoder) SetRunner(runner CommandRunner) {
	d.runner = runner
}

// run executes a tool with the configured timeout and returns its stdout
func (d *Decoder) run(ctx context.Context, bin string, args []string, stdin []byte, logger logging.Logger) ([]byte, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	logger.Debug("Running command", logging.Fields{
		"command": bin,
		"args":    strings.Join(args, " "),
	})

	output, err := d.runner(ctx, bin, args, stdin)
	if err != nil {
		logger.Error(err, "Command failed", logging.Fields{
			"command": bin,
		})
		return nil, err
	}

	return output, nil
}

// ParseFFprobeOutput extracts audio metadata from ffprobe's JSON stream list
func ParseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	if !gjson.ValidBytes(jsonData) {
		return nil, fmt.Errorf("failed to parse ffprobe output: invalid json")
	}

	stream := gjson.GetBytes(jsonData, "streams.0")
	if !stream.Exists() {
		return nil, fmt.Errorf("no audio streams found")
	}

	// Validate that this is an audio stream
	if codecType := stream.Get("codec_type").String(); codecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", codecType)
	}

	// ffprobe reports sample_rate, duration and bit_rate as strings
	sampleRate, err := strconv.Atoi(stream.Get("sample_rate").String())
	if err != nil {
		sampleRate = 44100 // Fallback to common sample rate
	}

	duration, err := strconv.ParseFloat(stream.Get("duration").String(), 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.Get("bit_rate").String())
	if err != nil {
		bitrate = 0
	}

	channels := int(stream.Get("channels").Int())
	if channels <= 0 || channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   channels,
		Codec:      stream.Get("codec_name").String(),
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.Get("codec_long_name").String(),
	}, nil
}

// buildFFmpegArgs builds the ffmpeg output arguments from configuration and
// probed metadata
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{
		"-vn",         // No video
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(d.config.TargetChannels), // Target channels
		"-ar", strconv.Itoa(d.config.TargetSampleRate), // Target sample rate
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}

	var filters []string
	if metadata != nil && metadata.SampleRate != d.config.TargetSampleRate {
		switch d.config.ResampleQuality {
		case "fast":
			filters = append(filters, "aresample=resampler=soxr:precision=16")
		case "medium":
			filters = append(filters, "aresample=resampler=soxr:precision=20")
		case "high":
			filters = append(filters, "aresample=resampler=soxr:precision=28")
		}
	}
	if norm := d.buildNormalizationFilter(); norm != "" {
		filters = append(filters, norm)
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error")

	return args
}

// buildNormalizationFilter returns the ffmpeg loudness filter for the
// configured method, or "" for none
func (d *Decoder) buildNormalizationFilter() string {
	switch d.config.NormalizationMethod {
	case "loudnorm":
		// EBU R128 loudness normalization
		return fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f",
			d.config.TargetLUFS,
			d.config.TargetPeak,
			d.config.LoudnessRange)
	case "dynaudnorm":
		return "dynaudnorm=p=0.95:m=10:s=12"
	default:
		return ""
	}
}

// processFFmpegOutput converts ffmpeg's raw output into AudioData
func (d *Decoder) processFFmpegOutput(output []byte, input *AudioMetadata, source string, logger logging.Logger) (*AudioData, error) {
	samples := BytesToFloat64(output)
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	channels := max(1, d.config.TargetChannels)
	samplesPerChannel := len(samples) / channels
	duration := time.Duration(samplesPerChannel) * time.Second / time.Duration(d.config.TargetSampleRate)
	sourceDuration := time.Duration(input.Duration * float64(time.Second))

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"output_samples":     len(samples),
		"output_sample_rate": d.config.TargetSampleRate,
		"output_channels":    channels,
		"output_duration":    duration.Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   channels,
		Duration:   duration,
		Timestamp:  time.Now(),
		Metadata: &StreamMetadata{
			Source:         source,
			Format:         input.Format,
			Codec:          input.Codec,
			Bitrate:        input.Bitrate,
			SampleRate:     input.SampleRate,
			Channels:       input.Channels,
			ContentType:    ContentTypeFromCodec(input.Codec),
			SourceDuration: sourceDuration,
			Truncated:      d.config.MaxDuration > 0 && sourceDuration > d.config.MaxDuration,
			Timestamp:      time.Now(),
		},
	}, nil
}

// ContentTypeFromCodec maps an ffprobe codec name to a MIME type
func ContentTypeFromCodec(codec string) string {
	switch codec {
	case "aac":
		return "audio/aac"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "vorbis":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	default:
		if strings.HasPrefix(codec, "pcm_") {
			return "audio/wav"
		}
		return "audio/unknown"
	}
}

// BytesToFloat64 converts raw little-endian float64 bytes to samples. A
// trailing partial sample is dropped.
func BytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	if sampleCount == 0 {
		return nil
	}

	samples := make([]float64, sampleCount)
	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// CheckAvailability verifies that ffmpeg and ffprobe can be executed
func (d *Decoder) CheckAvailability(ctx context.Context) error {
	for _, bin := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		if _, err := d.runner(ctx, bin, []string{"-version"}, nil); err != nil {
			return fmt.Errorf("%s not available: %w", bin, err)
		}
	}
	return nil
}
