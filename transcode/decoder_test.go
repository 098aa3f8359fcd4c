package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToFloat64(t *testing.T) {
	want := []float64{0, 0.5, -1, math.Pi}
	raw := make([]byte, 0, len(want)*8+3)
	for _, v := range want {
		raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(v))
	}
	raw = append(raw, 1, 2, 3) // partial trailing sample

	assert.Equal(t, want, BytesToFloat64(raw))
	assert.Nil(t, BytesToFloat64([]byte{1, 2, 3}))
}

func TestParseFFprobeOutput(t *testing.T) {
	probe := []byte(`{
		"streams": [{
			"index": 0,
			"codec_name": "mp3",
			"codec_long_name": "MP3 (MPEG audio layer 3)",
			"codec_type": "audio",
			"sample_rate": "44100",
			"channels": 2,
			"duration": "185.051429",
			"bit_rate": "320000"
		}]
	}`)

	meta, err := ParseFFprobeOutput(probe)
	require.NoError(t, err)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "mp3", meta.Codec)
	assert.InDelta(t, 185.051429, meta.Duration, 1e-9)
	assert.Equal(t, 320000, meta.Bitrate)
	assert.Equal(t, "MP3 (MPEG audio layer 3)", meta.Format)
}

func TestParseFFprobeOutput_Errors(t *testing.T) {
	tests := map[string]string{
		"invalid json": `{"streams": [`,
		"no streams":   `{"streams": []}`,
		"video stream": `{"streams": [{"codec_type": "video", "channels": 0}]}`,
		"no channels":  `{"streams": [{"codec_type": "audio", "sample_rate": "8000"}]}`,
	}

	for name, probe := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFFprobeOutput([]byte(probe))
			assert.Error(t, err)
		})
	}
}

func TestParseFFprobeOutput_MissingOptionalFields(t *testing.T) {
	meta, err := ParseFFprobeOutput([]byte(`{"streams": [{"codec_type": "audio", "channels": 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 0.0, meta.Duration)
	assert.Equal(t, 0, meta.Bitrate)
}

func TestBuildFFmpegArgs(t *testing.T) {
	d := NewDecoder(nil)

	args := d.buildFFmpegArgs(&AudioMetadata{SampleRate: 44100, Channels: 2})
	assert.Equal(t, "1", args[slices.Index(args, "-ac")+1])
	assert.Equal(t, "22050", args[slices.Index(args, "-ar")+1])
	assert.Equal(t, "120.000", args[slices.Index(args, "-t")+1])
	assert.Equal(t, "aresample=resampler=soxr:precision=20", args[slices.Index(args, "-af")+1])

	cfg := DefaultDecoderConfig()
	cfg.MaxDuration = 0
	cfg.NormalizationMethod = "dynaudnorm"
	args = NewDecoder(cfg).buildFFmpegArgs(&AudioMetadata{SampleRate: 22050, Channels: 1})
	assert.NotContains(t, args, "-t")
	assert.Equal(t, "dynaudnorm=p=0.95:m=10:s=12", args[slices.Index(args, "-af")+1])
}

func TestProcessFFmpegOutput(t *testing.T) {
	d := NewDecoder(nil)

	raw := make([]byte, 0, 22050*8)
	for range 22050 {
		raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(0.25))
	}

	audio, err := d.processFFmpegOutput(raw, &AudioMetadata{SampleRate: 44100, Channels: 2, Codec: "flac", Duration: 300}, "song.flac", d.logger)
	require.NoError(t, err)
	assert.Len(t, audio.PCM, 22050)
	assert.Equal(t, time.Second, audio.Duration)
	assert.Equal(t, "audio/flac", audio.Metadata.ContentType)
	assert.True(t, audio.Metadata.Truncated)

	_, err = d.processFFmpegOutput(nil, &AudioMetadata{}, "", d.logger)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestContentTypeFromCodec(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFromCodec("mp3"))
	assert.Equal(t, "audio/wav", ContentTypeFromCodec("pcm_s16le"))
	assert.Equal(t, "audio/unknown", ContentTypeFromCodec("alac"))
}

// fakeTools answers ffprobe with a mono mp3 stream and ffmpeg with n samples
// of 0.5, recording each call
type fakeTools struct {
	samples int
	calls   [][]string
	stdin   [][]byte
}

func (f *fakeTools) run(_ context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	f.stdin = append(f.stdin, stdin)

	switch name {
	case "ffprobe":
		return []byte(`{"streams": [{"codec_type": "audio", "codec_name": "mp3", "sample_rate": "44100", "channels": 1, "duration": "1.0"}]}`), nil
	case "ffmpeg":
		raw := make([]byte, 0, f.samples*8)
		for range f.samples {
			raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(0.5))
		}
		return raw, nil
	}
	return nil, errors.New("unexpected tool " + name)
}

func TestDecoder_DecodeReader(t *testing.T) {
	tools := &fakeTools{samples: 22050}
	d := NewDecoder(nil)
	d.SetRunner(tools.run)

	input := []byte("ID3 not really an mp3")
	audio, err := d.DecodeReader(context.Background(), bytes.NewReader(input))
	require.NoError(t, err)

	require.Len(t, tools.calls, 2)
	assert.Equal(t, "ffprobe", tools.calls[0][0])
	assert.Equal(t, "pipe:0", tools.calls[0][len(tools.calls[0])-1])
	assert.Equal(t, []string{"ffmpeg", "-i", "pipe:0"}, tools.calls[1][:3])
	assert.Equal(t, "pipe:1", tools.calls[1][len(tools.calls[1])-1])
	assert.Equal(t, input, tools.stdin[0])
	assert.Equal(t, input, tools.stdin[1])

	assert.Len(t, audio.PCM, 22050)
	assert.Equal(t, 22050, audio.SampleRate)
	assert.Equal(t, "audio/mpeg", audio.Metadata.ContentType)
	assert.Equal(t, "", audio.Metadata.Source)
	assert.False(t, audio.Metadata.Truncated)
}

func TestDecoder_DecodeReader_Errors(t *testing.T) {
	d := NewDecoder(nil)
	d.SetRunner((&fakeTools{samples: 0}).run)

	_, err := d.DecodeReader(context.Background(), bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyAudio)

	_, err = d.DecodeReader(context.Background(), bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, ErrEmptyAudio, "ffmpeg produced no samples")

	failing := NewDecoder(nil)
	failing.SetRunner(func(context.Context, string, []string, []byte) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	_, err = failing.DecodeReader(context.Background(), bytes.NewReader([]byte("x")))
	assert.ErrorContains(t, err, "ffprobe failed")
}

func TestDecoder_DecodeFile(t *testing.T) {
	tools := &fakeTools{samples: 100}
	d := NewDecoder(nil)
	d.SetRunner(tools.run)

	audio, err := d.DecodeFile(context.Background(), "song.mp3")
	require.NoError(t, err)
	require.Len(t, tools.calls, 2)
	assert.Equal(t, "song.mp3", tools.calls[0][len(tools.calls[0])-1])
	assert.Equal(t, []string{"ffmpeg", "-i", "song.mp3"}, tools.calls[1][:3])
	assert.Nil(t, tools.stdin[1])
	assert.Equal(t, "song.mp3", audio.Metadata.Source)
	assert.Len(t, audio.PCM, 100)

	require.NoError(t, d.CheckAvailability(context.Background()))
}
