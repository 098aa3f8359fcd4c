package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf)
	logger.SetLevel(WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
}

func TestDefaultLogger_FieldsAreSortedAndMerged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf).WithFields(Fields{"component": "chroma"})

	logger.Error(errors.New("boom"), "profile failed", Fields{"frames": 3})

	assert.Contains(t, buf.String(), "[ERROR] profile failed: boom {component=chroma frames=3}")
}

func TestDefaultLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithFields(context.Background(), Fields{"request_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"stage": "key"})

	NewWriterLogger(&buf).WithContext(ctx).Info("stage done")

	assert.Contains(t, buf.String(), "request_id=abc")
	assert.Contains(t, buf.String(), "stage=key")
}

func TestDefaultLogger_FatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal(errors.New("bad"), "cannot start")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL] cannot start: bad")
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}

func TestSentryLogger_ForwardsWithoutClient(t *testing.T) {
	var buf bytes.Buffer
	hub := sentry.NewHub(nil, sentry.NewScope())
	logger := NewSentryLogger(NewWriterLogger(&buf), hub).WithFields(Fields{"component": "api"})

	logger.Warn("slow request")
	logger.Error(errors.New("decode"), "analysis failed")

	out := buf.String()
	assert.Contains(t, out, "[WARN] slow request {component=api}")
	assert.Contains(t, out, "[ERROR] analysis failed: decode {component=api}")
}
