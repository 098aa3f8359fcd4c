package logging

import (
	"context"
	"maps"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFatalFlush = 2 * time.Second

// SentryLogger forwards to another Logger and mirrors every entry into Sentry:
// Debug/Info/Warn become breadcrumbs, Error and Fatal are captured as
// exceptions. When no Sentry client is bound it only forwards.
type SentryLogger struct {
	next   Logger
	hub    *sentry.Hub
	fields Fields
}

// NewSentryLogger wraps next. A nil hub means sentry.CurrentHub().
func NewSentryLogger(next Logger, hub *sentry.Hub) *SentryLogger {
	if next == nil {
		next = &NoOpLogger{}
	}
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryLogger{next: next, hub: hub, fields: make(Fields)}
}

func (s *SentryLogger) merged(fields []Fields) map[string]any {
	all := make(map[string]any, len(s.fields))
	maps.Copy(all, s.fields)
	for _, f := range fields {
		maps.Copy(all, f)
	}
	return all
}

func (s *SentryLogger) breadcrumb(level sentry.Level, kind, msg string, fields []Fields) {
	if s.hub.Client() == nil {
		return
	}
	s.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Type:     kind,
		Category: "log",
		Message:  msg,
		Data:     s.merged(fields),
		Level:    level,
	}, nil)
}

func (s *SentryLogger) capture(level sentry.Level, err error, msg string, fields []Fields) {
	if s.hub.Client() == nil {
		return
	}
	data := s.merged(fields)
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetContext("log", sentry.Context{"message": msg, "fields": data})
		if requestID, ok := data["request_id"].(string); ok {
			scope.SetTag("request_id", requestID)
		}
		if component, ok := data["component"].(string); ok {
			scope.SetTag("component", component)
		}
		if err != nil {
			s.hub.CaptureException(err)
		} else {
			s.hub.CaptureMessage(msg)
		}
	})
}

func (s *SentryLogger) Debug(msg string, fields ...Fields) {
	s.breadcrumb(sentry.LevelDebug, "debug", msg, fields)
	s.next.Debug(msg, fields...)
}

func (s *SentryLogger) Info(msg string, fields ...Fields) {
	s.breadcrumb(sentry.LevelInfo, "info", msg, fields)
	s.next.Info(msg, fields...)
}

func (s *SentryLogger) Warn(msg string, fields ...Fields) {
	s.breadcrumb(sentry.LevelWarning, "warning", msg, fields)
	s.next.Warn(msg, fields...)
}

func (s *SentryLogger) Error(err error, msg string, fields ...Fields) {
	s.capture(sentry.LevelError, err, msg, fields)
	s.next.Error(err, msg, fields...)
}

func (s *SentryLogger) Fatal(err error, msg string, fields ...Fields) {
	s.capture(sentry.LevelFatal, err, msg, fields)
	s.hub.Flush(sentryFatalFlush)
	s.next.Fatal(err, msg, fields...)
}

func (s *SentryLogger) WithFields(fields Fields) Logger {
	newFields := make(Fields)
	maps.Copy(newFields, s.fields)
	maps.Copy(newFields, fields)
	return &SentryLogger{next: s.next.WithFields(fields), hub: s.hub, fields: newFields}
}

func (s *SentryLogger) WithContext(ctx context.Context) Logger {
	hub := s.hub
	if ctxHub := sentry.GetHubFromContext(ctx); ctxHub != nil {
		hub = ctxHub
	}
	out := &SentryLogger{next: s.next, hub: hub, fields: s.fields}
	if fields, ok := FieldsFromContext(ctx); ok {
		return out.WithFields(fields)
	}
	return out
}

func (s *SentryLogger) SetLevel(level Level) {
	s.next.SetLevel(level)
}
