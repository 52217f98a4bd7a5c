package editor

import (
	"context"

	"github.com/rs/zerolog"
)

var editorLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

// Toaster shows short messages to the author.
type Toaster interface {
	Success(msg string)
	Error(msg string)
}

// ErrorReporter forwards unexpected failures to error tracking.
type ErrorReporter interface {
	Report(ctx context.Context, err error, fields map[string]string)
}

// LogToaster writes toasts to a logger, for headless use.
type LogToaster struct {
	Logger zerolog.Logger
}

func (t LogToaster) Success(msg string) {
	t.Logger.Info().Str("toast", "success").Msg(msg)
}

func (t LogToaster) Error(msg string) {
	t.Logger.Warn().Str("toast", "error").Msg(msg)
}

// LogReporter reports failures as error log lines.
type LogReporter struct {
	Logger zerolog.Logger
}

func (r LogReporter) Report(_ context.Context, err error, fields map[string]string) {
	ev := r.Logger.Error().Err(err)
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("Editor operation failed")
}
