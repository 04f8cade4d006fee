// Package logging configures the process-wide zerolog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"go.opentelemetry.io/otel/trace"
)

// LogFormat selects how entries are encoded
type LogFormat string

const (
	FormatJSON    LogFormat = "json"
	FormatConsole LogFormat = "console"
)

// LogLevel is the lowest level written
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config contains logger configuration
type Config struct {
	Level  LogLevel
	Format LogFormat

	// Adds the file and line of the log call
	IncludeCaller bool

	// Marshals pkg/errors stacks attached to logged errors
	IncludeStacktrace bool

	// Adds trace_id and span_id to events logged with a span context, see
	// zerolog.Event.Ctx
	IncludeTraceContext bool

	// Defaults to os.Stderr
	Output io.Writer

	// Fields added to every entry
	GlobalFields map[string]string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Level:               LevelInfo,
		Format:              FormatJSON,
		IncludeCaller:       true,
		IncludeStacktrace:   true,
		IncludeTraceContext: true,
		Output:              os.Stderr,
		GlobalFields:        map[string]string{},
	}
}

// Setup builds a logger from config and installs it as the global logger
func Setup(config Config) error {
	level, err := parseLevel(config.Level)
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if config.IncludeStacktrace {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	}

	log.Logger = New(config)
	zerolog.SetGlobalLevel(level)
	return nil
}

// New builds a logger from config without touching global state. The
// level is left to the caller.
func New(config Config) zerolog.Logger {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	if config.Format == FormatConsole {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	builder := zerolog.New(output).With().Timestamp()
	if config.IncludeCaller {
		builder = builder.Caller()
	}
	for k, v := range config.GlobalFields {
		builder = builder.Str(k, v)
	}

	logger := builder.Logger()
	if config.IncludeTraceContext {
		logger = logger.Hook(TraceHook{})
	}
	return logger
}

// TraceHook adds the ids of the span carried by an event's context
type TraceHook struct{}

// Run implements zerolog.Hook
func (TraceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	if sc := trace.SpanContextFromContext(e.GetCtx()); sc.IsValid() {
		e.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
}

func parseLevel(level LogLevel) (zerolog.Level, error) {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel, nil
	case LevelInfo, "":
		return zerolog.InfoLevel, nil
	case LevelWarn:
		return zerolog.WarnLevel, nil
	case LevelError:
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// FromContext returns the logger stored in ctx by the HTTP middleware, or
// the global logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger := zerolog.Ctx(ctx); logger.GetLevel() != zerolog.Disabled {
		return *logger
	}
	return log.Logger
}

// WithContext returns a context with the given logger attached
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}
