// Package log configures the process-wide zerolog logger and adapts it to the
// key/value logger interface used by the rule host.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every entry
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "carerules").Logger()
)

// Configure replaces the global logger.
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	service := cfg.Service
	if service == "" {
		service = "carerules"
	}

	l := zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
	mu.Lock()
	base = l
	mu.Unlock()
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// KV adapts a zerolog logger to Debug/Info/Warn/Error(msg, keyvals...).
type KV struct {
	l zerolog.Logger
}

// Core returns a key/value adapter for component, suitable for
// core.WithLogger.
func Core(component string) *KV {
	return &KV{l: WithComponent(component)}
}

// NewKV wraps an existing zerolog logger.
func NewKV(l zerolog.Logger) *KV { return &KV{l: l} }

// Debug logs at debug level.
func (k *KV) Debug(msg string, args ...any) { k.l.Debug().Fields(args).Msg(msg) }

// Info logs at info level.
func (k *KV) Info(msg string, args ...any) { k.l.Info().Fields(args).Msg(msg) }

// Warn logs at warn level.
func (k *KV) Warn(msg string, args ...any) { k.l.Warn().Fields(args).Msg(msg) }

// Error logs at error level.
func (k *KV) Error(msg string, args ...any) { k.l.Error().Fields(args).Msg(msg) }
