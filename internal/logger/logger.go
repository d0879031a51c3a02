// Package logger wraps zerolog.Logger for the savehaven CLI.
//
// Terminal output stays with the ui package; the logger records per-game
// decisions and failures to a JSON log file so a batch can be audited after
// the fact. Pass *Logger by pointer and use Nop in tests.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New builds a logger writing JSON lines to w.
func New(w io.Writer, level zerolog.Level) *Logger {
	logger := zerolog.New(w).Level(level).With().
		Timestamp().
		Logger()

	return &Logger{logger}
}

// NewFileLogger opens (or creates) the log file at path and appends to it. The
// returned closer releases the file. When the file cannot be opened, output
// falls back to stderr at warn level so the CLI keeps working.
func NewFileLogger(path string, verbose bool) (*Logger, io.Closer) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			return New(f, level), f
		}
	}

	return New(zerolog.ConsoleWriter{Out: os.Stderr}, zerolog.WarnLevel), io.NopCloser(nil)
}

// Nop returns a *Logger that discards all log output.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// ForGame returns a child logger tagged with the game name.
func (l *Logger) ForGame(name string) *Logger {
	return &Logger{l.With().Str("game", name).Logger()}
}
