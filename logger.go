package tautan

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface used by the client.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: l}
}

// NewSimpleLogger logs human-readable lines to stderr at debug level.
func NewSimpleLogger() *ZerologLogger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return NewZerologLogger(zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger())
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(l.log.Debug(), msg, keysAndValues)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	l.emit(l.log.Info(), msg, keysAndValues)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(l.log.Warn(), msg, keysAndValues)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	l.emit(l.log.Error(), msg, keysAndValues)
}

func (l *ZerologLogger) emit(ev *zerolog.Event, msg string, keysAndValues []interface{}) {
	if ev == nil {
		return
	}
	if len(keysAndValues)%2 != 0 {
		keysAndValues = append(keysAndValues, "(MISSING)")
	}
	ev.Fields(keysAndValues).Msg(msg)
}
