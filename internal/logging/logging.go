// Package logging provides the default binkp.Logger backend: zerolog with
// optional file rotation via lumberjack.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the log sink. It is the collaborator spec §6 names the
// "log collaborator" — levels debug/info/warning/error/critical, messages
// carrying a session id.
type Config struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
	Console    bool   `yaml:"console" mapstructure:"console"`
}

// Logger is the zerolog-backed implementation of binkp.Logger.
type Logger struct {
	logger zerolog.Logger
	file   io.Closer
}

// New builds a Logger from cfg. A zero-value Config logs info-and-above to
// the console, matching the package's fallback behavior when no file
// sink is configured.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	l := &Logger{}

	if cfg.Console || cfg.File == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		l.file = rotator
		writers = append(writers, rotator)
	}

	var writer io.Writer
	switch len(writers) {
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	l.logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return l, nil
}

// Close releases the rotating file handle, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Debug(sessionID, format string, args ...interface{}) {
	l.logger.Debug().Str("session", sessionID).Msgf(format, args...)
}

func (l *Logger) Info(sessionID, format string, args ...interface{}) {
	l.logger.Info().Str("session", sessionID).Msgf(format, args...)
}

func (l *Logger) Warning(sessionID, format string, args ...interface{}) {
	l.logger.Warn().Str("session", sessionID).Msgf(format, args...)
}

func (l *Logger) Error(sessionID, format string, args ...interface{}) {
	l.logger.Error().Str("session", sessionID).Msgf(format, args...)
}

func (l *Logger) Critical(sessionID, format string, args ...interface{}) {
	l.logger.Error().Str("session", sessionID).Bool("critical", true).Msgf(format, args...)
}
