package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps the CLI level names onto zap levels.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}

// New returns a console logger on stderr configured with the given level string.
func New(level string) (logr.Logger, error) {
	logger, _, err := NewWithFile(level, os.Stderr, "")
	return logger, err
}

// NewWithFile returns a logger writing human-readable lines to console and, when
// logFile is set, JSON lines to that file. The returned closer syncs and closes
// the file; it is never nil.
func NewWithFile(level string, console io.Writer, logFile string) (logr.Logger, func() error, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return logr.Logger{}, noopClose, err
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), atomic),
	}

	closer := noopClose
	if path := strings.TrimSpace(logFile); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return logr.Logger{}, noopClose, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return logr.Logger{}, noopClose, fmt.Errorf("open log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		// The file always records debug output so failed runs can be diagnosed after the fact.
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zap.NewAtomicLevelAt(zapcore.DebugLevel)))
		closer = func() error {
			_ = f.Sync()
			return f.Close()
		}
	}

	opts := []zap.Option{zap.ErrorOutput(zapcore.AddSync(os.Stderr))}
	if zapLevel == zapcore.DebugLevel {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}
	zl := zap.New(zapcore.NewTee(cores...), opts...)
	return zapr.NewLogger(zl), closer, nil
}

func noopClose() error { return nil }
