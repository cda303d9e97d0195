// Package logger builds the process-wide *slog.Logger. Records are encoded
// by a zap core so output matches the rest of the platform's services.
package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and the encoding.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Name   string
	Output string // stdout (default), stderr or a file path
}

// New returns a slog.Logger backed by zap plus a func that flushes buffered
// entries. Call the flush func before the process exits.
func New(cfg Config) (*slog.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = normalizeFormat(cfg.Format)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	zapCfg.Sampling = nil

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	z, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building zap logger: %w", err)
	}

	return FromZap(z, cfg.Name), func() { _ = z.Sync() }, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger, name string) *slog.Logger {
	opts := []zapslog.HandlerOption{zapslog.WithCaller(true)}
	if name != "" {
		opts = append(opts, zapslog.WithName(name))
	}
	return slog.New(zapslog.NewHandler(z.Core(), opts...))
}

// Nop returns a logger that discards everything. Meant for tests.
func Nop() *slog.Logger {
	return FromZap(zap.NewNop(), "")
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}
