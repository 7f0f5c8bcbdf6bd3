// Package obslog is a thin wrapper around zap providing one named logger
// per package, with per-package level overrides via environment variables.
package obslog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root = func() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		os.Stderr,
		zap.DebugLevel,
	)
	return zap.New(core)
}()

// New returns a named logger for pkg. By convention each package declares:
//
//	var log = obslog.New("dataplane")
func New(pkg string) *zap.Logger {
	return root.Named(pkg).
		WithOptions(zap.IncreaseLevel(zap.NewAtomicLevelAt(parseLevel(pkg))))
}

// GetLevel returns the configured log level letter for pkg, checking
// FABRICPROBE_LOG_<pkg> before falling back to FABRICPROBE_LOG.
func GetLevel(pkg string) rune {
	lvl, ok := os.LookupEnv("FABRICPROBE_LOG_" + pkg)
	if !ok {
		lvl, ok = os.LookupEnv("FABRICPROBE_LOG")
	}
	if !ok || len(lvl) == 0 {
		return 0
	}
	return rune(lvl[0])
}

func parseLevel(pkg string) zapcore.Level {
	switch GetLevel(pkg) {
	case 'V', 'D':
		return zapcore.DebugLevel
	case 'I':
		return zapcore.InfoLevel
	case 'W':
		return zapcore.WarnLevel
	case 'E':
		return zapcore.ErrorLevel
	case 'F', 'N':
		return zapcore.DPanicLevel
	}
	return zapcore.InfoLevel
}
