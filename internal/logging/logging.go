// Package logging builds the zap logger shared across Brain's components.
//
// A single *zap.Logger is constructed once at boot and handed down through
// the component bundle; nothing in the rest of the tree reaches for a
// package-level global. Each component attaches its own fixed "component"
// field via For, so log lines stay uniformly greppable.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Dev selects the human-readable console encoder at debug level.
	// Production mode (JSON, info level) is used when false.
	Dev bool `yaml:"dev"`
	// Level overrides the default level ("debug", "info", "warn", "error").
	// Empty means use the Dev-implied default.
	Level string `yaml:"level"`
}

// New builds the base logger for the process.
func New(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Dev {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

// For returns a child logger tagged with the given component name.
func For(base *zap.Logger, component string) *zap.Logger {
	return base.With(zap.String("component", component))
}

// Timer records the elapsed time of an operation, logging at debug on
// completion and at warn if it crosses the slow threshold.
type Timer struct {
	log       *zap.Logger
	op        string
	start     time.Time
	slowAfter time.Duration
}

// StartTimer begins timing op. slowAfter of zero disables the warn escalation.
func StartTimer(log *zap.Logger, op string, slowAfter time.Duration) *Timer {
	return &Timer{log: log, op: op, start: time.Now(), slowAfter: slowAfter}
}

// Stop records the elapsed duration.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	if t.slowAfter > 0 && elapsed > t.slowAfter {
		t.log.Warn("slow operation", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
		return
	}
	t.log.Debug("operation complete", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
}
