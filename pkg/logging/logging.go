// Package logging builds the service logger: an ectologger facade writing through zap.
package logging

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
)

type Config struct {
	AppName string
	Level   string
	Pretty  bool
}

// New returns the service logger and a flush function to call on shutdown
func New(cfg Config) (ectologger.Logger, func() error, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Pretty {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapConfig.Level = level
	zapConfig.DisableStacktrace = true

	base, err := zapConfig.Build(zap.Fields(zap.String("app", cfg.AppName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	// Messages carry their own level, fields and error; zap encodes the whole entry.
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		base.Info(cfg.AppName, zap.Any("entry", msg))
	})

	return logger, base.Sync, nil
}

// Nop discards every message
func Nop() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
