package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/logging"
)

type commandContext struct {
	envFileFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     ectologger.Logger
	syncLogger func() error
	configErr  error
}

func newCommandContext(envFileFlag *string) *commandContext {
	return &commandContext{envFileFlag: envFileFlag}
}

// ensureConfig loads configuration and builds the logger once per process
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var files []string
		if c.envFileFlag != nil && strings.TrimSpace(*c.envFileFlag) != "" {
			files = append(files, strings.TrimSpace(*c.envFileFlag))
		}
		cfg, err := config.Load(files...)
		if err != nil {
			c.configErr = err
			return
		}
		logger, syncLogger, err := logging.New(logging.Config{
			AppName: cfg.AppName,
			Level:   cfg.LogLevel,
			Pretty:  cfg.PrettyLogs,
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
		c.syncLogger = syncLogger
	})
	return c.config, c.configErr
}

func (c *commandContext) close() error {
	if c.syncLogger == nil {
		return nil
	}
	// stdout and stderr cannot be synced on every platform
	_ = c.syncLogger()
	return nil
}

// connect opens the ledger database and optionally brings its schema up to date
func (c *commandContext) connect(ctx context.Context, migrate bool) (database.DB, error) {
	db, err := database.Connect(ctx, c.config.Database(), c.logger)
	if err != nil {
		return nil, err
	}
	if !migrate {
		return db, nil
	}

	migrations := database.NewMigrationService(c.logger, &database.MigrationConfig{
		MigrationFolderPath: c.config.DatabaseMigrationFolderPath,
	})
	if err := migrations.Migrate(c.config.DatabaseName, db.SQL()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", c.config.DatabaseName, err)
	}
	return db, nil
}
