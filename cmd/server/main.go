package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/database"
	"github.com/felman/modulos_backend/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "modulos",
		Short:         "Custom module service: stores module definitions and renders their data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newImportCommand(),
		newExportCommand(),
		newRenderCommand(),
		newProbeCommand(),
		newTokenCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the store.
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap() (*env, error) {
	cfg := config.Load()

	switch cfg.Environment {
	case config.DebugMode:
		gin.SetMode(gin.DebugMode)
	case config.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Environment)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Error("database connection failed", zap.Error(err))
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		log.Error("database migration failed", zap.Error(err))
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Cleanup(e.log)
}
