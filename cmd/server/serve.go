package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/database"
	"github.com/felman/modulos_backend/internal/routes"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default).",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := bootstrap()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := routes.NewServices(e.db, e.cfg, e.log)
	defer svc.Viewers.Close()

	if err := database.FixLegacyModules(ctx, e.db, svc.Repo, e.log); err != nil {
		e.log.Error("legacy module fix failed", zap.Error(err))
		return err
	}
	if e.cfg.SeedExamples {
		if err := database.SeedExampleModules(ctx, e.db, svc.Repo, e.cfg.SeedModuleURL, e.log); err != nil {
			e.log.Error("module seed failed", zap.Error(err))
			return err
		}
	}

	go svc.Hub.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	if e.cfg.Environment != config.ReleaseMode {
		r.Use(gin.Logger())
	}
	routes.Register(r, e.db, e.cfg, svc)

	srv := &http.Server{
		Addr:              ":" + e.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		e.log.Info("HTTP: server being started...", zap.String("port", e.cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			e.log.Error("server exited with error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
