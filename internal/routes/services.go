package routes

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/client"
	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/pipeline"
	"github.com/felman/modulos_backend/internal/probe"
	"github.com/felman/modulos_backend/internal/repository"
	"github.com/felman/modulos_backend/internal/utils"
	"github.com/felman/modulos_backend/internal/viewer"
	"github.com/felman/modulos_backend/internal/ws"
)

// Services holds the long-lived collaborators shared by the HTTP handlers.
type Services struct {
	Repo     repository.ModuleRepository
	Pipeline *pipeline.Pipeline
	Viewers  *viewer.Registry
	Hub      *ws.ViewerHub
	Prober   *probe.Prober
	Log      *zap.Logger
}

// NewServices wires the module repository, the fetch pipeline, the viewer
// registry and the realtime hub. The caller runs Hub and closes Viewers.
func NewServices(db *gorm.DB, cfg *config.Config, log *zap.Logger) *Services {
	var sealer repository.Sealer
	if box := utils.NewSecretBox(cfg.DBConfigSecret); box != nil {
		sealer = box
	}
	repo := repository.NewGormModules(db, sealer)
	pipe := pipeline.New(client.New(client.WithLogger(log)), nil, log)
	hub := ws.NewViewerHub(log)

	viewers := viewer.NewRegistry(cfg.ViewerTTL, func(moduleID string) *viewer.Viewer {
		return viewer.New(moduleID, repo, pipe, viewer.Options{Timeout: cfg.DataFetchTimeout, Log: log})
	}, hub)

	return &Services{
		Repo:     repo,
		Pipeline: pipe,
		Viewers:  viewers,
		Hub:      hub,
		Prober:   probe.New(cfg.ProbeTimeout, cfg.ProbeAttempts, cfg.ProbeWorkers, log),
		Log:      log,
	}
}
