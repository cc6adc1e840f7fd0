package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/controllers"
	"github.com/felman/modulos_backend/internal/middleware"
	"github.com/felman/modulos_backend/internal/models"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, svc *Services) {
	// Controllers
	healthCtrl := &controllers.HealthController{DB: db, Cfg: cfg}
	moduleCtrl := &controllers.ModuleController{
		Repo:       svc.Repo,
		Viewers:    svc.Viewers,
		Hub:        svc.Hub,
		Prober:     svc.Prober,
		HMACSecret: cfg.ModuleHMACSecret,
		Log:        svc.Log,
	}
	adminCtrl := &controllers.ModuleAdminController{
		Repo:    svc.Repo,
		Viewers: svc.Viewers,
		Prober:  svc.Prober,
		Log:     svc.Log,
	}

	// Public
	r.GET("/api/v1/health", healthCtrl.Get)

	// Protected
	authMW := middleware.AuthMiddleware(middleware.AuthConfig{JWTSecret: cfg.JWTSecret})
	api := r.Group("/api/v1", authMW)
	{
		modules := api.Group("/modules")
		{
			modules.GET("", moduleCtrl.List)
			modules.GET("/:id", moduleCtrl.Get)
			modules.GET("/:id/view", moduleCtrl.View)
			modules.POST("/:id/view/refresh", moduleCtrl.Refresh)
			modules.GET("/:id/view/ws", moduleCtrl.Stream)
			modules.GET("/:id/probe", moduleCtrl.Probe)
		}

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/modules", adminCtrl.List)
			admin.POST("/modules", adminCtrl.Create)
			admin.POST("/modules/import", adminCtrl.Import)
			admin.GET("/modules/export", adminCtrl.Export)
			admin.GET("/modules/probe", adminCtrl.ProbeAll)
			admin.GET("/modules/:id", adminCtrl.Get)
			admin.PUT("/modules/:id", adminCtrl.Update)
			admin.DELETE("/modules/:id", adminCtrl.Delete)
		}
	}
}
