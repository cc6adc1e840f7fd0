package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/shapes"
)

type HealthController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func (h *HealthController) Get(c *gin.Context) {
	status := http.StatusOK
	store := "ok"
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status = http.StatusServiceUnavailable
		store = "unavailable"
	}
	c.JSON(status, gin.H{
		"service":        h.Cfg.ServiceName,
		"environment":    h.Cfg.Environment,
		"store":          store,
		"signed":         h.Cfg.ModuleHMACSecret != "",
		"shape_priority": shapes.DefaultPriority,
	})
}
