package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/repository"
)

// LegacyFixKey records the one-time corrective pass over stored modules.
const LegacyFixKey = "migration.legacy_modules_v1"

// RunOnce runs fn unless key is already recorded in app_configs, and records
// it afterwards. It reports whether fn ran.
func RunOnce(db *gorm.DB, key, description string, fn func() error) (bool, error) {
	var marker models.AppConfig
	err := db.Where("key = ?", key).First(&marker).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := fn(); err != nil {
		return false, err
	}
	marker = models.AppConfig{
		Key:         key,
		Value:       time.Now().UTC().Format(time.RFC3339),
		Description: description,
	}
	return true, db.Create(&marker).Error
}

// FixLegacyModules normalizes modules saved by older builders, once.
func FixLegacyModules(ctx context.Context, db *gorm.DB, repo repository.ModuleRepository, log *zap.Logger) error {
	ran, err := RunOnce(db, LegacyFixKey, "normalize legacy module definitions", func() error {
		fixed, err := repository.FixLegacy(ctx, repo)
		if err != nil {
			return err
		}
		log.Info("legacy modules normalized", zap.Int("fixed", fixed))
		return nil
	})
	if err != nil {
		return err
	}
	if !ran {
		log.Debug("legacy module fix already applied")
	}
	return nil
}

// SeedExampleModules stores a sample module when the registry is empty.
func SeedExampleModules(ctx context.Context, db *gorm.DB, repo repository.ModuleRepository, apiURL string, log *zap.Logger) error {
	var count int64
	if err := db.Model(&models.ModuleDefinition{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	examples := []models.ModuleDefinition{
		{
			Name:           "Pedidos pendientes",
			Icon:           "clipboard-list",
			ConnectionType: models.ConnectionAPI,
			APIRestURL:     apiURL,
			SQL:            "SELECT NoPedido, Cliente, FechaEntrega FROM Pedidos WHERE Estado = 'PENDIENTE'",
			AllowedRoles:   []string{models.RoleAll},
			View:           &models.ViewConfig{RecordsPerPage: 20},
		},
		{
			Name:            "Stock almacén",
			Icon:            "warehouse",
			ConnectionType:  models.ConnectionAPI,
			APIRestURL:      apiURL,
			MultipleQueries: true,
			Queries: []models.QueryDefinition{
				{ID: "perfiles", SQL: "SELECT Codigo, Descripcion, Stock FROM Perfiles"},
				{ID: "accesorios", SQL: "SELECT Codigo, Descripcion, Stock FROM Accesorios"},
			},
			PrimaryQueryID: "perfiles",
			AllowedRoles:   []string{"Almacen", "Oficina"},
		},
	}
	for i := range examples {
		if _, err := repo.Put(ctx, &examples[i]); err != nil {
			return err
		}
	}
	log.Info("seeded example modules", zap.Int("count", len(examples)))
	return nil
}
