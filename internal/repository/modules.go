// Package repository stores module definitions.
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/models"
)

var ErrNotFound = errors.New("module not found")

// ModuleRepository is the module registry.
type ModuleRepository interface {
	List(ctx context.Context, opts ListOptions) ([]models.ModuleDefinition, int64, error)
	Get(ctx context.Context, id string) (*models.ModuleDefinition, error)
	// Put creates the module when it has no id or the id is unknown, and
	// replaces the whole record otherwise. fechaCreacion is preserved.
	Put(ctx context.Context, def *models.ModuleDefinition) (*models.ModuleDefinition, error)
	Delete(ctx context.Context, id string) error
}

// Sealer protects secrets stored inside definitions.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type ListOptions struct {
	// Role filters to modules visible to that role; empty means no filter.
	Role    string
	Name    string
	SortBy  string
	SortDir string
	// Limit <= 0 returns every match.
	Limit  int
	Offset int
}

var allowedSorts = map[string]string{
	"nombre":             "name",
	"name":               "name",
	"created_at":         "created_at",
	"fechaCreacion":      "created_at",
	"updated_at":         "updated_at",
	"fechaActualizacion": "updated_at",
}

type GormModules struct {
	DB     *gorm.DB
	Sealer Sealer
}

func NewGormModules(db *gorm.DB, sealer Sealer) *GormModules {
	return &GormModules{DB: db, Sealer: sealer}
}

func (r *GormModules) List(ctx context.Context, opts ListOptions) ([]models.ModuleDefinition, int64, error) {
	sortCol, ok := allowedSorts[opts.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	sortDir := strings.ToUpper(opts.SortDir)
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "DESC"
	}

	q := r.DB.WithContext(ctx).Model(&models.ModuleDefinition{}).Order(sortCol + " " + sortDir).Order("id ASC")
	if name := strings.TrimSpace(opts.Name); name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}

	var all []models.ModuleDefinition
	if err := q.Find(&all).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list modules")
	}

	// rolesPermitidos is a JSON column; visibility is filtered here to stay
	// portable across postgres and sqlite.
	visible := make([]models.ModuleDefinition, 0, len(all))
	for i := range all {
		if opts.Role != "" && !all[i].VisibleTo(opts.Role) {
			continue
		}
		if err := r.open(&all[i]); err != nil {
			return nil, 0, err
		}
		visible = append(visible, all[i])
	}

	total := int64(len(visible))
	if opts.Limit > 0 {
		start := opts.Offset
		if start > len(visible) {
			start = len(visible)
		}
		end := start + opts.Limit
		if end > len(visible) {
			end = len(visible)
		}
		visible = visible[start:end]
	}
	return visible, total, nil
}

func (r *GormModules) Get(ctx context.Context, id string) (*models.ModuleDefinition, error) {
	var def models.ModuleDefinition
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get module %s", id)
	}
	if err := r.open(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *GormModules) Put(ctx context.Context, def *models.ModuleDefinition) (*models.ModuleDefinition, error) {
	rec := def.Clone()
	if err := r.seal(rec); err != nil {
		return nil, err
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.ID != "" {
			var existing models.ModuleDefinition
			err := tx.Select("id", "created_at").Where("id = ?", rec.ID).First(&existing).Error
			switch {
			case err == nil:
				rec.CreatedAt = existing.CreatedAt
				rec.UpdatedAt = time.Now()
				return tx.Save(rec).Error
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "put module")
	}
	if err := r.open(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *GormModules) Delete(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.ModuleDefinition{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete module %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormModules) seal(def *models.ModuleDefinition) error {
	if r.Sealer == nil || def.DBConfig == nil || def.DBConfig.Password == "" {
		return nil
	}
	sealed, err := r.Sealer.Seal(def.DBConfig.Password)
	if err != nil {
		return errors.Wrap(err, "seal dbConfig password")
	}
	def.DBConfig.Password = sealed
	return nil
}

func (r *GormModules) open(def *models.ModuleDefinition) error {
	if r.Sealer == nil || def.DBConfig == nil || def.DBConfig.Password == "" {
		return nil
	}
	plain, err := r.Sealer.Open(def.DBConfig.Password)
	if err != nil {
		return errors.Wrapf(err, "open dbConfig password of module %s", def.ID)
	}
	def.DBConfig.Password = plain
	return nil
}
