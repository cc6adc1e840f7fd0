package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/probe"
	"github.com/felman/modulos_backend/internal/repository"
	"github.com/felman/modulos_backend/internal/viewer"
)

// redactedPassword is what clients get back in place of a stored password;
// sending it unchanged on update keeps the stored one.
const redactedPassword = "********"

// ModuleAdminController manages the module registry.
type ModuleAdminController struct {
	Repo    repository.ModuleRepository
	Viewers *viewer.Registry
	Prober  *probe.Prober
	Log     *zap.Logger
}

func (a *ModuleAdminController) List(c *gin.Context) {
	p := parseList(c)
	items, total, err := a.Repo.List(c.Request.Context(), p.options(""))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": redactAll(items), "meta": p.meta(total)})
}

func (a *ModuleAdminController) Get(c *gin.Context) {
	def, err := a.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, def.Redacted())
}

func (a *ModuleAdminController) Create(c *gin.Context) {
	var def models.ModuleDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if def.ID != "" {
		_, err := a.Repo.Get(ctx, def.ID)
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "module already exists"})
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			respondError(c, err)
			return
		}
	}
	if !a.prepare(c, &def) {
		return
	}
	saved, err := a.Repo.Put(ctx, &def)
	if err != nil {
		respondError(c, err)
		return
	}
	a.Log.Info("module created", zap.String("module_id", saved.ID), zap.String("nombre", saved.Name))
	c.JSON(http.StatusCreated, saved.Redacted())
}

// Update replaces the whole definition; fechaCreacion is kept.
func (a *ModuleAdminController) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	existing, err := a.Repo.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	var def models.ModuleDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def.ID = id
	if def.DBConfig != nil && def.DBConfig.Password == redactedPassword {
		def.DBConfig.Password = ""
		if existing.DBConfig != nil {
			def.DBConfig.Password = existing.DBConfig.Password
		}
	}
	if !a.prepare(c, &def) {
		return
	}
	saved, err := a.Repo.Put(ctx, &def)
	if err != nil {
		respondError(c, err)
		return
	}
	closed := a.Viewers.InvalidateModule(id)
	a.Log.Info("module updated", zap.String("module_id", id), zap.Int("viewers_closed", closed))
	c.JSON(http.StatusOK, saved.Redacted())
}

func (a *ModuleAdminController) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := a.Repo.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	a.Viewers.InvalidateModule(id)
	a.Log.Info("module deleted", zap.String("module_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Import accepts the on-device storage value: a JSON list of modules.
func (a *ModuleAdminController) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defs, err := repository.DecodeLegacyList(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := repository.Import(c.Request.Context(), a.Repo, defs)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, def := range defs {
		if def.ID != "" {
			a.Viewers.InvalidateModule(def.ID)
		}
	}
	a.Log.Info("modules imported",
		zap.Int("imported", res.Imported),
		zap.Int("repaired", res.Repaired),
		zap.Int("failed", len(res.Failed)),
	)
	c.JSON(http.StatusOK, res)
}

// Export returns every module in the on-device storage format, secrets included.
func (a *ModuleAdminController) Export(c *gin.Context) {
	defs, _, err := a.Repo.List(c.Request.Context(), repository.ListOptions{SortBy: "created_at", SortDir: "ASC"})
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := repository.EncodeLegacyList(defs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="modulos.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}

// ProbeAll checks every module endpoint in parallel.
func (a *ModuleAdminController) ProbeAll(c *gin.Context) {
	defs, _, err := a.Repo.List(c.Request.Context(), repository.ListOptions{})
	if err != nil {
		respondError(c, err)
		return
	}
	targets := make([]probe.Target, 0, len(defs))
	for _, def := range defs {
		targets = append(targets, probe.Target{Key: def.ID, URL: def.APIRestURL})
	}
	results := a.Prober.ProbeAll(c.Request.Context(), targets)

	reachable := 0
	for _, r := range results {
		if r.Reachable {
			reachable++
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": results, "meta": gin.H{"total": len(results), "reachable": reachable}})
}

func (a *ModuleAdminController) prepare(c *gin.Context, def *models.ModuleDefinition) bool {
	def.AllowedRoles = normalizeRoles(def.AllowedRoles)
	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		respondError(c, err)
		return false
	}
	return true
}
