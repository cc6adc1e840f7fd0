package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/middleware"
	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/probe"
	"github.com/felman/modulos_backend/internal/render"
	"github.com/felman/modulos_backend/internal/repository"
	"github.com/felman/modulos_backend/internal/viewer"
	"github.com/felman/modulos_backend/internal/ws"
)

// ModuleController serves modules to the roles allowed to see them.
type ModuleController struct {
	Repo       repository.ModuleRepository
	Viewers    *viewer.Registry
	Hub        *ws.ViewerHub
	Prober     *probe.Prober
	HMACSecret string
	Log        *zap.Logger
}

type viewResponse struct {
	viewer.Snapshot
	Page render.PageInfo `json:"page"`
}

func (mc *ModuleController) List(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	p := parseList(c)
	items, total, err := mc.Repo.List(c.Request.Context(), p.options(claims.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": redactAll(items), "meta": p.meta(total)})
}

func (mc *ModuleController) Get(c *gin.Context) {
	def, ok := mc.visible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, def.Redacted())
}

// View returns the caller's viewer snapshot, loading it on first access.
func (mc *ModuleController) View(c *gin.Context) {
	def, ok := mc.visible(c)
	if !ok {
		return
	}
	claims, _ := middleware.CurrentClaims(c)
	_, v := mc.Viewers.Acquire(claims.UserID, def.ID)

	snap := v.Snapshot()
	if snap.State == viewer.StateIdle {
		loaded, err := v.Load(context.WithoutCancel(c.Request.Context()))
		switch {
		case err == nil:
			snap = loaded
		case errors.Is(err, viewer.ErrSuperseded):
			snap = v.Snapshot()
		default:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
	}
	mc.respondView(c, snap)
}

// Refresh starts a new load. A load still in flight for the same viewer is
// cancelled and its result discarded.
func (mc *ModuleController) Refresh(c *gin.Context) {
	def, ok := mc.visible(c)
	if !ok {
		return
	}
	claims, _ := middleware.CurrentClaims(c)
	_, v := mc.Viewers.Acquire(claims.UserID, def.ID)

	snap, err := v.Load(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	mc.respondView(c, snap)
}

func (mc *ModuleController) respondView(c *gin.Context, snap viewer.Snapshot) {
	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}
	cards, info := render.Page(snap.Cards, page, snap.PerPage)
	snap.Cards = cards
	respondSigned(c, http.StatusOK, mc.HMACSecret, viewResponse{Snapshot: snap, Page: info})
}

// Stream pushes every snapshot of the caller's viewer over a websocket.
func (mc *ModuleController) Stream(c *gin.Context) {
	if mc.Hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
		return
	}
	def, ok := mc.visible(c)
	if !ok {
		return
	}
	claims, _ := middleware.CurrentClaims(c)
	key, v := mc.Viewers.Acquire(claims.UserID, def.ID)

	initial := v.Snapshot()
	if initial.State == viewer.StateIdle {
		go func() {
			if _, err := v.Load(context.Background()); err != nil {
				mc.Log.Debug("initial stream load", zap.String("key", key), zap.Error(err))
			}
		}()
	}
	if err := mc.Hub.Serve(c.Writer, c.Request, key, initial); err != nil {
		mc.Log.Warn("module stream ended", zap.String("key", key), zap.Error(err))
	}
}

func (mc *ModuleController) Probe(c *gin.Context) {
	def, ok := mc.visible(c)
	if !ok {
		return
	}
	res := mc.Prober.Probe(c.Request.Context(), def.APIRestURL)
	res.Key = def.ID
	c.JSON(http.StatusOK, res)
}

// visible loads :id and checks the caller's role against rolesPermitidos.
func (mc *ModuleController) visible(c *gin.Context) (*models.ModuleDefinition, bool) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	def, err := mc.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !def.VisibleTo(claims.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return def, true
}
