package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/repository"
	"github.com/felman/modulos_backend/internal/utils"
)

// SignatureHeader carries the hex HMAC-SHA256 of signed response bodies.
const SignatureHeader = "X-Module-Signature"

type listParams struct {
	All     bool
	Limit   int
	Page    int
	SortBy  string
	SortDir string
	Name    string
}

func parseList(c *gin.Context) listParams {
	p := listParams{
		All:     strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1",
		Limit:   20,
		Page:    1,
		SortBy:  c.DefaultQuery("sort_by", "created_at"),
		SortDir: strings.ToUpper(c.DefaultQuery("sort_dir", "DESC")),
		Name:    strings.TrimSpace(c.Query("name")),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if p.SortDir != "ASC" && p.SortDir != "DESC" {
		p.SortDir = "DESC"
	}
	return p
}

func (p listParams) options(role string) repository.ListOptions {
	opts := repository.ListOptions{Role: role, Name: p.Name, SortBy: p.SortBy, SortDir: p.SortDir}
	if !p.All {
		opts.Limit = p.Limit
		opts.Offset = (p.Page - 1) * p.Limit
	}
	return opts
}

func (p listParams) meta(total int64) gin.H {
	meta := gin.H{"total": total, "all": p.All}
	if !p.All {
		meta["limit"] = p.Limit
		meta["page"] = p.Page
		meta["sort_by"] = p.SortBy
		meta["sort_dir"] = p.SortDir
	}
	return meta
}

func redactAll(defs []models.ModuleDefinition) []*models.ModuleDefinition {
	out := make([]*models.ModuleDefinition, 0, len(defs))
	for i := range defs {
		out = append(out, defs[i].Redacted())
	}
	return out
}

// respondError maps storage and validation errors to status codes.
func respondError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "module not found"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "problems": verr.Problems})
	case errors.Is(err, gorm.ErrDuplicatedKey):
		c.JSON(http.StatusConflict, gin.H{"error": "module already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// respondSigned writes payload as JSON, signed when secret is set.
func respondSigned(c *gin.Context, status int, secret string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode payload"})
		return
	}
	if sec := strings.TrimSpace(secret); sec != "" {
		c.Header(SignatureHeader, utils.HMACSHA256Hex(sec, b))
	}
	c.Data(status, "application/json; charset=utf-8", b)
}
