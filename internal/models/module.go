package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConnectionAPI = "api"
	ConnectionDB  = "db"

	// RoleAll is the rolesPermitidos sentinel for "every role".
	RoleAll = "Todos"
	// RoleAdmin passes every role gate.
	RoleAdmin = "Admin"

	DefaultRecordsPerPage = 20
)

// ModuleDefinition is a user-authored data screen backed by one or more SQL
// queries sent to a configurable endpoint. JSON names follow the on-device format.
type ModuleDefinition struct {
	ID              string            `json:"id" gorm:"size:128;primaryKey"`
	Name            string            `json:"nombre" gorm:"size:255;index"`
	Icon            string            `json:"icono" gorm:"size:128"`
	ConnectionType  string            `json:"tipoConexion" gorm:"size:16"`
	APIRestURL      string            `json:"apiRestUrl" gorm:"type:text"`
	DBConfig        *DBConfig         `json:"dbConfig,omitempty" gorm:"serializer:json"`
	SQL             string            `json:"consultaSQL" gorm:"type:text"`
	MultipleQueries bool              `json:"usaConsultasMultiples"`
	Queries         []QueryDefinition `json:"consultasSQL,omitempty" gorm:"serializer:json"`
	PrimaryQueryID  string            `json:"queryIdPrincipal,omitempty" gorm:"size:128"`
	AllowedRoles    []string          `json:"rolesPermitidos" gorm:"serializer:json"`
	View            *ViewConfig       `json:"configuracionVista,omitempty" gorm:"serializer:json"`
	CreatedAt       time.Time         `json:"fechaCreacion"`
	UpdatedAt       time.Time         `json:"fechaActualizacion"`
}

// QueryDefinition is one named query of a multi-query batch.
type QueryDefinition struct {
	ID          string `json:"id"`
	SQL         string `json:"sql"`
	Params      []any  `json:"params,omitempty"`
	StopOnEmpty bool   `json:"stopOnEmpty,omitempty"`
}

// DBConfig is forwarded to the backend for direct-database modules.
type DBConfig struct {
	Type     string         `json:"tipo"`
	Host     string         `json:"host"`
	Port     FlexibleString `json:"puerto"`
	Database string         `json:"database"`
	User     string         `json:"usuario"`
	Password string         `json:"password"`
}

// ViewConfig narrows and orders the displayed columns.
type ViewConfig struct {
	VisibleColumns []string `json:"columnasVisibles,omitempty"`
	ColumnOrder    []string `json:"ordenColumnas,omitempty"`
	RecordsPerPage int      `json:"registrosPorPagina,omitempty" default:"20"`
}

func (ModuleDefinition) TableName() string {
	return "module_definitions"
}

func (m *ModuleDefinition) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// UsesBatch reports whether the module should be sent to the batch endpoint.
func (m *ModuleDefinition) UsesBatch() bool {
	return m.MultipleQueries && len(m.Queries) > 0
}

// VisibleTo reports whether a caller with the given role may see the module.
func (m *ModuleDefinition) VisibleTo(role string) bool {
	if strings.EqualFold(role, RoleAdmin) {
		return true
	}
	for _, r := range m.AllowedRoles {
		if strings.EqualFold(r, RoleAll) || (role != "" && strings.EqualFold(r, role)) {
			return true
		}
	}
	return false
}

// PerPage returns registrosPorPagina with defaults applied.
func (m *ModuleDefinition) PerPage() int {
	if m.View == nil {
		return DefaultRecordsPerPage
	}
	v := *m.View
	if v.RecordsPerPage < 0 {
		v.RecordsPerPage = 0
	}
	if err := defaults.Set(&v); err != nil || v.RecordsPerPage <= 0 {
		return DefaultRecordsPerPage
	}
	return v.RecordsPerPage
}

// Clone returns a deep copy safe to mutate.
func (m *ModuleDefinition) Clone() *ModuleDefinition {
	if m == nil {
		return nil
	}
	out := *m
	if m.DBConfig != nil {
		c := *m.DBConfig
		out.DBConfig = &c
	}
	if m.Queries != nil {
		out.Queries = make([]QueryDefinition, len(m.Queries))
		for i, q := range m.Queries {
			out.Queries[i] = q
			if q.Params != nil {
				out.Queries[i].Params = append([]any(nil), q.Params...)
			}
		}
	}
	if m.AllowedRoles != nil {
		out.AllowedRoles = append([]string(nil), m.AllowedRoles...)
	}
	if m.View != nil {
		v := *m.View
		v.VisibleColumns = append([]string(nil), m.View.VisibleColumns...)
		v.ColumnOrder = append([]string(nil), m.View.ColumnOrder...)
		out.View = &v
	}
	return &out
}

// Redacted returns a copy without the database password.
func (m *ModuleDefinition) Redacted() *ModuleDefinition {
	out := m.Clone()
	if out != nil && out.DBConfig != nil && out.DBConfig.Password != "" {
		out.DBConfig.Password = "********"
	}
	return out
}

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid module: " + strings.Join(e.Problems, "; ")
}

// Validate checks the fields a module needs before it can be stored.
// A missing dbConfig is left to the resolver, which reports it at fetch time.
func (m *ModuleDefinition) Validate() error {
	var problems []string
	if strings.TrimSpace(m.Name) == "" {
		problems = append(problems, "nombre is required")
	}
	switch m.ConnectionType {
	case ConnectionAPI, ConnectionDB:
	default:
		problems = append(problems, fmt.Sprintf("tipoConexion must be %q or %q", ConnectionAPI, ConnectionDB))
	}
	if !isHTTPURL(m.APIRestURL) {
		problems = append(problems, "apiRestUrl must be an http(s) URL")
	}
	if m.MultipleQueries {
		if len(m.Queries) == 0 {
			problems = append(problems, "consultasSQL must not be empty when usaConsultasMultiples is set")
		}
		seen := map[string]struct{}{}
		for i, q := range m.Queries {
			id := strings.TrimSpace(q.ID)
			if id == "" {
				problems = append(problems, fmt.Sprintf("consultasSQL[%d].id is required", i))
				continue
			}
			if _, dup := seen[id]; dup {
				problems = append(problems, fmt.Sprintf("consultasSQL[%d].id %q is duplicated", i, id))
			}
			seen[id] = struct{}{}
		}
	} else if strings.TrimSpace(m.SQL) == "" {
		problems = append(problems, "consultaSQL is required")
	}
	if len(m.AllowedRoles) == 0 {
		problems = append(problems, "rolesPermitidos must not be empty")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ApplyDefaults fills fields the builder form leaves empty.
func (m *ModuleDefinition) ApplyDefaults() {
	if m.ConnectionType == "" {
		m.ConnectionType = ConnectionAPI
	}
	if m.MultipleQueries && m.PrimaryQueryID == "" && len(m.Queries) > 0 {
		m.PrimaryQueryID = m.Queries[0].ID
	}
}

func isHTTPURL(raw string) bool {
	if !govalidator.IsURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
