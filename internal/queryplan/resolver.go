// Package queryplan turns a module definition into the one request that fetches its data.
package queryplan

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/felman/modulos_backend/internal/models"
)

type Kind string

const (
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
	KindDB     Kind = "db"
)

// Plan is a ready-to-send POST request.
type Plan struct {
	Kind Kind
	URL  string
	Body []byte
}

// ConfigError reports a module that cannot be resolved. No request is made.
type ConfigError struct {
	ModuleID string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("module %s: configuration error: %s", e.ModuleID, e.Reason)
}

type singleBody struct {
	Query    string           `json:"query"`
	DBConfig *models.DBConfig `json:"dbConfig,omitempty"`
}

type batchQuery struct {
	ID          string `json:"id"`
	SQL         string `json:"sql"`
	Params      []any  `json:"params"`
	StopOnEmpty bool   `json:"stopOnEmpty"`
}

type batchBody struct {
	Queries []batchQuery `json:"queries"`
}

// Resolve builds the request for def.
func Resolve(def *models.ModuleDefinition) (Plan, error) {
	if def == nil {
		return Plan{}, &ConfigError{Reason: "module is nil"}
	}
	if strings.TrimSpace(def.APIRestURL) == "" {
		return Plan{}, &ConfigError{ModuleID: def.ID, Reason: "apiRestUrl is empty"}
	}

	switch def.ConnectionType {
	case models.ConnectionDB:
		if def.DBConfig == nil {
			return Plan{}, &ConfigError{ModuleID: def.ID, Reason: "dbConfig is required for tipoConexion=db"}
		}
		return encode(KindDB, def.APIRestURL, singleBody{Query: def.SQL, DBConfig: def.DBConfig})
	case models.ConnectionAPI:
		if def.UsesBatch() {
			body := batchBody{Queries: make([]batchQuery, 0, len(def.Queries))}
			for _, q := range def.Queries {
				params := q.Params
				if params == nil {
					params = []any{}
				}
				body.Queries = append(body.Queries, batchQuery{
					ID:          q.ID,
					SQL:         q.SQL,
					Params:      params,
					StopOnEmpty: q.StopOnEmpty,
				})
			}
			return encode(KindBatch, def.APIRestURL, body)
		}
		return encode(KindSingle, def.APIRestURL, singleBody{Query: def.SQL})
	default:
		return Plan{}, &ConfigError{ModuleID: def.ID, Reason: fmt.Sprintf("unknown tipoConexion %q", def.ConnectionType)}
	}
}

func encode(kind Kind, url string, body any) (Plan, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return Plan{}, errors.Wrapf(err, "encode %s request", kind)
	}
	return Plan{Kind: kind, URL: url, Body: b}, nil
}
