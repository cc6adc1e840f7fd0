package repository

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/felman/modulos_backend/internal/models"
)

// LegacyPrimaryQueryID names the query built from consultaSQL when a
// multi-query module was saved without its list.
const LegacyPrimaryQueryID = "principal"

// DecodeLegacyList parses the on-device storage value: a JSON list of modules.
func DecodeLegacyList(data []byte) ([]models.ModuleDefinition, error) {
	var defs []models.ModuleDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, errors.Wrap(err, "decode module list")
	}
	return defs, nil
}

// EncodeLegacyList writes modules in the on-device storage format.
func EncodeLegacyList(defs []models.ModuleDefinition) ([]byte, error) {
	if defs == nil {
		defs = []models.ModuleDefinition{}
	}
	b, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode module list")
	}
	return b, nil
}

// NormalizeLegacy repairs fields older builder versions left inconsistent.
// It reports whether anything changed.
func NormalizeLegacy(def *models.ModuleDefinition) bool {
	changed := false
	if def.ConnectionType == "" {
		def.ConnectionType = models.ConnectionAPI
		changed = true
	}
	if def.MultipleQueries && len(def.Queries) == 0 && strings.TrimSpace(def.SQL) != "" {
		def.Queries = []models.QueryDefinition{{ID: LegacyPrimaryQueryID, SQL: def.SQL}}
		changed = true
	}
	for i := range def.Queries {
		if strings.TrimSpace(def.Queries[i].ID) == "" {
			def.Queries[i].ID = fmt.Sprintf("q%d", i+1)
			changed = true
		}
	}
	if def.MultipleQueries && def.PrimaryQueryID == "" && len(def.Queries) > 0 {
		def.PrimaryQueryID = def.Queries[0].ID
		changed = true
	}
	if len(def.AllowedRoles) == 0 {
		def.AllowedRoles = []string{models.RoleAll}
		changed = true
	}
	return changed
}

type ImportFailure struct {
	Index int    `json:"index"`
	Name  string `json:"nombre"`
	Error string `json:"error"`
}

type ImportResult struct {
	Imported int             `json:"imported"`
	Repaired int             `json:"repaired"`
	Failed   []ImportFailure `json:"failed"`
}

// Import normalizes, validates and stores each module. Existing ids are replaced.
func Import(ctx context.Context, repo ModuleRepository, defs []models.ModuleDefinition) (ImportResult, error) {
	res := ImportResult{Failed: []ImportFailure{}}
	for i := range defs {
		def := defs[i]
		if NormalizeLegacy(&def) {
			res.Repaired++
		}
		if err := def.Validate(); err != nil {
			res.Failed = append(res.Failed, ImportFailure{Index: i, Name: def.Name, Error: err.Error()})
			continue
		}
		if _, err := repo.Put(ctx, &def); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed = append(res.Failed, ImportFailure{Index: i, Name: def.Name, Error: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}

// FixLegacy applies NormalizeLegacy to every stored module and returns how
// many were rewritten.
func FixLegacy(ctx context.Context, repo ModuleRepository) (int, error) {
	defs, _, err := repo.List(ctx, ListOptions{})
	if err != nil {
		return 0, err
	}
	fixed := 0
	for i := range defs {
		if !NormalizeLegacy(&defs[i]) {
			continue
		}
		if _, err := repo.Put(ctx, &defs[i]); err != nil {
			return fixed, errors.Wrapf(err, "fix module %s", defs[i].ID)
		}
		fixed++
	}
	return fixed, nil
}
