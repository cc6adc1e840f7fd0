// Package columns decides which row fields a module displays, and in which order.
package columns

import (
	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/shapes"
)

const (
	SourceNone     = "none"
	SourceView     = "view"
	SourceInferred = "inferred"
)

type Columns struct {
	Names  []string `json:"names"`
	Source string   `json:"source"`
	// Empty is set when there are no rows; callers show a "no data" state.
	Empty bool `json:"empty"`
}

// Infer uses the view configuration when it lists visible columns, and the
// first row's keys otherwise.
func Infer(rows []shapes.Row, view *models.ViewConfig) Columns {
	if len(rows) == 0 {
		return Columns{Names: []string{}, Source: SourceNone, Empty: true}
	}
	if view != nil && len(view.VisibleColumns) > 0 {
		names := view.VisibleColumns
		if len(view.ColumnOrder) > 0 {
			names = view.ColumnOrder
		}
		return Columns{Names: append([]string(nil), names...), Source: SourceView}
	}
	return Columns{Names: rows[0].Keys(), Source: SourceInferred}
}
