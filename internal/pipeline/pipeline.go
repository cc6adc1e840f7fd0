// Package pipeline runs one module end to end: resolve, fetch, normalize,
// infer columns and render cards.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/client"
	"github.com/felman/modulos_backend/internal/columns"
	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/queryplan"
	"github.com/felman/modulos_backend/internal/render"
	"github.com/felman/modulos_backend/internal/shapes"
)

// Executor sends a plan. *client.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, plan queryplan.Plan) (*client.Response, error)
}

type Output struct {
	Plan        queryplan.Plan
	Rows        []shapes.Row
	Shape       string
	Columns     columns.Columns
	Cards       []render.Card
	Diagnostics []shapes.Diagnostic
	Batch       *shapes.Batch
	Took        time.Duration
}

type Pipeline struct {
	Executor   Executor
	Normalizer *shapes.Normalizer
	Log        *zap.Logger
}

func New(exec Executor, normalizer *shapes.Normalizer, log *zap.Logger) *Pipeline {
	if normalizer == nil {
		normalizer = shapes.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{Executor: exec, Normalizer: normalizer, Log: log}
}

// Run fetches and renders def. Errors are *queryplan.ConfigError,
// *client.TransportError, *client.HTTPError or *shapes.DecodeError.
func (p *Pipeline) Run(ctx context.Context, def *models.ModuleDefinition) (*Output, error) {
	plan, err := queryplan.Resolve(def)
	if err != nil {
		return nil, err
	}

	res, err := p.Executor.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	norm, err := p.Normalizer.Normalize(res.Body, shapes.Query{
		Multiple:  def.UsesBatch(),
		PrimaryID: def.PrimaryQueryID,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range norm.Diagnostics {
		p.Log.Warn("module response diagnostic",
			zap.String("module_id", def.ID),
			zap.String("code", d.Code),
			zap.String("message", d.Message),
		)
	}

	cols := columns.Infer(norm.Rows, def.View)
	return &Output{
		Plan:        plan,
		Rows:        norm.Rows,
		Shape:       norm.Shape,
		Columns:     cols,
		Cards:       render.Cards(norm.Rows, cols),
		Diagnostics: norm.Diagnostics,
		Batch:       norm.Batch,
		Took:        res.Duration,
	}, nil
}
