// Package viewer holds the per-screen state of a module being displayed.
//
// A viewer moves through idle → loading_module → loading_data → one of the
// display states, and back to loading_data on every refresh. Overlapping loads
// follow a cancel-previous policy: starting a load cancels the one in flight,
// and only the most recently started load may publish its result.
package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/client"
	"github.com/felman/modulos_backend/internal/models"
	"github.com/felman/modulos_backend/internal/pipeline"
	"github.com/felman/modulos_backend/internal/queryplan"
	"github.com/felman/modulos_backend/internal/render"
	"github.com/felman/modulos_backend/internal/repository"
	"github.com/felman/modulos_backend/internal/shapes"
)

type State string

const (
	StateIdle          State = "idle"
	StateLoadingModule State = "loading_module"
	StateLoadingData   State = "loading_data"
	StateDisplaying    State = "displaying"
	StateEmpty         State = "displaying_empty"
	StateError         State = "displaying_error"
	StateClosed        State = "closed"
)

var (
	ErrClosed = errors.New("viewer closed")
	// ErrSuperseded is returned to a load that a newer load replaced.
	ErrSuperseded = errors.New("load superseded by a newer refresh")
)

// Error kinds reported in snapshots.
const (
	KindConfiguration = "configuration"
	KindTransport     = "transport"
	KindHTTP          = "http"
	KindDecode        = "decode"
	KindNotFound      = "not_found"
	KindInternal      = "internal"
)

// ModuleSource loads definitions.
type ModuleSource interface {
	Get(ctx context.Context, id string) (*models.ModuleDefinition, error)
}

// Runner fetches and renders a module.
type Runner interface {
	Run(ctx context.Context, def *models.ModuleDefinition) (*pipeline.Output, error)
}

type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Status  int    `json:"status,omitempty"`
	Body    string `json:"body,omitempty"`
}

type Snapshot struct {
	ModuleID    string              `json:"module_id"`
	ModuleName  string              `json:"module_name,omitempty"`
	State       State               `json:"state"`
	Generation  uint64              `json:"generation"`
	Columns     []string            `json:"columns"`
	Empty       bool                `json:"empty"`
	Cards       []render.Card       `json:"cards"`
	PerPage     int                 `json:"per_page"`
	Shape       string              `json:"shape,omitempty"`
	Diagnostics []shapes.Diagnostic `json:"diagnostics,omitempty"`
	Batch       *shapes.Batch       `json:"batch,omitempty"`
	// Stale marks cards kept from the last good load after an error.
	Stale     bool       `json:"stale"`
	Error     *ErrorInfo `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Options struct {
	// Timeout bounds each load. Zero means no timeout.
	Timeout time.Duration
	Log     *zap.Logger
}

type Viewer struct {
	moduleID string
	source   ModuleSource
	runner   Runner
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	snap    Snapshot
	def     *models.ModuleDefinition
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	subs    map[int]chan Snapshot
	nextSub int
}

func New(moduleID string, source ModuleSource, runner Runner, opts Options) *Viewer {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Viewer{
		moduleID: moduleID,
		source:   source,
		runner:   runner,
		timeout:  opts.Timeout,
		log:      log.With(zap.String("module_id", moduleID)),
		snap: Snapshot{
			ModuleID:  moduleID,
			State:     StateIdle,
			Columns:   []string{},
			Cards:     []render.Card{},
			PerPage:   models.DefaultRecordsPerPage,
			UpdatedAt: time.Now(),
		},
		subs: map[int]chan Snapshot{},
	}
}

func (v *Viewer) ModuleID() string { return v.moduleID }

// Snapshot returns the current state.
func (v *Viewer) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Load loads the module definition if needed and then its data. Fetch
// failures end in StateError and are reported in the snapshot, not as errors.
func (v *Viewer) Load(ctx context.Context) (Snapshot, error) {
	v.mu.Lock()
	if v.closed {
		defer v.mu.Unlock()
		return v.snap, ErrClosed
	}
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen

	var loadCtx context.Context
	var cancel context.CancelFunc
	if v.timeout > 0 {
		loadCtx, cancel = context.WithTimeout(ctx, v.timeout)
	} else {
		loadCtx, cancel = context.WithCancel(ctx)
	}
	v.cancel = cancel
	def := v.def
	if def == nil {
		v.transition(StateLoadingModule, gen)
	} else {
		v.transition(StateLoadingData, gen)
	}
	v.mu.Unlock()
	defer cancel()

	if def == nil {
		loaded, err := v.source.Get(loadCtx, v.moduleID)
		if err != nil {
			return v.finish(gen, nil, err)
		}
		v.mu.Lock()
		if snap, err := v.currentLocked(gen); err != nil {
			v.mu.Unlock()
			return snap, err
		}
		v.def = loaded
		def = loaded
		v.snap.ModuleName = loaded.Name
		v.snap.PerPage = loaded.PerPage()
		v.transition(StateLoadingData, gen)
		v.mu.Unlock()
	}

	out, err := v.runner.Run(loadCtx, def)
	return v.finish(gen, out, err)
}

func (v *Viewer) finish(gen uint64, out *pipeline.Output, err error) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if snap, cerr := v.currentLocked(gen); cerr != nil {
		return snap, cerr
	}
	v.cancel = nil

	next := v.snap
	next.Generation = gen
	next.UpdatedAt = time.Now()

	if err != nil {
		info := classify(err)
		v.log.Warn("module load failed", zap.String("kind", info.Kind), zap.Error(err))
		next.State = StateError
		next.Error = &info
		next.Stale = len(next.Cards) > 0
	} else {
		next.Error = nil
		next.Stale = false
		next.Columns = out.Columns.Names
		next.Empty = out.Columns.Empty
		next.Cards = out.Cards
		next.Shape = out.Shape
		next.Diagnostics = out.Diagnostics
		next.Batch = out.Batch
		if len(out.Cards) == 0 {
			next.State = StateEmpty
		} else {
			next.State = StateDisplaying
		}
	}
	v.snap = next
	v.publishLocked()
	return next, nil
}

// currentLocked reports whether gen may still publish.
func (v *Viewer) currentLocked(gen uint64) (Snapshot, error) {
	if v.closed {
		return v.snap, ErrClosed
	}
	if gen != v.gen {
		return v.snap, ErrSuperseded
	}
	return Snapshot{}, nil
}

func (v *Viewer) transition(state State, gen uint64) {
	v.snap.State = state
	v.snap.Generation = gen
	v.snap.UpdatedAt = time.Now()
	v.publishLocked()
}

// Subscribe streams snapshots on every transition. Slow subscribers lose the
// oldest pending snapshot. The channel closes when the viewer closes.
func (v *Viewer) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if c, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(c)
		}
	}
}

func (v *Viewer) publishLocked() {
	for _, ch := range v.subs {
		select {
		case ch <- v.snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v.snap:
		default:
		}
	}
}

// Close cancels any in-flight load. Further loads return ErrClosed.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.transition(StateClosed, v.gen)
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

func classify(err error) ErrorInfo {
	info := ErrorInfo{Kind: KindInternal, Message: err.Error()}

	var cfgErr *queryplan.ConfigError
	var trErr *client.TransportError
	var httpErr *client.HTTPError
	var decErr *shapes.DecodeError
	switch {
	case errors.As(err, &cfgErr):
		info.Kind = KindConfiguration
	case errors.As(err, &trErr):
		info.Kind = KindTransport
		info.URL = trErr.URL
	case errors.As(err, &httpErr):
		info.Kind = KindHTTP
		info.URL = httpErr.URL
		info.Status = httpErr.Status
		info.Body = httpErr.Body
	case errors.As(err, &decErr):
		info.Kind = KindDecode
	case errors.Is(err, repository.ErrNotFound):
		info.Kind = KindNotFound
	}
	return info
}
