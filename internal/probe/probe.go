// Package probe checks whether module endpoints answer at all.
package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gammazero/workerpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Result of probing one URL. Any answer below 500 counts as reachable,
// including 404 and 405, since the endpoint only has to exist.
type Result struct {
	Key       string        `json:"key,omitempty"`
	URL       string        `json:"url"`
	Reachable bool          `json:"reachable"`
	Status    int           `json:"status,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// Target names a URL to probe.
type Target struct {
	Key string
	URL string
}

type Prober struct {
	HTTP     *http.Client
	Timeout  time.Duration
	Attempts int
	Workers  int
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	Log             *zap.Logger
}

func New(timeout time.Duration, attempts, workers int, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	if attempts < 1 {
		attempts = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Prober{
		HTTP:            &http.Client{},
		Timeout:         timeout,
		Attempts:        attempts,
		Workers:         workers,
		InitialInterval: 200 * time.Millisecond,
		Log:             log,
	}
}

var errServer = errors.New("server error")

// Probe sends HEAD requests to url, retrying transport failures and 5xx
// answers with exponential backoff.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	res := Result{URL: url}
	if url == "" {
		res.Error = "empty url"
		return res
	}
	start := time.Now()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)

	op := func() error {
		res.Attempts++
		status, err := p.once(ctx, url)
		res.Status = status
		if err != nil {
			return err
		}
		if status >= http.StatusInternalServerError {
			return errServer
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.Log.Debug("probe retry", zap.String("url", url), zap.Duration("wait", wait), zap.Error(err))
	}

	err := backoff.RetryNotify(op, policy, notify)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Reachable = true
	return res
}

func (p *Prober) once(ctx context.Context, url string) (int, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, backoff.Permanent(errors.Wrap(err, "build probe request"))
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// ProbeAll probes targets in parallel on a bounded pool. Results keep the
// order of targets.
func (p *Prober) ProbeAll(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))
	wp := workerpool.New(p.Workers)
	for i, t := range targets {
		i, t := i, t
		wp.Submit(func() {
			r := p.Probe(ctx, t.URL)
			r.Key = t.Key
			results[i] = r
		})
	}
	wp.StopWait()
	return results
}
