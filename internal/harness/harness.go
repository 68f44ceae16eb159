// Package harness runs one layout round-trip: predict, prime, dispatch,
// read back and compare.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/23skdu/longbow-padcheck/internal/config"
	"github.com/23skdu/longbow-padcheck/internal/device"
	"github.com/23skdu/longbow-padcheck/internal/layout"
	"github.com/23skdu/longbow-padcheck/internal/logger"
	"github.com/23skdu/longbow-padcheck/internal/metrics"
	"github.com/23skdu/longbow-padcheck/internal/shader"
)

// Publisher receives every completed result, matching or not.
type Publisher interface {
	Publish(ctx context.Context, res *Result) error
}

// Result is the outcome of one round-trip.
type Result struct {
	Params   layout.Params
	Backend  string
	Skip     []int
	Expected layout.Buffer
	Observed layout.Buffer
	Duration time.Duration
}

// Mismatches lists every differing float index.
func (r *Result) Mismatches() []int {
	if len(r.Expected) != len(r.Observed) {
		return nil
	}
	return layout.Diff(r.Expected, r.Observed)
}

// Err is the comparison verdict.
func (r *Result) Err() error {
	return layout.Compare(r.Params, r.Expected, r.Observed)
}

// ErrGuardNotLoadBearing means a fault-injected run did not show the skipped
// slots as guard values.
var ErrGuardNotLoadBearing = errors.New("skipped instances did not read back as guard")

// CheckSkipped verifies a fault-injected run: every slot of a skipped
// instance still holds the guard and no other slot differs.
func (r *Result) CheckSkipped() error {
	if len(r.Skip) == 0 {
		return errors.New("no instances were skipped")
	}
	if len(r.Observed) != len(r.Expected) {
		return r.Err()
	}
	skipped := make(map[int]bool, len(r.Skip))
	for _, k := range r.Skip {
		skipped[k] = true
	}
	p := r.Params
	for _, k := range r.Skip {
		for j := 0; j < p.Columns; j++ {
			for s := 0; s < p.RowStride(); s++ {
				off := p.Offset(k, j, s)
				if r.Observed[off] != layout.Guard {
					return fmt.Errorf("%w: %s holds 0x%08X", ErrGuardNotLoadBearing, p.Locate(off), r.Observed[off])
				}
			}
		}
	}
	diffs := r.Mismatches()
	if len(diffs) == 0 {
		return fmt.Errorf("%w: comparison passed", ErrGuardNotLoadBearing)
	}
	for _, idx := range diffs {
		if pos := p.Locate(idx); !skipped[pos.Matrix] {
			return fmt.Errorf("%w at %s", layout.ErrLayoutMismatch, pos)
		}
	}
	return nil
}

type Harness struct {
	cfg       config.Config
	backend   device.Backend
	publisher Publisher
	log       *logger.Logger
}

type Option func(*Harness)

func WithPublisher(p Publisher) Option {
	return func(h *Harness) { h.publisher = p }
}

func New(cfg config.Config, backend device.Backend, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("nil backend")
	}
	h := &Harness{
		cfg:     cfg,
		backend: backend,
		log:     logger.Log.With("harness"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run executes the round-trip. A layout mismatch is returned as an error
// wrapping layout.ErrLayoutMismatch alongside the populated Result.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	p := h.cfg.Params()
	name := h.backend.Name()

	// Predict before any device work.
	expected := layout.Predict(p)
	prime := layout.GuardFill(p.Floats())

	prog, err := shader.Generate(p, shader.WithSkip(h.cfg.Skip...))
	if err != nil {
		metrics.RecordRun(name, metrics.ResultError)
		return nil, fmt.Errorf("generate program: %w", err)
	}
	h.log.Debug("generated program", "shape", p.String(), "skip", h.cfg.Skip, "source", prog.Source)

	start := time.Now()
	raw, err := h.backend.RoundTrip(prog, prime.Bytes())
	if err != nil {
		metrics.RecordRun(name, metrics.ResultError)
		return nil, err
	}
	observed, err := layout.FromBytes(raw)
	if err != nil {
		metrics.RecordRun(name, metrics.ResultError)
		return nil, fmt.Errorf("decode read-back: %w", err)
	}

	res := &Result{
		Params:   p,
		Backend:  name,
		Skip:     h.cfg.Skip,
		Expected: expected,
		Observed: observed,
		Duration: time.Since(start),
	}
	h.recordGuards(res)

	cmpErr := res.Err()
	if cmpErr != nil {
		metrics.RecordRun(name, metrics.ResultMismatch)
		metrics.RecordMismatches(len(res.Mismatches()))
	} else {
		metrics.RecordRun(name, metrics.ResultPass)
	}
	h.log.Info("round-trip complete",
		"backend", name,
		"shape", p.String(),
		"floats", p.Floats(),
		"bytes", p.Bytes(),
		"duration", res.Duration,
		"match", cmpErr == nil,
	)

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, res); err != nil {
			return res, fmt.Errorf("publish result: %w", err)
		}
	}
	return res, cmpErr
}

func (h *Harness) recordGuards(res *Result) {
	var padding, data int
	for i, v := range res.Observed {
		if v != layout.Guard {
			continue
		}
		if res.Params.Locate(i).Padding {
			padding++
		} else {
			data++
		}
	}
	metrics.RecordGuards(padding, data)
	if data > 0 {
		h.log.Warn("data slots still hold the guard pattern", "count", data)
	}
}
