// Package device runs a generated compute program against a storage buffer
// primed with guard bytes and returns the bytes the program left behind.
package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/23skdu/longbow-padcheck/internal/logger"
	"github.com/23skdu/longbow-padcheck/internal/metrics"
	"github.com/23skdu/longbow-padcheck/internal/shader"
)

var (
	ErrNoAdapter    = errors.New("no GPU adapter available")
	ErrNoDevice     = errors.New("GPU device request failed")
	ErrMapFailed    = errors.New("buffer mapping failed")
	ErrSizeMismatch = errors.New("buffer size mismatch")
	ErrUnavailable  = errors.New("backend not compiled in")
)

// Phase is one step of a round-trip, in execution order.
type Phase int

const (
	PhasePrime Phase = iota
	PhaseAllocate
	PhaseBind
	PhaseEncode
	PhaseSubmit
	PhaseReadback
)

func (p Phase) String() string {
	switch p {
	case PhasePrime:
		return "prime"
	case PhaseAllocate:
		return "allocate"
	case PhaseBind:
		return "bind"
	case PhaseEncode:
		return "encode"
	case PhaseSubmit:
		return "submit"
	case PhaseReadback:
		return "readback"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseError records which phase of a round-trip failed.
type PhaseError struct {
	Backend string
	Phase   Phase
	Err     error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Backend executes prog once over a storage buffer initialised from input and
// returns the storage contents after the dispatch.
type Backend interface {
	Name() string
	RoundTrip(prog *shader.Program, input []byte) ([]byte, error)
	Close()
}

// Open returns the backend registered under name.
func Open(name string) (Backend, error) {
	switch name {
	case "wgpu":
		g, err := NewWGPU()
		if err != nil {
			return nil, err
		}
		return g, nil
	case "emulator":
		return NewEmulator(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func checkInput(backend string, prog *shader.Program, input []byte) error {
	if want := prog.Params.Bytes(); len(input) != want {
		return &PhaseError{
			Backend: backend,
			Phase:   PhasePrime,
			Err:     fmt.Errorf("%w: input is %d bytes, program needs %d", ErrSizeMismatch, len(input), want),
		}
	}
	return nil
}

// phaseTimer logs and records the duration of each phase it is stepped through.
type phaseTimer struct {
	log     *logger.Logger
	backend string
	phase   Phase
	start   time.Time
}

func newPhaseTimer(backend string) *phaseTimer {
	return &phaseTimer{
		log:     logger.Log.With("device"),
		backend: backend,
		phase:   PhasePrime,
		start:   time.Now(),
	}
}

func (t *phaseTimer) next(p Phase) {
	t.done()
	t.phase = p
	t.start = time.Now()
}

func (t *phaseTimer) done() {
	d := time.Since(t.start)
	metrics.RecordPhase(t.phase.String(), d)
	t.log.Debug("phase complete", "backend", t.backend, "phase", t.phase.String(), "duration", d)
}

func (t *phaseTimer) fail(err error) error {
	metrics.RecordBackendError(t.phase.String())
	return &PhaseError{Backend: t.backend, Phase: t.phase, Err: err}
}
