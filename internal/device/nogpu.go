//go:build nogpu

package device

import "github.com/23skdu/longbow-padcheck/internal/shader"

// WGPU is not compiled into nogpu builds; only the emulator is usable.
type WGPU struct{}

func Available() bool { return false }

func NewWGPU() (*WGPU, error) {
	return nil, ErrUnavailable
}

func (g *WGPU) Name() string { return "wgpu" }

func (g *WGPU) Close() {}

func (g *WGPU) RoundTrip(*shader.Program, []byte) ([]byte, error) {
	return nil, &PhaseError{Backend: g.Name(), Phase: PhaseAllocate, Err: ErrUnavailable}
}
