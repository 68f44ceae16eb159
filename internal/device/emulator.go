package device

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/23skdu/longbow-padcheck/internal/metrics"
	"github.com/23skdu/longbow-padcheck/internal/shader"
)

type usage uint8

const (
	usageCopySrc usage = 1 << iota
	usageCopyDst
	usageStorage
	usageMapRead
)

type hostBuffer struct {
	label string
	usage usage
	data  []byte
}

// Emulator is a host reference device. It follows the same buffer lifecycle
// as WGPU on byte slices and executes the program's store plan.
type Emulator struct {
	// Packed makes the emulated compiler store columns without padding, the
	// layout bug the harness exists to catch.
	Packed bool
}

type EmulatorOption func(*Emulator)

func WithPackedColumns() EmulatorOption {
	return func(e *Emulator) { e.Packed = true }
}

func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emulator) Name() string { return "emulator" }

func (e *Emulator) Close() {}

func (e *Emulator) RoundTrip(prog *shader.Program, input []byte) ([]byte, error) {
	if err := checkInput(e.Name(), prog, input); err != nil {
		return nil, err
	}
	size := len(input)
	t := newPhaseTimer(e.Name())

	in := &hostBuffer{label: "input", usage: usageCopySrc, data: make([]byte, size)}
	copy(in.data, input)
	metrics.RecordBuffer("input", size)

	t.next(PhaseAllocate)
	storage := &hostBuffer{label: "storage", usage: usageStorage | usageCopySrc | usageCopyDst, data: make([]byte, size)}
	out := &hostBuffer{label: "output", usage: usageCopyDst | usageMapRead, data: make([]byte, size)}
	metrics.RecordBuffer("storage", size)
	metrics.RecordBuffer("output", size)

	t.next(PhaseBind)
	if storage.usage&usageStorage == 0 {
		return nil, t.fail(fmt.Errorf("buffer %q is not bindable as storage", storage.label))
	}

	t.next(PhaseEncode)
	cmds := []func() error{
		func() error { return copyBuffer(in, storage) },
		func() error { e.dispatch(prog, storage.data); return nil },
		func() error { return copyBuffer(storage, out) },
	}

	t.next(PhaseSubmit)
	for _, cmd := range cmds {
		if err := cmd(); err != nil {
			return nil, t.fail(err)
		}
	}

	t.next(PhaseReadback)
	if out.usage&usageMapRead == 0 {
		return nil, t.fail(fmt.Errorf("%w: %q is not mappable", ErrMapFailed, out.label))
	}
	result := make([]byte, size)
	copy(result, out.data)
	t.done()
	return result, nil
}

func copyBuffer(src, dst *hostBuffer) error {
	if src.usage&usageCopySrc == 0 {
		return fmt.Errorf("buffer %q lacks CopySrc usage", src.label)
	}
	if dst.usage&usageCopyDst == 0 {
		return fmt.Errorf("buffer %q lacks CopyDst usage", dst.label)
	}
	if len(src.data) != len(dst.data) {
		return fmt.Errorf("%w: %q is %d bytes, %q is %d", ErrSizeMismatch, src.label, len(src.data), dst.label, len(dst.data))
	}
	copy(dst.data, src.data)
	return nil
}

// dispatch runs the single invocation: build the template matrix and store
// one scaled copy per written array slot.
func (e *Emulator) dispatch(prog *shader.Program, storage []byte) {
	p := prog.Params
	stride := p.RowStride()
	if e.Packed {
		stride = p.Rows
	}
	for i := 0; i < p.Matrices; i++ {
		if !prog.Writes(i) {
			continue
		}
		for j := 0; j < p.Columns; j++ {
			for k := 0; k < p.Rows; k++ {
				v := float32(p.Scale(i) * p.TemplateValue(j, k))
				off := (i*p.Columns*stride + j*stride + k) * 4
				binary.LittleEndian.PutUint32(storage[off:], math.Float32bits(v))
			}
		}
	}
}
