package device

import (
	"errors"
	"testing"

	"github.com/23skdu/longbow-padcheck/internal/layout"
	"github.com/23skdu/longbow-padcheck/internal/shader"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, b Backend, p layout.Params, opts ...shader.Option) layout.Buffer {
	t.Helper()
	prog, err := shader.Generate(p, opts...)
	require.NoError(t, err)
	raw, err := b.RoundTrip(prog, layout.GuardFill(p.Floats()).Bytes())
	require.NoError(t, err)
	got, err := layout.FromBytes(raw)
	require.NoError(t, err)
	return got
}

func TestEmulatorMatchesPrediction(t *testing.T) {
	for cols := 2; cols <= 4; cols++ {
		p := layout.Params{Columns: cols, Rows: 3, Matrices: 4}
		got := roundTrip(t, NewEmulator(), p)
		require.NoError(t, layout.Compare(p, layout.Predict(p), got), "params %v", p)
	}
}

func TestEmulatorSkipLeavesGuard(t *testing.T) {
	p := layout.Default()
	got := roundTrip(t, NewEmulator(), p, shader.WithSkip(2))

	for j := 0; j < p.Columns; j++ {
		for k := 0; k < p.RowStride(); k++ {
			require.Equal(t, layout.Guard, got[p.Offset(2, j, k)], "column %d slot %d", j, k)
		}
	}

	err := layout.Compare(p, layout.Predict(p), got)
	var mm *layout.MismatchError
	require.True(t, errors.As(err, &mm))
	require.Equal(t, 2, mm.Position.Matrix)
	require.Equal(t, p.Columns*p.Rows, mm.Count)
}

func TestEmulatorPackedLayoutIsDetected(t *testing.T) {
	p := layout.Default()
	got := roundTrip(t, NewEmulator(WithPackedColumns()), p)

	err := layout.Compare(p, layout.Predict(p), got)
	var mm *layout.MismatchError
	require.True(t, errors.As(err, &mm))
	// the fourth float is where the first padding slot should be
	require.Equal(t, 3, mm.Index)
	require.True(t, mm.Position.Padding)
}

func TestEmulatorRejectsWrongInputSize(t *testing.T) {
	prog, err := shader.Generate(layout.Default())
	require.NoError(t, err)

	_, err = NewEmulator().RoundTrip(prog, make([]byte, 12))
	require.ErrorIs(t, err, ErrSizeMismatch)

	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, PhasePrime, pe.Phase)
	require.Equal(t, "emulator", pe.Backend)
}

func TestEmulatorDoesNotAliasInput(t *testing.T) {
	p := layout.Default()
	prog, err := shader.Generate(p)
	require.NoError(t, err)

	input := layout.GuardFill(p.Floats()).Bytes()
	_, err = NewEmulator().RoundTrip(prog, input)
	require.NoError(t, err)

	back, err := layout.FromBytes(input)
	require.NoError(t, err)
	require.Equal(t, p.Floats(), back.GuardCount())
}

func TestCopyBufferChecksUsage(t *testing.T) {
	src := &hostBuffer{label: "a", usage: usageStorage, data: make([]byte, 4)}
	dst := &hostBuffer{label: "b", usage: usageCopyDst, data: make([]byte, 4)}
	require.Error(t, copyBuffer(src, dst))

	src.usage |= usageCopySrc
	require.NoError(t, copyBuffer(src, dst))

	dst.data = make([]byte, 8)
	require.ErrorIs(t, copyBuffer(src, dst), ErrSizeMismatch)
}

func TestPhaseString(t *testing.T) {
	names := []string{"prime", "allocate", "bind", "encode", "submit", "readback"}
	for i, want := range names {
		if got := Phase(i).String(); got != want {
			t.Errorf("Phase(%d) = %q, want %q", i, got, want)
		}
	}
	if got := Phase(42).String(); got != "phase(42)" {
		t.Errorf("unknown phase = %q", got)
	}
}

func TestOpen(t *testing.T) {
	b, err := Open("emulator")
	require.NoError(t, err)
	require.Equal(t, "emulator", b.Name())
	b.Close()

	_, err = Open("metal")
	require.Error(t, err)
}
