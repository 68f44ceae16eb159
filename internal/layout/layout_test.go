package layout

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRowStride(t *testing.T) {
	tests := []struct {
		rows int
		want int
	}{
		{3, 4},
		{4, 4},
	}
	for _, tt := range tests {
		p := Params{Columns: 2, Rows: tt.rows, Matrices: 1}
		if got := p.RowStride(); got != tt.want {
			t.Errorf("rows=%d: RowStride() = %d, want %d", tt.rows, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"default", Default(), false},
		{"mat4x3", Params{Columns: 4, Rows: 3, Matrices: 1}, false},
		{"one column", Params{Columns: 1, Rows: 3, Matrices: 4}, true},
		{"five columns", Params{Columns: 5, Rows: 3, Matrices: 4}, true},
		{"two rows", Params{Columns: 2, Rows: 2, Matrices: 4}, true},
		{"five rows", Params{Columns: 2, Rows: 5, Matrices: 4}, true},
		{"zero matrices", Params{Columns: 2, Rows: 3, Matrices: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPredictSingleMat2x3(t *testing.T) {
	p := Params{Columns: 2, Rows: 3, Matrices: 1}
	got := Predict(p)

	g := Guard
	want := Buffer{
		math.Float32bits(1), math.Float32bits(2), math.Float32bits(3), g,
		math.Float32bits(4), math.Float32bits(5), math.Float32bits(6), g,
	}
	require.Equal(t, want, got)
}

func TestPredictDefaultLength(t *testing.T) {
	got := Predict(Default())
	require.Len(t, got, 32)
	require.Equal(t, 128, Default().Bytes())
}

func TestPredictPaddingHoldsGuard(t *testing.T) {
	for cols := 2; cols <= 4; cols++ {
		for n := 1; n <= 6; n++ {
			p := Params{Columns: cols, Rows: 3, Matrices: n}
			buf := Predict(p)
			for i := 0; i < n; i++ {
				for j := 0; j < cols; j++ {
					if v := buf[p.Offset(i, j, 3)]; v != Guard {
						t.Fatalf("%v: padding of matrix %d column %d = 0x%08X, want guard", p, i, j, v)
					}
				}
			}
		}
	}
}

func TestPredictScalingLaw(t *testing.T) {
	p := Params{Columns: 3, Rows: 3, Matrices: 5}
	buf := Predict(p).Floats()
	for i := 0; i < p.Matrices; i++ {
		s := float32(i + 1)
		for j := 0; j < p.Columns; j++ {
			base := float32(j * 3)
			want := [3]float32{s * (base + 1), s * (base + 2), s * (base + 3)}
			for k, w := range want {
				if got := buf[p.Offset(i, j, k)]; got != w {
					t.Errorf("matrix %d column %d slot %d = %v, want %v", i, j, k, got, w)
				}
			}
		}
	}
}

func TestPredictFourRowsHasNoPadding(t *testing.T) {
	p := Params{Columns: 2, Rows: 4, Matrices: 3}
	buf := Predict(p)
	require.Len(t, buf, 2*4*3)
	require.Zero(t, buf.GuardCount())
}

func TestPredictDeterministic(t *testing.T) {
	a := Predict(Default())
	b := Predict(Default())
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestLocateInvertsOffset(t *testing.T) {
	p := Params{Columns: 3, Rows: 3, Matrices: 4}
	for i := 0; i < p.Matrices; i++ {
		for j := 0; j < p.Columns; j++ {
			for k := 0; k < p.RowStride(); k++ {
				pos := p.Locate(p.Offset(i, j, k))
				want := Position{Matrix: i, Column: j, Slot: k, Padding: k == 3}
				if pos != want {
					t.Errorf("Locate(Offset(%d,%d,%d)) = %+v, want %+v", i, j, k, pos, want)
				}
			}
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	buf := Predict(Default())
	raw := buf.Bytes()
	require.Len(t, raw, Default().Bytes())
	// little-endian guard
	require.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, raw[12:16])

	back, err := FromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, buf, back)
}

func TestFromBytesRejectsPartialFloat(t *testing.T) {
	_, err := FromBytes(make([]byte, 7))
	require.Error(t, err)
}

func TestGuardFill(t *testing.T) {
	buf := GuardFill(10)
	require.Equal(t, 10, buf.GuardCount())
	// 0xDEADBEEF is a finite negative float
	require.False(t, math.IsNaN(float64(GuardFloat())))
	require.Less(t, GuardFloat(), float32(0))
	require.Equal(t, Guard, math.Float32bits(GuardFloat()))
}

func TestCompareEqual(t *testing.T) {
	p := Default()
	require.NoError(t, Compare(p, Predict(p), Predict(p)))
}

func TestCompareReportsFirstMismatch(t *testing.T) {
	p := Default()
	expected := Predict(p)
	observed := Predict(p)
	observed[p.Offset(1, 0, 3)] = 0
	observed[p.Offset(2, 1, 0)] = 0

	err := Compare(p, expected, observed)
	require.ErrorIs(t, err, ErrLayoutMismatch)

	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	require.Equal(t, p.Offset(1, 0, 3), mm.Index)
	require.Equal(t, Position{Matrix: 1, Column: 0, Slot: 3, Padding: true}, mm.Position)
	require.Equal(t, Guard, mm.Expected)
	require.Equal(t, uint32(0), mm.Observed)
	require.Equal(t, 2, mm.Count)
	require.Contains(t, mm.Error(), "0xDEADBEEF")
}

func TestCompareLengthMismatch(t *testing.T) {
	p := Default()
	err := Compare(p, Predict(p), Predict(p)[:8])
	require.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestCompareNaNGuardIsBitwise(t *testing.T) {
	p := Params{Columns: 2, Rows: 3, Matrices: 1}
	expected := Predict(p)
	observed := Predict(p)
	nan := math.Float32bits(float32(math.NaN()))
	expected[0], observed[0] = nan, nan
	require.NoError(t, Compare(p, expected, observed))
}
