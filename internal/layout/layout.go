// Package layout predicts the storage-buffer byte layout of an array of
// column-major float32 matrices as a WGSL compiler lays it out: every column
// is a vector padded up to 4 components, padding slots are never written.
package layout

import (
	"fmt"
	"math"
)

// Guard is the bit pattern pre-filled into every storage byte before a
// dispatch. Padding slots must still hold it afterwards.
const Guard uint32 = 0xDEADBEEF

const (
	DefaultColumns  = 2
	DefaultRows     = 3
	DefaultMatrices = 4

	vecAlign = 4
	f32Size  = 4
)

// GuardFloat returns Guard reinterpreted as a float32.
func GuardFloat() float32 {
	return math.Float32frombits(Guard)
}

// Params is shared by the host predictor and the program generator, so the
// two cannot drift apart.
type Params struct {
	Columns  int
	Rows     int
	Matrices int
}

// Default returns the 2-column, 3-row, 4-instance shape.
func Default() Params {
	return Params{
		Columns:  DefaultColumns,
		Rows:     DefaultRows,
		Matrices: DefaultMatrices,
	}
}

func (p Params) Validate() error {
	if p.Columns < 2 || p.Columns > 4 {
		return fmt.Errorf("invalid columns: %d (must be in [2, 4])", p.Columns)
	}
	if p.Rows < 3 || p.Rows > 4 {
		return fmt.Errorf("invalid rows: %d (must be in [3, 4])", p.Rows)
	}
	if p.Matrices <= 0 {
		return fmt.Errorf("invalid matrices: %d (must be positive)", p.Matrices)
	}
	return nil
}

// RowStride is the number of float slots one column occupies: Rows rounded
// up to a multiple of 4.
func (p Params) RowStride() int {
	return (p.Rows + vecAlign - 1) / vecAlign * vecAlign
}

// MatrixFloats is the slot count of a single matrix.
func (p Params) MatrixFloats() int {
	return p.Columns * p.RowStride()
}

// Floats is the slot count of the whole array.
func (p Params) Floats() int {
	return p.MatrixFloats() * p.Matrices
}

// Bytes is the storage size of the whole array.
func (p Params) Bytes() int {
	return p.Floats() * f32Size
}

// TemplateValue is the value the template matrix holds at (col, row).
func (p Params) TemplateValue(col, row int) uint32 {
	return uint32(col*p.Rows + row + 1)
}

// Scale is the factor applied to the template for array slot i.
func (p Params) Scale(i int) uint32 {
	return uint32(i + 1)
}

// Offset returns the float index of slot k in column j of matrix i.
func (p Params) Offset(i, j, k int) int {
	return i*p.MatrixFloats() + j*p.RowStride() + k
}

// Position names one float slot of the buffer.
type Position struct {
	Matrix  int
	Column  int
	Slot    int
	Padding bool
}

func (pos Position) String() string {
	kind := "data"
	if pos.Padding {
		kind = "padding"
	}
	return fmt.Sprintf("matrix %d column %d slot %d (%s)", pos.Matrix, pos.Column, pos.Slot, kind)
}

// Locate is the inverse of Offset.
func (p Params) Locate(idx int) Position {
	stride := p.RowStride()
	slot := idx % stride
	return Position{
		Matrix:  idx / p.MatrixFloats(),
		Column:  (idx % p.MatrixFloats()) / stride,
		Slot:    slot,
		Padding: slot >= p.Rows,
	}
}

func (p Params) String() string {
	return fmt.Sprintf("array<mat%dx%d<f32>, %d>", p.Columns, p.Rows, p.Matrices)
}
