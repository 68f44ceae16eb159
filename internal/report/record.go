// Package report ships round-trip results as Arrow records, one row per
// float slot.
package report

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-padcheck/internal/harness"
)

const (
	colIndex = iota
	colMatrix
	colColumn
	colSlot
	colPadding
	colExpected
	colObserved
	colMatch
)

// Schema builds the record schema; the matrix shape travels as metadata.
func Schema(res *harness.Result) *arrow.Schema {
	skip := make([]string, len(res.Skip))
	for i, k := range res.Skip {
		skip[i] = strconv.Itoa(k)
	}
	md := arrow.NewMetadata(
		[]string{"columns", "rows", "matrices", "row_stride", "backend", "skip", "expected_len", "observed_len"},
		[]string{
			strconv.Itoa(res.Params.Columns),
			strconv.Itoa(res.Params.Rows),
			strconv.Itoa(res.Params.Matrices),
			strconv.Itoa(res.Params.RowStride()),
			res.Backend,
			strings.Join(skip, ","),
			strconv.Itoa(len(res.Expected)),
			strconv.Itoa(len(res.Observed)),
		},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "index", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "matrix", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "column", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "slot", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "padding", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "expected_bits", Type: arrow.PrimitiveTypes.Uint32, Nullable: true},
		{Name: "observed_bits", Type: arrow.PrimitiveTypes.Uint32, Nullable: true},
		{Name: "match", Type: arrow.FixedWidthTypes.Boolean},
	}, &md)
}

// NewRecord converts res into a record. The caller must Release it.
// When the buffers differ in length the record covers the longer one; slots
// missing on one side are null there and never match.
func NewRecord(mem memory.Allocator, res *harness.Result) arrow.Record {
	b := array.NewRecordBuilder(mem, Schema(res))
	defer b.Release()

	n := max(len(res.Expected), len(res.Observed))
	b.Reserve(n)

	index := b.Field(colIndex).(*array.Uint32Builder)
	matrix := b.Field(colMatrix).(*array.Uint32Builder)
	column := b.Field(colColumn).(*array.Uint32Builder)
	slot := b.Field(colSlot).(*array.Uint32Builder)
	padding := b.Field(colPadding).(*array.BooleanBuilder)
	expected := b.Field(colExpected).(*array.Uint32Builder)
	observed := b.Field(colObserved).(*array.Uint32Builder)
	match := b.Field(colMatch).(*array.BooleanBuilder)

	for i := 0; i < n; i++ {
		pos := res.Params.Locate(i)
		index.Append(uint32(i))
		matrix.Append(uint32(pos.Matrix))
		column.Append(uint32(pos.Column))
		slot.Append(uint32(pos.Slot))
		padding.Append(pos.Padding)
		if i >= len(res.Expected) || i >= len(res.Observed) {
			appendBits(expected, res.Expected, i)
			appendBits(observed, res.Observed, i)
			match.Append(false)
			continue
		}
		expected.Append(res.Expected[i])
		observed.Append(res.Observed[i])
		match.Append(res.Expected[i] == res.Observed[i])
	}
	return b.NewRecord()
}

func appendBits(b *array.Uint32Builder, buf []uint32, i int) {
	if i < len(buf) {
		b.Append(buf[i])
		return
	}
	b.AppendNull()
}
