package layout

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer holds raw float32 bit patterns. Comparisons are done on the bits so
// a NaN guard compares equal to itself.
type Buffer []uint32

// Predict computes the layout the device is expected to produce. It is a pure
// function of p.
func Predict(p Params) Buffer {
	buf := make(Buffer, p.Floats())
	stride := p.RowStride()
	for i := 0; i < p.Matrices; i++ {
		scale := p.Scale(i)
		for j := 0; j < p.Columns; j++ {
			for k := 0; k < stride; k++ {
				off := p.Offset(i, j, k)
				if k >= p.Rows {
					buf[off] = Guard
					continue
				}
				buf[off] = math.Float32bits(float32(scale * p.TemplateValue(j, k)))
			}
		}
	}
	return buf
}

// GuardFill returns n slots of Guard.
func GuardFill(n int) Buffer {
	buf := make(Buffer, n)
	for i := range buf {
		buf[i] = Guard
	}
	return buf
}

// Bytes encodes the buffer little-endian, the byte order of GPU storage.
func (b Buffer) Bytes() []byte {
	out := make([]byte, len(b)*f32Size)
	for i, v := range b {
		binary.LittleEndian.PutUint32(out[i*f32Size:], v)
	}
	return out
}

// FromBytes decodes a little-endian read-back.
func FromBytes(data []byte) (Buffer, error) {
	if len(data)%f32Size != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of %d", len(data), f32Size)
	}
	buf := make(Buffer, len(data)/f32Size)
	for i := range buf {
		buf[i] = binary.LittleEndian.Uint32(data[i*f32Size:])
	}
	return buf, nil
}

func (b Buffer) Floats() []float32 {
	out := make([]float32, len(b))
	for i, v := range b {
		out[i] = math.Float32frombits(v)
	}
	return out
}

// GuardCount counts slots still holding Guard.
func (b Buffer) GuardCount() int {
	n := 0
	for _, v := range b {
		if v == Guard {
			n++
		}
	}
	return n
}
