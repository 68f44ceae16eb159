package layout

import (
	"errors"
	"fmt"
	"math"
)

var ErrLayoutMismatch = errors.New("layout mismatch")

// MismatchError reports the first slot where the observed layout differs from
// the prediction.
type MismatchError struct {
	Index    int
	Position Position
	Expected uint32
	Observed uint32
	Count    int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("layout mismatch at float %d, %s: expected 0x%08X (%v), observed 0x%08X (%v); %d slot(s) differ",
		e.Index, e.Position,
		e.Expected, math.Float32frombits(e.Expected),
		e.Observed, math.Float32frombits(e.Observed),
		e.Count)
}

func (e *MismatchError) Unwrap() error {
	return ErrLayoutMismatch
}

// Compare checks observed against expected bit for bit.
func Compare(p Params, expected, observed Buffer) error {
	if len(expected) != len(observed) {
		return fmt.Errorf("%w: expected %d floats, observed %d", ErrLayoutMismatch, len(expected), len(observed))
	}

	diffs := Diff(expected, observed)
	if len(diffs) == 0 {
		return nil
	}
	first := diffs[0]
	return &MismatchError{
		Index:    first,
		Position: p.Locate(first),
		Expected: expected[first],
		Observed: observed[first],
		Count:    len(diffs),
	}
}

// Diff lists every index where a and b differ. Both must have equal length.
func Diff(a, b Buffer) []int {
	var out []int
	for i := range a {
		if a[i] != b[i] {
			out = append(out, i)
		}
	}
	return out
}
