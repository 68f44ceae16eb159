package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/23skdu/longbow-padcheck/internal/layout"
)

const (
	BackendWGPU     = "wgpu"
	BackendEmulator = "emulator"
)

// HarnessRows is the only row count the harness checks.
const HarnessRows = 3

type Config struct {
	Columns  int
	Matrices int

	// Skip lists array slots the generated program must not write.
	Skip []int

	Backend string

	LogLevel  string
	LogFormat string

	MetricsFile string
	FlightAddr  string
}

func (c *Config) Validate() error {
	if c.Columns < 2 || c.Columns > 4 {
		return fmt.Errorf("invalid columns: %d (must be in [2, 4])", c.Columns)
	}
	if c.Matrices <= 0 {
		return fmt.Errorf("invalid matrices: %d (must be positive)", c.Matrices)
	}
	for _, k := range c.Skip {
		if k < 0 || k >= c.Matrices {
			return fmt.Errorf("invalid skip instance: %d (must be in [0, %d))", k, c.Matrices)
		}
	}
	switch c.GetBackend() {
	case BackendWGPU, BackendEmulator:
	default:
		return fmt.Errorf("invalid backend: %q (must be %s or %s)", c.Backend, BackendWGPU, BackendEmulator)
	}
	return nil
}

func (c *Config) GetBackend() string {
	return strings.ToLower(c.Backend)
}

// Params is the matrix shape handed to both the predictor and the program
// generator.
func (c *Config) Params() layout.Params {
	return layout.Params{
		Columns:  c.Columns,
		Rows:     HarnessRows,
		Matrices: c.Matrices,
	}
}

// FaultInjection reports whether the run deliberately under-writes.
func (c *Config) FaultInjection() bool {
	return len(c.Skip) > 0
}

func Default() Config {
	return Config{
		Columns:   layout.DefaultColumns,
		Matrices:  layout.DefaultMatrices,
		Backend:   BackendWGPU,
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// ParseSkip parses a comma separated list of instance indices.
func ParseSkip(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		k, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid skip entry %q: %w", part, err)
		}
		out = append(out, k)
	}
	return out, nil
}
