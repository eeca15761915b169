// Package sensor provides pressure sources for the recorder.
package sensor

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
)

// ErrNoData is returned when a source has no value to report yet.
var ErrNoData = errors.New("no sensor data")

// Source yields the current pressure in hPa.
type Source interface {
	Read(ctx context.Context) (float64, error)
}

// Baseline and Spread define the simulated pressure range.
const (
	Baseline = 1013.0
	Spread   = 5.0
)

// Simulated produces values uniformly within Baseline ± Spread, rounded to
// one decimal place.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated source. The same seed yields the same
// sequence.
func NewSimulated(seed uint64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Read implements Source.
func (s *Simulated) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	offset := (s.rng.Float64()*2 - 1) * Spread
	s.mu.Unlock()

	return math.Round((Baseline+offset)*10) / 10, nil
}
