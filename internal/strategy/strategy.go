// Package strategy defines the Strategy and Sizer interfaces, the Registry
// of named strategies, and the Backtester that chains signal generation,
// position sizing, accounting and performance evaluation.
package strategy

import (
	"context"
	"errors"
	"sort"

	"factorlab/internal/domain"
)

// ErrInvalidWindow is returned by strategies configured with a non-positive
// lookback window.
var ErrInvalidWindow = errors.New("window must be positive")

// Strategy turns a bar series into a signal table.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init validates parameters before any bars are processed.
	Init(ctx context.Context) error

	// Generate returns one SignalRow per bar, with Price, moving averages,
	// Signal and Positions populated. ATR and PositionSize are left for the
	// Sizer.
	Generate(ctx context.Context, bars []domain.Bar) ([]domain.SignalRow, error)
}

// SizingReport describes how a Sizer filled in the signal table.
type SizingReport struct {
	// Degenerate is true when volatility could not be measured for any row
	// and every size was set to zero.
	Degenerate bool
}

// Sizer fills in ATR and PositionSize on rows, which are aligned with bars.
type Sizer interface {
	Size(ctx context.Context, rows []domain.SignalRow, bars []domain.Bar) (SizingReport, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
