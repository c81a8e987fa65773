// Package strategy defines the Strategy interface driven by the backtest loop
// and a Registry that builds strategies from configuration by name.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"replay/internal/domain"
)

// Params carries numeric strategy parameters from configuration.
type Params map[string]float64

// Float returns the parameter value or def when the key is absent.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns the parameter value truncated to int, or def when absent.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// OnBar is called for each OHLCV bar in chronological order. It returns
	// zero or more trading signals.
	OnBar(ctx context.Context, bar domain.Bar) ([]domain.Signal, error)
}

// Factory constructs a strategy instance from its parameters.
type Factory func(p Params) (Strategy, error)

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry under name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build constructs the named strategy with the given parameters.
func (r *Registry) Build(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", name, r.List())
	}
	return f(p)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
