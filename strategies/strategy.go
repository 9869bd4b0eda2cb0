// Package strategies holds the sample strategies and the registry the
// CLI and sweeps build them from.
package strategies

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/engine"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrBadParam        = errors.New("bad strategy parameter")
)

// Params are the numeric knobs of a strategy, as found in config files
// and sweep grids.
type Params map[string]float64

func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int reads a whole, positive parameter.
func (p Params) Int(key string, def int) (int, error) {
	v := p.Float(key, float64(def))
	if v < 1 || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", ErrBadParam, key, v)
	}
	return int(v), nil
}

func (p Params) Decimal(key string, def float64) decimal.Decimal {
	return decimal.NewFromFloat(p.Float(key, def))
}

// Factory builds a strategy trading the given instruments.
type Factory func(instruments []string, p Params) (engine.OrderSource, error)

var registry = map[string]Factory{}

// Register makes a factory available under name. It panics on duplicates.
func Register(name string, f Factory) {
	name = normalize(name)
	if _, dup := registry[name]; dup {
		panic("strategies: duplicate registration of " + name)
	}
	registry[name] = f
}

// New builds the strategy registered under name.
func New(name string, instruments []string, p Params) (engine.OrderSource, error) {
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("%s: no instruments", name)
	}
	return f(instruments, p)
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func init() {
	Register("noop", func([]string, Params) (engine.OrderSource, error) { return Noop{}, nil })
	Register("buy-hold", newBuyHold)
	Register("sma-cross", newSMACross)
	Register("breakout", newBreakout)
}
