// Package indicators provides technical analysis kernels for the
// dependency graph. Every kernel is deterministic and consumes one input
// row per fresh tick; Window reports how many rows it needs before its
// first value.
package indicators

import (
	"fmt"

	"github.com/rustyeddy/barsim/graph"
)

var (
	_ graph.Vectorized = (*SMA)(nil)
	_ graph.Vectorized = (*EMA)(nil)
	_ graph.Vectorized = (*CrossOver)(nil)
	_ graph.Computable = (*RSI)(nil)
	_ graph.Computable = (*ATR)(nil)
	_ graph.Computable = (*Extreme)(nil)
)

func checkPeriod(kind string, period int) {
	if period <= 0 {
		panic(fmt.Sprintf("%s: period must be positive, got %d", kind, period))
	}
}

// base carries the naming shared by all kernels.
type base struct {
	name   string
	inputs []string
}

func (b base) Name() string     { return b.name }
func (b base) Inputs() []string { return append([]string(nil), b.inputs...) }
