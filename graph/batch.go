package graph

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/barsim/line"
)

// Batch recomputes every derived node from the full history of its
// inputs. Nodes of equal depth run in parallel on up to workers
// goroutines (GOMAXPROCS when workers <= 0). The results replace the
// node lines and match what Step would have produced tick by tick.
// Kernels are reset first; the graph cannot be stepped afterwards.
func (g *Graph) Batch(ctx context.Context, workers int) error {
	if !g.sealed {
		return ErrNotSealed
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ticks := -1
	levels := map[int][]*node{}
	maxDepth := 0
	for _, n := range g.order {
		if n.kernel == nil {
			if ticks == -1 {
				ticks = n.out.Len()
			} else if n.out.Len() != ticks {
				return fmt.Errorf("%w: source %s has %d entries, expected %d", ErrInvariant, n.name, n.out.Len(), ticks)
			}
			continue
		}
		levels[n.depth] = append(levels[n.depth], n)
		maxDepth = max(maxDepth, n.depth)
	}
	if ticks < 0 {
		ticks = 0
	}

	for d := 1; d <= maxDepth; d++ {
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for _, n := range levels[d] {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return batchNode(n, ticks)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	g.ticks = ticks
	g.Freeze()
	return nil
}

func batchNode(n *node, ticks int) error {
	type history struct {
		values       []float64
		valid, fresh []bool
	}
	ins := make([]history, len(n.inputs))
	for i, in := range n.inputs {
		v, ok, f := in.out.Snapshot()
		ins[i] = history{v, ok, f}
	}

	const (
		empty = iota
		stale
		compute
	)
	kind := make([]int, ticks)
	var rows [][]float64
	for t := 0; t < ticks; t++ {
		row := make([]float64, len(ins))
		ready, fresh := true, false
		for i, h := range ins {
			if !h.valid[t] {
				ready = false
				break
			}
			row[i] = h.values[t]
			fresh = fresh || h.fresh[t]
		}
		switch {
		case !ready:
			kind[t] = empty
		case !fresh:
			kind[t] = stale
		default:
			kind[t] = compute
			rows = append(rows, row)
		}
	}

	n.kernel.Reset()
	n.calls = 0
	var out []float64
	var ok []bool
	if vec, isVec := n.kernel.(Vectorized); isVec {
		out, ok = vec.Compute(rows)
		n.kernel.Reset()
	} else {
		out = make([]float64, len(rows))
		ok = make([]bool, len(rows))
		for i, row := range rows {
			out[i], ok[i] = n.kernel.Step(row)
		}
	}
	if len(out) != len(rows) || len(ok) != len(rows) {
		return fmt.Errorf("%w: %s returned %d values for %d rows", ErrInvariant, n.name, len(out), len(rows))
	}

	l := line.New(n.name)
	r := 0
	for t := 0; t < ticks; t++ {
		switch kind[t] {
		case empty:
			l.AppendEmpty()
		case stale:
			l.AppendStale()
		default:
			n.calls++
			if ok[r] && n.calls < n.kernel.Window() {
				return fmt.Errorf("%w: %s produced a value after %d of %d rows", ErrInvariant, n.name, n.calls, n.kernel.Window())
			}
			if ok[r] {
				l.Append(out[r])
			} else {
				l.AppendEmpty()
			}
			r++
		}
	}
	n.out = l
	return nil
}
