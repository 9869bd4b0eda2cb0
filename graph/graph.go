// Package graph orders derived series by their dependencies and steps
// them once per clock tick, or recomputes them in batch.
package graph

import (
	"fmt"

	"github.com/rustyeddy/barsim/line"
)

// Computable is the kernel of a derived series.
//
// Step receives the newest value of every input, in Inputs order, and
// returns the output for this tick once Window input rows were consumed.
type Computable interface {
	Name() string
	Inputs() []string
	Window() int
	Reset()
	Step(in []float64) (float64, bool)
}

// Vectorized kernels can process all rows in one call. Compute must
// return exactly what the equivalent Step sequence would, starting from
// a reset kernel.
type Vectorized interface {
	Computable
	Compute(rows [][]float64) (out []float64, ok []bool)
}

type node struct {
	name      string
	kernel    Computable // nil for sources
	inputs    []*node
	out       *line.Line
	minperiod int
	depth     int
	calls     int
}

// Graph owns the source lines fed by the clock and the derived nodes
// computed from them.
type Graph struct {
	nodes  map[string]*node
	order  []*node // registration order until sealed, topological after
	deps   map[string][]string
	sealed bool
	ticks  int
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
		deps:  make(map[string][]string),
	}
}

// AddSource registers a raw input line written by the caller on every tick.
func (g *Graph) AddSource(name string) (*line.Line, error) {
	if g.sealed {
		return nil, ErrSealed
	}
	if _, dup := g.nodes[name]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, name)
	}
	n := &node{name: name, out: line.New(name), minperiod: 1}
	g.nodes[name] = n
	g.order = append(g.order, n)
	return n.out, nil
}

// Register adds a derived node. Inputs may name nodes registered later,
// but never the node itself, directly or transitively.
func (g *Graph) Register(c Computable) error {
	if g.sealed {
		return ErrSealed
	}
	name := c.Name()
	if _, dup := g.nodes[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, name)
	}
	if c.Window() < 1 {
		return fmt.Errorf("%s: %w", name, ErrBadWindow)
	}
	inputs := append([]string(nil), c.Inputs()...)
	for _, in := range inputs {
		if path := g.pathTo(in, name, nil); path != nil {
			return &CyclicDependencyError{Path: append([]string{name}, path...)}
		}
	}
	g.deps[name] = inputs
	n := &node{name: name, kernel: c, out: line.New(name)}
	g.nodes[name] = n
	g.order = append(g.order, n)
	return nil
}

// pathTo returns the dependency path from "from" to "target", or nil.
func (g *Graph) pathTo(from, target string, seen map[string]bool) []string {
	if from == target {
		return []string{from}
	}
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[from] {
		return nil
	}
	seen[from] = true
	for _, next := range g.deps[from] {
		if p := g.pathTo(next, target, seen); p != nil {
			return append([]string{from}, p...)
		}
	}
	return nil
}

// Seal resolves inputs, fixes the update order and computes minperiods.
// No node can be added afterwards.
func (g *Graph) Seal() error {
	if g.sealed {
		return ErrSealed
	}
	for _, n := range g.order {
		for _, in := range g.deps[n.name] {
			dep, ok := g.nodes[in]
			if !ok {
				return fmt.Errorf("%s: %w %q", n.name, ErrUnknownInput, in)
			}
			n.inputs = append(n.inputs, dep)
		}
	}

	// Kahn's algorithm; ties resolve in registration order.
	indeg := make(map[*node]int, len(g.order))
	users := make(map[*node][]*node)
	for _, n := range g.order {
		indeg[n] = len(n.inputs)
		for _, in := range n.inputs {
			users[in] = append(users[in], n)
		}
	}
	sorted := make([]*node, 0, len(g.order))
	done := make(map[*node]bool, len(g.order))
	for len(sorted) < len(g.order) {
		progressed := false
		for _, n := range g.order {
			if done[n] || indeg[n] != 0 {
				continue
			}
			done[n] = true
			sorted = append(sorted, n)
			for _, u := range users[n] {
				indeg[u]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Register rejects cycles; reaching here means the graph was corrupted.
			return fmt.Errorf("%w: no topological order", ErrInvariant)
		}
	}

	for _, n := range sorted {
		if n.kernel == nil {
			continue
		}
		maxIn, depth := 0, 0
		for _, in := range n.inputs {
			maxIn = max(maxIn, in.minperiod)
			depth = max(depth, in.depth+1)
		}
		n.minperiod = maxIn + n.kernel.Window() - 1
		n.depth = depth
	}

	g.order = sorted
	g.sealed = true
	return nil
}

// Step computes every derived node for the tick the caller just wrote
// to the source lines.
//
// A node computes when all inputs are ready and at least one is fresh.
// Otherwise it carries its last value over as stale, so ticks without
// new input never count toward its window.
func (g *Graph) Step() error {
	if !g.sealed {
		return ErrNotSealed
	}
	g.ticks++
	for _, n := range g.order {
		if n.kernel == nil {
			if n.out.Len() != g.ticks {
				return fmt.Errorf("%w: source %s has %d entries at tick %d", ErrInvariant, n.name, n.out.Len(), g.ticks)
			}
			continue
		}
		if err := g.stepNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) stepNode(n *node) error {
	row, ready, fresh := gather(n)
	if !ready {
		n.out.AppendEmpty()
		return nil
	}
	if !fresh {
		n.out.AppendStale()
		return nil
	}
	n.calls++
	v, ok := n.kernel.Step(row)
	if ok && n.calls < n.kernel.Window() {
		return fmt.Errorf("%w: %s produced a value after %d of %d rows", ErrInvariant, n.name, n.calls, n.kernel.Window())
	}
	if !ok {
		n.out.AppendEmpty()
		return nil
	}
	n.out.Append(v)
	return nil
}

func gather(n *node) (row []float64, ready, fresh bool) {
	row = make([]float64, len(n.inputs))
	for i, in := range n.inputs {
		v, ok := in.out.Current()
		if !ok {
			return nil, false, false
		}
		row[i] = v
		fresh = fresh || in.out.Fresh()
	}
	return row, true, fresh
}

// Line returns the output line of a node or source.
func (g *Graph) Line(name string) (*line.Line, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	return n.out, true
}

// MinPeriod returns the number of fresh ticks a node needs before its
// first valid value. Only meaningful after Seal.
func (g *Graph) MinPeriod(name string) (int, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return 0, false
	}
	return n.minperiod, true
}

// Order returns node names in update order.
func (g *Graph) Order() []string {
	names := make([]string, len(g.order))
	for i, n := range g.order {
		names[i] = n.name
	}
	return names
}

// Ticks returns the number of completed Step calls.
func (g *Graph) Ticks() int { return g.ticks }

// Freeze makes every line read-only.
func (g *Graph) Freeze() {
	for _, n := range g.order {
		n.out.Freeze()
	}
}
