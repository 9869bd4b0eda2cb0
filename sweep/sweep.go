// Package sweep runs one backtest per point of a parameter grid, several
// at a time. Every run gets its own engine; nothing is shared between
// them, so results do not depend on the worker count.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/report"
)

var ErrEmptyGrid = errors.New("sweep: empty grid")

// Grid maps a parameter name to the values to try.
type Grid map[string][]float64

// Point is one parameter assignment taken from a grid.
type Point map[string]float64

func (p Point) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// Points expands the grid into its cartesian product. Names are taken in
// sorted order and the last name varies fastest, so the order is stable.
func (g Grid) Points() []Point {
	if len(g) == 0 {
		return nil
	}
	names := make([]string, 0, len(g))
	for k, vs := range g {
		if len(vs) == 0 {
			return nil
		}
		names = append(names, k)
	}
	sort.Strings(names)

	points := []Point{{}}
	for _, name := range names {
		next := make([]Point, 0, len(points)*len(g[name]))
		for _, p := range points {
			for _, v := range g[name] {
				q := make(Point, len(p)+1)
				for k, x := range p {
					q[k] = x
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// ParseGrid reads "name=v1,v2,..." specs.
func ParseGrid(specs []string) (Grid, error) {
	g := Grid{}
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("bad grid spec %q: want name=v1,v2", spec)
		}
		for _, s := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("bad grid spec %q: %w", spec, err)
			}
			g[name] = append(g[name], v)
		}
	}
	return g, nil
}

// Factory builds the runner for grid point i.
type Factory func(i int, p Point) (engine.Runner, error)

// Result of one grid point. Err is set when the runner could not be
// built or the run failed; Report may still be set for interrupted runs.
type Result struct {
	Index  int
	Params Point
	Report *report.Report
	Err    error
}

type options struct {
	workers int
	log     *slog.Logger
}

type Option func(*options)

// WithWorkers bounds the number of runs in flight. Zero or less means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Run executes every point of the grid and returns the results in grid
// order. A failing point does not stop the others; canceling ctx does,
// and Run then returns ctx.Err() alongside whatever finished.
func Run(ctx context.Context, grid Grid, factory Factory, opts ...Option) ([]Result, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	points := grid.Points()
	if len(points) == 0 {
		return nil, ErrEmptyGrid
	}
	o.log.Info("sweep started", "points", len(points), "workers", o.workers)

	results := make([]Result, len(points))
	var eg errgroup.Group
	eg.SetLimit(o.workers)
	for i, p := range points {
		results[i] = Result{Index: i, Params: p}
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			continue
		}
		eg.Go(func() error {
			results[i].Report, results[i].Err = runPoint(ctx, factory, i, p)
			if err := results[i].Err; err != nil {
				o.log.Warn("sweep point failed", "index", i, "params", p.String(), "err", err)
			} else {
				o.log.Debug("sweep point done", "index", i, "params", p.String())
			}
			return nil
		})
	}
	_ = eg.Wait()

	o.log.Info("sweep finished", "points", len(points))
	return results, ctx.Err()
}

func runPoint(ctx context.Context, factory Factory, i int, p Point) (*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := factory(i, p)
	if err != nil {
		return nil, fmt.Errorf("point %d (%s): %w", i, p, err)
	}
	return r.Run(ctx)
}

// Best returns the successful result with the highest score.
func Best(results []Result, score func(*report.Report) float64) (Result, bool) {
	var best Result
	found := false
	for _, r := range results {
		if r.Err != nil || r.Report == nil {
			continue
		}
		if !found || score(r.Report) > score(best.Report) {
			best, found = r, true
		}
	}
	return best, found
}
