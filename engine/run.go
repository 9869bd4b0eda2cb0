package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/graph"
	"github.com/rustyeddy/barsim/ledger"
	"github.com/rustyeddy/barsim/line"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/id"
	"github.com/rustyeddy/barsim/report"
)

// Level is one timeframe of a run: the feeds on its clock and the
// strategy that decides on its ticks. Strategy may be nil.
type Level struct {
	Name     string
	Feeds    []*feed.Feed
	Strategy OrderSource
}

type level struct {
	index       int
	name        string
	feeds       []*feed.Feed
	sync        *feed.Synchronizer
	graph       *graph.Graph
	instruments []string
	sources     map[string][]*line.Line
	strategy    OrderSource
	ctx         *Context
	ticks       int
}

type options struct {
	log      *slog.Logger
	handlers []Handler
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithHandlers appends handlers after the strategies and the statistics
// collector.
func WithHandlers(h ...Handler) Option {
	return func(o *options) { o.handlers = append(o.handlers, h...) }
}

// RunContext owns every piece of mutable state of one run. It is not
// safe for concurrent use; strategies reach it through Context.
type RunContext struct {
	cfg       Config
	log       *slog.Logger
	universe  *market.Universe
	broker    *broker.Simulator
	ledger    *ledger.Ledger
	collector *report.Collector
	handlers  []Handler
	levels    []*level

	state     State
	active    *level
	underflow error
	now    time.Time
	first  time.Time
	trades []broker.Trade

	runID        string
	configDigest string
	inputDigest  string
	report       *report.Report
}

func newRun(cfg Config, specs []Level, opts ...Option) (*RunContext, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	universe, err := market.NewUniverse(cfg.Universe...)
	if err != nil {
		return nil, err
	}
	sim, err := broker.NewSimulator(cfg.Broker, universe, broker.WithLogger(o.log))
	if err != nil {
		return nil, err
	}

	r := &RunContext{
		cfg:          cfg,
		log:          o.log,
		universe:     universe,
		broker:       sim,
		ledger:       ledger.New(cfg.InitialCash, cfg.Broker.Margin),
		configDigest: cfg.digest(),
	}
	names := make([]string, len(specs))
	for i, spec := range specs {
		lv, err := r.newLevel(i, spec)
		if err != nil {
			return nil, err
		}
		r.levels = append(r.levels, lv)
		names[i] = lv.name
	}
	r.collector = report.NewCollector(names...)
	for _, lv := range r.levels {
		if lv.strategy != nil {
			r.handlers = append(r.handlers, strategyHandler{level: lv.index, s: lv.strategy})
		}
	}
	r.handlers = append(r.handlers, collectorHandler{r.collector})
	r.handlers = append(r.handlers, o.handlers...)

	for _, lv := range r.levels {
		if init, ok := lv.strategy.(Initializer); ok {
			err := init.OnInit(lv.ctx)
			if uerr := r.takeUnderflow(); uerr != nil {
				err = fmt.Errorf("%w: %w", ErrInvariant, uerr)
			}
			if err != nil {
				return nil, fmt.Errorf("level %s: init strategy: %w", lv.name, err)
			}
		}
		if err := lv.graph.Seal(); err != nil {
			return nil, fmt.Errorf("level %s: %w", lv.name, err)
		}
	}

	r.inputDigest = r.digestInputs()
	for _, lv := range r.levels {
		if t, ok := lv.sync.Peek(); ok && (r.first.IsZero() || t.Before(r.first)) {
			r.first = t
		}
	}
	r.runID = id.Deterministic(r.first, []byte(r.configDigest+r.inputDigest))
	return r, nil
}

func (r *RunContext) newLevel(i int, spec Level) (*level, error) {
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("level%d", i)
	}
	if len(spec.Feeds) == 0 {
		return nil, fmt.Errorf("level %s: %w", name, ErrNoFeeds)
	}
	for _, f := range spec.Feeds {
		if err := r.universe.Check(f.Instrument()); err != nil {
			return nil, fmt.Errorf("level %s: %w", name, err)
		}
	}
	sync, err := feed.NewSynchronizer(r.cfg.Start, r.cfg.End, spec.Feeds...)
	if err != nil {
		return nil, fmt.Errorf("level %s: %w", name, err)
	}
	lv := &level{
		index:       i,
		name:        name,
		feeds:       spec.Feeds,
		sync:        sync,
		graph:       graph.New(),
		instruments: sync.Instruments(),
		sources:     make(map[string][]*line.Line),
		strategy:    spec.Strategy,
	}
	for _, inst := range lv.instruments {
		for _, f := range market.Fields() {
			l, err := lv.graph.AddSource(market.LineName(inst, f))
			if err != nil {
				return nil, fmt.Errorf("level %s: %w", name, err)
			}
			lv.sources[inst] = append(lv.sources[inst], l)
		}
	}
	lv.ctx = &Context{run: r, lv: lv}
	return lv, nil
}

// digestInputs hashes every bar of every level in a canonical CSV form.
func (r *RunContext) digestInputs() string {
	h := sha256.New()
	for _, lv := range r.levels {
		fmt.Fprintf(h, "# level %d %s\n", lv.index, lv.name)
		for _, f := range r.sortedFeeds(lv) {
			// hash.Hash never returns a write error.
			_ = feed.WriteCSV(h, f.Bars())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *RunContext) sortedFeeds(lv *level) []*feed.Feed {
	byName := make(map[string]*feed.Feed, len(lv.feeds))
	for _, f := range lv.feeds {
		byName[f.Instrument()] = f
	}
	out := make([]*feed.Feed, 0, len(lv.instruments))
	for _, inst := range lv.instruments {
		out = append(out, byName[inst])
	}
	return out
}

// execute runs the clock to exhaustion, cancellation or failure.
func (r *RunContext) execute(ctx context.Context) (*report.Report, error) {
	switch r.state {
	case Finished:
		return nil, ErrRunFinished
	case Initialized:
	default:
		return nil, fmt.Errorf("run already in state %s", r.state)
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	log := r.log.With("run", r.runID)
	log.Info("run started", "strategy", r.cfg.Name, "levels", len(r.levels), "instruments", r.universe.Names())
	r.state = Running
	for _, h := range r.handlers {
		if obs, ok := h.(RunObserver); ok {
			obs.OnRunStart(r.runID)
		}
	}

	err := r.drive(ctx, 0, time.Time{}, false)
	var rerr *RunError
	if errors.As(err, &rerr) {
		r.state = Finished
		log.Error("run aborted", "tick", rerr.Tick, "component", rerr.Component, "err", rerr.Err)
		return nil, err
	}

	r.state = Finished
	r.active = nil
	for _, lv := range r.levels {
		if fin, ok := lv.strategy.(Finisher); ok {
			fin.OnFinish(lv.ctx)
		}
		lv.graph.Freeze()
	}
	if cerr := r.ledger.Check(); cerr != nil {
		return nil, &RunError{Tick: r.ticks(), Time: r.now, Component: "ledger", Err: fmt.Errorf("%w: %w", ErrInvariant, cerr)}
	}

	rep := r.buildReport(err == nil)
	r.report = rep
	for _, h := range r.handlers {
		if obs, ok := h.(RunObserver); ok {
			obs.OnRunEnd(rep)
		}
	}
	if err != nil {
		log.Warn("run interrupted", "ticks", rep.Ticks, "err", err)
		return rep, fmt.Errorf("run interrupted after %d ticks: %w", rep.Ticks, err)
	}
	log.Info("run finished", "ticks", rep.Ticks, "trades", len(rep.Trades), "equity", rep.Account.Equity.String())
	return rep, nil
}

// drive steps level k through every timestamp up to until. Before each
// step the finer levels catch up to that timestamp, so a coarse bar is
// only seen once every fine bar inside it was processed.
func (r *RunContext) drive(ctx context.Context, k int, until time.Time, bounded bool) error {
	lv := r.levels[k]
	innermost := k == len(r.levels)-1
	for {
		next, ok := lv.sync.Peek()
		if !ok || (bounded && next.After(until)) {
			break
		}
		if !innermost {
			if err := r.drive(ctx, k+1, next, true); err != nil {
				return err
			}
		}
		if err := r.step(ctx, lv, innermost); err != nil {
			return err
		}
	}
	if !innermost {
		return r.drive(ctx, k+1, until, bounded)
	}
	return nil
}

func (r *RunContext) step(ctx context.Context, lv *level, innermost bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.state = Syncing
	now, _ := lv.sync.Advance()
	lv.ticks++
	r.now = now
	for _, inst := range lv.instruments {
		lines := lv.sources[inst]
		if !lv.sync.Fresh(inst) {
			for _, l := range lines {
				l.AppendStale()
			}
			continue
		}
		b, _ := lv.sync.Bar(inst)
		for i, f := range market.Fields() {
			lines[i].Append(b.Get(f).InexactFloat64())
		}
	}

	r.state = ComputingIndicators
	if err := lv.graph.Step(); err != nil {
		return r.fail(lv, "", "graph", err)
	}

	if lv.strategy != nil {
		r.state = StrategyCallback
		r.active = lv
		err := r.callStrategy(lv)
		r.active = nil
		if err != nil {
			return err
		}
	}

	r.state = OrderMatching
	var events []broker.Event
	if innermost {
		events = r.broker.Match(now, lv.sync, r.ledger)
	} else {
		events = r.broker.Accept(now, lv.sync, r.ledger)
	}

	r.state = LedgerUpdate
	for _, ev := range events {
		if err := r.dispatch(lv, ev); err != nil {
			return err
		}
	}
	if uerr := r.takeUnderflow(); uerr != nil {
		return r.fail(lv, "", "strategy", uerr)
	}
	equity := r.ledger.Mark(r)
	tick := Tick{Level: lv.index, Index: lv.ticks, Time: now, Cash: r.ledger.Cash(), Equity: equity}
	for _, h := range r.handlers {
		h.OnTick(tick)
	}
	r.log.Debug("tick", "level", lv.name, "n", lv.ticks, "time", now, "events", len(events))
	r.state = Running
	return nil
}

func (r *RunContext) callStrategy(lv *level) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = r.fail(lv, "", "strategy", fmt.Errorf("%w: panic: %v", ErrInvariant, p))
		}
	}()
	err = lv.strategy.OnBar(lv.ctx)
	if uerr := r.takeUnderflow(); uerr != nil {
		return r.fail(lv, "", "strategy", uerr)
	}
	if err != nil {
		return r.fail(lv, "", "strategy", err)
	}
	return nil
}

// underflowed records the first lookback underflow seen through a
// strategy's line views.
func (r *RunContext) underflowed(err error) {
	if r.underflow == nil && r.state != Finished {
		r.underflow = err
	}
}

func (r *RunContext) takeUnderflow() error {
	err := r.underflow
	r.underflow = nil
	return err
}

func (r *RunContext) dispatch(lv *level, ev broker.Event) error {
	var fill *Fill
	if ev.Trade != nil {
		t := *ev.Trade
		held := r.ledger.Quantity(t.Instrument)
		closing := !held.IsZero() && held.Sign() != int(t.Side)
		realized, err := r.ledger.Apply(t)
		if err != nil {
			return r.fail(lv, t.Instrument, "ledger", err)
		}
		r.trades = append(r.trades, t)
		fill = &Fill{Trade: t, Realized: realized, Closing: closing}
	}
	for _, h := range r.handlers {
		h.OnOrderUpdate(ev.Order)
	}
	if fill != nil {
		for _, h := range r.handlers {
			h.OnFill(*fill)
		}
	}
	return nil
}

// fail wraps err with the position of the run. Errors that reveal a bug
// are tagged with ErrInvariant.
func (r *RunContext) fail(lv *level, instrument, component string, err error) error {
	if !errors.Is(err, ErrInvariant) &&
		(errors.Is(err, graph.ErrInvariant) || errors.Is(err, ledger.ErrInvariant) || errors.Is(err, line.ErrLookbackUnderflow)) {
		err = fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return &RunError{
		Tick:       lv.ticks,
		Time:       r.now,
		Level:      lv.name,
		Component:  component,
		Instrument: instrument,
		Err:        err,
	}
}

// Bar returns the most recent bar of an instrument on any level. Marking
// uses it so positions follow the finest clock.
func (r *RunContext) Bar(instrument string) (market.Bar, bool) {
	var best market.Bar
	found := false
	for _, lv := range r.levels {
		b, ok := lv.sync.Bar(instrument)
		if ok && (!found || b.Time.After(best.Time)) {
			best, found = b, true
		}
	}
	return best, found
}

func (r *RunContext) ticks() int {
	return r.levels[0].ticks
}

func (r *RunContext) buildReport(complete bool) *report.Report {
	trades := r.trades
	if trades == nil {
		trades = []broker.Trade{}
	}
	account := r.ledger.Snapshot()
	return &report.Report{
		Version:      report.Version,
		RunID:        r.runID,
		Strategy:     r.cfg.Name,
		ConfigDigest: r.configDigest,
		InputDigest:  r.inputDigest,
		Complete:     complete,
		Start:        r.first,
		End:          r.now,
		Ticks:        r.ticks(),
		Account:      account,
		Trades:       trades,
		Orders:       r.broker.Orders(),
		Levels:       r.collector.Levels(),
		Stats:        r.collector.Stats(account.InitialCash, account.Equity),
		Equity:       r.collector.Equity(),
	}
}

type collectorHandler struct{ c *report.Collector }

func (h collectorHandler) OnOrderUpdate(o broker.Order) { h.c.Order(o) }
func (h collectorHandler) OnFill(f Fill)                { h.c.Fill(f.Trade, f.Realized, f.Closing) }
func (h collectorHandler) OnTick(t Tick)                { h.c.Tick(t.Level, t.Time, t.Cash, t.Equity) }

var _ ledger.Quotes = (*RunContext)(nil)
