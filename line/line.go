// Package line implements the append-only, lookback-capable value buffers
// that feeds and indicators write once per clock tick.
package line

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLookbackUnderflow is returned when reading further back than the
	// recorded history. It always indicates a bug in the caller.
	ErrLookbackUnderflow = errors.New("lookback underflow")

	// ErrNotReady is returned when the addressed entry holds no value yet.
	ErrNotReady = errors.New("value not ready")
)

// Line is an ordered sequence of float64 values, one per tick of its owner.
// Each entry is either empty (not ready), or holds a value that was either
// computed on that tick (fresh) or carried over from an earlier tick (stale).
type Line struct {
	name   string
	values []float64
	valid  []bool
	fresh  []bool
	frozen bool
}

// New returns an empty line.
func New(name string) *Line {
	return &Line{name: name}
}

func (l *Line) Name() string { return l.name }

// Len returns the number of recorded ticks.
func (l *Line) Len() int { return len(l.values) }

// Append records a freshly computed value for the current tick.
func (l *Line) Append(v float64) {
	l.push(v, true, true)
}

// AppendStale repeats the last value, marked stale. If nothing valid was
// recorded before, the entry is empty.
func (l *Line) AppendStale() {
	n := len(l.values)
	if n == 0 || !l.valid[n-1] {
		l.push(math.NaN(), false, false)
		return
	}
	l.push(l.values[n-1], true, false)
}

// AppendEmpty records a tick without a value.
func (l *Line) AppendEmpty() {
	l.push(math.NaN(), false, false)
}

func (l *Line) push(v float64, valid, fresh bool) {
	if l.frozen {
		panic(fmt.Sprintf("line %s: append after freeze", l.name))
	}
	l.values = append(l.values, v)
	l.valid = append(l.valid, valid)
	l.fresh = append(l.fresh, fresh)
}

// Freeze makes the line read-only; further appends panic.
func (l *Line) Freeze() { l.frozen = true }

// At returns the value ago ticks before the current one (0 is current).
func (l *Line) At(ago int) (float64, error) {
	i := len(l.values) - 1 - ago
	if ago < 0 || i < 0 {
		return 0, fmt.Errorf("%s[-%d] with %d entries: %w", l.name, ago, len(l.values), ErrLookbackUnderflow)
	}
	if !l.valid[i] {
		return 0, fmt.Errorf("%s[-%d]: %w", l.name, ago, ErrNotReady)
	}
	return l.values[i], nil
}

// Current returns the newest value and whether it is ready.
func (l *Line) Current() (float64, bool) {
	n := len(l.values)
	if n == 0 || !l.valid[n-1] {
		return 0, false
	}
	return l.values[n-1], true
}

// Ready reports whether the newest entry holds a value.
func (l *Line) Ready() bool {
	_, ok := l.Current()
	return ok
}

// Fresh reports whether the newest entry was computed on the current tick.
func (l *Line) Fresh() bool {
	n := len(l.fresh)
	return n > 0 && l.fresh[n-1]
}

// Snapshot copies the full history: values, ready flags and fresh flags.
// Empty entries hold NaN.
func (l *Line) Snapshot() (values []float64, valid, fresh []bool) {
	values = append([]float64(nil), l.values...)
	valid = append([]bool(nil), l.valid...)
	fresh = append([]bool(nil), l.fresh...)
	return values, valid, fresh
}

// Equal reports whether two lines hold bit-identical histories.
func (l *Line) Equal(o *Line) bool {
	if l.Len() != o.Len() {
		return false
	}
	for i := range l.values {
		if l.valid[i] != o.valid[i] || l.fresh[i] != o.fresh[i] {
			return false
		}
		if l.valid[i] && math.Float64bits(l.values[i]) != math.Float64bits(o.values[i]) {
			return false
		}
	}
	return true
}

// View is a read-only handle on a line, handed to strategies.
type View struct {
	l         *Line
	underflow func(error)
}

// ReadOnly returns a view of l.
func (l *Line) ReadOnly() View { return View{l: l} }

// Watched returns a view of l that also reports every lookback underflow
// to fn, so dropping the error returned by At does not hide it.
func (l *Line) Watched(fn func(error)) View { return View{l: l, underflow: fn} }

func (v View) Name() string { return v.l.Name() }
func (v View) Len() int { return v.l.Len() }

func (v View) At(ago int) (float64, error) {
	val, err := v.l.At(ago)
	if v.underflow != nil && errors.Is(err, ErrLookbackUnderflow) {
		v.underflow(err)
	}
	return val, err
}

func (v View) Current() (float64, bool) { return v.l.Current() }
func (v View) Ready() bool { return v.l.Ready() }
func (v View) Fresh() bool { return v.l.Fresh() }
func (v View) Valid() bool { return v.l != nil }
