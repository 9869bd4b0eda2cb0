package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/barsim/market"
)

// Synchronizer merges the calendars of several feeds into one strictly
// increasing sequence of timestamps.
//
// At every timestamp each instrument is either updated (it has a bar at
// that instant) or stale (its last known bar stays readable). Nothing is
// interpolated. Bars outside [start, end] are skipped; a zero bound is
// open.
type Synchronizer struct {
	feeds []*Feed
	index map[string]int
	pos   []int
	last  []market.Bar
	seen  []bool
	fresh []bool

	start, end time.Time
	now        time.Time
	ticks      int
}

func NewSynchronizer(start, end time.Time, feeds ...*Feed) (*Synchronizer, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("synchronizer: end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	sorted := append([]*Feed(nil), feeds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].instrument < sorted[j].instrument })

	s := &Synchronizer{
		feeds: sorted,
		index: make(map[string]int, len(sorted)),
		pos:   make([]int, len(sorted)),
		last:  make([]market.Bar, len(sorted)),
		seen:  make([]bool, len(sorted)),
		fresh: make([]bool, len(sorted)),
		start: start,
		end:   end,
	}
	for i, f := range sorted {
		if _, dup := s.index[f.instrument]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFeed, f.instrument)
		}
		s.index[f.instrument] = i
		if !start.IsZero() {
			s.pos[i] = sort.Search(len(f.bars), func(k int) bool { return !f.bars[k].Time.Before(start) })
		}
	}
	return s, nil
}

// Instruments returns the instruments in the order the synchronizer
// reports them.
func (s *Synchronizer) Instruments() []string {
	names := make([]string, len(s.feeds))
	for i, f := range s.feeds {
		names[i] = f.instrument
	}
	return names
}

// Peek returns the timestamp the next Advance would move to.
func (s *Synchronizer) Peek() (time.Time, bool) {
	var next time.Time
	found := false
	for i, f := range s.feeds {
		if s.pos[i] >= len(f.bars) {
			continue
		}
		t := f.bars[s.pos[i]].Time
		if !s.end.IsZero() && t.After(s.end) {
			continue
		}
		if !found || t.Before(next) {
			next, found = t, true
		}
	}
	return next, found
}

// Advance moves to the next timestamp of the merged calendar. It returns
// false once every feed is exhausted.
func (s *Synchronizer) Advance() (time.Time, bool) {
	next, ok := s.Peek()
	if !ok {
		clear(s.fresh)
		return time.Time{}, false
	}
	for i, f := range s.feeds {
		s.fresh[i] = false
		if s.pos[i] < len(f.bars) && f.bars[s.pos[i]].Time.Equal(next) {
			s.last[i] = f.bars[s.pos[i]]
			s.seen[i] = true
			s.fresh[i] = true
			s.pos[i]++
		}
	}
	s.now = next
	s.ticks++
	return next, true
}

// AdvanceUntil advances only if the next timestamp is not after limit.
func (s *Synchronizer) AdvanceUntil(limit time.Time) (time.Time, bool) {
	next, ok := s.Peek()
	if !ok || next.After(limit) {
		return time.Time{}, false
	}
	return s.Advance()
}

// Now returns the current timestamp.
func (s *Synchronizer) Now() time.Time { return s.now }

// Ticks returns the number of timestamps advanced so far.
func (s *Synchronizer) Ticks() int { return s.ticks }

// Bar returns the last known bar of an instrument, which is the current
// one when Fresh reports true.
func (s *Synchronizer) Bar(instrument string) (market.Bar, bool) {
	i, ok := s.index[instrument]
	if !ok || !s.seen[i] {
		return market.Bar{}, false
	}
	return s.last[i], true
}

// Fresh reports whether the instrument has a bar at the current timestamp.
func (s *Synchronizer) Fresh(instrument string) bool {
	i, ok := s.index[instrument]
	return ok && s.fresh[i]
}

// Has reports whether a feed for instrument is registered.
func (s *Synchronizer) Has(instrument string) bool {
	_, ok := s.index[instrument]
	return ok
}
