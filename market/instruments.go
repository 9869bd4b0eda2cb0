package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownInstrument is returned for references outside the universe.
var ErrUnknownInstrument = errors.New("unknown instrument")

// InstrumentMeta describes a tradable instrument.
type InstrumentMeta struct {
	Name string `json:"name" yaml:"name"`

	// Suspended lists the bar close times at which the instrument cannot
	// be traded.
	Suspended []time.Time `json:"suspended,omitempty" yaml:"suspended,omitempty"`
}

// Universe is the immutable set of instruments of a run.
type Universe struct {
	meta      map[string]InstrumentMeta
	names     []string
	suspended map[string]map[int64]struct{}
}

// NewUniverse builds a universe; duplicate or empty names are an error.
func NewUniverse(instruments ...InstrumentMeta) (*Universe, error) {
	u := &Universe{
		meta:      make(map[string]InstrumentMeta, len(instruments)),
		suspended: make(map[string]map[int64]struct{}),
	}
	for _, in := range instruments {
		if in.Name == "" {
			return nil, fmt.Errorf("universe: empty instrument name")
		}
		if _, dup := u.meta[in.Name]; dup {
			return nil, fmt.Errorf("universe: duplicate instrument %q", in.Name)
		}
		u.meta[in.Name] = in
		u.names = append(u.names, in.Name)
		if len(in.Suspended) > 0 {
			set := make(map[int64]struct{}, len(in.Suspended))
			for _, t := range in.Suspended {
				set[t.UnixNano()] = struct{}{}
			}
			u.suspended[in.Name] = set
		}
	}
	sort.Strings(u.names)
	return u, nil
}

// Names returns instrument names in sorted order.
func (u *Universe) Names() []string {
	return append([]string(nil), u.names...)
}

// Has reports whether the instrument belongs to the universe.
func (u *Universe) Has(name string) bool {
	_, ok := u.meta[name]
	return ok
}

// Check returns ErrUnknownInstrument for names outside the universe.
func (u *Universe) Check(name string) error {
	if !u.Has(name) {
		return fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return nil
}

// Suspended reports whether trading in name is halted at t.
func (u *Universe) Suspended(name string, t time.Time) bool {
	set, ok := u.suspended[name]
	if !ok {
		return false
	}
	_, hit := set[t.UnixNano()]
	return hit
}
