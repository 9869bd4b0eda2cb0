package strategies

import "github.com/rustyeddy/barsim/engine"

// Noop does nothing. Useful for levels that only feed indicators.
type Noop struct{}

func (Noop) OnBar(*engine.Context) error { return nil }
