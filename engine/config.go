package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
)

// Config is the immutable description of a run.
type Config struct {
	Name        string
	Universe    []market.InstrumentMeta
	Start       time.Time
	End         time.Time
	InitialCash decimal.Decimal
	Broker      broker.Config

	// Timeout bounds the whole run; zero means none.
	Timeout time.Duration

	// Digest identifies the configuration. When empty it is derived
	// from the fields above.
	Digest string
}

func (c Config) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("config: empty instrument universe")
	}
	if !c.InitialCash.IsPositive() {
		return fmt.Errorf("config: initial cash must be positive")
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start) {
		return fmt.Errorf("config: end before start")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout")
	}
	return c.Broker.Validate()
}

func (c Config) digest() string {
	if c.Digest != "" {
		return c.Digest
	}
	b, err := json.Marshal(struct {
		Config
		CommissionModel string
	}{c, fmt.Sprintf("%T", c.Broker.Commission)})
	if err != nil {
		// Every field is plain data.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
