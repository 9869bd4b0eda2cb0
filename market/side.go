package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or trade.
type Side int8

const (
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("Side(%d)", int8(s))
}

// Sign returns +1 for buys and -1 for sells as a decimal.
func (s Side) Sign() decimal.Decimal {
	return decimal.NewFromInt(int64(s))
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ParseSide accepts "buy"/"long" and "sell"/"short".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
