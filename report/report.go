// Package report defines the versioned record a run produces and the
// statistics derived from it.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/ledger"
)

// Version is bumped whenever the JSON layout changes incompatibly.
const Version = 1

var ErrVersion = errors.New("unsupported report version")

// Report is the outcome of one run.
type Report struct {
	Version      int            `json:"version"`
	RunID        string         `json:"run_id"`
	Strategy     string         `json:"strategy,omitempty"`
	ConfigDigest string         `json:"config_digest"`
	InputDigest  string         `json:"input_digest"`
	Complete     bool           `json:"complete"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Ticks        int            `json:"ticks"`
	Account      ledger.Account `json:"account"`
	Trades       []broker.Trade `json:"trades"`
	Orders       []broker.Order `json:"orders"`
	Levels       []LevelStats   `json:"levels"`
	Stats        Stats          `json:"stats"`
	Equity       []EquityPoint  `json:"equity"`
}

// EquityPoint is the marked account value after one outer tick.
type EquityPoint struct {
	Time   time.Time       `json:"time"`
	Cash   decimal.Decimal `json:"cash"`
	Equity decimal.Decimal `json:"equity"`
}

// Marshal encodes the report as indented JSON.
func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Decode parses a report and checks its version.
func Decode(b []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if r.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, r.Version)
	}
	return &r, nil
}

// Fingerprint hashes the compact JSON encoding. Two runs with equal
// fingerprints produced identical reports.
func (r *Report) Fingerprint() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (r *Report) WriteFile(path string) error {
	b, err := r.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func ReadFile(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}
