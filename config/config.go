package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/market"
)

// Run is the complete, file-backed description of a backtest. It is
// turned into the immutable engine configuration at run construction.
type Run struct {
	Account     AccountConfig      `json:"account" yaml:"account"`
	Instruments []InstrumentConfig `json:"instruments" yaml:"instruments"`
	Period      PeriodConfig       `json:"period" yaml:"period"`
	Execution   ExecutionConfig    `json:"execution" yaml:"execution"`
	Levels      []LevelConfig      `json:"levels" yaml:"levels"`
	Journal     JournalConfig      `json:"journal" yaml:"journal"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Currency    string          `json:"currency" yaml:"currency"`
	InitialCash decimal.Decimal `json:"initial_cash" yaml:"initial_cash"`
	Margin      bool            `json:"margin" yaml:"margin"`
}

// InstrumentConfig declares a member of the universe. Suspended holds
// bar close times at which the instrument cannot trade.
type InstrumentConfig struct {
	Name      string   `json:"name" yaml:"name"`
	Suspended []string `json:"suspended,omitempty" yaml:"suspended,omitempty"`
}

// PeriodConfig bounds the calendar; empty bounds are open.
type PeriodConfig struct {
	Start   string `json:"start,omitempty" yaml:"start,omitempty"`
	End     string `json:"end,omitempty" yaml:"end,omitempty"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "30s", "5m"
}

// ExecutionConfig is the broker model.
type ExecutionConfig struct {
	Commission       CommissionConfig `json:"commission" yaml:"commission"`
	Slippage         SlippageConfig   `json:"slippage" yaml:"slippage"`
	FillPolicy       string           `json:"fill_policy" yaml:"fill_policy"` // "conservative" or "optimistic"
	MarketFill       string           `json:"market_fill" yaml:"market_fill"` // "next_open" or "current_close"
	ParticipationCap decimal.Decimal  `json:"participation_cap" yaml:"participation_cap"`
}

type CommissionConfig struct {
	Model   string          `json:"model" yaml:"model"` // "none", "flat", "per_share" or "percent"
	Rate    decimal.Decimal `json:"rate" yaml:"rate"`
	Minimum decimal.Decimal `json:"minimum" yaml:"minimum"`
}

type SlippageConfig struct {
	BaseBps decimal.Decimal `json:"base_bps" yaml:"base_bps"`
	Impact  decimal.Decimal `json:"impact" yaml:"impact"`
}

// LevelConfig is one timeframe: its data files and its strategy. The
// first level is the outermost.
type LevelConfig struct {
	Name     string         `json:"name" yaml:"name"`
	Files    []string       `json:"files" yaml:"files"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
}

// StrategyConfig names a registered strategy and its parameters. An
// empty name leaves the level without a strategy.
type StrategyConfig struct {
	Name   string             `json:"name,omitempty" yaml:"name,omitempty"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type,omitempty" yaml:"type,omitempty"` // "", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML or JSON and validates the result.
func Parse(data []byte) (*Run, error) {
	cfg := &Run{}

	// YAML is a superset of JSON, but JSON errors read better.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolve makes relative data paths relative to the config file.
func (c *Run) resolve(dir string) {
	for i := range c.Levels {
		for j, f := range c.Levels[i].Files {
			if !filepath.IsAbs(f) {
				c.Levels[i].Files[j] = filepath.Join(dir, f)
			}
		}
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Run) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Run) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if !c.Account.InitialCash.IsPositive() {
		return fmt.Errorf("account.initial_cash must be positive")
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	seen := map[string]bool{}
	for _, in := range c.Instruments {
		if in.Name == "" {
			return fmt.Errorf("instrument name is required")
		}
		if seen[in.Name] {
			return fmt.Errorf("duplicate instrument %s", in.Name)
		}
		seen[in.Name] = true
		for _, s := range in.Suspended {
			if _, err := ParseTime(s); err != nil {
				return fmt.Errorf("instrument %s: suspended: %w", in.Name, err)
			}
		}
	}

	start, end, err := c.Period.Bounds()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("period.end must not be before period.start")
	}
	if _, err := c.Period.ParseTimeout(); err != nil {
		return fmt.Errorf("period.timeout: %w", err)
	}

	if _, err := c.Execution.Broker(c.Account.Margin); err != nil {
		return err
	}

	if len(c.Levels) == 0 {
		return fmt.Errorf("at least one level is required")
	}
	for i, lv := range c.Levels {
		if len(lv.Files) == 0 {
			return fmt.Errorf("levels[%d]: at least one data file is required", i)
		}
	}

	switch c.Journal.Type {
	case "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Run {
	return &Run{
		Account: AccountConfig{
			Currency:    "USD",
			InitialCash: decimal.NewFromInt(100000),
		},
		Instruments: []InstrumentConfig{{Name: "SPY"}},
		Period:      PeriodConfig{Timeout: "10m"},
		Execution: ExecutionConfig{
			Commission: CommissionConfig{Model: "per_share", Rate: decimal.RequireFromString("0.005"), Minimum: decimal.NewFromInt(1)},
			Slippage:   SlippageConfig{BaseBps: decimal.NewFromInt(1), Impact: decimal.RequireFromString("0.1")},
			FillPolicy: "conservative",
			MarketFill: "next_open",
		},
		Levels: []LevelConfig{{
			Name:  "daily",
			Files: []string{"data/spy.csv"},
			Strategy: StrategyConfig{
				Name:   "sma-cross",
				Params: map[string]float64{"fast": 10, "slow": 30, "quantity": 100},
			},
		}},
	}
}

// ParseTime accepts RFC 3339 timestamps and plain dates.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// Bounds parses the calendar bounds; zero values are open.
func (p PeriodConfig) Bounds() (start, end time.Time, err error) {
	if p.Start != "" {
		if start, err = ParseTime(p.Start); err != nil {
			return start, end, fmt.Errorf("period.start: %w", err)
		}
	}
	if p.End != "" {
		if end, err = ParseTime(p.End); err != nil {
			return start, end, fmt.Errorf("period.end: %w", err)
		}
	}
	return start, end, nil
}

// ParseTimeout converts the timeout string to time.Duration
func (p PeriodConfig) ParseTimeout() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err == nil && d < 0 {
		err = fmt.Errorf("negative duration %s", p.Timeout)
	}
	return d, err
}

// Broker builds the execution model.
func (e ExecutionConfig) Broker(margin bool) (broker.Config, error) {
	commission, err := broker.NewCommission(e.Commission.Model, e.Commission.Rate, e.Commission.Minimum)
	if err != nil {
		return broker.Config{}, fmt.Errorf("execution.commission: %w", err)
	}
	fill, err := broker.ParseFillPolicy(e.FillPolicy)
	if err != nil {
		return broker.Config{}, fmt.Errorf("execution.fill_policy: %w", err)
	}
	mf, err := broker.ParseMarketFill(e.MarketFill)
	if err != nil {
		return broker.Config{}, fmt.Errorf("execution.market_fill: %w", err)
	}
	cfg := broker.Config{
		Commission:       commission,
		Slippage:         broker.Slippage{BaseBps: e.Slippage.BaseBps, Impact: e.Slippage.Impact},
		Fill:             fill,
		MarketFill:       mf,
		ParticipationCap: e.ParticipationCap,
		Margin:           margin,
	}
	return cfg, cfg.Validate()
}

// Digest hashes everything that can change the outcome of a run. The
// journal section and data file locations are left out; the input
// digest covers the data itself.
func (c *Run) Digest() string {
	cp := *c
	cp.Journal = JournalConfig{}
	cp.Levels = make([]LevelConfig, len(c.Levels))
	for i, lv := range c.Levels {
		cp.Levels[i] = LevelConfig{Name: lv.Name, Strategy: lv.Strategy}
	}
	// encoding/json sorts map keys, so params hash stably.
	b, err := json.Marshal(cp)
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// StrategyName joins the strategy names of all levels.
func (c *Run) StrategyName() string {
	var names []string
	for _, lv := range c.Levels {
		if lv.Strategy.Name != "" {
			names = append(names, lv.Strategy.Name)
		}
	}
	return strings.Join(names, "/")
}

// Engine converts the file configuration into the engine's.
func (c *Run) Engine() (engine.Config, error) {
	if err := c.Validate(); err != nil {
		return engine.Config{}, err
	}
	start, end, err := c.Period.Bounds()
	if err != nil {
		return engine.Config{}, err
	}
	timeout, err := c.Period.ParseTimeout()
	if err != nil {
		return engine.Config{}, fmt.Errorf("period.timeout: %w", err)
	}
	bc, err := c.Execution.Broker(c.Account.Margin)
	if err != nil {
		return engine.Config{}, err
	}

	universe := make([]market.InstrumentMeta, 0, len(c.Instruments))
	for i, in := range c.Instruments {
		meta := market.InstrumentMeta{Name: in.Name}
		for k, s := range in.Suspended {
			t, err := ParseTime(s)
			if err != nil {
				return engine.Config{}, fmt.Errorf("instruments[%d].suspended[%d]: %w", i, k, err)
			}
			meta.Suspended = append(meta.Suspended, t)
		}
		universe = append(universe, meta)
	}
	sort.Slice(universe, func(i, j int) bool { return universe[i].Name < universe[j].Name })

	return engine.Config{
		Name:        c.StrategyName(),
		Universe:    universe,
		Start:       start,
		End:         end,
		InitialCash: c.Account.InitialCash,
		Broker:      bc,
		Timeout:     timeout,
		Digest:      c.Digest(),
	}, nil
}

// LoadFeeds reads the data files of every level.
func (c *Run) LoadFeeds() ([][]*feed.Feed, error) {
	out := make([][]*feed.Feed, len(c.Levels))
	for i, lv := range c.Levels {
		feeds, err := feed.LoadCSV(lv.Files...)
		if err != nil {
			return nil, fmt.Errorf("levels[%d]: %w", i, err)
		}
		out[i] = feeds
	}
	return out, nil
}

// Clone returns a deep copy, so sweeps can vary params per run.
func (c *Run) Clone() *Run {
	cp := *c
	cp.Instruments = append([]InstrumentConfig(nil), c.Instruments...)
	cp.Levels = make([]LevelConfig, len(c.Levels))
	for i, lv := range c.Levels {
		lv.Files = append([]string(nil), lv.Files...)
		params := make(map[string]float64, len(lv.Strategy.Params))
		for k, v := range lv.Strategy.Params {
			params[k] = v
		}
		lv.Strategy.Params = params
		cp.Levels[i] = lv
	}
	return &cp
}
