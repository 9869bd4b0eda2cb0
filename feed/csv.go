package feed

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/rustyeddy/barsim/market"
)

// CSVHeader is the column layout read and written by this package:
//
//	time,instrument,open,high,low,close,volume
//
// time is RFC3339, RFC3339Nano or a plain 2006-01-02 date (UTC).
var CSVHeader = []string{"time", "instrument", "open", "high", "low", "close", "volume"}

// Open opens a bar file, decompressing .gz, .xz and .lzma by extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)

	var r io.Reader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".xz":
		r, err = xz.NewReader(br)
	case ".lzma":
		r, err = lzma.NewReader(br)
	default:
		r = br
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &stackedCloser{Reader: r, closers: []io.Closer{f}}, nil
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LoadCSV reads bar files and returns one feed per instrument, sorted by
// instrument. An instrument may span several files as long as its bars
// stay in order.
func LoadCSV(paths ...string) ([]*Feed, error) {
	feeds := map[string]*Feed{}
	for _, p := range paths {
		rc, err := Open(p)
		if err != nil {
			return nil, err
		}
		err = readInto(rc, feeds)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return sortedFeeds(feeds), nil
}

// ReadCSV reads bars from r, one feed per instrument.
func ReadCSV(r io.Reader) ([]*Feed, error) {
	feeds := map[string]*Feed{}
	if err := readInto(r, feeds); err != nil {
		return nil, err
	}
	return sortedFeeds(feeds), nil
}

func sortedFeeds(m map[string]*Feed) []*Feed {
	out := make([]*Feed, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].instrument < out[j].instrument })
	return out
}

func readInto(r io.Reader, feeds map[string]*Feed) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		// Allow a single header row.
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		b, err := ParseBarRow(row)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		f, ok := feeds[b.Instrument]
		if !ok {
			f = New(b.Instrument)
			feeds[b.Instrument] = f
		}
		if err := f.Push(b); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// ParseBarRow parses one CSV record in CSVHeader layout.
func ParseBarRow(row []string) (market.Bar, error) {
	if len(row) < len(CSVHeader) {
		return market.Bar{}, fmt.Errorf("want %d columns, got %d", len(CSVHeader), len(row))
	}
	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Bar{}, err
	}
	b := market.Bar{Instrument: strings.TrimSpace(row[1]), Time: t}
	dst := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
	for i, d := range dst {
		s := strings.TrimSpace(row[2+i])
		v, err := decimal.NewFromString(s)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad %s %q: %w", CSVHeader[2+i], s, err)
		}
		*d = v
	}
	if b.Instrument == "" {
		return market.Bar{}, fmt.Errorf("empty instrument")
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// WriteCSV writes bars in CSVHeader layout, header included.
func WriteCSV(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(time.RFC3339Nano),
			b.Instrument,
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
