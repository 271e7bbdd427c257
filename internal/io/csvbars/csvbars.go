// Package csvbars loads OHLCV bars from CSV files (spec §6's ambient bar
// ingestion surface). Grounded on
// internal/data/cold/csv.go's CSVReader: header-driven column mapping,
// per-row best-effort parse with an accumulated error list rather than an
// abort-on-first-bad-row policy.
package csvbars

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sawpanic/tradecore/internal/bar"
)

// columnAliases normalizes common header spellings to the canonical field
// name, the same normalization idiom as CSVReader.normalizeColumnName.
var columnAliases = map[string]string{
	"ts": "timestamp", "time": "timestamp", "datetime": "timestamp",
	"o": "open", "h": "high", "l": "low", "c": "close", "v": "volume",
	"vol": "volume", "sym": "symbol", "pair": "symbol",
}

// LoadFile reads path as a header-driven OHLCV CSV and returns the parsed
// bars plus a list of row-level parse errors encountered (rows that failed
// to parse are skipped, not fatal — only a missing required column is).
func LoadFile(path, symbol string) ([]bar.Bar, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("csvbars: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("csvbars: read header of %s: %w", path, err)
	}
	cols := mapColumns(header)
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("csvbars: %s missing required column %q", path, required)
		}
	}

	var bars []bar.Bar
	var rowErrors []error
	rowNum := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			rowErrors = append(rowErrors, fmt.Errorf("row %d: %w", rowNum, err))
			continue
		}
		b, err := parseRow(row, cols, symbol)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Errorf("row %d: %w", rowNum, err))
			continue
		}
		bars = append(bars, b)
	}
	return bars, rowErrors, nil
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		cols[name] = i
	}
	return cols
}

func parseRow(row []string, cols map[string]int, symbol string) (bar.Bar, error) {
	field := func(name string) (string, error) {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return "", fmt.Errorf("column %q out of range", name)
		}
		return row[idx], nil
	}
	floatField := func(name string) (float64, error) {
		raw, err := field(name)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
		}
		return v, nil
	}

	tsRaw, err := field("timestamp")
	if err != nil {
		return bar.Bar{}, err
	}
	ts, err := parseTimestamp(tsRaw)
	if err != nil {
		return bar.Bar{}, err
	}

	open, err := floatField("open")
	if err != nil {
		return bar.Bar{}, err
	}
	high, err := floatField("high")
	if err != nil {
		return bar.Bar{}, err
	}
	low, err := floatField("low")
	if err != nil {
		return bar.Bar{}, err
	}
	close, err := floatField("close")
	if err != nil {
		return bar.Bar{}, err
	}
	volume, err := floatField("volume")
	if err != nil {
		return bar.Bar{}, err
	}

	sym := symbol
	if idx, ok := cols["symbol"]; ok && idx < len(row) && row[idx] != "" {
		sym = row[idx]
	}

	return bar.Bar{
		TimestampMs: ts,
		Symbol:      sym,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close,
		Volume:      volume,
	}, nil
}

// parseTimestamp accepts RFC3339, a plain date-time, or a Unix
// seconds/milliseconds integer, mirroring CSVReader.parseTimestamp's
// multi-format fallback.
func parseTimestamp(raw string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UnixMilli(), nil
		}
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if unix > 1_000_000_000_000 {
			return unix, nil // already milliseconds
		}
		return unix * 1000, nil
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", raw)
}
