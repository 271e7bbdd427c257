// Package tradelog implements the append-only per-bar trade record (C9 of
// SPEC_FULL.md): the TradeRecord wire shape from spec §3/§6, and a JSONL
// writer. Grounded on spec §6's literal field list; the append-only,
// durable-through-last-good-bar semantics mirror the teacher's
// append-only trade/audit idioms throughout internal/backtest.
package tradelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sawpanic/tradecore/internal/portfolio"
)

// Record is one line of the trade log: a fully populated, append-only
// snapshot of one bar's decision, per spec §3/§6.
type Record struct {
	RunID               string  `json:"run_id"`
	TimestampMs         int64   `json:"timestamp_ms"`
	BarIndex            int     `json:"bar_index"`
	Symbol              string  `json:"symbol"`
	Action              string  `json:"action"`
	Quantity            float64 `json:"quantity"`
	Price               float64 `json:"price"`
	TradeValue          float64 `json:"trade_value"`
	Fees                float64 `json:"fees"`
	CashBefore          float64 `json:"cash_before"`
	EquityBefore        float64 `json:"equity_before"`
	CashAfter           float64 `json:"cash_after"`
	EquityAfter         float64 `json:"equity_after"`
	PositionsAfter      int     `json:"positions_after"`
	SignalProbability   float64 `json:"signal_probability"`
	SignalConfidence    float64 `json:"signal_confidence"`
	ExecutionReason     string  `json:"execution_reason"`
	RejectionReason     string  `json:"rejection_reason"`
	ConflictCheckPassed string  `json:"conflict_check_passed"` // "0" | "1", per spec §6
	RealizedPnLDelta    float64 `json:"realized_pnl_delta"`
	UnrealizedAfter     float64 `json:"unrealized_after"`
	PositionsSummary    string  `json:"positions_summary"`
}

// FromDecision builds a Record from one executor Decision plus the
// orchestrator-owned run/time identity spec §4.4 doesn't compute itself.
func FromDecision(runID string, barIndex int, d portfolio.Decision) Record {
	conflictFlag := "0"
	if d.ConflictCheckPassed {
		conflictFlag = "1"
	}
	return Record{
		RunID:               runID,
		TimestampMs:         d.BeforeState.TimestampMs,
		BarIndex:            barIndex,
		Symbol:              d.Symbol,
		Action:              string(d.Action),
		Quantity:            d.Quantity,
		Price:               d.Price,
		TradeValue:          d.TradeValue,
		Fees:                d.Fees,
		CashBefore:          d.BeforeState.CashBalance,
		EquityBefore:        d.BeforeState.TotalEquity,
		CashAfter:           d.AfterState.CashBalance,
		EquityAfter:         d.AfterState.TotalEquity,
		PositionsAfter:      len(d.AfterState.Positions),
		SignalProbability:   d.SignalProbability,
		SignalConfidence:    d.SignalConfidence,
		ExecutionReason:     d.ExecutionReason,
		RejectionReason:     d.RejectionReason,
		ConflictCheckPassed: conflictFlag,
		RealizedPnLDelta:    d.RealizedPnLDelta,
		UnrealizedAfter:     d.UnrealizedAfter,
		PositionsSummary:    d.PositionsSummary,
	}
}

// Writer appends Records as JSONL to an underlying io.Writer. The run's log
// is durable through the last successfully written record, per spec §6/§7:
// a failed run still leaves prior lines intact.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps dst in a buffered JSONL Writer.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(dst)}
}

// Append writes one Record as a JSON line and flushes immediately, so a
// crash mid-run loses at most the in-flight record, never prior ones.
func (w *Writer) Append(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// ReadAll parses every line of path as a Record, for audit tooling that
// replays a prior run's trade log.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tradelog: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("tradelog: %s line %d: %w", path, lineNum, err)
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tradelog: scan %s: %w", path, err)
	}
	return out, nil
}
