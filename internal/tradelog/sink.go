package tradelog

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// mirrorTimeout bounds how long one Postgres mirror insert may block the
// run loop before being abandoned as a best-effort side-mirror failure.
const mirrorTimeout = 2 * time.Second

// Sink fans one Append out to the durable JSONL Writer plus the optional
// Postgres mirror and hot cache, per SPEC_FULL.md §6: the JSONL write is
// the run's source of truth and its failure is fatal (returned to the
// caller); the mirror and hot cache are side-mirrors, so their failures
// are logged, never raised.
type Sink struct {
	Writer   *Writer
	Mirror   *PostgresMirror
	HotCache *HotCache
}

// Append writes r to the JSONL log, then best-effort mirrors it to
// Postgres and the hot cache when configured.
func (s *Sink) Append(r Record) error {
	if err := s.Writer.Append(r); err != nil {
		return err
	}

	if s.Mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := s.Mirror.Insert(ctx, r); err != nil {
			log.Warn().Err(err).Str("run_id", r.RunID).Int("bar_index", r.BarIndex).
				Str("symbol", r.Symbol).Msg("trade log postgres mirror insert failed")
		}
		cancel()
	}

	if s.HotCache != nil {
		if err := s.HotCache.Put(r); err != nil {
			log.Warn().Err(err).Str("run_id", r.RunID).Str("symbol", r.Symbol).
				Msg("trade log hot cache put failed")
		}
	}
	return nil
}
