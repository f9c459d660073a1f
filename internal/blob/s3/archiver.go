package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// archiveBatchLimit caps one List call; a day with more events than this is
// paged.
const archiveBatchLimit = 1000

// DayArchiver implements domain.Archiver: when a trading day rolls over, the
// finished day's trade events are exported as JSONL to
// trade-events/{dayKey}.jsonl in the configured bucket.
//
// The rows stay in Postgres; the archive is a cold copy, not a move.
type DayArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	events domain.TradeEventStore
	logger *slog.Logger
}

// NewDayArchiver creates a DayArchiver. reader may be nil, which disables the
// already-archived check.
func NewDayArchiver(writer domain.BlobWriter, reader domain.BlobReader, events domain.TradeEventStore, logger *slog.Logger) *DayArchiver {
	return &DayArchiver{
		writer: writer,
		reader: reader,
		events: events,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay exports all trade events of one UTC day key and returns the
// number of archived events. A day that was already archived, or produced no
// events, is a no-op.
func (a *DayArchiver) ArchiveDay(ctx context.Context, dayKey string) (int64, error) {
	path := archivePath(dayKey)

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			a.logger.WarnContext(ctx, "archive existence check failed",
				slog.String("path", path),
				slog.Any("error", err),
			)
		} else if exists {
			a.logger.InfoContext(ctx, "day already archived", slog.String("day", dayKey))
			return 0, nil
		}
	}

	events, err := a.collectDay(ctx, dayKey)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive day %s: %w", dayKey, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive day %s: %w", dayKey, err)
	}

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive day %s: %w", dayKey, err)
	}

	a.logger.InfoContext(ctx, "day archived",
		slog.String("day", dayKey),
		slog.String("path", path),
		slog.Int("events", len(events)),
	)
	return int64(len(events)), nil
}

// collectDay pages through the store until the day's events are exhausted.
func (a *DayArchiver) collectDay(ctx context.Context, dayKey string) ([]domain.TradeEvent, error) {
	var all []domain.TradeEvent
	for offset := 0; ; offset += archiveBatchLimit {
		batch, err := a.events.List(ctx, dayKey, domain.ListOpts{Limit: archiveBatchLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < archiveBatchLimit {
			return all, nil
		}
	}
}

// archivePath builds the S3 key for one day's export.
//
//	trade-events/2025-03-01.jsonl
func archivePath(dayKey string) string {
	return fmt.Sprintf("trade-events/%s.jsonl", dayKey)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*DayArchiver)(nil)
