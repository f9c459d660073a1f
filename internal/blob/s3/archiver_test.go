package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	w.objects[path] = buf.Bytes()
	w.types[path] = contentType
	return nil
}

type memReader struct {
	existing map[string]bool
}

func (r *memReader) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (r *memReader) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (r *memReader) Exists(_ context.Context, path string) (bool, error) {
	return r.existing[path], nil
}

type pagedEventStore struct {
	events []domain.TradeEvent
}

func (s *pagedEventStore) Append(context.Context, domain.TradeEvent) error { return nil }

func (s *pagedEventStore) List(_ context.Context, dayKey string, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	var matched []domain.TradeEvent
	for _, ev := range s.events {
		if ev.DayKey == dayKey {
			matched = append(matched, ev)
		}
	}
	if opts.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[opts.Offset:]
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveDayExportsJSONL(t *testing.T) {
	w := newMemWriter()
	store := &pagedEventStore{events: []domain.TradeEvent{
		{ID: 1, DayKey: "2025-03-01", Event: "position_opened", MarketID: "m1", CreatedAt: time.Now()},
		{ID: 2, DayKey: "2025-03-01", Event: "position_closed", MarketID: "m1", CreatedAt: time.Now()},
		{ID: 3, DayKey: "2025-03-02", Event: "position_opened", MarketID: "m2", CreatedAt: time.Now()},
	}}
	a := NewDayArchiver(w, &memReader{existing: map[string]bool{}}, store, testLogger())

	n, err := a.ArchiveDay(context.Background(), "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	data, ok := w.objects["trade-events/2025-03-01.jsonl"]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", w.types["trade-events/2025-03-01.jsonl"])

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "position_opened")
	assert.NotContains(t, string(data), "2025-03-02")
}

func TestArchiveDaySkipsWhenAlreadyArchived(t *testing.T) {
	w := newMemWriter()
	store := &pagedEventStore{events: []domain.TradeEvent{
		{ID: 1, DayKey: "2025-03-01", Event: "position_opened"},
	}}
	reader := &memReader{existing: map[string]bool{"trade-events/2025-03-01.jsonl": true}}
	a := NewDayArchiver(w, reader, store, testLogger())

	n, err := a.ArchiveDay(context.Background(), "2025-03-01")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestArchiveDayEmptyDayIsNoop(t *testing.T) {
	w := newMemWriter()
	a := NewDayArchiver(w, nil, &pagedEventStore{}, testLogger())

	n, err := a.ArchiveDay(context.Background(), "2025-03-01")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}
