package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// TradeEventStore implements domain.TradeEventStore using PostgreSQL. Rows
// are append-only; nothing in the engine updates or deletes them.
type TradeEventStore struct {
	pool *pgxpool.Pool
}

// NewTradeEventStore creates a TradeEventStore backed by the given pool.
func NewTradeEventStore(pool *pgxpool.Pool) *TradeEventStore {
	return &TradeEventStore{pool: pool}
}

// Append inserts one trade event. The detail map is stored as JSONB.
func (s *TradeEventStore) Append(ctx context.Context, ev domain.TradeEvent) error {
	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	const query = `
		INSERT INTO trade_events (day_key, event, market_id, token_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query,
		ev.DayKey, ev.Event, ev.MarketID, ev.TokenID, detailJSON, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: append trade event %s: %w", ev.Event, err)
	}
	return nil
}

// List returns trade events for one day key, newest first, with pagination
// and optional time filtering. An empty dayKey returns events across days.
func (s *TradeEventStore) List(ctx context.Context, dayKey string, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	query := `SELECT id, day_key, event, market_id, token_id, detail, created_at
		FROM trade_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if dayKey != "" {
		query += fmt.Sprintf(" AND day_key = $%d", argIdx)
		args = append(args, dayKey)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events: %w", err)
	}
	defer rows.Close()

	var events []domain.TradeEvent
	for rows.Next() {
		var ev domain.TradeEvent
		var detailJSON []byte

		if err := rows.Scan(&ev.ID, &ev.DayKey, &ev.Event, &ev.MarketID, &ev.TokenID, &detailJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade event: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trade events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*TradeEventStore)(nil)
