package eventsource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obstacle-panel/backend/internal/model"
)

const selectEvents = `SELECT id_evento, tipo_evento, detalle, origen, valor, fecha_hora
FROM eventos
ORDER BY fecha_hora DESC NULLS LAST, id_evento DESC
LIMIT $1`

// PostgresSource reads the event log table directly.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("configure postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

func (s *PostgresSource) Fetch(ctx context.Context, limit int) ([]model.EventRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, selectEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]model.EventRecord, 0, limit)
	for rows.Next() {
		var (
			row eventRow
			at  *time.Time
		)
		if err := rows.Scan(&row.id, &row.typ, &row.subject, &row.origin, &row.value, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, row.record(at))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type eventRow struct {
	id      int64
	typ     string
	subject string
	origin  string
	value   string
}

// record converts a scanned row. fecha_hora is nullable; a NULL keeps the
// zero timestamp so the row still counts.
func (r eventRow) record(at *time.Time) model.EventRecord {
	ev := model.EventRecord{
		ID:      r.id,
		Type:    model.EventType(r.typ),
		Subject: r.subject,
		Origin:  model.Origin(r.origin),
		Value:   r.value,
	}
	if at != nil {
		ev.Timestamp = at.UTC()
	}
	return ev
}

func (s *PostgresSource) Close() {
	s.pool.Close()
}
