package sink

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hirecraft/jdqueue/server/observability"
)

// PostgresSink persists generated JDs to the generated_jds table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects a pooled Postgres sink. The schema is expected
// to exist:
//
//	CREATE TABLE IF NOT EXISTS generated_jds (
//	    saved_id   UUID PRIMARY KEY,
//	    task_id    TEXT NOT NULL,
//	    title      TEXT NOT NULL,
//	    markdown   TEXT NOT NULL,
//	    meta       JSONB,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) Close() {
	s.pool.Close()
}

func (s *PostgresSink) Save(ctx context.Context, taskID, title, markdown string, meta map[string]any) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO generated_jds (saved_id, task_id, title, markdown, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := s.pool.Exec(ctx, query, id, taskID, title, markdown, meta)
	if err != nil {
		observability.SinkSaves.WithLabelValues("postgres", "error").Inc()
		return "", err
	}
	observability.SinkSaves.WithLabelValues("postgres", "ok").Inc()
	return id, nil
}
