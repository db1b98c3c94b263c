package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/history"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

var _ history.Store = &Postgres{}

const schema = `
CREATE TABLE IF NOT EXISTS rate_history (
	lender_id  TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS current_rates (
	lender_id  TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres stores the same JSON documents the filesystem store writes,
// one row per lender, upserted whole. The schema is created on connect.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	logger.Info("connected to postgres")
	return &Postgres{pool: pool, logger: logger}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) LoadHistory(ctx context.Context, lenderID string) (*model.RatesHistoryFile, bool, error) {
	var h model.RatesHistoryFile
	ok, err := s.loadDocument(ctx, "rate_history", lenderID, &h)
	if err != nil || !ok {
		return nil, false, err
	}
	return &h, true, nil
}

func (s *Postgres) SaveHistory(ctx context.Context, h *model.RatesHistoryFile) error {
	return s.saveDocument(ctx, "rate_history", h.LenderID, h)
}

func (s *Postgres) LoadCurrent(ctx context.Context, lenderID string) (*model.CurrentRates, bool, error) {
	var c model.CurrentRates
	ok, err := s.loadDocument(ctx, "current_rates", lenderID, &c)
	if err != nil || !ok {
		return nil, false, err
	}
	return &c, true, nil
}

func (s *Postgres) SaveCurrent(ctx context.Context, c *model.CurrentRates) error {
	return s.saveDocument(ctx, "current_rates", c.LenderID, c)
}

func (s *Postgres) loadDocument(ctx context.Context, table, lenderID string, out any) (bool, error) {
	var raw []byte
	query := fmt.Sprintf(`SELECT document FROM %s WHERE lender_id = $1`, table)
	err := s.pool.QueryRow(ctx, query, lenderID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s document for %s: %w", table, lenderID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s document for %s: %w", table, lenderID, err)
	}
	return true, nil
}

func (s *Postgres) saveDocument(ctx context.Context, table, lenderID string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document for %s: %w", table, lenderID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (lender_id, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (lender_id)
		DO UPDATE SET document = EXCLUDED.document, updated_at = now()`, table)
	if _, err := s.pool.Exec(ctx, query, lenderID, raw); err != nil {
		return fmt.Errorf("failed to upsert %s document for %s: %w", table, lenderID, err)
	}

	s.logger.Debug("upserted document",
		zap.String("table", table),
		zap.String("lenderId", lenderID),
		zap.Int("bytes", len(raw)))
	return nil
}
