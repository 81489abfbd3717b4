// Package store persists personas and campaign logs to PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL-backed repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

const sqlUpsertPersona = `
        INSERT INTO personas (id, name, provenance, base_id, confidence, profile, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            provenance = EXCLUDED.provenance,
            base_id = EXCLUDED.base_id,
            confidence = EXCLUDED.confidence,
            profile = EXCLUDED.profile,
            updated_at = EXCLUDED.updated_at;
    `

// SavePersonas upserts the given personas in a single batched transaction.
// The full profile is stored as a JSON document alongside the queryable
// columns.
func (s *Store) SavePersonas(ctx context.Context, personas []*schemas.Persona) error {
	if len(personas) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, p := range personas {
		profile, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal persona %s: %w", p.ID, err)
		}
		var baseID *string
		if p.BaseID != "" {
			baseID = &p.BaseID
		}
		batch.Queue(sqlUpsertPersona, p.ID, p.Name, string(p.Provenance), baseID, p.Confidence, profile, now)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := range personas {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to upsert persona %s: %w", personas[i].ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Personas saved", zap.Int("count", len(personas)))
	return nil
}

// SaveCampaign inserts one campaign log and bulk-copies its steps.
func (s *Store) SaveCampaign(ctx context.Context, clog *schemas.CampaignLog) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	insertCampaign := `
        INSERT INTO campaigns (id, persona_id, persona_name, scenario, seed, started_at, steps_detected, dwell_time_days, objective, achieved)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
    `
	if _, err := tx.Exec(ctx, insertCampaign,
		clog.ID, clog.PersonaID, clog.PersonaName, clog.Scenario, clog.Seed,
		clog.StartedAt.UTC(), clog.StepsDetected, clog.DwellTimeDays,
		clog.Objective, clog.Achieved,
	); err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	if len(clog.Steps) > 0 {
		rows := make([][]interface{}, len(clog.Steps))
		for i, st := range clog.Steps {
			rows[i] = []interface{}{
				clog.ID, i, st.Phase, st.TechniqueID, st.Technique,
				st.Succeeded, string(st.Noise), st.Detected,
			}
		}
		copyCount, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"campaign_steps"},
			[]string{"campaign_id", "ordinal", "phase", "technique_id", "technique", "succeeded", "noise", "detected"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy campaign steps: %w", err)
		}
		if int(copyCount) != len(clog.Steps) {
			return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(clog.Steps), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPersonas returns stored persona summaries ordered by id.
func (s *Store) ListPersonas(ctx context.Context) ([]schemas.PersonaSummary, error) {
	query := `
        SELECT id, name, provenance, confidence
        FROM personas
        ORDER BY id ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query personas: %w", err)
	}
	defer rows.Close()

	var out []schemas.PersonaSummary
	for rows.Next() {
		var sum schemas.PersonaSummary
		var provenance string
		if err := rows.Scan(&sum.ID, &sum.Name, &provenance, &sum.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan persona row: %w", err)
		}
		sum.Provenance = schemas.Provenance(provenance)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating persona rows: %w", err)
	}
	return out, nil
}

// GetPersona loads one persona's full profile document by id.
func (s *Store) GetPersona(ctx context.Context, id string) (*schemas.Persona, error) {
	query := `SELECT profile FROM personas WHERE id = $1;`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query persona: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading persona row: %w", err)
		}
		return nil, pgx.ErrNoRows
	}
	var profile json.RawMessage
	if err := rows.Scan(&profile); err != nil {
		return nil, fmt.Errorf("failed to scan persona profile: %w", err)
	}
	var p schemas.Persona
	if err := json.Unmarshal(profile, &p); err != nil {
		return nil, fmt.Errorf("failed to decode persona profile: %w", err)
	}
	return &p, nil
}
