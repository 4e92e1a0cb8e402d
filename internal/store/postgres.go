package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/facefolio/internal/discovery"
	"github.com/andresmejia3/facefolio/internal/types"
	"github.com/jackc/pgx/v5"
)

// PGStore manages the PostgreSQL connection. Embeddings are stored as exact
// float8 arrays so reloaded runs make the same tolerance decisions.
type PGStore struct {
	conn *pgx.Conn
}

// NewPG establishes a connection to the database and ensures the schema is initialized.
func NewPG(ctx context.Context, connString string) (*PGStore, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &PGStore{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS discovery_runs (
			id TEXT PRIMARY KEY,
			input_dir TEXT NOT NULL,
			tolerance DOUBLE PRECISION NOT NULL,
			portrait_dir TEXT NOT NULL,
			processed INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0,
			no_face INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS identities (
			run_id TEXT NOT NULL REFERENCES discovery_runs(id) ON DELETE CASCADE,
			idx INT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			representative DOUBLE PRECISION[] NOT NULL,
			source TEXT NOT NULL,
			box INT[] NOT NULL,
			portrait TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, idx)
		);
		CREATE TABLE IF NOT EXISTS observations (
			run_id TEXT NOT NULL REFERENCES discovery_runs(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			path TEXT NOT NULL,
			box INT[] NOT NULL,
			embedding DOUBLE PRECISION[] NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *PGStore) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

func boxToArray(b types.BoundingBox) []int32 {
	return []int32{int32(b.Top), int32(b.Right), int32(b.Bottom), int32(b.Left)}
}

func arrayToBox(a []int32) types.BoundingBox {
	if len(a) != 4 {
		return types.BoundingBox{}
	}
	return types.BoundingBox{Top: int(a[0]), Right: int(a[1]), Bottom: int(a[2]), Left: int(a[3])}
}

// SaveRun replaces the stored copy of run in one transaction.
func (s *PGStore) SaveRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO discovery_runs (id, input_dir, tolerance, portrait_dir, processed, skipped, no_face, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			input_dir = EXCLUDED.input_dir, tolerance = EXCLUDED.tolerance,
			portrait_dir = EXCLUDED.portrait_dir, processed = EXCLUDED.processed,
			skipped = EXCLUDED.skipped, no_face = EXCLUDED.no_face
	`, run.ID, run.InputDir, run.Tolerance, run.PortraitDir, run.Processed, run.Skipped, run.NoFace, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	// 1. Clean up old rows to keep saves idempotent
	if _, err := tx.Exec(ctx, "DELETE FROM identities WHERE run_id = $1", run.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM observations WHERE run_id = $1", run.ID); err != nil {
		return err
	}

	// 2. Bulk insert
	idRows := make([][]any, len(run.Identities))
	for i, id := range run.Identities {
		idRows[i] = []any{run.ID, id.Index, id.Name, []float64(id.Representative), id.Source, boxToArray(id.Loc), id.Portrait}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"identities"},
		[]string{"run_id", "idx", "name", "representative", "source", "box", "portrait"},
		pgx.CopyFromRows(idRows)); err != nil {
		return fmt.Errorf("failed to save identities: %w", err)
	}

	obsRows := make([][]any, len(run.Observations))
	for i, o := range run.Observations {
		obsRows[i] = []any{run.ID, i, o.Path, boxToArray(o.Loc), []float64(o.Vec)}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"observations"},
		[]string{"run_id", "seq", "path", "box", "embedding"},
		pgx.CopyFromRows(obsRows)); err != nil {
		return fmt.Errorf("failed to save observations: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PGStore) LoadRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	err := s.conn.QueryRow(ctx, `
		SELECT input_dir, tolerance, portrait_dir, processed, skipped, no_face, created_at
		FROM discovery_runs WHERE id = $1
	`, id).Scan(&run.InputDir, &run.Tolerance, &run.PortraitDir, &run.Processed, &run.Skipped, &run.NoFace, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT idx, name, representative, source, box, portrait
		FROM identities WHERE run_id = $1 ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			ident discovery.Identity
			rep   []float64
			box   []int32
		)
		if err := rows.Scan(&ident.Index, &ident.Name, &rep, &ident.Source, &box, &ident.Portrait); err != nil {
			rows.Close()
			return nil, err
		}
		ident.Representative = types.Embedding(rep)
		ident.Loc = arrayToBox(box)
		run.Identities = append(run.Identities, ident)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, `
		SELECT path, box, embedding FROM observations WHERE run_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			obs types.Observation
			vec []float64
			box []int32
		)
		if err := rows.Scan(&obs.Path, &box, &vec); err != nil {
			return nil, err
		}
		obs.Vec = types.Embedding(vec)
		obs.Loc = arrayToBox(box)
		run.Observations = append(run.Observations, obs)
	}
	return run, rows.Err()
}

func (s *PGStore) LatestRun(ctx context.Context) (*Run, error) {
	var id string
	err := s.conn.QueryRow(ctx, "SELECT id FROM discovery_runs ORDER BY created_at DESC LIMIT 1").Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.LoadRun(ctx, id)
}

// SetName updates the name of a discovered identity.
func (s *PGStore) SetName(ctx context.Context, runID string, index int, name string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE identities SET name = $1 WHERE run_id = $2 AND idx = $3", name, runID, index)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM discovery_runs WHERE id = $1)", runID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("%w: %d", ErrUnknownIdentity, index)
	}
	return nil
}

func (s *PGStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.created_at, r.input_dir,
			COUNT(i.idx), COUNT(i.idx) FILTER (WHERE i.name <> '')
		FROM discovery_runs r
		LEFT JOIN identities i ON i.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var sum RunSummary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.InputDir, &sum.Identities, &sum.Named); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Reset drops all application tables and recreates them empty.
func (s *PGStore) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS observations CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
		DROP TABLE IF EXISTS discovery_runs CASCADE;
	`)
	if err != nil {
		return err
	}
	return initSchema(ctx, s.conn)
}
