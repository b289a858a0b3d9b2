// Package sqlite persists progress records and the sync queue in a local
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

const userIDKey = "user_uuid"

// Store implements progress.Store.
type Store struct {
	db *sql.DB
}

var _ progress.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing store path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Single-process local DB; one connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, contentID string) (progress.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT content_id, current_level, high_score, total_score, state, play_count, total_time_ms, last_played_at_unix_ms
FROM progress_records
WHERE content_id = ?
`, contentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.Record{}, false, nil
	}
	if err != nil {
		return progress.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, rec progress.Record) error {
	return putRecord(ctx, s.db, rec)
}

func (s *Store) All(ctx context.Context) ([]progress.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT content_id, current_level, high_score, total_score, state, play_count, total_time_ms, last_played_at_unix_ms
FROM progress_records
ORDER BY content_id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Apply(ctx context.Context, rec progress.Record, m progress.Mutation) (progress.Mutation, error) {
	state, err := encodeState(m.Session.State)
	if err != nil {
		return progress.Mutation{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return progress.Mutation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := putRecord(ctx, tx, rec); err != nil {
		return progress.Mutation{}, err
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO sync_queue(mutation_id, content_id, level, score, state, duration_ms, enqueued_at_unix_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)
`, string(m.ID), m.Session.ContentID, m.Session.Level, m.Session.Score, state, m.Session.DurationMs, m.EnqueuedAt.UnixMilli())
	if err != nil {
		return progress.Mutation{}, fmt.Errorf("enqueue: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return progress.Mutation{}, err
	}
	if err := tx.Commit(); err != nil {
		return progress.Mutation{}, err
	}
	m.Seq = seq
	return m, nil
}

func (s *Store) Pending(ctx context.Context) ([]progress.Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, mutation_id, content_id, level, score, state, duration_ms, enqueued_at_unix_ms
FROM sync_queue
ORDER BY seq ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.Mutation
	for rows.Next() {
		var (
			m        progress.Mutation
			mutID    string
			state    sql.NullString
			enqueued int64
		)
		if err := rows.Scan(&m.Seq, &mutID, &m.Session.ContentID, &m.Session.Level, &m.Session.Score, &state, &m.Session.DurationMs, &enqueued); err != nil {
			return nil, err
		}
		m.ID = id.MutationID(mutID)
		m.EnqueuedAt = time.UnixMilli(enqueued).UTC()
		if m.Session.State, err = decodeState(state); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Remove(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, seq := range seqs {
		if _, err := stmt.ExecContext(ctx, seq); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UserID(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, userIDKey).Scan(&v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	v = id.NewUserID()
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO meta(key, value) VALUES(?, ?)`, userIDKey, v); err != nil {
		return "", err
	}
	// Another writer may have won the insert.
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, userIDKey).Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func putRecord(ctx context.Context, db execer, rec progress.Record) error {
	state, err := encodeState(rec.State)
	if err != nil {
		return err
	}
	var last sql.NullInt64
	if rec.LastPlayedAt != nil {
		last = sql.NullInt64{Int64: rec.LastPlayedAt.UnixMilli(), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO progress_records(content_id, current_level, high_score, total_score, state, play_count, total_time_ms, last_played_at_unix_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(content_id) DO UPDATE SET
  current_level = excluded.current_level,
  high_score = excluded.high_score,
  total_score = excluded.total_score,
  state = excluded.state,
  play_count = excluded.play_count,
  total_time_ms = excluded.total_time_ms,
  last_played_at_unix_ms = excluded.last_played_at_unix_ms
`, rec.ContentID, rec.CurrentLevel, rec.HighScore, rec.TotalScore, state, rec.PlayCount, rec.TotalTimeMs, last)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ContentID, err)
	}
	return nil
}

func scanRecord(row scanner) (progress.Record, error) {
	var (
		rec   progress.Record
		state sql.NullString
		last  sql.NullInt64
	)
	if err := row.Scan(&rec.ContentID, &rec.CurrentLevel, &rec.HighScore, &rec.TotalScore, &state, &rec.PlayCount, &rec.TotalTimeMs, &last); err != nil {
		return progress.Record{}, err
	}
	var err error
	if rec.State, err = decodeState(state); err != nil {
		return progress.Record{}, err
	}
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		rec.LastPlayedAt = &t
	}
	return rec, nil
}

func encodeState(state map[string]any) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	b, err := sonic.ConfigStd.Marshal(state)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode state: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeState(s sql.NullString) (map[string]any, error) {
	if !s.Valid {
		return nil, nil
	}
	var out map[string]any
	if err := sonic.ConfigStd.UnmarshalFromString(s.String, &out); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return out, nil
}
