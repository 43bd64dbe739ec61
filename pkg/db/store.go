// Package db persists sessions, turns, profiles, and pipeline evaluations in
// SQLite. The vector store holds the embedded corpora; this store holds the
// conversational record.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the SQLite database at dbPath and brings the
// schema up to date.
func NewStore(dbPath string, logger *log.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	// WAL for concurrent readers during writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := RunMigrations(db.DB, logger); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type SessionRecord struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Mode      string    `db:"mode"`
	Phase     string    `db:"phase"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type TurnRecord struct {
	ID            string    `db:"id"`
	SessionID     string    `db:"session_id"`
	Idx           int       `db:"idx"`
	Role          string    `db:"role"`
	Text          string    `db:"text"`
	QuestionField string    `db:"question_field"`
	CreatedAt     time.Time `db:"created_at"`
}

type ProfileRecord struct {
	UserID    string          `db:"user_id"`
	Fields    json.RawMessage `db:"fields"`
	Implied   json.RawMessage `db:"implied"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type EvaluationRecord struct {
	ID        string          `db:"id"`
	SessionID string          `db:"session_id"`
	UserID    string          `db:"user_id"`
	Output    json.RawMessage `db:"output"`
	CreatedAt time.Time       `db:"created_at"`
}

func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, user_id, mode, phase, created_at, updated_at)
		VALUES (:id, :user_id, :mode, :phase, :created_at, :updated_at)
	`, rec)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM sessions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UpdateSessionPhase(ctx context.Context, id, mode, phase string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET mode = ?, phase = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, mode, phase, id)
	return err
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]SessionRecord, error) {
	var recs []SessionRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM sessions WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	return recs, err
}

func (s *Store) AppendTurn(ctx context.Context, rec TurnRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO turns (id, session_id, idx, role, text, question_field, created_at)
		VALUES (:id, :session_id, :idx, :role, :text, :question_field, :created_at)
	`, rec)
	return err
}

func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	var recs []TurnRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM turns WHERE session_id = ? ORDER BY idx ASC
	`, sessionID)
	return recs, err
}

// SaveProfile upserts the user's profile snapshot.
func (s *Store) SaveProfile(ctx context.Context, rec ProfileRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO profiles (user_id, fields, implied, updated_at)
		VALUES (:user_id, :fields, :implied, :updated_at)
		ON CONFLICT(user_id) DO UPDATE SET
			fields = excluded.fields,
			implied = excluded.implied,
			updated_at = excluded.updated_at
	`, rec)
	return err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*ProfileRecord, error) {
	var rec ProfileRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM profiles WHERE user_id = ?`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveEvaluation(ctx context.Context, rec EvaluationRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO evaluations (id, session_id, user_id, output, created_at)
		VALUES (:id, :session_id, :user_id, :output, :created_at)
	`, rec)
	return err
}

func (s *Store) ListEvaluations(ctx context.Context, userID string, limit int) ([]EvaluationRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []EvaluationRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM evaluations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	return recs, err
}
