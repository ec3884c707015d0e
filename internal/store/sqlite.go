package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions so two writers never
	// deadlock upgrading a shared lock.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		syllabus_json TEXT,
		last_plan TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) ensureUser(ctx context.Context, ex execer, userID string) error {
	now := s.now().Unix()
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		userID, now, now)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// GetRecord returns the full record for userID, creating it on first access.
func (s *SQLiteStore) GetRecord(ctx context.Context, userID string) (*domain.UserRecord, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return nil, err
	}

	// Read both tables from one snapshot.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		rec                  domain.UserRecord
		syllabusJSON, plan   sql.NullString
		createdAt, updatedAt int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, syllabus_json, last_plan, created_at, updated_at
		FROM users WHERE user_id = ?`, userID,
	).Scan(&rec.UserID, &syllabusJSON, &plan, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s vanished after ensure", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	if syllabusJSON.Valid {
		var syl domain.Syllabus
		if err := json.Unmarshal([]byte(syllabusJSON.String), &syl); err != nil {
			return nil, fmt.Errorf("decode stored syllabus: %w", err)
		}
		syl.Normalize()
		rec.Syllabus = &syl
	}
	if plan.Valid {
		p := plan.String
		rec.CurrentPlan = &p
	}

	history, err := s.loadHistory(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	rec.ChatHistory = history

	return &rec, nil
}

func (s *SQLiteStore) loadHistory(ctx context.Context, tx *sql.Tx, userID string) ([]domain.ChatEntry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM chat_history WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat history rows", "error", closeErr)
		}
	}()

	history := []domain.ChatEntry{}
	for rows.Next() {
		var (
			entry domain.ChatEntry
			role  string
			ts    int64
		)
		if err := rows.Scan(&role, &entry.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan chat entry: %w", err)
		}
		entry.Role = domain.Role(role)
		entry.Timestamp = time.UnixMilli(ts)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat history: %w", err)
	}
	return history, nil
}

// Commit applies a change atomically.
func (s *SQLiteStore) Commit(ctx context.Context, userID string, c Change) error {
	if c.Empty() {
		return nil
	}

	var syllabusJSON any
	if c.Syllabus != nil {
		data, err := json.Marshal(c.Syllabus)
		if err != nil {
			return fmt.Errorf("encode syllabus: %w", err)
		}
		syllabusJSON = string(data)
	}
	var plan any
	if c.Plan != nil {
		plan = *c.Plan
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin commit", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (user_id, syllabus_json, last_plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			syllabus_json = COALESCE(excluded.syllabus_json, users.syllabus_json),
			last_plan = COALESCE(excluded.last_plan, users.last_plan),
			updated_at = excluded.updated_at`,
		userID, syllabusJSON, plan, now, now)
	if err != nil {
		return classify("upsert user", err)
	}

	for _, entry := range c.Append {
		if !entry.Role.Valid() {
			return fmt.Errorf("append chat: invalid role %q", entry.Role)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_history (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			userID, string(entry.Role), entry.Content, entry.UnixMilli())
		if err != nil {
			return fmt.Errorf("append chat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// Ensure SQLiteStore implements Repository.
var _ Repository = (*SQLiteStore)(nil)
