package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed profile store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		name TEXT,
		age INTEGER,
		language TEXT NOT NULL DEFAULT 'Spanish',
		proficiency TEXT NOT NULL DEFAULT 'Beginner',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vocabulary (
		user_id TEXT NOT NULL,
		word TEXT NOT NULL,
		translation TEXT NOT NULL,
		context TEXT,
		learned_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, word)
	);
	CREATE INDEX IF NOT EXISTS idx_vocabulary_user ON vocabulary(user_id);

	CREATE TABLE IF NOT EXISTS prompts (
		prompt_id TEXT PRIMARY KEY,
		content TEXT NOT NULL
	);
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
	return s.db.Close()
}

// Get retrieves a user's profile including vocabulary.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT name, age, language, proficiency FROM users WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	profile := domain.DefaultProfile()
	var name sql.NullString
	var age sql.NullInt64

	err := row.Scan(&name, &age, &profile.Language, &profile.Proficiency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	profile.Name = name.String
	profile.Age = int(age.Int64)

	if err := s.loadVocabulary(ctx, userID, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *SQLiteStore) loadVocabulary(ctx context.Context, userID string, profile *domain.Profile) error {
	query := `SELECT word, translation, context, learned_at FROM vocabulary WHERE user_id = ?`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("query vocabulary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var word, translation string
		var context sql.NullString
		var learnedAt int64
		if err := rows.Scan(&word, &translation, &context, &learnedAt); err != nil {
			return fmt.Errorf("scan vocabulary row: %w", err)
		}
		profile.Vocabulary[word] = domain.VocabularyEntry{
			Translation: translation,
			Context:     context.String,
			Timestamp:   time.Unix(learnedAt, 0),
		}
	}
	return rows.Err()
}

// Merge applies a partial profile update. Unset fields keep their stored
// values; vocabulary entries are upserted by word. Lock conflicts from
// concurrent workers are retried.
func (s *SQLiteStore) Merge(ctx context.Context, userID string, update domain.ProfileUpdate) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.merge(ctx, userID, update)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *SQLiteStore) merge(ctx context.Context, userID string, update domain.ProfileUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	query := `
	INSERT INTO users (user_id, name, age, language, proficiency, created_at, updated_at)
	VALUES (?, ?, ?, COALESCE(?, 'Spanish'), COALESCE(?, 'Beginner'), ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		name = COALESCE(excluded.name, users.name),
		age = COALESCE(excluded.age, users.age),
		language = COALESCE(?, users.language),
		proficiency = COALESCE(?, users.proficiency),
		updated_at = excluded.updated_at`

	_, err = tx.ExecContext(ctx, query,
		userID, nullString(update.Name), nullInt(update.Age),
		nullString(update.Language), nullString(update.Proficiency),
		now, now,
		nullString(update.Language), nullString(update.Proficiency),
	)
	if err != nil {
		return fmt.Errorf("merge user %s: %w", userID, err)
	}

	for word, entry := range update.Vocabulary {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO vocabulary (user_id, word, translation, context, learned_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, word) DO UPDATE SET
			translation = excluded.translation,
			context = excluded.context,
			learned_at = excluded.learned_at`,
			userID, word, entry.Translation, entry.Context, entry.Timestamp.Unix(),
		)
		if err != nil {
			return fmt.Errorf("merge vocabulary %s/%s: %w", userID, word, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// ListPrompts returns all prompt templates keyed by prompt id.
func (s *SQLiteStore) ListPrompts(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT prompt_id, content FROM prompts`)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	prompts := make(map[string]string)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("scan prompt row: %w", err)
		}
		prompts[id] = content
	}
	return prompts, rows.Err()
}

// SeedPrompts inserts prompt templates that are not already present. It is
// used to provision a fresh database.
func (s *SQLiteStore) SeedPrompts(ctx context.Context, prompts map[string]string) error {
	for id, content := range prompts {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO prompts (prompt_id, content) VALUES (?, ?)`,
			id, content)
		if err != nil {
			return fmt.Errorf("seed prompt %s: %w", id, err)
		}
	}
	return nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
