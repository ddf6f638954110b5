package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements DocumentStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed document store.
func NewSQLite(dbPath string) (DocumentStore, error) {
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
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		credits INTEGER NOT NULL DEFAULT 0,
		total_conversations INTEGER NOT NULL DEFAULT 0,
		messages_exchanged INTEGER NOT NULL DEFAULT 0,
		credits_used INTEGER NOT NULL DEFAULT 0,
		interactions_friendly INTEGER NOT NULL DEFAULT 0,
		interactions_cool INTEGER NOT NULL DEFAULT 0,
		interactions_naughty INTEGER NOT NULL DEFAULT 0,
		interactions_romantic INTEGER NOT NULL DEFAULT 0,
		interactions_intellectual INTEGER NOT NULL DEFAULT 0,
		last_online INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email != '';
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

const userColumns = `user_id, email, password_hash, credits,
	       total_conversations, messages_exchanged, credits_used,
	       interactions_friendly, interactions_cool, interactions_naughty,
	       interactions_romantic, interactions_intellectual,
	       last_online, created_at, updated_at`

// GetUser retrieves a user document by user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user document by account email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*domain.UserRecord, error) {
	var user domain.UserRecord
	var friendly, cool, naughty, romantic, intellectual int
	var lastOnline sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Email, &user.PasswordHash, &user.Credits,
		&user.Metrics.TotalConversations, &user.Metrics.MessagesExchanged, &user.Metrics.CreditsUsed,
		&friendly, &cool, &naughty, &romantic, &intellectual,
		&lastOnline, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Metrics.CompanionInteractions = map[domain.CompanionType]int{
		domain.CompanionFriendly:     friendly,
		domain.CompanionCool:         cool,
		domain.CompanionNaughty:      naughty,
		domain.CompanionRomantic:     romantic,
		domain.CompanionIntellectual: intellectual,
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	created := user.CreatedAt
	user.Metrics.CreatedAt = &created
	if lastOnline.Valid {
		ts := time.Unix(lastOnline.Int64, 0)
		user.Metrics.LastOnline = &ts
	}

	return &user, nil
}

// CreateUser writes a full user document with store-assigned timestamps.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.UserRecord) error {
	now := time.Now()
	query := `
	INSERT INTO users (user_id, email, password_hash, credits, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Email, user.PasswordHash, user.Credits,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_users_email") || strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrEmailInUse
		}
		return fmt.Errorf("create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	created := now
	user.Metrics = domain.NewUsageMetrics()
	user.Metrics.CreatedAt = &created
	return nil
}

// UpdateCredits writes the user's credit balance.
func (s *SQLiteStore) UpdateCredits(ctx context.Context, userID string, credits int) error {
	query := `UPDATE users SET credits = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, credits, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update credits: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateCredits affected 0 rows", "user_id", userID)
	}

	return nil
}

// interactionColumn maps a companion type to its counter column. The switch
// keeps column names out of reach of request input.
func interactionColumn(t domain.CompanionType) (string, error) {
	switch t {
	case domain.CompanionFriendly:
		return "interactions_friendly", nil
	case domain.CompanionCool:
		return "interactions_cool", nil
	case domain.CompanionNaughty:
		return "interactions_naughty", nil
	case domain.CompanionRomantic:
		return "interactions_romantic", nil
	case domain.CompanionIntellectual:
		return "interactions_intellectual", nil
	}
	return "", fmt.Errorf("unknown companion type %q", t)
}

// ApplyMetricsDelta applies atomic field-level increments to a user's metrics.
func (s *SQLiteStore) ApplyMetricsDelta(ctx context.Context, userID string, delta domain.MetricsDelta) error {
	if delta.IsZero() {
		return nil
	}

	now := time.Now().Unix()
	sets := []string{"updated_at = ?"}
	args := []interface{}{now}

	if delta.Conversations != 0 {
		sets = append(sets, "total_conversations = total_conversations + ?")
		args = append(args, delta.Conversations)
	}
	if delta.Messages != 0 {
		sets = append(sets, "messages_exchanged = messages_exchanged + ?")
		args = append(args, delta.Messages)
	}
	if delta.CreditsUsed != 0 {
		sets = append(sets, "credits_used = credits_used + ?")
		args = append(args, delta.CreditsUsed)
	}
	if delta.Interaction != "" {
		col, err := interactionColumn(delta.Interaction)
		if err != nil {
			return err
		}
		sets = append(sets, col+" = "+col+" + 1")
	}
	if delta.TouchOnline {
		sets = append(sets, "last_online = ?")
		args = append(args, now)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE user_id = ?`
	args = append(args, userID)

	return s.execWithRetry(ctx, "apply metrics delta", query, args...)
}

// TouchLastOnline updates only the lastOnline timestamp.
func (s *SQLiteStore) TouchLastOnline(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_online = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, at.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("touch last_online: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchLastOnline affected 0 rows", "user_id", userID)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
