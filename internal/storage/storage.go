// Package storage is the bot's data access layer over PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/starterbot/core/logger"
)

// Bot status values stored in bot_stats.status.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// User mirrors a row of the users table.
type User struct {
	ID           int64          `db:"id"`
	Username     sql.NullString `db:"username"`
	FirstName    sql.NullString `db:"first_name"`
	LastName     sql.NullString `db:"last_name"`
	LanguageCode sql.NullString `db:"language_code"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// BotStats mirrors a row of the bot_stats table.
type BotStats struct {
	ID          int64     `db:"id"`
	TotalUsers  int       `db:"total_users"`
	ActiveUsers int       `db:"active_users"`
	LastRestart time.Time `db:"last_restart"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// Profile builds a User from Telegram profile fields. Empty strings are stored as NULL.
func Profile(id int64, username, firstName, lastName, languageCode string) User {
	return User{
		ID:           id,
		Username:     nullString(username),
		FirstName:    nullString(firstName),
		LastName:     nullString(lastName),
		LanguageCode: nullString(languageCode),
		IsActive:     true,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Storage wraps the shared connection pool.
type Storage struct {
	db *sqlx.DB
}

// New returns a Storage over db.
func New(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// UpsertUser inserts the user or refreshes its profile fields and marks it active.
func (s *Storage) UpsertUser(ctx context.Context, u User) error {
	start := time.Now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, language_code, is_active)
		VALUES (:id, :username, :first_name, :last_name, :language_code, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			language_code = EXCLUDED.language_code,
			is_active = TRUE`, u)
	s.logOp(ctx, "users.upsert", start, err, slog.Int64("user_id", u.ID))
	if err != nil {
		return fmt.Errorf("storage: upsert user %d: %w", u.ID, err)
	}
	return nil
}

// SetUserActive flips the is_active flag, e.g. after the user blocked the bot.
func (s *Storage) SetUserActive(ctx context.Context, id int64, active bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active); err != nil {
		return fmt.Errorf("storage: set user %d active=%t: %w", id, active, err)
	}
	return nil
}

// GetBotStats returns the most recent bot_stats row, or nil when none exists.
func (s *Storage) GetBotStats(ctx context.Context) (*BotStats, error) {
	var st BotStats
	err := s.db.GetContext(ctx, &st, `
		SELECT id, COALESCE(total_users, 0) AS total_users, COALESCE(active_users, 0) AS active_users,
			COALESCE(last_restart, NOW()) AS last_restart, COALESCE(status, '') AS status,
			COALESCE(created_at, NOW()) AS created_at
		FROM bot_stats ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get bot stats: %w", err)
	}
	return &st, nil
}

// UpdateBotStats recomputes user totals, stamps last_restart, and sets the
// status to active. The row is created when the table is empty.
func (s *Storage) UpdateBotStats(ctx context.Context) (*BotStats, error) {
	return s.writeBotStats(ctx, "bot_stats.update", true)
}

// RefreshBotStats recomputes user totals only. last_restart and status keep
// their values unless the row has to be created.
func (s *Storage) RefreshBotStats(ctx context.Context) (*BotStats, error) {
	return s.writeBotStats(ctx, "bot_stats.refresh", false)
}

func (s *Storage) writeBotStats(ctx context.Context, event string, restart bool) (*BotStats, error) {
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", event, err)
	}
	defer func() { _ = tx.Rollback() }()

	var counts struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	if err := tx.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_active) AS active FROM users`); err != nil {
		return nil, fmt.Errorf("storage: count users: %w", err)
	}

	var id int64
	err = tx.GetContext(ctx, &id, `SELECT id FROM bot_stats ORDER BY id DESC LIMIT 1 FOR UPDATE`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bot_stats (total_users, active_users, last_restart, status)
			VALUES ($1, $2, NOW(), $3)`, counts.Total, counts.Active, StatusActive)
	case err == nil && restart:
		_, err = tx.ExecContext(ctx, `
			UPDATE bot_stats SET total_users = $2, active_users = $3, last_restart = NOW(), status = $4
			WHERE id = $1`, id, counts.Total, counts.Active, StatusActive)
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE bot_stats SET total_users = $2, active_users = $3
			WHERE id = $1`, id, counts.Total, counts.Active)
	}
	if err != nil {
		s.logOp(ctx, event, start, err)
		return nil, fmt.Errorf("storage: write bot stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage: commit bot stats: %w", err)
	}
	s.logOp(ctx, event, start, nil,
		slog.Int("count", counts.Total),
	)
	return s.GetBotStats(ctx)
}

// SetBotStatus updates the status of the latest bot_stats row.
func (s *Storage) SetBotStatus(ctx context.Context, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_stats SET status = $1
		WHERE id = (SELECT id FROM bot_stats ORDER BY id DESC LIMIT 1)`, status)
	if err != nil {
		return fmt.Errorf("storage: set bot status %q: %w", status, err)
	}
	return nil
}

// GetUsersCount returns the number of known users.
func (s *Storage) GetUsersCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return n, nil
}

// GetActiveUsersCount returns the number of users with is_active set.
func (s *Storage) GetActiveUsersCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE is_active = TRUE`); err != nil {
		return 0, fmt.Errorf("storage: count active users: %w", err)
	}
	return n, nil
}

func (s *Storage) logOp(ctx context.Context, op string, start time.Time, err error, attrs ...slog.Attr) {
	level := slog.LevelDebug
	base := []slog.Attr{
		slog.String("op", op),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		level = slog.LevelError
		base = append(base, slog.String("err", err.Error()))
	}
	logger.LogEvent(ctx, logger.Store, level, "store.op", append(base, attrs...)...)
}
