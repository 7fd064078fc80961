// Package pg stores conversation history in a PostgreSQL table, one row per
// turn.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"time"

	_ "github.com/lib/pq"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/message"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config holds PostgreSQL connection configuration
type Config struct {
	DSN       string
	TableName string
}

// DefaultConfig returns default PostgreSQL configuration
func DefaultConfig() *Config {
	return &Config{
		DSN:       "host=localhost port=5432 user=postgres dbname=askflow sslmode=disable",
		TableName: "askflow_history",
	}
}

var _ history.Store = (*Store)(nil)

// Store implements history.Store on PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

// New connects, pings and creates the turns table if needed.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TableName == "" {
		config.TableName = DefaultConfig().TableName
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q: %w", config.TableName, askerrors.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(cctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{db: db, table: config.TableName}
	if _, err := db.ExecContext(cctx, store.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *Store) schema() string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGSERIAL PRIMARY KEY,
		session_id VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_session ON %[1]s(session_id, id DESC);
	`, s.table)
}

// Append implements history.Store. All turns land in one transaction.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...*message.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required: %w", askerrors.ErrInvalidInput)
	}
	rows := compact(msgs)
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, msg := range rows {
		if _, err := stmt.ExecContext(ctx, sessionID, string(msg.Role), msg.Content, now); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}
	return tx.Commit()
}

// Messages implements history.Store.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]*message.Message, error) {
	query := fmt.Sprintf(`SELECT role, content FROM %s WHERE session_id = $1 ORDER BY id DESC`, s.table)
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var msgs []*message.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		msgs = append(msgs, message.NewMessage(message.Role(role), content))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Clear implements history.Store.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, s.table), sessionID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func compact(msgs []*message.Message) []*message.Message {
	out := make([]*message.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out
}
