// Package sqlite is the local conversation state store used by the dev
// server. It mirrors the DynamoDB repository on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"delinquency-map/internal/domain"

	_ "modernc.org/sqlite"
)

type Client struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway store.
func New(ctx context.Context, path string) (*Client, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path must not be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: setting pragma %q: %w", pragma, err)
		}
	}

	c := &Client{db: db}
	if err := c.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) ensureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id      TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		turns           INTEGER NOT NULL DEFAULT 0,
		last_activity   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id      TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		conversation_id TEXT NOT NULL,
		question        TEXT NOT NULL,
		answer_kind     TEXT NOT NULL,
		answer          TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges (session_id, id);
	`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return nil
}

// GetSession returns a zero SessionMeta (empty ConversationID) for unknown
// sessions.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.SessionMeta, error) {
	meta := domain.SessionMeta{SessionID: sessionID}
	err := c.db.QueryRowContext(ctx,
		`SELECT conversation_id, turns, last_activity FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&meta.ConversationID, &meta.Turns, &meta.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, nil
	}
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("sqlite: GetSession: %w", err)
	}
	return meta, nil
}

// GetHistory returns the latest limit exchanges in chronological order.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	query := `
	SELECT session_id, conversation_id, question, answer_kind, answer, created_at
	FROM (
		SELECT * FROM exchanges WHERE session_id = ? ORDER BY id DESC LIMIT ?
	)
	ORDER BY id ASC
	`
	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetHistory: %w", err)
	}
	defer rows.Close()

	exchanges := []domain.Exchange{}
	for rows.Next() {
		var ex domain.Exchange
		var kind string
		if err := rows.Scan(&ex.SessionID, &ex.ConversationID, &ex.Question, &kind, &ex.Answer, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: GetHistory scan: %w", err)
		}
		ex.AnswerKind = domain.AnswerKind(kind)
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: GetHistory rows: %w", err)
	}
	return exchanges, nil
}

// SaveCompletedExchange upserts the session row and appends the exchange in
// one transaction.
func (c *Client) SaveCompletedExchange(ctx context.Context, sessionID, conversationID, question string, answer domain.NormalizedAnswer, turns int) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: SaveCompletedExchange begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (session_id, conversation_id, turns, last_activity)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (session_id) DO UPDATE SET
		conversation_id = excluded.conversation_id,
		turns = excluded.turns,
		last_activity = excluded.last_activity
	`, sessionID, conversationID, turns, now)
	if err != nil {
		return fmt.Errorf("sqlite: SaveCompletedExchange upsert session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO exchanges (session_id, conversation_id, question, answer_kind, answer, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, conversationID, question, string(answer.Kind), answer.Summary(), now)
	if err != nil {
		return fmt.Errorf("sqlite: SaveCompletedExchange insert exchange: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: SaveCompletedExchange commit: %w", err)
	}
	return nil
}
