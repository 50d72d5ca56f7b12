// Package sqlite provides a SQLite-backed ThreadStore. Content parts and
// tool calls are stored as JSON text in their wire encoding.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/duonganhthu43/ai-gateway/internal/storage"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// Store is a SQLite implementation of ThreadStore.
type Store struct {
	db *sql.DB
}

var _ storage.ThreadStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS thread_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content_type TEXT NOT NULL,
			content TEXT,
			content_array TEXT NOT NULL,
			type TEXT NOT NULL,
			tool_call_id TEXT,
			tool_calls TEXT,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thread_messages_thread ON thread_messages(thread_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateThread(ctx context.Context, thread *storage.Thread) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, model_name, user_id, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		thread.ID, thread.ModelName, thread.UserID, thread.Title, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

func (s *Store) GetThread(ctx context.Context, id string) (*storage.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model_name, user_id, title FROM threads WHERE id = ?`, id)

	var thread storage.Thread
	if err := row.Scan(&thread.ID, &thread.ModelName, &thread.UserID, &thread.Title); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrThreadNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &thread, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ThreadID == nil {
		return nil
	}

	contentArray, err := json.Marshal(msg.ContentArray)
	if err != nil {
		return fmt.Errorf("encode content array: %w", err)
	}

	var toolCalls any
	if msg.ToolCalls != nil {
		encoded, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = string(encoded)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO thread_messages
			(thread_id, model_name, user_id, content_type, content, content_array, type, tool_call_id, tool_calls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		*msg.ThreadID, msg.ModelName, msg.UserID, string(msg.ContentType),
		msg.Content, string(contentArray), string(msg.Type), msg.ToolCallID, toolCalls, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, threadID string) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, model_name, user_id, content_type, content, content_array, type, tool_call_id, tool_calls
		 FROM thread_messages WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var (
			msg          types.Message
			threadIDCol  string
			contentType  string
			msgType      string
			contentArray string
			toolCalls    sql.NullString
		)
		if err := rows.Scan(&threadIDCol, &msg.ModelName, &msg.UserID, &contentType,
			&msg.Content, &contentArray, &msgType, &msg.ToolCallID, &toolCalls); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.ThreadID = &threadIDCol
		msg.ContentType = types.MessageContentType(contentType)
		msg.Type = types.MessageType(msgType)

		if err := json.Unmarshal([]byte(contentArray), &msg.ContentArray); err != nil {
			return nil, fmt.Errorf("decode content array: %w", err)
		}
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
