package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	chat_session_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	metadata        TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (chat_session_id, created_at);
`

// sqliteRepo implements ChatRepository on a local SQLite database
type sqliteRepo struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the chat database at the given path and
// ensures the schema exists.
func NewSQLite(path string) (ChatRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	// modernc.org/sqlite does not support concurrent writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to ensure schema")
	}

	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}

func (r *sqliteRepo) CreateSession(ctx context.Context, title string) (*model.ChatSession, error) {
	if title == "" {
		title = model.DefaultChatTitle
	}

	now := time.Now().UTC()
	chat := &model.ChatSession{
		ID:        model.NewChatID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		string(chat.ID), chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert chat session")
	}

	return chat, nil
}

func (r *sqliteRepo) GetSession(ctx context.Context, id model.ChatID) (*model.ChatSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, string(id))

	var chat model.ChatSession
	if err := row.Scan(&chat.ID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to scan chat session", goerr.V("chat_id", id))
	}
	return &chat, nil
}

func (r *sqliteRepo) ListSessions(ctx context.Context) ([]*model.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chat sessions")
	}
	defer rows.Close()

	var sessions []*model.ChatSession
	for rows.Next() {
		var chat model.ChatSession
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan chat session")
		}
		sessions = append(sessions, &chat)
	}
	return sessions, rows.Err()
}

func (r *sqliteRepo) DeleteSession(ctx context.Context, id model.ChatID) (bool, error) {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_session_id = ?`, string(id)); err != nil {
		return false, goerr.Wrap(err, "failed to delete messages", goerr.V("chat_id", id))
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id = ?`, string(id))
	if err != nil {
		return false, goerr.Wrap(err, "failed to delete chat session", goerr.V("chat_id", id))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to read affected rows")
	}
	return affected > 0, nil
}

func (r *sqliteRepo) UpdateSessionTitle(ctx context.Context, id model.ChatID, title string) (*model.ChatSession, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), string(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update chat title", goerr.V("chat_id", id))
	}

	return r.GetSession(ctx, id)
}

func (r *sqliteRepo) AddMessage(ctx context.Context, chatID model.ChatID, role, content string, meta *model.MessageMetadata) (*model.Message, error) {
	msg := &model.Message{
		ID:        model.NewMessageID(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Metadata:  meta,
	}

	var metaJSON sql.NullString
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal message metadata")
		}
		metaJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_session_id, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(chatID), msg.Role, msg.Content, msg.CreatedAt, metaJSON)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert message", goerr.V("chat_id", chatID))
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, string(chatID)); err != nil {
		return nil, goerr.Wrap(err, "failed to touch chat session", goerr.V("chat_id", chatID))
	}

	return msg, nil
}

func (r *sqliteRepo) ListMessages(ctx context.Context, chatID model.ChatID) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_session_id, role, content, created_at, metadata
		 FROM messages WHERE chat_session_id = ? ORDER BY created_at ASC`, string(chatID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("chat_id", chatID))
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var msg model.Message
		var metaJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt, &metaJSON); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		if metaJSON.Valid {
			var meta model.MessageMetadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
				return nil, goerr.Wrap(err, "failed to unmarshal message metadata", goerr.V("message_id", msg.ID))
			}
			msg.Metadata = &meta
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (r *sqliteRepo) Purge(ctx context.Context, olderThan *time.Duration) (int64, int64, error) {
	msgQuery := `DELETE FROM messages`
	chatQuery := `DELETE FROM chat_sessions`
	var msgArgs, chatArgs []any

	if olderThan != nil {
		cutoff := time.Now().UTC().Add(-*olderThan)
		msgQuery += ` WHERE created_at < ?`
		chatQuery += ` WHERE updated_at < ?`
		msgArgs = append(msgArgs, cutoff)
		chatArgs = append(chatArgs, cutoff)
	}

	msgResult, err := r.db.ExecContext(ctx, msgQuery, msgArgs...)
	if err != nil {
		return 0, 0, goerr.Wrap(err, "failed to purge messages")
	}
	chatResult, err := r.db.ExecContext(ctx, chatQuery, chatArgs...)
	if err != nil {
		return 0, 0, goerr.Wrap(err, "failed to purge chat sessions")
	}

	messages, _ := msgResult.RowsAffected()
	chats, _ := chatResult.RowsAffected()
	return chats, messages, nil
}
