// Package messagelog persists direct and group message history plus the
// offline delivery queue in a single SQLite file (§4.L), used so that
// messages sent to a peer who is not currently reachable survive a
// restart and get retried with backoff until they expire.
package messagelog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// maxRetries bounds the offline queue backoff schedule (5, 10, 20, 40,
// 80, 160, 320, 640, 1280, 2560 minutes); the queue entry is marked
// expired once retry_count would reach this value.
const maxRetries = 10

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	sender_nickname TEXT NOT NULL,
	recipient_nickname TEXT NOT NULL DEFAULT '',
	group_name TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	is_image INTEGER NOT NULL DEFAULT 0,
	filename TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	read INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_nickname);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_nickname);
CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_name);
CREATE INDEX IF NOT EXISTS idx_messages_sync_status ON messages(sync_status);
CREATE INDEX IF NOT EXISTS idx_messages_expires_at ON messages(expires_at);

CREATE TABLE IF NOT EXISTS offline_queue (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	target_nickname TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	next_retry_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offline_queue_target ON offline_queue(target_nickname);
CREATE INDEX IF NOT EXISTS idx_offline_queue_status ON offline_queue(status);
CREATE INDEX IF NOT EXISTS idx_offline_queue_next_retry ON offline_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_offline_queue_expires_at ON offline_queue(expires_at);

CREATE TABLE IF NOT EXISTS conversation_state (
	conversation_key TEXT PRIMARY KEY,
	is_group INTEGER NOT NULL,
	unread_count INTEGER NOT NULL DEFAULT 0,
	last_message_preview TEXT NOT NULL DEFAULT '',
	last_message_at INTEGER NOT NULL DEFAULT 0
);
`

// Message is one row of the message history (§4.L).
type Message struct {
	ID                string
	SenderNickname    string
	RecipientNickname string // empty for group messages
	GroupName         string // empty for direct messages
	Content           string
	IsImage           bool
	Filename          string
	Timestamp         time.Time
	SyncStatus        string
	Read              bool
	ExpiresAt         time.Time
}

func (m Message) conversationKey() string {
	if m.GroupName != "" {
		return "group:" + m.GroupName
	}
	return m.RecipientNickname
}

// QueueEntry is one row of the offline delivery queue.
type QueueEntry struct {
	ID             string
	MessageID      string
	TargetNickname string
	Status         string
	RetryCount     int
	NextRetryAt    time.Time
	ExpiresAt      time.Time
}

// ConversationPreview summarizes one conversation (direct peer or
// group) for a chat list view: unread count plus the last message.
// Added beyond the base message log to support a conversation list UI.
type ConversationPreview struct {
	Key                string // peer nickname, or "group:<name>"
	IsGroup            bool
	UnreadCount        int
	LastMessagePreview string
	LastMessageAt      time.Time
}

// Log is a SQLite-backed message history and offline queue, opened for
// the lifetime of the process.
type Log struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures
// its schema exists.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("messagelog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: avoid SQLITE_BUSY under concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("messagelog: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

func unixMilli(t time.Time) int64 { return t.UnixMilli() }
func fromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
