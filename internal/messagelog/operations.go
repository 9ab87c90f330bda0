package messagelog

import (
	"database/sql"
	"fmt"
	"time"
)

// StoreMessage inserts a message into the history and bumps its
// conversation's preview cache. Re-storing the same id is a no-op,
// since retries may replay a message already recorded.
func (l *Log) StoreMessage(m Message) error {
	res, err := l.db.Exec(`
		INSERT INTO messages (id, sender_nickname, recipient_nickname, group_name, content, is_image, filename, timestamp, sync_status, read, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, m.ID, m.SenderNickname, m.RecipientNickname, m.GroupName, m.Content, boolToInt(m.IsImage), m.Filename,
		unixMilli(m.Timestamp), m.SyncStatus, boolToInt(m.Read), unixMilli(m.ExpiresAt))
	if err != nil {
		return fmt.Errorf("messagelog: store message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil // already recorded; leave the conversation state alone
	}

	key := m.conversationKey()
	preview := m.Content
	if m.IsImage {
		preview = m.Filename
	}
	_, err = l.db.Exec(`
		INSERT INTO conversation_state (conversation_key, is_group, unread_count, last_message_preview, last_message_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			unread_count = unread_count + excluded.unread_count,
			last_message_preview = excluded.last_message_preview,
			last_message_at = excluded.last_message_at
		WHERE excluded.last_message_at >= conversation_state.last_message_at
	`, key, boolToInt(m.GroupName != ""), boolToInt(!m.Read), preview, unixMilli(m.Timestamp))
	if err != nil {
		return fmt.Errorf("messagelog: update conversation state: %w", err)
	}
	return nil
}

// EnqueueOffline records a delivery attempt for a message sent to a
// peer that could not be reached directly, with the default 5 minute
// initial retry delay and 7 day expiry.
func (l *Log) EnqueueOffline(id, messageID, targetNickname string, now time.Time) error {
	_, err := l.db.Exec(`
		INSERT INTO offline_queue (id, message_id, target_nickname, status, retry_count, next_retry_at, expires_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?)
	`, id, messageID, targetNickname, unixMilli(now.Add(5*time.Minute)), unixMilli(now.Add(7*24*time.Hour)))
	if err != nil {
		return fmt.Errorf("messagelog: enqueue offline: %w", err)
	}
	return nil
}

// GetPendingMessages returns the queue entries waiting for delivery to
// target, oldest message first.
func (l *Log) GetPendingMessages(target string) ([]QueueEntry, error) {
	rows, err := l.db.Query(`
		SELECT q.id, q.message_id, q.target_nickname, q.status, q.retry_count, q.next_retry_at, q.expires_at
		FROM offline_queue q LEFT JOIN messages m ON m.id = q.message_id
		WHERE q.target_nickname = ? AND q.status = 'pending'
		ORDER BY m.timestamp ASC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("messagelog: get pending messages: %w", err)
	}
	return scanQueueEntries(rows)
}

// GetConversation returns the most recent direct messages exchanged
// with peer, newest first, up to limit.
func (l *Log) GetConversation(peer string, limit int) ([]Message, error) {
	rows, err := l.db.Query(`
		SELECT id, sender_nickname, recipient_nickname, group_name, content, is_image, filename, timestamp, sync_status, read, expires_at
		FROM messages
		WHERE group_name = '' AND (sender_nickname = ? OR recipient_nickname = ?)
		ORDER BY timestamp DESC LIMIT ?
	`, peer, peer, limit)
	if err != nil {
		return nil, fmt.Errorf("messagelog: get conversation: %w", err)
	}
	return scanMessages(rows)
}

// GetGroupMessages returns the most recent messages posted to group,
// newest first, up to limit.
func (l *Log) GetGroupMessages(group string, limit int) ([]Message, error) {
	rows, err := l.db.Query(`
		SELECT id, sender_nickname, recipient_nickname, group_name, content, is_image, filename, timestamp, sync_status, read, expires_at
		FROM messages WHERE group_name = ?
		ORDER BY timestamp DESC LIMIT ?
	`, group, limit)
	if err != nil {
		return nil, fmt.Errorf("messagelog: get group messages: %w", err)
	}
	return scanMessages(rows)
}

// GetMessage returns a single message by id, for a retry sweep that
// needs the original content to attempt redelivery.
func (l *Log) GetMessage(id string) (Message, error) {
	rows, err := l.db.Query(`
		SELECT id, sender_nickname, recipient_nickname, group_name, content, is_image, filename, timestamp, sync_status, read, expires_at
		FROM messages WHERE id = ?
	`, id)
	if err != nil {
		return Message{}, fmt.Errorf("messagelog: get message: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return Message{}, err
	}
	if len(msgs) == 0 {
		return Message{}, sql.ErrNoRows
	}
	return msgs[0], nil
}

// MarkDelivered moves a message's sync_status to delivered.
func (l *Log) MarkDelivered(id string) error {
	_, err := l.db.Exec(`UPDATE messages SET sync_status = 'delivered' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("messagelog: mark delivered: %w", err)
	}
	return nil
}

// MarkRead marks a single message read and decrements its
// conversation's unread counter.
func (l *Log) MarkRead(id string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("messagelog: mark read: %w", err)
	}
	defer tx.Rollback()

	var alreadyRead int
	var groupName, recipient string
	err = tx.QueryRow(`SELECT read, group_name, recipient_nickname FROM messages WHERE id = ?`, id).
		Scan(&alreadyRead, &groupName, &recipient)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("messagelog: mark read: %w", err)
	}
	if alreadyRead != 0 {
		return tx.Commit()
	}

	if _, err := tx.Exec(`UPDATE messages SET read = 1, sync_status = 'read' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("messagelog: mark read: %w", err)
	}
	key := recipient
	if groupName != "" {
		key = "group:" + groupName
	}
	if _, err := tx.Exec(`
		UPDATE conversation_state SET unread_count = MAX(0, unread_count - 1) WHERE conversation_key = ?
	`, key); err != nil {
		return fmt.Errorf("messagelog: mark read: %w", err)
	}
	return tx.Commit()
}

// MarkConversationRead marks every unread message in a conversation
// read and zeroes its unread counter. key is a peer nickname for a
// direct conversation, or "group:<name>" for a group.
func (l *Log) MarkConversationRead(key string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("messagelog: mark conversation read: %w", err)
	}
	defer tx.Rollback()

	var execErr error
	const groupPrefix = "group:"
	if len(key) > len(groupPrefix) && key[:len(groupPrefix)] == groupPrefix {
		_, execErr = tx.Exec(`UPDATE messages SET read = 1, sync_status = 'read' WHERE group_name = ? AND read = 0`, key[len(groupPrefix):])
	} else {
		_, execErr = tx.Exec(`UPDATE messages SET read = 1, sync_status = 'read' WHERE recipient_nickname = ? AND read = 0`, key)
	}
	if execErr != nil {
		return fmt.Errorf("messagelog: mark conversation read: %w", execErr)
	}
	if _, err := tx.Exec(`UPDATE conversation_state SET unread_count = 0 WHERE conversation_key = ?`, key); err != nil {
		return fmt.Errorf("messagelog: mark conversation read: %w", err)
	}
	return tx.Commit()
}

// UpdateRetry records the outcome of a delivery attempt. On success
// the queue entry is marked delivered. On failure retry_count is
// incremented and next_retry_at is pushed out by 5*2^retry_count
// minutes (5, 10, 20, ... 2560); once retry_count would reach
// maxRetries the entry is marked expired instead of rescheduled.
func (l *Log) UpdateRetry(id string, success bool, now time.Time) error {
	if success {
		_, err := l.db.Exec(`UPDATE offline_queue SET status = 'delivered' WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("messagelog: update retry: %w", err)
		}
		return nil
	}

	var retryCount int
	if err := l.db.QueryRow(`SELECT retry_count FROM offline_queue WHERE id = ?`, id).Scan(&retryCount); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("messagelog: update retry: %w", err)
	}

	next := retryCount + 1
	if next >= maxRetries {
		_, err := l.db.Exec(`UPDATE offline_queue SET status = 'expired', retry_count = ? WHERE id = ?`, next, id)
		if err != nil {
			return fmt.Errorf("messagelog: update retry: %w", err)
		}
		return nil
	}

	delayMinutes := 5 * (1 << uint(next))
	nextRetryAt := now.Add(time.Duration(delayMinutes) * time.Minute)
	_, err := l.db.Exec(`UPDATE offline_queue SET retry_count = ?, next_retry_at = ? WHERE id = ?`,
		next, unixMilli(nextRetryAt), id)
	if err != nil {
		return fmt.Errorf("messagelog: update retry: %w", err)
	}
	return nil
}

// GetRetryMessages returns every pending queue entry whose
// next_retry_at has elapsed, ready to be retried.
func (l *Log) GetRetryMessages(now time.Time) ([]QueueEntry, error) {
	rows, err := l.db.Query(`
		SELECT id, message_id, target_nickname, status, retry_count, next_retry_at, expires_at
		FROM offline_queue WHERE status = 'pending' AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
	`, unixMilli(now))
	if err != nil {
		return nil, fmt.Errorf("messagelog: get retry messages: %w", err)
	}
	return scanQueueEntries(rows)
}

// CleanupExpired deletes messages and queue entries past their
// expires_at, returning the total number of rows removed.
func (l *Log) CleanupExpired(now time.Time) (int, error) {
	ts := unixMilli(now)
	res1, err := l.db.Exec(`DELETE FROM messages WHERE expires_at <= ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("messagelog: cleanup expired messages: %w", err)
	}
	res2, err := l.db.Exec(`DELETE FROM offline_queue WHERE expires_at <= ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("messagelog: cleanup expired queue entries: %w", err)
	}
	n1, _ := res1.RowsAffected()
	n2, _ := res2.RowsAffected()
	return int(n1 + n2), nil
}

// GetUnreadCount returns the unread message count for a conversation
// key (a peer nickname, or "group:<name>").
func (l *Log) GetUnreadCount(key string) (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT unread_count FROM conversation_state WHERE conversation_key = ?`, key).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("messagelog: get unread count: %w", err)
	}
	return count, nil
}

// GetConversationPreviews returns every known conversation's preview,
// most recently active first, for a chat list view.
func (l *Log) GetConversationPreviews() ([]ConversationPreview, error) {
	rows, err := l.db.Query(`
		SELECT conversation_key, is_group, unread_count, last_message_preview, last_message_at
		FROM conversation_state ORDER BY last_message_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("messagelog: get conversation previews: %w", err)
	}
	defer rows.Close()

	var out []ConversationPreview
	for rows.Next() {
		var p ConversationPreview
		var isGroup int
		var lastAt int64
		if err := rows.Scan(&p.Key, &isGroup, &p.UnreadCount, &p.LastMessagePreview, &lastAt); err != nil {
			return nil, fmt.Errorf("messagelog: scan conversation preview: %w", err)
		}
		p.IsGroup = isGroup != 0
		p.LastMessageAt = fromUnixMilli(lastAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var isImage, read int
		var ts, expiresAt int64
		if err := rows.Scan(&m.ID, &m.SenderNickname, &m.RecipientNickname, &m.GroupName, &m.Content,
			&isImage, &m.Filename, &ts, &m.SyncStatus, &read, &expiresAt); err != nil {
			return nil, fmt.Errorf("messagelog: scan message: %w", err)
		}
		m.IsImage = isImage != 0
		m.Read = read != 0
		m.Timestamp = fromUnixMilli(ts)
		m.ExpiresAt = fromUnixMilli(expiresAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanQueueEntries(rows *sql.Rows) ([]QueueEntry, error) {
	defer rows.Close()
	var out []QueueEntry
	for rows.Next() {
		var q QueueEntry
		var nextRetry, expiresAt int64
		if err := rows.Scan(&q.ID, &q.MessageID, &q.TargetNickname, &q.Status, &q.RetryCount, &nextRetry, &expiresAt); err != nil {
			return nil, fmt.Errorf("messagelog: scan queue entry: %w", err)
		}
		q.NextRetryAt = fromUnixMilli(nextRetry)
		q.ExpiresAt = fromUnixMilli(expiresAt)
		out = append(out, q)
	}
	return out, rows.Err()
}
