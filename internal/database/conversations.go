package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rentals/internal/models"
)

const conversationColumns = `id, kind, booking_id, property_id, created_at, updated_at`

func (db *DB) CreateConversation(ctx context.Context, c *models.Conversation) error {
	now := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (kind, booking_id, property_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			string(c.Kind), c.BookingID, c.PropertyID, now, now)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("conversation for booking %d: %w", c.BookingID, ErrDuplicate)
			}
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		if c.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return insertParticipants(ctx, tx, c.ID, c.Participants)
	})
	if err != nil {
		c.ID = 0
		return err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (db *DB) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	return db.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

func (db *DB) GetConversationByBooking(ctx context.Context, bookingID int64) (*models.Conversation, error) {
	return db.getConversation(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE kind = 'booking' AND booking_id = ?`, bookingID)
}

func (db *DB) GetInquiryConversation(ctx context.Context, propertyID, userID int64) (*models.Conversation, error) {
	return db.getConversation(ctx,
		`SELECT `+conversationColumns+` FROM conversations
         WHERE kind = 'inquiry' AND property_id = ?
           AND id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)
         ORDER BY id LIMIT 1`, propertyID, userID)
}

func (db *DB) getConversation(ctx context.Context, query string, args ...any) (*models.Conversation, error) {
	var c models.Conversation
	err := db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Kind, &c.BookingID, &c.PropertyID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	if c.Participants, err = db.participants(ctx, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

// AddParticipants adds users not yet in the conversation.
func (db *DB) AddParticipants(ctx context.Context, conversationID int64, userIDs []int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range userIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
				conversationID, id)
			if err != nil {
				return fmt.Errorf("failed to add participant: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now(), conversationID)
		return err
	})
}

func insertParticipants(ctx context.Context, tx execer, conversationID int64, userIDs []int64) error {
	for _, id := range userIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
			conversationID, id)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}
	return nil
}

func (db *DB) participants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListConversationsByUser returns the user's conversations, most recently active first.
func (db *DB) ListConversationsByUser(ctx context.Context, userID int64) ([]*models.Conversation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
         WHERE id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)
         ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.Kind, &c.BookingID, &c.PropertyID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, c := range convs {
		if c.Participants, err = db.participants(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (db *DB) CreateMessage(ctx context.Context, m *models.Message) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)`,
			m.ConversationID, m.SenderID, m.Body, now)
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		if m.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		m.CreatedAt = now
		_, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, m.ConversationID)
		return err
	})
}

// ListMessages returns the latest limit messages in chronological order.
func (db *DB) ListMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, created_at FROM messages
         WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
