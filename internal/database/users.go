package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rentals/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	query := `INSERT INTO users (name, email, phone, telegram_chat_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		user.Name, strings.ToLower(strings.TrimSpace(user.Email)), user.Phone, user.TelegramChatID, now, now)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("user with email %s: %w", user.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	if user.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `SELECT id, name, email, COALESCE(phone, ''), telegram_chat_id, created_at, updated_at FROM users WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.TelegramChatID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

func (db *DB) UpdateUserTelegram(ctx context.Context, id, chatID int64) error {
	result, err := db.ExecContext(ctx, `UPDATE users SET telegram_chat_id = ?, updated_at = ? WHERE id = ?`, chatID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update telegram chat: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	email = strings.ToLower(strings.TrimSpace(email))
	query := `SELECT id, name, email, COALESCE(phone, ''), telegram_chat_id, created_at, updated_at FROM users WHERE email = ?`
	err := db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.TelegramChatID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "user "+email)
	}
	return &user, nil
}
