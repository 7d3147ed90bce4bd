package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rentals/internal/models"
)

func (db *DB) CreateAlerts(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return insertAlerts(ctx, tx, alerts)
	})
	if err != nil {
		for _, a := range alerts {
			a.ID = 0
		}
	}
	return err
}

func insertAlerts(ctx context.Context, tx execer, alerts []*models.Alert) error {
	query := `INSERT INTO alerts (recipient_id, message, type, booking_id, property_id, sender_id, is_read, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, a := range alerts {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		result, err := tx.ExecContext(ctx, query,
			a.RecipientID, a.Message, string(a.Type), a.BookingID, a.PropertyID, a.SenderID, a.IsRead, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert for %d: %w", a.RecipientID, err)
		}
		if a.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

// ListAlerts returns the recipient's alerts, newest first.
func (db *DB) ListAlerts(ctx context.Context, recipientID int64, unreadOnly bool, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	query := `SELECT id, recipient_id, message, type, booking_id, property_id, sender_id, is_read, created_at
              FROM alerts WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.RecipientID, &a.Message, &a.Type, &a.BookingID, &a.PropertyID,
			&a.SenderID, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead fails with ErrNotFound unless the alert belongs to recipientID.
func (db *DB) MarkAlertRead(ctx context.Context, id, recipientID int64) error {
	result, err := db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ? AND recipient_id = ?`, id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) DeleteBookingAlerts(ctx context.Context, bookingID, recipientID int64) (int64, error) {
	return deleteBookingAlerts(ctx, db, bookingID, recipientID)
}

func deleteBookingAlerts(ctx context.Context, ex execer, bookingID, recipientID int64) (int64, error) {
	result, err := ex.ExecContext(ctx, `DELETE FROM alerts WHERE booking_id = ? AND recipient_id = ?`, bookingID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
