package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rentals/internal/models"
)

// CreateReview stores the review and removes the author's alerts for that booking.
func (db *DB) CreateReview(ctx context.Context, r *models.Review) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO reviews (booking_id, property_id, author_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			r.BookingID, r.PropertyID, r.AuthorID, r.Rating, r.Comment, now)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("review for booking %d: %w", r.BookingID, ErrDuplicate)
			}
			return fmt.Errorf("failed to create review: %w", err)
		}
		if r.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		r.CreatedAt = now
		_, err = deleteBookingAlerts(ctx, tx, r.BookingID, r.AuthorID)
		return err
	})
}

func (db *DB) ListReviewsByProperty(ctx context.Context, propertyID int64) ([]*models.Review, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, booking_id, property_id, author_id, rating, COALESCE(comment, ''), created_at
         FROM reviews WHERE property_id = ? ORDER BY created_at DESC`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.BookingID, &r.PropertyID, &r.AuthorID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}
