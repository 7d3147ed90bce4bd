package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rentals/internal/models"
)

const bookingColumns = `id, type, property_id, owner_id, status, start_date, lease_duration, viewing_date, booked_dates, note, version, created_at, updated_at`

// CreateBooking inserts the booking, its tenants and the request alerts in one transaction.
// Alerts without a booking id get the new booking's id.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking, alerts []*models.Alert) error {
	bookedDates, err := encodeDates(b.BookedDates)
	if err != nil {
		return err
	}

	now := time.Now()
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO bookings (type, property_id, owner_id, status, start_date, lease_duration, viewing_date, booked_dates, note, version, created_at, updated_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
		result, err := tx.ExecContext(ctx, query,
			string(b.Type), b.PropertyID, b.OwnerID, string(b.Status), b.StartDate.Format(dateLayout),
			b.LeaseDuration, nullableDate(b.ViewingDate), bookedDates, b.Note, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		b.ID = id

		if err := saveTenants(ctx, tx, b); err != nil {
			return err
		}
		for _, a := range alerts {
			if a.BookingID == 0 {
				a.BookingID = id
			}
		}
		return insertAlerts(ctx, tx, alerts)
	})
	if err != nil {
		b.ID = 0
		return err
	}

	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("booking %d", id))
	}
	if err := loadTenants(ctx, db, []*models.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookingsByUser returns bookings where the user is a tenant or the owner, newest first.
func (db *DB) ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE owner_id = ? OR id IN (SELECT booking_id FROM booking_tenants WHERE user_id = ?)
              ORDER BY created_at DESC, id DESC`
	return db.listBookings(ctx, query, userID, userID)
}

func (db *DB) ListBookingsByProperty(ctx context.Context, propertyID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE property_id = ? ORDER BY start_date, id`
	return db.listBookings(ctx, query, propertyID)
}

// ListAllBookings returns every booking ordered by id. Used for full resyncs.
func (db *DB) ListAllBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY id`)
}

func (db *DB) listBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	rows.Close()

	if err := loadTenants(ctx, db, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ApplyTransition commits a workflow step. The booking, and the property when present,
// are written only if their stored version still equals the one they were read at.
func (db *DB) ApplyTransition(ctx context.Context, tr *models.BookingTransition) error {
	b := tr.Booking
	bookedDates, err := encodeDates(b.BookedDates)
	if err != nil {
		return err
	}

	now := time.Now()
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE bookings
                  SET status = ?, viewing_date = ?, booked_dates = ?, note = ?, version = version + 1, updated_at = ?
                  WHERE id = ? AND version = ?`
		result, err := tx.ExecContext(ctx, query,
			string(b.Status), nullableDate(b.ViewingDate), bookedDates, b.Note, now, b.ID, b.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("booking %d: %w", b.ID, ErrConcurrentModification)
		}
		if err := saveTenants(ctx, tx, b); err != nil {
			return err
		}

		if p := tr.Property; p != nil {
			result, err := tx.ExecContext(ctx,
				`UPDATE properties SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
				string(p.Status), now, p.ID, p.Version,
			)
			if err != nil {
				return fmt.Errorf("failed to update property: %w", err)
			}
			if rows, _ := result.RowsAffected(); rows == 0 {
				return fmt.Errorf("property %d: %w", p.ID, ErrConcurrentModification)
			}
			if err := saveCalendar(ctx, tx, p); err != nil {
				return err
			}
		}

		return insertAlerts(ctx, tx, tr.Alerts)
	})
	if err != nil {
		for _, a := range tr.Alerts {
			a.ID = 0
		}
		return err
	}

	b.Version++
	b.UpdatedAt = now
	if tr.Property != nil {
		tr.Property.Version++
		tr.Property.UpdatedAt = now
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var start, bookedDates string
	var viewing, note sql.NullString
	err := row.Scan(
		&b.ID, &b.Type, &b.PropertyID, &b.OwnerID, &b.Status, &start, &b.LeaseDuration,
		&viewing, &bookedDates, &note, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Note = note.String

	if b.StartDate, err = time.Parse(dateLayout, start); err != nil {
		return nil, fmt.Errorf("failed to parse booking start date %s: %w", start, err)
	}
	if viewing.Valid && viewing.String != "" {
		v, err := time.Parse(dateLayout, viewing.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse viewing date %s: %w", viewing.String, err)
		}
		b.ViewingDate = &v
	}
	if b.BookedDates, err = decodeDates(bookedDates); err != nil {
		return nil, err
	}
	return &b, nil
}

func loadTenants(ctx context.Context, q queryer, bookings []*models.Booking) error {
	for _, b := range bookings {
		rows, err := q.QueryContext(ctx,
			`SELECT user_id, status FROM booking_tenants WHERE booking_id = ? ORDER BY position`, b.ID)
		if err != nil {
			return fmt.Errorf("failed to load tenants: %w", err)
		}
		b.Tenants = b.Tenants[:0]
		for rows.Next() {
			var t models.Tenant
			if err := rows.Scan(&t.UserID, &t.Status); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan tenant: %w", err)
			}
			b.Tenants = append(b.Tenants, t)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("failed to iterate tenants: %w", err)
		}
	}
	return nil
}

func saveTenants(ctx context.Context, tx execer, b *models.Booking) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_tenants WHERE booking_id = ?`, b.ID); err != nil {
		return fmt.Errorf("failed to clear tenants: %w", err)
	}
	for i, t := range b.Tenants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO booking_tenants (booking_id, position, user_id, status) VALUES (?, ?, ?, ?)`,
			b.ID, i, t.UserID, string(t.Status))
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("tenant %d listed twice: %w", t.UserID, ErrDuplicate)
			}
			return fmt.Errorf("failed to insert tenant: %w", err)
		}
	}
	return nil
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func encodeDates(dates []time.Time) (string, error) {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(dateLayout)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode dates: %w", err)
	}
	return string(raw), nil
}

func decodeDates(raw string) ([]time.Time, error) {
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, fmt.Errorf("failed to decode dates: %w", err)
	}
	dates := make([]time.Time, 0, len(strs))
	for _, s := range strs {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date %s: %w", s, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
