package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rentals/internal/models"
)

const dateLayout = "2006-01-02"

// propertyDetails is the JSON shape of the listing-type specific column.
type propertyDetails struct {
	Apartment *models.ApartmentDetails `json:"apartment,omitempty"`
	Transient *models.TransientDetails `json:"transient,omitempty"`
}

const propertyColumns = `id, owner_id, kind, title, description, address, price, details, images, status, version, created_at, updated_at`

func (db *DB) CreateProperty(ctx context.Context, p *models.Property) error {
	details, images, err := encodeProperty(p)
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = models.PropertyAvailable
	}

	now := time.Now()
	query := `INSERT INTO properties (owner_id, kind, title, description, address, price, details, images, status, version, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		p.OwnerID, string(p.Kind), p.Title, p.Description, p.Address, p.Price,
		details, images, string(p.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (db *DB) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	row := db.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("property %d", id))
	}
	if err := loadCalendar(ctx, db, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProperty writes listing fields, images and status when p.Version is current.
// Calendars are only written by booking transitions.
func (db *DB) UpdateProperty(ctx context.Context, p *models.Property) error {
	details, images, err := encodeProperty(p)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `UPDATE properties
              SET title = ?, description = ?, address = ?, price = ?, details = ?, images = ?, status = ?,
                  version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		p.Title, p.Description, p.Address, p.Price, details, images, string(p.Status), now, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update property: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

func (db *DB) ListPropertiesByOwner(ctx context.Context, ownerID int64) ([]*models.Property, error) {
	return db.listProperties(ctx, `SELECT `+propertyColumns+` FROM properties WHERE owner_id = ? ORDER BY id`, ownerID)
}

// ListAvailableProperties lists Available listings, optionally of one kind.
func (db *DB) ListAvailableProperties(ctx context.Context, kind models.PropertyKind, limit int) ([]*models.Property, error) {
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	if kind == "" {
		return db.listProperties(ctx,
			`SELECT `+propertyColumns+` FROM properties WHERE status = ? ORDER BY id LIMIT ?`,
			string(models.PropertyAvailable), limit)
	}
	return db.listProperties(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE status = ? AND kind = ? ORDER BY id LIMIT ?`,
		string(models.PropertyAvailable), string(kind), limit)
}

func (db *DB) listProperties(ctx context.Context, query string, args ...any) ([]*models.Property, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var props []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}
	rows.Close()

	for _, p := range props {
		if err := loadCalendar(ctx, db, p); err != nil {
			return nil, err
		}
	}
	return props, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var p models.Property
	var description sql.NullString
	var details, images string
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Kind, &p.Title, &description, &p.Address, &p.Price,
		&details, &images, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String

	var d propertyDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return nil, fmt.Errorf("failed to decode property %d details: %w", p.ID, err)
	}
	p.Apartment, p.Transient = d.Apartment, d.Transient
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return nil, fmt.Errorf("failed to decode property %d images: %w", p.ID, err)
	}
	return &p, nil
}

func encodeProperty(p *models.Property) (string, string, error) {
	details, err := json.Marshal(propertyDetails{Apartment: p.Apartment, Transient: p.Transient})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode property details: %w", err)
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	rawImages, err := json.Marshal(images)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode property images: %w", err)
	}
	return string(details), string(rawImages), nil
}

// loadCalendar fills booked and viewing dates, grouped per booking in booking order.
func loadCalendar(ctx context.Context, q queryer, p *models.Property) error {
	rows, err := q.QueryContext(ctx,
		`SELECT booking_id, date FROM property_booked_dates WHERE property_id = ? ORDER BY booking_id, date`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load booked dates: %w", err)
	}
	p.BookedDates = nil
	for rows.Next() {
		var bookingID int64
		var raw string
		if err := rows.Scan(&bookingID, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan booked date: %w", err)
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to parse booked date %s: %w", raw, err)
		}
		n := len(p.BookedDates)
		if n == 0 || p.BookedDates[n-1].BookingID != bookingID {
			p.BookedDates = append(p.BookedDates, models.BookedDateEntry{BookingID: bookingID})
			n++
		}
		p.BookedDates[n-1].Dates = append(p.BookedDates[n-1].Dates, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate booked dates: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT booking_id, date FROM property_viewing_dates WHERE property_id = ? ORDER BY date, booking_id`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load viewing dates: %w", err)
	}
	defer rows.Close()
	p.ViewingDates = nil
	for rows.Next() {
		var entry models.ViewingDateEntry
		var raw string
		if err := rows.Scan(&entry.BookingID, &raw); err != nil {
			return fmt.Errorf("failed to scan viewing date: %w", err)
		}
		if entry.Date, err = time.Parse(dateLayout, raw); err != nil {
			return fmt.Errorf("failed to parse viewing date %s: %w", raw, err)
		}
		p.ViewingDates = append(p.ViewingDates, entry)
	}
	return rows.Err()
}

// saveCalendar replaces the stored calendar of p with its in-memory entries.
func saveCalendar(ctx context.Context, tx execer, p *models.Property) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM property_booked_dates WHERE property_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear booked dates: %w", err)
	}
	for _, entry := range p.BookedDates {
		seen := make(map[string]bool, len(entry.Dates))
		for _, d := range entry.Dates {
			key := d.Format(dateLayout)
			if seen[key] {
				continue
			}
			seen[key] = true
			_, err := tx.ExecContext(ctx,
				`INSERT INTO property_booked_dates (property_id, booking_id, date) VALUES (?, ?, ?)`,
				p.ID, entry.BookingID, key)
			if err != nil {
				if isConstraintViolation(err) {
					return fmt.Errorf("%w: %s", ErrDatesTaken, key)
				}
				return fmt.Errorf("failed to insert booked date: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM property_viewing_dates WHERE property_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear viewing dates: %w", err)
	}
	for _, entry := range p.ViewingDates {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO property_viewing_dates (property_id, booking_id, date) VALUES (?, ?, ?)`,
			p.ID, entry.BookingID, entry.Date.Format(dateLayout))
		if err != nil {
			return fmt.Errorf("failed to insert viewing date: %w", err)
		}
	}
	return nil
}
