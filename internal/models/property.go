package models

import (
	"sort"
	"time"
)

type PropertyKind string

const (
	KindApartment PropertyKind = "apartment"
	KindTransient PropertyKind = "transient"
)

func (k PropertyKind) Valid() bool {
	return k == KindApartment || k == KindTransient
}

type PropertyStatus string

const (
	PropertyAvailable   PropertyStatus = "Available"
	PropertyUnavailable PropertyStatus = "Unavailable"
)

// BookedDateEntry is the block of calendar days reserved by one booking.
type BookedDateEntry struct {
	BookingID int64       `json:"booking_id"`
	Dates     []time.Time `json:"dates"`
}

// ViewingDateEntry is a confirmed viewing appointment.
type ViewingDateEntry struct {
	BookingID int64     `json:"booking_id"`
	Date      time.Time `json:"date"`
}

type ApartmentDetails struct {
	Bedrooms       int  `json:"bedrooms" yaml:"bedrooms" validate:"gte=0,lte=20"`
	Bathrooms      int  `json:"bathrooms" yaml:"bathrooms" validate:"gte=0,lte=20"`
	Furnished      bool `json:"furnished" yaml:"furnished"`
	MinLeaseMonths int  `json:"min_lease_months" yaml:"min_lease_months" validate:"gte=1,lte=36"`
}

type TransientDetails struct {
	Bedrooms  int `json:"bedrooms" yaml:"bedrooms" validate:"gte=0,lte=20"`
	Beds      int `json:"beds" yaml:"beds" validate:"gte=1,lte=50"`
	MaxGuests int `json:"max_guests" yaml:"max_guests" validate:"gte=1,lte=50"`
	MinNights int `json:"min_nights" yaml:"min_nights" validate:"gte=1,lte=30"`
}

// Property is a listing. Exactly one of Apartment or Transient is set and it matches Kind.
type Property struct {
	ID           int64              `json:"id"`
	OwnerID      int64              `json:"owner_id" validate:"required"`
	Kind         PropertyKind       `json:"kind" validate:"required,oneof=apartment transient"`
	Title        string             `json:"title" validate:"required,max=120"`
	Description  string             `json:"description" validate:"max=4000"`
	Address      string             `json:"address" validate:"required,max=255"`
	Price        float64            `json:"price" validate:"gt=0"`
	Apartment    *ApartmentDetails  `json:"apartment,omitempty" validate:"required_if=Kind apartment"`
	Transient    *TransientDetails  `json:"transient,omitempty" validate:"required_if=Kind transient"`
	Images       []string           `json:"images"`
	Status       PropertyStatus     `json:"status"`
	BookedDates  []BookedDateEntry  `json:"booked_dates"`
	ViewingDates []ViewingDateEntry `json:"viewing_dates"`
	Version      int64              `json:"version"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (p *Property) IsOwnedBy(userID int64) bool {
	return p.OwnerID == userID
}

// AllBookedDates flattens every booked-date block in chronological order.
func (p *Property) AllBookedDates() []time.Time {
	return p.BookedDatesExcept(0)
}

// BookedDatesExcept flattens booked dates of every booking other than bookingID.
func (p *Property) BookedDatesExcept(bookingID int64) []time.Time {
	var out []time.Time
	for _, entry := range p.BookedDates {
		if bookingID != 0 && entry.BookingID == bookingID {
			continue
		}
		out = append(out, entry.Dates...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (p *Property) AllViewingDates() []time.Time {
	out := make([]time.Time, 0, len(p.ViewingDates))
	for _, entry := range p.ViewingDates {
		out = append(out, entry.Date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// HasBookedBlock reports whether the booking already reserved days on this property.
func (p *Property) HasBookedBlock(bookingID int64) bool {
	for _, entry := range p.BookedDates {
		if entry.BookingID == bookingID {
			return true
		}
	}
	return false
}

func (p *Property) HasViewing(bookingID int64) bool {
	for _, entry := range p.ViewingDates {
		if entry.BookingID == bookingID {
			return true
		}
	}
	return false
}
