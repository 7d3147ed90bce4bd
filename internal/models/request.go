package models

import "time"

// BookingRequest is what a prospective tenant submits for a property.
type BookingRequest struct {
	PropertyID    int64      `json:"property_id" validate:"required"`
	StartDate     time.Time  `json:"start_date" validate:"required"`
	LeaseDuration int        `json:"lease_duration" validate:"gte=1"`
	ViewingDate   *time.Time `json:"viewing_date,omitempty"`
	CoTenants     []int64    `json:"co_tenants" validate:"max=10,dive,gt=0"`
	Note          string     `json:"note" validate:"max=1000"`
}

// PropertyCalendar is the flattened occupancy of a property.
type PropertyCalendar struct {
	PropertyID   int64          `json:"property_id"`
	Status       PropertyStatus `json:"status"`
	BookedDates  []time.Time    `json:"booked_dates"`
	ViewingDates []time.Time    `json:"viewing_dates"`
}

// SearchResult is one ranked hit from the semantic search function.
type SearchResult struct {
	PropertyID int64   `json:"property_id"`
	Score      float64 `json:"score"`
}
