package models

import "time"

type BookingStatus string

const (
	StatusBooked            BookingStatus = "Booked"
	StatusPendingInvitation BookingStatus = "Pending Invitation"
	StatusViewingConfirmed  BookingStatus = "Viewing Confirmed"
	StatusBookingConfirmed  BookingStatus = "Booking Confirmed"
	StatusBookingCompleted  BookingStatus = "Booking Completed"
	StatusBookingDeclined   BookingStatus = "Booking Declined"
)

func (s BookingStatus) IsTerminal() bool {
	return s == StatusBookingCompleted || s == StatusBookingDeclined
}

type TenantStatus string

const (
	TenantHost     TenantStatus = "Host"
	TenantInvited  TenantStatus = "Invited"
	TenantAccepted TenantStatus = "Accepted"
	TenantDeclined TenantStatus = "Declined"
	TenantEvicted  TenantStatus = "Evicted"
)

type Tenant struct {
	UserID int64        `json:"user_id"`
	Status TenantStatus `json:"status"`
}

// Booking is one request to occupy a property. Tenants keep their insertion order;
// host reassignment depends on it.
type Booking struct {
	ID            int64         `json:"id"`
	Type          PropertyKind  `json:"type"`
	PropertyID    int64         `json:"property_id"`
	OwnerID       int64         `json:"owner_id"`
	Status        BookingStatus `json:"status"`
	Tenants       []Tenant      `json:"tenants"`
	StartDate     time.Time     `json:"start_date"`
	BookedDates   []time.Time   `json:"booked_dates"`
	LeaseDuration int           `json:"lease_duration"` // months for apartments, nights for transients
	ViewingDate   *time.Time    `json:"viewing_date,omitempty"`
	Note          string        `json:"note"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TenantIndex returns the position of userID in the tenant list or -1.
func (b *Booking) TenantIndex(userID int64) int {
	for i, t := range b.Tenants {
		if t.UserID == userID {
			return i
		}
	}
	return -1
}

func (b *Booking) HostID() (int64, bool) {
	for _, t := range b.Tenants {
		if t.Status == TenantHost {
			return t.UserID, true
		}
	}
	return 0, false
}

func (b *Booking) IsHost(userID int64) bool {
	id, ok := b.HostID()
	return ok && id == userID
}

// ActiveTenantIDs lists tenants that still take part in the booking.
func (b *Booking) ActiveTenantIDs() []int64 {
	ids := make([]int64, 0, len(b.Tenants))
	for _, t := range b.Tenants {
		if t.Status == TenantDeclined || t.Status == TenantEvicted {
			continue
		}
		ids = append(ids, t.UserID)
	}
	return ids
}

// HostSideIDs lists the host and tenants that accepted an invitation.
func (b *Booking) HostSideIDs() []int64 {
	ids := make([]int64, 0, len(b.Tenants))
	for _, t := range b.Tenants {
		if t.Status == TenantHost || t.Status == TenantAccepted {
			ids = append(ids, t.UserID)
		}
	}
	return ids
}

func (b *Booking) HasPendingInvitations() bool {
	for _, t := range b.Tenants {
		if t.Status == TenantInvited {
			return true
		}
	}
	return false
}

// Participants is everyone allowed to read the booking.
func (b *Booking) Participants() []int64 {
	ids := []int64{b.OwnerID}
	for _, t := range b.Tenants {
		ids = append(ids, t.UserID)
	}
	return ids
}

func (b *Booking) EndDate() time.Time {
	if len(b.BookedDates) == 0 {
		return b.StartDate
	}
	return b.BookedDates[len(b.BookedDates)-1]
}

// BookingTransition is every write produced by one workflow step.
// Booking and Property carry the version they were read at.
type BookingTransition struct {
	Name     string
	Booking  *Booking
	Property *Property
	Alerts   []*Alert
}
