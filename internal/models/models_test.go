package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusBookingCompleted.IsTerminal())
	assert.True(t, StatusBookingDeclined.IsTerminal())
	for _, s := range []BookingStatus{StatusBooked, StatusPendingInvitation, StatusViewingConfirmed, StatusBookingConfirmed} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestBooking_TenantHelpers(t *testing.T) {
	b := &Booking{
		OwnerID: 1,
		Tenants: []Tenant{
			{UserID: 10, Status: TenantHost},
			{UserID: 11, Status: TenantAccepted},
			{UserID: 12, Status: TenantInvited},
			{UserID: 13, Status: TenantDeclined},
			{UserID: 14, Status: TenantEvicted},
		},
	}

	t.Run("Host", func(t *testing.T) {
		id, ok := b.HostID()
		assert.True(t, ok)
		assert.Equal(t, int64(10), id)
		assert.True(t, b.IsHost(10))
		assert.False(t, b.IsHost(11))
	})

	t.Run("Index", func(t *testing.T) {
		assert.Equal(t, 2, b.TenantIndex(12))
		assert.Equal(t, -1, b.TenantIndex(99))
	})

	t.Run("Groups", func(t *testing.T) {
		assert.Equal(t, []int64{10, 11, 12}, b.ActiveTenantIDs())
		assert.Equal(t, []int64{10, 11}, b.HostSideIDs())
		assert.Equal(t, []int64{1, 10, 11, 12, 13, 14}, b.Participants())
		assert.True(t, b.HasPendingInvitations())
	})

	t.Run("NoHost", func(t *testing.T) {
		empty := &Booking{Tenants: []Tenant{{UserID: 1, Status: TenantEvicted}}}
		_, ok := empty.HostID()
		assert.False(t, ok)
	})
}

func TestProperty_BookedDates(t *testing.T) {
	p := &Property{
		BookedDates: []BookedDateEntry{
			{BookingID: 2, Dates: []time.Time{day("2024-06-03"), day("2024-06-04")}},
			{BookingID: 1, Dates: []time.Time{day("2024-05-10")}},
		},
		ViewingDates: []ViewingDateEntry{{BookingID: 3, Date: day("2024-05-20")}},
	}

	all := p.AllBookedDates()
	assert.Equal(t, []time.Time{day("2024-05-10"), day("2024-06-03"), day("2024-06-04")}, all)
	assert.Equal(t, []time.Time{day("2024-05-10")}, p.BookedDatesExcept(2))
	assert.True(t, p.HasBookedBlock(1))
	assert.False(t, p.HasBookedBlock(3))
	assert.True(t, p.HasViewing(3))
	assert.Equal(t, []time.Time{day("2024-05-20")}, p.AllViewingDates())
}

func TestAlertTemplate_For(t *testing.T) {
	now := time.Now()
	tpl := AlertTemplate{Message: "hi", Type: AlertBooking, BookingID: 5, PropertyID: 6, SenderID: 7}
	a := tpl.For(42, now)
	assert.Equal(t, int64(42), a.RecipientID)
	assert.Equal(t, "hi", a.Message)
	assert.Equal(t, AlertBooking, a.Type)
	assert.False(t, a.IsRead)
	assert.Equal(t, now, a.CreatedAt)
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now}).Expired(now))
	assert.False(t, (&Session{}).Expired(now))
}
