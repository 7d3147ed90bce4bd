package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rentals/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookingWithAlerts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	p := newApartment(1)
	require.NoError(t, db.CreateProperty(ctx, p))

	viewing := day(t, "2024-05-20")
	b := newBooking(p, 10)
	b.ViewingDate = &viewing
	b.Tenants = append(b.Tenants, models.Tenant{UserID: 11, Status: models.TenantInvited})
	b.Status = models.StatusPendingInvitation
	b.BookedDates = []time.Time{day(t, "2024-06-01"), day(t, "2024-06-02")}

	alerts := []*models.Alert{
		{RecipientID: 1, Message: "new request", Type: models.AlertBooking, PropertyID: p.ID, SenderID: 10},
		{RecipientID: 11, Message: "invited", Type: models.AlertBooking, PropertyID: p.ID, SenderID: 10},
	}
	require.NoError(t, db.CreateBooking(ctx, b, alerts))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)
	for _, a := range alerts {
		assert.NotZero(t, a.ID)
		assert.Equal(t, b.ID, a.BookingID)
	}

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingInvitation, got.Status)
	assert.Equal(t, b.Tenants, got.Tenants)
	require.NotNil(t, got.ViewingDate)
	assert.Equal(t, "2024-05-20", got.ViewingDate.Format(dateLayout))
	assert.Equal(t, b.BookedDates, got.BookedDates)
	assert.Equal(t, "2024-06-01", got.StartDate.Format(dateLayout))

	inbox, err := db.ListAlerts(ctx, 11, true, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "invited", inbox[0].Message)

	_, err = db.GetBooking(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBooking_DuplicateTenantRollsBack(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	p := newApartment(1)
	require.NoError(t, db.CreateProperty(ctx, p))

	b := newBooking(p, 10)
	b.Tenants = append(b.Tenants, models.Tenant{UserID: 10, Status: models.TenantInvited})
	err := db.CreateBooking(ctx, b, []*models.Alert{{RecipientID: 1, Message: "x", Type: models.AlertBooking}})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Zero(t, b.ID)

	alerts, err := db.ListAlerts(ctx, 1, false, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	p := newApartment(1)
	require.NoError(t, db.CreateProperty(ctx, p))

	b1 := newBooking(p, 10)
	require.NoError(t, db.CreateBooking(ctx, b1, nil))
	b2 := newBooking(p, 20)
	b2.Tenants = append(b2.Tenants, models.Tenant{UserID: 10, Status: models.TenantInvited})
	require.NoError(t, db.CreateBooking(ctx, b2, nil))

	mine, err := db.ListBookingsByUser(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	owner, err := db.ListBookingsByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, owner, 2)

	other, err := db.ListBookingsByUser(ctx, 20)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, b2.ID, other[0].ID)
	assert.Len(t, other[0].Tenants, 2)

	byProperty, err := db.ListBookingsByProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, byProperty, 2)

	all, err := db.ListAllBookings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Len(t, all[1].Tenants, 2)
}

func TestApplyTransition(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	p := newApartment(1)
	require.NoError(t, db.CreateProperty(ctx, p))
	b := newBooking(p, 10)
	require.NoError(t, db.CreateBooking(ctx, b, nil))

	t.Run("CommitsAllWrites", func(t *testing.T) {
		b.Status = models.StatusBookingConfirmed
		p.Status = models.PropertyUnavailable
		p.BookedDates = []models.BookedDateEntry{{BookingID: b.ID, Dates: []time.Time{day(t, "2024-06-01")}}}
		alert := &models.Alert{RecipientID: 10, Message: "confirmed", Type: models.AlertBooking, BookingID: b.ID}

		require.NoError(t, db.ApplyTransition(ctx, &models.BookingTransition{
			Booking: b, Property: p, Alerts: []*models.Alert{alert},
		}))
		assert.Equal(t, int64(2), b.Version)
		assert.Equal(t, int64(2), p.Version)
		assert.NotZero(t, alert.ID)

		got, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBookingConfirmed, got.Status)
	})

	t.Run("StaleBookingVersion", func(t *testing.T) {
		stale := *b
		stale.Version = 1
		stale.Status = models.StatusBookingDeclined
		alert := &models.Alert{RecipientID: 10, Message: "declined", Type: models.AlertBooking, BookingID: b.ID}

		err := db.ApplyTransition(ctx, &models.BookingTransition{Booking: &stale, Alerts: []*models.Alert{alert}})
		assert.ErrorIs(t, err, ErrConcurrentModification)
		assert.Zero(t, alert.ID)

		got, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBookingConfirmed, got.Status)
	})

	t.Run("StalePropertyRollsBackBooking", func(t *testing.T) {
		staleProp := *p
		staleProp.Version = 1
		b.Status = models.StatusBookingCompleted

		err := db.ApplyTransition(ctx, &models.BookingTransition{Booking: b, Property: &staleProp})
		assert.ErrorIs(t, err, ErrConcurrentModification)
		assert.Equal(t, int64(2), b.Version)

		got, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBookingConfirmed, got.Status)
		b.Status = models.StatusBookingConfirmed
	})

	t.Run("DatesTakenByOtherBooking", func(t *testing.T) {
		other := newBooking(p, 20)
		require.NoError(t, db.CreateBooking(ctx, other, nil))

		current, err := db.GetProperty(ctx, p.ID)
		require.NoError(t, err)
		current.BookedDates = append(current.BookedDates,
			models.BookedDateEntry{BookingID: other.ID, Dates: []time.Time{day(t, "2024-06-01")}})
		other.Status = models.StatusBookingConfirmed

		err = db.ApplyTransition(ctx, &models.BookingTransition{Booking: other, Property: current})
		assert.ErrorIs(t, err, ErrDatesTaken)
	})
}

// Re-taps and competing owners read the same version; only one write may win.
func TestConcurrentTransitions(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	p := newApartment(1)
	require.NoError(t, db.CreateProperty(ctx, p))
	b := newBooking(p, 10)
	require.NoError(t, db.CreateBooking(ctx, b, nil))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			bk := *b
			bk.Tenants = append([]models.Tenant(nil), b.Tenants...)
			bk.Status = models.StatusViewingConfirmed
			alert := &models.Alert{RecipientID: 10, Message: "viewing confirmed", Type: models.AlertBooking, BookingID: b.ID}
			results <- db.ApplyTransition(ctx, &models.BookingTransition{Booking: &bk, Alerts: []*models.Alert{alert}})
		}()
	}

	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
		} else {
			assert.ErrorIs(t, err, ErrConcurrentModification)
		}
	}
	assert.Equal(t, 1, success)

	alerts, err := db.ListAlerts(ctx, 10, false, 100)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
