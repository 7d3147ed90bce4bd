package database

import (
	"context"
	"testing"

	"rentals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlerts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	alerts := []*models.Alert{
		{RecipientID: 1, Message: "a", Type: models.AlertBooking, BookingID: 7},
		{RecipientID: 1, Message: "b", Type: models.AlertInquiry, PropertyID: 3},
		{RecipientID: 2, Message: "c", Type: models.AlertBooking, BookingID: 7},
	}
	require.NoError(t, db.CreateAlerts(ctx, alerts))
	require.NoError(t, db.CreateAlerts(ctx, nil))

	list, err := db.ListAlerts(ctx, 1, false, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	t.Run("MarkRead", func(t *testing.T) {
		require.NoError(t, db.MarkAlertRead(ctx, alerts[0].ID, 1))
		unread, err := db.ListAlerts(ctx, 1, true, 10)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, "b", unread[0].Message)
	})

	t.Run("MarkReadWrongRecipient", func(t *testing.T) {
		err := db.MarkAlertRead(ctx, alerts[2].ID, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteBookingAlerts", func(t *testing.T) {
		n, err := db.DeleteBookingAlerts(ctx, 7, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		left, err := db.ListAlerts(ctx, 1, false, 10)
		require.NoError(t, err)
		assert.Len(t, left, 2)
	})
}
