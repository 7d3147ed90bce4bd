package service

import (
	"context"
	"errors"
	"testing"

	"rentals/internal/database"
	"rentals/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, alert *models.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func TestAlertBuildDedupes(t *testing.T) {
	logger := zerolog.Nop()
	svc := NewAlertService(nil, nil, &logger)

	alerts := svc.Build([]int64{3, 0, 1, 3, 2}, models.AlertTemplate{Message: "hi", Type: models.AlertBooking, BookingID: 9})
	require.Len(t, alerts, 3)
	assert.Equal(t, int64(3), alerts[0].RecipientID)
	assert.Equal(t, int64(1), alerts[1].RecipientID)
	assert.Equal(t, int64(2), alerts[2].RecipientID)
	for _, a := range alerts {
		assert.Equal(t, int64(9), a.BookingID)
		assert.False(t, a.IsRead)
	}
}

func TestSendAlertsPersistsAndPushes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	a := env.user(t, "a")
	b := env.user(t, "b")

	notifier := new(mockNotifier)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(al *models.Alert) bool { return al.RecipientID == a.UserID })).
		Return(nil).Once()
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(al *models.Alert) bool { return al.RecipientID == b.UserID })).
		Return(errors.New("chat not linked")).Once()

	svc := NewAlertService(env.db, notifier, &logger)
	alerts, err := svc.SendAlerts(ctx, []int64{a.UserID, b.UserID}, models.AlertTemplate{Message: "inquiry", Type: models.AlertInquiry, PropertyID: 5})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	notifier.AssertExpectations(t)

	inbox, err := svc.ListAlerts(ctx, b, true)
	require.NoError(t, err)
	require.Len(t, inbox, 1, "a failed push keeps the stored alert")
	assert.Equal(t, models.AlertInquiry, inbox[0].Type)

	require.NoError(t, svc.MarkRead(ctx, b, inbox[0].ID))
	inbox, err = svc.ListAlerts(ctx, b, true)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	err = svc.MarkRead(ctx, a, alerts[1].ID)
	assert.ErrorIs(t, err, database.ErrNotFound, "alerts of other users stay untouched")

	none, err := svc.SendAlerts(ctx, []int64{0}, models.AlertTemplate{Message: "x"})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = svc.ListAlerts(ctx, nil, false)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
