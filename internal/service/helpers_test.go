package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) PublishJSON(eventType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Type: eventType, Payload: payload})
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type syncCall struct {
	TaskType  string
	BookingID int64
	Status    string
}

type fakeSync struct {
	mu    sync.Mutex
	calls []syncCall
}

func (f *fakeSync) EnqueueTask(_ context.Context, taskType string, bookingID int64, _ *models.Booking, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{TaskType: taskType, BookingID: bookingID, Status: status})
	return nil
}

type testEnv struct {
	db            *database.DB
	bookings      *BookingService
	alerts        *AlertService
	conversations *ConversationService
	properties    *PropertyService
	events        *fakeEvents
	sync          *fakeSync
	now           time.Time
}

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{db: db, events: &fakeEvents{}, sync: &fakeSync{}, now: testNow}
	clock := func() time.Time { return env.now }

	env.alerts = NewAlertService(db, nil, &logger)
	env.alerts.now = clock
	env.conversations = NewConversationService(db, env.alerts, env.events, &logger)
	env.properties = NewPropertyService(db, nil, env.events, &logger)
	env.bookings = NewBookingService(db, nil, env.alerts, env.conversations, env.events, env.sync,
		config.BookingConfig{ViewingWindowDays: 14, MaxAdvanceDays: 365, MaxLeaseMonths: 24, MaxStayNights: 90}, &logger)
	env.bookings.now = clock
	return env
}

func (e *testEnv) user(t *testing.T, name string) *models.Session {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com"}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return &models.Session{Token: "tok-" + name, UserID: u.ID, ExpiresAt: e.now.Add(time.Hour)}
}

func (e *testEnv) apartment(t *testing.T, owner *models.Session) *models.Property {
	t.Helper()
	p := &models.Property{
		Kind:      models.KindApartment,
		Title:     "Riverside flat",
		Address:   "1 River St",
		Price:     1500,
		Apartment: &models.ApartmentDetails{Bedrooms: 2, Bathrooms: 1, MinLeaseMonths: 1},
	}
	require.NoError(t, e.properties.CreateProperty(context.Background(), owner, p))
	return p
}

func (e *testEnv) transient(t *testing.T, owner *models.Session) *models.Property {
	t.Helper()
	p := &models.Property{
		Kind:      models.KindTransient,
		Title:     "Beach cabin",
		Address:   "2 Shore Rd",
		Price:     90,
		Transient: &models.TransientDetails{Bedrooms: 1, Beds: 2, MaxGuests: 2, MinNights: 1},
	}
	require.NoError(t, e.properties.CreateProperty(context.Background(), owner, p))
	return p
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func countHosts(b *models.Booking) int {
	n := 0
	for _, tn := range b.Tenants {
		if tn.Status == models.TenantHost {
			n++
		}
	}
	return n
}
