package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooking(id int64) *models.Booking {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:            id,
		Type:          models.KindApartment,
		PropertyID:    10,
		OwnerID:       1,
		Status:        models.StatusBooked,
		Tenants:       []models.Tenant{{UserID: 2, Status: models.TenantHost}},
		StartDate:     start,
		LeaseDuration: 2,
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, 1, testBooking(1), ""))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.False(t, nextRetry.Valid)
	assert.Equal(t, 1, sheets.upsertCalls)
	require.NotNil(t, sheets.lastBooking)
	assert.Equal(t, models.StatusBooked, sheets.lastBooking.Status)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, Base: time.Second}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, 2, testBooking(2), ""))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskStatus, 3, nil, string(models.StatusBookingDeclined)))
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncFailed, status)

	n, err := worker.Requeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	status, _, _ = loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncPending, status)
}

func TestProcessTaskCorruptPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: models.SyncTaskUpsert, BookingID: 4, Payload: "not json", Status: models.SyncPending}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncFailed, status)
}

func TestEnqueueViaRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("down")}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskDelete, 5, nil, ""))
	_, ok := worker.tryLocalQueue()
	assert.False(t, ok, "redis-backed enqueue must not use the local queue")

	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(5), task.BookingID)

	worker.processTask(ctx, &task)
	dead, err := mr.List("sheets:deadletter")
	require.NoError(t, err)
	assert.Len(t, dead, 1)
	assert.Equal(t, 1, sheets.deleteCalls)
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		require.NoError(t, worker.handleSheetTask(ctx, models.SyncTaskUpsert, sheetTaskPayload{Booking: testBooking(1)}))
		assert.Equal(t, 1, sheets.upsertCalls)
	})

	t.Run("UpsertWithoutBooking", func(t *testing.T) {
		assert.Error(t, worker.handleSheetTask(ctx, models.SyncTaskUpsert, sheetTaskPayload{BookingID: 1}))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, worker.handleSheetTask(ctx, models.SyncTaskDelete, sheetTaskPayload{BookingID: 123}))
		assert.Equal(t, 1, sheets.deleteCalls)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, models.SyncTaskStatus, sheetTaskPayload{BookingID: 123, Status: "Booking Confirmed"})
		require.NoError(t, err)
		assert.Equal(t, 1, sheets.statusCalls)
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Error(t, worker.handleSheetTask(ctx, "bogus", sheetTaskPayload{BookingID: 1}))
	})
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{Base: time.Second, Factor: 2, Cap: 5 * time.Second}.withDefaults()

	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 5*time.Second, policy.Delay(5))
	assert.Equal(t, 5*time.Second, policy.Delay(50))
	assert.Equal(t, 2*time.Second, RetryPolicy{}.withDefaults().Delay(0))
}

func TestRetryPolicyJitter(t *testing.T) {
	policy := RetryPolicy{Base: 10 * time.Second, Factor: 2, Cap: time.Minute, Jitter: 0.5}.withDefaults()

	policy.random = func() float64 { return 0 }
	assert.Equal(t, 20*time.Second, policy.Delay(2))

	policy.random = func() float64 { return 0.5 }
	assert.Equal(t, 15*time.Second, policy.Delay(2))

	policy.random = nil
	for i := 0; i < 50; i++ {
		d := policy.Delay(3)
		assert.GreaterOrEqual(t, d, 20*time.Second)
		assert.LessOrEqual(t, d, 40*time.Second)
	}
}

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(config.SyncRetryConfig{MaxRetries: 3, InitialDelay: 500 * time.Millisecond, Jitter: 4})

	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, policy.Base)
	assert.Equal(t, time.Minute, policy.Cap)
	assert.Equal(t, 2.0, policy.Factor)
	assert.Equal(t, 1.0, policy.Jitter)
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("ValidTask", func(t *testing.T) {
		assert.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, 0, testBooking(1), ""))
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, "", 1, nil, ""))
	})

	t.Run("InvalidBookingID", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, 0, nil, ""))
	})
}

func TestSheetsWorker_DecodePayload(t *testing.T) {
	worker := NewSheetsWorker(nil, nil, nil, RetryPolicy{}, nil)

	decoded, err := worker.decodePayload(`{"booking_id":123,"status":"Booked"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(123), decoded.BookingID)
	assert.Equal(t, "Booked", decoded.Status)

	_, err = worker.decodePayload(`invalid json`)
	assert.Error(t, err)
}

func TestStartStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, 7, testBooking(7), ""))

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		tasks, err := db.GetPendingSyncTasks(context.Background(), 10)
		return err == nil && len(tasks) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type fakeSheets struct {
	err         error
	upsertCalls int
	deleteCalls int
	statusCalls int
	lastBooking *models.Booking
}

func (f *fakeSheets) UpsertBooking(_ context.Context, b *models.Booking) error {
	f.upsertCalls++
	f.lastBooking = b
	return f.err
}

func (f *fakeSheets) DeleteBookingRow(_ context.Context, _ int64) error {
	f.deleteCalls++
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(_ context.Context, _ int64, _ string) error {
	f.statusCalls++
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}
