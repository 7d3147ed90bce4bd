package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/models"
	"rentals/internal/repository"
	"rentals/internal/service"
	"rentals/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearch struct {
	results []models.SearchResult
}

func (s *stubSearch) Search(_ context.Context, query string, limit int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w", service.ErrInvalidInput)
	}
	return s.results, nil
}

type apiEnv struct {
	t   *testing.T
	ts  *httptest.Server
	db  *database.DB
	cfg *config.APIConfig
}

func newAPIEnv(t *testing.T, cfg *config.APIConfig) *apiEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := storage.NewFileStore(t.TempDir(), "/files")
	require.NoError(t, err)

	sessions := repository.NewMemorySessionRepository()
	alerts := service.NewAlertService(db, nil, &logger)
	conversations := service.NewConversationService(db, alerts, nil, &logger)
	properties := service.NewPropertyService(db, blobs, nil, &logger)
	bookings := service.NewBookingService(db, sessions, alerts, conversations, nil, nil,
		config.BookingConfig{ViewingWindowDays: 14, MaxAdvanceDays: 365, MaxLeaseMonths: 24, MaxStayNights: 90}, &logger)

	if cfg == nil {
		cfg = &config.APIConfig{}
	}
	if cfg.HTTP.MaxUploadSize == 0 {
		cfg.HTTP.MaxUploadSize = 16 << 10
	}

	checker := NewHealthChecker(&logger)
	checker.Register("database", db.PingContext)

	srv := NewHTTPServer(cfg, Services{
		Users:         service.NewUserService(db, &logger),
		Sessions:      service.NewSessionService(sessions, db, time.Hour, &logger),
		Properties:    properties,
		Bookings:      bookings,
		Alerts:        alerts,
		Conversations: conversations,
		Analytics:     service.NewAnalyticsService(db, t.TempDir(), &logger),
		Search:        &stubSearch{results: []models.SearchResult{{PropertyID: 1, Score: 0.9}}},
		Files:         http.FileServer(http.Dir(blobs.Root())),
		Health:        checker,
	}, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &apiEnv{t: t, ts: ts, db: db, cfg: cfg}
}

// do sends body as JSON and decodes the response into out when it is not nil.
func (e *apiEnv) do(method, path, token string, body any, out any, headers ...string) int {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-session-token", token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// login creates a user and a session for them.
func (e *apiEnv) login(name string) (int64, string) {
	e.t.Helper()
	var user models.User
	code := e.do(http.MethodPost, "/api/v1/users", "", map[string]any{"name": name, "email": name + "@example.com"}, &user)
	require.Equal(e.t, http.StatusCreated, code)

	var sess models.Session
	code = e.do(http.MethodPost, "/api/v1/sessions", "", map[string]any{"user_id": user.ID}, &sess)
	require.Equal(e.t, http.StatusCreated, code)
	require.NotEmpty(e.t, sess.Token)
	return user.ID, sess.Token
}

func (e *apiEnv) transient(token string) models.Property {
	e.t.Helper()
	var p models.Property
	code := e.do(http.MethodPost, "/api/v1/properties", token, map[string]any{
		"kind":      "transient",
		"title":     "Beach cabin",
		"address":   "2 Shore Rd",
		"price":     90,
		"transient": map[string]any{"bedrooms": 1, "beds": 2, "max_guests": 2, "min_nights": 1},
	}, &p)
	require.Equal(e.t, http.StatusCreated, code)
	return p
}

func dateFromNow(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func TestHTTPBookingFlow(t *testing.T) {
	env := newAPIEnv(t, nil)
	ownerID, ownerToken := env.login("olivia")
	_, guestToken := env.login("gabe")
	p := env.transient(ownerToken)
	assert.Equal(t, ownerID, p.OwnerID)
	assert.Equal(t, models.PropertyAvailable, p.Status)

	var avail map[string]any
	code := env.do(http.MethodGet, fmt.Sprintf("/api/v1/properties/%d/availability?start=%s&duration=2", p.ID, dateFromNow(5)), "", nil, &avail)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, avail["available"])

	var booking models.Booking
	code = env.do(http.MethodPost, "/api/v1/bookings", guestToken, map[string]any{
		"property_id":    p.ID,
		"start_date":     dateFromNow(5),
		"lease_duration": 2,
	}, &booking)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, models.StatusBooked, booking.Status)

	// only the owner approves
	code = env.do(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", booking.ID), guestToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code = env.do(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", booking.ID), ownerToken, nil, &booking)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.StatusBookingConfirmed, booking.Status)

	code = env.do(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", booking.ID), ownerToken, nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	var cal models.PropertyCalendar
	code = env.do(http.MethodGet, fmt.Sprintf("/api/v1/properties/%d/calendar", p.ID), "", nil, &cal)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, cal.BookedDates)

	code = env.do(http.MethodGet, fmt.Sprintf("/api/v1/properties/%d/availability?start=%s&duration=1", p.ID, dateFromNow(5)), "", nil, &avail)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, avail["available"])

	var alerts struct {
		Alerts []models.Alert `json:"alerts"`
	}
	code = env.do(http.MethodGet, "/api/v1/alerts?unread=true", guestToken, nil, &alerts)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, alerts.Alerts)
	assert.Equal(t, booking.ID, alerts.Alerts[0].BookingID)

	code = env.do(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/read", alerts.Alerts[0].ID), guestToken, nil, nil)
	assert.Equal(t, http.StatusNoContent, code)

	var mine struct {
		Bookings []models.Booking `json:"bookings"`
	}
	code = env.do(http.MethodGet, "/api/v1/bookings", guestToken, nil, &mine)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, mine.Bookings, 1)

	var stats struct {
		Stats []models.PropertyStats `json:"stats"`
	}
	code = env.do(http.MethodGet, fmt.Sprintf("/api/v1/analytics/owner?from=%s&to=%s", dateFromNow(0), dateFromNow(30)), ownerToken, nil, &stats)
	require.Equal(t, http.StatusOK, code)
	if assert.Len(t, stats.Stats, 1) {
		assert.Equal(t, 1, stats.Stats[0].Confirmed)
	}
}

func TestHTTPBookingErrors(t *testing.T) {
	env := newAPIEnv(t, nil)
	_, ownerToken := env.login("olivia")
	_, guestToken := env.login("gabe")
	p := env.transient(ownerToken)

	tests := []struct {
		name  string
		token string
		body  map[string]any
		want  int
	}{
		{"NoSession", "", map[string]any{"property_id": p.ID, "start_date": dateFromNow(2), "lease_duration": 1}, http.StatusUnauthorized},
		{"BadDate", guestToken, map[string]any{"property_id": p.ID, "start_date": "2024-13-40", "lease_duration": 1}, http.StatusBadRequest},
		{"PastDate", guestToken, map[string]any{"property_id": p.ID, "start_date": dateFromNow(-3), "lease_duration": 1}, http.StatusBadRequest},
		{"UnknownProperty", guestToken, map[string]any{"property_id": 999, "start_date": dateFromNow(2), "lease_duration": 1}, http.StatusNotFound},
		{"OwnProperty", ownerToken, map[string]any{"property_id": p.ID, "start_date": dateFromNow(2), "lease_duration": 1}, http.StatusForbidden},
		{"UnknownField", guestToken, map[string]any{"property_id": p.ID, "start_date": dateFromNow(2), "lease_duration": 1, "bogus": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			code := env.do(http.MethodPost, "/api/v1/bookings", tt.token, tt.body, &body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}

	t.Run("InvalidSessionToken", func(t *testing.T) {
		code := env.do(http.MethodGet, "/api/v1/bookings", "not-a-token", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("BadPathID", func(t *testing.T) {
		code := env.do(http.MethodGet, "/api/v1/bookings/abc", guestToken, nil, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestHTTPSessionLifecycle(t *testing.T) {
	env := newAPIEnv(t, nil)
	_, token := env.login("sam")

	var refreshed models.Session
	code := env.do(http.MethodPost, "/api/v1/sessions/refresh", token, nil, &refreshed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, token, refreshed.Token)

	code = env.do(http.MethodPut, "/api/v1/me/telegram", token, map[string]any{"chat_id": 4242}, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code = env.do(http.MethodDelete, "/api/v1/sessions", token, nil, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code = env.do(http.MethodGet, "/api/v1/alerts", token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code = env.do(http.MethodPost, "/api/v1/sessions", "", map[string]any{"user_id": 404}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHTTPUsers(t *testing.T) {
	env := newAPIEnv(t, nil)
	id, _ := env.login("ann")

	var user models.User
	code := env.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d", id), "", nil, &user)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ann@example.com", user.Email)

	code = env.do(http.MethodPost, "/api/v1/users", "", map[string]any{"name": "ann", "email": "ANN@example.com"}, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = env.do(http.MethodPost, "/api/v1/users", "", map[string]any{"name": "bob", "email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPPropertyManagement(t *testing.T) {
	env := newAPIEnv(t, nil)
	ownerID, ownerToken := env.login("olivia")
	_, otherToken := env.login("oscar")
	p := env.transient(ownerToken)

	var listed struct {
		Properties []models.Property `json:"properties"`
	}
	code := env.do(http.MethodGet, "/api/v1/properties?kind=transient", "", nil, &listed)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, listed.Properties, 1)

	code = env.do(http.MethodGet, "/api/v1/properties?kind=castle", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.do(http.MethodPut, fmt.Sprintf("/api/v1/properties/%d/status", p.ID), otherToken,
		map[string]any{"status": "Unavailable"}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var updated models.Property
	code = env.do(http.MethodPut, fmt.Sprintf("/api/v1/properties/%d/status", p.ID), ownerToken,
		map[string]any{"status": "Unavailable"}, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PropertyUnavailable, updated.Status)

	code = env.do(http.MethodGet, "/api/v1/properties", "", nil, &listed)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, listed.Properties)

	code = env.do(http.MethodGet, fmt.Sprintf("/api/v1/owners/%d/properties", ownerID), "", nil, &listed)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, listed.Properties, 1)

	p.Title = "Cabin by the sea"
	p.Version = updated.Version + 5
	code = env.do(http.MethodPut, fmt.Sprintf("/api/v1/properties/%d", p.ID), ownerToken, p, nil)
	assert.Equal(t, http.StatusConflict, code)

	p.Version = updated.Version
	code = env.do(http.MethodPut, fmt.Sprintf("/api/v1/properties/%d", p.ID), ownerToken, p, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Cabin by the sea", updated.Title)

	code = env.do(http.MethodGet, "/api/v1/properties/777", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHTTPImageUpload(t *testing.T) {
	env := newAPIEnv(t, nil)
	_, ownerToken := env.login("olivia")
	p := env.transient(ownerToken)

	upload := func(filename string, content []byte) (*http.Response, models.Property) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/v1/properties/%d/images", env.ts.URL, p.ID), &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("x-session-token", ownerToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var out models.Property
		if resp.StatusCode == http.StatusCreated {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp, out
	}

	resp, updated := upload("front.jpg", []byte("jpeg bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, updated.Images, 1)
	assert.True(t, strings.HasPrefix(updated.Images[0], "/files/properties/"))

	fileResp, err := http.Get(env.ts.URL + updated.Images[0])
	require.NoError(t, err)
	defer fileResp.Body.Close()
	assert.Equal(t, http.StatusOK, fileResp.StatusCode)
	got, _ := io.ReadAll(fileResp.Body)
	assert.Equal(t, "jpeg bytes", string(got))

	resp, _ = upload("notes.txt", []byte("text"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = upload("huge.png", bytes.Repeat([]byte("x"), 64<<10))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPInquiryConversation(t *testing.T) {
	env := newAPIEnv(t, nil)
	_, ownerToken := env.login("olivia")
	_, guestToken := env.login("gabe")
	p := env.transient(ownerToken)

	var conv models.Conversation
	code := env.do(http.MethodPost, fmt.Sprintf("/api/v1/properties/%d/inquiries", p.ID), guestToken,
		map[string]any{"message": "Is parking included?"}, &conv)
	require.Equal(t, http.StatusCreated, code)

	code = env.do(http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), ownerToken,
		map[string]any{"body": "Yes, one spot."}, nil)
	require.Equal(t, http.StatusCreated, code)

	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	code = env.do(http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), guestToken, nil, &msgs)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, msgs.Messages, 2)

	var convs struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	code = env.do(http.MethodGet, "/api/v1/conversations", ownerToken, nil, &convs)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, convs.Conversations, 1)
}

func TestHTTPSearch(t *testing.T) {
	env := newAPIEnv(t, nil)

	var body struct {
		Results []models.SearchResult `json:"results"`
	}
	code := env.do(http.MethodGet, "/api/v1/search?q=quiet+studio", "", nil, &body)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Results, 1)

	code = env.do(http.MethodGet, "/api/v1/search?q=", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPAuthMiddleware(t *testing.T) {
	cfg := &config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "reader", Extra: "r", Name: "dashboard", Permissions: []string{permRead}},
				{Key: "writer", Extra: "w", Name: "mobile", Permissions: []string{permRead, permWrite}},
			},
		},
	}
	env := newAPIEnv(t, cfg)

	code := env.do(http.MethodGet, "/api/v1/properties", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code = env.do(http.MethodGet, "/api/v1/properties", "", nil, nil, "x-api-key", "reader", "x-api-extra", "r")
	assert.Equal(t, http.StatusOK, code)

	code = env.do(http.MethodPost, "/api/v1/users", "", map[string]any{"name": "x", "email": "x@example.com"}, nil,
		"x-api-key", "reader", "x-api-extra", "r")
	assert.Equal(t, http.StatusForbidden, code)

	code = env.do(http.MethodPost, "/api/v1/users", "", map[string]any{"name": "x", "email": "x@example.com"}, nil,
		"x-api-key", "writer", "x-api-extra", "w")
	assert.Equal(t, http.StatusCreated, code)

	code = env.do(http.MethodGet, "/api/v1/properties", "", nil, nil, "x-api-key", "reader", "x-api-extra", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	// probes stay open
	code = env.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTPRateLimit(t *testing.T) {
	env := newAPIEnv(t, &config.APIConfig{
		Enabled:   true,
		RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2},
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/properties", "", nil, nil))
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/properties", "", nil, nil))
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/api/v1/properties", "", nil, nil))
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/properties", "", nil, nil, "x-api-key", "other"))
}

func TestHTTPReadyz(t *testing.T) {
	env := newAPIEnv(t, nil)

	var body struct {
		Status string        `json:"status"`
		Checks []CheckResult `json:"checks"`
	}
	code := env.do(http.MethodGet, "/readyz", "", nil, &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "database", body.Checks[0].Name)

	env.db.Close()
	code = env.do(http.MethodGet, "/readyz", "", nil, &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHTTPRequestID(t *testing.T) {
	env := newAPIEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDMetadataKey))

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDMetadataKey, "trace-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get(requestIDMetadataKey))
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("x: %w", database.ErrNotFound), http.StatusNotFound},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{service.ErrInvalidTransition, http.StatusConflict},
		{database.ErrDuplicate, http.StatusConflict},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), tt.err.Error())
	}
}
