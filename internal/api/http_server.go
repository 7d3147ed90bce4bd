package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentals/internal/calendar"
	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/metrics"
	"rentals/internal/models"
	"rentals/internal/search"
	"rentals/internal/service"
	"rentals/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services is everything the HTTP API calls into. Search, Files and Health may be nil.
type Services struct {
	Users         domain.UserService
	Sessions      domain.SessionService
	Properties    domain.PropertyService
	Bookings      domain.BookingService
	Alerts        domain.AlertService
	Conversations domain.ConversationService
	Analytics     domain.AnalyticsService
	Search        domain.Searcher
	Files         http.Handler
	Health        *HealthChecker
}

// HTTPServer exposes the JSON API.
type HTTPServer struct {
	cfg      *config.APIConfig
	svc      Services
	server   *http.Server
	keys     *apiKeys
	limiters *clientLimiters
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		keys:     newAPIKeys(cfg.Auth),
		limiters: newClientLimiters(cfg.RateLimit),
		logger:   logger,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.authMiddleware(srv.sessionMiddleware(recordPattern(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/v1/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/v1/users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /api/v1/me/telegram", s.handleLinkTelegram)

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/v1/sessions/refresh", s.handleRefreshSession)
	mux.HandleFunc("DELETE /api/v1/sessions", s.handleInvalidateSession)

	mux.HandleFunc("POST /api/v1/properties", s.handleCreateProperty)
	mux.HandleFunc("GET /api/v1/properties", s.handleListProperties)
	mux.HandleFunc("GET /api/v1/properties/{id}", s.handleGetProperty)
	mux.HandleFunc("PUT /api/v1/properties/{id}", s.handleUpdateProperty)
	mux.HandleFunc("PUT /api/v1/properties/{id}/status", s.handleSetPropertyStatus)
	mux.HandleFunc("GET /api/v1/properties/{id}/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/v1/properties/{id}/availability", s.handleAvailability)
	mux.HandleFunc("POST /api/v1/properties/{id}/images", s.handleUploadImage)
	mux.HandleFunc("GET /api/v1/properties/{id}/reviews", s.handleListReviews)
	mux.HandleFunc("POST /api/v1/properties/{id}/inquiries", s.handleStartInquiry)
	mux.HandleFunc("GET /api/v1/owners/{id}/properties", s.handleListOwnerProperties)

	mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", s.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/invitations", s.handleInviteTenant)
	mux.HandleFunc("POST /api/v1/bookings/{id}/invitation-response", s.handleRespondToInvitation)
	mux.HandleFunc("POST /api/v1/bookings/{id}/submit", s.bookingAction(s.svc.Bookings.SubmitBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/approve-viewing", s.bookingAction(s.svc.Bookings.ApproveViewing))
	mux.HandleFunc("POST /api/v1/bookings/{id}/approve", s.bookingAction(s.svc.Bookings.ApproveBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/decline", s.bookingAction(s.svc.Bookings.DeclineBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", s.bookingAction(s.svc.Bookings.CompleteBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/evictions", s.handleEvict)
	mux.HandleFunc("POST /api/v1/bookings/{id}/reviews", s.handleSubmitReview)

	mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/v1/alerts/{id}/read", s.handleMarkAlertRead)

	mux.HandleFunc("GET /api/v1/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", s.handleSendMessage)

	mux.HandleFunc("GET /api/v1/analytics/owner", s.handleOwnerStats)
	mux.HandleFunc("GET /api/v1/analytics/owner/export", s.handleOwnerExport)

	mux.HandleFunc("GET /api/v1/search", s.handleSearch)

	if s.svc.Files != nil {
		mux.Handle("GET /files/", http.StripPrefix("/files/", s.svc.Files))
	}
}

type ctxKey int

const (
	sessionKey ctxKey = iota
	requestIDKey
)

func sessionFrom(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(sessionKey).(*models.Session)
	return sess
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := recorder.pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		evt := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		}
		evt.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// authMiddleware checks API keys and per-client rate limits on /api/ routes.
func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Enabled || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if s.cfg.Auth.Enabled {
			apiKey := strings.TrimSpace(r.Header.Get(s.keys.headerKey))
			extra := strings.TrimSpace(r.Header.Get(s.keys.headerExtra))
			if _, err := s.keys.authenticate(apiKey, extra, requiredPermissionHTTP(r)); err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					code = http.StatusForbidden
				}
				writeError(w, code, err.Error())
				return
			}
		}

		if !s.limiters.allow(s.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware resolves the session header. A request without one proceeds
// anonymously; a bad token is rejected here.
func (s *HTTPServer) sessionMiddleware(next http.Handler) http.Handler {
	header := s.cfg.Auth.HeaderSession
	if header == "" {
		header = "x-session-token"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(header))
		if token == "" || s.svc.Sessions == nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := s.svc.Sessions.Resolve(r.Context(), token)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func requiredPermissionHTTP(r *http.Request) string {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return permRead
	}
	return permWrite
}

func (s *HTTPServer) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(s.keys.headerKey)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// httpStatus maps service and storage errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, calendar.ErrDateConflict),
		errors.Is(err, database.ErrDatesTaken),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, calendar.ErrPastDate),
		errors.Is(err, calendar.ErrDateTooFar),
		errors.Is(err, calendar.ErrInvalidDuration),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Error().Err(err).Str("request_id", requestID).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", service.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", service.ErrInvalidInput, r.PathValue("id"))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", service.ErrInvalidInput, name)
	}
	return v, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", service.ErrInvalidInput, name)
	}
	return parseDate(raw)
}

func parseDate(raw string) (time.Time, error) {
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return d, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	pattern string
}

// recordPattern copies the matched mux pattern onto the recorder. Middleware
// that clones the request never sees r.Pattern.
func recordPattern(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if rec, ok := w.(*statusRecorder); ok {
			rec.pattern = r.Pattern
		}
	})
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
