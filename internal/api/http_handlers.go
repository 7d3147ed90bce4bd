package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rentals/internal/models"
	"rentals/internal/service"
)

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	results, healthy := s.svc.Health.Check(r.Context())
	code := http.StatusOK
	status := "ready"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "not ready"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}

// requireSession returns the resolved session or writes 401.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	sess := sessionFrom(r.Context())
	if sess == nil {
		s.writeServiceError(w, r, service.ErrUnauthenticated)
		return nil, false
	}
	return sess, true
}

// Users and sessions

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeJSON(r, &user); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user.ID = 0
	if err := s.svc.Users.CreateUser(r.Context(), &user); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Users.LinkTelegram(r.Context(), sess, body.ChatID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateSession opens a session for an existing user. Credential checks
// live in the identity provider in front of this API.
func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sess, err := s.svc.Sessions.Create(r.Context(), body.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *HTTPServer) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	current, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	sess, err := s.svc.Sessions.Refresh(r.Context(), current.Token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *HTTPServer) handleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.svc.Sessions.Invalidate(r.Context(), sess.Token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Properties

func (s *HTTPServer) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var property models.Property
	if err := decodeJSON(r, &property); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Properties.CreateProperty(r.Context(), sess, &property); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (s *HTTPServer) handleListProperties(w http.ResponseWriter, r *http.Request) {
	kind := models.PropertyKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind != "" && !kind.Valid() {
		s.writeServiceError(w, r, fmt.Errorf("%w: unknown kind %q", service.ErrInvalidInput, kind))
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	properties, err := s.svc.Properties.ListAvailable(r.Context(), kind, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": properties})
}

func (s *HTTPServer) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	property, err := s.svc.Properties.GetProperty(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, property)
}

func (s *HTTPServer) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var property models.Property
	if err := decodeJSON(r, &property); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	property.ID = id
	updated, err := s.svc.Properties.UpdateProperty(r.Context(), sess, &property)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleSetPropertyStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Status models.PropertyStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	property, err := s.svc.Properties.SetStatus(r.Context(), sess, id, body.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, property)
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cal, err := s.svc.Properties.Calendar(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// handleAvailability answers whether a stay could be requested without
// creating anything.
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	start, err := queryDate(r, "start")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	duration, err := queryInt(r, "duration", 1)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Bookings.CheckDates(r.Context(), id, start, duration); err != nil {
		if httpStatus(err) == http.StatusInternalServerError || httpStatus(err) == http.StatusNotFound {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"available": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true})
}

func (s *HTTPServer) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxUploadSize)
	if err := r.ParseMultipartForm(s.cfg.HTTP.MaxUploadSize); err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%w: image field is required", service.ErrInvalidInput))
		return
	}
	defer file.Close()

	property, err := s.svc.Properties.UploadImage(r.Context(), sess, id, header.Filename, file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (s *HTTPServer) handleListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	reviews, err := s.svc.Properties.ListReviews(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (s *HTTPServer) handleStartInquiry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	conv, err := s.svc.Conversations.StartInquiry(r.Context(), sess, id, body.Message)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *HTTPServer) handleListOwnerProperties(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	properties, err := s.svc.Properties.ListByOwner(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": properties})
}

// Bookings

type bookingRequestBody struct {
	PropertyID    int64   `json:"property_id"`
	StartDate     string  `json:"start_date"`
	LeaseDuration int     `json:"lease_duration"`
	ViewingDate   string  `json:"viewing_date"`
	CoTenants     []int64 `json:"co_tenants"`
	Note          string  `json:"note"`
}

func (b bookingRequestBody) toRequest() (models.BookingRequest, error) {
	req := models.BookingRequest{
		PropertyID:    b.PropertyID,
		LeaseDuration: b.LeaseDuration,
		CoTenants:     b.CoTenants,
		Note:          b.Note,
	}
	start, err := parseDate(b.StartDate)
	if err != nil {
		return req, err
	}
	req.StartDate = start
	if strings.TrimSpace(b.ViewingDate) != "" {
		viewing, err := parseDate(b.ViewingDate)
		if err != nil {
			return req, err
		}
		req.ViewingDate = &viewing
	}
	return req, nil
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body bookingRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.CreateBooking(r.Context(), sess, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Bookings.ListMyBookings(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), sess, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type bookingActionFunc func(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error)

// bookingAction adapts the body-less booking transitions.
func (s *HTTPServer) bookingAction(action bookingActionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		id, err := pathID(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		booking, err := action(r.Context(), sess, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	}
}

func (s *HTTPServer) handleInviteTenant(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.InviteTenant(r.Context(), sess, id, body.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleRespondToInvitation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Accept *bool `json:"accept"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if body.Accept == nil {
		s.writeServiceError(w, r, fmt.Errorf("%w: accept is required", service.ErrInvalidInput))
		return
	}
	booking, err := s.svc.Bookings.RespondToInvitation(r.Context(), sess, id, *body.Accept)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleEvict(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		UserIDs []int64 `json:"user_ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.Evict(r.Context(), sess, id, body.UserIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	review, err := s.svc.Bookings.SubmitReview(r.Context(), sess, id, body.Rating, body.Comment)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// Alerts and conversations

func (s *HTTPServer) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	alerts, err := s.svc.Alerts.ListAlerts(r.Context(), sess, unread)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *HTTPServer) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Alerts.MarkRead(r.Context(), sess, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListConversations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	convs, err := s.svc.Conversations.ListConversations(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	messages, err := s.svc.Conversations.ListMessages(r.Context(), sess, id, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *HTTPServer) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	msg, err := s.svc.Conversations.SendMessage(r.Context(), sess, id, body.Body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Analytics and search

func (s *HTTPServer) statsPeriod(r *http.Request) (time.Time, time.Time, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (s *HTTPServer) handleOwnerStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	from, to, err := s.statsPeriod(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stats, err := s.svc.Analytics.OwnerStats(r.Context(), sess, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *HTTPServer) handleOwnerExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	from, to, err := s.statsPeriod(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	path, err := s.svc.Analytics.ExportOwnerReport(r.Context(), sess, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.svc.Search == nil {
		writeError(w, http.StatusNotImplemented, "search is disabled")
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	results, err := s.svc.Search.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
