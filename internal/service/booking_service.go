package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentals/internal/calendar"
	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/events"
	"rentals/internal/metrics"
	"rentals/internal/models"

	"github.com/rs/zerolog"
)

const maxTenants = 11

// BookingService drives the booking workflow. Each step validates the acting
// session against the current booking status and commits booking, property and
// alert writes together through ApplyTransition.
type BookingService struct {
	repo          domain.Repository
	limiter       domain.RateLimiter
	alerts        *AlertService
	conversations *ConversationService
	eventBus      domain.EventPublisher
	sheetsWorker  domain.SyncWorker
	cfg           config.BookingConfig
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	limiter domain.RateLimiter,
	alerts *AlertService,
	conversations *ConversationService,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.ViewingWindowDays <= 0 {
		cfg.ViewingWindowDays = 14
	}
	if cfg.MaxAdvanceDays <= 0 {
		cfg.MaxAdvanceDays = 365
	}
	return &BookingService{
		repo:          repo,
		limiter:       limiter,
		alerts:        alerts,
		conversations: conversations,
		eventBus:      eventBus,
		sheetsWorker:  sheetsWorker,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateBooking files a request for a property. The requester becomes Host and
// co-tenants are invited; the owner hears about it immediately.
func (s *BookingService) CreateBooking(ctx context.Context, sess *models.Session, req models.BookingRequest) (*models.Booking, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PropertyAvailable {
		return nil, fmt.Errorf("%w: property %d is not available", ErrInvalidInput, p.ID)
	}
	if p.IsOwnedBy(sess.UserID) {
		return nil, fmt.Errorf("%w: owners cannot book their own property", ErrForbidden)
	}

	if err := s.checkRateLimit(ctx, sess.UserID); err != nil {
		return nil, err
	}

	start := calendar.Day(req.StartDate)
	if err := s.checkRequestedRange(p, start, req.LeaseDuration); err != nil {
		return nil, err
	}

	var viewing *time.Time
	if req.ViewingDate != nil {
		if p.Kind != models.KindApartment {
			return nil, fmt.Errorf("%w: viewings are only offered for apartments", ErrInvalidInput)
		}
		v := calendar.Day(*req.ViewingDate)
		if err := calendar.CheckWindow(v, s.now(), s.cfg.ViewingWindowDays); err != nil {
			return nil, err
		}
		if err := calendar.CheckDay(v, p.AllBookedDates()); err != nil {
			return nil, err
		}
		viewing = &v
	}

	tenants := []models.Tenant{{UserID: sess.UserID, Status: models.TenantHost}}
	invitees := dedupe(req.CoTenants)
	if len(invitees) > 0 && p.Kind != models.KindApartment {
		return nil, fmt.Errorf("%w: co-tenants can only be invited to apartments", ErrInvalidInput)
	}
	for _, id := range invitees {
		if id == sess.UserID || id == p.OwnerID {
			return nil, fmt.Errorf("%w: user %d cannot be invited", ErrInvalidInput, id)
		}
		if _, err := s.repo.GetUserByID(ctx, id); err != nil {
			return nil, fmt.Errorf("co-tenant %d: %w", id, err)
		}
		tenants = append(tenants, models.Tenant{UserID: id, Status: models.TenantInvited})
	}

	dates, err := calendar.LeaseDates(start, req.LeaseDuration, calendar.UnitFor(p.Kind))
	if err != nil {
		return nil, err
	}

	b := &models.Booking{
		Type:          p.Kind,
		PropertyID:    p.ID,
		OwnerID:       p.OwnerID,
		Status:        models.StatusBooked,
		Tenants:       tenants,
		StartDate:     start,
		BookedDates:   dates,
		LeaseDuration: req.LeaseDuration,
		ViewingDate:   viewing,
		Note:          req.Note,
	}
	if len(invitees) > 0 {
		b.Status = models.StatusPendingInvitation
	}

	alerts := s.alerts.Build([]int64{p.OwnerID}, s.template(b, sess.UserID,
		fmt.Sprintf("New booking request for %q starting %s", p.Title, calendar.FormatDate(start))))
	alerts = append(alerts, s.alerts.Build(invitees, s.template(b, sess.UserID,
		fmt.Sprintf("You were invited to co-rent %q", p.Title)))...)

	if err := s.repo.CreateBooking(ctx, b, alerts); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &models.BookingTransition{Name: "create_booking", Booking: b, Alerts: alerts},
		events.EventBookingCreated, sess.UserID, 0, models.SyncTaskUpsert)
	return b, nil
}

// InviteTenant adds a co-tenant to an apartment booking that is not yet under review.
func (s *BookingService) InviteTenant(ctx context.Context, sess *models.Session, bookingID, userID int64) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	if !b.IsHost(sess.UserID) {
		return nil, ErrForbidden
	}
	if b.Type != models.KindApartment {
		return nil, fmt.Errorf("%w: co-tenants can only be invited to apartments", ErrInvalidInput)
	}
	if b.Status != models.StatusBooked && b.Status != models.StatusPendingInvitation {
		return nil, s.invalid(b, "invite")
	}
	if userID == 0 || userID == b.OwnerID {
		return nil, fmt.Errorf("%w: user %d cannot be invited", ErrInvalidInput, userID)
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	if idx := b.TenantIndex(userID); idx >= 0 {
		// a tenant who declined may be asked again
		if b.Tenants[idx].Status != models.TenantDeclined {
			return nil, fmt.Errorf("%w: user %d is already on the booking", ErrInvalidInput, userID)
		}
		b.Tenants[idx].Status = models.TenantInvited
	} else {
		if len(b.Tenants) >= maxTenants {
			return nil, fmt.Errorf("%w: booking already has %d tenants", ErrInvalidInput, len(b.Tenants))
		}
		b.Tenants = append(b.Tenants, models.Tenant{UserID: userID, Status: models.TenantInvited})
	}
	b.Status = models.StatusPendingInvitation

	tr := &models.BookingTransition{
		Name:    "invite_tenant",
		Booking: b,
		Alerts:  s.alerts.Build([]int64{userID}, s.template(b, sess.UserID, "You were invited to join a booking")),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventTenantInvited, sess.UserID, userID, models.SyncTaskUpsert)
	return b, nil
}

// RespondToInvitation records the invited user's answer. The booking status is left as is.
func (s *BookingService) RespondToInvitation(ctx context.Context, sess *models.Session, bookingID int64, accept bool) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	idx := b.TenantIndex(sess.UserID)
	if idx < 0 {
		return nil, ErrForbidden
	}
	if b.Tenants[idx].Status != models.TenantInvited || b.Status.IsTerminal() {
		return nil, s.invalid(b, "respond to invitation")
	}

	answer := "declined"
	b.Tenants[idx].Status = models.TenantDeclined
	if accept {
		answer = "accepted"
		b.Tenants[idx].Status = models.TenantAccepted
	}

	var recipients []int64
	if host, ok := b.HostID(); ok {
		recipients = append(recipients, host)
	}
	tr := &models.BookingTransition{
		Name:    "respond_invitation",
		Booking: b,
		Alerts:  s.alerts.Build(recipients, s.template(b, sess.UserID, "A co-tenant "+answer+" your invitation")),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventInvitationAnswered, sess.UserID, sess.UserID, models.SyncTaskUpsert)
	return b, nil
}

// SubmitBooking sends a booking with settled invitations to the owner.
func (s *BookingService) SubmitBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	if !b.IsHost(sess.UserID) {
		return nil, ErrForbidden
	}
	if b.Status != models.StatusPendingInvitation {
		return nil, s.invalid(b, "submit")
	}
	if b.HasPendingInvitations() {
		return nil, fmt.Errorf("%w: some invitations are still unanswered", ErrInvalidTransition)
	}

	b.Status = models.StatusBooked
	tr := &models.BookingTransition{
		Name:    "submit_booking",
		Booking: b,
		Alerts:  s.alerts.Build([]int64{b.OwnerID}, s.template(b, sess.UserID, "A booking request is ready for review")),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventBookingSubmitted, sess.UserID, 0, models.SyncTaskStatus)
	return b, nil
}

// ApproveViewing confirms the requested viewing appointment.
func (s *BookingService) ApproveViewing(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error) {
	b, p, err := s.load(ctx, sess, bookingID, true)
	if err != nil {
		return nil, err
	}
	if !p.IsOwnedBy(sess.UserID) {
		return nil, ErrForbidden
	}
	if b.Status != models.StatusBooked {
		return nil, s.invalid(b, "approve viewing")
	}
	if b.ViewingDate == nil {
		return nil, fmt.Errorf("%w: booking %d requested no viewing", ErrInvalidTransition, b.ID)
	}
	viewing := calendar.Day(*b.ViewingDate)
	if err := calendar.CheckWindow(viewing, s.now(), 0); err != nil {
		return nil, err
	}
	if err := calendar.CheckDay(viewing, p.AllBookedDates()); err != nil {
		return nil, err
	}

	// created before the transition so a retry after a failed commit reuses it
	participants := append(b.HostSideIDs(), p.OwnerID)
	if _, err := s.conversations.EnsureBookingConversation(ctx, b, participants); err != nil {
		return nil, fmt.Errorf("failed to open booking conversation: %w", err)
	}

	if !p.HasViewing(b.ID) {
		p.ViewingDates = append(p.ViewingDates, models.ViewingDateEntry{BookingID: b.ID, Date: viewing})
	}
	b.Status = models.StatusViewingConfirmed

	tr := &models.BookingTransition{
		Name:     "approve_viewing",
		Booking:  b,
		Property: p,
		Alerts: s.alerts.Build(b.ActiveTenantIDs(), s.template(b, sess.UserID,
			fmt.Sprintf("Viewing of %q confirmed for %s", p.Title, calendar.FormatDate(viewing)))),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventViewingApproved, sess.UserID, 0, models.SyncTaskStatus)
	return b, nil
}

// ApproveBooking reserves the booking's days on the property and takes the listing off the market.
func (s *BookingService) ApproveBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error) {
	b, p, err := s.load(ctx, sess, bookingID, true)
	if err != nil {
		return nil, err
	}
	if !p.IsOwnedBy(sess.UserID) {
		return nil, ErrForbidden
	}
	if !canApproveBooking(b) {
		return nil, s.invalid(b, "approve booking")
	}

	others := p.BookedDatesExcept(b.ID)
	if err := calendar.CheckConflict(b.StartDate, b.LeaseDuration, calendar.UnitFor(b.Type), others); err != nil {
		return nil, err
	}

	block := append([]time.Time(nil), b.BookedDates...)
	if b.ViewingDate != nil {
		viewing := calendar.Day(*b.ViewingDate)
		if err := calendar.CheckDay(viewing, others); err != nil {
			return nil, err
		}
		if calendar.CheckDay(viewing, block) == nil {
			block = append(block, viewing)
		}
	}
	if !p.HasBookedBlock(b.ID) {
		p.BookedDates = append(p.BookedDates, models.BookedDateEntry{BookingID: b.ID, Dates: block})
	}
	p.Status = models.PropertyUnavailable
	b.Status = models.StatusBookingConfirmed

	tr := &models.BookingTransition{
		Name:     "approve_booking",
		Booking:  b,
		Property: p,
		Alerts: s.alerts.Build(b.ActiveTenantIDs(), s.template(b, sess.UserID,
			fmt.Sprintf("Your booking of %q from %s to %s is confirmed",
				p.Title, calendar.FormatDate(b.StartDate), calendar.FormatDate(b.EndDate())))),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		if errors.Is(err, database.ErrDatesTaken) {
			return nil, fmt.Errorf("%w: %v", calendar.ErrDateConflict, err)
		}
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventBookingConfirmed, sess.UserID, 0, models.SyncTaskStatus)
	return b, nil
}

// DeclineBooking ends a booking from any open status. Reserved days stay on the calendar.
func (s *BookingService) DeclineBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	if sess.UserID != b.OwnerID && !b.IsHost(sess.UserID) {
		return nil, ErrForbidden
	}
	if b.Status.IsTerminal() {
		return nil, s.invalid(b, "decline")
	}

	b.Status = models.StatusBookingDeclined
	recipients := append([]int64{b.OwnerID}, b.ActiveTenantIDs()...)
	tr := &models.BookingTransition{
		Name:    "decline_booking",
		Booking: b,
		Alerts:  s.alerts.Build(without(recipients, sess.UserID), s.template(b, sess.UserID, "The booking was declined")),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventBookingDeclined, sess.UserID, 0, models.SyncTaskStatus)
	return b, nil
}

// CompleteBooking closes a confirmed stay and asks tenants for a review.
func (s *BookingService) CompleteBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	if sess.UserID != b.OwnerID {
		return nil, ErrForbidden
	}
	if b.Status != models.StatusBookingConfirmed {
		return nil, s.invalid(b, "complete")
	}

	b.Status = models.StatusBookingCompleted
	tr := &models.BookingTransition{
		Name:    "complete_booking",
		Booking: b,
		Alerts:  s.alerts.Build(b.HostSideIDs(), s.template(b, sess.UserID, "Your stay is complete, please leave a review")),
	}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventBookingCompleted, sess.UserID, 0, models.SyncTaskStatus)
	return b, nil
}

// Evict removes tenants from a confirmed booking. When the Host goes, the role
// passes to the first non-evicted tenant in list order. Reserved days are kept.
func (s *BookingService) Evict(ctx context.Context, sess *models.Session, bookingID int64, userIDs []int64) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	if sess.UserID != b.OwnerID && !b.IsHost(sess.UserID) {
		return nil, ErrForbidden
	}
	if b.Status != models.StatusBookingConfirmed {
		return nil, s.invalid(b, "evict")
	}
	targets := dedupe(userIDs)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no tenants to evict", ErrInvalidInput)
	}

	for _, id := range targets {
		idx := b.TenantIndex(id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: user %d is not a tenant", ErrInvalidInput, id)
		}
		if b.Tenants[idx].Status == models.TenantEvicted {
			return nil, fmt.Errorf("%w: user %d is already evicted", ErrInvalidTransition, id)
		}
	}

	_, hadHost := b.HostID()
	for _, id := range targets {
		b.Tenants[b.TenantIndex(id)].Status = models.TenantEvicted
	}
	if _, ok := b.HostID(); hadHost && !ok {
		reassignHost(b)
	}

	alerts := s.alerts.Build(targets, s.template(b, sess.UserID, "You were removed from the booking"))
	alerts = append(alerts, s.alerts.Build(without(b.ActiveTenantIDs(), sess.UserID),
		s.template(b, sess.UserID, "The tenant list of your booking changed"))...)

	tr := &models.BookingTransition{Name: "evict", Booking: b, Alerts: alerts}
	if err := s.repo.ApplyTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr, events.EventTenantEvicted, sess.UserID, targets[0], models.SyncTaskUpsert)
	return b, nil
}

// SubmitReview stores a tenant's review of a completed stay and clears their alerts for it.
func (s *BookingService) SubmitReview(ctx context.Context, sess *models.Session, bookingID int64, rating int, comment string) (*models.Review, error) {
	b, _, err := s.load(ctx, sess, bookingID, false)
	if err != nil {
		return nil, err
	}
	idx := b.TenantIndex(sess.UserID)
	if idx < 0 {
		return nil, ErrForbidden
	}
	if st := b.Tenants[idx].Status; st == models.TenantInvited || st == models.TenantDeclined {
		return nil, ErrForbidden
	}
	if b.Status != models.StatusBookingCompleted {
		return nil, s.invalid(b, "review")
	}

	review := &models.Review{
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		AuthorID:   sess.UserID,
		Rating:     rating,
		Comment:    comment,
	}
	if err := validateStruct(review); err != nil {
		return nil, err
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("%w: booking %d already reviewed", ErrInvalidTransition, b.ID)
		}
		return nil, err
	}

	metrics.IncTransition("submit_review")
	s.publishEvent(events.EventReviewSubmitted, b, sess.UserID, 0)
	return review, nil
}

// GetBooking returns a booking to its owner or one of its tenants.
func (s *BookingService) GetBooking(ctx context.Context, sess *models.Session, id int64) (*models.Booking, error) {
	b, _, err := s.load(ctx, sess, id, false)
	return b, err
}

func (s *BookingService) ListMyBookings(ctx context.Context, sess *models.Session) ([]*models.Booking, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.repo.ListBookingsByUser(ctx, sess.UserID)
}

// CheckDates reports whether a stay of duration units from start could be requested.
func (s *BookingService) CheckDates(ctx context.Context, propertyID int64, start time.Time, duration int) error {
	p, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	return s.checkRequestedRange(p, calendar.Day(start), duration)
}

func (s *BookingService) checkRequestedRange(p *models.Property, start time.Time, duration int) error {
	if err := calendar.CheckWindow(start, s.now(), s.cfg.MaxAdvanceDays); err != nil {
		return err
	}

	unit := calendar.UnitFor(p.Kind)
	minimum, maximum := 1, 0
	switch unit {
	case calendar.Months:
		maximum = s.cfg.MaxLeaseMonths
		if p.Apartment != nil {
			minimum = p.Apartment.MinLeaseMonths
		}
	case calendar.Nights:
		maximum = s.cfg.MaxStayNights
		if p.Transient != nil {
			minimum = p.Transient.MinNights
		}
	}
	if duration < 1 {
		return calendar.ErrInvalidDuration
	}
	if duration < minimum {
		return fmt.Errorf("%w: minimum is %d %s", ErrInvalidInput, minimum, unit)
	}
	if maximum > 0 && duration > maximum {
		return fmt.Errorf("%w: maximum is %d %s", ErrInvalidInput, maximum, unit)
	}

	return calendar.CheckConflict(start, duration, unit, p.AllBookedDates())
}

// load fetches the booking, and its property when withProperty is set, and
// ensures the session user takes part in it.
func (s *BookingService) load(ctx context.Context, sess *models.Session, bookingID int64, withProperty bool) (*models.Booking, *models.Property, error) {
	if err := requireSession(sess); err != nil {
		return nil, nil, err
	}
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.OwnerID != sess.UserID && b.TenantIndex(sess.UserID) < 0 {
		return nil, nil, ErrForbidden
	}
	if !withProperty {
		return b, nil, nil
	}
	p, err := s.repo.GetProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, nil, err
	}
	return b, p, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.limiter == nil || s.cfg.RequestRateLimit <= 0 {
		return nil
	}
	window := time.Duration(s.cfg.RequestRateWindow) * time.Second
	allowed, err := s.limiter.CheckRateLimit(ctx, fmt.Sprintf("booking_request:%d", userID), s.cfg.RequestRateLimit, window)
	if err != nil {
		// limiter outage must not block bookings
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func (s *BookingService) invalid(b *models.Booking, action string) error {
	return fmt.Errorf("%w: cannot %s a booking in status %q", ErrInvalidTransition, action, b.Status)
}

func (s *BookingService) template(b *models.Booking, senderID int64, msg string) models.AlertTemplate {
	return models.AlertTemplate{
		Message:    msg,
		Type:       models.AlertBooking,
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		SenderID:   senderID,
	}
}

// afterCommit runs the best-effort side effects of a committed transition.
func (s *BookingService) afterCommit(ctx context.Context, tr *models.BookingTransition, eventType string, actorID, subjectID int64, syncTask string) {
	metrics.IncTransition(tr.Name)
	metrics.AddAlerts(len(tr.Alerts))

	s.logger.Info().
		Str("transition", tr.Name).
		Int64("booking_id", tr.Booking.ID).
		Int64("actor_id", actorID).
		Str("status", string(tr.Booking.Status)).
		Msg("booking transition committed")

	s.alerts.Dispatch(ctx, tr.Alerts)
	s.publishEvent(eventType, tr.Booking, actorID, subjectID)
	s.enqueueSync(ctx, tr.Booking, syncTask)
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, actorID, subjectID int64) {
	if s.eventBus == nil {
		return
	}

	hostID, _ := b.HostID()
	payload := events.BookingEventPayload{
		BookingID:   b.ID,
		PropertyID:  b.PropertyID,
		Kind:        string(b.Type),
		Status:      string(b.Status),
		HostID:      hostID,
		TenantIDs:   b.ActiveTenantIDs(),
		StartDate:   b.StartDate,
		EndDate:     b.EndDate(),
		ChangedByID: actorID,
		SubjectID:   subjectID,
		Comment:     b.Note,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, b *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == models.SyncTaskStatus {
		status = string(b.Status)
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, b.ID, b, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

// canApproveBooking: apartments go through a confirmed viewing unless none was
// requested; transients are approved straight from Booked.
func canApproveBooking(b *models.Booking) bool {
	switch b.Status {
	case models.StatusViewingConfirmed:
		return b.Type == models.KindApartment
	case models.StatusBooked:
		return b.Type == models.KindTransient || b.ViewingDate == nil
	}
	return false
}

// reassignHost gives the Host role to the first tenant, in list order, who is
// not evicted. A booking only loses its Host once every tenant is evicted.
func reassignHost(b *models.Booking) {
	for i, t := range b.Tenants {
		if t.Status == models.TenantEvicted {
			continue
		}
		b.Tenants[i].Status = models.TenantHost
		return
	}
}

func without(ids []int64, exclude int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
