package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/penalty"
	"github.com/taskhive/service-booking/internal/domain/store"
	userDomain "github.com/taskhive/service-booking/internal/domain/user"
	"github.com/taskhive/service-booking/internal/events"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/domain"
	"github.com/taskhive/service-booking/pkg/kafka"
)

// DefaultStoreTimeout bounds a single unit of work against the store.
const DefaultStoreTimeout = 5 * time.Second

// EventPublisher publishes domain events. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// CreateBookingRequest holds the data needed to create a new booking.
type CreateBookingRequest struct {
	ProviderID uuid.UUID `json:"providerId" binding:"required"`
	ServiceID  uuid.UUID `json:"serviceId" binding:"required"`
	Date       string    `json:"date" binding:"required"`
	Time       string    `json:"time" binding:"required"`
	Notes      string    `json:"notes"`
}

// UpdateStatusRequest is the body of a status change.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID          uuid.UUID `json:"id"`
	RequesterID uuid.UUID `json:"requesterId"`
	ProviderID  uuid.UUID `json:"providerId"`
	ServiceID   uuid.UUID `json:"serviceId"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CancelBookingResult is returned to the requester after a cancellation.
// Warning is set when the cancellation triggered a warning or a restriction.
type CancelBookingResult struct {
	Booking BookingDTO      `json:"booking"`
	Outcome penalty.Outcome `json:"outcome"`
	Warning string          `json:"warning,omitempty"`
}

// ListBookingsQuery scopes a booking listing. Role selects which side of the
// booking the caller is on; it defaults to the caller's own role.
type ListBookingsQuery struct {
	Role   string
	Status string
	Page   int
	Limit  int
}

// bookingIDPayload is the data of booking_cancelled and booking_completed.
type bookingIDPayload struct {
	BookingID uuid.UUID `json:"bookingId"`
}

type statusChangedPayload struct {
	BookingID uuid.UUID `json:"bookingId"`
	NewStatus string    `json:"newStatus"`
}

// BookingServiceConfig tunes a BookingService. Zero values take defaults.
type BookingServiceConfig struct {
	Policy       penalty.Policy
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// BookingService is the application service orchestrating booking use cases.
type BookingService struct {
	store        store.Store
	dispatcher   *notify.Dispatcher
	producer     EventPublisher
	policy       penalty.Policy
	storeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	st store.Store,
	dispatcher *notify.Dispatcher,
	producer EventPublisher,
	cfg BookingServiceConfig,
	logger *zap.Logger,
) *BookingService {
	if cfg.Policy == (penalty.Policy{}) {
		cfg.Policy = penalty.DefaultPolicy()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &BookingService{
		store:        st,
		dispatcher:   dispatcher,
		producer:     producer,
		policy:       cfg.Policy,
		storeTimeout: cfg.StoreTimeout,
		now:          cfg.Clock,
		logger:       logger,
	}
}

// CreateBooking validates and stores a new pending booking for the requester.
// The conflict checks and the insert run in one transaction holding row locks
// on both users, so two racing requests for the same slot cannot both pass.
func (s *BookingService) CreateBooking(ctx context.Context, actor bookingDomain.Actor, req CreateBookingRequest) (*BookingDTO, error) {
	if actor.Role != auth.RoleRequester {
		return nil, domain.NewForbiddenError("only requesters can create bookings")
	}
	slot, err := bookingDomain.NewSlot(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	now := s.now()
	bk, err := bookingDomain.NewBooking(actor.ID, req.ProviderID, req.ServiceID, slot, req.Notes, now)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	batch := s.dispatcher.Begin()
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		batch.Reset()

		users, err := lockUsers(ctx, tx.Users(), actor.ID, req.ProviderID)
		if err != nil {
			return err
		}
		requester, provider := users[actor.ID], users[req.ProviderID]
		if !requester.IsRequester() {
			return domain.NewForbiddenError("only requesters can create bookings")
		}
		if !provider.IsProvider() {
			return domain.NewValidationError(fmt.Sprintf("user %s is not a provider", req.ProviderID))
		}

		existing, err := tx.Bookings().FindConflictCandidates(ctx, actor.ID, req.ProviderID, slot)
		if err != nil {
			return err
		}
		proposal := bookingDomain.Proposal{
			RequesterID:     actor.ID,
			ProviderID:      req.ProviderID,
			Slot:            slot,
			RestrictedUntil: requester.Standing().RestrictedUntil,
		}
		if err := bookingDomain.Validate(proposal, existing, now); err != nil {
			return err
		}

		if err := tx.Bookings().Save(ctx, bk); err != nil {
			return err
		}

		text := fmt.Sprintf("%s requested a booking on %s at %s.", requester.DisplayName(), slot.Date, slot.Time)
		if _, err := batch.Notify(ctx, tx.Notifications(), provider.ID(), realtime.EventNewBooking, text); err != nil {
			return err
		}
		bookingID := bk.ID()
		greeting, err := notification.NewMessage(requester.ID(), provider.ID(), greetingText(provider, slot, req.Notes), &bookingID, now)
		if err != nil {
			return err
		}
		if err := batch.Message(ctx, tx.Messages(), greeting); err != nil {
			return err
		}
		batch.Emit(requester.ID(), realtime.EventNewBooking, toBookingDTO(bk))
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(context.WithoutCancel(ctx))
	s.publishEvent(ctx, events.BookingCreated, bk.ID().String(), events.BookingCreatedEvent{
		BookingID:   bk.ID(),
		RequesterID: bk.RequesterID(),
		ProviderID:  bk.ProviderID(),
		ServiceID:   bk.ServiceID(),
		Date:        slot.Date,
		Time:        slot.Time,
		OccurredAt:  now.UTC(),
	})

	s.logger.Info("booking created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("requester_id", bk.RequesterID().String()),
		zap.String("provider_id", bk.ProviderID().String()),
		zap.String("slot", slot.String()),
	)

	result := toBookingDTO(bk)
	return &result, nil
}

// CancelBooking cancels a pending booking on behalf of its requester and
// applies the cancellation policy to the requester's standing.
func (s *BookingService) CancelBooking(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID) (*CancelBookingResult, error) {
	if actor.Role != auth.RoleRequester {
		return nil, domain.NewForbiddenError("only requesters can cancel bookings")
	}
	now := s.now()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var (
		bk      *bookingDomain.Booking
		outcome penalty.Outcome
	)
	batch := s.dispatcher.Begin()
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		batch.Reset()

		// Users are always locked before bookings.
		users, err := lockUsers(ctx, tx.Users(), actor.ID)
		if err != nil {
			return err
		}
		requester := users[actor.ID]

		bk, err = tx.Bookings().FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := bk.CancelBy(actor, now); err != nil {
			return err
		}
		bk.IncrementVersion()
		if err := tx.Bookings().Update(ctx, bk); err != nil {
			return err
		}

		outcome = requester.RecordCancellation(s.policy, now)
		if err := tx.Users().UpdateStanding(ctx, requester); err != nil {
			return err
		}
		if err := tx.Users().AppendCancellationEvent(ctx, userDomain.CancellationEvent{
			ID:              uuid.New(),
			RequesterID:     requester.ID(),
			BookingID:       bk.ID(),
			CountAfter:      outcome.Count,
			Outcome:         outcome.Kind,
			RestrictedUntil: outcome.RestrictedUntil,
			CreatedAt:       now.UTC(),
		}); err != nil {
			return err
		}

		slot := bk.Slot()
		requesterText := fmt.Sprintf("You cancelled your booking on %s at %s.", slot.Date, slot.Time)
		if outcome.Message != "" {
			requesterText += " " + outcome.Message
		}
		if _, err := batch.Notify(ctx, tx.Notifications(), bk.RequesterID(), realtime.EventBookingCancelled, requesterText); err != nil {
			return err
		}
		providerText := fmt.Sprintf("%s cancelled the booking on %s at %s.", requester.DisplayName(), slot.Date, slot.Time)
		if _, err := batch.Notify(ctx, tx.Notifications(), bk.ProviderID(), realtime.EventBookingCancelled, providerText); err != nil {
			return err
		}

		payload := bookingIDPayload{BookingID: bk.ID()}
		batch.Emit(bk.RequesterID(), realtime.EventBookingCancelled, payload)
		batch.Emit(bk.ProviderID(), realtime.EventBookingCancelled, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(context.WithoutCancel(ctx))
	s.publishEvent(ctx, events.BookingCancelled, bk.ID().String(), events.BookingCancelledEvent{
		BookingID:         bk.ID(),
		RequesterID:       bk.RequesterID(),
		ProviderID:        bk.ProviderID(),
		CancellationCount: outcome.Count,
		Outcome:           string(outcome.Kind),
		OccurredAt:        now.UTC(),
	})
	if outcome.Kind == penalty.OutcomeRestricted {
		s.publishEvent(ctx, events.RequesterRestricted, bk.RequesterID().String(), events.RequesterRestrictedEvent{
			RequesterID:       bk.RequesterID(),
			CancellationCount: outcome.Count,
			RestrictedUntil:   *outcome.RestrictedUntil,
			OccurredAt:        now.UTC(),
		})
	}

	s.logger.Info("booking cancelled",
		zap.String("booking_id", bk.ID().String()),
		zap.String("requester_id", bk.RequesterID().String()),
		zap.Int("cancellation_count", outcome.Count),
		zap.String("outcome", string(outcome.Kind)),
	)

	result := &CancelBookingResult{
		Booking: toBookingDTO(bk),
		Outcome: outcome,
	}
	if outcome.Kind != penalty.OutcomeNone {
		result.Warning = outcome.Message
	}
	return result, nil
}

// SetBookingStatus moves a booking along the status machine on behalf of an
// admin or the booking's provider. No penalty applies to these changes.
func (s *BookingService) SetBookingStatus(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID, status string) (*BookingDTO, error) {
	target, err := bookingDomain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	now := s.now()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var (
		bk       *bookingDomain.Booking
		previous bookingDomain.BookingStatus
	)
	batch := s.dispatcher.Begin()
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		batch.Reset()

		bk, err = tx.Bookings().FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		previous = bk.Status()
		if err := bk.SetStatusBy(actor, target, now); err != nil {
			return err
		}
		bk.IncrementVersion()
		if err := tx.Bookings().Update(ctx, bk); err != nil {
			return err
		}

		slot := bk.Slot()
		text := fmt.Sprintf("Your booking on %s at %s is now %s.", slot.Date, slot.Time, statusLabel(target))
		if _, err := batch.Notify(ctx, tx.Notifications(), bk.RequesterID(), realtime.EventBookingStatusChanged, text); err != nil {
			return err
		}
		batch.Emit(bk.RequesterID(), realtime.EventBookingStatusChanged, statusChangedPayload{
			BookingID: bk.ID(),
			NewStatus: string(target),
		})
		if target == bookingDomain.StatusCompleted {
			batch.Emit(bk.RequesterID(), realtime.EventBookingCompleted, bookingIDPayload{BookingID: bk.ID()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(context.WithoutCancel(ctx))
	s.publishEvent(ctx, events.BookingStatusChanged, bk.ID().String(), events.BookingStatusChangedEvent{
		BookingID:   bk.ID(),
		RequesterID: bk.RequesterID(),
		ProviderID:  bk.ProviderID(),
		OldStatus:   string(previous),
		NewStatus:   string(target),
		ChangedBy:   actor.ID,
		OccurredAt:  now.UTC(),
	})
	if target == bookingDomain.StatusCompleted {
		s.publishEvent(ctx, events.BookingCompleted, bk.ID().String(), events.BookingCompletedEvent{
			BookingID:   bk.ID(),
			RequesterID: bk.RequesterID(),
			ProviderID:  bk.ProviderID(),
			OccurredAt:  now.UTC(),
		})
	}

	s.logger.Info("booking status changed",
		zap.String("booking_id", bk.ID().String()),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
		zap.String("actor_id", actor.ID.String()),
		zap.String("actor_role", string(actor.Role)),
	)

	result := toBookingDTO(bk)
	return &result, nil
}

// GetBooking retrieves a single booking visible to the actor.
func (s *BookingService) GetBooking(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	bk, err := s.store.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !bk.CanBeViewedBy(actor) {
		return nil, domain.NewForbiddenError("booking does not belong to this user")
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// ListBookings returns the actor's bookings, scoped by role.
func (s *BookingService) ListBookings(ctx context.Context, actor bookingDomain.Actor, q ListBookingsQuery) (*domain.PaginatedResult[BookingDTO], error) {
	role := auth.Role(q.Role)
	if role == "" {
		role = actor.Role
	}

	var filter bookingDomain.ListFilter
	switch role {
	case auth.RoleRequester:
		filter.RequesterID = actor.ID
	case auth.RoleProvider:
		filter.ProviderID = actor.ID
	case auth.RoleAdmin:
		if actor.Role != auth.RoleAdmin {
			return nil, domain.NewForbiddenError("only admins can list all bookings")
		}
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("invalid role %q", q.Role))
	}
	if q.Status != "" {
		status, err := bookingDomain.ParseBookingStatus(q.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	return s.list(ctx, filter, q.Page, q.Limit)
}

func (s *BookingService) list(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	bookings, total, err := s.store.Bookings().List(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}

	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// StandingDTO is a requester's cancellation standing.
type StandingDTO struct {
	UserID               uuid.UUID  `json:"userId"`
	CancellationCount    int        `json:"cancellationCount"`
	LastCancellationDate *time.Time `json:"lastCancellationDate,omitempty"`
	RestrictedUntil      *time.Time `json:"bookingRestrictedUntil,omitempty"`
	Restricted           bool       `json:"restricted"`
}

// GetStanding returns the caller's cancellation standing.
func (s *BookingService) GetStanding(ctx context.Context, userID uuid.UUID) (*StandingDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := u.Standing()
	return &StandingDTO{
		UserID:               u.ID(),
		CancellationCount:    st.Count,
		LastCancellationDate: st.LastCancellationAt,
		RestrictedUntil:      st.RestrictedUntil,
		Restricted:           st.IsRestricted(s.now()),
	}, nil
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"totalBookings"`
	ByStatus      map[string]int64 `json:"byStatus"`
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, status string, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	var filter bookingDomain.ListFilter
	if status != "" {
		st, err := bookingDomain.ParseBookingStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	return s.list(ctx, filter, page, limit)
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	counts, err := s.store.Bookings().CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Helpers ---

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:          bk.ID(),
		RequesterID: bk.RequesterID(),
		ProviderID:  bk.ProviderID(),
		ServiceID:   bk.ServiceID(),
		Date:        bk.Slot().Date,
		Time:        bk.Slot().Time,
		Status:      string(bk.Status()),
		Notes:       bk.Notes(),
		Version:     bk.Version(),
		CreatedAt:   bk.CreatedAt(),
		UpdatedAt:   bk.UpdatedAt(),
	}
}

// lockUsers row-locks the given users and indexes them by ID.
func lockUsers(ctx context.Context, repo userDomain.UserRepository, ids ...uuid.UUID) (map[uuid.UUID]*userDomain.User, error) {
	users, err := repo.LockForUpdate(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*userDomain.User, len(users))
	for _, u := range users {
		byID[u.ID()] = u
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, domain.NewNotFoundError("User", id.String())
		}
	}
	return byID, nil
}

func greetingText(provider *userDomain.User, slot bookingDomain.Slot, notes string) string {
	text := fmt.Sprintf("Hi %s, I would like to book your service on %s at %s.", provider.DisplayName(), slot.Date, slot.Time)
	if notes != "" {
		text += " Notes: " + notes
	}
	return text
}

func statusLabel(s bookingDomain.BookingStatus) string {
	switch s {
	case bookingDomain.StatusInProgress:
		return "in progress"
	default:
		return string(s)
	}
}

func (s *BookingService) publishEvent(ctx context.Context, eventType, key string, data interface{}) {
	cloudEvent, err := kafka.NewCloudEvent(events.Source, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	cloudEvent.Subject = key

	if err := s.producer.PublishEvent(context.WithoutCancel(ctx), events.TopicBookingEvents, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", events.TopicBookingEvents),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
