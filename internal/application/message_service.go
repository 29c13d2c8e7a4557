package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/store"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/pkg/domain"
)

// SendMessageRequest is the body of a direct message.
type SendMessageRequest struct {
	ReceiverID uuid.UUID  `json:"receiverId" binding:"required"`
	Content    string     `json:"content" binding:"required"`
	BookingID  *uuid.UUID `json:"bookingId"`
}

// MessageService handles chat between requesters and providers.
type MessageService struct {
	store        store.Store
	dispatcher   *notify.Dispatcher
	storeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewMessageService creates a new MessageService.
func NewMessageService(st store.Store, dispatcher *notify.Dispatcher, storeTimeout time.Duration, logger *zap.Logger) *MessageService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &MessageService{
		store:        st,
		dispatcher:   dispatcher,
		storeTimeout: storeTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// SendMessage stores a message and pushes new_message to both participants.
// A message tied to a booking must be between that booking's participants.
func (s *MessageService) SendMessage(ctx context.Context, senderID uuid.UUID, req SendMessageRequest) (*notify.MessageDTO, error) {
	msg, err := notification.NewMessage(senderID, req.ReceiverID, req.Content, req.BookingID, s.now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.store.Users().FindByID(ctx, req.ReceiverID); err != nil {
		return nil, err
	}
	if req.BookingID != nil {
		bk, err := s.store.Bookings().FindByID(ctx, *req.BookingID)
		if err != nil {
			return nil, err
		}
		if !bk.IsParticipant(senderID) || !bk.IsParticipant(req.ReceiverID) {
			return nil, domain.NewForbiddenError("messages on a booking are limited to its participants")
		}
	}

	batch := s.dispatcher.Begin()
	if err := batch.Message(ctx, s.store.Messages(), msg); err != nil {
		return nil, err
	}
	batch.Flush(context.WithoutCancel(ctx))

	dto := notify.ToMessageDTO(msg)
	return &dto, nil
}

// GetConversation returns the messages exchanged between the user and other,
// newest first.
func (s *MessageService) GetConversation(ctx context.Context, userID, otherID uuid.UUID, page, limit int) (*domain.PaginatedResult[notify.MessageDTO], error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	items, total, err := s.store.Messages().FindConversation(ctx, userID, otherID, page, limit)
	if err != nil {
		return nil, err
	}
	result := domain.NewPaginatedResult(toMessageDTOs(items), total, page, limit)
	return &result, nil
}

// GetBookingThread returns the messages tied to a booking, oldest first.
func (s *MessageService) GetBookingThread(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID) ([]notify.MessageDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	bk, err := s.store.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !bk.CanBeViewedBy(actor) {
		return nil, domain.NewForbiddenError("booking does not belong to this user")
	}

	items, err := s.store.Messages().FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return toMessageDTOs(items), nil
}

func toMessageDTOs(items []*notification.Message) []notify.MessageDTO {
	dtos := make([]notify.MessageDTO, len(items))
	for i, m := range items {
		dtos[i] = notify.ToMessageDTO(m)
	}
	return dtos
}
