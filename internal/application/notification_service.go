package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/service-booking/internal/domain/store"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/pkg/domain"
)

// NotificationService handles a user's notification inbox.
type NotificationService struct {
	store        store.Store
	storeTimeout time.Duration
	logger       *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(st store.Store, storeTimeout time.Duration, logger *zap.Logger) *NotificationService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &NotificationService{store: st, storeTimeout: storeTimeout, logger: logger}
}

// ListNotifications returns the user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.PaginatedResult[notify.NotificationDTO], error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	items, total, err := s.store.Notifications().FindByUserID(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]notify.NotificationDTO, len(items))
	for i, n := range items {
		dtos[i] = notify.ToNotificationDTO(n)
	}
	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.store.Notifications().CountUnread(ctx, userID)
}

// MarkRead marks one notification as read. Only its recipient may do so.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (*notify.NotificationDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	n, err := s.store.Notifications().FindByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if !n.IsOwnedBy(userID) {
		return nil, domain.NewForbiddenError("notification does not belong to this user")
	}
	if !n.Read() {
		if err := s.store.Notifications().MarkRead(ctx, notificationID); err != nil {
			return nil, err
		}
		n.MarkRead()
	}

	dto := notify.ToNotificationDTO(n)
	return &dto, nil
}

// MarkAllRead marks every unread notification of the user as read and
// returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	updated, err := s.store.Notifications().MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("notifications marked read",
		zap.String("user_id", userID.String()),
		zap.Int64("updated", updated),
	)
	return updated, nil
}
