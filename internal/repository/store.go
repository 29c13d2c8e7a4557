package repository

import (
	"context"

	"gorm.io/gorm"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/store"
	userDomain "github.com/taskhive/service-booking/internal/domain/user"
)

// GormStore implements store.Store on a single *gorm.DB, which is either the
// pool or an open transaction.
type GormStore struct {
	db            *gorm.DB
	bookings      *GormBookingRepository
	users         *GormUserRepository
	notifications *GormNotificationRepository
	messages      *GormMessageRepository
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:            db,
		bookings:      NewGormBookingRepository(db),
		users:         NewGormUserRepository(db),
		notifications: NewGormNotificationRepository(db),
		messages:      NewGormMessageRepository(db),
	}
}

// Bookings returns the booking repository.
func (s *GormStore) Bookings() bookingDomain.BookingRepository {
	return s.bookings
}

// Users returns the user repository.
func (s *GormStore) Users() userDomain.UserRepository {
	return s.users
}

// Notifications returns the notification repository.
func (s *GormStore) Notifications() notification.NotificationRepository {
	return s.notifications
}

// Messages returns the message repository.
func (s *GormStore) Messages() notification.MessageRepository {
	return s.messages
}

// Transaction runs fn inside a database transaction bound to ctx.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
	return translateError("transaction failed", err)
}

var _ store.Store = (*GormStore)(nil)
