// Package store defines the unit-of-work port the application layer runs
// booking use cases against.
package store

import (
	"context"

	"github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/user"
)

// Store gives access to every repository. Repositories obtained from the tx
// argument of Transaction share one database transaction.
type Store interface {
	Bookings() booking.BookingRepository
	Users() user.UserRepository
	Notifications() notification.NotificationRepository
	Messages() notification.MessageRepository

	// Transaction runs fn in a transaction. It commits when fn returns nil and
	// rolls back otherwise, returning fn's error unchanged.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
