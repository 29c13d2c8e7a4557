// Package memstore is an in-memory store.Store. Transactions are serialized
// and roll back by restoring a snapshot, and the bookings table enforces the
// same uniqueness rules as the SQL schema.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/penalty"
	"github.com/taskhive/service-booking/internal/domain/store"
	"github.com/taskhive/service-booking/internal/domain/user"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/domain"
)

type bookingRow struct {
	id, requesterID, providerID, serviceID uuid.UUID
	slot                                   booking.Slot
	status                                 booking.BookingStatus
	notes                                  string
	version                                int64
	createdAt, updatedAt                   time.Time
}

type userRow struct {
	id        uuid.UUID
	name      string
	role      auth.Role
	standing  penalty.State
	createdAt time.Time
	updatedAt time.Time
}

type notificationRow struct {
	id        uuid.UUID
	userID    uuid.UUID
	eventType string
	message   string
	read      bool
	createdAt time.Time
}

type state struct {
	bookings      map[uuid.UUID]bookingRow
	users         map[uuid.UUID]userRow
	notifications map[uuid.UUID]notificationRow
	messages      []*notification.Message
	cancellations []user.CancellationEvent
}

func (s *state) clone() *state {
	c := &state{
		bookings:      make(map[uuid.UUID]bookingRow, len(s.bookings)),
		users:         make(map[uuid.UUID]userRow, len(s.users)),
		notifications: make(map[uuid.UUID]notificationRow, len(s.notifications)),
		messages:      append([]*notification.Message(nil), s.messages...),
		cancellations: append([]user.CancellationEvent(nil), s.cancellations...),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	return c
}

// Store is a store.Store held in memory.
type Store struct {
	txMu sync.Mutex

	mu      sync.Mutex
	data    *state
	failErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: (&state{}).clone()}
}

var _ store.Store = (*Store)(nil)

// AddUser inserts a user row and returns its ID.
func (s *Store) AddUser(name string, role auth.Role) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	id := uuid.New()
	s.data.users[id] = userRow{id: id, name: name, role: role, createdAt: now, updatedAt: now}
	return id
}

// FailTransactions makes every following Transaction return err without
// running its function. A nil err clears the failure.
func (s *Store) FailTransactions(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// CancellationEvents returns the cancellation log entries of a requester.
func (s *Store) CancellationEvents(requesterID uuid.UUID) []user.CancellationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.CancellationEvent
	for _, e := range s.data.cancellations {
		if e.RequesterID == requesterID {
			out = append(out, e)
		}
	}
	return out
}

// BookingCount returns the number of stored bookings.
func (s *Store) BookingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.bookings)
}

// Bookings implements store.Store.
func (s *Store) Bookings() booking.BookingRepository {
	return bookingRepo{s}
}

// Users implements store.Store.
func (s *Store) Users() user.UserRepository {
	return userRepo{s}
}

// Notifications implements store.Store.
func (s *Store) Notifications() notification.NotificationRepository {
	return notificationRepo{s}
}

// Messages implements store.Store.
func (s *Store) Messages() notification.MessageRepository {
	return messageRepo{s}
}

// Transaction runs fn with exclusive access to the store and restores the
// previous state when fn fails.
func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewTransientError("transaction not started", err)
	}
	s.mu.Lock()
	failErr := s.failErr
	s.mu.Unlock()
	if failErr != nil {
		return failErr
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(txStore{s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is handed to transaction functions. Nested transactions join the
// outer one.
type txStore struct{ *Store }

func (t txStore) Transaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func paginate[T any](items []T, page, limit int) []T {
	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// --- bookings ---

type bookingRepo struct{ s *Store }

func toBookingRow(b *booking.Booking) bookingRow {
	return bookingRow{
		id:          b.ID(),
		requesterID: b.RequesterID(),
		providerID:  b.ProviderID(),
		serviceID:   b.ServiceID(),
		slot:        b.Slot(),
		status:      b.Status(),
		notes:       b.Notes(),
		version:     b.Version(),
		createdAt:   b.CreatedAt(),
		updatedAt:   b.UpdatedAt(),
	}
}

func (r bookingRow) toDomain() *booking.Booking {
	return booking.ReconstructBooking(r.id, r.requesterID, r.providerID, r.serviceID,
		r.slot, r.status, r.notes, r.version, r.createdAt, r.updatedAt)
}

func (r bookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewTransientError("failed to find booking by ID", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.data.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return row.toDomain(), nil
}

func (r bookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r bookingRepo) FindConflictCandidates(_ context.Context, requesterID, providerID uuid.UUID, slot booking.Slot) ([]*booking.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*booking.Booking
	for _, row := range r.s.data.bookings {
		sameSlot := row.slot == slot && (row.requesterID == requesterID || row.providerID == providerID)
		pendingPair := row.requesterID == requesterID && row.providerID == providerID && row.status == booking.StatusPending
		if sameSlot || pendingPair {
			out = append(out, row.toDomain())
		}
	}
	return out, nil
}

func (r bookingRepo) List(_ context.Context, filter booking.ListFilter, page, limit int) ([]*booking.Booking, int64, error) {
	r.s.mu.Lock()
	var rows []bookingRow
	for _, row := range r.s.data.bookings {
		if filter.RequesterID != uuid.Nil && row.requesterID != filter.RequesterID {
			continue
		}
		if filter.ProviderID != uuid.Nil && row.providerID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && row.status != filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	r.s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.After(rows[j].createdAt) })
	pageRows := paginate(rows, page, limit)
	out := make([]*booking.Booking, len(pageRows))
	for i, row := range pageRows {
		out[i] = row.toDomain()
	}
	return out, int64(len(rows)), nil
}

func (r bookingRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int64)
	for _, row := range r.s.data.bookings {
		counts[string(row.status)]++
	}
	return counts, nil
}

func (r bookingRepo) Save(ctx context.Context, b *booking.Booking) error {
	if err := ctx.Err(); err != nil {
		return domain.NewTransientError("failed to save booking", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.data.bookings {
		if row.providerID == b.ProviderID() && row.slot == b.Slot() {
			return booking.NewConflictError(booking.ConflictProviderUnavailable, b.Slot(), nil)
		}
		if b.Status() == booking.StatusPending && row.status == booking.StatusPending &&
			row.requesterID == b.RequesterID() && row.providerID == b.ProviderID() {
			return booking.NewConflictError(booking.ConflictDuplicatePending, b.Slot(), nil)
		}
	}
	r.s.data.bookings[b.ID()] = toBookingRow(b)
	return nil
}

func (r bookingRepo) Update(ctx context.Context, b *booking.Booking) error {
	if err := ctx.Err(); err != nil {
		return domain.NewTransientError("failed to update booking", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.data.bookings[b.ID()]
	if !ok || row.version != b.Version()-1 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	r.s.data.bookings[b.ID()] = toBookingRow(b)
	return nil
}

// --- users ---

type userRepo struct{ s *Store }

func (r userRow) toDomain() *user.User {
	return user.Reconstruct(r.id, r.name, r.role, r.standing, r.createdAt, r.updatedAt)
}

func (r userRepo) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewTransientError("failed to find user", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.data.users[id]
	if !ok {
		return nil, domain.NewNotFoundError("User", id.String())
	}
	return row.toDomain(), nil
}

func (r userRepo) LockForUpdate(ctx context.Context, ids ...uuid.UUID) ([]*user.User, error) {
	out := make([]*user.User, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		u, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r userRepo) UpdateStanding(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.data.users[u.ID()]
	if !ok {
		return domain.NewNotFoundError("User", u.ID().String())
	}
	row.standing = u.Standing()
	row.updatedAt = u.UpdatedAt()
	r.s.data.users[u.ID()] = row
	return nil
}

func (r userRepo) AppendCancellationEvent(_ context.Context, evt user.CancellationEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.cancellations = append(r.s.data.cancellations, evt)
	return nil
}

// --- notifications ---

type notificationRepo struct{ s *Store }

func (r notificationRow) toDomain() *notification.Notification {
	return notification.ReconstructNotification(r.id, r.userID, r.eventType, r.message, r.read, r.createdAt)
}

func (r notificationRepo) Save(ctx context.Context, n *notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return domain.NewTransientError("failed to save notification", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.notifications[n.ID()] = notificationRow{
		id:        n.ID(),
		userID:    n.UserID(),
		eventType: n.EventType(),
		message:   n.Message(),
		read:      n.Read(),
		createdAt: n.CreatedAt(),
	}
	return nil
}

func (r notificationRepo) FindByID(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.data.notifications[id]
	if !ok {
		return nil, domain.NewNotFoundError("Notification", id.String())
	}
	return row.toDomain(), nil
}

func (r notificationRepo) FindByUserID(_ context.Context, userID uuid.UUID, page, limit int) ([]*notification.Notification, int64, error) {
	r.s.mu.Lock()
	var rows []notificationRow
	for _, row := range r.s.data.notifications {
		if row.userID == userID {
			rows = append(rows, row)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.After(rows[j].createdAt) })
	pageRows := paginate(rows, page, limit)
	out := make([]*notification.Notification, len(pageRows))
	for i, row := range pageRows {
		out[i] = row.toDomain()
	}
	return out, int64(len(rows)), nil
}

func (r notificationRepo) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, row := range r.s.data.notifications {
		if row.userID == userID && !row.read {
			n++
		}
	}
	return n, nil
}

func (r notificationRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.data.notifications[id]
	if !ok {
		return domain.NewNotFoundError("Notification", id.String())
	}
	row.read = true
	r.s.data.notifications[id] = row
	return nil
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, row := range r.s.data.notifications {
		if row.userID == userID && !row.read {
			row.read = true
			r.s.data.notifications[id] = row
			n++
		}
	}
	return n, nil
}

// --- messages ---

type messageRepo struct{ s *Store }

func (r messageRepo) Save(ctx context.Context, m *notification.Message) error {
	if err := ctx.Err(); err != nil {
		return domain.NewTransientError("failed to save message", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.messages = append(r.s.data.messages, m)
	return nil
}

func (r messageRepo) FindConversation(_ context.Context, userA, userB uuid.UUID, page, limit int) ([]*notification.Message, int64, error) {
	r.s.mu.Lock()
	var matched []*notification.Message
	for _, m := range r.s.data.messages {
		if (m.SenderID() == userA && m.ReceiverID() == userB) || (m.SenderID() == userB && m.ReceiverID() == userA) {
			matched = append(matched, m)
		}
	}
	r.s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt().After(matched[j].CreatedAt()) })
	return paginate(matched, page, limit), int64(len(matched)), nil
}

func (r messageRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) ([]*notification.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*notification.Message
	for _, m := range r.s.data.messages {
		if b := m.BookingID(); b != nil && *b == bookingID {
			out = append(out, m)
		}
	}
	return out, nil
}
