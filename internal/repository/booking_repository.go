package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/pkg/domain"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	RequesterID uuid.UUID      `gorm:"type:uuid;index;not null"`
	ProviderID  uuid.UUID      `gorm:"type:uuid;index;not null"`
	ServiceID   uuid.UUID      `gorm:"type:uuid;not null"`
	Date        string         `gorm:"column:date;type:varchar(10);not null"`
	Time        string         `gorm:"column:time;type:varchar(5);not null"`
	Status      string         `gorm:"not null;size:20;index"`
	Notes       string         `gorm:"size:1000"`
	Version     int64          `gorm:"not null;default:1"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return r.findByID(ctx, r.db.WithContext(ctx), id)
}

// FindByIDForUpdate retrieves a booking and row-locks it. Outside a
// transaction the lock is released as soon as the statement ends.
func (r *GormBookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return r.findByID(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormBookingRepository) findByID(_ context.Context, q *gorm.DB, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := q.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, translateError("failed to find booking by ID", err)
	}
	return toDomainBooking(&model)
}

// FindConflictCandidates returns the bookings the conflict validator needs:
// any booking in the slot for the requester or the provider, and pending
// bookings between the pair.
func (r *GormBookingRepository) FindConflictCandidates(ctx context.Context, requesterID, providerID uuid.UUID, slot bookingDomain.Slot) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where(`((requester_id = ? AND "date" = ? AND "time" = ?)
			OR (provider_id = ? AND "date" = ? AND "time" = ?)
			OR (requester_id = ? AND provider_id = ? AND status = ?))`,
			requesterID, slot.Date, slot.Time,
			providerID, slot.Date, slot.Time,
			requesterID, providerID, string(bookingDomain.StatusPending),
		).
		Find(&models).Error; err != nil {
		return nil, translateError("failed to find conflicting bookings", err)
	}
	return toDomainBookings(models)
}

// List retrieves bookings matching the filter with pagination, newest first.
func (r *GormBookingRepository) List(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	page, limit = normalizePage(page, limit)

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.RequesterID != uuid.Nil {
			db = db.Where("requester_id = ?", filter.RequesterID)
		}
		if filter.ProviderID != uuid.Nil {
			db = db.Where("provider_id = ?", filter.ProviderID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", string(filter.Status))
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, translateError("failed to count bookings", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, translateError("failed to list bookings", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, translateError("failed to count by status", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new booking. A violated slot or pending-pair index is
// reported as the conflict the validator would have raised.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if name, ok := uniqueViolation(err); ok {
			if kind, known := conflictForConstraint[name]; known {
				return bookingDomain.NewConflictError(kind, bk.Slot(), nil)
			}
		}
		return translateError("failed to save booking", err)
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)

	// Optimistic locking: only update if the version matches (current version - 1 since IncrementVersion was called)
	expectedVersion := bk.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":     model.Status,
			"notes":      model.Notes,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		if name, ok := uniqueViolation(result.Error); ok {
			if kind, known := conflictForConstraint[name]; known {
				return bookingDomain.NewConflictError(kind, bk.Slot(), nil)
			}
		}
		return translateError("failed to update booking", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

// --- Conversion Helpers ---

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	return &BookingModel{
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

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.RequesterID,
		m.ProviderID,
		m.ServiceID,
		bookingDomain.Slot{Date: m.Date, Time: m.Time},
		status,
		m.Notes,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}
