package repository

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskhive/service-booking/internal/domain/penalty"
	userDomain "github.com/taskhive/service-booking/internal/domain/user"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/domain"
)

// UserModel is the GORM model for the users table. Accounts are owned by the
// identity service; this service only writes the cancellation columns.
type UserModel struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name                   string     `gorm:"size:200"`
	Role                   string     `gorm:"size:20;not null;index"`
	CancellationCount      int        `gorm:"not null;default:0"`
	LastCancellationDate   *time.Time `gorm:""`
	BookingRestrictedUntil *time.Time `gorm:""`
	CreatedAt              time.Time  `gorm:"not null"`
	UpdatedAt              time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (UserModel) TableName() string { return "users" }

// CancellationEventModel is the GORM model for the cancellation_events log.
type CancellationEventModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RequesterID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	BookingID       uuid.UUID  `gorm:"type:uuid;not null"`
	CountAfter      int        `gorm:"not null"`
	Outcome         string     `gorm:"size:20;not null"`
	RestrictedUntil *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (CancellationEventModel) TableName() string { return "cancellation_events" }

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// FindByID returns a user by ID.
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*userDomain.User, error) {
	var model UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("User", id.String())
		}
		return nil, translateError("failed to find user by ID", err)
	}
	return toDomainUser(&model), nil
}

// LockForUpdate loads and row-locks the users in ascending ID order so that
// concurrent lockers of overlapping sets cannot deadlock.
func (r *GormUserRepository) LockForUpdate(ctx context.Context, ids ...uuid.UUID) ([]*userDomain.User, error) {
	unique := dedupeSorted(ids)

	var models []UserModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", unique).
		Order("id").
		Find(&models).Error; err != nil {
		return nil, translateError("failed to lock users", err)
	}

	found := make(map[uuid.UUID]bool, len(models))
	users := make([]*userDomain.User, len(models))
	for i := range models {
		users[i] = toDomainUser(&models[i])
		found[models[i].ID] = true
	}
	for _, id := range unique {
		if !found[id] {
			return nil, domain.NewNotFoundError("User", id.String())
		}
	}
	return users, nil
}

// UpdateStanding persists the cancellation columns of u.
func (r *GormUserRepository) UpdateStanding(ctx context.Context, u *userDomain.User) error {
	st := u.Standing()
	result := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", u.ID()).
		Updates(map[string]interface{}{
			"cancellation_count":       st.Count,
			"last_cancellation_date":   st.LastCancellationAt,
			"booking_restricted_until": st.RestrictedUntil,
			"updated_at":               u.UpdatedAt(),
		})
	if result.Error != nil {
		return translateError("failed to update user standing", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("User", u.ID().String())
	}
	return nil
}

// AppendCancellationEvent writes one row to the cancellation log.
func (r *GormUserRepository) AppendCancellationEvent(ctx context.Context, evt userDomain.CancellationEvent) error {
	model := CancellationEventModel{
		ID:              evt.ID,
		RequesterID:     evt.RequesterID,
		BookingID:       evt.BookingID,
		CountAfter:      evt.CountAfter,
		Outcome:         string(evt.Outcome),
		RestrictedUntil: evt.RestrictedUntil,
		CreatedAt:       evt.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError("failed to append cancellation event", err)
	}
	return nil
}

func dedupeSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func toDomainUser(m *UserModel) *userDomain.User {
	return userDomain.Reconstruct(
		m.ID,
		m.Name,
		auth.Role(m.Role),
		penalty.State{
			Count:              m.CancellationCount,
			LastCancellationAt: m.LastCancellationDate,
			RestrictedUntil:    m.BookingRestrictedUntil,
		},
		m.CreatedAt,
		m.UpdatedAt,
	)
}
