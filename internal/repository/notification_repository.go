package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/pkg/domain"
)

// NotificationModel is the GORM model for the notifications table.
type NotificationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType string    `gorm:"type:varchar(40);not null"`
	Message   string    `gorm:"type:text;not null"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (NotificationModel) TableName() string { return "notifications" }

// GormNotificationRepository implements NotificationRepository using GORM.
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a new GormNotificationRepository.
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Save persists a new notification.
func (r *GormNotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	model := toNotificationModel(n)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError("failed to save notification", err)
	}
	return nil
}

// FindByID returns a single notification by ID.
func (r *GormNotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	var model NotificationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Notification", id.String())
		}
		return nil, translateError("failed to find notification", err)
	}
	return toNotificationDomain(&model), nil
}

// FindByUserID returns the user's notifications, newest first.
func (r *GormNotificationRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]*notification.Notification, int64, error) {
	page, limit = normalizePage(page, limit)

	var total int64
	if err := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, translateError("failed to count notifications", err)
	}

	var models []NotificationModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, translateError("failed to find notifications", err)
	}

	items := make([]*notification.Notification, len(models))
	for i := range models {
		items[i] = toNotificationDomain(&models[i])
	}
	return items, total, nil
}

// CountUnread returns the number of unread notifications for the user.
func (r *GormNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, translateError("failed to count unread notifications", err)
	}
	return count, nil
}

// MarkRead marks one notification as read.
func (r *GormNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("id = ?", id).Update("read", true)
	if result.Error != nil {
		return translateError("failed to mark notification read", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Notification", id.String())
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *GormNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, translateError("failed to mark notifications read", result.Error)
	}
	return result.RowsAffected, nil
}

func toNotificationModel(n *notification.Notification) NotificationModel {
	return NotificationModel{
		ID:        n.ID(),
		UserID:    n.UserID(),
		EventType: n.EventType(),
		Message:   n.Message(),
		Read:      n.Read(),
		CreatedAt: n.CreatedAt(),
	}
}

func toNotificationDomain(m *NotificationModel) *notification.Notification {
	return notification.ReconstructNotification(
		m.ID,
		m.UserID,
		m.EventType,
		m.Message,
		m.Read,
		m.CreatedAt,
	)
}
