package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/service-booking/internal/domain/notification"
)

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SenderID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	ReceiverID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Content    string     `gorm:"type:text;not null"`
	BookingID  *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt  time.Time  `gorm:"not null"`
}

// TableName sets the table name.
func (MessageModel) TableName() string { return "messages" }

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GormMessageRepository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Save persists a new message.
func (r *GormMessageRepository) Save(ctx context.Context, m *notification.Message) error {
	model := toMessageModel(m)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError("failed to save message", err)
	}
	return nil
}

// FindConversation returns messages exchanged between two users, newest first.
func (r *GormMessageRepository) FindConversation(ctx context.Context, userA, userB uuid.UUID, page, limit int) ([]*notification.Message, int64, error) {
	page, limit = normalizePage(page, limit)
	between := func(db *gorm.DB) *gorm.DB {
		return db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&MessageModel{}).Scopes(between).Count(&total).Error; err != nil {
		return nil, 0, translateError("failed to count messages", err)
	}

	var models []MessageModel
	if err := r.db.WithContext(ctx).
		Scopes(between).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, translateError("failed to find conversation", err)
	}
	return toMessageDomains(models), total, nil
}

// FindByBookingID returns all messages tied to a booking, oldest first.
func (r *GormMessageRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*notification.Message, error) {
	var models []MessageModel
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, translateError("failed to find booking messages", err)
	}
	return toMessageDomains(models), nil
}

func toMessageModel(m *notification.Message) MessageModel {
	return MessageModel{
		ID:         m.ID(),
		SenderID:   m.SenderID(),
		ReceiverID: m.ReceiverID(),
		Content:    m.Content(),
		BookingID:  m.BookingID(),
		CreatedAt:  m.CreatedAt(),
	}
}

func toMessageDomains(models []MessageModel) []*notification.Message {
	items := make([]*notification.Message, len(models))
	for i := range models {
		m := &models[i]
		items[i] = notification.ReconstructMessage(m.ID, m.SenderID, m.ReceiverID, m.Content, m.BookingID, m.CreatedAt)
	}
	return items
}
