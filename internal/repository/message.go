package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type IMessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	Delete(ctx context.Context, id int64) error
	// ListBefore returns up to limit messages of the conversation with id
	// below before (0 means no bound), newest first.
	ListBefore(ctx context.Context, conv model.Conversation, before int64, limit int) ([]*model.Message, error)
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return translate(r.db.WithContext(ctx).Create(message).Error)
}

func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MessageRepository) ListBefore(ctx context.Context, conv model.Conversation, before int64, limit int) ([]*model.Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ?", conv.Kind, conv.ID)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var messages []*model.Message
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}
