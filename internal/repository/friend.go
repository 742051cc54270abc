package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type IFriendRepository interface {
	Create(ctx context.Context, friend *model.Friend) error
	FindByID(ctx context.Context, id string) (*model.Friend, error)
	// FindBetween returns the request linking a and b in either direction.
	FindBetween(ctx context.Context, a, b string) (*model.Friend, error)
	UpdateStatus(ctx context.Context, id string, status model.FriendStatus) error
	ListAccepted(ctx context.Context, userID string) ([]*model.Friend, error)
	ListPendingFor(ctx context.Context, userID string) ([]*model.Friend, error)
}

type FriendRepository struct {
	db *gorm.DB
}

func NewFriendRepository(db *gorm.DB) IFriendRepository {
	return &FriendRepository{db: db}
}

func (r *FriendRepository) Create(ctx context.Context, friend *model.Friend) error {
	if friend.ID == "" {
		friend.ID = newID()
	}
	return translate(r.db.WithContext(ctx).Create(friend).Error)
}

func (r *FriendRepository) FindByID(ctx context.Context, id string) (*model.Friend, error) {
	var friend model.Friend
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&friend).Error; err != nil {
		return nil, err
	}
	return &friend, nil
}

func (r *FriendRepository) FindBetween(ctx context.Context, a, b string) (*model.Friend, error) {
	var friend model.Friend
	err := r.db.WithContext(ctx).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", a, b, b, a).
		First(&friend).Error
	if err != nil {
		return nil, err
	}
	return &friend, nil
}

func (r *FriendRepository) UpdateStatus(ctx context.Context, id string, status model.FriendStatus) error {
	return r.db.WithContext(ctx).Model(&model.Friend{}).Where("id = ?", id).Update("status", status).Error
}

func (r *FriendRepository) ListAccepted(ctx context.Context, userID string) ([]*model.Friend, error) {
	var friends []*model.Friend
	err := r.db.WithContext(ctx).
		Where("status = ? AND (requester_id = ? OR addressee_id = ?)", model.FriendAccepted, userID, userID).
		Order("updated_at DESC").
		Find(&friends).Error
	return friends, err
}

func (r *FriendRepository) ListPendingFor(ctx context.Context, userID string) ([]*model.Friend, error) {
	var friends []*model.Friend
	err := r.db.WithContext(ctx).
		Where("status = ? AND addressee_id = ?", model.FriendPending, userID).
		Order("created_at DESC").
		Find(&friends).Error
	return friends, err
}
