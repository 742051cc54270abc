package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

// MemberWithUser is a membership row joined with its user profile.
type MemberWithUser struct {
	model.ServerMember
	Username string
	Image    string
}

type IMemberRepository interface {
	Create(ctx context.Context, member *model.ServerMember) error
	Find(ctx context.Context, serverID, userID string) (*model.ServerMember, error)
	Delete(ctx context.Context, serverID, userID string) error
	ListWithUsers(ctx context.Context, serverID string) ([]*MemberWithUser, error)
	ListServerIDs(ctx context.Context, userID string) ([]string, error)
	UpdateCallState(ctx context.Context, serverID, userID string, audio, video bool) (*model.ServerMember, error)
}

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) IMemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *model.ServerMember) error {
	if member.ID == "" {
		member.ID = newID()
	}
	return translate(r.db.WithContext(ctx).Create(member).Error)
}

func (r *MemberRepository) Find(ctx context.Context, serverID, userID string) (*model.ServerMember, error) {
	var member model.ServerMember
	err := r.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) Delete(ctx context.Context, serverID, userID string) error {
	res := r.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).Delete(&model.ServerMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MemberRepository) ListWithUsers(ctx context.Context, serverID string) ([]*MemberWithUser, error) {
	var members []*MemberWithUser
	err := r.db.WithContext(ctx).
		Table("server_members").
		Select("server_members.*, users.username, users.image").
		Joins("JOIN users ON users.id = server_members.user_id").
		Where("server_members.server_id = ?", serverID).
		Order("server_members.joined_at").
		Scan(&members).Error
	return members, err
}

func (r *MemberRepository) ListServerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.ServerMember{}).Where("user_id = ?", userID).Pluck("server_id", &ids).Error
	return ids, err
}

func (r *MemberRepository) UpdateCallState(ctx context.Context, serverID, userID string, audio, video bool) (*model.ServerMember, error) {
	res := r.db.WithContext(ctx).Model(&model.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Updates(map[string]any{"audio_enabled": audio, "video_enabled": video})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.Find(ctx, serverID, userID)
}
