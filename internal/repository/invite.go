package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type IInviteRepository interface {
	Create(ctx context.Context, invite *model.Invite) error
	FindByID(ctx context.Context, id string) (*model.Invite, error)
	ListByServer(ctx context.Context, serverID string) ([]*model.Invite, error)
	Delete(ctx context.Context, id string) error
	// Redeem inserts member and bumps the invite's use count in one
	// transaction. It returns ErrDuplicate if the user is already a member
	// and ErrConditionFailed if the invite is exhausted or expired at now.
	Redeem(ctx context.Context, inviteID string, member *model.ServerMember, now time.Time) error
}

type InviteRepository struct {
	db *gorm.DB
}

func NewInviteRepository(db *gorm.DB) IInviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) Create(ctx context.Context, invite *model.Invite) error {
	if invite.ID == "" {
		invite.ID = newID()
	}
	return translate(r.db.WithContext(ctx).Create(invite).Error)
}

func (r *InviteRepository) FindByID(ctx context.Context, id string) (*model.Invite, error) {
	var invite model.Invite
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invite).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *InviteRepository) ListByServer(ctx context.Context, serverID string) ([]*model.Invite, error) {
	var invites []*model.Invite
	err := r.db.WithContext(ctx).Where("server_id = ?", serverID).Order("created_at DESC").Find(&invites).Error
	return invites, err
}

func (r *InviteRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Invite{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *InviteRepository) Redeem(ctx context.Context, inviteID string, member *model.ServerMember, now time.Time) error {
	if member.ID == "" {
		member.ID = newID()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(member).Error; err != nil {
			return translate(err)
		}
		res := tx.Model(&model.Invite{}).
			Where("id = ?", inviteID).
			Where("max_uses IS NULL OR uses < max_uses").
			Where("expires_at IS NULL OR expires_at >= ?", now).
			UpdateColumn("uses", gorm.Expr("uses + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		return nil
	})
}
