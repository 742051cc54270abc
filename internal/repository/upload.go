package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type IUploadRepository interface {
	Create(ctx context.Context, upload *model.Upload) error
	FindByID(ctx context.Context, id string) (*model.Upload, error)
	// Attach marks an unattached upload owned by ownerID as in use. It
	// returns ErrConditionFailed when no such upload exists.
	Attach(ctx context.Context, id, ownerID string, at time.Time) error
	Detach(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) IUploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Create(ctx context.Context, upload *model.Upload) error {
	return translate(r.db.WithContext(ctx).Create(upload).Error)
}

func (r *UploadRepository) FindByID(ctx context.Context, id string) (*model.Upload, error) {
	var upload model.Upload
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&upload).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Upload{}).Error
}

func (r *UploadRepository) Attach(ctx context.Context, id, ownerID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.Upload{}).
		Where("id = ? AND owner_id = ? AND attached_at IS NULL", id, ownerID).
		Update("attached_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (r *UploadRepository) Detach(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Upload{}).Where("id = ?", id).Update("attached_at", nil).Error
}
