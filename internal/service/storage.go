package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/objectstore"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// UploadURL is a one-shot presigned PUT for a new storage id
type UploadURL struct {
	StorageID string `json:"storage_id"`
	URL       string `json:"url"`
}

// IStorageService hands out upload slots and removes uploaded blobs
type IStorageService interface {
	GenerateUploadURL(ctx context.Context, user *model.User) (*UploadURL, error)
	Remove(ctx context.Context, user *model.User, storageID string) error
}

// StorageService implements IStorageService. The unexported helpers are
// shared with the server and message services. A nil store disables uploads
// and leaves attachment URLs empty.
type StorageService struct {
	uploads      repository.IUploadRepository
	store        objectstore.Store
	uploadTTL    time.Duration
	downloadTTL  time.Duration
	processIcons bool
	logger       *zap.Logger
	now          func() time.Time
}

func NewStorageService(uploads repository.IUploadRepository, store objectstore.Store, cfg *config.MinioConfig, logger *zap.Logger) *StorageService {
	uploadTTL := time.Duration(cfg.UploadTTLMinutes) * time.Minute
	if uploadTTL <= 0 {
		uploadTTL = 15 * time.Minute
	}
	downloadTTL := time.Duration(cfg.DownloadTTLMinutes) * time.Minute
	if downloadTTL <= 0 {
		downloadTTL = time.Hour
	}
	return &StorageService{
		uploads:      uploads,
		store:        store,
		uploadTTL:    uploadTTL,
		downloadTTL:  downloadTTL,
		processIcons: cfg.ProcessIcons,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *StorageService) GenerateUploadURL(ctx context.Context, user *model.User) (*UploadURL, error) {
	if s.store == nil {
		return nil, ErrStorageNotConfigured
	}
	upload := &model.Upload{ID: uuid.NewString(), OwnerID: user.ID}
	url, err := s.store.PresignedPut(ctx, upload.ID, s.uploadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}
	return &UploadURL{StorageID: upload.ID, URL: url}, nil
}

func (s *StorageService) Remove(ctx context.Context, user *model.User, storageID string) error {
	upload, err := s.uploads.FindByID(ctx, storageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUploadNotFound
		}
		return fmt.Errorf("failed to find upload: %w", err)
	}
	if upload.OwnerID != user.ID {
		return ErrNotOwner
	}
	if upload.AttachedAt != nil {
		return ErrUploadInUse
	}
	if err := s.uploads.Delete(ctx, storageID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	s.purge(ctx, storageID)
	return nil
}

// claim marks storageID as attached. It fails with ErrAttachmentNotFound
// unless storageID was issued to user, and with ErrUploadInUse when a
// message or icon already refers to it.
func (s *StorageService) claim(ctx context.Context, user *model.User, storageID string) error {
	err := s.uploads.Attach(ctx, storageID, user.ID, s.now().UTC())
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrConditionFailed) {
		return fmt.Errorf("failed to attach upload: %w", err)
	}
	upload, err := s.uploads.FindByID(ctx, storageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAttachmentNotFound
		}
		return fmt.Errorf("failed to find upload: %w", err)
	}
	if upload.OwnerID != user.ID {
		return ErrAttachmentNotFound
	}
	return ErrUploadInUse
}

// release undoes claim after the referring row failed to commit.
func (s *StorageService) release(ctx context.Context, storageID string) {
	if err := s.uploads.Detach(ctx, storageID); err != nil {
		s.logger.Warn("failed to release upload", zap.String("storage_id", storageID), zap.Error(err))
	}
}

// url returns a presigned GET for storageID, or "" when it cannot be signed.
func (s *StorageService) url(ctx context.Context, storageID *string) string {
	if storageID == nil || *storageID == "" || s.store == nil {
		return ""
	}
	url, err := s.store.PresignedGet(ctx, *storageID, s.downloadTTL)
	if err != nil {
		s.logger.Warn("failed to presign download", zap.String("storage_id", *storageID), zap.Error(err))
		return ""
	}
	return url
}

// discard removes both the upload row and the blob. Failures are logged.
func (s *StorageService) discard(ctx context.Context, storageID string) {
	if err := s.uploads.Delete(ctx, storageID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("failed to delete upload row", zap.String("storage_id", storageID), zap.Error(err))
	}
	s.purge(ctx, storageID)
}

// purge removes blobs whose rows are already gone. Failures are logged.
func (s *StorageService) purge(ctx context.Context, storageIDs ...string) {
	if s.store == nil {
		return
	}
	for _, id := range storageIDs {
		if err := s.store.Remove(ctx, id); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
			s.logger.Warn("failed to remove blob", zap.String("storage_id", id), zap.Error(err))
		}
	}
}

// normalizeIcon rewrites an uploaded server icon in place as a rounded
// 128px WebP when icon processing is enabled.
func (s *StorageService) normalizeIcon(ctx context.Context, storageID string) error {
	if !s.processIcons || s.store == nil {
		return nil
	}
	src, err := s.store.Get(ctx, storageID)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return ErrAttachmentNotFound
		}
		return fmt.Errorf("failed to read icon: %w", err)
	}
	defer src.Close()

	out, err := objectstore.NormalizeIcon(src)
	if err != nil {
		if errors.Is(err, objectstore.ErrIconTooLarge) {
			return invalid("icon", "exceeds 8 MiB")
		}
		return fmt.Errorf("%w: icon is not a readable image", ErrValidation)
	}
	data := out.Bytes()
	if err := s.store.Put(ctx, storageID, bytes.NewReader(data), int64(len(data)), objectstore.IconContentType); err != nil {
		return fmt.Errorf("failed to store icon: %w", err)
	}
	return nil
}
