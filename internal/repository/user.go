package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/redis"
)

// IUserRepository defines the interface for user data operations
type IUserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// UpsertByExternalID inserts the user or refreshes username and image of
	// the row with the same external id. The stored row is written back into user.
	UpsertByExternalID(ctx context.Context, user *model.User) error
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) IUserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpsertByExternalID(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.Assignments(map[string]any{"username": user.Username, "image": user.Image, "updated_at": time.Now().UTC()}),
	}).Create(user).Error
	if err != nil {
		return translate(err)
	}
	stored, err := r.FindByExternalID(ctx, user.ExternalID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

const (
	userCacheKeyPrefix     = "user:id:"
	externalCacheKeyPrefix = "user:ext:"
	userCacheTTL           = 10 * time.Minute
)

// CachedUserRepository is a read-through Redis cache in front of another
// IUserRepository. Cache failures are logged and fall back to the store.
type CachedUserRepository struct {
	IUserRepository
	cache  redis.RedisClient
	logger *zap.Logger
}

func NewCachedUserRepository(inner IUserRepository, cache redis.RedisClient, logger *zap.Logger) IUserRepository {
	return &CachedUserRepository{IUserRepository: inner, cache: cache, logger: logger}
}

func (r *CachedUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.readThrough(ctx, userCacheKeyPrefix+id, func() (*model.User, error) {
		return r.IUserRepository.FindByID(ctx, id)
	})
}

func (r *CachedUserRepository) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.readThrough(ctx, externalCacheKeyPrefix+externalID, func() (*model.User, error) {
		return r.IUserRepository.FindByExternalID(ctx, externalID)
	})
}

func (r *CachedUserRepository) UpsertByExternalID(ctx context.Context, user *model.User) error {
	if err := r.IUserRepository.UpsertByExternalID(ctx, user); err != nil {
		return err
	}
	r.invalidate(ctx, user)
	return nil
}

func (r *CachedUserRepository) readThrough(ctx context.Context, key string, load func() (*model.User, error)) (*model.User, error) {
	// PasswordHash is not serialized, so cached users cannot be used for login.
	var cached cachedUser
	err := r.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached.toModel(), nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		r.logger.Warn("user cache read failed", zap.String("key", key), zap.Error(err))
	}

	user, err := load()
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetJSON(ctx, key, fromModel(user), userCacheTTL); err != nil {
		r.logger.Warn("user cache write failed", zap.String("key", key), zap.Error(err))
	}
	return user, nil
}

func (r *CachedUserRepository) invalidate(ctx context.Context, user *model.User) {
	if err := r.cache.Del(ctx, userCacheKeyPrefix+user.ID, externalCacheKeyPrefix+user.ExternalID); err != nil {
		r.logger.Warn("user cache invalidation failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

type cachedUser struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Image      string    `json:"image"`
	CreatedAt  time.Time `json:"created_at"`
}

func fromModel(u *model.User) cachedUser {
	return cachedUser{ID: u.ID, ExternalID: u.ExternalID, Username: u.Username, Image: u.Image, CreatedAt: u.CreatedAt}
}

func (c cachedUser) toModel() *model.User {
	return &model.User{ID: c.ID, ExternalID: c.ExternalID, Username: c.Username, Image: c.Image, CreatedAt: c.CreatedAt}
}
