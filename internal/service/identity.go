package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/repository"
	"github.com/Gopher0727/Guildhall/middleware/jwt"
)

// localSubjectPrefix marks external ids minted for locally registered users.
const localSubjectPrefix = "local:"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// RegisterRequest represents a local user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=8,max=64"`
}

// LoginRequest represents a local login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a bearer token and the user it was issued for
type AuthResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// IIdentityService maps authenticated sessions to persisted users
type IIdentityService interface {
	// Sync creates or refreshes the user described by verified token claims.
	Sync(ctx context.Context, claims *jwt.Claims) (*model.User, error)
	// Resolve returns the user whose external id is subject.
	Resolve(ctx context.Context, subject string) (*model.User, error)
	// Authenticate parses a raw bearer token and resolves its user.
	Authenticate(ctx context.Context, token string) (*model.User, error)
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, token string) (string, error)
}

// IdentityService implements IIdentityService
type IdentityService struct {
	users        repository.IUserRepository
	tokenManager *jwt.TokenManager
	localEnabled bool
}

// NewIdentityService creates a new IIdentityService instance
func NewIdentityService(users repository.IUserRepository, tokenManager *jwt.TokenManager, localEnabled bool) IIdentityService {
	return &IdentityService{users: users, tokenManager: tokenManager, localEnabled: localEnabled}
}

func (s *IdentityService) Sync(ctx context.Context, claims *jwt.Claims) (*model.User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	username := strings.TrimSpace(claims.Username)
	if !usernamePattern.MatchString(username) {
		return nil, invalid("username", "must be 3-32 letters, digits or underscores")
	}

	user := &model.User{
		ExternalID: claims.Subject,
		Username:   username,
		Image:      claims.Image,
	}
	if err := s.users.UpsertByExternalID(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to sync user: %w", err)
	}
	return user, nil
}

func (s *IdentityService) Resolve(ctx context.Context, subject string) (*model.User, error) {
	if subject == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.users.FindByExternalID(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return user, nil
}

func (s *IdentityService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokenManager.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return s.Resolve(ctx, claims.Subject)
}

// Register creates a local account and signs a token for it. The external
// id is generated, so local users look like any other identity afterwards.
func (s *IdentityService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if !s.localEnabled {
		return nil, ErrLocalAuthDisabled
	}
	if !usernamePattern.MatchString(req.Username) {
		return nil, invalid("username", "must be 3-32 letters, digits or underscores")
	}

	existing, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &model.User{
		ExternalID:   localSubjectPrefix + uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hashed,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.issue(user)
}

func (s *IdentityService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if !s.localEnabled {
		return nil, ErrLocalAuthDisabled
	}
	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user.PasswordHash == "" || verifyPassword(user.PasswordHash, req.Password) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *IdentityService) Refresh(_ context.Context, token string) (string, error) {
	refreshed, err := s.tokenManager.RefreshToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrRefreshTooEarly) {
			return "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return refreshed, nil
}

func (s *IdentityService) issue(user *model.User) (*AuthResponse, error) {
	token, err := s.tokenManager.GenerateToken(user.ExternalID, user.Username, user.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResponse{Token: token, User: user}, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
