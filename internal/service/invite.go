package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// CreateInviteRequest represents a request to create an invite. Both
// limits are optional.
type CreateInviteRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses" binding:"omitempty,min=1"`
}

// InvitePreview is what an invite link shows before joining. Success is
// false, with Message set, when the invite cannot be redeemed.
type InvitePreview struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message,omitempty"`
	Invite    *model.Invite      `json:"invite,omitempty"`
	Server    *ServerView        `json:"server,omitempty"`
	CreatedBy *model.UserProfile `json:"created_by,omitempty"`
}

// IInviteService defines invite validation and redemption
type IInviteService interface {
	Create(ctx context.Context, user *model.User, serverID string, req *CreateInviteRequest) (*model.Invite, error)
	Preview(ctx context.Context, viewer *model.User, inviteID string) (*InvitePreview, error)
	Join(ctx context.Context, user *model.User, inviteID string) (*model.ServerMember, error)
	Remove(ctx context.Context, user *model.User, inviteID string) error
	List(ctx context.Context, user *model.User, serverID string) ([]*model.Invite, error)
}

// InviteService implements IInviteService
type InviteService struct {
	invites repository.IInviteRepository
	members repository.IMemberRepository
	users   repository.IUserRepository
	guard   *Guard
	storage *StorageService
	now     func() time.Time
	notifier
}

// NewInviteService creates a new IInviteService instance
func NewInviteService(
	invites repository.IInviteRepository,
	members repository.IMemberRepository,
	users repository.IUserRepository,
	guard *Guard,
	storage *StorageService,
	publisher events.Publisher,
	logger *zap.Logger,
) IInviteService {
	return &InviteService{
		invites:  invites,
		members:  members,
		users:    users,
		guard:    guard,
		storage:  storage,
		now:      time.Now,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

// validateInvite applies the redemption checks in order: usage limit,
// expiry, then existing membership when the caller is known.
func validateInvite(invite *model.Invite, now time.Time, alreadyMember bool) error {
	if invite == nil {
		return ErrInviteNotFound
	}
	if invite.Exhausted() {
		return ErrInviteExhausted
	}
	if invite.ExpiredAt(now) {
		return ErrInviteExpired
	}
	if alreadyMember {
		return ErrAlreadyMember
	}
	return nil
}

func (s *InviteService) Create(ctx context.Context, user *model.User, serverID string, req *CreateInviteRequest) (*model.Invite, error) {
	if _, err := s.guard.AssertServerMember(ctx, user, serverID); err != nil {
		return nil, err
	}
	if req.MaxUses != nil && *req.MaxUses < 1 {
		return nil, invalid("max_uses", "must be at least 1")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, invalid("expires_at", "must be in the future")
	}

	invite := &model.Invite{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		CreatedBy: user.ID,
		ExpiresAt: req.ExpiresAt,
		MaxUses:   req.MaxUses,
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}
	s.notify(ctx, events.InviteCreated, events.ServerTopic(serverID), fields{"id": invite.ID, "server_id": serverID})
	return invite, nil
}

// Preview never fails on domain errors: an unusable invite is reported
// through Success and Message. viewer may be nil.
func (s *InviteService) Preview(ctx context.Context, viewer *model.User, inviteID string) (*InvitePreview, error) {
	invite, err := s.find(ctx, inviteID)
	if err == nil {
		err = s.validate(ctx, viewer, invite)
	}
	if err != nil {
		if isDomainError(err) {
			return &InvitePreview{Success: false, Message: err.Error()}, nil
		}
		return nil, err
	}

	server, err := s.guard.loadServer(ctx, invite.ServerID)
	if err != nil {
		if errors.Is(err, ErrServerNotFound) {
			return &InvitePreview{Success: false, Message: ErrInviteNotFound.Error()}, nil
		}
		return nil, err
	}
	preview := &InvitePreview{
		Success: true,
		Invite:  invite,
		Server:  &ServerView{Server: server, IconURL: s.storage.url(ctx, server.IconID)},
	}
	creator, err := s.users.FindByID(ctx, invite.CreatedBy)
	switch {
	case err == nil:
		profile := creator.Profile()
		preview.CreatedBy = &profile
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to find invite creator: %w", err)
	}
	return preview, nil
}

// Join redeems the invite. The member insert and the guarded use-count
// increment share a transaction, so uses never passes max_uses.
func (s *InviteService) Join(ctx context.Context, user *model.User, inviteID string) (*model.ServerMember, error) {
	invite, err := s.find(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, user, invite); err != nil {
		return nil, err
	}

	member := &model.ServerMember{ServerID: invite.ServerID, UserID: user.ID}
	err = s.invites.Redeem(ctx, invite.ID, member, s.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrAlreadyMember
	case errors.Is(err, repository.ErrConditionFailed):
		// Lost a race; report whatever now blocks the redemption.
		current, ferr := s.find(ctx, inviteID)
		if ferr != nil {
			return nil, ferr
		}
		if verr := validateInvite(current, s.now(), false); verr != nil {
			return nil, verr
		}
		return nil, ErrInviteExhausted
	default:
		return nil, fmt.Errorf("failed to redeem invite: %w", err)
	}

	s.notify(ctx, events.MemberJoined, events.ServerTopic(invite.ServerID), fields{"server_id": invite.ServerID, "user_id": user.ID})
	s.notify(ctx, events.MemberJoined, events.UserTopic(user.ID), fields{"server_id": invite.ServerID, "user_id": user.ID})
	return member, nil
}

// Remove is allowed for the invite's creator and the server owner.
func (s *InviteService) Remove(ctx context.Context, user *model.User, inviteID string) error {
	invite, err := s.find(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite.CreatedBy != user.ID {
		if _, err := s.guard.AssertServerOwner(ctx, user, invite.ServerID); err != nil {
			return err
		}
	}
	if err := s.invites.Delete(ctx, inviteID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFound
		}
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	s.notify(ctx, events.InviteDeleted, events.ServerTopic(invite.ServerID), fields{"id": inviteID, "server_id": invite.ServerID})
	return nil
}

func (s *InviteService) List(ctx context.Context, user *model.User, serverID string) ([]*model.Invite, error) {
	if _, err := s.guard.AssertServerOwner(ctx, user, serverID); err != nil {
		return nil, err
	}
	invites, err := s.invites.ListByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return invites, nil
}

func (s *InviteService) find(ctx context.Context, id string) (*model.Invite, error) {
	invite, err := s.invites.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}
	return invite, nil
}

func (s *InviteService) validate(ctx context.Context, viewer *model.User, invite *model.Invite) error {
	alreadyMember := false
	if viewer != nil && !invite.Exhausted() && !invite.ExpiredAt(s.now()) {
		_, err := s.members.Find(ctx, invite.ServerID, viewer.ID)
		switch {
		case err == nil:
			alreadyMember = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check membership: %w", err)
		}
	}
	return validateInvite(invite, s.now(), alreadyMember)
}

func isDomainError(err error) bool {
	for _, target := range []error{ErrInviteNotFound, ErrInviteExhausted, ErrInviteExpired, ErrAlreadyMember} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
