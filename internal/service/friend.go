package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// FriendRequest represents a request to befriend a user by name
type FriendRequest struct {
	Username string `json:"username" binding:"required,notblank"`
}

// RespondFriendRequest answers an incoming request
type RespondFriendRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// FriendView is a friendship or request seen by one side
type FriendView struct {
	*model.Friend
	User model.UserProfile `json:"user"`
}

// IFriendService defines friend request operations
type IFriendService interface {
	Request(ctx context.Context, user *model.User, username string) (*FriendView, error)
	Respond(ctx context.Context, user *model.User, requestID string, accept bool) (*FriendView, error)
	List(ctx context.Context, user *model.User) ([]*FriendView, error)
	Pending(ctx context.Context, user *model.User) ([]*FriendView, error)
}

// FriendService implements IFriendService
type FriendService struct {
	friends repository.IFriendRepository
	users   repository.IUserRepository
	notifier
}

// NewFriendService creates a new IFriendService instance
func NewFriendService(friends repository.IFriendRepository, users repository.IUserRepository, publisher events.Publisher, logger *zap.Logger) IFriendService {
	return &FriendService{
		friends:  friends,
		users:    users,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

func (s *FriendService) Request(ctx context.Context, user *model.User, username string) (*FriendView, error) {
	target, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if target.ID == user.ID {
		return nil, ErrCannotBefriendSelf
	}

	_, err = s.friends.FindBetween(ctx, user.ID, target.ID)
	if err == nil {
		return nil, ErrAlreadyRequested
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check friend request: %w", err)
	}

	friend := &model.Friend{RequesterID: user.ID, AddresseeID: target.ID, Status: model.FriendPending}
	if err := s.friends.Create(ctx, friend); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyRequested
		}
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}
	s.notifyBoth(ctx, friend)
	return &FriendView{Friend: friend, User: target.Profile()}, nil
}

// Respond lets the addressee accept or reject a pending request.
func (s *FriendService) Respond(ctx context.Context, user *model.User, requestID string, accept bool) (*FriendView, error) {
	friend, err := s.friends.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, fmt.Errorf("failed to find friend request: %w", err)
	}
	if friend.AddresseeID != user.ID {
		return nil, ErrNotAddressee
	}
	if friend.Status != model.FriendPending {
		return nil, ErrAlreadyResponded
	}

	status := model.FriendRejected
	if accept {
		status = model.FriendAccepted
	}
	if err := s.friends.UpdateStatus(ctx, friend.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update friend request: %w", err)
	}
	friend.Status = status

	requester, err := s.users.FindByID(ctx, friend.RequesterID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find requester: %w", err)
	}
	s.notifyBoth(ctx, friend)
	return &FriendView{Friend: friend, User: requester.Profile()}, nil
}

func (s *FriendService) List(ctx context.Context, user *model.User) ([]*FriendView, error) {
	friends, err := s.friends.ListAccepted(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	return s.views(ctx, user, friends)
}

func (s *FriendService) Pending(ctx context.Context, user *model.User) ([]*FriendView, error) {
	friends, err := s.friends.ListPendingFor(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	return s.views(ctx, user, friends)
}

func (s *FriendService) views(ctx context.Context, user *model.User, friends []*model.Friend) ([]*FriendView, error) {
	views := make([]*FriendView, 0, len(friends))
	if len(friends) == 0 {
		return views, nil
	}
	ids := make([]string, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.Other(user.ID))
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, f := range friends {
		if other, ok := users[f.Other(user.ID)]; ok {
			views = append(views, &FriendView{Friend: f, User: other.Profile()})
		}
	}
	return views, nil
}

func (s *FriendService) notifyBoth(ctx context.Context, friend *model.Friend) {
	for _, id := range []string{friend.RequesterID, friend.AddresseeID} {
		s.notify(ctx, events.FriendUpdated, events.UserTopic(id), fields{"id": friend.ID, "status": friend.Status})
	}
}
