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

// OpenDirectMessageRequest names the other participant
type OpenDirectMessageRequest struct {
	UserID string `json:"user_id" binding:"required,notblank"`
}

// DirectMessageView is a conversation seen by one participant
type DirectMessageView struct {
	*model.DirectMessage
	Other model.UserProfile `json:"other"`
}

// IDirectMessageService defines direct message operations
type IDirectMessageService interface {
	Open(ctx context.Context, user *model.User, otherUserID string) (*DirectMessageView, error)
	List(ctx context.Context, user *model.User) ([]*DirectMessageView, error)
	Get(ctx context.Context, user *model.User, dmID string) (*DirectMessageView, error)
}

// DirectMessageService implements IDirectMessageService
type DirectMessageService struct {
	dms   repository.IDirectMessageRepository
	users repository.IUserRepository
	guard *Guard
	notifier
}

// NewDirectMessageService creates a new IDirectMessageService instance
func NewDirectMessageService(dms repository.IDirectMessageRepository, users repository.IUserRepository, guard *Guard, publisher events.Publisher, logger *zap.Logger) IDirectMessageService {
	return &DirectMessageService{
		dms:      dms,
		users:    users,
		guard:    guard,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

// Open returns the conversation between user and otherUserID, creating it
// on first use.
func (s *DirectMessageService) Open(ctx context.Context, user *model.User, otherUserID string) (*DirectMessageView, error) {
	if otherUserID == user.ID {
		return nil, ErrCannotMessageSelf
	}
	other, err := s.users.FindByID(ctx, otherUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	dm, err := s.dms.FindByPair(ctx, user.ID, other.ID)
	if err == nil {
		return &DirectMessageView{DirectMessage: dm, Other: other.Profile()}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find direct message: %w", err)
	}

	dm, err = s.dms.Create(ctx, user.ID, other.ID)
	if errors.Is(err, repository.ErrDuplicate) {
		dm, err = s.dms.FindByPair(ctx, user.ID, other.ID)
	} else if err == nil {
		for _, id := range []string{user.ID, other.ID} {
			s.notify(ctx, events.DirectMessageCreated, events.UserTopic(id), fields{"id": dm.ID})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open direct message: %w", err)
	}
	return &DirectMessageView{DirectMessage: dm, Other: other.Profile()}, nil
}

func (s *DirectMessageService) List(ctx context.Context, user *model.User) ([]*DirectMessageView, error) {
	dms, err := s.dms.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct messages: %w", err)
	}
	otherIDs := make([]string, 0, len(dms))
	for _, dm := range dms {
		otherIDs = append(otherIDs, otherParticipant(dm, user.ID))
	}
	others := map[string]*model.User{}
	if len(otherIDs) > 0 {
		if others, err = s.users.FindByIDs(ctx, otherIDs); err != nil {
			return nil, fmt.Errorf("failed to load participants: %w", err)
		}
	}
	views := make([]*DirectMessageView, 0, len(dms))
	for _, dm := range dms {
		other, ok := others[otherParticipant(dm, user.ID)]
		if !ok {
			continue
		}
		views = append(views, &DirectMessageView{DirectMessage: dm, Other: other.Profile()})
	}
	return views, nil
}

func (s *DirectMessageService) Get(ctx context.Context, user *model.User, dmID string) (*DirectMessageView, error) {
	if err := s.guard.AssertConversationMember(ctx, user, model.DMConversation(dmID)); err != nil {
		return nil, err
	}
	dm, err := s.guard.loadDM(ctx, dmID)
	if err != nil {
		return nil, err
	}
	other, err := s.users.FindByID(ctx, otherParticipant(dm, user.ID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &DirectMessageView{DirectMessage: dm, Other: other.Profile()}, nil
}

func otherParticipant(dm *model.DirectMessage, userID string) string {
	a, b := model.PairMembers(dm.PairKey)
	if a == userID {
		return b
	}
	return a
}
