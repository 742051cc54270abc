package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/pkg/media"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// CallStateRequest carries the member's audio and video toggles
type CallStateRequest struct {
	Audio *bool `json:"audio" binding:"required"`
	Video *bool `json:"video" binding:"required"`
}

// CallToken is a media-server access token for a server's room
type CallToken struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

// RoomTokenIssuer signs media-server room tokens
type RoomTokenIssuer interface {
	RoomToken(identity, room string) (string, error)
}

// ICallService defines voice/video call operations
type ICallService interface {
	Token(ctx context.Context, user *model.User, serverID string) (*CallToken, error)
	SetMemberState(ctx context.Context, user *model.User, serverID string, audio, video bool) (*model.ServerMember, error)
}

// CallService implements ICallService
type CallService struct {
	members repository.IMemberRepository
	guard   *Guard
	tokens  RoomTokenIssuer
	notifier
}

// NewCallService creates a new ICallService instance
func NewCallService(members repository.IMemberRepository, guard *Guard, tokens RoomTokenIssuer, publisher events.Publisher, logger *zap.Logger) ICallService {
	return &CallService{
		members:  members,
		guard:    guard,
		tokens:   tokens,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

// Token issues a room token where the room is the server id.
func (s *CallService) Token(ctx context.Context, user *model.User, serverID string) (*CallToken, error) {
	if _, err := s.guard.AssertServerMember(ctx, user, serverID); err != nil {
		return nil, err
	}
	token, err := s.tokens.RoomToken(user.Username, serverID)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			return nil, ErrMediaNotConfigured
		}
		return nil, fmt.Errorf("failed to issue media token: %w", err)
	}
	return &CallToken{Token: token, Room: serverID}, nil
}

func (s *CallService) SetMemberState(ctx context.Context, user *model.User, serverID string, audio, video bool) (*model.ServerMember, error) {
	if _, err := s.guard.AssertServerMember(ctx, user, serverID); err != nil {
		return nil, err
	}
	member, err := s.members.UpdateCallState(ctx, serverID, user.ID, audio, video)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to update call state: %w", err)
	}
	s.notify(ctx, events.MemberUpdated, events.ServerTopic(serverID), fields{
		"server_id":     serverID,
		"user_id":       user.ID,
		"audio_enabled": member.AudioEnabled,
		"video_enabled": member.VideoEnabled,
	})
	return member, nil
}
