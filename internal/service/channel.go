package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// CreateChannelRequest represents a request to add a channel to a server
type CreateChannelRequest struct {
	Name string `json:"name" binding:"required,notblank,max=100"`
}

// IChannelService defines the channel directory operations
type IChannelService interface {
	Create(ctx context.Context, user *model.User, serverID, name string) (*model.Channel, error)
	Remove(ctx context.Context, user *model.User, serverID, channelID string) error
	List(ctx context.Context, user *model.User, serverID string) ([]*model.Channel, error)
	Get(ctx context.Context, user *model.User, channelID string) (*model.Channel, error)
}

// ChannelService implements IChannelService
type ChannelService struct {
	channels repository.IChannelRepository
	guard    *Guard
	storage  *StorageService
	notifier
}

// NewChannelService creates a new IChannelService instance
func NewChannelService(channels repository.IChannelRepository, guard *Guard, storage *StorageService, publisher events.Publisher, logger *zap.Logger) IChannelService {
	return &ChannelService{
		channels: channels,
		guard:    guard,
		storage:  storage,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

func (s *ChannelService) Create(ctx context.Context, user *model.User, serverID, name string) (*model.Channel, error) {
	if _, err := s.guard.AssertServerOwner(ctx, user, serverID); err != nil {
		return nil, err
	}
	name, err := normalizeName("name", name, 100)
	if err != nil {
		return nil, err
	}
	channel := &model.Channel{ID: uuid.NewString(), Name: name, ServerID: serverID}
	if err := s.channels.Create(ctx, channel); err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	s.notify(ctx, events.ChannelCreated, events.ServerTopic(serverID), channel)
	return channel, nil
}

// Remove deletes a non-default channel of a server the caller owns, along
// with its messages and typing indicators.
func (s *ChannelService) Remove(ctx context.Context, user *model.User, serverID, channelID string) error {
	server, err := s.guard.AssertServerOwner(ctx, user, serverID)
	if err != nil {
		return err
	}
	if server.DefaultChannelID == channelID {
		return ErrDefaultChannelProtected
	}
	channel, err := s.guard.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.ServerID != serverID {
		return ErrChannelNotFound
	}

	attachments, err := s.channels.DeleteCascade(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChannelNotFound
		}
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	s.storage.purge(ctx, attachments...)
	s.notify(ctx, events.ChannelDeleted, events.ServerTopic(serverID), fields{"id": channelID, "server_id": serverID})
	return nil
}

func (s *ChannelService) List(ctx context.Context, user *model.User, serverID string) ([]*model.Channel, error) {
	if _, err := s.guard.AssertServerMember(ctx, user, serverID); err != nil {
		return nil, err
	}
	channels, err := s.channels.ListByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

func (s *ChannelService) Get(ctx context.Context, user *model.User, channelID string) (*model.Channel, error) {
	channel, err := s.guard.loadChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.AssertServerMember(ctx, user, channel.ServerID); err != nil {
		return nil, err
	}
	return channel, nil
}
