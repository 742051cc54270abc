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

const defaultChannelName = "general"

// CreateServerRequest represents a request to create a new server
type CreateServerRequest struct {
	Name   string  `json:"name" binding:"required,notblank,max=100"`
	IconID *string `json:"icon_id"`
}

// ServerView is a server with a readable icon URL
type ServerView struct {
	*model.Server
	IconURL string `json:"icon_url,omitempty"`
}

// CreateServerResult is returned by Create
type CreateServerResult struct {
	Server         *ServerView    `json:"server"`
	DefaultChannel *model.Channel `json:"default_channel"`
}

// MemberView is one server member with call toggles
type MemberView struct {
	model.UserProfile
	AudioEnabled bool      `json:"audio_enabled"`
	VideoEnabled bool      `json:"video_enabled"`
	JoinedAt     time.Time `json:"joined_at"`
	IsOwner      bool      `json:"is_owner"`
}

// IServerService defines the interface for server management operations
type IServerService interface {
	List(ctx context.Context, user *model.User) ([]*ServerView, error)
	Get(ctx context.Context, user *model.User, serverID string) (*ServerView, error)
	Members(ctx context.Context, user *model.User, serverID string) ([]*MemberView, error)
	Create(ctx context.Context, user *model.User, req *CreateServerRequest) (*CreateServerResult, error)
	Remove(ctx context.Context, user *model.User, serverID string) error
	Leave(ctx context.Context, user *model.User, serverID string) error
}

// ServerService implements IServerService
type ServerService struct {
	servers repository.IServerRepository
	members repository.IMemberRepository
	guard   *Guard
	storage *StorageService
	notifier
}

// NewServerService creates a new IServerService instance
func NewServerService(
	servers repository.IServerRepository,
	members repository.IMemberRepository,
	guard *Guard,
	storage *StorageService,
	publisher events.Publisher,
	logger *zap.Logger,
) IServerService {
	return &ServerService{
		servers:  servers,
		members:  members,
		guard:    guard,
		storage:  storage,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

// List returns the servers user belongs to. Servers that fail to load are
// skipped.
func (s *ServerService) List(ctx context.Context, user *model.User) ([]*ServerView, error) {
	ids, err := s.members.ListServerIDs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	if len(ids) == 0 {
		return []*ServerView{}, nil
	}
	servers, err := s.servers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}
	views := make([]*ServerView, 0, len(servers))
	for _, server := range servers {
		views = append(views, s.view(ctx, server))
	}
	return views, nil
}

func (s *ServerService) Get(ctx context.Context, user *model.User, serverID string) (*ServerView, error) {
	if _, err := s.guard.AssertServerMember(ctx, user, serverID); err != nil {
		return nil, err
	}
	server, err := s.guard.loadServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, server), nil
}

func (s *ServerService) Members(ctx context.Context, user *model.User, serverID string) ([]*MemberView, error) {
	if _, err := s.guard.AssertServerMember(ctx, user, serverID); err != nil {
		return nil, err
	}
	server, err := s.guard.loadServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	rows, err := s.members.ListWithUsers(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	views := make([]*MemberView, 0, len(rows))
	for _, row := range rows {
		views = append(views, &MemberView{
			UserProfile:  model.UserProfile{ID: row.UserID, Username: row.Username, Image: row.Image},
			AudioEnabled: row.AudioEnabled,
			VideoEnabled: row.VideoEnabled,
			JoinedAt:     row.JoinedAt,
			IsOwner:      row.UserID == server.OwnerID,
		})
	}
	return views, nil
}

// Create writes the server, its "general" channel and the owner's
// membership in one transaction.
func (s *ServerService) Create(ctx context.Context, user *model.User, req *CreateServerRequest) (*CreateServerResult, error) {
	name, err := normalizeName("name", req.Name, 100)
	if err != nil {
		return nil, err
	}
	if req.IconID != nil && *req.IconID != "" {
		if err := s.storage.claim(ctx, user, *req.IconID); err != nil {
			return nil, err
		}
		if err := s.storage.normalizeIcon(ctx, *req.IconID); err != nil {
			s.storage.release(context.WithoutCancel(ctx), *req.IconID)
			return nil, err
		}
	} else {
		req.IconID = nil
	}

	server := &model.Server{ID: uuid.NewString(), Name: name, IconID: req.IconID, OwnerID: user.ID}
	channel := &model.Channel{ID: uuid.NewString(), Name: defaultChannelName, ServerID: server.ID}
	owner := &model.ServerMember{ServerID: server.ID, UserID: user.ID}
	server.DefaultChannelID = channel.ID

	if err := s.servers.CreateWithDefaultChannel(ctx, server, channel, owner); err != nil {
		if server.IconID != nil {
			s.storage.release(context.WithoutCancel(ctx), *server.IconID)
		}
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	s.notify(ctx, events.MemberJoined, events.UserTopic(user.ID), fields{"server_id": server.ID, "user_id": user.ID})

	return &CreateServerResult{Server: s.view(ctx, server), DefaultChannel: channel}, nil
}

// Remove deletes the server and everything in it. Blobs are purged after
// the transaction commits.
func (s *ServerService) Remove(ctx context.Context, user *model.User, serverID string) error {
	if _, err := s.guard.AssertServerOwner(ctx, user, serverID); err != nil {
		return err
	}
	storageIDs, err := s.servers.DeleteCascade(ctx, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrServerNotFound
		}
		return fmt.Errorf("failed to delete server: %w", err)
	}
	s.storage.purge(ctx, storageIDs...)
	s.notify(ctx, events.ServerDeleted, events.ServerTopic(serverID), fields{"server_id": serverID})
	return nil
}

func (s *ServerService) Leave(ctx context.Context, user *model.User, serverID string) error {
	server, err := s.guard.loadServer(ctx, serverID)
	if err != nil {
		return err
	}
	if server.OwnerID == user.ID {
		return ErrOwnerCannotLeave
	}
	if err := s.members.Delete(ctx, serverID, user.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotMember
		}
		return fmt.Errorf("failed to leave server: %w", err)
	}
	left := fields{"server_id": serverID, "user_id": user.ID}
	s.notify(ctx, events.MemberLeft, events.ServerTopic(serverID), left)
	// The gateway revokes the leaver's subscriptions when this reaches their own topic.
	s.notify(ctx, events.MemberLeft, events.UserTopic(user.ID), left)
	return nil
}

func (s *ServerService) view(ctx context.Context, server *model.Server) *ServerView {
	return &ServerView{Server: server, IconURL: s.storage.url(ctx, server.IconID)}
}
