package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// Guard answers the membership and ownership questions every other service
// asks before touching data. It never writes.
type Guard struct {
	servers  repository.IServerRepository
	channels repository.IChannelRepository
	members  repository.IMemberRepository
	dms      repository.IDirectMessageRepository
}

func NewGuard(
	servers repository.IServerRepository,
	channels repository.IChannelRepository,
	members repository.IMemberRepository,
	dms repository.IDirectMessageRepository,
) *Guard {
	return &Guard{servers: servers, channels: channels, members: members, dms: dms}
}

// AssertServerMember returns the caller's membership row of serverID.
func (g *Guard) AssertServerMember(ctx context.Context, user *model.User, serverID string) (*model.ServerMember, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	member, err := g.members.Find(ctx, serverID, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return member, nil
}

// AssertServerOwner returns the server if the caller owns it.
func (g *Guard) AssertServerOwner(ctx context.Context, user *model.User, serverID string) (*model.Server, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	server, err := g.loadServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.OwnerID != user.ID {
		return nil, ErrNotOwner
	}
	return server, nil
}

// AssertConversationMember checks access to a channel (through its server)
// or a direct message (through its two participants).
func (g *Guard) AssertConversationMember(ctx context.Context, user *model.User, conv model.Conversation) error {
	if user == nil {
		return ErrUnauthorized
	}
	if err := conv.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch conv.Kind {
	case model.ConversationChannel:
		channel, err := g.loadChannel(ctx, conv.ID)
		if err != nil {
			return err
		}
		_, err = g.AssertServerMember(ctx, user, channel.ServerID)
		return err
	default:
		if _, err := g.loadDM(ctx, conv.ID); err != nil {
			return err
		}
		ok, err := g.dms.IsParticipant(ctx, conv.ID, user.ID)
		if err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if !ok {
			return ErrNotMember
		}
		return nil
	}
}

// AuthorizeTopic gates gateway subscriptions. Topics are "server:<id>",
// "channel:<id>", "dm:<id>" and "user:<id>".
func (g *Guard) AuthorizeTopic(ctx context.Context, user *model.User, topic string) error {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return invalid("topic", "is malformed")
	}
	switch kind {
	case "server":
		_, err := g.AssertServerMember(ctx, user, id)
		return err
	case "channel":
		return g.AssertConversationMember(ctx, user, model.ChannelConversation(id))
	case "dm":
		return g.AssertConversationMember(ctx, user, model.DMConversation(id))
	case "user":
		if user == nil || user.ID != id {
			return ErrNotMember
		}
		return nil
	default:
		return invalid("topic", "has an unknown kind")
	}
}

func (g *Guard) loadServer(ctx context.Context, id string) (*model.Server, error) {
	server, err := g.servers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("failed to find server: %w", err)
	}
	return server, nil
}

func (g *Guard) loadChannel(ctx context.Context, id string) (*model.Channel, error) {
	channel, err := g.channels.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to find channel: %w", err)
	}
	return channel, nil
}

func (g *Guard) loadDM(ctx context.Context, id string) (*model.DirectMessage, error) {
	dm, err := g.dms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDirectMessageNotFound
		}
		return nil, fmt.Errorf("failed to find direct message: %w", err)
	}
	return dm, nil
}
