package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

// IServerRepository defines the interface for server data operations
type IServerRepository interface {
	// CreateWithDefaultChannel writes the server, its default channel and the
	// owner's membership in one transaction.
	CreateWithDefaultChannel(ctx context.Context, server *model.Server, channel *model.Channel, owner *model.ServerMember) error
	FindByID(ctx context.Context, id string) (*model.Server, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Server, error)
	// DeleteCascade removes the server with its channels, members, invites,
	// messages and typing indicators. It returns the storage ids (icon and
	// attachments) whose upload rows were removed so blobs can be purged.
	DeleteCascade(ctx context.Context, id string) ([]string, error)
}

type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) IServerRepository {
	return &ServerRepository{db: db}
}

func (r *ServerRepository) CreateWithDefaultChannel(ctx context.Context, server *model.Server, channel *model.Channel, owner *model.ServerMember) error {
	if server.ID == "" {
		server.ID = newID()
	}
	if channel.ID == "" {
		channel.ID = newID()
	}
	if owner.ID == "" {
		owner.ID = newID()
	}
	server.DefaultChannelID = channel.ID
	channel.ServerID = server.ID
	owner.ServerID = server.ID

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(server).Error; err != nil {
			return translate(err)
		}
		if err := tx.Create(channel).Error; err != nil {
			return translate(err)
		}
		return translate(tx.Create(owner).Error)
	})
}

func (r *ServerRepository) FindByID(ctx context.Context, id string) (*model.Server, error) {
	var server model.Server
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&server).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *ServerRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Server, error) {
	var servers []*model.Server
	if len(ids) == 0 {
		return servers, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at").Find(&servers).Error
	return servers, err
}

func (r *ServerRepository) DeleteCascade(ctx context.Context, id string) ([]string, error) {
	var storageIDs []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var server model.Server
		if err := tx.Where("id = ?", id).First(&server).Error; err != nil {
			return err
		}

		var channelIDs []string
		if err := tx.Model(&model.Channel{}).Where("server_id = ?", id).Pluck("id", &channelIDs).Error; err != nil {
			return err
		}

		attachments, err := purgeConversations(tx, model.ConversationChannel, channelIDs)
		if err != nil {
			return err
		}
		storageIDs = attachments
		if server.IconID != nil {
			storageIDs = append(storageIDs, *server.IconID)
		}
		if err := deleteUploads(tx, storageIDs); err != nil {
			return err
		}

		for _, m := range []any{&model.Channel{}, &model.ServerMember{}, &model.Invite{}} {
			if err := tx.Where("server_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&server).Error
	})
	if err != nil {
		return nil, err
	}
	return storageIDs, nil
}

// purgeConversations deletes messages and typing indicators of the given
// conversations and returns the attachment ids the messages referenced.
func purgeConversations(tx *gorm.DB, kind model.ConversationKind, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var attachments []string
	err := tx.Model(&model.Message{}).
		Where("conversation_kind = ? AND conversation_id IN ? AND attachment_id IS NOT NULL", kind, ids).
		Pluck("attachment_id", &attachments).Error
	if err != nil {
		return nil, err
	}
	if err := tx.Where("conversation_kind = ? AND conversation_id IN ?", kind, ids).Delete(&model.Message{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("conversation_id IN ?", ids).Delete(&model.TypingIndicator{}).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

func deleteUploads(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("id IN ?", ids).Delete(&model.Upload{}).Error
}
