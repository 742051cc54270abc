package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/pkg/scheduler"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

const (
	maxMessageLength = 2000
	defaultPageSize  = 50
	maxPageSize      = 100
)

// SendMessageRequest represents a new message. Content may be empty only
// when an attachment is given.
type SendMessageRequest struct {
	Content      string  `json:"content" binding:"max=4000"`
	AttachmentID *string `json:"attachment_id"`
}

// MessagePage is one page of a conversation in ascending id order.
// NextBefore is the cursor for the next older page.
type MessagePage struct {
	Messages   []*model.MessageView `json:"messages"`
	HasMore    bool                 `json:"has_more"`
	NextBefore string               `json:"next_before,omitempty"`
}

// IDGenerator issues time-ordered message ids.
type IDGenerator interface {
	NextID() (int64, error)
}

// IMessageService defines the messaging store operations
type IMessageService interface {
	Create(ctx context.Context, user *model.User, conv model.Conversation, req *SendMessageRequest) (*model.MessageView, error)
	Remove(ctx context.Context, user *model.User, messageID int64) error
	List(ctx context.Context, user *model.User, conv model.Conversation, before int64, limit int) (*MessagePage, error)
}

// MessageService implements IMessageService
type MessageService struct {
	messages repository.IMessageRepository
	users    repository.IUserRepository
	guard    *Guard
	storage  *StorageService
	ids      IDGenerator
	jobs     scheduler.Enqueuer
	now      func() time.Time
	notifier
}

// NewMessageService creates a new IMessageService instance
func NewMessageService(
	messages repository.IMessageRepository,
	users repository.IUserRepository,
	guard *Guard,
	storage *StorageService,
	ids IDGenerator,
	jobs scheduler.Enqueuer,
	publisher events.Publisher,
	logger *zap.Logger,
) IMessageService {
	return &MessageService{
		messages: messages,
		users:    users,
		guard:    guard,
		storage:  storage,
		ids:      ids,
		jobs:     jobs,
		now:      time.Now,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

// Create stores a message and clears the sender's typing indicator.
func (s *MessageService) Create(ctx context.Context, user *model.User, conv model.Conversation, req *SendMessageRequest) (*model.MessageView, error) {
	if err := s.guard.AssertConversationMember(ctx, user, conv); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	if len([]rune(content)) > maxMessageLength {
		return nil, invalid("content", "exceeds 2000 characters")
	}
	attachment := req.AttachmentID
	if attachment != nil && *attachment == "" {
		attachment = nil
	}
	if content == "" && attachment == nil {
		return nil, invalid("content", "is required without an attachment")
	}
	if attachment != nil {
		if err := s.storage.claim(ctx, user, *attachment); err != nil {
			return nil, err
		}
	}

	id, err := s.ids.NextID()
	if err != nil {
		s.releaseAttachment(ctx, attachment)
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	message := &model.Message{
		ID:               id,
		SenderID:         user.ID,
		Content:          content,
		ConversationKind: conv.Kind,
		ConversationID:   conv.ID,
		AttachmentID:     attachment,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.messages.Create(ctx, message); err != nil {
		s.releaseAttachment(ctx, attachment)
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := scheduleTypingRemoval(ctx, s.jobs, user.ID, conv, nil, s.now()); err != nil {
		s.logger.Warn("failed to schedule typing removal", zap.String("user_id", user.ID), zap.Error(err))
	}

	view := &model.MessageView{
		Message:       *message,
		Sender:        user.Profile(),
		AttachmentURL: s.storage.url(ctx, message.AttachmentID),
	}
	s.notify(ctx, events.MessageCreated, conv.Topic(), view)
	return view, nil
}

func (s *MessageService) releaseAttachment(ctx context.Context, attachment *string) {
	if attachment != nil {
		s.storage.release(context.WithoutCancel(ctx), *attachment)
	}
}

// Remove deletes the caller's own message and its attachment.
func (s *MessageService) Remove(ctx context.Context, user *model.User, messageID int64) error {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to find message: %w", err)
	}
	if message.SenderID != user.ID {
		return ErrNotSender
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if message.AttachmentID != nil {
		s.storage.discard(ctx, *message.AttachmentID)
	}

	conv := message.Conversation()
	s.notify(ctx, events.MessageDeleted, conv.Topic(), fields{
		"id":                strconv.FormatInt(message.ID, 10),
		"conversation_kind": conv.Kind,
		"conversation_id":   conv.ID,
	})
	return nil
}

// List returns up to limit messages older than before (0 for the newest),
// oldest first.
func (s *MessageService) List(ctx context.Context, user *model.User, conv model.Conversation, before int64, limit int) (*MessagePage, error) {
	if err := s.guard.AssertConversationMember(ctx, user, conv); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if before < 0 {
		return nil, invalid("before", "must be a message id")
	}

	rows, err := s.messages.ListBefore(ctx, conv, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	page := &MessagePage{}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}

	senderIDs := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, m := range rows {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	senders := map[string]*model.User{}
	if len(senderIDs) > 0 {
		senders, err = s.users.FindByIDs(ctx, senderIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load senders: %w", err)
		}
	}

	page.Messages = make([]*model.MessageView, len(rows))
	for i, m := range rows {
		page.Messages[len(rows)-1-i] = &model.MessageView{
			Message:       *m,
			Sender:        senders[m.SenderID].Profile(),
			AttachmentURL: s.storage.url(ctx, m.AttachmentID),
		}
	}
	if page.HasMore && len(page.Messages) > 0 {
		page.NextBefore = strconv.FormatInt(page.Messages[0].ID, 10)
	}
	return page, nil
}
