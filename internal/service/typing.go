package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/pkg/scheduler"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

const (
	// TypingRemoveJob is the scheduler kind that clears a typing indicator.
	TypingRemoveJob = "typing.remove"
	typingTTL       = 5 * time.Second
)

// TypingRemoval is the payload of a TypingRemoveJob. ExpiresAt, when set,
// is the stamp the indicator must still carry for the removal to apply.
type TypingRemoval struct {
	UserID           string                 `json:"user_id"`
	ConversationKind model.ConversationKind `json:"conversation_kind"`
	ConversationID   string                 `json:"conversation_id"`
	ExpiresAt        *int64                 `json:"expires_at,omitempty"`
}

func (p TypingRemoval) conversation() model.Conversation {
	return model.Conversation{Kind: p.ConversationKind, ID: p.ConversationID}
}

func typingJobKey(userID string, conv model.Conversation) string {
	return userID + ":" + conv.ID
}

// scheduleTypingRemoval queues a TypingRemoveJob at runAt.
func scheduleTypingRemoval(ctx context.Context, jobs scheduler.Enqueuer, userID string, conv model.Conversation, stamp *int64, runAt time.Time) error {
	payload := TypingRemoval{
		UserID:           userID,
		ConversationKind: conv.Kind,
		ConversationID:   conv.ID,
		ExpiresAt:        stamp,
	}
	return jobs.Schedule(ctx, TypingRemoveJob, typingJobKey(userID, conv), payload, runAt)
}

// TypingState is published on the conversation topic when typing changes
type TypingState struct {
	UserID           string                 `json:"user_id"`
	ConversationKind model.ConversationKind `json:"conversation_kind"`
	ConversationID   string                 `json:"conversation_id"`
	Typing           bool                   `json:"typing"`
	ExpiresAt        int64                  `json:"expires_at,omitempty"`
}

// ITypingService tracks who is typing where
type ITypingService interface {
	Upsert(ctx context.Context, user *model.User, conv model.Conversation) (int64, error)
	List(ctx context.Context, user *model.User, conv model.Conversation) ([]string, error)
	// Expire runs a TypingRemoveJob. It reports whether a row was removed.
	Expire(ctx context.Context, payload TypingRemoval) (bool, error)
}

// TypingService implements ITypingService
type TypingService struct {
	typing repository.ITypingRepository
	guard  *Guard
	jobs   scheduler.Enqueuer
	now    func() time.Time
	notifier
}

// NewTypingService creates a new ITypingService instance
func NewTypingService(typing repository.ITypingRepository, guard *Guard, jobs scheduler.Enqueuer, publisher events.Publisher, logger *zap.Logger) *TypingService {
	return &TypingService{
		typing:   typing,
		guard:    guard,
		jobs:     jobs,
		now:      time.Now,
		notifier: notifier{publisher: publisher, logger: logger},
	}
}

// Upsert marks user as typing for the next five seconds and schedules the
// stamped removal. It returns the new expiry in unix milliseconds.
func (s *TypingService) Upsert(ctx context.Context, user *model.User, conv model.Conversation) (int64, error) {
	if err := s.guard.AssertConversationMember(ctx, user, conv); err != nil {
		return 0, err
	}
	expiresAt := s.now().Add(typingTTL).UnixMilli()
	indicator := &model.TypingIndicator{
		UserID:           user.ID,
		ConversationKind: conv.Kind,
		ConversationID:   conv.ID,
		ExpiresAt:        expiresAt,
	}
	if err := s.typing.Upsert(ctx, indicator); err != nil {
		return 0, fmt.Errorf("failed to upsert typing indicator: %w", err)
	}
	if err := scheduleTypingRemoval(ctx, s.jobs, user.ID, conv, &expiresAt, time.UnixMilli(expiresAt)); err != nil {
		return 0, fmt.Errorf("failed to schedule typing removal: %w", err)
	}
	s.notify(ctx, events.TypingUpdated, conv.Topic(), TypingState{
		UserID:           user.ID,
		ConversationKind: conv.Kind,
		ConversationID:   conv.ID,
		Typing:           true,
		ExpiresAt:        expiresAt,
	})
	return expiresAt, nil
}

func (s *TypingService) List(ctx context.Context, user *model.User, conv model.Conversation) ([]string, error) {
	if err := s.guard.AssertConversationMember(ctx, user, conv); err != nil {
		return nil, err
	}
	names, err := s.typing.ActiveUsernames(ctx, conv.ID, user.ID, nowMillis(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to list typing users: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Expire deletes the indicator only if it still carries the stamped
// expiry, so a removal scheduled before a refresh is a no-op.
func (s *TypingService) Expire(ctx context.Context, payload TypingRemoval) (bool, error) {
	removed, err := s.typing.Delete(ctx, payload.UserID, payload.ConversationID, payload.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to remove typing indicator: %w", err)
	}
	if removed {
		conv := payload.conversation()
		s.notify(ctx, events.TypingUpdated, conv.Topic(), TypingState{
			UserID:           payload.UserID,
			ConversationKind: conv.Kind,
			ConversationID:   conv.ID,
		})
	}
	return removed, nil
}

// HandleJob adapts Expire to the scheduler's handler signature.
func (s *TypingService) HandleJob(ctx context.Context, job scheduler.Job) error {
	var payload TypingRemoval
	if err := job.Decode(&payload); err != nil {
		return err
	}
	_, err := s.Expire(ctx, payload)
	return err
}
