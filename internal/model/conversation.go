package model

import (
	"errors"
	"fmt"
)

type ConversationKind string

const (
	ConversationChannel ConversationKind = "channel"
	ConversationDM      ConversationKind = "dm"
)

var ErrUnknownConversationKind = errors.New("unknown conversation kind")

// Conversation identifies where messages and typing indicators live:
// a server channel or a direct message.
type Conversation struct {
	Kind ConversationKind `json:"kind"`
	ID   string           `json:"id"`
}

func ChannelConversation(id string) Conversation {
	return Conversation{Kind: ConversationChannel, ID: id}
}

func DMConversation(id string) Conversation {
	return Conversation{Kind: ConversationDM, ID: id}
}

func (c Conversation) Validate() error {
	switch c.Kind {
	case ConversationChannel, ConversationDM:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConversationKind, c.Kind)
	}
	if c.ID == "" {
		return errors.New("conversation id is empty")
	}
	return nil
}

// Topic is the gateway topic carrying events for this conversation.
func (c Conversation) Topic() string {
	return string(c.Kind) + ":" + c.ID
}
