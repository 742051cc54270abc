// Package events carries change notifications from the services to the
// WebSocket gateway. Clients re-fetch the affected resource when an event
// arrives on a topic they subscribed to.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	MessageCreated = "message.created"
	MessageDeleted = "message.deleted"
	TypingUpdated  = "typing.updated"

	MemberJoined  = "member.joined"
	MemberLeft    = "member.left"
	MemberUpdated = "member.updated"

	ChannelCreated = "channel.created"
	ChannelDeleted = "channel.deleted"
	ServerDeleted  = "server.deleted"

	InviteCreated = "invite.created"
	InviteDeleted = "invite.deleted"

	DirectMessageCreated = "dm.created"
	FriendUpdated        = "friend.updated"
)

// Event is one change notification. Data holds only JSON-compatible values.
type Event struct {
	Type  string         `json:"type"`
	Topic string         `json:"topic"`
	Data  map[string]any `json:"data,omitempty"`
	At    time.Time      `json:"at"`
}

// New builds an event whose Data is payload flattened through JSON.
func New(eventType, topic string, payload any) (Event, error) {
	e := Event{Type: eventType, Topic: topic, At: time.Now().UTC()}
	if payload == nil {
		return e, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	if err := json.Unmarshal(raw, &e.Data); err != nil {
		return Event{}, fmt.Errorf("%s payload must be a JSON object: %w", eventType, err)
	}
	return e, nil
}

func ServerTopic(id string) string { return "server:" + id }
func ChannelTopic(id string) string { return "channel:" + id }
func DMTopic(id string) string { return "dm:" + id }
func UserTopic(id string) string { return "user:" + id }
