package model

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Server{},
		&Channel{},
		&ServerMember{},
		&Invite{},
		&DirectMessage{},
		&DirectMessageMember{},
		&Message{},
		&TypingIndicator{},
		&Upload{},
		&Friend{},
	}
}
