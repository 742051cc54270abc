package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLocalAuthDisabled  = errors.New("local authentication is disabled")

	ErrUserNotFound          = errors.New("user not found")
	ErrServerNotFound        = errors.New("server not found")
	ErrChannelNotFound       = errors.New("channel not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrInviteNotFound        = errors.New("invite not found")
	ErrDirectMessageNotFound = errors.New("direct message not found")
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrUploadNotFound        = errors.New("upload not found")
	ErrFriendRequestNotFound = errors.New("friend request not found")

	ErrNotMember    = errors.New("not a member")
	ErrNotOwner     = errors.New("not the owner")
	ErrNotSender    = errors.New("not the sender of this message")
	ErrNotAddressee = errors.New("only the addressee can respond to this request")

	ErrInviteExpired   = errors.New("invite has expired")
	ErrInviteExhausted = errors.New("invite has reached its maximum uses")

	ErrAlreadyMember           = errors.New("already a member of this server")
	ErrAlreadyRequested        = errors.New("friend request already exists")
	ErrAlreadyResponded        = errors.New("friend request was already answered")
	ErrUserAlreadyExists       = errors.New("username already exists")
	ErrOwnerCannotLeave        = errors.New("the owner cannot leave the server")
	ErrDefaultChannelProtected = errors.New("the default channel cannot be deleted")
	ErrUploadInUse             = errors.New("upload is already attached")

	ErrCannotMessageSelf  = errors.New("cannot open a direct message with yourself")
	ErrCannotBefriendSelf = errors.New("cannot send a friend request to yourself")

	ErrMediaNotConfigured   = errors.New("media server is not configured")
	ErrStorageNotConfigured = errors.New("object storage is not configured")

	// ErrValidation is wrapped by every input validation failure.
	ErrValidation = errors.New("validation failed")
)

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}
