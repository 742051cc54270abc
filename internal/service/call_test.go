package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/pkg/media"
)

func TestCallService_Token(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	alice, bob := h.user("alice"), h.user("bob")
	res := h.createServer(alice, "S")

	issuer := media.NewTokenIssuer(&config.LiveKitConfig{APIKey: "key", APISecret: "secret"})
	calls := NewCallService(fakeMembers{h.db}, h.guard, issuer, h.publisher, zap.NewNop())

	tok, err := calls.Token(ctx, alice, res.Server.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Server.ID, tok.Room)
	assert.NotEmpty(t, tok.Token)

	_, err = calls.Token(ctx, bob, res.Server.ID)
	assert.ErrorIs(t, err, ErrNotMember)

	unconfigured := NewCallService(fakeMembers{h.db}, h.guard, media.NewTokenIssuer(&config.LiveKitConfig{}), h.publisher, zap.NewNop())
	_, err = unconfigured.Token(ctx, alice, res.Server.ID)
	assert.ErrorIs(t, err, ErrMediaNotConfigured)
}

func TestCallService_SetMemberState(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	alice, bob := h.user("alice"), h.user("bob")
	res := h.createServer(alice, "S")
	calls := NewCallService(fakeMembers{h.db}, h.guard, media.NewTokenIssuer(&config.LiveKitConfig{}), h.publisher, zap.NewNop())

	member, err := calls.SetMemberState(ctx, alice, res.Server.ID, true, false)
	require.NoError(t, err)
	assert.True(t, member.AudioEnabled)
	assert.False(t, member.VideoEnabled)
	assert.Contains(t, h.publisher.types(events.ServerTopic(res.Server.ID)), events.MemberUpdated)

	members, err := h.servers.Members(ctx, alice, res.Server.ID)
	require.NoError(t, err)
	assert.True(t, members[0].AudioEnabled)

	_, err = calls.SetMemberState(ctx, bob, res.Server.ID, true, true)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestStorageService_UploadLifecycle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	alice, bob := h.user("alice"), h.user("bob")

	slot, err := h.storage.GenerateUploadURL(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/put/"+slot.StorageID, slot.URL)

	assert.ErrorIs(t, h.storage.Remove(ctx, bob, slot.StorageID), ErrNotOwner)
	require.NoError(t, h.storage.Remove(ctx, alice, slot.StorageID))
	assert.True(t, h.store.wasRemoved(slot.StorageID))
	assert.ErrorIs(t, h.storage.Remove(ctx, alice, slot.StorageID), ErrUploadNotFound)

	blob := h.upload(alice)
	assert.ErrorIs(t, h.storage.claim(ctx, bob, blob), ErrAttachmentNotFound)
	require.NoError(t, h.storage.claim(ctx, alice, blob))
	assert.ErrorIs(t, h.storage.claim(ctx, alice, blob), ErrUploadInUse)
	h.storage.release(ctx, blob)
	require.NoError(t, h.storage.claim(ctx, alice, blob))

	disabled := NewStorageService(fakeUploads{h.db}, nil, &config.MinioConfig{}, zap.NewNop())
	_, err = disabled.GenerateUploadURL(ctx, alice)
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
	id := "x"
	assert.Empty(t, disabled.url(ctx, &id))
}
