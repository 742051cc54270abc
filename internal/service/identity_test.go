package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Guildhall/middleware/jwt"
)

func newIdentity(localEnabled bool) (*IdentityService, *memDB, *jwt.TokenManager) {
	db := newMemDB()
	tm := jwt.NewTokenManager("test-secret", 1, 24)
	return NewIdentityService(fakeUsers{db}, tm, localEnabled).(*IdentityService), db, tm
}

func TestIdentity_SyncCreatesThenUpdates(t *testing.T) {
	s, db, _ := newIdentity(false)
	ctx := context.Background()

	claims := &jwt.Claims{Username: "alice", Image: "a.png"}
	claims.Subject = "idp|1"
	user, err := s.Sync(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	claims.Image = "b.png"
	again, err := s.Sync(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "b.png", again.Image)
	assert.Len(t, db.users, 1)

	resolved, err := s.Resolve(ctx, "idp|1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	other := &jwt.Claims{Username: "alice"}
	other.Subject = "idp|2"
	_, err = s.Sync(ctx, other)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	bad := &jwt.Claims{Username: "no spaces allowed"}
	bad.Subject = "idp|3"
	_, err = s.Sync(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.Sync(ctx, &jwt.Claims{Username: "bob"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIdentity_ResolveUnknownIsUnauthorized(t *testing.T) {
	s, _, _ := newIdentity(false)
	_, err := s.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIdentity_LocalRegisterAndLogin(t *testing.T) {
	s, _, tm := newIdentity(true)
	ctx := context.Background()

	resp, err := s.Register(ctx, &RegisterRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.User.ExternalID, localSubjectPrefix))
	assert.NotEqual(t, "password123", resp.User.PasswordHash)

	claims, err := tm.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ExternalID, claims.Subject)

	_, err = s.Register(ctx, &RegisterRequest{Username: "alice", Password: "password456"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	login, err := s.Login(ctx, &LoginRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	user, err := s.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)

	_, err = s.Login(ctx, &LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, &LoginRequest{Username: "ghost", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIdentity_LocalAuthDisabled(t *testing.T) {
	s, _, _ := newIdentity(false)
	_, err := s.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrLocalAuthDisabled)
	_, err = s.Login(context.Background(), &LoginRequest{Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrLocalAuthDisabled)
}

func TestIdentity_SyncedUserCannotPasswordLogin(t *testing.T) {
	s, _, _ := newIdentity(true)
	claims := &jwt.Claims{Username: "alice"}
	claims.Subject = "idp|1"
	_, err := s.Sync(context.Background(), claims)
	require.NoError(t, err)

	_, err = s.Login(context.Background(), &LoginRequest{Username: "alice", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
