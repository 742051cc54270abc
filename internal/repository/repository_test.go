package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/model"
)

// setupTestDB connects to the database named by GUILDHALL_TEST_POSTGRES_DSN.
// ! These are integration tests; they skip when no database is configured.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("GUILDHALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping test: GUILDHALL_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		for _, m := range model.All() {
			db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m)
		}
	})
	return db
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})), ErrDuplicate)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey), ErrDuplicate)
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), gorm.ErrRecordNotFound)

	other := &pgconn.PgError{Code: "23503"}
	assert.Same(t, other, translate(other))
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(&config.PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "guildhall"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=guildhall sslmode=disable TimeZone=UTC", dsn)
}

func seedUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	u := &model.User{ExternalID: "ext-" + name, Username: name}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func seedServer(t *testing.T, db *gorm.DB, owner *model.User) (*model.Server, *model.Channel) {
	t.Helper()
	server := &model.Server{Name: "S", OwnerID: owner.ID}
	channel := &model.Channel{Name: "general"}
	member := &model.ServerMember{UserID: owner.ID}
	require.NoError(t, NewServerRepository(db).CreateWithDefaultChannel(context.Background(), server, channel, member))
	return server, channel
}

func TestInviteRepository_RedeemRespectsMaxUses(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	server, _ := seedServer(t, db, owner)

	maxUses := 3
	invites := NewInviteRepository(db)
	invite := &model.Invite{ServerID: server.ID, CreatedBy: owner.ID, MaxUses: &maxUses}
	require.NoError(t, invites.Create(ctx, invite))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := range 10 {
		u := seedUser(t, db, fmt.Sprintf("joiner%d", i))
		wg.Go(func() {
			err := invites.Redeem(ctx, invite.ID, &model.ServerMember{ServerID: server.ID, UserID: u.ID}, time.Now())
			if err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrConditionFailed)
			}
		})
	}
	wg.Wait()

	stored, err := invites.FindByID(ctx, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(maxUses), ok.Load())
	assert.Equal(t, maxUses, stored.Uses)

	members, err := NewMemberRepository(db).ListWithUsers(ctx, server.ID)
	require.NoError(t, err)
	assert.Len(t, members, maxUses+1)
}

func TestInviteRepository_RedeemDuplicateMember(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	server, _ := seedServer(t, db, owner)

	invites := NewInviteRepository(db)
	invite := &model.Invite{ServerID: server.ID, CreatedBy: owner.ID}
	require.NoError(t, invites.Create(ctx, invite))

	err := invites.Redeem(ctx, invite.ID, &model.ServerMember{ServerID: server.ID, UserID: owner.ID}, time.Now())
	assert.ErrorIs(t, err, ErrDuplicate)

	stored, err := invites.FindByID(ctx, invite.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Uses)
}

func TestTypingRepository_StampGuard(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	typing := NewTypingRepository(db)

	require.NoError(t, typing.Upsert(ctx, &model.TypingIndicator{UserID: alice.ID, ConversationKind: model.ConversationChannel, ConversationID: "c1", ExpiresAt: 1000}))
	require.NoError(t, typing.Upsert(ctx, &model.TypingIndicator{UserID: alice.ID, ConversationKind: model.ConversationChannel, ConversationID: "c1", ExpiresAt: 2000}))

	names, err := typing.ActiveUsernames(ctx, "c1", bob.ID, 1500)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)

	stale := int64(1000)
	deleted, err := typing.Delete(ctx, alice.ID, "c1", &stale)
	require.NoError(t, err)
	assert.False(t, deleted)

	current := int64(2000)
	deleted, err = typing.Delete(ctx, alice.ID, "c1", &current)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestServerRepository_DeleteCascade(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	server, channel := seedServer(t, db, owner)

	attachment := "att-1"
	require.NoError(t, NewUploadRepository(db).Create(ctx, &model.Upload{ID: attachment, OwnerID: owner.ID}))
	require.NoError(t, NewMessageRepository(db).Create(ctx, &model.Message{
		ID: 1, SenderID: owner.ID, Content: "hi", ConversationKind: model.ConversationChannel,
		ConversationID: channel.ID, AttachmentID: &attachment,
	}))

	ids, err := NewServerRepository(db).DeleteCascade(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{attachment}, ids)

	_, err = NewChannelRepository(db).FindByID(ctx, channel.ID)
	assert.True(t, IsNotFound(err))
	_, err = NewUploadRepository(db).FindByID(ctx, attachment)
	assert.True(t, IsNotFound(err))
}

func TestUploadRepository_AttachOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	uploads := NewUploadRepository(db)
	require.NoError(t, uploads.Create(ctx, &model.Upload{ID: "blob-1", OwnerID: owner.ID}))

	now := time.Now().UTC()
	assert.ErrorIs(t, uploads.Attach(ctx, "blob-1", "someone-else", now), ErrConditionFailed)
	require.NoError(t, uploads.Attach(ctx, "blob-1", owner.ID, now))
	assert.ErrorIs(t, uploads.Attach(ctx, "blob-1", owner.ID, now), ErrConditionFailed)

	require.NoError(t, uploads.Detach(ctx, "blob-1"))
	upload, err := uploads.FindByID(ctx, "blob-1")
	require.NoError(t, err)
	assert.Nil(t, upload.AttachedAt)
	assert.NoError(t, uploads.Attach(ctx, "blob-1", owner.ID, now))
}

func TestDirectMessageRepository_OnePerPair(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "a")
	b := seedUser(t, db, "b")
	dms := NewDirectMessageRepository(db)

	dm, err := dms.Create(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = dms.Create(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := dms.FindByPair(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, dm.ID, found.ID)

	ok, err := dms.IsParticipant(ctx, dm.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
