package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-system/internal/model"
	dbPkg "chat-system/pkg/db"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB 每个测试独立的内存 SQLite，开启外键约束
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	gdb, err := dbPkg.Open(sqlite.Open(dsn), false)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(&model.User{}, &model.Message{}, &model.MessageReaction{}))
	return gdb
}

func createUser(t *testing.T, repo *UserRepository, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	u := createUser(t, repo, "alice")
	req.NotZero(u.ID)

	found, err := repo.FindUser(ctx, u.ID)
	req.NoError(err)
	req.Equal("alice", found.Username)
	req.False(found.IsOnline)

	byEmail, err := repo.GetByUsernameOrEmail(ctx, "alice@example.com")
	req.NoError(err)
	req.Equal(u.ID, byEmail.ID)

	_, err = repo.FindUser(ctx, 9999)
	req.ErrorIs(err, ErrUserNotFound)

	exists, err := repo.ExistsByUsername(ctx, "alice")
	req.NoError(err)
	req.True(exists)
	exists, err = repo.ExistsByEmail(ctx, "bob@example.com")
	req.NoError(err)
	req.False(exists)
}

func TestUserRepository_SaveUserOnlineStatus(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	u := createUser(t, repo, "alice")

	req.NoError(repo.SaveUserOnlineStatus(ctx, u.ID, true))
	found, err := repo.FindUser(ctx, u.ID)
	req.NoError(err)
	req.True(found.IsOnline)
	req.False(found.LastSeen.IsZero())

	req.NoError(repo.SaveUserOnlineStatus(ctx, u.ID, false))
	found, err = repo.FindUser(ctx, u.ID)
	req.NoError(err)
	req.False(found.IsOnline)

	req.ErrorIs(repo.SaveUserOnlineStatus(ctx, 4242, true), ErrUserNotFound)
}

func TestMessageRepository_InsertAssignsIDAndTimestamp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gdb := newTestDB(t)
	users := NewUserRepository(gdb)
	messages := NewMessageRepository(gdb)
	u := createUser(t, users, "alice")

	createdAt := time.Now().UTC()
	msg := &model.Message{Content: "hello", UserID: u.ID, CreatedAt: createdAt}
	req.NoError(messages.InsertMessage(ctx, msg))
	req.NotZero(msg.ID)

	stored, err := messages.GetByID(ctx, msg.ID)
	req.NoError(err)
	req.Equal("hello", stored.Content)
	req.Equal(u.ID, stored.UserID)
	req.WithinDuration(createdAt, stored.CreatedAt, time.Millisecond)

	_, err = messages.GetByID(ctx, msg.ID+100)
	req.ErrorIs(err, ErrMessageNotFound)
}

func TestMessageRepository_InsertRejectsUnknownUser(t *testing.T) {
	req := require.New(t)
	messages := NewMessageRepository(newTestDB(t))

	err := messages.InsertMessage(context.Background(), &model.Message{Content: "orphan", UserID: 77, CreatedAt: time.Now().UTC()})
	req.Error(err)
}

func TestReactionRepository_InsertFindDelete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gdb := newTestDB(t)
	u := createUser(t, NewUserRepository(gdb), "alice")
	msg := &model.Message{Content: "hi", UserID: u.ID, CreatedAt: time.Now().UTC()}
	req.NoError(NewMessageRepository(gdb).InsertMessage(ctx, msg))
	repo := NewReactionRepository(gdb)

	// Given no reaction exists
	_, err := repo.FindReaction(ctx, msg.ID, u.ID, "👍")
	req.ErrorIs(err, ErrReactionNotFound)

	// When one is inserted
	req.NoError(repo.InsertReaction(ctx, &model.MessageReaction{MessageID: msg.ID, UserID: u.ID, Emoji: "👍", CreatedAt: time.Now().UTC()}))

	// Then it can be found, and a second insert of the same triple is rejected
	found, err := repo.FindReaction(ctx, msg.ID, u.ID, "👍")
	req.NoError(err)
	req.Equal("👍", found.Emoji)
	req.Error(repo.InsertReaction(ctx, &model.MessageReaction{MessageID: msg.ID, UserID: u.ID, Emoji: "👍", CreatedAt: time.Now().UTC()}))

	count, err := repo.CountByMessage(ctx, msg.ID)
	req.NoError(err)
	req.EqualValues(1, count)

	// And deleting twice only removes once
	deleted, err := repo.DeleteReaction(ctx, msg.ID, u.ID, "👍")
	req.NoError(err)
	req.True(deleted)
	deleted, err = repo.DeleteReaction(ctx, msg.ID, u.ID, "👍")
	req.NoError(err)
	req.False(deleted)
}

func TestReactionRepository_ConcurrentInsertKeepsOneRow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gdb := newTestDB(t)
	u := createUser(t, NewUserRepository(gdb), "alice")
	msg := &model.Message{Content: "hi", UserID: u.ID, CreatedAt: time.Now().UTC()}
	req.NoError(NewMessageRepository(gdb).InsertMessage(ctx, msg))
	repo := NewReactionRepository(gdb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.InsertReaction(ctx, &model.MessageReaction{MessageID: msg.ID, UserID: u.ID, Emoji: "🔥", CreatedAt: time.Now().UTC()})
		}()
	}
	wg.Wait()

	count, err := repo.CountByMessage(ctx, msg.ID)
	req.NoError(err)
	req.EqualValues(1, count)
}

func TestCascadeDeleteOfUserRemovesMessagesAndReactions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gdb := newTestDB(t)
	users := NewUserRepository(gdb)
	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")
	msg := &model.Message{Content: "hi", UserID: alice.ID, CreatedAt: time.Now().UTC()}
	req.NoError(NewMessageRepository(gdb).InsertMessage(ctx, msg))
	reactions := NewReactionRepository(gdb)
	req.NoError(reactions.InsertReaction(ctx, &model.MessageReaction{MessageID: msg.ID, UserID: bob.ID, Emoji: "👍", CreatedAt: time.Now().UTC()}))

	req.NoError(gdb.Delete(&model.User{}, alice.ID).Error)

	_, err := NewMessageRepository(gdb).GetByID(ctx, msg.ID)
	req.ErrorIs(err, ErrMessageNotFound)
	count, err := reactions.CountByMessage(ctx, msg.ID)
	req.NoError(err)
	req.Zero(count)
}
