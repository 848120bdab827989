package service

import (
	"context"
	"errors"
	"testing"

	"chat-system/internal/mocks"
	"chat-system/internal/model"
	"chat-system/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReactionService_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert and return an event when the reaction is new", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().FindReaction(gomock.Any(), uint(1), uint(7), "👍").Return(nil, repository.ErrReactionNotFound)
		store.EXPECT().InsertReaction(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		event, err := svc.Add(ctx, 1, 7, "alice", "👍")

		req.NoError(err)
		req.Equal(&ReactionEvent{MessageID: 1, Emoji: "👍", Username: "alice", UserID: 7}, event)
	})

	t.Run("should be a no-op when the reaction already exists", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().FindReaction(gomock.Any(), uint(1), uint(7), "👍").Return(&model.MessageReaction{ID: 3}, nil)
		store.EXPECT().InsertReaction(gomock.Any(), gomock.Any()).Times(0)

		event, err := svc.Add(ctx, 1, 7, "alice", "👍")

		req.NoError(err)
		req.Nil(event)
	})

	t.Run("should converge when a concurrent writer wins the unique constraint", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().FindReaction(gomock.Any(), uint(1), uint(7), "👍").Return(nil, repository.ErrReactionNotFound)
		store.EXPECT().InsertReaction(gomock.Any(), gomock.Any()).Return(repository.ErrDuplicateReaction)

		event, err := svc.Add(ctx, 1, 7, "alice", "👍")

		req.NoError(err)
		req.Nil(event)
	})

	t.Run("should converge when the driver reports an unclassified error but the row exists", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		gomock.InOrder(
			store.EXPECT().FindReaction(gomock.Any(), uint(1), uint(7), "👍").Return(nil, repository.ErrReactionNotFound),
			store.EXPECT().InsertReaction(gomock.Any(), gomock.Any()).Return(errors.New("constraint failed")),
			store.EXPECT().FindReaction(gomock.Any(), uint(1), uint(7), "👍").Return(&model.MessageReaction{ID: 9}, nil),
		)

		event, err := svc.Add(ctx, 1, 7, "alice", "👍")

		req.NoError(err)
		req.Nil(event)
	})

	t.Run("should report a missing message as a validation error", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().FindReaction(gomock.Any(), uint(99), uint(7), "👍").Return(nil, repository.ErrReactionNotFound)
		store.EXPECT().InsertReaction(gomock.Any(), gomock.Any()).Return(repository.ErrMessageNotFound)

		_, err := svc.Add(ctx, 99, 7, "alice", "👍")

		req.ErrorIs(err, ErrValidation)
	})

	t.Run("should surface persistence failures", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().FindReaction(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

		_, err := svc.Add(ctx, 1, 7, "alice", "👍")

		req.ErrorIs(err, ErrPersistence)
	})

	t.Run("should store the same trimmed emoji it validated", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		// Given: 10 个字符加上两侧空白，去掉空白后恰好在上限内
		emoji := "0123456789"
		var stored string
		store.EXPECT().FindReaction(gomock.Any(), uint(1), uint(7), emoji).Return(nil, repository.ErrReactionNotFound)
		store.EXPECT().
			InsertReaction(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r *model.MessageReaction) error {
				stored = r.Emoji
				return nil
			})

		// When
		event, err := svc.Add(ctx, 1, 7, "alice", "  "+emoji+"  ")

		// Then
		req.NoError(err)
		req.Equal(emoji, stored)
		req.Equal(emoji, event.Emoji)
	})

	t.Run("should reject invalid input without touching the store", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		_, err := svc.Add(ctx, 1, 7, "alice", "")
		req.ErrorIs(err, ErrValidation)
		_, err = svc.Add(ctx, 1, 7, "alice", "this-is-way-too-long")
		req.ErrorIs(err, ErrValidation)
		_, err = svc.Add(ctx, 0, 7, "alice", "👍")
		req.ErrorIs(err, ErrValidation)
		_, err = svc.Add(ctx, 1, 7, "alice", "   ")
		req.ErrorIs(err, ErrValidation)
	})
}

func TestReactionService_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("should return an event without username when a row was deleted", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().DeleteReaction(gomock.Any(), uint(1), uint(7), "👍").Return(true, nil)

		event, err := svc.Remove(ctx, 1, 7, "👍")

		req.NoError(err)
		req.Equal(&ReactionEvent{MessageID: 1, Emoji: "👍", UserID: 7}, event)
	})

	t.Run("should match the trimmed emoji", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().DeleteReaction(gomock.Any(), uint(1), uint(7), "👍").Return(true, nil)

		event, err := svc.Remove(ctx, 1, 7, " 👍 ")

		req.NoError(err)
		req.Equal("👍", event.Emoji)
	})

	t.Run("should be a silent no-op when nothing matched", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().DeleteReaction(gomock.Any(), uint(1), uint(7), "👍").Return(false, nil)

		event, err := svc.Remove(ctx, 1, 7, "👍")

		req.NoError(err)
		req.Nil(event)
	})

	t.Run("should surface persistence failures", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockReactionStore(ctrl)
		svc := NewReactionService(store, testChatConfig)

		store.EXPECT().DeleteReaction(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("db down"))

		_, err := svc.Remove(ctx, 1, 7, "👍")

		req.ErrorIs(err, ErrPersistence)
	})
}
