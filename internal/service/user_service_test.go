package service

import (
	"context"
	"testing"

	"chat-system/internal/mocks"
	"chat-system/internal/model"
	"chat-system/internal/repository"
	"chat-system/pkg/password"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	password.Cost = bcrypt.MinCost
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()
	valid := RegisterInput{Username: "alice", Email: "alice@example.com", Password: "secret123"}

	t.Run("should create the user and issue a token", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		tokens := mocks.NewMockTokenIssuer(ctrl)
		svc := NewUserService(repo, tokens)

		repo.EXPECT().ExistsByEmail(gomock.Any(), "alice@example.com").Return(false, nil)
		repo.EXPECT().ExistsByUsername(gomock.Any(), "alice").Return(false, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *model.User) error {
			require.NotEqual(t, "secret123", u.PasswordHash)
			require.False(t, u.IsOnline)
			u.ID = 5
			return nil
		})
		tokens.EXPECT().GenerateToken(uint(5), "alice").Return("token", nil)

		user, token, err := svc.Register(ctx, valid)

		req.NoError(err)
		req.Equal(uint(5), user.ID)
		req.Equal("token", token)
	})

	t.Run("should reject a taken email", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		svc := NewUserService(repo, mocks.NewMockTokenIssuer(ctrl))

		repo.EXPECT().ExistsByEmail(gomock.Any(), "alice@example.com").Return(true, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

		_, _, err := svc.Register(ctx, valid)

		req.ErrorIs(err, ErrEmailTaken)
	})

	t.Run("should reject a taken username", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		svc := NewUserService(repo, mocks.NewMockTokenIssuer(ctrl))

		repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).Return(false, nil)
		repo.EXPECT().ExistsByUsername(gomock.Any(), "alice").Return(true, nil)

		_, _, err := svc.Register(ctx, valid)

		req.ErrorIs(err, ErrUsernameTaken)
	})

	t.Run("should map a unique constraint race to username taken", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		svc := NewUserService(repo, mocks.NewMockTokenIssuer(ctrl))

		repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).Return(false, nil)
		repo.EXPECT().ExistsByUsername(gomock.Any(), gomock.Any()).Return(false, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repository.ErrUserExists)

		_, _, err := svc.Register(ctx, valid)

		req.ErrorIs(err, ErrUsernameTaken)
	})

	t.Run("should validate input", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		svc := NewUserService(mocks.NewMockUserStore(ctrl), mocks.NewMockTokenIssuer(ctrl))

		_, _, err := svc.Register(ctx, RegisterInput{Username: "al", Email: "alice@example.com", Password: "secret123"})
		req.ErrorIs(err, ErrValidation)
		_, _, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "not-an-email", Password: "secret123"})
		req.ErrorIs(err, ErrValidation)
		_, _, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "123"})
		req.ErrorIs(err, ErrValidation)
	})
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	hash, err := password.Hash("secret123")
	require.NoError(t, err)
	stored := &model.User{ID: 5, Username: "alice", Email: "alice@example.com", PasswordHash: hash}

	t.Run("should login with username or email", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		tokens := mocks.NewMockTokenIssuer(ctrl)
		svc := NewUserService(repo, tokens)

		repo.EXPECT().GetByUsernameOrEmail(gomock.Any(), "alice@example.com").Return(stored, nil)
		tokens.EXPECT().GenerateToken(uint(5), "alice").Return("token", nil)

		user, token, err := svc.Login(ctx, " alice@example.com ", "secret123")

		req.NoError(err)
		req.Equal("alice", user.Username)
		req.Equal("token", token)
	})

	t.Run("should reject a wrong password", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		svc := NewUserService(repo, mocks.NewMockTokenIssuer(ctrl))

		repo.EXPECT().GetByUsernameOrEmail(gomock.Any(), "alice").Return(stored, nil)

		_, _, err := svc.Login(ctx, "alice", "wrong")

		req.ErrorIs(err, ErrInvalidCredentials)
	})

	t.Run("should not reveal unknown accounts", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockUserStore(ctrl)
		svc := NewUserService(repo, mocks.NewMockTokenIssuer(ctrl))

		repo.EXPECT().GetByUsernameOrEmail(gomock.Any(), "ghost").Return(nil, repository.ErrUserNotFound)

		_, _, err := svc.Login(ctx, "ghost", "secret123")

		req.ErrorIs(err, ErrInvalidCredentials)
	})
}
