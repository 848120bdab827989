//go:generate go run go.uber.org/mock/mockgen -source=user_service.go -destination=../mocks/mock_user_store.go -package=mocks
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-system/internal/model"
	"chat-system/internal/repository"
	"chat-system/pkg/password"

	"github.com/go-playground/validator/v10"
)

// UserStore 用户持久化
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// TokenIssuer 签发访问令牌
type TokenIssuer interface {
	GenerateToken(userID uint, username string) (string, error)
}

// RegisterInput 注册参数
type RegisterInput struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=6,max=72"`
}

type UserService struct {
	repo     UserStore
	tokens   TokenIssuer
	validate *validator.Validate
}

func NewUserService(repo UserStore, tokens TokenIssuer) *UserService {
	return &UserService{repo: repo, tokens: tokens, validate: validator.New()}
}

// Register 注册，成功后直接签发 token
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if taken, err := s.repo.ExistsByEmail(ctx, in.Email); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPersistence, err)
	} else if taken {
		return nil, "", ErrEmailTaken
	}
	if taken, err := s.repo.ExistsByUsername(ctx, in.Username); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPersistence, err)
	} else if taken {
		return nil, "", ErrUsernameTaken
	}

	// 密码哈希
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}
	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		LastSeen:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		// 两次检查之间被并发注册抢占
		if errors.Is(err, repository.ErrUserExists) {
			return nil, "", ErrUsernameTaken
		}
		return nil, "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login 登录，identifier 可以是用户名或邮箱
func (s *UserService) Login(ctx context.Context, identifier, plainPassword string) (*model.User, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plainPassword == "" {
		return nil, "", fmt.Errorf("%w: identifier and password are required", ErrValidation)
	}
	u, err := s.repo.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !password.Verify(plainPassword, u.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.GenerateToken(u.ID, u.Username)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}
