package service

import "errors"

var (
	// ErrValidation 输入不合法，未做任何持久化
	ErrValidation = errors.New("validation failed")
	// ErrPersistence 存储不可用，操作失败且不会广播
	ErrPersistence = errors.New("persistence failure")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("user with this email already exists")
)
