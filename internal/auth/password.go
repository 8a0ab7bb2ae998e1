// Package auth handles account registration, login, and session tokens.
// Passwords are bcrypt-hashed; sessions are short-lived HS256 JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"messbook/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid phone or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrPhoneExists        = errors.New("phone already registered")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// UserStorage is the slice of the repository the authenticator needs.
type UserStorage interface {
	CreateUser(ctx context.Context, user storage.User) error
	GetUserByPhone(ctx context.Context, phone string) (*storage.User, error)
	GetUserByID(ctx context.Context, id string) (*storage.User, error)
}

// PasswordAuthenticator implements phone+password authentication using bcrypt.
type PasswordAuthenticator struct {
	storage UserStorage
}

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage UserStorage) *PasswordAuthenticator {
	return &PasswordAuthenticator{storage: storage}
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// Register creates a new account with a hashed password.
func (a *PasswordAuthenticator) Register(ctx context.Context, phone, displayName, credential string) (*storage.User, error) {
	if !phonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	existing, err := a.storage.GetUserByPhone(ctx, phone)
	if err == nil && existing != nil {
		return nil, ErrPhoneExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := storage.User{
		ID:           uuid.New().String(),
		Phone:        phone,
		Name:         displayName,
		PasswordHash: string(hashed),
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.storage.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &user, nil
}

// Authenticate verifies the phone and password, returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, phone, credential string) (*storage.User, error) {
	user, err := a.storage.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
