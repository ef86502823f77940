// Package service holds the business logic between the protocol
// handlers and the repositories: authentication, session lifecycle, and
// the work-order state machine rules.
package service

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/goatkit/goatlink/internal/models"
	"github.com/goatkit/goatlink/internal/protoerrors"
	"github.com/goatkit/goatlink/internal/repository"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 64
)

// AuthService handles account registration and credential checks.
type AuthService struct {
	users repository.UserRepository
}

// NewAuthService creates a new auth service.
func NewAuthService(users repository.UserRepository) *AuthService {
	return &AuthService{users: users}
}

// Register creates a new account. Usernames are unique; passwords are
// stored as bcrypt hashes.
func (s *AuthService) Register(username, password, fullName, userType string) (*models.User, error) {
	const op = "register"

	if username == "" {
		return nil, protoerrors.Validation(op, "username", "username is required")
	}
	if len(username) > maxUsernameLength {
		return nil, protoerrors.Validation(op, "username", "username is too long")
	}
	if len(password) < minPasswordLength {
		return nil, protoerrors.Validation(op, "password", "password must be at least 8 characters")
	}
	if userType == "" {
		userType = models.UserTypeOperator
	}
	if !models.ValidUserType(userType) {
		return nil, protoerrors.Validation(op, "user_type", "unknown user type")
	}

	taken, err := s.users.Exists(username)
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}
	if taken {
		return nil, protoerrors.Conflict(op, "username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		UserType:     userType,
		CreatedAt:    time.Now(),
	}
	if err := s.users.Create(user); err != nil {
		if err == repository.ErrDuplicate {
			return nil, protoerrors.Conflict(op, "username already taken")
		}
		return nil, protoerrors.Internal(op, err)
	}

	user.PasswordHash = ""
	return user, nil
}

// Authenticate verifies credentials and records the login time. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Authenticate(username, password string) (*models.User, error) {
	const op = "login"

	if username == "" || password == "" {
		return nil, protoerrors.Validation(op, "username", "username and password are required")
	}

	user, err := s.users.GetByUsername(username)
	if err == repository.ErrNotFound {
		return nil, protoerrors.BadCredentials(op)
	}
	if err != nil {
		return nil, protoerrors.Internal(op, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, protoerrors.BadCredentials(op)
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(user.ID, now); err == nil {
		user.LastLoginAt = &now
	}

	user.PasswordHash = ""
	return user, nil
}
