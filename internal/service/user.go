// Package service holds the business rules. Handlers translate HTTP into
// calls here; repositories and the session cache sit underneath.
//
//	Handler (HTTP) → UserService / QuestionService → repository, cache, notify
//
// Services never see an http.Request. They return apperror values and the
// handler layer decides what status code each one means.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/auth"
	"github.com/sakif/consulthub/internal/cache"
	"github.com/sakif/consulthub/internal/model"
	"github.com/sakif/consulthub/internal/repository"
)

// Me is the path alias for the authenticated caller.
const Me = "me"

// UserService covers registration, sessions and profile updates.
type UserService struct {
	users     repository.UserRepository
	sessions  cache.SessionStore
	passwords *auth.PasswordService
	email     *regexp.Regexp
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	sessions cache.SessionStore,
	passwords *auth.PasswordService,
	emailDomain string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		email:     emailPattern(emailDomain),
		logger:    logger,
	}
}

// RegisterInput is a registration request whose required keys are known to
// be present. Notifications is nil when the client sent none.
type RegisterInput struct {
	Username      string
	Email         string
	Password      string
	Field         string
	Notifications *model.NotificationsPatch
}

// Register creates an account.
//
// Checks run in a fixed order so clients get the first problem only:
// credential format, then empty field, then username taken, then email
// taken.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.ToLower(in.Username)
	email := strings.ToLower(in.Email)

	if !validUsername(username) || !validPassword(in.Password) || !s.email.MatchString(email) {
		return nil, apperror.ValidationFailed("username", "Invalid username, password or email(only Gmail)")
	}
	if in.Field == "" {
		return nil, apperror.ValidationFailed("field", "Field cannot be empty")
	}
	if reservedField(in.Field) {
		return nil, apperror.ValidationFailed("field", "Invalid field")
	}

	if err := s.ensureFree(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}

	notifications := model.DefaultNotifications()
	if in.Notifications != nil {
		notifications = in.Notifications.Apply(notifications)
	}

	user := &model.User{
		ID:            model.NewID(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Field:         in.Field,
		Notifications: notifications,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: creating %s: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.String("field", user.Field),
	)
	return user, nil
}

// ensureFree pre-checks uniqueness so the client learns which of the two
// collided. The UNIQUE constraints still catch races.
func (s *UserService) ensureFree(ctx context.Context, username, email string) error {
	_, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return apperror.Conflict("Account with username already exists")
	case !errors.Is(err, apperror.ErrNotFound):
		return fmt.Errorf("service/user: checking username: %w", err)
	}

	_, err = s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return apperror.Conflict("Account with email already exists")
	case !errors.Is(err, apperror.ErrNotFound):
		return fmt.Errorf("service/user: checking email: %w", err)
	}
	return nil
}

// Login verifies credentials and opens a session. It returns the new token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.ToLower(username)

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("Invalid username")
		}
		return "", fmt.Errorf("service/user: loading %s: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", apperror.Unauthorized("Invalid password")
		}
		return "", fmt.Errorf("service/user: verifying password: %w", err)
	}

	token := auth.NewToken()
	ok, err := s.sessions.Set(ctx, token, user.Username)
	if err != nil {
		return "", apperror.Internal("Failed to create token", err)
	}
	if !ok {
		return "", apperror.Internal("Failed to create token", errors.New("session write not acknowledged"))
	}

	s.logger.Info("user logged in", slog.String("username", user.Username))
	return token, nil
}

// Logout ends the session. An already-expired token is not an error.
func (s *UserService) Logout(ctx context.Context, token string) error {
	if _, err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("service/user: deleting session: %w", err)
	}
	return nil
}

// Lookup resolves a username from a URL. "me" is the caller.
func (s *UserService) Lookup(ctx context.Context, caller *model.User, username string) (*model.User, error) {
	if username == Me {
		return caller, nil
	}
	user, err := s.users.GetUserByUsername(ctx, strings.ToLower(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("username", "Invalid username")
		}
		return nil, fmt.Errorf("service/user: loading %s: %w", username, err)
	}
	return user, nil
}

// ProfileUpdate carries the mutable attributes. A nil Field or an empty
// patch leaves that part alone.
type ProfileUpdate struct {
	Field         *string
	Notifications *model.NotificationsPatch
}

// IsEmpty reports whether the update would change nothing.
func (u ProfileUpdate) IsEmpty() bool {
	noField := u.Field == nil || *u.Field == ""
	noNotifications := u.Notifications == nil || u.Notifications.IsEmpty()
	return noField && noNotifications
}

// UpdateProfile applies u to user and persists it. updated is false for an
// empty update, in which case nothing is written.
func (s *UserService) UpdateProfile(ctx context.Context, user *model.User, u ProfileUpdate) (updated bool, err error) {
	if u.IsEmpty() {
		return false, nil
	}

	next := *user
	if u.Field != nil && *u.Field != "" {
		if !validField(*u.Field) {
			return false, apperror.ValidationFailed("field", "Invalid field")
		}
		next.Field = *u.Field
	}
	if u.Notifications != nil {
		next.Notifications = u.Notifications.Apply(next.Notifications)
	}

	if err := s.users.UpdateUser(ctx, &next); err != nil {
		return false, fmt.Errorf("service/user: updating %s: %w", user.Username, err)
	}
	*user = next

	s.logger.Info("user profile updated",
		slog.String("username", user.Username),
		slog.String("field", user.Field),
	)
	return true, nil
}
