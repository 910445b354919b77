package app

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"elib/internal/auth"
	"elib/internal/domain"
	"elib/internal/store"
)

// Register creates a new user and returns it with a signed session token.
// A duplicate email always fails with a conflict, whether it is seen on the
// pre-check or on the store's unique index when two registrations race.
func (a *App) Register(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", domain.Validation("all fields are required")
	}

	_, exists, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", domain.Upstream("error while getting user", err)
	}
	if exists {
		return domain.User{}, "", domain.Conflict("user already exists with this email")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", domain.Upstream("error while hashing password", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, "", domain.Conflict("user already exists with this email")
		}
		return domain.User{}, "", domain.Upstream("error while creating user", err)
	}

	signed, err := a.tokens.Sign(user.ID)
	if err != nil {
		return domain.User{}, "", domain.Upstream("error while signing the jwt token", err)
	}
	return user, signed, nil
}

// Login checks credentials and returns a session token identical in shape to
// the one issued on registration. Unknown email and wrong password surface as
// distinct errors, matching the behavior of the original service.
func (a *App) Login(email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", domain.Validation("all fields are required")
	}

	user, exists, err := a.store.GetUserByEmail(email)
	if err != nil {
		return "", domain.Upstream("error while getting user", err)
	}
	if !exists {
		return "", domain.NotFound("user not found")
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", domain.Authentication("username or password incorrect")
	}

	signed, err := a.tokens.Sign(user.ID)
	if err != nil {
		return "", domain.Upstream("error while signing the jwt token", err)
	}
	return signed, nil
}
