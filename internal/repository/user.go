package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cashtrack/cashtrack/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrIdentityExists = errors.New("identity already linked to a user")
)

const userColumns = `id, full_name, username, password_hash, provider, provider_subject, gender, profile_pic, created_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FullName,
		user.Username,
		nullString(user.PasswordHash),
		nullString(user.Provider),
		nullString(user.ProviderSubject),
		user.Gender,
		user.ProfilePic,
		user.CreatedAt,
	)

	if err != nil {
		switch {
		case isUniqueViolation(err, "users_username_key"):
			return ErrUsernameExists
		case isUniqueViolation(err, "idx_users_provider_subject"):
			return ErrIdentityExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getUser(ctx, "ID", query, id)
}

// GetUserByUsername retrieves a user by their unique username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.getUser(ctx, "username", query, username)
}

// GetUserByProvider retrieves a federated user by provider and subject id.
func (r *Repository) GetUserByProvider(ctx context.Context, provider, subject string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_subject = $2`
	return r.getUser(ctx, "provider", query, provider, subject)
}

// UsernameExists checks if a username is already taken.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

// UpdateUserAvatar replaces the profile picture of a user.
func (r *Repository) UpdateUserAvatar(ctx context.Context, id, profilePic string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET profile_pic = $2 WHERE id = $1`, id, profilePic)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repository) getUser(ctx context.Context, by, query string, args ...any) (*model.User, error) {
	var (
		user                               model.User
		passwordHash, provider, providerID *string
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.FullName,
		&user.Username,
		&passwordHash,
		&provider,
		&providerID,
		&user.Gender,
		&user.ProfilePic,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", by, err)
	}

	user.PasswordHash = derefString(passwordHash)
	user.Provider = derefString(provider)
	user.ProviderSubject = derefString(providerID)

	return &user, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
