package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/examarena/internal/models"
)

// ErrNotFound is returned by Accounts lookups when no row exists.
var ErrNotFound = errors.New("not found")

// Accounts exposes the user and match queries served over REST.
type Accounts struct {
	DefaultRating int
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (a *Accounts) CreateUser(ctx context.Context, u *models.User) error {
	return CreateUser(ctx, u, a.DefaultRating)
}

func (a *Accounts) Authenticate(ctx context.Context, username, password string) (string, *models.User, error) {
	return AuthenticateUser(ctx, username, password)
}

func (a *Accounts) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := GetUserByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	u.Password = ""
	return u, nil
}

func (a *Accounts) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	return ListLeaderboard(ctx, limit)
}

func (a *Accounts) UserStats(ctx context.Context, id uuid.UUID) (*models.UserStats, error) {
	if _, err := GetUserRating(ctx, id); err != nil {
		return nil, notFound(err)
	}
	return GetUserStats(ctx, id)
}

func (a *Accounts) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	m, err := GetMatchByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}
