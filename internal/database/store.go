package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/game"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/sirupsen/logrus"
)

var _ game.Store = (*Store)(nil)

// Store serves the live game core from Postgres. Writes that fail are retried
// once after RetryDelay before the error is returned.
type Store struct {
	RetryDelay time.Duration
}

// NewStore returns a Store using the global pool.
func NewStore() *Store {
	return &Store{RetryDelay: 200 * time.Millisecond}
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

func (s *Store) GetRating(ctx context.Context, id uuid.UUID) (int, error) {
	return GetUserRating(ctx, id)
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	return retryOnce(ctx, s.RetryDelay, "create match", func(ctx context.Context) error {
		return InsertMatch(ctx, m)
	})
}

func (s *Store) RecordMatchStart(ctx context.Context, matchID uuid.UUID, startedAt time.Time) error {
	return retryOnce(ctx, s.RetryDelay, "record match start", func(ctx context.Context) error {
		return MarkMatchStarted(ctx, matchID, startedAt)
	})
}

func (s *Store) RecordMatchOutcome(ctx context.Context, out *models.MatchOutcome) error {
	return retryOnce(ctx, s.RetryDelay, "record match outcome", func(ctx context.Context) error {
		return CommitMatchOutcome(ctx, out)
	})
}

func (s *Store) AbandonMatch(ctx context.Context, matchID uuid.UUID) error {
	return retryOnce(ctx, s.RetryDelay, "abandon match", func(ctx context.Context) error {
		_, err := MarkMatchAbandoned(ctx, matchID)
		return err
	})
}

// retryOnce runs fn, and once more after delay if it failed.
func retryOnce(ctx context.Context, delay time.Duration, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	logrus.WithError(err).Warnf("%s failed, retrying once", op)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, err)
	case <-timer.C:
	}

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s failed after retry: %w", op, err)
	}
	return nil
}
