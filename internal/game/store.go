package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/cache"
	"github.com/jason-s-yu/examarena/internal/models"
)

// Store is the account and match persistence the orchestration depends on.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetRating(ctx context.Context, id uuid.UUID) (int, error)
	CreateMatch(ctx context.Context, m *models.Match) error
	RecordMatchStart(ctx context.Context, matchID uuid.UUID, startedAt time.Time) error
	// RecordMatchOutcome writes the result and both new ratings atomically.
	RecordMatchOutcome(ctx context.Context, out *models.MatchOutcome) error
	// AbandonMatch marks a match that never started; ratings are not touched.
	AbandonMatch(ctx context.Context, matchID uuid.UUID) error
}

// ActionSink receives the match action log and completion notices.
type ActionSink interface {
	PublishMatchAction(ctx context.Context, rec cache.MatchActionRecord) error
	PublishMatchEnded(ctx context.Context, msg cache.MatchEndedMessage) error
}

const storeTimeout = 5 * time.Second
