package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/models"
)

// GetUserStats counts a user's ended matches by result.
func GetUserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	q := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE winner_user_id = $1),
			COUNT(*) FILTER (WHERE winner_user_id IS NOT NULL AND winner_user_id <> $1),
			COUNT(*) FILTER (WHERE winner_user_id IS NULL)
		FROM matches
		WHERE status = 'ended' AND (player1_id = $1 OR player2_id = $1)
	`
	s := models.UserStats{UserID: userID}
	if err := DB.QueryRow(ctx, q, userID).Scan(&s.Ended, &s.Wins, &s.Losses, &s.Draws); err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}
	return &s, nil
}
