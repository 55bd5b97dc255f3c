package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ratingChange struct {
	userID    uuid.UUID
	oldRating int
	newRating int
}

func setRatingTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, rating int) error {
	_, err := tx.Exec(ctx, `UPDATE users SET rating = $1 WHERE id = $2`, rating, userID)
	if err != nil {
		return fmt.Errorf("failed to update rating of %s: %w", userID, err)
	}
	return nil
}

// insertRatingRecordsTx logs rating changes in the ratings table.
func insertRatingRecordsTx(ctx context.Context, tx pgx.Tx, matchID uuid.UUID, changes ...ratingChange) error {
	q := `
		INSERT INTO ratings (user_id, match_id, old_rating, new_rating)
		VALUES ($1, $2, $3, $4)
	`
	for _, c := range changes {
		if _, err := tx.Exec(ctx, q, c.userID, matchID, c.oldRating, c.newRating); err != nil {
			return fmt.Errorf("failed to insert rating record: %w", err)
		}
	}
	return nil
}
