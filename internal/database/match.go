package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/examarena/internal/models"
)

// InsertMatch writes a freshly paired match. Inserting the same ID twice is a no-op.
func InsertMatch(ctx context.Context, m *models.Match) error {
	q := `
		INSERT INTO matches (
			id, player1_id, player2_id, player1_name, player2_name,
			player1_rating, player2_rating, task_id, duration_sec, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	status := m.Status
	if status == "" {
		status = models.MatchStatusPending
	}
	_, err := DB.Exec(ctx, q,
		m.ID, m.Player1ID, m.Player2ID, m.Player1Name, m.Player2Name,
		m.Player1Rating, m.Player2Rating, m.TaskID, m.DurationSec, status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// MarkMatchStarted moves a pending match to started.
func MarkMatchStarted(ctx context.Context, matchID uuid.UUID, startedAt time.Time) error {
	q := `UPDATE matches SET status = 'started', started_at = $2 WHERE id = $1 AND status = 'pending'`
	if _, err := DB.Exec(ctx, q, matchID, startedAt); err != nil {
		return fmt.Errorf("failed to mark match started: %w", err)
	}
	return nil
}

// CommitMatchOutcome writes the result, both new ratings and the rating history
// in one transaction. A match that is already ended is left untouched, so
// repeating the call after an ambiguous failure cannot apply ratings twice.
func CommitMatchOutcome(ctx context.Context, out *models.MatchOutcome) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE matches
			SET status = 'ended', ended_at = $2, winner_user_id = $3, reason = $4,
			    player1_answer = $5, player2_answer = $6,
			    player1_new_rating = $7, player2_new_rating = $8
			WHERE id = $1 AND status <> 'ended'
		`,
			out.MatchID, out.EndedAt, out.WinnerUserID, out.Reason,
			out.Player1Answer, out.Player2Answer,
			out.Player1NewRating, out.Player2NewRating,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := setRatingTx(ctx, tx, out.Player1ID, out.Player1NewRating); err != nil {
			return err
		}
		if err := setRatingTx(ctx, tx, out.Player2ID, out.Player2NewRating); err != nil {
			return err
		}
		return insertRatingRecordsTx(ctx, tx, out.MatchID,
			ratingChange{out.Player1ID, out.Player1OldRating, out.Player1NewRating},
			ratingChange{out.Player2ID, out.Player2OldRating, out.Player2NewRating},
		)
	})
	if err != nil {
		return fmt.Errorf("failed to commit match outcome: %w", err)
	}
	return nil
}

// GetMatchByID loads a persisted match.
func GetMatchByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	q := `
		SELECT id, player1_id, player2_id, player1_name, player2_name,
		       player1_rating, player2_rating, task_id, duration_sec,
		       started_at, ended_at, winner_user_id, COALESCE(reason, ''), status,
		       player1_answer, player2_answer, player1_new_rating, player2_new_rating
		FROM matches
		WHERE id = $1
	`
	var m models.Match
	err := DB.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.Player1ID, &m.Player2ID, &m.Player1Name, &m.Player2Name,
		&m.Player1Rating, &m.Player2Rating, &m.TaskID, &m.DurationSec,
		&m.StartedAt, &m.EndedAt, &m.WinnerUserID, &m.Reason, &m.Status,
		&m.Player1Answer, &m.Player2Answer, &m.Player1NewRating, &m.Player2NewRating,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMatchAbandoned flags a match that never finished. Ended matches are not touched.
func MarkMatchAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error) {
	q := `
		UPDATE matches
		SET status = 'abandoned', ended_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'started')
	`
	tag, err := DB.Exec(ctx, q, matchID)
	if err != nil {
		return false, fmt.Errorf("failed to mark match abandoned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AbandonStaleMatches flags every unfinished match created before cutoff and
// returns how many rows changed.
func AbandonStaleMatches(ctx context.Context, cutoff time.Time) (int64, error) {
	q := `
		UPDATE matches
		SET status = 'abandoned', ended_at = NOW()
		WHERE status IN ('pending', 'started') AND created_at < $1
	`
	tag, err := DB.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon stale matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
