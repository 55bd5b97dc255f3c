package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/examarena/internal/cache"
)

// InsertMatchActions persists a batch of logged match actions in one transaction.
// Records already stored (same match and index) are skipped.
func InsertMatchActions(ctx context.Context, batch []cache.MatchActionRecord) error {
	if len(batch) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := insertMatchActionTx(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert match actions: %w", err)
	}
	return nil
}

func insertMatchActionTx(ctx context.Context, tx pgx.Tx, rec cache.MatchActionRecord) error {
	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return fmt.Errorf("failed to encode payload of action %d: %w", rec.ActionIndex, err)
	}
	q := `
		INSERT INTO match_actions (match_id, action_index, actor_user_id, action_type, action_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, action_index) DO NOTHING
	`
	_, err = tx.Exec(ctx, q, rec.MatchID, rec.ActionIndex, rec.ActorUserID, rec.ActionType, payload)
	return err
}

// HistorianStore adapts the package functions to historian.Store.
type HistorianStore struct{}

func (HistorianStore) InsertMatchActions(ctx context.Context, batch []cache.MatchActionRecord) error {
	return InsertMatchActions(ctx, batch)
}

func (HistorianStore) MarkMatchAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error) {
	return MarkMatchAbandoned(ctx, matchID)
}

func (HistorianStore) AbandonStaleMatches(ctx context.Context, cutoff time.Time) (int64, error) {
	return AbandonStaleMatches(ctx, cutoff)
}
