package models

import (
	"time"

	"github.com/google/uuid"
)

// Match is a row of the matches table. Ratings are the snapshots taken at pairing time.
type Match struct {
	ID uuid.UUID `json:"id"`

	Player1ID     uuid.UUID `json:"player1_id"`
	Player2ID     uuid.UUID `json:"player2_id"`
	Player1Name   string    `json:"player1_name"`
	Player2Name   string    `json:"player2_name"`
	Player1Rating int       `json:"player1_rating"`
	Player2Rating int       `json:"player2_rating"`

	TaskID      *int64     `json:"task_id,omitempty"`
	DurationSec int        `json:"duration_sec"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	WinnerUserID *uuid.UUID `json:"winner_user_id"` // nil = draw
	Reason       string     `json:"reason,omitempty"`
	Status       string     `json:"status"` // pending|started|ended|abandoned

	// Set once the match has ended.
	Player1Answer    *string `json:"player1_answer,omitempty"`
	Player2Answer    *string `json:"player2_answer,omitempty"`
	Player1NewRating *int    `json:"player1_new_rating,omitempty"`
	Player2NewRating *int    `json:"player2_new_rating,omitempty"`
}

// Match statuses as stored. Abandoned is set by the historian for matches
// that never finished.
const (
	MatchStatusPending   = "pending"
	MatchStatusStarted   = "started"
	MatchStatusEnded     = "ended"
	MatchStatusAbandoned = "abandoned"
)

// MatchOutcome is everything written when a match completes: the result row update
// and both players' new ratings, committed together.
type MatchOutcome struct {
	MatchID      uuid.UUID
	WinnerUserID *uuid.UUID
	Reason       string
	EndedAt      time.Time

	Player1ID     uuid.UUID
	Player2ID     uuid.UUID
	Player1Answer *string
	Player2Answer *string

	Player1OldRating int
	Player2OldRating int
	Player1NewRating int
	Player2NewRating int
}
