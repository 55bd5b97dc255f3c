package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/database"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/jason-s-yu/examarena/internal/tasks"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200
)

// LeaderboardHandler lists users by rating. ?limit= caps the list (default 50, max 200).
func (s *Server) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	users, err := s.Accounts.Leaderboard(r.Context(), limit)
	if err != nil {
		s.Logger.WithError(err).Error("failed to list leaderboard")
		http.Error(w, "failed to list leaderboard", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// UserStatsHandler returns ended/wins/losses/draws for /user/{id}/stats.
func (s *Server) UserStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	stats, err := s.Accounts.UserStats(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to load user stats")
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// MatchHandler returns the persisted match row for /match/{id}.
func (s *Server) MatchHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	m, err := s.Accounts.GetMatch(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.WithError(err).Error("failed to load match")
		http.Error(w, "failed to load match", http.StatusInternalServerError)
		return
	}
	if m.Status != models.MatchStatusEnded {
		m.Player1Answer, m.Player2Answer = nil, nil
	}
	writeJSON(w, http.StatusOK, m)
}

// TrainingOptionsHandler lists the subjects, topics and difficulties a training
// session can filter on.
func (s *Server) TrainingOptionsHandler(w http.ResponseWriter, r *http.Request) {
	opts := tasks.Options{}
	if s.Tasks != nil {
		var err error
		opts, err = s.Tasks.Options(r.Context())
		if err != nil {
			s.Logger.WithError(err).Error("failed to load training options")
			http.Error(w, "failed to load options", http.StatusInternalServerError)
			return
		}
	}
	if len(opts.Difficulties) == 0 {
		opts.Difficulties = tasks.Difficulties
	}
	if opts.Subjects == nil {
		opts.Subjects = []string{}
	}
	if opts.Topics == nil {
		opts.Topics = []string{}
	}
	writeJSON(w, http.StatusOK, opts)
}
