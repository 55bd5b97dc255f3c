// internal/game/hub.go
package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/matchmaking"
	"github.com/jason-s-yu/examarena/internal/metrics"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/jason-s-yu/examarena/internal/tasks"
	"github.com/sirupsen/logrus"
)

// HubConfig carries the per-session settings the Hub hands to new sessions.
type HubConfig struct {
	Match    MatchConfig
	Training TrainingConfig
}

// Hub routes every inbound client event to the queue, match or training it concerns.
// Operations return *Error values the transport turns into toasts.
type Hub struct {
	Dir     *Directory
	Queue   *matchmaking.Queue
	Store   Store
	Tasks   tasks.Provider
	Actions ActionSink

	cfg   HubConfig
	log   *logrus.Logger
	newID func() uuid.UUID
}

// NewHub wires a Hub. actions may be nil when no Redis is configured.
func NewHub(dir *Directory, queue *matchmaking.Queue, store Store, provider tasks.Provider, actions ActionSink, cfg HubConfig, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		Dir:     dir,
		Queue:   queue,
		Store:   store,
		Tasks:   provider,
		Actions: actions,
		cfg:     cfg,
		log:     logger,
		newID:   uuid.New,
	}
}

// Connect associates a fresh connection with an authenticated user.
// Anonymous connections are never bound and fail every operation with ErrNotAuthenticated.
func (hub *Hub) Connect(h Handle, userID uuid.UUID) {
	if userID == uuid.Nil {
		return
	}
	hub.Dir.BindHandle(h, userID)
}

// Disconnect cleans up after a closed connection: its queue entry is dropped and
// any match or training it was attached to keeps running without it.
func (hub *Hub) Disconnect(h Handle) {
	if hub.Queue.LeaveByHandle(h.ID()) {
		metrics.QueueWaiting.Set(float64(hub.Queue.Len()))
	}
	userID, ok := hub.Dir.UnbindHandle(h.ID())
	if !ok {
		return
	}
	if m, ok := hub.Dir.MatchForUser(userID); ok {
		m.Detach(h.ID())
	}
	if t, ok := hub.Dir.GetTraining(userID); ok {
		t.Detach(h.ID())
	}
}

// JoinQueue enqueues the user and, if an opponent of close rating waits, starts a match.
func (hub *Hub) JoinQueue(ctx context.Context, h Handle) error {
	userID, err := hub.userFor(h)
	if err != nil {
		return err
	}
	if m, ok := hub.Dir.MatchForUser(userID); ok && !m.ended() {
		// Remind the client which match it belongs to so it can join or surrender.
		h.Send(Event{Type: EventMatchFound, Payload: m.foundPayload(userID)})
		return ErrAlreadyInMatch
	}
	user, err := hub.Store.GetUser(ctx, userID)
	if err != nil {
		hub.log.WithError(err).WithField("user_id", userID).Warn("queue join: user lookup failed")
		return ErrUserNotFound
	}

	p := hub.Queue.Join(matchmaking.Entry{
		UserID:      user.ID,
		DisplayName: user.Username,
		Rating:      user.Rating,
		Handle:      h.ID(),
		JoinedAt:    time.Now(),
	})
	metrics.QueueWaiting.Set(float64(hub.Queue.Len()))
	if !p.Paired {
		h.Send(Event{Type: EventQueueStatus, Payload: map[string]interface{}{
			"status": "searching",
			"rating": user.Rating,
		}})
		return nil
	}

	hub.startMatch(ctx, p)
	return nil
}

// LeaveQueue removes the user from the queue. It always answers with an idle status.
func (hub *Hub) LeaveQueue(h Handle) {
	if userID, ok := hub.Dir.UserForHandle(h.ID()); ok {
		hub.Queue.Leave(userID)
	} else {
		hub.Queue.LeaveByHandle(h.ID())
	}
	metrics.QueueWaiting.Set(float64(hub.Queue.Len()))
	h.Send(Event{Type: EventQueueStatus, Payload: map[string]interface{}{"status": "idle"}})
}

// startMatch creates the match for a pairing and tells both players about it.
// The joiner becomes player 1.
func (hub *Hub) startMatch(ctx context.Context, p matchmaking.Pairing) {
	task := tasks.PickOrPlaceholder(ctx, hub.Tasks, tasks.Filters{}, hub.log)
	p1 := PlayerInfo{ID: p.Joiner.UserID, Name: p.Joiner.DisplayName, Rating: p.Joiner.Rating}
	p2 := PlayerInfo{ID: p.Opponent.UserID, Name: p.Opponent.DisplayName, Rating: p.Opponent.Rating}

	m := NewMatch(hub.newID(), p1, p2, task, hub.cfg.Match, hub.log)
	m.Store = hub.Store
	m.Actions = hub.Actions
	m.OnEnd = func(res Result) {
		hub.Dir.DeleteMatch(res.MatchID)
		metrics.LiveMatches.Dec()
	}
	if !hub.Dir.AddMatch(m) {
		hub.log.WithField("match_id", m.ID).Error("match id already registered, dropping pairing")
		return
	}
	metrics.MatchesCreated.Inc()
	metrics.LiveMatches.Inc()

	row := &models.Match{
		ID:            m.ID,
		Player1ID:     p1.ID,
		Player2ID:     p2.ID,
		Player1Name:   p1.Name,
		Player2Name:   p2.Name,
		Player1Rating: p1.Rating,
		Player2Rating: p2.Rating,
		TaskID:        task.ID,
		DurationSec:   m.Duration,
		Status:        string(StatusPending),
	}
	if err := hub.Store.CreateMatch(ctx, row); err != nil {
		hub.log.WithError(err).WithField("match_id", m.ID).Error("failed to persist new match")
		metrics.PersistFailures.WithLabelValues("create_match").Inc()
	}
	m.armJoinDeadline()

	hub.log.WithFields(logrus.Fields{
		"match_id": m.ID,
		"player1":  p1.ID,
		"player2":  p2.ID,
	}).Info("players paired")

	hub.notifyFound(p.Joiner, m)
	hub.notifyFound(p.Opponent, m)
}

func (hub *Hub) notifyFound(to matchmaking.Entry, m *Match) {
	h, ok := hub.Dir.Handle(to.Handle)
	if !ok {
		return
	}
	h.Send(Event{Type: EventMatchFound, Payload: m.foundPayload(to.UserID)})
}

// JoinMatch attaches the connection to a match it participates in.
func (hub *Hub) JoinMatch(ctx context.Context, h Handle, matchID string) error {
	userID, m, err := hub.matchFor(h, matchID)
	if err != nil {
		return err
	}
	return m.Attach(userID, h)
}

// SubmitMatchAnswer records an answer in a running match.
func (hub *Hub) SubmitMatchAnswer(ctx context.Context, h Handle, matchID, answer string) error {
	userID, m, err := hub.matchFor(h, matchID)
	if err != nil {
		return err
	}
	return m.Submit(userID, answer)
}

// Surrender concedes a match.
func (hub *Hub) Surrender(ctx context.Context, h Handle, matchID string) error {
	userID, m, err := hub.matchFor(h, matchID)
	if err != nil {
		return err
	}
	return m.Surrender(userID)
}

// JoinTraining attaches the connection to the user's training, creating it if needed.
func (hub *Hub) JoinTraining(ctx context.Context, h Handle) error {
	userID, err := hub.userFor(h)
	if err != nil {
		return err
	}
	t, created := hub.Dir.GetOrCreateTraining(userID, func() *Training {
		return NewTraining(userID, hub.Tasks, hub.cfg.Training, hub.log)
	})
	if created {
		metrics.LiveTrainings.Inc()
	}
	t.Join(ctx, h)
	return nil
}

// SetTrainingFilters changes the filters of the user's training and deals a fresh task.
func (hub *Hub) SetTrainingFilters(ctx context.Context, h Handle, f tasks.Filters) error {
	t, err := hub.trainingFor(h)
	if err != nil {
		return err
	}
	return t.SetFilters(ctx, f)
}

// SubmitTrainingAnswer judges an answer for the current lap.
func (hub *Hub) SubmitTrainingAnswer(ctx context.Context, h Handle, answer string) error {
	t, err := hub.trainingFor(h)
	if err != nil {
		return err
	}
	return t.Submit(answer)
}

// LeaveTraining stops the user's training. The session and its stats are kept for a later join.
func (hub *Hub) LeaveTraining(ctx context.Context, h Handle) error {
	t, err := hub.trainingFor(h)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	t.Leave()
	return nil
}

func (hub *Hub) userFor(h Handle) (uuid.UUID, error) {
	userID, ok := hub.Dir.UserForHandle(h.ID())
	if !ok {
		return uuid.Nil, ErrNotAuthenticated
	}
	return userID, nil
}

func (hub *Hub) matchFor(h Handle, matchID string) (uuid.UUID, *Match, error) {
	userID, err := hub.userFor(h)
	if err != nil {
		return uuid.Nil, nil, err
	}
	id, err := uuid.Parse(matchID)
	if err != nil {
		return uuid.Nil, nil, ErrInvalidMatchID
	}
	m, ok := hub.Dir.GetMatch(id)
	if !ok {
		return uuid.Nil, nil, ErrMatchNotFound
	}
	if !m.IsParticipant(userID) {
		return uuid.Nil, nil, ErrNotParticipant
	}
	return userID, m, nil
}

func (hub *Hub) trainingFor(h Handle) (*Training, error) {
	userID, err := hub.userFor(h)
	if err != nil {
		return nil, err
	}
	t, ok := hub.Dir.GetTraining(userID)
	if !ok {
		return nil, ErrTrainingNotFound
	}
	return t, nil
}
