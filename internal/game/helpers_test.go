// internal/game/helpers_test.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/jason-s-yu/examarena/internal/tasks"
)

// mockHandle collects events instead of sending them over WS.
type mockHandle struct {
	id     string
	mu     sync.Mutex
	events []Event
}

func newMockHandle() *mockHandle {
	return &mockHandle{id: uuid.NewString()}
}

func (h *mockHandle) ID() string { return h.id }

func (h *mockHandle) Send(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *mockHandle) eventsOf(typ EventType) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (h *mockHandle) count(typ EventType) int {
	return len(h.eventsOf(typ))
}

func (h *mockHandle) last(typ EventType) *Event {
	evs := h.eventsOf(typ)
	if len(evs) == 0 {
		return nil
	}
	return &evs[len(evs)-1]
}

func (h *mockHandle) types() []EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventType, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Type
	}
	return out
}

func (h *mockHandle) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory Store that records every write.
type fakeStore struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*models.User
	created    []*models.Match
	started    map[uuid.UUID]time.Time
	outcomes   []*models.MatchOutcome
	abandoned  []uuid.UUID
	ratingErr  error
	outcomeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[uuid.UUID]*models.User),
		started: make(map[uuid.UUID]time.Time),
	}
}

func (s *fakeStore) addUser(name string, rating int) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.New(), Username: name, Rating: rating}
	s.users[u.ID] = u
	cp := *u
	return &cp
}

func (s *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) GetRating(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ratingErr != nil {
		return 0, s.ratingErr
	}
	u, ok := s.users[id]
	if !ok {
		return 0, errors.New("no rows")
	}
	return u.Rating, nil
}

func (s *fakeStore) CreateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, m)
	return nil
}

func (s *fakeStore) RecordMatchStart(_ context.Context, matchID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[matchID] = startedAt
	return nil
}

func (s *fakeStore) RecordMatchOutcome(_ context.Context, out *models.MatchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomeErr != nil {
		return s.outcomeErr
	}
	s.outcomes = append(s.outcomes, out)
	if u, ok := s.users[out.Player1ID]; ok {
		u.Rating = out.Player1NewRating
	}
	if u, ok := s.users[out.Player2ID]; ok {
		u.Rating = out.Player2NewRating
	}
	return nil
}

func (s *fakeStore) AbandonMatch(_ context.Context, matchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, matchID)
	return nil
}

func (s *fakeStore) abandonedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.abandoned)
}

func (s *fakeStore) outcomeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

func (s *fakeStore) lastOutcome() *models.MatchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return nil
	}
	return s.outcomes[len(s.outcomes)-1]
}

// fakeClock hands out controllable timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sumTask() tasks.Task {
	id := int64(7)
	return tasks.Task{
		ID:         &id,
		Subject:    "Математика",
		Topic:      "Арифметика",
		Difficulty: tasks.DifficultyEasy,
		Prompt:     "2 + 40 = ?",
		Answer:     "42",
		Kind:       "number",
		Active:     true,
	}
}
