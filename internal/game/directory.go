// internal/game/directory.go
package game

import (
	"sync"

	"github.com/google/uuid"
)

type boundHandle struct {
	handle Handle
	userID uuid.UUID
}

// Directory is the registry of live sessions: matches by ID, trainings by user,
// and connection handles back to the user they belong to.
type Directory struct {
	mu        sync.Mutex
	matches   map[uuid.UUID]*Match
	userMatch map[uuid.UUID]uuid.UUID // user ID -> live match ID
	trainings map[uuid.UUID]*Training
	handles   map[string]boundHandle
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		matches:   make(map[uuid.UUID]*Match),
		userMatch: make(map[uuid.UUID]uuid.UUID),
		trainings: make(map[uuid.UUID]*Training),
		handles:   make(map[string]boundHandle),
	}
}

// AddMatch registers m and marks both participants as playing it. It returns
// false if a match with the same ID is already registered.
func (d *Directory) AddMatch(m *Match) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.matches[m.ID]; exists {
		return false
	}
	d.matches[m.ID] = m
	d.userMatch[m.Player1.ID] = m.ID
	d.userMatch[m.Player2.ID] = m.ID
	return true
}

func (d *Directory) GetMatch(id uuid.UUID) (*Match, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.matches[id]
	return m, ok
}

// DeleteMatch forgets the match and releases its participants.
func (d *Directory) DeleteMatch(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.matches[id]
	if !ok {
		return
	}
	delete(d.matches, id)
	for _, uid := range []uuid.UUID{m.Player1.ID, m.Player2.ID} {
		if d.userMatch[uid] == id {
			delete(d.userMatch, uid)
		}
	}
}

// MatchForUser returns the live match userID plays in, if any.
func (d *Directory) MatchForUser(userID uuid.UUID) (*Match, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.userMatch[userID]
	if !ok {
		return nil, false
	}
	m, ok := d.matches[id]
	return m, ok
}

func (d *Directory) GetTraining(userID uuid.UUID) (*Training, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.trainings[userID]
	return t, ok
}

// GetOrCreateTraining returns the user's session, building one with create when absent.
// The bool is true when a new session was created.
func (d *Directory) GetOrCreateTraining(userID uuid.UUID, create func() *Training) (*Training, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.trainings[userID]; ok {
		return t, false
	}
	t := create()
	d.trainings[userID] = t
	return t, true
}

// BindHandle records which user a connection belongs to.
func (d *Directory) BindHandle(h Handle, userID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles[h.ID()] = boundHandle{handle: h, userID: userID}
}

// UserForHandle resolves a connection ID to its user.
func (d *Directory) UserForHandle(handleID string) (uuid.UUID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.handles[handleID]
	return b.userID, ok
}

// Handle returns the live connection with the given ID.
func (d *Directory) Handle(handleID string) (Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.handles[handleID]
	return b.handle, ok
}

// UnbindHandle forgets a connection and returns the user it belonged to.
func (d *Directory) UnbindHandle(handleID string) (uuid.UUID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.handles[handleID]
	if ok {
		delete(d.handles, handleID)
	}
	return b.userID, ok
}

// Counts reports the number of live matches, trainings and bound connections.
func (d *Directory) Counts() (matches, trainings, handles int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.matches), len(d.trainings), len(d.handles)
}
