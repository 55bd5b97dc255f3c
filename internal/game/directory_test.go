// internal/game/directory_test.go
package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryMatches(t *testing.T) {
	d := NewDirectory()
	p1, p2 := PlayerInfo{ID: uuid.New(), Name: "a"}, PlayerInfo{ID: uuid.New(), Name: "b"}
	m := NewMatch(uuid.New(), p1, p2, sumTask(), quietMatchConfig(), nil)

	require.True(t, d.AddMatch(m))
	assert.False(t, d.AddMatch(m))
	got, ok := d.GetMatch(m.ID)
	require.True(t, ok)
	assert.Same(t, m, got)

	byUser, ok := d.MatchForUser(p2.ID)
	require.True(t, ok)
	assert.Same(t, m, byUser)

	d.DeleteMatch(m.ID)
	_, ok = d.GetMatch(m.ID)
	assert.False(t, ok)
	_, ok = d.MatchForUser(p1.ID)
	assert.False(t, ok)

	// Deleting twice is harmless.
	d.DeleteMatch(m.ID)
}

func TestDirectoryDeleteKeepsNewerMatch(t *testing.T) {
	d := NewDirectory()
	p1, p2, p3 := PlayerInfo{ID: uuid.New()}, PlayerInfo{ID: uuid.New()}, PlayerInfo{ID: uuid.New()}
	old := NewMatch(uuid.New(), p1, p2, sumTask(), quietMatchConfig(), nil)
	newer := NewMatch(uuid.New(), p1, p3, sumTask(), quietMatchConfig(), nil)

	d.AddMatch(old)
	d.AddMatch(newer)
	d.DeleteMatch(old.ID)

	m, ok := d.MatchForUser(p1.ID)
	require.True(t, ok)
	assert.Equal(t, newer.ID, m.ID)
	_, ok = d.MatchForUser(p2.ID)
	assert.False(t, ok)
}

func TestDirectoryTrainings(t *testing.T) {
	d := NewDirectory()
	userID := uuid.New()
	calls := 0
	create := func() *Training {
		calls++
		return NewTraining(userID, nil, slowTrainingConfig(), nil)
	}

	first, created := d.GetOrCreateTraining(userID, create)
	assert.True(t, created)
	second, created := d.GetOrCreateTraining(userID, create)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	got, ok := d.GetTraining(userID)
	require.True(t, ok)
	assert.Same(t, first, got)
	_, ok = d.GetTraining(uuid.New())
	assert.False(t, ok)
}

func TestDirectoryHandles(t *testing.T) {
	d := NewDirectory()
	h := newMockHandle()
	userID := uuid.New()

	_, ok := d.UserForHandle(h.ID())
	assert.False(t, ok)

	d.BindHandle(h, userID)
	got, ok := d.UserForHandle(h.ID())
	require.True(t, ok)
	assert.Equal(t, userID, got)
	hh, ok := d.Handle(h.ID())
	require.True(t, ok)
	assert.Equal(t, h.ID(), hh.ID())

	matches, trainings, handles := d.Counts()
	assert.Equal(t, 0, matches)
	assert.Equal(t, 0, trainings)
	assert.Equal(t, 1, handles)

	unbound, ok := d.UnbindHandle(h.ID())
	assert.True(t, ok)
	assert.Equal(t, userID, unbound)
	_, ok = d.UnbindHandle(h.ID())
	assert.False(t, ok)
}
