// Package matchmaking holds players waiting for a 1v1 match and pairs them by rating.
package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one waiting player.
type Entry struct {
	UserID      uuid.UUID
	DisplayName string
	Rating      int
	Handle      string // transport handle the entry was queued from
	JoinedAt    time.Time
}

// Pairing is the result of Join. When Paired is false the joiner is now waiting.
type Pairing struct {
	Paired   bool
	Joiner   Entry
	Opponent Entry
}

// Queue is the in-memory matchmaking queue. Entries are kept in arrival order
// and at most one entry exists per user.
type Queue struct {
	mu      sync.Mutex
	waiting []Entry

	// MaxRatingGap skips candidates further apart than this. Zero means unbounded.
	MaxRatingGap int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Join replaces any existing entry for the user, then pairs it with the waiting
// player of closest rating. Ties go to whoever has waited longest.
func (q *Queue) Join(e Entry) Pairing {
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeUserUnsafe(e.UserID)

	best := -1
	bestDiff := 0
	for i, w := range q.waiting {
		if w.UserID == e.UserID {
			continue
		}
		diff := abs(w.Rating - e.Rating)
		if q.MaxRatingGap > 0 && diff > q.MaxRatingGap {
			continue
		}
		if best == -1 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}

	if best == -1 {
		q.waiting = append(q.waiting, e)
		return Pairing{Joiner: e}
	}

	opp := q.waiting[best]
	q.waiting = append(q.waiting[:best], q.waiting[best+1:]...)
	return Pairing{Paired: true, Joiner: e, Opponent: opp}
}

// Leave removes the user's entry. It reports whether an entry was removed.
func (q *Queue) Leave(userID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeUserUnsafe(userID)
}

// LeaveByHandle removes every entry queued from the given transport handle.
func (q *Queue) LeaveByHandle(handle string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := false
	kept := q.waiting[:0]
	for _, w := range q.waiting {
		if w.Handle == handle {
			removed = true
			continue
		}
		kept = append(kept, w)
	}
	q.waiting = kept
	return removed
}

// Contains reports whether the user is waiting.
func (q *Queue) Contains(userID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range q.waiting {
		if w.UserID == userID {
			return true
		}
	}
	return false
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Snapshot returns a copy of the waiting entries in arrival order.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.waiting))
	copy(out, q.waiting)
	return out
}

func (q *Queue) removeUserUnsafe(userID uuid.UUID) bool {
	for i, w := range q.waiting {
		if w.UserID == userID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
