// internal/game/match.go
package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/cache"
	"github.com/jason-s-yu/examarena/internal/metrics"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/jason-s-yu/examarena/internal/rating"
	"github.com/jason-s-yu/examarena/internal/tasks"
	"github.com/sirupsen/logrus"
)

// MatchStatus is the lifecycle state of a match. It only moves forward.
type MatchStatus string

const (
	StatusPending MatchStatus = "pending" // created, waiting for both players to attach
	StatusStarted MatchStatus = "started" // countdown running
	StatusEnded   MatchStatus = "ended"   // terminal
)

func (s MatchStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusStarted:
		return 1
	case StatusEnded:
		return 2
	}
	return -1
}

// Reason explains why a match completed.
type Reason string

const (
	ReasonBothSubmitted Reason = "both_submitted"
	ReasonTime          Reason = "time"
	ReasonSurrender     Reason = "surrender"
	ReasonDisconnect    Reason = "disconnect"
	ReasonAbandoned     Reason = "abandoned" // not joined in time; ratings unchanged
)

// PlayerInfo identifies a match participant. Rating is the value at pairing time
// until the match ends, when Result carries the updated one.
type PlayerInfo struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Rating int       `json:"rating"`
}

// Submission is one player's answer state. FirstCorrectAt never changes once set.
type Submission struct {
	Answer           string
	SubmittedAt      time.Time
	FirstSubmittedAt time.Time
	FirstCorrectAt   *time.Time
}

// MatchConfig tunes a match.
type MatchConfig struct {
	Duration     int           // countdown length in ticks
	TickInterval time.Duration // wall time per tick
	K            int           // Elo K-factor
	ForfeitAfter time.Duration // detached players forfeit after this long; zero disables
	JoinTimeout  time.Duration // a match not started by then is abandoned; zero disables
}

// DefaultMatchConfig is a ten minute match at one tick per second.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Duration:     600,
		TickInterval: time.Second,
		K:            rating.DefaultK,
		JoinTimeout:  time.Minute,
	}
}

// Result is the final state of a completed match.
type Result struct {
	MatchID        uuid.UUID
	Winner         *uuid.UUID // nil for a draw
	Reason         Reason
	Player1        PlayerInfo // Rating is the post-match rating
	Player2        PlayerInfo
	Player1Before  int
	Player2Before  int
	Player1Answer  *string
	Player2Answer  *string
	Player1Correct bool
	Player2Correct bool
	CorrectAnswer  string
	EndedAt        time.Time
}

func (r Result) payload() map[string]interface{} {
	var winner interface{}
	if r.Winner != nil {
		winner = r.Winner.String()
	}
	var a1, a2 interface{}
	if r.Player1Answer != nil {
		a1 = *r.Player1Answer
	}
	if r.Player2Answer != nil {
		a2 = *r.Player2Answer
	}
	return map[string]interface{}{
		"winner_user_id": winner,
		"reason":         string(r.Reason),
		"p1_id":          r.Player1.ID.String(),
		"p2_id":          r.Player2.ID.String(),
		"p1_name":        r.Player1.Name,
		"p2_name":        r.Player2.Name,
		"correct_answer": r.CorrectAnswer,
		"p1_answer":      a1,
		"p2_answer":      a2,
		"p1_correct":     r.Player1Correct,
		"p2_correct":     r.Player2Correct,
		"p1_rating":      r.Player1.Rating,
		"p2_rating":      r.Player2.Rating,
		"p1_delta":       r.Player1.Rating - r.Player1Before,
		"p2_delta":       r.Player2.Rating - r.Player2Before,
	}
}

// Match is the live state of one duel. All fields are guarded by Mu.
type Match struct {
	ID          uuid.UUID
	Player1     PlayerInfo
	Player2     PlayerInfo
	Task        tasks.Task // fixed for the lifetime of the match
	Duration    int
	SecondsLeft int
	Status      MatchStatus
	Submissions map[uuid.UUID]*Submission
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time

	Mu sync.Mutex

	cfg           MatchConfig
	handles       [2]Handle
	attachGen     [2]uint64 // bumped on every attach; stale forfeit timers compare against it
	timerGen      uint64    // bumped when the match ends; stale ticks compare against it
	tickTimer     *time.Timer
	joinTimer     *time.Timer
	forfeitTimers [2]*time.Timer
	actionIndex   int

	Store   Store
	Actions ActionSink
	// OnEnd runs once, after the result is persisted and broadcast.
	OnEnd func(res Result)

	now func() time.Time
	log *logrus.Entry
}

// NewMatch creates a pending match between p1 and p2 over task. A nil logger
// means the logrus standard logger.
func NewMatch(id uuid.UUID, p1, p2 PlayerInfo, task tasks.Task, cfg MatchConfig, logger *logrus.Logger) *Match {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.K <= 0 {
		cfg.K = rating.DefaultK
	}
	return &Match{
		ID:          id,
		Player1:     p1,
		Player2:     p2,
		Task:        task,
		Duration:    cfg.Duration,
		SecondsLeft: cfg.Duration,
		Status:      StatusPending,
		Submissions: make(map[uuid.UUID]*Submission),
		CreatedAt:   time.Now(),
		cfg:         cfg,
		now:         time.Now,
		log:         logger.WithField("match_id", id),
	}
}

// foundPayload describes the match from userID's side for a match:found event.
func (m *Match) foundPayload(userID uuid.UUID) map[string]interface{} {
	opponent := m.Player1
	if userID == m.Player1.ID {
		opponent = m.Player2
	}
	return map[string]interface{}{
		"match_id":        m.ID.String(),
		"opponent_name":   opponent.Name,
		"opponent_rating": opponent.Rating,
	}
}

// IsParticipant reports whether userID plays in this match.
func (m *Match) IsParticipant(userID uuid.UUID) bool {
	return userID == m.Player1.ID || userID == m.Player2.ID
}

// Attach binds a player's connection to the match, sends them the task and the
// current state, and starts the countdown once both players are attached.
func (m *Match) Attach(userID uuid.UUID, h Handle) error {
	m.Mu.Lock()
	idx := m.playerIndex(userID)
	if idx < 0 {
		m.Mu.Unlock()
		return ErrNotParticipant
	}
	if m.Status == StatusEnded {
		m.Mu.Unlock()
		return nil
	}

	m.handles[idx] = h
	m.attachGen[idx]++
	if t := m.forfeitTimers[idx]; t != nil {
		t.Stop()
		m.forfeitTimers[idx] = nil
	}

	m.broadcastUnsafe(m.taskEventUnsafe())
	m.broadcastStateUnsafe()
	m.logActionUnsafe(userID, "match_join", nil)

	started := false
	if m.handles[0] != nil && m.handles[1] != nil && m.advanceUnsafe(StatusStarted) {
		m.StartedAt = m.now()
		m.broadcastUnsafe(Event{Type: EventMatchStarted, Payload: map[string]interface{}{
			"seconds_left": m.SecondsLeft,
		}})
		m.logActionUnsafe(uuid.Nil, "match_start", map[string]interface{}{"seconds_left": m.SecondsLeft})
		if m.joinTimer != nil {
			m.joinTimer.Stop()
			m.joinTimer = nil
		}
		m.scheduleTickUnsafe()
		started = true
	}
	startedAt := m.StartedAt
	m.Mu.Unlock()

	if started {
		m.log.Info("both players attached, match started")
		m.recordStart(startedAt)
	}
	return nil
}

// Detach clears the connection with the given handle ID from the match.
// The match keeps running; with ForfeitAfter set a forfeit is scheduled.
func (m *Match) Detach(handleID string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	detached := false
	for idx, h := range m.handles {
		if h == nil || h.ID() != handleID {
			continue
		}
		m.handles[idx] = nil
		detached = true
		m.logActionUnsafe(m.player(idx).ID, "match_disconnect", nil)
		if m.Status == StatusStarted && m.cfg.ForfeitAfter > 0 {
			m.scheduleForfeitUnsafe(idx)
		}
	}
	return detached
}

// armJoinDeadline abandons the match if both players have not attached within
// JoinTimeout. Call it once the match is registered and OnEnd is set.
func (m *Match) armJoinDeadline() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.cfg.JoinTimeout <= 0 || m.Status != StatusPending {
		return
	}
	m.joinTimer = time.AfterFunc(m.cfg.JoinTimeout, func() {
		if m.Complete(ReasonAbandoned, nil) {
			m.log.Info("players did not join in time, match abandoned")
		}
	})
}

// Submit records a participant's answer. The second participant to submit ends the match.
func (m *Match) Submit(userID uuid.UUID, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrEmptyAnswer
	}

	m.Mu.Lock()
	if m.playerIndex(userID) < 0 {
		m.Mu.Unlock()
		return ErrNotParticipant
	}
	switch m.Status {
	case StatusEnded:
		m.Mu.Unlock()
		return nil
	case StatusPending:
		m.Mu.Unlock()
		return ErrMatchNotRunning
	}

	now := m.now()
	sub, ok := m.Submissions[userID]
	if !ok {
		sub = &Submission{FirstSubmittedAt: now}
		m.Submissions[userID] = sub
	}
	sub.Answer = answer
	sub.SubmittedAt = now
	correct := tasks.IsCorrect(answer, m.Task.Answer)
	if correct && sub.FirstCorrectAt == nil {
		at := now
		sub.FirstCorrectAt = &at
	}

	m.broadcastUnsafe(Event{Type: EventMatchSubmitted, Payload: map[string]interface{}{
		"user_id": userID.String(),
	}})
	m.logActionUnsafe(userID, "match_submit", map[string]interface{}{
		"answer":       answer,
		"correct":      correct,
		"seconds_left": m.SecondsLeft,
	})
	both := m.Submissions[m.Player1.ID] != nil && m.Submissions[m.Player2.ID] != nil
	m.Mu.Unlock()

	if both {
		m.Complete(ReasonBothSubmitted, nil)
	}
	return nil
}

// Surrender ends the match in favour of the other participant.
func (m *Match) Surrender(userID uuid.UUID) error {
	m.Mu.Lock()
	idx := m.playerIndex(userID)
	if idx < 0 {
		m.Mu.Unlock()
		return ErrNotParticipant
	}
	if m.Status == StatusEnded {
		m.Mu.Unlock()
		return nil
	}
	winner := m.player(1 - idx).ID
	m.logActionUnsafe(userID, "match_surrender", nil)
	m.Mu.Unlock()

	m.Complete(ReasonSurrender, &winner)
	return nil
}

// Complete ends the match. Only the first call from any path does anything;
// it returns false for every later call. For surrender and disconnect the
// declared winner is used, otherwise the submissions are judged. An abandoned
// match only ends while still pending and leaves both ratings as they were.
func (m *Match) Complete(reason Reason, declared *uuid.UUID) bool {
	m.Mu.Lock()
	if reason == ReasonAbandoned && m.Status != StatusPending {
		m.Mu.Unlock()
		return false
	}
	if !m.advanceUnsafe(StatusEnded) {
		m.Mu.Unlock()
		return false
	}
	m.EndedAt = m.now()
	m.timerGen++
	m.stopTimersUnsafe()

	winner := declared
	switch reason {
	case ReasonSurrender, ReasonDisconnect:
	case ReasonAbandoned:
		winner = nil
	default:
		winner = judge(m.Player1.ID, m.Player2.ID, m.Submissions, m.Task.Answer)
	}
	a1, ok1 := m.answerUnsafe(m.Player1.ID)
	a2, ok2 := m.answerUnsafe(m.Player2.ID)
	p1, p2 := m.Player1, m.Player2
	endedAt := m.EndedAt
	m.Mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var r1, r2, n1, n2 int
	if reason == ReasonAbandoned {
		r1, r2 = p1.Rating, p2.Rating
		n1, n2 = r1, r2
		m.recordAbandoned(ctx)
	} else {
		r1 = m.currentRating(ctx, p1)
		r2 = m.currentRating(ctx, p2)
		score1 := rating.Draw
		if winner != nil {
			if *winner == p1.ID {
				score1 = rating.Win
			} else {
				score1 = rating.Loss
			}
		}
		n1, n2 = rating.Apply(r1, r2, score1, m.cfg.K)
	}

	if m.Store != nil && reason != ReasonAbandoned {
		out := &models.MatchOutcome{
			MatchID:          m.ID,
			WinnerUserID:     winner,
			Reason:           string(reason),
			EndedAt:          endedAt,
			Player1ID:        p1.ID,
			Player2ID:        p2.ID,
			Player1Answer:    a1,
			Player2Answer:    a2,
			Player1OldRating: r1,
			Player2OldRating: r2,
			Player1NewRating: n1,
			Player2NewRating: n2,
		}
		if err := m.Store.RecordMatchOutcome(ctx, out); err != nil {
			m.log.WithError(err).Error("failed to persist match outcome")
			metrics.PersistFailures.WithLabelValues("match_outcome").Inc()
		}
	}

	res := Result{
		MatchID:        m.ID,
		Winner:         winner,
		Reason:         reason,
		Player1:        PlayerInfo{ID: p1.ID, Name: p1.Name, Rating: n1},
		Player2:        PlayerInfo{ID: p2.ID, Name: p2.Name, Rating: n2},
		Player1Before:  r1,
		Player2Before:  r2,
		Player1Answer:  a1,
		Player2Answer:  a2,
		Player1Correct: ok1,
		Player2Correct: ok2,
		CorrectAnswer:  m.Task.Answer,
		EndedAt:        endedAt,
	}

	m.Mu.Lock()
	m.broadcastUnsafe(Event{Type: EventMatchEnded, Payload: res.payload()})
	m.logActionUnsafe(uuid.Nil, "match_end", map[string]interface{}{
		"reason":    string(reason),
		"winner":    res.payload()["winner_user_id"],
		"p1_rating": n1,
		"p2_rating": n2,
	})
	m.Mu.Unlock()

	m.log.WithFields(logrus.Fields{"reason": reason, "winner": winner}).Info("match ended")
	metrics.MatchesEnded.WithLabelValues(string(reason)).Inc()
	m.publishEnded(res)

	if m.OnEnd != nil {
		m.OnEnd(res)
	}
	return true
}

// judge applies first-correct-wins. Both wrong, both missing, or equal first-correct
// times are a draw.
func judge(p1, p2 uuid.UUID, subs map[uuid.UUID]*Submission, correct string) *uuid.UUID {
	s1, s2 := subs[p1], subs[p2]
	ok1 := s1 != nil && tasks.IsCorrect(s1.Answer, correct)
	ok2 := s2 != nil && tasks.IsCorrect(s2.Answer, correct)

	switch {
	case ok1 && !ok2:
		return uuidPtr(p1)
	case ok2 && !ok1:
		return uuidPtr(p2)
	case ok1 && ok2:
		t1, t2 := s1.FirstCorrectAt, s2.FirstCorrectAt
		if t1 == nil || t2 == nil {
			return nil
		}
		if t1.Before(*t2) {
			return uuidPtr(p1)
		}
		if t2.Before(*t1) {
			return uuidPtr(p2)
		}
	}
	return nil
}

// scheduleTickUnsafe arms the next countdown step. Assumes lock is held.
func (m *Match) scheduleTickUnsafe() {
	gen := m.timerGen
	m.tickTimer = time.AfterFunc(m.cfg.TickInterval, func() {
		m.tick(gen)
	})
}

func (m *Match) tick(gen uint64) {
	m.Mu.Lock()
	if m.Status != StatusStarted || gen != m.timerGen {
		m.Mu.Unlock()
		return
	}
	if m.SecondsLeft > 0 {
		m.SecondsLeft--
		m.broadcastUnsafe(Event{Type: EventMatchTick, Payload: map[string]interface{}{
			"seconds_left": m.SecondsLeft,
		}})
	}
	if m.SecondsLeft > 0 {
		m.scheduleTickUnsafe()
		m.Mu.Unlock()
		return
	}
	m.Mu.Unlock()

	m.Complete(ReasonTime, nil)
}

// scheduleForfeitUnsafe ends the match for the other player if slot idx stays
// detached for ForfeitAfter. Assumes lock is held.
func (m *Match) scheduleForfeitUnsafe(idx int) {
	gen := m.attachGen[idx]
	winner := m.player(1 - idx).ID
	if t := m.forfeitTimers[idx]; t != nil {
		t.Stop()
	}
	m.forfeitTimers[idx] = time.AfterFunc(m.cfg.ForfeitAfter, func() {
		m.Mu.Lock()
		stale := m.Status != StatusStarted || m.attachGen[idx] != gen || m.handles[idx] != nil
		m.Mu.Unlock()
		if stale {
			return
		}
		m.log.WithField("user_id", m.player(idx).ID).Info("player did not return, forfeiting")
		m.Complete(ReasonDisconnect, &winner)
	})
}

func (m *Match) stopTimersUnsafe() {
	if m.tickTimer != nil {
		m.tickTimer.Stop()
	}
	if m.joinTimer != nil {
		m.joinTimer.Stop()
		m.joinTimer = nil
	}
	for i, t := range m.forfeitTimers {
		if t != nil {
			t.Stop()
			m.forfeitTimers[i] = nil
		}
	}
}

func (m *Match) advanceUnsafe(to MatchStatus) bool {
	if to.rank() <= m.Status.rank() {
		return false
	}
	m.Status = to
	return true
}

func (m *Match) playerIndex(userID uuid.UUID) int {
	switch userID {
	case m.Player1.ID:
		return 0
	case m.Player2.ID:
		return 1
	}
	return -1
}

func (m *Match) player(idx int) PlayerInfo {
	if idx == 0 {
		return m.Player1
	}
	return m.Player2
}

func (m *Match) answerUnsafe(userID uuid.UUID) (*string, bool) {
	sub := m.Submissions[userID]
	if sub == nil {
		return nil, false
	}
	return strPtr(sub.Answer), tasks.IsCorrect(sub.Answer, m.Task.Answer)
}

// currentRating reads the account rating, falling back to the pairing snapshot.
func (m *Match) currentRating(ctx context.Context, p PlayerInfo) int {
	if m.Store == nil {
		return p.Rating
	}
	r, err := m.Store.GetRating(ctx, p.ID)
	if err != nil {
		m.log.WithError(err).WithField("user_id", p.ID).Warn("rating read failed, using pairing snapshot")
		return p.Rating
	}
	return r
}

func (m *Match) recordStart(startedAt time.Time) {
	if m.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.Store.RecordMatchStart(ctx, m.ID, startedAt); err != nil {
		m.log.WithError(err).Error("failed to persist match start")
		metrics.PersistFailures.WithLabelValues("match_start").Inc()
	}
}

func (m *Match) recordAbandoned(ctx context.Context) {
	if m.Store == nil {
		return
	}
	if err := m.Store.AbandonMatch(ctx, m.ID); err != nil {
		m.log.WithError(err).Error("failed to persist abandoned match")
		metrics.PersistFailures.WithLabelValues("abandon_match").Inc()
	}
}

func (m *Match) publishEnded(res Result) {
	if m.Actions == nil {
		return
	}
	msg := cache.MatchEndedMessage{
		MatchID:       res.MatchID,
		WinnerUserID:  res.Winner,
		Reason:        string(res.Reason),
		Player1ID:     res.Player1.ID,
		Player2ID:     res.Player2.ID,
		Player1Rating: res.Player1.Rating,
		Player2Rating: res.Player2.Rating,
		EndedAt:       res.EndedAt.UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Actions.PublishMatchEnded(ctx, msg); err != nil {
			m.log.WithError(err).Warn("failed to publish match ended")
		}
	}()
}

// broadcastUnsafe sends ev to every attached player. Assumes lock is held.
func (m *Match) broadcastUnsafe(ev Event) {
	for _, h := range m.handles {
		sendTo(h, ev)
	}
}

// broadcastStateUnsafe sends each attached player the match state with their own name as "me".
func (m *Match) broadcastStateUnsafe() {
	for idx, h := range m.handles {
		sendTo(h, Event{Type: EventMatchState, Payload: map[string]interface{}{
			"running":      m.Status == StatusStarted,
			"seconds_left": m.SecondsLeft,
			"me":           m.player(idx).Name,
			"p1":           m.Player1.Name,
			"p2":           m.Player2.Name,
		}})
	}
}

func (m *Match) taskEventUnsafe() Event {
	return Event{Type: EventMatchTask, Payload: map[string]interface{}{
		"subject":    m.Task.Subject,
		"topic":      m.Task.Topic,
		"difficulty": m.Task.Difficulty,
		"prompt":     m.Task.Prompt,
		"kind":       m.Task.Kind,
	}}
}

// logActionUnsafe pushes an action record to the historian queue. Assumes lock is held.
func (m *Match) logActionUnsafe(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	m.actionIndex++
	if m.Actions == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.MatchActionRecord{
		MatchID:       m.ID,
		ActionIndex:   m.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     m.now().UnixMilli(),
	}
	go func(rec cache.MatchActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Actions.PublishMatchAction(ctx, rec); err != nil {
			m.log.WithError(err).Warnf("failed to publish action %d", rec.ActionIndex)
		}
	}(record)
}

func (m *Match) ended() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Status == StatusEnded
}
