// internal/game/training.go
package game

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/metrics"
	"github.com/jason-s-yu/examarena/internal/tasks"
	"github.com/sirupsen/logrus"
)

// TrainingStats is the rolling score of a training session.
type TrainingStats struct {
	Attempted int `json:"attempted"`
	Solved    int `json:"solved"`
}

// TrainingConfig tunes training laps.
type TrainingConfig struct {
	LapSeconds   int           // countdown length of one lap in ticks
	TickInterval time.Duration // wall time per tick
	Grace        time.Duration // pause between a lap result and the next task
}

// DefaultTrainingConfig is a one minute lap with a 1.5s pause between laps.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LapSeconds:   60,
		TickInterval: time.Second,
		Grace:        1500 * time.Millisecond,
	}
}

// Training is a solo drill: a self-looping sequence of timed laps.
// Generation increments on every deal and on leave; timer callbacks carrying
// an older generation exit without touching state.
type Training struct {
	UserID      uuid.UUID
	Running     bool
	SecondsLeft int
	Task        *tasks.Task
	Filters     tasks.Filters
	Stats       TrainingStats
	Generation  uint64

	Mu sync.Mutex

	cfg      TrainingConfig
	provider tasks.Provider
	handle   Handle
	lapOpen  bool // a task is dealt and still accepts an answer
	log      *logrus.Entry
}

// NewTraining creates an idle training session for userID. A nil logger means
// the logrus standard logger.
func NewTraining(userID uuid.UUID, provider tasks.Provider, cfg TrainingConfig, logger *logrus.Logger) *Training {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.LapSeconds <= 0 {
		cfg.LapSeconds = DefaultTrainingConfig().LapSeconds
	}
	return &Training{
		UserID:   userID,
		cfg:      cfg,
		provider: provider,
		log:      logger.WithField("training_user_id", userID),
	}
}

// Join attaches h and sends the filter options. A running session resends its
// current task; an idle one starts dealing.
func (t *Training) Join(ctx context.Context, h Handle) {
	opts := t.options(ctx)

	t.Mu.Lock()
	t.handle = h
	sendTo(h, Event{Type: EventTrainingOptions, Payload: map[string]interface{}{
		"subjects":     opts.Subjects,
		"topics":       opts.Topics,
		"difficulties": opts.Difficulties,
		"filters":      t.Filters,
	}})
	if t.Running && t.Task != nil {
		sendTo(h, t.taskEventUnsafe())
		t.Mu.Unlock()
		return
	}
	t.Running = true
	gen, f := t.beginDealUnsafe()
	t.Mu.Unlock()

	t.deal(ctx, gen, f)
}

// SetFilters replaces the filters and deals a new task immediately.
func (t *Training) SetFilters(ctx context.Context, f tasks.Filters) error {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return ErrInvalidFilter
	}

	t.Mu.Lock()
	t.Filters = f
	t.Running = true
	gen, f := t.beginDealUnsafe()
	t.Mu.Unlock()

	t.log.WithField("filters", f).Debug("training filters changed")
	t.deal(ctx, gen, f)
	return nil
}

// Submit judges an answer for the open lap. Answers arriving between laps are ignored.
func (t *Training) Submit(answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrEmptyAnswer
	}

	t.Mu.Lock()
	defer t.Mu.Unlock()
	if !t.Running {
		return ErrTrainingNotRunning
	}
	if !t.lapOpen || t.Task == nil {
		return nil
	}

	t.lapOpen = false
	correct := false
	reason := "ungradable"
	if t.Task.Gradable() {
		reason = "answered"
		correct = tasks.IsCorrect(answer, t.Task.Answer)
		t.Stats.Attempted++
		if correct {
			t.Stats.Solved++
		}
	}
	t.sendResultUnsafe(correct, reason)
	t.scheduleNextUnsafe()
	return nil
}

// Leave stops the session. Pending timers see the new generation and exit.
func (t *Training) Leave() {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.Running = false
	t.Generation++
	t.lapOpen = false
	t.Task = nil
	t.SecondsLeft = 0
}

// Detach clears the handle if it is the one attached. The lap keeps running;
// a lap that times out with nobody attached parks the session.
func (t *Training) Detach(handleID string) bool {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	if t.handle == nil || t.handle.ID() != handleID {
		return false
	}
	t.handle = nil
	return true
}

// beginDealUnsafe invalidates the running lap. Assumes lock is held.
func (t *Training) beginDealUnsafe() (uint64, tasks.Filters) {
	t.Generation++
	t.lapOpen = false
	return t.Generation, t.Filters
}

// deal picks a task without holding the lock and installs it if gen is still current.
func (t *Training) deal(ctx context.Context, gen uint64, f tasks.Filters) {
	task := tasks.PickOrPlaceholder(ctx, t.provider, f, t.log)

	t.Mu.Lock()
	defer t.Mu.Unlock()
	if gen != t.Generation || !t.Running {
		return
	}
	t.Task = &task
	t.SecondsLeft = t.cfg.LapSeconds
	t.lapOpen = true
	sendTo(t.handle, t.taskEventUnsafe())
	t.scheduleTickUnsafe(gen)
}

func (t *Training) scheduleTickUnsafe(gen uint64) {
	time.AfterFunc(t.cfg.TickInterval, func() {
		t.tick(gen)
	})
}

func (t *Training) tick(gen uint64) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	if !t.Running || gen != t.Generation || !t.lapOpen {
		return
	}
	if t.SecondsLeft > 0 {
		t.SecondsLeft--
		sendTo(t.handle, Event{Type: EventTrainingTick, Payload: map[string]interface{}{
			"seconds_left": t.SecondsLeft,
		}})
	}
	if t.SecondsLeft > 0 {
		t.scheduleTickUnsafe(gen)
		return
	}

	t.lapOpen = false
	if t.handle == nil {
		t.log.Debug("lap timed out with no client attached, parking training")
		t.Running = false
		t.Task = nil
		return
	}
	t.sendResultUnsafe(false, "timeout")
	t.scheduleNextUnsafe()
}

// scheduleNextUnsafe deals the next task after the grace pause unless the
// session moved on in the meantime. Assumes lock is held.
func (t *Training) scheduleNextUnsafe() {
	gen := t.Generation
	time.AfterFunc(t.cfg.Grace, func() {
		t.Mu.Lock()
		if gen != t.Generation || !t.Running {
			t.Mu.Unlock()
			return
		}
		next, f := t.beginDealUnsafe()
		t.Mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		t.deal(ctx, next, f)
	})
}

func (t *Training) sendResultUnsafe(correct bool, reason string) {
	answer := ""
	if t.Task != nil {
		answer = t.Task.Answer
	}
	metrics.TrainingResults.WithLabelValues(reason, strconv.FormatBool(correct)).Inc()
	sendTo(t.handle, Event{Type: EventTrainingResult, Payload: map[string]interface{}{
		"correct":        correct,
		"reason":         reason,
		"correct_answer": answer,
		"stats":          t.Stats,
	}})
}

func (t *Training) taskEventUnsafe() Event {
	return Event{Type: EventTrainingTask, Payload: map[string]interface{}{
		"subject":      t.Task.Subject,
		"topic":        t.Task.Topic,
		"difficulty":   t.Task.Difficulty,
		"prompt":       t.Task.Prompt,
		"seconds_left": t.SecondsLeft,
		"stats":        t.Stats,
		"filters":      t.Filters,
	}}
}

func (t *Training) options(ctx context.Context) tasks.Options {
	if t.provider == nil {
		return tasks.Options{Difficulties: append([]string(nil), tasks.Difficulties...)}
	}
	opts, err := t.provider.Options(ctx)
	if err != nil {
		t.log.WithError(err).Warn("failed to load training options")
		return tasks.Options{Difficulties: append([]string(nil), tasks.Difficulties...)}
	}
	return opts
}
