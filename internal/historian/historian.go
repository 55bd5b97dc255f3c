// Package historian drains the match action queue into Postgres and marks
// matches that never finished as abandoned.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config controls batching and the abandon sweep.
type Config struct {
	QueueName string
	Channel   string

	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration

	// AbandonAfter is how long a match may go without actions (or, for the
	// database sweep, stay unfinished) before it is marked abandoned.
	AbandonAfter  time.Duration
	SweepInterval time.Duration

	// MaxPending caps the records kept for retry after failed flushes.
	MaxPending int
}

// DefaultConfig mirrors the server defaults.
func DefaultConfig() Config {
	return Config{
		QueueName:     cache.DefaultQueueName,
		Channel:       cache.DefaultEventsChannel,
		BatchSize:     20,
		FlushInterval: 500 * time.Millisecond,
		PopTimeout:    3 * time.Second,
		AbandonAfter:  time.Hour,
		SweepInterval: time.Minute,
		MaxPending:    1000,
	}
}

// Store is the persistence the historian writes to.
type Store interface {
	InsertMatchActions(ctx context.Context, batch []cache.MatchActionRecord) error
	MarkMatchAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error)
	AbandonStaleMatches(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service pops action records from Redis, batches them, and flushes each batch
// in one transaction.
type Service struct {
	rdb   *redis.Client
	store Store
	cfg   Config
	log   *logrus.Entry
	now   func() time.Time

	lastActivity sync.Map // uuid.UUID -> time.Time

	batchMu sync.Mutex
	batch   []cache.MatchActionRecord
}

// New builds a Service. Zero config values take the defaults.
func New(rdb *redis.Client, store Store, cfg Config, logger *logrus.Logger) *Service {
	def := DefaultConfig()
	if cfg.QueueName == "" {
		cfg.QueueName = def.QueueName
	}
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = def.PopTimeout
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = def.AbandonAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	return &Service{
		rdb:   rdb,
		store: store,
		cfg:   cfg,
		log:   logger.WithField("component", "historian"),
		now:   time.Now,
		batch: make([]cache.MatchActionRecord, 0, cfg.BatchSize),
	}
}

// Run blocks until ctx is cancelled. It runs the queue reader, the match_ended
// subscriber and the flush/sweep scheduler, then flushes whatever is left.
func (s *Service) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(s.cfg.FlushInterval),
		gocron.NewTask(func() { s.Flush(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to schedule flush: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(s.cfg.SweepInterval),
		gocron.NewTask(func() { s.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error {
		pub := &cache.Publisher{Client: s.rdb, QueueName: s.cfg.QueueName, Channel: s.cfg.Channel}
		return pub.SubscribeMatchEnded(gctx, s.handleMatchEnded)
	})

	sched.Start()
	s.log.Info("historian started")

	err = g.Wait()
	if shutdownErr := sched.Shutdown(); shutdownErr != nil {
		s.log.WithError(shutdownErr).Warn("scheduler shutdown failed")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("historian stopped")
	return err
}

// readLoop pops records with BLPop so that cancellation is noticed within PopTimeout.
func (s *Service) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := s.rdb.BLPop(ctx, s.cfg.PopTimeout, s.cfg.QueueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the list name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		s.handlePayload(ctx, res[1])
	}
}

func (s *Service) handlePayload(ctx context.Context, payload string) {
	var rec cache.MatchActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.log.WithError(err).Warn("invalid action record")
		return
	}
	if rec.MatchID == uuid.Nil {
		s.log.Warn("action record without match id")
		return
	}
	if rec.ActionType == "match_end" {
		s.lastActivity.Delete(rec.MatchID)
	} else {
		s.lastActivity.Store(rec.MatchID, s.now())
	}
	s.append(ctx, rec)
}

func (s *Service) handleMatchEnded(msg cache.MatchEndedMessage) {
	s.lastActivity.Delete(msg.MatchID)
}

// append adds a record and flushes when the batch is full.
func (s *Service) append(ctx context.Context, rec cache.MatchActionRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.cfg.BatchSize {
		s.flushUnsafe(ctx)
	}
}

// Flush writes the pending batch.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushUnsafe(ctx)
}

// flushUnsafe assumes batchMu is held. A failed batch stays pending for the next
// flush; inserts are idempotent on (match_id, action_index).
func (s *Service) flushUnsafe(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	pending := make([]cache.MatchActionRecord, len(s.batch))
	copy(pending, s.batch)

	if err := s.store.InsertMatchActions(ctx, pending); err != nil {
		s.log.WithError(err).Errorf("failed to flush %d actions", len(pending))
		if over := len(s.batch) - s.cfg.MaxPending; over > 0 {
			s.log.Errorf("dropping %d oldest pending actions", over)
			s.batch = append(s.batch[:0], s.batch[over:]...)
		}
		return
	}
	s.batch = s.batch[:0]
	s.log.Debugf("flushed %d actions", len(pending))
}

// Pending returns how many records wait for the next flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

// Sweep marks matches abandoned: those whose last action is older than
// AbandonAfter, and any unfinished row created before now - AbandonAfter.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val interface{}) bool {
		matchID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.AbandonAfter {
			return true
		}
		changed, err := s.store.MarkMatchAbandoned(ctx, matchID)
		if err != nil {
			s.log.WithError(err).WithField("match_id", matchID).Error("failed to mark match abandoned")
			return true
		}
		if changed {
			s.log.WithField("match_id", matchID).Info("marked match abandoned after inactivity")
		}
		s.lastActivity.Delete(matchID)
		return true
	})

	n, err := s.store.AbandonStaleMatches(ctx, now.Add(-s.cfg.AbandonAfter))
	if err != nil {
		s.log.WithError(err).Error("stale match sweep failed")
		return
	}
	if n > 0 {
		s.log.Infof("marked %d stale matches abandoned", n)
	}
}
