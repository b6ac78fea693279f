// Package scheduler runs the periodic price refresh for the tracked item.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/runesync/internal/logger"
	"github.com/rewired-gh/runesync/internal/models"
)

// PriceSource fetches prices from upstream.
type PriceSource interface {
	FetchCurrentPrice(ctx context.Context, item models.TrackedItem) (models.PriceSample, models.Item, error)
	FetchHistory(ctx context.Context, item models.Item, timestep string) ([]models.PriceSample, error)
}

// Store is the subset of the history store the scheduler writes to.
type Store interface {
	Append(ctx context.Context, sample *models.PriceSample) error
	AppendAll(ctx context.Context, samples []models.PriceSample) error
	Latest(ctx context.Context, itemID string) (*models.PriceSample, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	SaveItem(ctx context.Context, alias string, item models.Item) error
	ItemByAlias(ctx context.Context, alias string) (*models.Item, error)
}

// Reporter is told about the first failure of a run of failed cycles and
// about the first success after it.
type Reporter interface {
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

// Config holds scheduler parameters.
type Config struct {
	Interval         time.Duration
	Jitter           float64 // fraction of Interval added at random to each wait
	Retention        time.Duration
	Backfill         bool
	BackfillTimestep string
}

// Scheduler refreshes the price of one item. At most one cycle is in flight;
// a trigger that arrives while a cycle runs is dropped.
type Scheduler struct {
	source   PriceSource
	store    Store
	reporter Reporter
	item     models.TrackedItem
	config   Config
	now      func() time.Time

	inFlight atomic.Bool
	halted   atomic.Bool

	// closed once Run's context is done; in-flight cycles then write nothing
	shutdown     chan struct{}
	shutdownOnce sync.Once

	mu         sync.RWMutex
	status     models.RefreshStatus
	backfilled bool
}

// New creates a scheduler. reporter may be nil.
func New(source PriceSource, store Store, reporter Reporter, item models.TrackedItem, cfg Config) *Scheduler {
	return &Scheduler{
		source:   source,
		store:    store,
		reporter: reporter,
		item:     item,
		config:   cfg,
		now:      time.Now,
		status:   models.RefreshStatus{State: models.StateIdle},
		shutdown: make(chan struct{}),
	}
}

// Status returns a copy of the current refresh status.
func (s *Scheduler) Status() models.RefreshStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run refreshes immediately when no fresh sample is stored, then every
// interval plus jitter, until ctx is cancelled or the item turns out not to
// exist upstream.
func (s *Scheduler) Run(ctx context.Context) error {
	// kept registered after a halt so manual refreshes still stop on shutdown
	context.AfterFunc(ctx, s.stop)

	delay, err := s.initialDelay(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.stop()
			return nil
		}
		return err
	}
	logger.Info("Starting refresh scheduler for %q (interval: %v, jitter: %.0f%%, first refresh in %v)",
		s.item.Name, s.config.Interval, s.config.Jitter*100, delay.Round(time.Second))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			logger.Info("Refresh scheduler stopped")
			return nil
		case <-timer.C:
			if _, err := s.cycle(ctx, "timer"); errors.Is(err, models.ErrItemNotFound) {
				logger.Error("Refresh scheduler halted: %v", err)
				return nil
			}
			timer.Reset(s.nextDelay())
		}
	}
}

// RefreshNow runs a cycle unless one is already in flight, in which case it
// returns false without contacting upstream. The cycle is abandoned when
// either ctx or the context passed to Run is cancelled.
func (s *Scheduler) RefreshNow(ctx context.Context) (bool, error) {
	return s.cycle(ctx, "manual")
}

func (s *Scheduler) stop() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// cycleContext returns a context cancelled with parent or on shutdown.
func (s *Scheduler) cycleContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// abandoned reports why results of a cycle must not be written, if they
// must not. The shutdown channel is checked directly because cycleContext
// cancels asynchronously.
func (s *Scheduler) abandoned(ctx context.Context) error {
	select {
	case <-s.shutdown:
		return context.Canceled
	default:
		return ctx.Err()
	}
}

// initialDelay is zero for an empty or stale history, otherwise the time
// left until the latest sample is one interval old.
func (s *Scheduler) initialDelay(ctx context.Context) (time.Duration, error) {
	item, err := s.store.ItemByAlias(ctx, s.item.Key())
	if err != nil {
		return 0, fmt.Errorf("failed to look up tracked item: %w", err)
	}
	if item == nil {
		return 0, nil
	}
	latest, err := s.store.Latest(ctx, item.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest sample: %w", err)
	}
	if latest == nil {
		return 0, nil
	}
	s.mu.Lock()
	s.backfilled = true
	s.status.LastSuccess = latest.Timestamp
	s.mu.Unlock()

	if wait := latest.Timestamp.Add(s.config.Interval).Sub(s.now()); wait > 0 {
		return wait, nil
	}
	return 0, nil
}

func (s *Scheduler) nextDelay() time.Duration {
	d := s.config.Interval
	if s.config.Jitter > 0 {
		d += time.Duration(rand.Float64() * s.config.Jitter * float64(s.config.Interval))
	}
	return d
}

func (s *Scheduler) cycle(ctx context.Context, trigger string) (bool, error) {
	if s.halted.Load() {
		return false, fmt.Errorf("refresh disabled: %w", models.ErrItemNotFound)
	}
	if err := s.abandoned(ctx); err != nil {
		return false, err
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		logger.Debug("Refresh already in flight, dropping %s trigger", trigger)
		return false, nil
	}
	defer s.inFlight.Store(false)

	ctx, cancel := s.cycleContext(ctx)
	defer cancel()

	cycleID := uuid.NewString()
	start := s.now()
	s.mu.Lock()
	s.status.State = models.StateFetching
	s.status.LastCycleID = cycleID
	s.status.LastAttempt = start
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.status.State = models.StateIdle
		s.mu.Unlock()
	}()

	logger.Debug("[%s] Starting %s refresh of %q", cycleID, trigger, s.item.Name)
	sample, item, err := s.source.FetchCurrentPrice(ctx, s.item)
	if err == nil {
		err = s.persist(ctx, cycleID, sample, item)
	}
	if err != nil {
		if cancelErr := s.abandoned(ctx); cancelErr != nil {
			logger.Info("[%s] Refresh cancelled, discarding result", cycleID)
			return true, cancelErr
		}
		s.recordFailure(cycleID, err)
		return true, err
	}

	s.recordSuccess(cycleID, sample)
	logger.Info("[%s] Refreshed %s: %d %s in %v", cycleID, item.Name, sample.Price, s.item.Unit, s.now().Sub(start).Round(time.Millisecond))
	return true, nil
}

// persist writes the fetched sample, together with a backfill when the
// history is empty, in one transaction and prunes beyond retention. Nothing
// is written once the cycle has been abandoned.
func (s *Scheduler) persist(ctx context.Context, cycleID string, sample models.PriceSample, item models.Item) error {
	s.mu.RLock()
	backfilled := s.backfilled
	s.mu.RUnlock()

	batch := []models.PriceSample{sample}
	if !backfilled {
		batch = append(s.backfill(ctx, cycleID, item, sample.Timestamp), sample)
	}

	if err := s.abandoned(ctx); err != nil {
		return err
	}
	if err := s.store.SaveItem(ctx, s.item.Key(), item); err != nil {
		logger.Warn("[%s] Failed to save item metadata: %v", cycleID, err)
	}
	if err := s.store.AppendAll(ctx, batch); err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}
	if !backfilled {
		s.mu.Lock()
		s.backfilled = true
		s.mu.Unlock()
		if len(batch) > 1 {
			logger.Info("[%s] Backfilled %d %s samples for %s", cycleID, len(batch)-1, s.config.BackfillTimestep, item.Name)
		}
	}

	if s.config.Retention > 0 {
		n, err := s.store.Prune(ctx, s.now().Add(-s.config.Retention))
		if err != nil {
			logger.Warn("[%s] Failed to prune history: %v", cycleID, err)
		} else if n > 0 {
			logger.Debug("[%s] Pruned %d samples older than %v", cycleID, n, s.config.Retention)
		}
	}
	return nil
}

// backfill returns upstream timeseries points to seed an empty history,
// limited to retention and to points before the fetched sample. Failures are
// logged and not retried; the history then grows one sample per cycle.
func (s *Scheduler) backfill(ctx context.Context, cycleID string, item models.Item, before time.Time) []models.PriceSample {
	if !s.config.Backfill {
		return nil
	}

	latest, err := s.store.Latest(ctx, item.ID)
	if err != nil || latest != nil {
		return nil
	}

	history, err := s.source.FetchHistory(ctx, item, s.config.BackfillTimestep)
	if err != nil {
		logger.Warn("[%s] Backfill failed: %v", cycleID, err)
		return nil
	}
	cutoff := s.now().Add(-s.config.Retention)
	kept := make([]models.PriceSample, 0, len(history))
	for _, h := range history {
		if h.Timestamp.Before(before) && (s.config.Retention <= 0 || !h.Timestamp.Before(cutoff)) {
			kept = append(kept, h)
		}
	}
	return kept
}

func (s *Scheduler) recordFailure(cycleID string, err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures++
	failures := s.status.ConsecutiveFailures
	if errors.Is(err, models.ErrItemNotFound) {
		s.status.UnknownItem = true
		s.halted.Store(true)
	}
	s.mu.Unlock()

	logger.Error("[%s] Refresh failed: %v", cycleID, err)
	if failures == 1 && s.reporter != nil {
		if sendErr := s.reporter.SendError(err); sendErr != nil {
			logger.Warn("Failed to send error notification: %v", sendErr)
		}
	}
}

func (s *Scheduler) recordSuccess(cycleID string, sample models.PriceSample) {
	s.mu.Lock()
	failures := s.status.ConsecutiveFailures
	s.status.ConsecutiveFailures = 0
	s.status.LastError = ""
	s.status.LastSuccess = sample.Timestamp
	s.mu.Unlock()

	if failures > 0 {
		logger.Info("[%s] Refresh recovered after %d failure(s)", cycleID, failures)
		if s.reporter != nil {
			if sendErr := s.reporter.SendRecovery(failures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
	}
}
