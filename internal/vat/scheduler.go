package vat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type catalogSyncer interface {
	Sync(ctx context.Context) SyncResult
}

// Scheduler loads the tax-rate catalog on startup and then reloads it every
// interval, so rates edited in the database reach running calculators.
type Scheduler struct {
	syncer     catalogSyncer
	logger     *slog.Logger
	interval   time.Duration
	retryDelay time.Duration
	maxRetries int

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewScheduler creates a new catalog reload scheduler.
func NewScheduler(syncer *RateSyncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return newScheduler(syncer, interval, logger)
}

func newScheduler(syncer catalogSyncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		syncer:     syncer,
		logger:     logger,
		interval:   interval,
		retryDelay: time.Minute,
		maxRetries: 3,
		stopCh:     make(chan struct{}),
	}
}

// Start runs an initial sync with ctx and then starts the reload loop in a
// goroutine. It returns the result of the initial sync.
func (s *Scheduler) Start(ctx context.Context) SyncResult {
	s.logger.Info("loading tax-rate catalog on startup")
	result := s.syncer.Sync(ctx)
	if result.Error != nil {
		s.logger.Error("initial tax-rate catalog load failed",
			"error", result.Error,
		)
	} else {
		s.logger.Info("initial tax-rate catalog load completed",
			"source", result.Source,
			"rates_loaded", result.RatesLoaded,
		)
	}

	s.wg.Add(1)
	go s.loop()
	return result
}

// Stop signals the scheduler to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.logger.Info("stopping tax-rate catalog scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSync()
		case <-s.stopCh:
			s.logger.Info("tax-rate catalog scheduler stopped")
			return
		}
	}
}

// runSync performs a reload and logs the result. It creates a background
// context with a 1-minute timeout for the reload.
func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result := s.syncer.Sync(ctx)
	if result.Error != nil {
		s.logger.Error("scheduled tax-rate catalog reload failed",
			"error", result.Error,
		)
		s.retrySync(s.maxRetries, s.retryDelay)
		return
	}

	if result.RatesChanged > 0 {
		s.logger.Info("tax-rate catalog reloaded",
			"rates_loaded", result.RatesLoaded,
			"rates_changed", result.RatesChanged,
		)
	}
}

// retrySync attempts the reload up to maxRetries times with the given delay
// between attempts. It respects the stop signal.
func (s *Scheduler) retrySync(maxRetries int, delay time.Duration) {
	for i := 1; i <= maxRetries; i++ {
		select {
		case <-time.After(delay):
		case <-s.stopCh:
			s.logger.Info("tax-rate catalog retry cancelled: scheduler stopping")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		result := s.syncer.Sync(ctx)
		cancel()

		if result.Error == nil {
			s.logger.Info("tax-rate catalog retry succeeded",
				"attempt", i,
				"rates_loaded", result.RatesLoaded,
			)
			return
		}

		s.logger.Error("tax-rate catalog retry failed",
			"attempt", i,
			"error", result.Error,
		)
	}

	s.logger.Error("all tax-rate catalog retries exhausted",
		"max_retries", maxRetries,
	)
}
