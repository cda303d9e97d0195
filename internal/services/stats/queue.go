// Package stats records supplier purchase prices off the request path.
package stats

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/metrics"
	"github.com/forgecommerce/invoicing/internal/store"
)

const defaultQueueSize = 256

// Repository is the storage the queue writes to; *store.Queries satisfies it.
type Repository interface {
	UpsertSupplierPrice(ctx context.Context, p store.SupplierPrice) error
}

// Price is the purchase price of one product reference.
type Price struct {
	Ref   string
	Price decimal.Decimal
}

// Job updates the supplier prices of one purchase document.
type Job struct {
	DocumentID uuid.UUID
	SupplierID uuid.UUID
	Prices     []Price

	barrier chan struct{}
}

// Queue processes jobs with a single background worker. Jobs are applied in
// the order they were enqueued.
type Queue struct {
	repo    Repository
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
	jobs    chan Job
	once    sync.Once
	wg      sync.WaitGroup
}

// NewQueue creates a queue holding up to size pending jobs. Call Start to
// begin processing.
func NewQueue(repo Repository, size int, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{
		repo:    repo,
		logger:  logger,
		metrics: m,
		jobs:    make(chan Job, size),
	}
}

// Start launches the worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.loop()
}

// Enqueue schedules job without blocking. It returns false when the queue is
// full or stopped; the job is dropped in that case.
func (q *Queue) Enqueue(job Job) bool {
	if len(job.Prices) == 0 {
		return true
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return false
	}

	select {
	case q.jobs <- job:
		q.metrics.SetStatsQueueDepth(len(q.jobs))
		return true
	default:
		q.logger.Warn("supplier price queue full, dropping job",
			"document_id", job.DocumentID,
			"supplier_id", job.SupplierID,
		)
		return false
	}
}

// Drain blocks until every job enqueued before the call has been processed
// or ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	done := make(chan struct{})

	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		return nil
	}
	select {
	case q.jobs <- Job{barrier: done}:
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new jobs, lets the worker finish the buffered ones and waits
// for it to exit. Safe to call multiple times.
func (q *Queue) Stop() {
	q.once.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

func (q *Queue) loop() {
	defer q.wg.Done()

	for job := range q.jobs {
		q.metrics.SetStatsQueueDepth(len(q.jobs))
		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		q.process(job)
	}
}

func (q *Queue) process(job Job) {
	ctx := context.Background()

	var failed error
	for _, p := range job.Prices {
		err := q.repo.UpsertSupplierPrice(ctx, store.SupplierPrice{
			SupplierID: job.SupplierID,
			ProductRef: p.Ref,
			Price:      p.Price,
			DocumentID: job.DocumentID,
		})
		if err != nil {
			q.logger.Error("failed to record supplier price",
				"document_id", job.DocumentID,
				"product_ref", p.Ref,
				"error", err,
			)
			failed = err
		}
	}
	q.metrics.StatsProcessed(failed)
}

// JobFromLines builds the job for a purchase document. Supplied lines and
// lines without a product reference are skipped; the last price of a
// repeated reference wins.
func JobFromLines(documentID, supplierID uuid.UUID, lines []Line) Job {
	job := Job{DocumentID: documentID, SupplierID: supplierID}
	index := make(map[string]int)
	for _, l := range lines {
		if l.Supplied || l.Ref == "" {
			continue
		}
		if i, ok := index[l.Ref]; ok {
			job.Prices[i].Price = l.UnitPrice
			continue
		}
		index[l.Ref] = len(job.Prices)
		job.Prices = append(job.Prices, Price{Ref: l.Ref, Price: l.UnitPrice})
	}
	return job
}

// Line is the part of a document line the queue needs.
type Line struct {
	Ref       string
	UnitPrice decimal.Decimal
	Supplied  bool
}
