package trigger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 1024
)

// CommitHandler runs an evaluation cycle for a committed record.
type CommitHandler interface {
	OnActivityCommitted(ctx context.Context, rec activity.Record) Report
}

// Dispatcher runs evaluation cycles on a fixed pool of workers so that
// recording an activity never waits for badge evaluation.
type Dispatcher struct {
	handler CommitHandler
	metrics *Metrics
	workers int

	queue   chan activity.Record
	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before Notify.
func NewDispatcher(handler CommitHandler, workers, queueSize int, metrics *Metrics) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		metrics: metrics,
		workers: workers,
		queue:   make(chan activity.Record, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
		logrus.Infof("badge dispatcher started with %d workers", d.workers)
	})
}

// Notify enqueues a cycle for rec. It never blocks; when the queue is full
// the cycle is dropped and false is returned. The next commit for the same
// user re-evaluates every badge, so a dropped cycle only delays grants.
func (d *Dispatcher) Notify(rec activity.Record) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return false
	}

	select {
	case d.queue <- rec:
		return true
	default:
		d.dropped.Add(1)
		d.metrics.dropped()
		logrus.WithFields(logrus.Fields{
			"user_id":   rec.UserID,
			"record_id": rec.ID,
		}).Warn("dispatch queue full, dropping badge evaluation")
		return false
	}
}

// Dropped returns the number of cycles dropped so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Shutdown stops accepting records and waits for queued cycles to finish.
// If ctx expires first, in-flight cycles are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		logrus.Info("badge dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for rec := range d.queue {
		d.handler.OnActivityCommitted(d.ctx, rec)
	}
}
