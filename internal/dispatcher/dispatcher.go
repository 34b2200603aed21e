package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

// Workflow runs the summarization workflow for one document id. Failures
// are absorbed into durable document state; an error returned here is only
// logged, there is no caller waiting on it.
type Workflow interface {
	Process(ctx context.Context, documentID string) error
}

// Dispatcher consumes document ids from a bounded queue with a fixed pool
// of workers. Runs are serialized per document id: two dispatches for the
// same id never overlap, so state transitions cannot race on the row.
type Dispatcher struct {
	workflow Workflow
	queue    chan string
	workers  int
	log      *logrus.Entry

	mu       sync.Mutex
	inFlight map[string]*idLock
	closed   bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func New(workflow Workflow, workers, queueSize int, log *logrus.Entry) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	return &Dispatcher{
		workflow: workflow,
		queue:    make(chan string, queueSize),
		workers:  workers,
		log:      log,
		inFlight: make(map[string]*idLock),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop
// closes it.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Enqueue hands a document id to the pool without blocking the caller.
// Returns ErrStopped once Stop has closed the queue.
func (d *Dispatcher) Enqueue(documentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrStopped
	}
	select {
	case d.queue <- documentID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight work, bounded by ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for documentID := range d.queue {
		d.run(ctx, documentID)
	}
}

func (d *Dispatcher) run(ctx context.Context, documentID string) {
	lock := d.acquire(documentID)
	defer d.release(documentID, lock)

	if err := d.workflow.Process(ctx, documentID); err != nil {
		d.log.WithField("document_id", documentID).WithError(err).Error("workflow failed")
	}
}

// idLock is a per-document mutex with a reference count so the map entry
// can be dropped once the last waiter is gone.
type idLock struct {
	mu   sync.Mutex
	refs int
}

func (d *Dispatcher) acquire(documentID string) *idLock {
	d.mu.Lock()
	lock, ok := d.inFlight[documentID]
	if !ok {
		lock = &idLock{}
		d.inFlight[documentID] = lock
	}
	lock.refs++
	d.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (d *Dispatcher) release(documentID string, lock *idLock) {
	lock.mu.Unlock()

	d.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(d.inFlight, documentID)
	}
	d.mu.Unlock()
}
