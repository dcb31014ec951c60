package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned by Submit after Close
var ErrDispatcherClosed = errors.New("dispatcher closed")

// TaskID identifies one submitted run
type TaskID string

// Done receives the outcome of a run. It is called exactly once per
// accepted task, from the task's own goroutine.
type Done func(TaskID, Result, error)

type taskKey struct {
	roomID string
	taskID TaskID
}

// Dispatcher runs executions as independent tasks so a slow program never
// blocks the session that submitted it. At most limit tasks execute at once;
// the rest wait for a slot while still being cancellable.
type Dispatcher struct {
	logger   *zap.Logger
	executor Executor
	slots    chan struct{}

	mu     sync.Mutex
	tasks  map[taskKey]context.CancelFunc
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher running at most limit tasks at once
func NewDispatcher(logger *zap.Logger, executor Executor, limit int) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		logger:   logger,
		executor: executor,
		slots:    make(chan struct{}, limit),
		tasks:    make(map[taskKey]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit starts req for roomID and returns its task id immediately
func (d *Dispatcher) Submit(roomID string, req Request, done Done) (TaskID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate task id: %w", err)
	}
	taskID := TaskID(id.String())
	key := taskKey{roomID: roomID, taskID: taskID}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrDispatcherClosed
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.tasks[key] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(ctx, key, req, done)

	return taskID, nil
}

func (d *Dispatcher) run(ctx context.Context, key taskKey, req Request, done Done) {
	defer d.wg.Done()
	defer d.forget(key)

	logger := d.logger.With(zap.String("room_id", key.roomID), zap.String("task_id", string(key.taskID)))

	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		logger.Debug("run cancelled before start")
		done(key.taskID, interrupted("", "", 0, context.Canceled), nil)
		return
	}
	defer func() { <-d.slots }()

	// select picks at random when a slot and the cancellation are both ready
	if ctx.Err() != nil {
		logger.Debug("run cancelled before start")
		done(key.taskID, interrupted("", "", 0, context.Canceled), nil)
		return
	}

	logger.Debug("run started", zap.String("language", req.Language))
	res, err := d.safeRun(ctx, req)
	if err != nil {
		logger.Warn("run failed", zap.Error(err))
	} else {
		logger.Debug("run finished",
			zap.Bool("success", res.Success),
			zap.Bool("timed_out", res.TimedOut),
			zap.Duration("duration", res.Duration))
	}
	done(key.taskID, res, err)
}

// safeRun contains a panicking executor to its own task
func (d *Dispatcher) safeRun(ctx context.Context, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return d.executor.Run(ctx, req)
}

func (d *Dispatcher) forget(key taskKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.tasks[key]; ok {
		cancel()
		delete(d.tasks, key)
	}
}

// Cancel stops one task; it reports whether the task was still outstanding
func (d *Dispatcher) Cancel(roomID string, taskID TaskID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cancel, ok := d.tasks[taskKey{roomID: roomID, taskID: taskID}]
	if ok {
		cancel()
	}
	return ok
}

// CancelRoom stops every outstanding task of roomID and returns how many
func (d *Dispatcher) CancelRoom(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for key, cancel := range d.tasks {
		if key.roomID == roomID {
			cancel()
			n++
		}
	}
	return n
}

// Active returns the number of outstanding tasks, queued or running
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Close cancels every task and waits until all of them have reported
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
