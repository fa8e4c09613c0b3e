// Package offline holds the client-side write path for disconnected
// operation: writes that cannot reach the backend are persisted to a
// local BadgerDB queue and replayed in enqueue order once the connection
// monitor reports the link is back.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultMaxRetries is the replay ceiling when the caller sets none.
// An operation is attempted at most ceiling+1 times in total.
const defaultMaxRetries = 3

var (
	// ErrQueueClosed is returned when the queue has been closed
	ErrQueueClosed = errors.New("offline: queue is closed")
	// ErrUnknownOperationType is returned when replay meets an operation
	// type it cannot dispatch
	ErrUnknownOperationType = errors.New("offline: unknown operation type")
)

// FlushResult reports one flush by operation id. Operations that failed
// but still have retry budget left appear in no list; they stay queued.
type FlushResult struct {
	// Successful lists operations replayed and removed
	Successful []string `json:"successful"`
	// Failed lists operations dropped after exhausting their retries
	Failed []string `json:"failed"`
	// Conflicts lists operations dropped on a version conflict, surfaced
	// for manual escalation
	Conflicts []string `json:"conflicts"`
}

// QueueOptions holds optional queue settings
type QueueOptions struct {
	// MaxRetries is the per-operation replay ceiling. Default: 3
	MaxRetries int
	// Logger defaults to a nop logger
	Logger *zap.Logger
}

// Queue owns the replay of queued operations. It is explicitly
// constructed and injectable; construction subscribes it to the monitor
// so a restored connection triggers one flush.
type Queue struct {
	store      Store
	records    RecordStore
	monitor    *ConnectionMonitor
	logger     *zap.Logger
	maxRetries int

	// processing is the single-flight flag for Process
	processing atomic.Bool

	mu      sync.Mutex
	closed  bool
	flushes sync.WaitGroup
}

// NewQueue creates a queue over the durable store and replay target. A
// nil monitor disables automatic flushing; Process can still be called
// directly. The queue does not own the store; whoever opened it closes it.
func NewQueue(store Store, records RecordStore, monitor *ConnectionMonitor, opts QueueOptions) *Queue {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		store:      store,
		records:    records,
		monitor:    monitor,
		logger:     logger,
		maxRetries: maxRetries,
	}

	if monitor != nil {
		monitor.Subscribe(func() {
			if _, err := q.Process(context.Background()); err != nil && !errors.Is(err, ErrQueueClosed) {
				q.logger.Error("Reconnect flush failed", zap.Error(err))
			}
		})
	}
	return q
}

// Add assigns the operation its identity, timestamp and zero retry count,
// then persists it. When the link is up and no flush is running, a
// background flush is kicked off.
func (q *Queue) Add(ctx context.Context, op *QueuedOperation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	if op == nil {
		return ErrNilOperation
	}

	op.ID = uuid.New().String()
	op.QueuedAt = time.Now().UTC()
	op.Retries = 0

	if err := q.store.Add(ctx, op); err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	q.logger.Debug("Operation queued",
		zap.String("op_id", op.ID),
		zap.String("table", op.Table),
		zap.String("type", op.Type.String()))

	if q.monitor != nil && q.monitor.IsConnected() && !q.processing.Load() {
		go func() {
			if _, err := q.Process(context.Background()); err != nil && !errors.Is(err, ErrQueueClosed) {
				q.logger.Error("Background flush failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Process replays every queued operation in enqueue order and reports the
// settled ids. A second call while a flush is running returns an empty
// result immediately without touching the store.
func (q *Queue) Process(ctx context.Context) (FlushResult, error) {
	var result FlushResult

	ok, err := q.begin()
	if err != nil || !ok {
		return result, err
	}
	defer q.end()

	ops, err := q.store.GetAll(ctx)
	if err != nil {
		return result, fmt.Errorf("loading queued operations: %w", err)
	}
	if len(ops) == 0 {
		return result, nil
	}

	q.logger.Info("Flushing offline queue", zap.Int("pending", len(ops)))
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		q.replay(ctx, op, &result)
	}
	q.logger.Info("Offline queue flushed",
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

// Close stops the queue and waits for an in-flight flush to finish.
// Operations still queued stay in the store for the next run.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.flushes.Wait()
	return nil
}

// replay attempts one operation and settles it: delete on success, delete
// and surface on conflict, count a retry otherwise until the ceiling
// drops it for good.
func (q *Queue) replay(ctx context.Context, op *QueuedOperation, result *FlushResult) {
	err := q.executeOperation(ctx, op)
	if err == nil {
		q.drop(ctx, op)
		result.Successful = append(result.Successful, op.ID)
		return
	}

	if errors.Is(err, ErrVersionMismatch) {
		// Replaying a stale write can never succeed; hand the id to the
		// caller for manual escalation instead of burning retries.
		q.drop(ctx, op)
		result.Conflicts = append(result.Conflicts, op.ID)
		q.logger.Warn("Queued operation conflicted",
			zap.String("op_id", op.ID),
			zap.String("table", op.Table),
			zap.Error(err))
		return
	}

	if op.Retries >= q.maxRetries {
		q.drop(ctx, op)
		result.Failed = append(result.Failed, op.ID)
		q.logger.Error("Dropping operation after retry ceiling",
			zap.String("op_id", op.ID),
			zap.String("table", op.Table),
			zap.Int("retries", op.Retries),
			zap.Error(err))
		return
	}

	op.Retries++
	if upErr := q.store.Update(ctx, op); upErr != nil {
		q.logger.Error("Failed to persist retry count",
			zap.String("op_id", op.ID),
			zap.Error(upErr))
	}
	q.logger.Warn("Queued operation failed, will retry",
		zap.String("op_id", op.ID),
		zap.String("table", op.Table),
		zap.Int("retries", op.Retries),
		zap.Int("max_retries", q.maxRetries),
		zap.Error(err))
}

// executeOperation dispatches one operation to the record store by type
func (q *Queue) executeOperation(ctx context.Context, op *QueuedOperation) error {
	switch op.Type {
	case OpInsert:
		return q.records.Insert(ctx, op.Table, op.Payload)
	case OpUpdate:
		return q.records.Update(ctx, op.Table, op.Payload)
	case OpDelete:
		return q.records.Delete(ctx, op.Table, op.Payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperationType, op.Type)
	}
}

// drop removes a settled operation from the store
func (q *Queue) drop(ctx context.Context, op *QueuedOperation) {
	if err := q.store.Delete(ctx, op.ID); err != nil {
		q.logger.Error("Failed to delete queued operation",
			zap.String("op_id", op.ID),
			zap.Error(err))
	}
}

// begin claims the flush slot. The single-flight flag and the closed
// check share one critical section so Close never races a starting flush.
func (q *Queue) begin() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrQueueClosed
	}
	if !q.processing.CompareAndSwap(false, true) {
		return false, nil
	}
	q.flushes.Add(1)
	return true, nil
}

func (q *Queue) end() {
	q.processing.Store(false)
	q.flushes.Done()
}
