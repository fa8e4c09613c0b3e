package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	// ErrStoreClosed is returned when the store has been closed
	ErrStoreClosed = errors.New("offline: store is closed")
	// ErrStorePathRequired is returned when no storage directory is configured
	ErrStorePathRequired = errors.New("offline: store path is required")
	// ErrNilOperation is returned when a nil operation is passed to the store
	ErrNilOperation = errors.New("offline: operation cannot be nil")
	// ErrEmptyOperationID is returned when an operation carries no identity
	ErrEmptyOperationID = errors.New("offline: operation id cannot be empty")
	// ErrOperationNotFound is returned when no operation exists under the id
	ErrOperationNotFound = errors.New("offline: operation not found")
)

// ---------------------------------------------------------------------------
// Store Port
// ---------------------------------------------------------------------------

// Store is the durable holding pen for queued operations, keyed by
// operation id. GetAll returns operations in enqueue order.
type Store interface {
	// Add assigns the operation its sequence number and persists it
	Add(ctx context.Context, op *QueuedOperation) error

	// GetAll returns every queued operation in enqueue order
	GetAll(ctx context.Context) ([]*QueuedOperation, error)

	// Update overwrites a persisted operation
	Update(ctx context.Context, op *QueuedOperation) error

	// Delete removes the operation under the id
	Delete(ctx context.Context, id string) error

	// Close releases the underlying storage
	Close() error
}

// ---------------------------------------------------------------------------
// BadgerStore
// ---------------------------------------------------------------------------

// Key layout inside BadgerDB
const (
	opPrefix     = "op:"
	seqKey       = "seq:ops"
	seqBandwidth = 64
)

// BadgerStoreConfig holds configuration for the local operation store
type BadgerStoreConfig struct {
	// Path is the storage directory
	Path string
	// SyncWrites forces an fsync per write; queued operations survive a
	// crash at the price of slower enqueues
	SyncWrites bool
}

// DefaultBadgerStoreConfig returns default store configuration
func DefaultBadgerStoreConfig(path string) BadgerStoreConfig {
	return BadgerStoreConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// BadgerStore persists queued operations in a local BadgerDB. Operations
// live under their id; a BadgerDB sequence hands out the monotonic
// numbers GetAll sorts by, so replay order survives restarts.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerStore opens (or creates) the store at the configured path
func OpenBadgerStore(cfg BadgerStoreConfig, logger *zap.Logger) (*BadgerStore, error) {
	if cfg.Path == "" {
		return nil, ErrStorePathRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("offline: opening store: %w", err)
	}

	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("offline: opening sequence: %w", err)
	}

	logger.Info("Offline store opened",
		zap.String("path", cfg.Path),
		zap.Bool("sync_writes", cfg.SyncWrites))

	return &BadgerStore{
		db:     db,
		seq:    seq,
		logger: logger,
	}, nil
}

// Add assigns the next sequence number and persists the operation
func (s *BadgerStore) Add(ctx context.Context, op *QueuedOperation) error {
	if err := s.guard(); err != nil {
		return err
	}
	if op == nil {
		return ErrNilOperation
	}
	if op.ID == "" {
		return ErrEmptyOperationID
	}

	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("offline: next sequence: %w", err)
	}
	op.Seq = n

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("offline: marshal operation: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(opKey(op.ID), data)
	})
	if err != nil {
		return fmt.Errorf("offline: write operation: %w", err)
	}
	return nil
}

// GetAll returns every queued operation, sorted into enqueue order.
// Entries that no longer unmarshal are skipped with a warning rather than
// blocking the replay of the rest.
func (s *BadgerStore) GetAll(ctx context.Context) ([]*QueuedOperation, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var ops []*QueuedOperation
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = true
		it := txn.NewIterator(itOpts)
		defer it.Close()

		prefix := []byte(opPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var op QueuedOperation
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &op)
			})
			if err != nil {
				s.logger.Warn("Skipping unreadable queued operation",
					zap.String("key", string(item.Key())),
					zap.Error(err))
				continue
			}
			ops = append(ops, &op)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("offline: iterate operations: %w", err)
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].Seq < ops[j].Seq })
	return ops, nil
}

// Update overwrites a persisted operation in place
func (s *BadgerStore) Update(ctx context.Context, op *QueuedOperation) error {
	if err := s.guard(); err != nil {
		return err
	}
	if op == nil {
		return ErrNilOperation
	}
	if op.ID == "" {
		return ErrEmptyOperationID
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("offline: marshal operation: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := opKey(op.ID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrOperationNotFound
		} else if err != nil {
			return fmt.Errorf("get operation: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		if errors.Is(err, ErrOperationNotFound) {
			return err
		}
		return fmt.Errorf("offline: update operation: %w", err)
	}
	return nil
}

// Delete removes the operation under the id
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyOperationID
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := opKey(id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrOperationNotFound
		} else if err != nil {
			return fmt.Errorf("get operation: %w", err)
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, ErrOperationNotFound) {
			return err
		}
		return fmt.Errorf("offline: delete operation: %w", err)
	}
	return nil
}

// Close releases the sequence lease and closes the database
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Releasing the sequence returns unused leased numbers; gaps are
	// harmless, order is what matters.
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("Failed to release operation sequence", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("offline: closing store: %w", err)
	}
	s.logger.Info("Offline store closed")
	return nil
}

func (s *BadgerStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func opKey(id string) []byte {
	return []byte(opPrefix + id)
}

// Ensure BadgerStore implements Store
var _ Store = (*BadgerStore)(nil)
