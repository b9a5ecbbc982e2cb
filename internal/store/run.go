package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	runKeyPrefix = "run/"

	// FinishedRunTTL bounds how long a completed run stays queryable.
	FinishedRunTTL = 7 * 24 * time.Hour
)

// RunStore checkpoints investigation state in BadgerDB. An empty directory
// opens an in-memory database.
type RunStore struct {
	db *badger.DB
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

func NewRunStore(dir string, logger *zap.Logger) (*RunStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run state dir: %w", err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{s: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

func runKey(signalID string) []byte {
	return []byte(runKeyPrefix + signalID)
}

// Save writes the run state. Finished runs expire after FinishedRunTTL.
func (s *RunStore) Save(ctx context.Context, st *domain.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(runKey(st.SignalID), data)
		if st.Done() {
			e = e.WithTTL(FinishedRunTTL)
		}
		return txn.SetEntry(e)
	})
}

func (s *RunStore) Load(ctx context.Context, signalID string) (*domain.RunState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(signalID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	st := &domain.RunState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode run state %s: %w", signalID, err)
	}
	return st, nil
}

func (s *RunStore) Delete(ctx context.Context, signalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(signalID))
	})
}
