package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure Storage implements domain.RecordStore
var _ domain.RecordStore = (*Storage)(nil)

const (
	// Prefix keys for the two record families
	prefixRecords = "sub:"
	prefixMeta    = "meta:"
)

// Storage keeps subscription records in Badger
type Storage struct {
	config Config
	db     *badger.DB
	logger zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewStorage opens the Badger database described by config
func NewStorage(config Config) (*Storage, error) {
	logger := log.With().Str("component", "storage-badger").Logger()

	if config.GCInterval <= 0 {
		config.GCInterval = DefaultConfig().GCInterval
	}
	if config.GCDiscardRatio <= 0 || config.GCDiscardRatio >= 1 {
		config.GCDiscardRatio = DefaultConfig().GCDiscardRatio
	}

	s := &Storage{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.initBadger(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("data_dir", config.DataDir).
		Bool("in_memory", config.InMemory).
		Msg("Record store opened")
	return s, nil
}

// initBadger opens the database with the tuned options
func (s *Storage) initBadger() error {
	var dbPath string
	if !s.config.InMemory {
		dbPath = filepath.Join(s.config.DataDir, "badger")
		if err := os.MkdirAll(dbPath, 0755); err != nil {
			return fmt.Errorf("failed to create badger directory: %w", err)
		}
	}

	db, err := badger.Open(s.config.options(dbPath))
	if err != nil {
		return fmt.Errorf("failed to open Badger: %w", err)
	}

	s.db = db
	return nil
}

// prefixKey adds the appropriate type prefix to a key
func prefixKey(prefix string, key []byte) []byte {
	prefixedKey := make([]byte, len(prefix)+len(key))
	copy(prefixedKey, prefix)
	copy(prefixedKey[len(prefix):], key)
	return prefixedKey
}

// recordKey orders records by id. Record ids are never negative.
func recordKey(id int32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(id))
	return prefixKey(prefixRecords, key)
}

// Start runs value log GC and size reporting until ctx is done
func (s *Storage) Start(ctx context.Context) error {
	if !s.config.InMemory {
		go s.runPeriodicGC(ctx)
		go s.collectMetrics(ctx)
	}

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// Shutdown closes the database
func (s *Storage) Shutdown(ctx context.Context) error {
	return s.Close()
}

// Close closes the database. Later calls are no-ops.
func (s *Storage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if err = s.db.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing Badger database")
		}
	})
	return err
}

// PutRecord stores rec under its id
func (s *Storage) PutRecord(ctx context.Context, rec *proto.SubscriptionInfo) error {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("put_record"))
	defer timer.ObserveDuration()

	if rec == nil || rec.Id < 0 {
		m.StorageOperations.WithLabelValues("put_record", "false").Inc()
		return fmt.Errorf("%w: record id must not be negative", domain.ErrInvalidArgument)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		m.StorageOperations.WithLabelValues("put_record", "false").Inc()
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Id), data)
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("put_record", "false").Inc()
		return fmt.Errorf("failed to store record %d: %w", rec.Id, err)
	}

	m.StorageOperations.WithLabelValues("put_record", "true").Inc()
	return nil
}

// GetRecord reads the record for id
func (s *Storage) GetRecord(ctx context.Context, id int32) (*proto.SubscriptionInfo, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("get_record"))
	defer timer.ObserveDuration()

	if id < 0 {
		return nil, domain.ErrNotFound
	}

	var rec proto.SubscriptionInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("failed to retrieve record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("get_record", "false").Inc()
		return nil, err
	}

	m.StorageOperations.WithLabelValues("get_record", "true").Inc()
	return &rec, nil
}

// DeleteRecord removes the record for id
func (s *Storage) DeleteRecord(ctx context.Context, id int32) error {
	m := metrics.GetMetrics()
	if id < 0 {
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(id))
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("delete_record", "false").Inc()
		return fmt.Errorf("failed to delete record %d: %w", id, err)
	}

	m.StorageOperations.WithLabelValues("delete_record", "true").Inc()
	return nil
}

// ListRecords returns all records in key order, which is id order
func (s *Storage) ListRecords(ctx context.Context) ([]*proto.SubscriptionInfo, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("list_records"))
	defer timer.ObserveDuration()

	records := make([]*proto.SubscriptionInfo, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(prefixRecords)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec proto.SubscriptionInfo
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to read record: %w", err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("list_records", "false").Inc()
		return nil, err
	}

	m.StorageOperations.WithLabelValues("list_records", "true").Inc()
	return records, nil
}

// PutMeta stores value under key
func (s *Storage) PutMeta(ctx context.Context, key string, value []byte) error {
	m := metrics.GetMetrics()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(prefixKey(prefixMeta, []byte(key)), value)
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("put_meta", "false").Inc()
		return fmt.Errorf("failed to store meta %s: %w", key, err)
	}

	m.StorageOperations.WithLabelValues("put_meta", "true").Inc()
	return nil
}

// GetMeta reads the value under key
func (s *Storage) GetMeta(ctx context.Context, key string) ([]byte, error) {
	m := metrics.GetMetrics()

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixKey(prefixMeta, []byte(key)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("failed to retrieve meta %s: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.StorageOperations.WithLabelValues("get_meta", "false").Inc()
		}
		return nil, err
	}

	m.StorageOperations.WithLabelValues("get_meta", "true").Inc()
	return value, nil
}

// runPeriodicGC runs value log garbage collection on a regular interval
func (s *Storage) runPeriodicGC(ctx context.Context) {
	logger := s.logger.With().Str("task", "gc").Logger()
	ticker := time.NewTicker(s.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.db.RunValueLogGC(s.config.GCDiscardRatio)
			switch {
			case err == nil:
				logger.Debug().Msg("Garbage collection completed")
			case errors.Is(err, badger.ErrNoRewrite):
				logger.Debug().Msg("No garbage collection needed")
			default:
				logger.Error().Err(err).Msg("Error during garbage collection")
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// collectMetrics periodically reports the database size
func (s *Storage) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	m := metrics.GetMetrics()
	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			m.DBSize.Set(float64(lsm + vlog))
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}
