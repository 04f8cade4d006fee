package storage

import (
	"fmt"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/storage/badger"
	"github.com/rs/zerolog/log"
)

// NewStore creates the store selected by config, wrapped in a record cache
// when caching is enabled
func NewStore(config Config) (domain.RecordStore, error) {
	var store domain.RecordStore

	switch config.Type {
	case MemoryStorage:
		store = NewMemoryStore()

	case BadgerStorage, "":
		badgerConfig := badger.DefaultConfig()
		badgerConfig.DataDir = config.DataDir
		badgerConfig.SyncWrites = config.SyncWrites
		if config.GCInterval > 0 {
			badgerConfig.GCInterval = config.GCInterval
		}

		s, err := badger.NewStorage(badgerConfig)
		if err != nil {
			return nil, err
		}
		store = s

	default:
		return nil, fmt.Errorf("unknown storage type %q", config.Type)
	}

	if !config.CacheEnabled {
		return store, nil
	}

	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig().CacheSize
	}
	if config.CacheExpiration <= 0 {
		config.CacheExpiration = DefaultConfig().CacheExpiration
	}

	cached, err := NewCachedStore(store, config.CacheSize, config.CacheExpiration)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	log.Info().
		Str("component", "storage").
		Str("type", string(config.Type)).
		Int("cache_size", config.CacheSize).
		Dur("cache_expiration", config.CacheExpiration).
		Msg("Record cache initialized")
	return cached, nil
}
