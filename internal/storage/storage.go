// Package storage provides the record stores behind the reference
// subscription service.
package storage

import (
	"time"
)

// StorageType represents the type of storage implementation to use
type StorageType string

const (
	// MemoryStorage keeps records in process memory
	MemoryStorage StorageType = "memory"

	// BadgerStorage persists records in Badger
	BadgerStorage StorageType = "badger"
)

// Config contains storage configuration
type Config struct {
	// Storage type to create
	Type StorageType

	// Base directory for data files
	DataDir string

	// Badger durability
	SyncWrites bool

	// Value log GC interval
	GCInterval time.Duration

	// Cache settings
	CacheEnabled    bool
	CacheSize       int
	CacheExpiration time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Type:            BadgerStorage,
		DataDir:         "./data",
		SyncWrites:      true,
		GCInterval:      10 * time.Minute,
		CacheEnabled:    true,
		CacheSize:       1024,
		CacheExpiration: 30 * time.Second,
	}
}
