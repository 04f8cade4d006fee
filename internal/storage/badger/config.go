package badger

import (
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config contains Badger record store settings
type Config struct {
	// Base directory for data files
	DataDir string

	// Keep everything in memory; DataDir is ignored
	InMemory bool

	// Durability
	SyncWrites bool

	// Badger settings
	MemTableSize     int64 // Size of each memtable in bytes
	NumMemtables     int   // Number of memtables to keep in memory
	ValueLogFileSize int64 // Value log file size in bytes
	NumCompactors    int   // Number of compaction goroutines
	IndexCacheSize   int64 // Size of block cache for index blocks
	BlockCacheSize   int64 // Size of block cache for data blocks

	// GC settings
	GCInterval     time.Duration // How often to run value log GC
	GCDiscardRatio float64       // Rewrite a value log file when this share is garbage
}

// DefaultConfig returns a configuration sized for a few thousand records
func DefaultConfig() Config {
	return Config{
		DataDir:          "./data",
		SyncWrites:       true,
		MemTableSize:     8 << 20,  // 8MB
		NumMemtables:     2,
		ValueLogFileSize: 64 << 20, // 64MB
		NumCompactors:    2,
		IndexCacheSize:   8 << 20,
		BlockCacheSize:   16 << 20,
		GCInterval:       10 * time.Minute,
		GCDiscardRatio:   0.5,
	}
}

// options translates the configuration into Badger options
func (c Config) options(dbPath string) badger.Options {
	opts := badger.DefaultOptions(dbPath)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithSyncWrites(c.SyncWrites && !c.InMemory)

	if c.MemTableSize > 0 {
		opts = opts.WithMemTableSize(c.MemTableSize)
	}
	if c.NumMemtables > 0 {
		opts = opts.WithNumMemtables(c.NumMemtables)
	}
	if c.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(c.ValueLogFileSize)
	}
	if c.NumCompactors > 1 {
		opts = opts.WithNumCompactors(c.NumCompactors)
	}
	if c.IndexCacheSize > 0 {
		opts = opts.WithIndexCacheSize(c.IndexCacheSize)
	}
	if c.BlockCacheSize > 0 {
		opts = opts.WithBlockCacheSize(c.BlockCacheSize)
	}
	return opts
}
