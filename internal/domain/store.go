package domain

import (
	"context"

	"github.com/nkkko/simsub/pkg/proto"
)

// RecordStore persists subscription records and service metadata for the
// reference subscription service
type RecordStore interface {
	// PutRecord inserts or replaces the record with rec.Id
	PutRecord(ctx context.Context, rec *proto.SubscriptionInfo) error

	// GetRecord returns the record for id or ErrNotFound
	GetRecord(ctx context.Context, id int32) (*proto.SubscriptionInfo, error)

	// DeleteRecord removes the record for id. Missing records are ignored.
	DeleteRecord(ctx context.Context, id int32) error

	// ListRecords returns every record ordered by id
	ListRecords(ctx context.Context) ([]*proto.SubscriptionInfo, error)

	// PutMeta stores an opaque value under key
	PutMeta(ctx context.Context, key string, value []byte) error

	// GetMeta returns the value stored under key or ErrNotFound
	GetMeta(ctx context.Context, key string) ([]byte, error)

	// Close releases the store
	Close() error
}

// Starter is implemented by stores with background work, such as
// compaction, that runs until ctx is done
type Starter interface {
	Start(ctx context.Context) error
}
