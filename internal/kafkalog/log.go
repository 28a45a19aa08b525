package kafkalog

import "context"

// Record is a single fetched record: its log offset and raw key/value
// bytes, left undecoded so ParseKey/ParseSchemaValue etc. can be applied
// by the caller (the projector's transition function).
type Record struct {
	Offset int64
	Key    []byte
	Value  []byte
}

// Log is the narrow interface the projector (reader), producer
// (writer), and admin bootstrap depend on. The franz-go backed
// implementation in client.go is the production adapter; memory.go is
// an in-memory fake used by tests so catalog/registry/projector logic
// can be exercised without a live broker, mirroring the teacher's
// in-memory fallback for its NATS KV dependency.
type Log interface {
	// EnsureTopic creates the backing topic if it doesn't exist, with
	// cleanup.policy=compact and a single partition. Idempotent.
	EnsureTopic(ctx context.Context) error
	// StartOffset returns the partition's current log-start offset.
	StartOffset(ctx context.Context) (int64, error)
	// EndOffset returns the partition's current high-water mark (the
	// offset one past the last written record).
	EndOffset(ctx context.Context) (int64, error)
	// Produce appends one record and returns its assigned offset once
	// the broker (or fake) has acknowledged it.
	Produce(ctx context.Context, key, value []byte) (int64, error)
	// Poll blocks until at least one record is available past the
	// caller's last-seen offset, or ctx is done, and returns the batch.
	Poll(ctx context.Context) ([]Record, error)
	// Close releases underlying resources.
	Close() error
}
