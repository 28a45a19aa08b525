package kafkalog

import (
	"context"
	"sync"
)

// MemoryBroker is shared, in-process state for one compacted-topic
// partition. Multiple MemoryLog handles (each with its own read cursor)
// can be created against the same broker, the way multiple real Kafka
// consumers read the same partition independently — this is what lets
// tests spin up two projectors against one fake log to exercise the
// convergence property (S5).
type MemoryBroker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	records []Record
	exists  bool
}

func NewMemoryBroker() *MemoryBroker {
	b := &MemoryBroker{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NewLog returns a new independent-cursor handle onto this broker.
func (b *MemoryBroker) NewLog() *MemoryLog {
	return &MemoryLog{broker: b}
}

type MemoryLog struct {
	broker *MemoryBroker
	cursor int64
}

var _ Log = (*MemoryLog)(nil)

func (l *MemoryLog) EnsureTopic(ctx context.Context) error {
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()
	l.broker.exists = true
	return nil
}

func (l *MemoryLog) StartOffset(ctx context.Context) (int64, error) {
	return 0, nil
}

func (l *MemoryLog) EndOffset(ctx context.Context) (int64, error) {
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()
	return int64(len(l.broker.records)), nil
}

func (l *MemoryLog) Produce(ctx context.Context, key, value []byte) (int64, error) {
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()
	offset := int64(len(l.broker.records))
	// Copy so later mutation of caller-owned slices can't corrupt history.
	k := append([]byte(nil), key...)
	var v []byte
	if value != nil {
		v = append([]byte(nil), value...)
	}
	l.broker.records = append(l.broker.records, Record{Offset: offset, Key: k, Value: v})
	l.broker.cond.Broadcast()
	return offset, nil
}

func (l *MemoryLog) Poll(ctx context.Context) ([]Record, error) {
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()

	for int64(len(l.broker.records)) <= l.cursor {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// sync.Cond has no ctx-aware wait; a watcher wakes it on
		// cancellation so Wait() doesn't block past ctx being done.
		stop := context.AfterFunc(ctx, func() {
			l.broker.mu.Lock()
			l.broker.cond.Broadcast()
			l.broker.mu.Unlock()
		})
		l.broker.cond.Wait()
		stop()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	batch := append([]Record(nil), l.broker.records[l.cursor:]...)
	l.cursor = int64(len(l.broker.records))
	return batch, nil
}

func (l *MemoryLog) Close() error { return nil }
