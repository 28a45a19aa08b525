package kafkalog

import (
	"context"
	"fmt"
	"time"

	"schemaregistry/internal/offsetwatch"
)

// Producer appends records to a Log and blocks until the projector
// reading the same Log has folded the record's offset into the
// catalog — the read-your-writes barrier (C8). ProduceTimeout bounds
// the broker round trip; BarrierTimeout bounds the wait for the
// projector to catch up.
type Producer struct {
	Log            Log
	Watcher        *offsetwatch.Watcher
	ProduceTimeout time.Duration
	BarrierTimeout time.Duration
}

func NewProducer(log Log, watcher *offsetwatch.Watcher) *Producer {
	return &Producer{
		Log:            log,
		Watcher:        watcher,
		ProduceTimeout: 10 * time.Second,
		BarrierTimeout: 60 * time.Second,
	}
}

var (
	ErrProduceTimeout = fmt.Errorf("kafkalog: produce did not complete in time")
	ErrBarrierTimeout = fmt.Errorf("kafkalog: projector did not catch up in time")
)

// Send appends key/value and blocks until the projector has folded the
// resulting offset, so the caller's very next read is guaranteed to see
// its own write.
func (p *Producer) Send(ctx context.Context, key, value []byte) (int64, error) {
	produceCtx, cancel := context.WithTimeout(ctx, p.ProduceTimeout)
	offset, err := p.Log.Produce(produceCtx, key, value)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProduceTimeout, err)
	}

	barrierCtx, cancel := context.WithTimeout(ctx, p.BarrierTimeout)
	defer cancel()
	if !p.Watcher.WaitFor(barrierCtx, offset) {
		return offset, ErrBarrierTimeout
	}
	return offset, nil
}
