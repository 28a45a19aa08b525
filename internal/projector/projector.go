// Package projector runs the sole goroutine allowed to write to a
// catalog.Catalog: it replays the schema log from the beginning and
// folds every record into the catalog, forever, tracking readiness and
// advertising its progress to an offsetwatch.Watcher whenever this
// replica is master. Grounded on the original implementation's
// KafkaSchemaReader (schema_reader.py): run() / handle_messages() /
// _is_ready().
package projector

import (
	"context"
	"log/slog"
	"time"

	"schemaregistry/internal/catalog"
	"schemaregistry/internal/election"
	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/offsetwatch"
)

type Projector struct {
	Log         kafkalog.Log
	Catalog     *catalog.Catalog
	Watcher     *offsetwatch.Watcher
	Coordinator election.Coordinator

	// ReadinessRefresh controls how often the end offset is re-queried;
	// the refresh continues after the projector first becomes ready.
	ReadinessRefresh time.Duration

	ready       bool
	endOffset   int64
	lastRefresh time.Time
}

func New(log kafkalog.Log, cat *catalog.Catalog, watcher *offsetwatch.Watcher, coord election.Coordinator) *Projector {
	return &Projector{
		Log:              log,
		Catalog:          cat,
		Watcher:          watcher,
		Coordinator:      coord,
		ReadinessRefresh: time.Second,
	}
}

// Ready reports whether the projector has caught up to the end of the
// log as of its last readiness check.
func (p *Projector) Ready() bool {
	return p.ready
}

// Run bootstraps the topic and then folds records forever until ctx is
// canceled. Every bootstrap failure is retried with backoff, whatever
// its cause; none is treated as fatal, and the caller decides (by
// canceling ctx) when to give up.
func (p *Projector) Run(ctx context.Context) error {
	backoff := newBackoff()
	for {
		if err := p.Log.EnsureTopic(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("projector: topic bootstrap failed, retrying", "error", err)
			if !backoff.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		break
	}

	if err := p.refreshEndOffset(ctx); err != nil {
		slog.Warn("projector: initial end-offset query failed", "error", err)
	}

	lastRefresh := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := p.Log.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("projector: poll failed, retrying", "error", err)
			if !backoff.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		backoff.reset()

		for _, rec := range batch {
			if err := p.Catalog.Apply(rec); err != nil {
				slog.Error("projector: skipping unparseable record", "offset", rec.Offset, "error", err)
				continue
			}
			p.maybeAdvertise(rec.Offset)
		}

		if time.Since(lastRefresh) >= p.ReadinessRefresh {
			if err := p.refreshEndOffset(ctx); err != nil {
				slog.Warn("projector: end-offset refresh failed", "error", err)
			}
			lastRefresh = time.Now()
		}
		p.updateReadiness()
	}
}

func (p *Projector) refreshEndOffset(ctx context.Context) error {
	end, err := p.Log.EndOffset(ctx)
	if err != nil {
		return err
	}
	p.endOffset = end
	p.updateReadiness()
	return nil
}

func (p *Projector) updateReadiness() {
	// end offset is one past the last written record; caught up means
	// the last folded offset is end-1, or the partition is empty.
	p.ready = p.Catalog.Offset() >= p.endOffset-1
}

// maybeAdvertise signals the offset watcher only when this replica is
// master — followers must never advertise offset visibility, since
// their local barrier waits would otherwise unblock writes that only
// the master actually sent, letting a stale follower serve
// read-your-writes before it actually caught up to the master's view.
func (p *Projector) maybeAdvertise(offset int64) {
	if p.Coordinator == nil {
		p.Watcher.Seen(offset)
		return
	}
	if state, _ := p.Coordinator.MasterInfo(); state == election.StateIsMaster {
		p.Watcher.Seen(offset)
	}
}

type backoff struct {
	attempt int
}

func newBackoff() *backoff { return &backoff{} }

func (b *backoff) reset() { b.attempt = 0 }

// sleep waits an exponentially increasing delay (capped at 30s) or
// until ctx is done, returning false in the latter case.
func (b *backoff) sleep(ctx context.Context) bool {
	delay := time.Duration(1<<min(b.attempt, 5)) * 500 * time.Millisecond
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	b.attempt++
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
