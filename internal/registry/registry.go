// Package registry ties the catalog projection, the producer/barrier,
// and the master coordinator together into the operations the REST
// layer calls: registering schemas, reading them back, and managing
// subject/global config. Grounded on the original implementation's
// KarapaceSchemaRegistry (schema_registry.py).
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"schemaregistry/internal/catalog"
	"schemaregistry/internal/election"
	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/metrics"
)

type Registry struct {
	Catalog     *catalog.Catalog
	Producer    *kafkalog.Producer
	Coordinator election.Coordinator
	Metrics     metrics.Sink

	// Readiness reports whether the projector has caught up to the
	// partition's end offset (offset >= endOffset-1), wired in from
	// internal/projector after construction. Nil until wired, in which
	// case Ready conservatively reports false rather than claiming
	// readiness off a single folded record.
	Readiness interface{ Ready() bool }

	// mu serializes the registration pipeline's read-check-append
	// sequence (C6's "registration mutex"): only one goroutine may be
	// mid-registration at a time, so two concurrent registrations for
	// the same subject can't both observe the same "not yet assigned"
	// state and double-assign a version/id.
	mu sync.Mutex

	// lastKnownEndOffsetAtElection guards the lagging-follower race
	// (SPEC_FULL Open Question 1): a replica that has just become
	// master must not accept writes until its projector has replayed
	// at least as far as the partition's end offset was at its first
	// write since ResetElectionBaseline, not just "caught up to whatever
	// it has seen so far".
	electionMu                   sync.Mutex
	lastKnownEndOffsetAtElection int64
	haveElectionBaseline         bool
}

func New(cat *catalog.Catalog, producer *kafkalog.Producer, coord election.Coordinator, sink metrics.Sink) *Registry {
	if sink == nil {
		sink = metrics.Noop{}
	}
	return &Registry{
		Catalog:     cat,
		Producer:    producer,
		Coordinator: coord,
		Metrics:     sink,
	}
}

var (
	ErrNotMaster     = fmt.Errorf("registry: this replica is not the master")
	ErrMasterUnknown = fmt.Errorf("registry: master is not yet known")
)

// RequireMaster returns the master's URL if this replica isn't it, or
// nil if this replica may accept the write.
func (r *Registry) RequireMaster(ctx context.Context) (masterURL string, err error) {
	if r.Coordinator == nil {
		return "", nil // single-node / test mode: always master
	}
	state, url := r.Coordinator.MasterInfo()
	switch state {
	case election.StateIsMaster:
		return "", nil
	case election.StateIsFollower:
		if url == "" {
			return "", ErrMasterUnknown
		}
		return url, ErrNotMaster
	default:
		return "", ErrMasterUnknown
	}
}

// awaitMasterReady blocks until the projector has folded the last
// record below a baseline end offset, closing the race where a
// freshly-elected master starts serving writes before it has actually
// seen the outgoing master's final records. The baseline is queried on
// the first call after ResetElectionBaseline (or the first call ever)
// and reused until the next reset.
func (r *Registry) awaitMasterReady(ctx context.Context, currentOffset func() int64, endOffset func(context.Context) (int64, error)) error {
	r.electionMu.Lock()
	if !r.haveElectionBaseline {
		end, err := endOffset(ctx)
		if err != nil {
			r.electionMu.Unlock()
			return fmt.Errorf("registry: query end offset: %w", err)
		}
		r.lastKnownEndOffsetAtElection = end
		r.haveElectionBaseline = true
	}
	baseline := r.lastKnownEndOffsetAtElection
	r.electionMu.Unlock()

	deadline := time.Now().Add(30 * time.Second)
	for currentOffset() < baseline-1 {
		if time.Now().After(deadline) {
			return fmt.Errorf("registry: timed out waiting to catch up to baseline offset %d", baseline)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// ResetElectionBaseline must be called whenever this replica transitions
// from follower to master, so the next write re-establishes a fresh
// baseline instead of reusing a stale one from a prior mastership.
func (r *Registry) ResetElectionBaseline() {
	r.electionMu.Lock()
	r.haveElectionBaseline = false
	r.electionMu.Unlock()
}
