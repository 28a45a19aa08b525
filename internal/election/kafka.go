package election

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaCoordinator elects a master by consumer-group leadership over
// the schema topic's single partition: since the topic never has more
// than one partition, at most one group member is ever assigned it, and
// that member is master. This is the same trick the real Confluent
// Schema Registry used before it grew a dedicated RPC-based election
// protocol, and it falls out naturally from this registry's
// single-partition, no-sharding design (spec Non-goal: no multi-
// partition sharding).
type KafkaCoordinator struct {
	topic          string
	group          string
	advertisedURL  string
	masterEligible bool

	cl  *kgo.Client
	adm *kadm.Client

	mu        sync.RWMutex
	state     MasterState
	masterURL string

	closed atomic.Bool

	// OnBecomeMaster, if set, fires every time this replica is handed
	// partition 0 — including re-elections after a revoke — so callers
	// can reset any state that must not survive across a mastership gap
	// (registry.Registry.ResetElectionBaseline).
	OnBecomeMaster func()
}

func NewKafkaCoordinator(brokers []string, topic, group, advertisedURL string, masterEligible bool) (*KafkaCoordinator, error) {
	c := &KafkaCoordinator{
		topic:          topic,
		group:          group,
		advertisedURL:  advertisedURL,
		masterEligible: masterEligible,
		state:          StateUnknown,
	}

	if !masterEligible {
		// A non-eligible replica never joins the partition-bearing
		// group at all, so it can never be handed partition 0.
		c.state = StateIsFollower
		return c, nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.Balancers(kgo.RangeBalancer()),
		kgo.OnPartitionsAssigned(c.onAssigned),
		kgo.OnPartitionsRevoked(c.onRevoked),
		kgo.OnPartitionsLost(c.onRevoked),
		// advertisedURL is carried as the group member's InstanceID so
		// peers can recover it via DescribeGroups without a separate
		// side channel.
		kgo.InstanceID(advertisedURL),
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("election: new client: %w", err)
	}
	c.cl = cl
	c.adm = kadm.NewClient(cl)
	return c, nil
}

func (c *KafkaCoordinator) onAssigned(ctx context.Context, cl *kgo.Client, assigned map[string][]int32) {
	for _, p := range assigned[c.topic] {
		if p == 0 {
			c.mu.Lock()
			c.state = StateIsMaster
			c.masterURL = c.advertisedURL
			c.mu.Unlock()
			slog.Info("election: became master", "group", c.group)
			if c.OnBecomeMaster != nil {
				c.OnBecomeMaster()
			}
			return
		}
	}
}

func (c *KafkaCoordinator) onRevoked(ctx context.Context, cl *kgo.Client, revoked map[string][]int32) {
	for _, p := range revoked[c.topic] {
		if p == 0 {
			c.mu.Lock()
			c.state = StateIsFollower
			c.mu.Unlock()
			slog.Info("election: lost master partition", "group", c.group)
			return
		}
	}
}

func (c *KafkaCoordinator) MasterInfo() (MasterState, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateIsMaster {
		return c.state, c.masterURL
	}
	if c.masterURL != "" {
		return c.state, c.masterURL
	}
	return c.state, ""
}

// Start polls the group's fetch loop, which is what actually drives
// franz-go's rebalance callbacks; it discards any records (the election
// client never reads the topic's data, only participates in its group).
// It also periodically resolves the current partition-0 owner's
// InstanceID via DescribeGroups so followers learn masterURL even
// though they are never assigned the partition themselves.
func (c *KafkaCoordinator) Start(ctx context.Context) error {
	if !c.masterEligible {
		<-ctx.Done()
		return ctx.Err()
	}
	for ctx.Err() == nil {
		fetches := c.cl.PollFetches(ctx)
		if ctx.Err() != nil {
			break
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			slog.Warn("election: fetch error", "error", errs[0].Err)
		}
		c.refreshMasterURL(ctx)
	}
	return ctx.Err()
}

func (c *KafkaCoordinator) refreshMasterURL(ctx context.Context) {
	groups, err := c.adm.DescribeGroups(ctx, c.group)
	if err != nil {
		return
	}
	g, ok := groups[c.group]
	if !ok {
		return
	}
	for _, member := range g.Members {
		for _, assign := range member.Assigned.Topics {
			if assign.Topic != c.topic {
				continue
			}
			for _, p := range assign.Partitions {
				if p == 0 && member.InstanceID != nil {
					c.mu.Lock()
					c.masterURL = *member.InstanceID
					c.mu.Unlock()
				}
			}
		}
	}
}

func (c *KafkaCoordinator) Close() error {
	if c.closed.CompareAndSwap(false, true) && c.cl != nil {
		c.cl.Close()
	}
	return nil
}
