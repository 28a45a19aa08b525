package kafkalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaLog is the production Log: a direct (non-group) franz-go
// consumer paired with a kadm admin client for topic bootstrap and
// offset queries. It is "direct" rather than group-joining because the
// projector must see every record on the partition regardless of
// consumer-group balancing — group membership is reserved for the
// separate election consumer in internal/election.
type KafkaLog struct {
	cl    *kgo.Client
	adm   *kadm.Client
	topic string

	partitions        int32
	replicationFactor int16
}

// NewKafkaLog dials brokers and prepares a direct consumer+producer
// over topic's single partition. EnsureTopic must be called before the
// topic is guaranteed to exist.
func NewKafkaLog(brokers []string, topic string, replicationFactor int16) (*KafkaLog, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			topic: {0: kgo.NewOffset().AtStart()},
		}),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkalog: new client: %w", err)
	}
	return &KafkaLog{
		cl:                cl,
		adm:               kadm.NewClient(cl),
		topic:             topic,
		partitions:        1,
		replicationFactor: replicationFactor,
	}, nil
}

func (l *KafkaLog) EnsureTopic(ctx context.Context) error {
	resp, err := l.adm.CreateTopics(ctx, l.partitions, l.replicationFactor, map[string]*string{
		"cleanup.policy": strPtr("compact"),
	}, l.topic)
	if err != nil {
		return fmt.Errorf("kafkalog: create topic %s: %w", l.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafkalog: create topic %s: %w", l.topic, r.Err)
		}
	}
	return nil
}

func (l *KafkaLog) StartOffset(ctx context.Context) (int64, error) {
	resp, err := l.adm.ListStartOffsets(ctx, l.topic)
	if err != nil {
		return 0, fmt.Errorf("kafkalog: list start offsets: %w", err)
	}
	o, ok := resp.Lookup(l.topic, 0)
	if !ok {
		return 0, fmt.Errorf("kafkalog: no start offset for %s/0", l.topic)
	}
	if o.Err != nil {
		return 0, fmt.Errorf("kafkalog: start offset for %s/0: %w", l.topic, o.Err)
	}
	return o.Offset, nil
}

func (l *KafkaLog) EndOffset(ctx context.Context) (int64, error) {
	resp, err := l.adm.ListEndOffsets(ctx, l.topic)
	if err != nil {
		return 0, fmt.Errorf("kafkalog: list end offsets: %w", err)
	}
	o, ok := resp.Lookup(l.topic, 0)
	if !ok {
		return 0, fmt.Errorf("kafkalog: no end offset for %s/0", l.topic)
	}
	if o.Err != nil {
		return 0, fmt.Errorf("kafkalog: end offset for %s/0: %w", l.topic, o.Err)
	}
	return o.Offset, nil
}

func (l *KafkaLog) Produce(ctx context.Context, key, value []byte) (int64, error) {
	rec := &kgo.Record{Topic: l.topic, Key: key, Value: value}
	results := l.cl.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		return 0, fmt.Errorf("kafkalog: produce: %w", err)
	}
	produced, err := results.First()
	if err != nil {
		return 0, fmt.Errorf("kafkalog: produce: %w", err)
	}
	return produced.Offset, nil
}

func (l *KafkaLog) Poll(ctx context.Context) ([]Record, error) {
	fetches := l.cl.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("kafkalog: fetch: %w", errs[0].Err)
	}

	var out []Record
	fetches.EachRecord(func(r *kgo.Record) {
		out = append(out, Record{Offset: r.Offset, Key: r.Key, Value: r.Value})
	})
	return out, nil
}

func (l *KafkaLog) Close() error {
	l.cl.Close()
	return nil
}
