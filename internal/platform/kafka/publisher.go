package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"ledgerguard/internal/platform/config"
)

// Publisher writes ledger events to a Kafka topic for downstream consumers.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// New creates a Kafka publisher. Returns nil if no brokers are configured.
func New(cfg config.Kafka) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: cfg.Topic}, nil
}

// Publish writes one record synchronously. Key determines partition
// placement; ledger mirrors key by sequence number so per-partition order
// follows log order.
func (p *Publisher) Publish(ctx context.Context, key, payload []byte) error {
	record := &kgo.Record{Topic: p.topic, Key: key, Value: payload}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
