package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig contains configurable parameters for the Kafka producer.
type ProducerConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the topic to write to.
	Topic string

	// MaxAttempts is how many times the producer will retry a Produce on
	// transient error. Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout for Write operations.
	// Defaults to 10s if zero.
	WriteTimeout time.Duration

	// Balancer decides partition selection. If nil, a Hash balancer is used
	// so messages for the same key (campaign id) stay ordered per partition.
	Balancer kafka.Balancer
}

// Producer is a lightweight wrapper over segmentio/kafka-go Writer offering
// produce-with-retries behavior for the outbound sender and the campaign
// event stream.
type Producer struct {
	writer      *kafka.Writer
	topic       string
	maxAttempts int
}

// NewProducer constructs a Producer. Returns an error if required params are
// missing.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     cfg.Balancer,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		// Async=false so WriteMessages returns only after the writer pipeline
		// acknowledged the message (within WriteTimeout).
		Async: false,
	})

	return &Producer{
		writer:      w,
		topic:       cfg.Topic,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

// Produce writes a single message with optional key. On transient failure it
// retries with exponential backoff up to MaxAttempts, returning the produce
// timestamp on success.
func (p *Producer) Produce(ctx context.Context, key []byte, value []byte) (time.Time, error) {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := kafka.Message{
			Key:   key,
			Value: value,
			Time:  time.Now().UTC(),
		}

		ctxAttempt, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(ctxAttempt, msg)
		cancel()

		if err == nil {
			return msg.Time, nil
		}

		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}

	return time.Time{}, fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// ProduceJSON marshals v into compact JSON and produces it as the message
// value. key may be nil/empty.
func (p *Producer) ProduceJSON(ctx context.Context, key []byte, v interface{}) (time.Time, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal json: %w", err)
	}
	return p.Produce(ctx, key, b)
}

// Close shuts down the underlying writer and releases resources.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
