package eventlog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/lumenex/matcher/pkg/matchererr"
)

// KafkaConfig configures the distributed single-partition log.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BufferSize   int           // bounded producer buffer capacity
	BatchWindow  time.Duration // consumer groupedWithin window
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	RandomFactor float64
}

// Kafka is the distributed event log: a single-partition topic with a
// backpressured, retrying producer and a batching consumer. The
// consumer commits no offsets to Kafka: each Tail starts reading at
// the caller's fromOffset.
type Kafka struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	inflight chan struct{} // bounded buffer: one slot per in-flight Append
}

// NewKafka builds a Kafka-backed Log. The caller's Tail determines
// which partition offset to resume from; Kafka itself assigns offsets
// at the broker.
func NewKafka(cfg KafkaConfig) *Kafka {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 10 * time.Millisecond
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.RandomFactor <= 0 {
		cfg.RandomFactor = 0.2
	}

	return &Kafka{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		dialer:   &kafka.Dialer{Timeout: 10 * time.Second},
		inflight: make(chan struct{}, cfg.BufferSize),
	}
}

func (k *Kafka) backoffPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = k.cfg.MinBackoff
	b.MaxInterval = k.cfg.MaxBackoff
	b.RandomizationFactor = k.cfg.RandomFactor
	b.MaxElapsedTime = 0 // maxRestarts = infinity
	return backoff.WithContext(b, ctx)
}

func (k *Kafka) Append(ctx context.Context, e Event) (int64, int64, error) {
	select {
	case k.inflight <- struct{}{}:
		defer func() { <-k.inflight }()
	default:
		return 0, 0, matchererr.Capacity("producer buffer full")
	}

	payload, err := EncodePayload(e)
	if err != nil {
		return 0, 0, matchererr.Validation(matchererr.CodeDuplicateOrder, err.Error(), nil)
	}

	ts := time.Now()

	op := func() error {
		msg := kafka.Message{Key: e.Pair.Bytes(), Value: payload, Time: ts}
		return k.writer.WriteMessages(ctx, msg)
	}
	if err := backoff.Retry(op, k.backoffPolicy(ctx)); err != nil {
		return 0, 0, matchererr.Transient(err, "append event to kafka log")
	}
	// kafka.Writer doesn't hand back the broker-assigned offset; callers
	// that need it read it off the log tail instead of trusting this call.
	return ts.UnixNano(), ts.UnixMilli(), nil
}

func (k *Kafka) EndOffset(ctx context.Context) (int64, error) {
	conn, err := k.dialer.DialLeader(ctx, "tcp", k.cfg.Brokers[0], k.cfg.Topic, 0)
	if err != nil {
		return 0, matchererr.Transient(err, "dial kafka leader")
	}
	defer conn.Close()

	last, err := conn.ReadLastOffset()
	if err != nil {
		return 0, matchererr.Transient(err, "read kafka last offset")
	}
	if last == 0 {
		return EndOffsetEmpty, nil
	}
	return last - 1, nil
}

func (k *Kafka) Tail(ctx context.Context, fromOffset int64, batchSize int, maxWait int64) (<-chan EventBatch, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.cfg.Brokers,
		Topic:    k.cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  k.cfg.BatchWindow,
	})
	if err := reader.SetOffset(fromOffset); err != nil {
		return nil, matchererr.FatalStartup(err, "seek kafka reader")
	}

	out := make(chan EventBatch)
	go func() {
		defer close(out)
		defer reader.Close()

		window := time.Duration(maxWait) * time.Millisecond
		if window <= 0 {
			window = k.cfg.BatchWindow
		}

		for {
			var batch []Event
			deadline := time.After(window)
		collect:
			for len(batch) < batchSize {
				select {
				case <-ctx.Done():
					return
				case <-deadline:
					break collect
				default:
				}
				msg, err := reader.ReadMessage(ctx)
				if err != nil {
					break collect
				}
				e, err := DecodePayload(msg.Value, msg.Offset, msg.Time.UnixMilli())
				if err != nil {
					continue
				}
				batch = append(batch, e)
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case out <- EventBatch{Events: batch}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

var _ Log = (*Kafka)(nil)
