package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/internal/domain"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/segmentio/kafka-go"
)

const (
	EventTypeBatchEmbedded = "batch.embedded"

	headerEventType   = "event_type"
	networkMode       = "tcp"
	topicPartitions   = 1
	replicationFactor = 1
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует события о записанных батчах.
type Producer struct {
	writer messageWriter
	logger logger.Logger
	cfg    *cfg.KafkaCfg
}

func NewProducer(logger logger.Logger, cfg *cfg.KafkaCfg) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		cfg:    cfg,
	}
}

// WriteBatchEvent ключ сообщения: имя коллекции, чтобы события одной коллекции шли по порядку.
func (p *Producer) WriteBatchEvent(ctx context.Context, event *domain.BatchEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Collection),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(EventTypeBatchEmbedded)},
		},
	}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// EnsureTopic создаёт топик, если брокер его ещё не знает.
// timeout ограничивает весь обмен с брокером: dial, чтение метаданных и создание топика.
func (p *Producer) EnsureTopic(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dialer := &kafka.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, networkMode, p.cfg.Brokers[0])
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	partitions, err := conn.ReadPartitions(p.cfg.Topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             p.cfg.Topic,
		NumPartitions:     topicPartitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), fmt.Errorf("failed to create topic %s: %w", p.cfg.Topic, err))
	}
	p.logger.Infof("kafka topic %s created", p.cfg.Topic)

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
