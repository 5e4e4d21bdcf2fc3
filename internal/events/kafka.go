package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"copytrader/internal/models"
	"copytrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// messageWriter - часть kafka.Writer, используемая публикатором
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig - параметры публикации
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Размер очереди событий; при переполнении новые события отбрасываются
	QueueSize int
}

// KafkaPublisher публикует события в Kafka из фоновой горутины
//
// Publish не блокирует движок: событие кладётся в очередь, запись
// в брокер выполняет Run. Ключ сообщения - ID мастера, чтобы события
// одного мастера попадали в одну партицию.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	queue   chan models.Event
	dropped int64 // atomic
	logger  *utils.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewKafkaPublisher создаёт публикатор поверх kafka.Writer
func NewKafkaPublisher(cfg KafkaConfig, logger *utils.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newKafkaPublisher(writer, cfg.Topic, cfg.QueueSize, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, queueSize int, logger *utils.Logger) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		queue:  make(chan models.Event, queueSize),
		logger: logger.WithComponent("kafka"),
		done:   make(chan struct{}),
	}
}

// Publish ставит событие в очередь
func (p *KafkaPublisher) Publish(_ context.Context, event models.Event) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- event:
	default:
		atomic.AddInt64(&p.dropped, 1)
		p.logger.Warn("event queue full, dropping event", utils.String("type", event.Type))
	}
}

// Run записывает события из очереди до отмены ctx или Close
func (p *KafkaPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case event := <-p.queue:
			if err := p.write(ctx, event); err != nil {
				p.logger.Error("failed to publish event", utils.String("type", event.Type), utils.Err(err))
			}
		}
	}
}

func (p *KafkaPublisher) write(ctx context.Context, event models.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.MasterID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Dropped возвращает количество отброшенных событий
func (p *KafkaPublisher) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

// Topic возвращает топик публикации
func (p *KafkaPublisher) Topic() string {
	return p.topic
}

// Close останавливает публикацию и закрывает writer
func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.writer.Close()
	})
	return err
}
