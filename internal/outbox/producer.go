package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Record is one framed event ready for Kafka. The producer turns it into a
// kafka.Message and stamps the event_type and schema_subject headers the
// audit consumer decodes against.
type Record struct {
	Key           []byte
	Value         []byte
	EventType     string
	SchemaSubject string
}

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// Publish writes records to the given topic, creating a writer if necessary.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, records ...Record) error {
	writer := p.writerForTopic(topic)
	return writer.WriteMessages(ctx, toKafkaMessages(records)...)
}

func toKafkaMessages(records []Record) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(records))
	for _, record := range records {
		msgs = append(msgs, kafka.Message{
			Key:   record.Key,
			Value: record.Value,
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(record.EventType)},
				{Key: "schema_subject", Value: []byte(record.SchemaSubject)},
			},
		})
	}
	return msgs
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
