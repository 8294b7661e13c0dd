package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Envelope wraps every published domain event.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

// Producer publishes domain events to a Kafka topic asynchronously. Messages
// are buffered in an inbox channel and written by a background goroutine;
// producing never blocks callers longer than the channel send.
type Producer struct {
	w       *kafka.Writer
	service string
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, topic, service string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		service: service,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				// Drain whatever is buffered; Publish may still be running
				// concurrently, so the inbox itself is never closed here.
				for {
					select {
					case m := <-p.inbox:
						_ = p.w.WriteMessages(context.Background(), m)
					default:
						_ = p.w.Close()
						close(p.closeCh)
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					close(p.closeCh)
					return
				}
				if err := p.w.WriteMessages(context.Background(), m); err != nil {
					log.Printf("events: write failed: %v", err)
				}
			}
		}
	}()
}

// Publish implements core.EventPublisher. Events that fail to marshal are
// logged and dropped; publication must never fail a business operation.
func (p *Producer) Publish(eventType, key string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("events: marshal %s payload: %v", eventType, err)
		return
	}
	value, err := json.Marshal(Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     p.service,
		Payload:      raw,
	})
	if err != nil {
		log.Printf("events: marshal %s envelope: %v", eventType, err)
		return
	}

	select {
	case p.inbox <- kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}:
	default:
		log.Printf("events: inbox full, dropping %s for %s", eventType, key)
	}
}

// Close closes the inbox so the loop flushes remaining messages and exits.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until the background loop has drained and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
