package events

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer wraps an async kafka writer behind a buffered inbox so publishing
// never blocks a request handler. Messages for one order share a partition
// key, keeping that order's events in sequence.
type Producer struct {
	w         *kafka.Writer
	inbox     chan kafka.Message
	closeOnce sync.Once
	closeCh   chan struct{}
}

func NewProducer(brokers []string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.closeInbox()
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.drain()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for m := range p.inbox {
		p.write(m)
	}
	if err := p.w.Close(); err != nil {
		log.Printf("kafka writer close: %v", err)
	}
	close(p.closeCh)
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		log.Printf("publish %s: %v", m.Topic, err)
	}
}

// Publish enqueues an envelope for topic, keyed by correlationID. Fire and
// forget: a full inbox drops the event rather than stalling the caller.
func (p *Producer) Publish(topic string, ev Envelope) {
	m := kafka.Message{
		Topic: topic,
		Key:   []byte(ev.CorrelationID),
		Value: MustMarshal(ev),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
		},
	}

	select {
	case p.inbox <- m:
	default:
		log.Printf("event inbox full, dropping %s for %s", ev.EventType, ev.CorrelationID)
	}
}

func (p *Producer) closeInbox() {
	p.closeOnce.Do(func() { close(p.inbox) })
}

// Close stops accepting events; the producer flushes what is queued.
func (p *Producer) Close() { p.closeInbox() }

// WaitClosed blocks until the flush goroutine has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
