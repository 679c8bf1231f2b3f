package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"voiceattend/internal/attendance"
)

// Message is one queued session event.
type Message struct {
	Event attendance.SessionEvent
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// ErrFull is returned by a non-blocking publish on a full in-memory queue.
var ErrFull = errors.New("queue full")

// InMemory is a channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message without blocking.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Consume returns a channel for workers, closed when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "voiceattend:events"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					log.Printf("queue: brpop %s: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			msg, err := decode(res[1])
			if err != nil {
				log.Printf("queue: dropping malformed message: %v", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func encode(msg Message) (string, error) {
	b, err := json.Marshal(msg.Event)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", msg.Event.ID, err)
	}
	return string(b), nil
}

func decode(s string) (Message, error) {
	var evt attendance.SessionEvent
	if err := json.Unmarshal([]byte(s), &evt); err != nil {
		return Message{}, err
	}
	if evt.ID == "" || evt.Kind == "" {
		return Message{}, errors.New("event id and kind required")
	}
	return Message{Event: evt}, nil
}

// Sink publishes dashboard events to a queue. Failures are logged and never
// reach the caller.
type Sink struct {
	q       Queue
	timeout time.Duration
}

// NewSink wraps q.
func NewSink(q Queue) *Sink {
	return &Sink{q: q, timeout: 2 * time.Second}
}

// Emit publishes evt.
func (s *Sink) Emit(evt attendance.SessionEvent) {
	if s == nil || s.q == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.q.Publish(ctx, Message{Event: evt}); err != nil {
		log.Printf("queue: publish %s for class %s failed: %v", evt.Kind, evt.ClassID, err)
	}
}

// Handler processes one consumed event.
type Handler func(ctx context.Context, evt attendance.SessionEvent) error

// Run consumes q until ctx ends and hands every event to handle. Handler
// failures are logged and the loop goes on.
func Run(ctx context.Context, q Queue, handle Handler) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		if err := handle(ctx, msg.Event); err != nil {
			log.Printf("queue: handle %s %s failed: %v", msg.Event.Kind, msg.Event.ID, err)
		}
	}
	return ctx.Err()
}
