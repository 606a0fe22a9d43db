// Package notify hands engine events to the outside world: user notifications
// over Redis pub/sub and chat-creation jobs over a Redis list queue.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/muzz-matching/internal/cache"
)

const (
	DefaultChannel   = "matching:events"
	DefaultChatQueue = "chat:create"

	publishTimeout = 2 * time.Second
)

type EventType string

const (
	EventSelectionReady EventType = "selection_ready"
	EventNewMatch       EventType = "new_match"
)

type Event struct {
	ID     string         `json:"id"`
	Type   EventType      `json:"type"`
	UserID uint64         `json:"user_id"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

// Notifier is fire-and-forget: delivery problems are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// ChatCreator starts a chat session for a freshly matched pairing.
type ChatCreator interface {
	CreateChatForMatch(ctx context.Context, pairingID uint64) error
}

func SelectionReady(userID, selectionID uint64, date string, candidates int, at time.Time) Event {
	return Event{
		Type:   EventSelectionReady,
		UserID: userID,
		Data:   map[string]any{"selection_id": selectionID, "date": date, "candidates": candidates},
		At:     at,
	}
}

func NewMatch(userID, counterpartID, pairingID uint64, at time.Time) Event {
	return Event{
		Type:   EventNewMatch,
		UserID: userID,
		Data:   map[string]any{"pairing_id": pairingID, "counterpart_id": counterpartID},
		At:     at,
	}
}

// RedisPublisher publishes events as JSON on a pub/sub channel.
type RedisPublisher struct {
	cache   *cache.RedisCache
	channel string
	log     *slog.Logger
}

func NewRedisPublisher(c *cache.RedisCache, channel string, log *slog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{cache: c, channel: channel, log: log.With("component", "notify")}
}

func (p *RedisPublisher) Notify(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.cache.Publish(ctx, p.channel, ev); err != nil {
		p.log.Warn("event publish failed", "type", ev.Type, "user_id", ev.UserID, "err", err)
	}
}

type chatJob struct {
	JobID     string    `json:"job_id"`
	PairingID uint64    `json:"pairing_id"`
	Enqueued  time.Time `json:"enqueued_at"`
}

// RedisChatQueue enqueues chat-creation jobs for the chat service's worker.
// Retries on the consumer side are independent of the match itself.
type RedisChatQueue struct {
	cache *cache.RedisCache
	queue string
}

func NewRedisChatQueue(c *cache.RedisCache, queue string) *RedisChatQueue {
	if queue == "" {
		queue = DefaultChatQueue
	}
	return &RedisChatQueue{cache: c, queue: queue}
}

func (q *RedisChatQueue) CreateChatForMatch(ctx context.Context, pairingID uint64) error {
	return q.cache.Enqueue(ctx, q.queue, chatJob{
		JobID:     uuid.NewString(),
		PairingID: pairingID,
		Enqueued:  time.Now().UTC(),
	})
}

// Nop discards events and pretends chats were created.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
func (Nop) CreateChatForMatch(context.Context, uint64) error { return nil }
