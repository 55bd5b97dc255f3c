// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains match actions from.
var DefaultQueueName = "examarena_actions"

// DefaultEventsChannel is the pub/sub channel announcing finished matches.
var DefaultEventsChannel = "match_ended"

// MatchActionRecord holds the minimal info needed by the historian service.
type MatchActionRecord struct {
	MatchID       uuid.UUID              `json:"match_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   uuid.UUID              `json:"actor_user_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// MatchEndedMessage is published once per completed match.
type MatchEndedMessage struct {
	MatchID       uuid.UUID  `json:"match_id"`
	WinnerUserID  *uuid.UUID `json:"winner_user_id"`
	Reason        string     `json:"reason"`
	Player1ID     uuid.UUID  `json:"player1_id"`
	Player2ID     uuid.UUID  `json:"player2_id"`
	Player1Rating int        `json:"player1_rating"`
	Player2Rating int        `json:"player2_rating"`
	EndedAt       int64      `json:"ended_at"`
}

// ConnectRedis opens and pings a Redis client configured from the environment:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// Publisher pushes match actions onto the historian queue and announces finished matches.
type Publisher struct {
	Client    *redis.Client
	QueueName string
	Channel   string
}

// NewPublisher builds a Publisher, taking queue and channel names from
// HISTORIAN_QUEUE_NAME and MATCH_EVENTS_CHANNEL.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{
		Client:    client,
		QueueName: getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName),
		Channel:   getEnv("MATCH_EVENTS_CHANNEL", DefaultEventsChannel),
	}
}

// PublishMatchAction serializes the record to JSON and pushes it to the Redis queue.
func (p *Publisher) PublishMatchAction(ctx context.Context, record MatchActionRecord) error {
	if p == nil || p.Client == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchActionRecord: %w", err)
	}
	if err := p.Client.RPush(ctx, p.QueueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.QueueName, err)
	}
	return nil
}

// PublishMatchEnded announces a completed match on the events channel.
func (p *Publisher) PublishMatchEnded(ctx context.Context, msg MatchEndedMessage) error {
	if p == nil || p.Client == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchEndedMessage: %w", err)
	}
	if err := p.Client.Publish(ctx, p.Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel '%s': %w", p.Channel, err)
	}
	return nil
}

// SubscribeMatchEnded delivers decoded MatchEndedMessages until ctx is cancelled.
// Undecodable payloads are skipped.
func (p *Publisher) SubscribeMatchEnded(ctx context.Context, fn func(MatchEndedMessage)) error {
	sub := p.Client.Subscribe(ctx, p.Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", p.Channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg MatchEndedMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			fn(msg)
		}
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
