package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPublishMatchActionPushesJSON(t *testing.T) {
	mr, client := setupTestRedis(t)
	p := &Publisher{Client: client, QueueName: "test_actions", Channel: "test_events"}

	rec := MatchActionRecord{
		MatchID:       uuid.New(),
		ActionIndex:   3,
		ActorUserID:   uuid.New(),
		ActionType:    "match_submit",
		ActionPayload: map[string]interface{}{"correct": true},
		Timestamp:     time.Now().UnixMilli(),
	}
	require.NoError(t, p.PublishMatchAction(context.Background(), rec))

	items, err := mr.List("test_actions")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var got MatchActionRecord
	require.NoError(t, json.Unmarshal([]byte(items[0]), &got))
	assert.Equal(t, rec.MatchID, got.MatchID)
	assert.Equal(t, 3, got.ActionIndex)
	assert.Equal(t, true, got.ActionPayload["correct"])
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.PublishMatchAction(context.Background(), MatchActionRecord{}))
	assert.NoError(t, p.PublishMatchEnded(context.Background(), MatchEndedMessage{}))
}

func TestPublishAndSubscribeMatchEnded(t *testing.T) {
	_, client := setupTestRedis(t)
	p := &Publisher{Client: client, QueueName: "q", Channel: "ended"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	received := make(chan MatchEndedMessage, 1)
	go func() {
		_ = p.SubscribeMatchEnded(ctx, func(m MatchEndedMessage) {
			select {
			case received <- m:
			default:
			}
		})
	}()

	winner := uuid.New()
	msg := MatchEndedMessage{MatchID: uuid.New(), WinnerUserID: &winner, Reason: "time", Player1Rating: 1016, Player2Rating: 984}

	// The subscriber may not be registered yet; publish until it is.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		require.NoError(t, p.PublishMatchEnded(ctx, msg))
		select {
		case got := <-received:
			assert.Equal(t, msg.MatchID, got.MatchID)
			require.NotNil(t, got.WinnerUserID)
			assert.Equal(t, winner, *got.WinnerUserID)
			assert.Equal(t, 1016, got.Player1Rating)
			return
		case <-ctx.Done():
			t.Fatal("did not receive match ended message")
		case <-ticker.C:
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CACHE_TEST_INT", "12")
	t.Setenv("CACHE_TEST_BAD", "x")
	assert.Equal(t, 12, getEnvInt("CACHE_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("CACHE_TEST_BAD", 1))
	assert.Equal(t, "dflt", getEnv("CACHE_TEST_MISSING", "dflt"))
}
