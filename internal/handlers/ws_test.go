package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/auth"
	"github.com/jason-s-yu/examarena/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *httptest.Server, token string, subprotocols ...string) (*wsClient, error) {
	t.Helper()
	if subprotocols == nil {
		subprotocols = []string{Subprotocol}
	}
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", "auth_token="+token)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   header,
	})
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{t: t, conn: c}, nil
}

func (c *wsClient) send(packet map[string]interface{}) {
	c.t.Helper()
	data, err := json.Marshal(packet)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, data))
}

// expect reads events until one of type want arrives, failing after two seconds.
func (c *wsClient) expect(want game.EventType) game.Event {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		require.NoError(c.t, err, "waiting for %s", want)
		var ev game.Event
		require.NoError(c.t, json.Unmarshal(data, &ev))
		if ev.Type == want {
			return ev
		}
	}
}

func TestWSRejectsMissingSubprotocol(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	c, err := dialWS(t, srv, "", "other")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.conn.Read(ctx)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))
}

func TestWSRejectsInvalidToken(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	c, err := dialWS(t, srv, "not-a-jwt")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.conn.Read(ctx)
	assert.Equal(t, InvalidAuthTokenError, websocket.CloseStatus(err))
}

func TestWSRejectsUnknownUser(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	token, err := auth.CreateJWT(uuid.NewString())
	require.NoError(t, err)
	c, err := dialWS(t, srv, token)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.conn.Read(ctx)
	assert.Equal(t, InvalidUserIDError, websocket.CloseStatus(err))
}

func TestWSCloseConnectionsOnShutdown(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	_, token := ts.accounts.addUser(t, "alice", 1000)

	c, err := dialWS(t, srv, token)
	require.NoError(t, err)
	c.send(map[string]interface{}{"type": "queue:join"})
	c.expect(game.EventQueueStatus)

	ts.CloseConnections()
	ts.CloseConnections()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.conn.Read(ctx)
	assert.Equal(t, ServerShutdownError, websocket.CloseStatus(err))

	// New clients are turned away too.
	late, err := dialWS(t, srv, token)
	require.NoError(t, err)
	_, _, err = late.conn.Read(ctx)
	assert.Equal(t, ServerShutdownError, websocket.CloseStatus(err))
	require.Eventually(t, func() bool { return ts.Hub.Queue.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWSAnonymousGetsLoginToast(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	c, err := dialWS(t, srv, "")
	require.NoError(t, err)
	c.send(map[string]interface{}{"type": "queue:join"})
	ev := c.expect(game.EventToast)
	assert.Equal(t, game.ToastDanger, ev.Payload["type"])
	assert.Equal(t, "Нужно войти.", ev.Payload["text"])
}

func TestWSBadPacketsKeepConnection(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	_, token := ts.accounts.addUser(t, "alice", 1000)

	c, err := dialWS(t, srv, token)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.conn.Write(ctx, websocket.MessageText, []byte("{nope")))
	ev := c.expect(game.EventToast)
	assert.Equal(t, game.ToastDanger, ev.Payload["type"])

	c.send(map[string]interface{}{"type": "dance"})
	ev = c.expect(game.EventToast)
	assert.Equal(t, game.ToastWarning, ev.Payload["type"])

	c.send(map[string]interface{}{"type": "queue:leave"})
	ev = c.expect(game.EventQueueStatus)
	assert.Equal(t, "idle", ev.Payload["status"])
}

func TestWSMatchFlow(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	alice, aliceToken := ts.accounts.addUser(t, "alice", 1000)
	_, bobToken := ts.accounts.addUser(t, "bob", 1000)

	a, err := dialWS(t, srv, aliceToken)
	require.NoError(t, err)
	b, err := dialWS(t, srv, bobToken)
	require.NoError(t, err)

	a.send(map[string]interface{}{"type": "queue:join"})
	status := a.expect(game.EventQueueStatus)
	assert.Equal(t, "searching", status.Payload["status"])

	b.send(map[string]interface{}{"type": "queue:join"})
	found := b.expect(game.EventMatchFound)
	assert.Equal(t, "alice", found.Payload["opponent_name"])
	matchID := found.Payload["match_id"].(string)
	assert.Equal(t, matchID, a.expect(game.EventMatchFound).Payload["match_id"])

	a.send(map[string]interface{}{"type": "match:join", "match_id": matchID})
	task := a.expect(game.EventMatchTask)
	assert.Equal(t, "2 + 40 = ?", task.Payload["prompt"])
	assert.NotContains(t, task.Payload, "answer")

	b.send(map[string]interface{}{"type": "match:join", "match_id": matchID})
	a.expect(game.EventMatchStarted)
	b.expect(game.EventMatchStarted)

	a.send(map[string]interface{}{"type": "match:submit_answer", "match_id": matchID, "answer": 42})
	b.expect(game.EventMatchSubmitted)
	b.send(map[string]interface{}{"type": "match:submit_answer", "match_id": matchID, "answer": "41"})

	ended := a.expect(game.EventMatchEnded)
	assert.Equal(t, alice.ID.String(), ended.Payload["winner_user_id"])
	assert.Equal(t, "both_submitted", ended.Payload["reason"])
	assert.Equal(t, "42", ended.Payload["correct_answer"])
	b.expect(game.EventMatchEnded)

	assert.Equal(t, 1, ts.accounts.outcomeCount())
	rr := doRequest(t, ts.router, http.MethodGet, "/match/"+matchID, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ended"`)
}

func TestWSTrainingFlow(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	_, token := ts.accounts.addUser(t, "alice", 1000)

	c, err := dialWS(t, srv, token)
	require.NoError(t, err)

	c.send(map[string]interface{}{"type": "training:join"})
	c.expect(game.EventTrainingOptions)
	task := c.expect(game.EventTrainingTask)
	assert.Equal(t, "2 + 40 = ?", task.Payload["prompt"])

	c.send(map[string]interface{}{"type": "training:submit_answer", "answer": " 42 "})
	res := c.expect(game.EventTrainingResult)
	assert.Equal(t, true, res.Payload["correct"])

	c.send(map[string]interface{}{"type": "training:set_filters", "difficulty": "impossible"})
	toast := c.expect(game.EventToast)
	assert.Equal(t, game.ToastWarning, toast.Payload["type"])

	c.send(map[string]interface{}{"type": "training:leave"})
	c.send(map[string]interface{}{"type": "training:submit_answer", "answer": "42"})
	toast = c.expect(game.EventToast)
	assert.Equal(t, "Тренировка не запущена.", toast.Payload["text"])
}
