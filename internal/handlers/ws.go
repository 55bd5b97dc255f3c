// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/database"
	"github.com/jason-s-yu/examarena/internal/game"
	"github.com/jason-s-yu/examarena/internal/metrics"
	"github.com/jason-s-yu/examarena/internal/middleware"
	"github.com/jason-s-yu/examarena/internal/tasks"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	eventTimeout = 10 * time.Second
	readLimit    = 64 << 10
)

// WSHandler upgrades the request and serves the live queue, match and training events.
// Clients without an auth_token cookie are accepted as anonymous; every action they
// send is answered with a login toast.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.Logger
		remoteAddr := r.RemoteAddr

		userID, present, authErr := authenticate(r)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: s.OriginPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the examarena subprotocol")
			return
		}
		if present && authErr != nil {
			logger.Warnf("invalid auth token from %s: %v", remoteAddr, authErr)
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}
		if present {
			if _, err := s.Accounts.GetUser(r.Context(), userID); errors.Is(err, database.ErrNotFound) {
				logger.Warnf("token from %s names unknown user %s", remoteAddr, userID)
				c.Close(InvalidUserIDError, "unknown user")
				return
			} else if err != nil {
				logger.Errorf("account lookup for %s failed: %v", userID, err)
				c.Close(websocket.StatusInternalError, "account lookup failed")
				return
			}
		}
		select {
		case <-s.shutdown:
			c.Close(ServerShutdownError, "server shutting down")
			return
		default:
		}
		c.SetReadLimit(readLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			select {
			case <-s.shutdown:
				c.Close(ServerShutdownError, "server shutting down")
			case <-ctx.Done():
			}
		}()

		conn := NewConnection(userID, cancel, logger)
		middleware.LogWebSocketConnect(logger, remoteAddr, conn.ID(), userID.String())
		metrics.WSConnections.Inc()
		defer metrics.WSConnections.Dec()

		s.Hub.Connect(conn, userID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			writePump(ctx, c, conn, logger)
		}()

		readErr := s.readPump(ctx, c, conn)

		s.Hub.Disconnect(conn)
		conn.Close()
		<-done
		middleware.LogWebSocketDisconnect(logger, remoteAddr, conn.ID(), readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump reads inbound packets until the socket closes and dispatches each one.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *Connection) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			conn.log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.log.Warnf("invalid json: %v", err)
			conn.WriteError("Некорректный формат сообщения.")
			continue
		}

		if err := s.handlePacket(ctx, conn, packet); err != nil {
			if ev, ok := game.ToastFor(err); ok {
				conn.Send(ev)
			}
		}
	}
}

// handlePacket runs one inbound event with its own timeout. A panic is logged and
// reported to the client; the connection stays up.
func (s *Server) handlePacket(ctx context.Context, conn *Connection, packet map[string]interface{}) (err error) {
	msgType := fieldString(packet, "type")
	defer func() {
		if rec := recover(); rec != nil {
			conn.log.WithField("type", msgType).Errorf("panic handling event: %v", rec)
			err = errors.New("internal error")
		}
	}()

	evCtx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	err = s.dispatch(evCtx, conn, msgType, packet)
	var ge *game.Error
	if err != nil && !errors.As(err, &ge) {
		conn.log.WithField("type", msgType).WithError(err).Warn("event failed")
	}
	return err
}

func (s *Server) dispatch(ctx context.Context, conn *Connection, msgType string, packet map[string]interface{}) error {
	hub := s.Hub
	switch msgType {
	case "queue:join":
		return hub.JoinQueue(ctx, conn)
	case "queue:leave":
		hub.LeaveQueue(conn)
		return nil
	case "match:join":
		return hub.JoinMatch(ctx, conn, fieldString(packet, "match_id"))
	case "match:submit_answer":
		return hub.SubmitMatchAnswer(ctx, conn, fieldString(packet, "match_id"), fieldString(packet, "answer"))
	case "match:surrender":
		return hub.Surrender(ctx, conn, fieldString(packet, "match_id"))
	case "training:join":
		return hub.JoinTraining(ctx, conn)
	case "training:set_filters":
		f := tasks.Filters{
			Subject:    fieldString(packet, "subject"),
			Topic:      fieldString(packet, "topic"),
			Difficulty: fieldString(packet, "difficulty"),
		}
		return hub.SetTrainingFilters(ctx, conn, f)
	case "training:submit_answer":
		return hub.SubmitTrainingAnswer(ctx, conn, fieldString(packet, "answer"))
	case "training:leave":
		return hub.LeaveTraining(ctx, conn)
	default:
		conn.log.Warnf("unknown event type %q", msgType)
		return game.ErrUnknownAction
	}
}

// writePump drains OutChan to the socket and pings periodically.
func writePump(ctx context.Context, c *websocket.Conn, conn *Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.OutChan:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, game.EncodeEvent(ev))
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for conn %s: %v", conn.ID(), err)
				conn.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for conn %s: %v", conn.ID(), err)
				conn.Cancel()
				return
			}
		}
	}
}

// userFromRequest resolves an authenticated caller or writes 401.
func userFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, present, err := authenticate(r)
	if !present || err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}
