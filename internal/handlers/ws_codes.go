// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the live endpoint.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // auth_token cookie was present but invalid or expired.
	InvalidUserIDError    websocket.StatusCode = 3002 // Token is valid but names no existing user.
	ServerShutdownError   websocket.StatusCode = 3003 // Server is going down; the client may reconnect.
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "examarena"
