package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/game"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/jason-s-yu/examarena/internal/tasks"
	"github.com/sirupsen/logrus"
)

// Accounts is the user and match persistence behind the REST endpoints.
// Lookups return database.ErrNotFound for missing rows.
type Accounts interface {
	CreateUser(ctx context.Context, u *models.User) error
	Authenticate(ctx context.Context, username, password string) (string, *models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
	UserStats(ctx context.Context, id uuid.UUID) (*models.UserStats, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
}

// Server bundles what the HTTP and websocket handlers need.
type Server struct {
	Hub      *game.Hub
	Tasks    tasks.Provider
	Accounts Accounts
	Logger   *logrus.Logger

	// OriginPatterns is passed to websocket.AcceptOptions; empty means same-origin only.
	OriginPatterns []string

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewServer wires the handlers to the hub and account store.
func NewServer(hub *game.Hub, provider tasks.Provider, accounts Accounts, logger *logrus.Logger, origins []string) *Server {
	return &Server{
		Hub:            hub,
		Tasks:          provider,
		Accounts:       accounts,
		Logger:         logger,
		OriginPatterns: originHosts(origins),
		shutdown:       make(chan struct{}),
	}
}

// CloseConnections closes every live websocket with ServerShutdownError and
// refuses new ones. Safe to call more than once.
func (s *Server) CloseConnections() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// originHosts turns CORS origins such as "https://example.com" into the host
// patterns websocket.AcceptOptions matches against.
func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		if _, rest, ok := strings.Cut(o, "://"); ok {
			o = rest
		}
		if o = strings.TrimSuffix(o, "/"); o != "" {
			hosts = append(hosts, o)
		}
	}
	return hosts
}
