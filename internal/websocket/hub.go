package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/layout"
	"github.com/grandmasters-wiki/internal/search"
)

// Message types
const (
	MessageTypeClock         = "clock"
	MessageTypeProfileUpdate = "profile_update"
	MessageTypeSearch        = "search"
	MessageTypeSearchResults = "search_results"
	MessageTypePage          = "page"
	MessageTypePageChanged   = "page_changed"
	MessageTypeViewport      = "viewport"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message is a server to client frame
type Message struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	Label     string    `json:"label,omitempty"`
	Value     string    `json:"value,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProfileUpdate is the payload of a profile_update message
type ProfileUpdate struct {
	Username   string `json:"username"`
	LastOnline int64  `json:"last_online"`
}

// Directory is what connections need from the directory service
type Directory interface {
	Player(ctx context.Context, username string) (*domain.PlayerProfile, error)
	Grandmasters(ctx context.Context) ([]string, error)
	Layout() layout.Table
}

// Hub tracks live connections by the profile they watch
type Hub struct {
	// Clients watching a profile, keyed by cache key
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	updates    chan *domain.PlayerProfile

	mu sync.RWMutex

	directory     Directory
	now           func() time.Time
	clockInterval time.Duration
	searchQuiet   time.Duration
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithClock replaces time.Now for clock messages
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// WithClockInterval sets how often clock messages are pushed
func WithClockInterval(d time.Duration) HubOption {
	return func(h *Hub) { h.clockInterval = d }
}

// WithSearchQuietPeriod sets the live search debounce period
func WithSearchQuietPeriod(d time.Duration) HubOption {
	return func(h *Hub) { h.searchQuiet = d }
}

// NewHub creates a new Hub
func NewHub(directory Directory, logger *slog.Logger, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:       make(map[string]map[*Client]bool),
		allClients:    make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		updates:       make(chan *domain.PlayerProfile, 64),
		directory:     directory,
		now:           time.Now,
		clockInterval: time.Second,
		searchQuiet:   search.DefaultQuietPeriod,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			if client.watchKey != "" {
				if _, ok := h.clients[client.watchKey]; !ok {
					h.clients[client.watchKey] = make(map[*Client]bool)
				}
				h.clients[client.watchKey][client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id, "username", client.username)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				if watchers, ok := h.clients[client.watchKey]; ok {
					delete(watchers, client)
					if len(watchers) == 0 {
						delete(h.clients, client.watchKey)
					}
				}
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case profile := <-h.updates:
			h.pushProfileUpdate(profile)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// ProfileUpdated queues a profile_update for every connection watching the
// profile
func (h *Hub) ProfileUpdated(profile *domain.PlayerProfile) {
	select {
	case h.updates <- profile:
	default:
		h.logger.Warn("update channel full, dropping profile update", "username", profile.Username)
	}
}

func (h *Hub) pushProfileUpdate(profile *domain.PlayerProfile) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	watchers, ok := h.clients[domain.CacheKey(profile.Username)]
	if !ok {
		return
	}

	data, err := json.Marshal(Message{
		Type:     MessageTypeProfileUpdate,
		Username: profile.Username,
		Data: ProfileUpdate{
			Username:   profile.Username,
			LastOnline: profile.LastOnline,
		},
		Timestamp: h.now(),
	})
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range watchers {
		client.lastOnline.Store(profile.LastOnline)
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// GetWatcherCount returns the number of connections watching username
func (h *Hub) GetWatcherCount(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[domain.CacheKey(username)])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
