package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/layout"
	"github.com/grandmasters-wiki/internal/pagination"
	"github.com/grandmasters-wiki/internal/search"
	"github.com/grandmasters-wiki/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	searchTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one browser connection. It optionally watches a profile, in
// which case it owns a clock ticker for that profile's last_online.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *slog.Logger
	username string
	watchKey string

	lastOnline atomic.Int64
	debouncer  *search.Debouncer

	// live search results, paged for viewport
	resultsMu sync.Mutex
	viewport  layout.Viewport
	term      string
	results   *pagination.Paginator[string]

	done     chan struct{}
	doneOnce sync.Once

	// sendMu guards send against use after the hub closes it
	sendMu     sync.RWMutex
	sendClosed bool
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type      string `json:"type"`
	Term      string `json:"term,omitempty"`
	Page      int    `json:"page,omitempty"`
	Direction string `json:"direction,omitempty"`
	Width     int    `json:"vw,omitempty"`
	Height    int    `json:"vh,omitempty"`
}

// Page directions
const (
	DirectionNext     = "next"
	DirectionPrevious = "prev"
)

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, username string, viewport layout.Viewport, logger *slog.Logger) *Client {
	c := &Client{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		logger:   logger,
		username: username,
		viewport: viewport,
		done:     make(chan struct{}),
	}
	if username != "" {
		c.watchKey = domain.CacheKey(username)
	}
	c.debouncer = search.NewDebouncer(hub.searchQuiet, c.runSearch)
	return c
}

// closeSend is called by the hub once the client is unregistered
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) close() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.debouncer.Stop()
	})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming client messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSearch:
		c.debouncer.Push(msg.Term)

	case MessageTypePage:
		c.navigate(msg.Direction, msg.Page)

	case MessageTypeViewport:
		c.resize(layout.Viewport{Width: msg.Width, Height: msg.Height})

	case MessageTypePing:
		c.enqueue(Message{Type: MessageTypePong, Timestamp: c.hub.now()})

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// runSearch answers a settled search term with the first result page
func (c *Client) runSearch(term string) {
	ctx, cancel := context.WithTimeout(c.hub.ctx, searchTimeout)
	defer cancel()

	usernames, err := c.hub.directory.Grandmasters(ctx)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	filtered := search.Filter(usernames, term)

	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()

	c.term = term
	if c.results == nil {
		c.results = pagination.New(filtered, c.hub.directory.Layout().PageSize(c.viewport),
			pagination.WithOnPageChange[string](c.pageChanged))
	} else {
		c.results.SetItems(filtered)
	}
	c.sendResults(MessageTypeSearchResults)
}

// navigate moves through the live search results. Nothing is sent when
// the page does not change.
func (c *Client) navigate(direction string, page int) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()

	if c.results == nil {
		c.sendError("no search results to page through")
		return
	}
	switch direction {
	case DirectionNext:
		c.results.Next()
	case DirectionPrevious:
		c.results.Previous()
	default:
		c.results.GoTo(page)
	}
}

// resize re-pages the live search results for a new viewport, back on
// page 1 when the page size changes
func (c *Client) resize(v layout.Viewport) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()

	c.viewport = v
	if c.results == nil {
		return
	}
	size := c.hub.directory.Layout().PageSize(v)
	if size == c.results.PageSize() {
		return
	}
	c.results.SetPageSize(size)
	c.sendResults(MessageTypeSearchResults)
}

// pageChanged runs under resultsMu whenever navigation lands on another
// page; the browser scrolls to the top on page_changed
func (c *Client) pageChanged(from, to int) {
	c.logger.Debug("live search page changed", "client_id", c.id, "from", from, "to", to)
	c.sendResults(MessageTypePageChanged)
}

// sendResults sends the current results page. The caller holds resultsMu.
func (c *Client) sendResults(msgType string) {
	page := service.PageOf(c.results, c.term, c.viewport.Breakpoint())
	c.enqueue(Message{Type: msgType, Data: page, Timestamp: c.hub.now()})
}

// clockPump pushes the elapsed-time clock until the connection closes
func (c *Client) clockPump() {
	ticker := time.NewTicker(c.hub.clockInterval)
	defer ticker.Stop()

	c.sendClock()
	for {
		select {
		case <-c.done:
			return
		case <-c.hub.ctx.Done():
			return
		case <-ticker.C:
			c.sendClock()
		}
	}
}

func (c *Client) sendClock() {
	label, value := domain.LastOnlineText(c.lastOnline.Load(), c.hub.now())
	c.enqueue(Message{
		Type:      MessageTypeClock,
		Username:  c.username,
		Label:     label,
		Value:     value,
		Timestamp: c.hub.now(),
	})
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue sends msg unless the connection is closing or its buffer is full
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, skipping", "client_id", c.id)
	}
}

func (c *Client) sendError(errMsg string) {
	c.enqueue(Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": errMsg},
		Timestamp: c.hub.now(),
	})
}

// ServeWs upgrades the request. A username query parameter makes the
// connection watch that profile; vh and vw size live search pages.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username := q.Get("username")
	if username != "" && !domain.ValidUsername(username) {
		http.Error(w, domain.ErrInvalidUsername.Error(), http.StatusBadRequest)
		return
	}

	var lastOnline int64
	if username != "" {
		profile, err := hub.directory.Player(r.Context(), username)
		if err != nil {
			status := http.StatusBadGateway
			if domain.IsNotFoundError(err) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		lastOnline = profile.LastOnline
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, username, viewportFromQuery(q.Get("vw"), q.Get("vh")), logger)
	client.lastOnline.Store(lastOnline)
	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	if username != "" {
		go client.clockPump()
	}

	logger.Debug("new websocket connection", "client_id", client.id, "username", username)
}

func viewportFromQuery(vw, vh string) layout.Viewport {
	width, _ := strconv.Atoi(vw)
	height, _ := strconv.Atoi(vh)
	return layout.Viewport{Width: width, Height: height}
}
