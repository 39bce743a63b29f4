package websocket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/layout"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	players   map[string]*domain.PlayerProfile
	usernames []string
}

func (f *fakeDirectory) Player(_ context.Context, username string) (*domain.PlayerProfile, error) {
	p, ok := f.players[domain.CacheKey(username)]
	if !ok {
		return nil, &domain.APIError{
			Message:    `Player "` + username + `" not found`,
			StatusCode: http.StatusNotFound,
			Err:        domain.ErrNotFound,
		}
	}
	return p, nil
}

func (f *fakeDirectory) Grandmasters(context.Context) ([]string, error) {
	return f.usernames, nil
}

func (f *fakeDirectory) Layout() layout.Table {
	return layout.DefaultTable()
}

func newTestServer(t *testing.T, dir *fakeDirectory, opts ...HubOption) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(dir, logger, opts...)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readType reads frames until one of the given type arrives
func readType(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestClockMessages(t *testing.T) {
	dir := &fakeDirectory{players: map[string]*domain.PlayerProfile{
		"never":  {Username: "never"},
		"hourly": {Username: "Hourly", LastOnline: fixedNow.Add(-time.Hour).Unix()},
		"future": {Username: "future", LastOnline: fixedNow.Add(time.Minute).Unix()},
	}}
	_, srv := newTestServer(t, dir, WithClock(func() time.Time { return fixedNow }))

	tests := []struct {
		username  string
		wantLabel string
		wantValue string
	}{
		{"never", domain.LabelLastOnline, domain.ValueNever},
		{"hourly", domain.LabelTimeSinceOnline, "01:00:00"},
		{"future", domain.LabelLastOnline, domain.ValueJustNow},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			conn := dial(t, srv, "username="+tt.username)
			msg := readType(t, conn, MessageTypeClock)
			assert.Equal(t, tt.wantLabel, msg["label"])
			assert.Equal(t, tt.wantValue, msg["value"])
		})
	}
}

func TestClockTicks(t *testing.T) {
	start := fixedNow
	var calls int64
	// only the clock pump reads the clock, twice per frame
	now := func() time.Time {
		calls++
		return start.Add(time.Duration(calls/2) * time.Second)
	}
	dir := &fakeDirectory{players: map[string]*domain.PlayerProfile{
		"hikaru": {Username: "Hikaru", LastOnline: start.Add(-time.Hour).Unix()},
	}}
	_, srv := newTestServer(t, dir, WithClock(now), WithClockInterval(20*time.Millisecond))

	conn := dial(t, srv, "username=hikaru")
	first := readType(t, conn, MessageTypeClock)
	second := readType(t, conn, MessageTypeClock)
	assert.Equal(t, "01:00:00", first["value"])
	assert.Equal(t, "01:00:01", second["value"])
}

func TestProfileUpdateSwitchesClock(t *testing.T) {
	dir := &fakeDirectory{players: map[string]*domain.PlayerProfile{
		"hikaru": {Username: "Hikaru", LastOnline: fixedNow.Add(-time.Hour).Unix()},
	}}
	hub, srv := newTestServer(t, dir,
		WithClock(func() time.Time { return fixedNow }),
		WithClockInterval(20*time.Millisecond),
	)

	conn := dial(t, srv, "username=hikaru")
	readType(t, conn, MessageTypeClock)
	require.Eventually(t, func() bool { return hub.GetWatcherCount("HIKARU") == 1 }, time.Second, 5*time.Millisecond)

	hub.ProfileUpdated(&domain.PlayerProfile{Username: "Hikaru", LastOnline: fixedNow.Add(-2 * time.Second).Unix()})

	update := readType(t, conn, MessageTypeProfileUpdate)
	assert.Equal(t, "Hikaru", update["username"])

	// a tick computed before the update may still be in flight
	for i := 0; i < 5; i++ {
		clock := readType(t, conn, MessageTypeClock)
		if clock["value"] == "00:00:02" {
			return
		}
	}
	t.Fatal("clock never switched to the updated last_online")
}

func TestLiveSearch(t *testing.T) {
	dir := &fakeDirectory{usernames: []string{"Hikaru", "MagnusCarlsen", "hikaru_fan", "Firouzja2003"}}
	_, srv := newTestServer(t, dir, WithSearchQuietPeriod(10*time.Millisecond))

	conn := dial(t, srv, "vw=375&vh=877")
	for _, term := range []string{"h", "hi", "hika"} {
		require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSearch, Term: term}))
	}

	msg := readType(t, conn, MessageTypeSearchResults)
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hika", data["term"])
	assert.Equal(t, []any{"Hikaru", "hikaru_fan"}, data["usernames"])
}

// readNext reads the next frame, whatever its type
func readNext(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func pageData(t *testing.T, msg map[string]any) map[string]any {
	t.Helper()
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	return data
}

func TestLiveSearchPaging(t *testing.T) {
	usernames := make([]string, 0, 25)
	for i := 1; i <= 25; i++ {
		usernames = append(usernames, fmt.Sprintf("gm%02d", i))
	}
	dir := &fakeDirectory{usernames: usernames}
	_, srv := newTestServer(t, dir, WithSearchQuietPeriod(10*time.Millisecond))

	// mobile 375x877 fits 10 cards
	conn := dial(t, srv, "vw=375&vh=877")
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSearch, Term: "gm"}))
	first := pageData(t, readType(t, conn, MessageTypeSearchResults))
	assert.EqualValues(t, 1, first["current_page"])
	assert.EqualValues(t, 3, first["total_pages"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePage, Direction: DirectionNext}))
	msg := readNext(t, conn)
	require.Equal(t, MessageTypePageChanged, msg["type"])
	second := pageData(t, msg)
	assert.EqualValues(t, 2, second["current_page"])
	assert.Equal(t, "gm11", second["usernames"].([]any)[0])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePage, Page: 3}))
	last := pageData(t, readType(t, conn, MessageTypePageChanged))
	assert.EqualValues(t, 3, last["current_page"])
	assert.Len(t, last["usernames"], 5)
	assert.Equal(t, false, last["has_next"])

	// Next on the last page does not move, so nothing is sent before the pong
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePage, Direction: DirectionNext}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readNext(t, conn)["type"])

	// desktop 1440x900 fits 24 cards; a new page size goes back to page 1
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeViewport, Width: 1440, Height: 900}))
	resized := pageData(t, readType(t, conn, MessageTypeSearchResults))
	assert.EqualValues(t, 1, resized["current_page"])
	assert.EqualValues(t, 24, resized["page_size"])
	assert.Equal(t, string(layout.Desktop), resized["breakpoint"])

	// a new term resets to page 1
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePage, Direction: DirectionNext}))
	assert.EqualValues(t, 2, pageData(t, readType(t, conn, MessageTypePageChanged))["current_page"])
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSearch, Term: "gm2"}))
	narrowed := pageData(t, readType(t, conn, MessageTypeSearchResults))
	assert.EqualValues(t, 1, narrowed["current_page"])
	assert.EqualValues(t, 8, narrowed["total"])
}

func TestPagingWithoutSearch(t *testing.T) {
	_, srv := newTestServer(t, &fakeDirectory{})
	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePage, Direction: DirectionNext}))
	readType(t, conn, MessageTypeError)
}

func TestPing(t *testing.T) {
	_, srv := newTestServer(t, &fakeDirectory{})
	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	readType(t, conn, MessageTypePong)
}

func TestServeWsRejects(t *testing.T) {
	dir := &fakeDirectory{players: map[string]*domain.PlayerProfile{}}
	_, srv := newTestServer(t, dir)

	tests := []struct {
		query string
		want  int
	}{
		{"username=abc!", http.StatusBadRequest},
		{"username=ghost", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestConnectionCounts(t *testing.T) {
	dir := &fakeDirectory{players: map[string]*domain.PlayerProfile{"hikaru": {Username: "Hikaru"}}}
	hub, srv := newTestServer(t, dir)

	a := dial(t, srv, "username=hikaru")
	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.GetWatcherCount("hikaru"))

	_ = a.Close()
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.GetWatcherCount("hikaru"))
}

func TestViewportFromQuery(t *testing.T) {
	assert.Equal(t, layout.Viewport{Width: 375, Height: 877}, viewportFromQuery("375", "877"))
	assert.Equal(t, layout.Viewport{}, viewportFromQuery("", "x"))
}
