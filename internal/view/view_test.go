package view

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/layout"
	"github.com/grandmasters-wiki/internal/service"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(NewSite("https://example.com/", "Chess Grandmasters Wiki"))
	require.NoError(t, err)
	return r
}

func parse(t *testing.T, buf *bytes.Buffer) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(buf)
	require.NoError(t, err)
	return doc
}

func usernames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "gm" + strings.Repeat("x", i%3) + string(rune('a'+i))
	}
	return out
}

func structuredData(t *testing.T, doc *goquery.Document) map[string]any {
	t.Helper()
	raw := doc.Find(`script[type="application/ld+json"]`).Text()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "1/2/2006", FormatDate(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC).Unix()))
	assert.Equal(t, "Premium", FormatStatus("PREMIUM"))
	assert.Equal(t, "Unknown", FormatStatus(""))
	assert.Equal(t, "Twitch", FormatPlatform("twitch"))
	assert.Equal(t, "", FormatPlatform(""))
	assert.Equal(t, "s", Plural(0, "s"))
	assert.Equal(t, "", Plural(1, "s"))
}

func TestDirectorySinglePage(t *testing.T) {
	r := newRenderer(t)
	all := []string{"a", "b", "c"}
	page := service.BuildPage(all, service.DirectoryQuery{Viewport: layout.Viewport{Width: 375, Height: 877}}, layout.DefaultTable())

	var buf bytes.Buffer
	require.NoError(t, r.Directory(&buf, page, all, 877, 375))
	doc := parse(t, &buf)

	assert.Equal(t, "Chess Grandmasters", doc.Find("h1.title").Text())
	assert.Equal(t, "3 Grandmasters", strings.TrimSpace(doc.Find("#subtitle").Text()))
	assert.Equal(t, 3, doc.Find("#grid .card").Length())
	assert.Equal(t, 0, doc.Find("#pagination a, #pagination button").Length())
	assert.Equal(t, "Chess Grandmasters Directory | Chess Grandmasters Wiki", doc.Find("title").Text())

	canonical, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	assert.Equal(t, "https://example.com", canonical)
}

func TestDirectoryPagination(t *testing.T) {
	r := newRenderer(t)
	all := usernames(15)
	vp := layout.Viewport{Width: 375, Height: 877}

	var buf bytes.Buffer
	page := service.BuildPage(all, service.DirectoryQuery{Viewport: vp}, layout.DefaultTable())
	require.NoError(t, r.Directory(&buf, page, all, 877, 375))
	doc := parse(t, &buf)

	assert.Equal(t, 10, doc.Find("#grid .card").Length())
	assert.Contains(t, doc.Find("#subtitle").Text(), "(Page 1 of 2)")
	_, disabled := doc.Find(`[aria-label="Previous page"]`).Attr("disabled")
	assert.True(t, disabled)
	next, ok := doc.Find(`a[aria-label="Next page"]`).Attr("href")
	require.True(t, ok)
	assert.Equal(t, "/?page=2&vh=877&vw=375", next)

	buf.Reset()
	page = service.BuildPage(all, service.DirectoryQuery{Page: 2, Viewport: vp}, layout.DefaultTable())
	require.NoError(t, r.Directory(&buf, page, all, 877, 375))
	doc = parse(t, &buf)

	assert.Equal(t, 5, doc.Find("#grid .card").Length())
	assert.Contains(t, doc.Find("#subtitle").Text(), "(Page 2 of 2)")
	assert.Equal(t, 1, doc.Find(`a[aria-label="Previous page"]`).Length())
	_, disabled = doc.Find(`[aria-label="Next page"]`).Attr("disabled")
	assert.True(t, disabled)
	assert.Equal(t, "2", doc.Find(`.page-number[aria-current="page"]`).Text())
}

func TestDirectoryEllipsis(t *testing.T) {
	r := newRenderer(t)
	all := usernames(100)
	page := service.BuildPage(all, service.DirectoryQuery{Page: 5, Viewport: layout.Viewport{Width: 375, Height: 877}}, layout.DefaultTable())

	var buf bytes.Buffer
	require.NoError(t, r.Directory(&buf, page, all, 877, 375))
	doc := parse(t, &buf)

	var pages []string
	doc.Find(".page-number").Each(func(_ int, s *goquery.Selection) {
		pages = append(pages, s.Text())
	})
	assert.Equal(t, []string{"1", "4", "5", "6", "10"}, pages)
	assert.Equal(t, 2, doc.Find(".ellipsis").Length())
}

func TestDirectoryNoResults(t *testing.T) {
	r := newRenderer(t)
	all := []string{"hikaru"}
	page := service.BuildPage(all, service.DirectoryQuery{Term: "zzz"}, layout.DefaultTable())

	var buf bytes.Buffer
	require.NoError(t, r.Directory(&buf, page, all, 0, 0))
	doc := parse(t, &buf)

	assert.Equal(t, `No grandmasters found matching "zzz"`, doc.Find(".no-results p").Text())
	assert.Equal(t, "0 Grandmasters found", strings.TrimSpace(doc.Find("#subtitle").Text()))
}

func TestDirectoryStructuredData(t *testing.T) {
	r := newRenderer(t)
	all := usernames(60)
	page := service.BuildPage(all, service.DirectoryQuery{}, layout.DefaultTable())

	var buf bytes.Buffer
	require.NoError(t, r.Directory(&buf, page, all, 0, 0))
	data := structuredData(t, parse(t, &buf))

	assert.Equal(t, "CollectionPage", data["@type"])
	entity := data["mainEntity"].(map[string]any)
	assert.EqualValues(t, 60, entity["numberOfItems"])
	items := entity["itemListElement"].([]any)
	assert.Len(t, items, maxListItems)
	first := items[0].(map[string]any)["item"].(map[string]any)
	assert.Equal(t, "https://example.com/player/"+all[0], first["url"])
}

func TestProfile(t *testing.T) {
	r := newRenderer(t)
	now := time.Unix(1700000000, 0)
	r.SetClock(func() time.Time { return now })

	id := int64(15448422)
	p := &domain.PlayerProfile{
		URL:        "https://www.chess.com/member/hikaru",
		Username:   "hikaru",
		PlayerID:   &id,
		Title:      "GM",
		Status:     "premium",
		Country:    "https://api.chess.com/pub/country/US",
		Joined:     1389043258,
		LastOnline: now.Add(-time.Hour).Unix(),
		Followers:  1234567,
		IsStreamer: true,
		Verified:   false,
		Name:       "Hikaru Nakamura",
		TwitchURL:  "https://twitch.tv/gmhikaru",
		FIDE:       2802,
		StreamingPlatforms: []domain.StreamingPlatform{
			{Type: "twitch", ChannelURL: "https://twitch.tv/gmhikaru"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, r.Profile(&buf, p))
	doc := parse(t, &buf)

	assert.Equal(t, "Hikaru Nakamura", doc.Find("h1.name").Text())
	assert.Equal(t, "@hikaru", doc.Find(".handle").Text())
	assert.Equal(t, "H", doc.Find(".avatar-placeholder").Text())
	assert.Equal(t, "Time since last online:", doc.Find("#clock-label").Text())
	assert.Equal(t, "01:00:00", doc.Find("#clock-value").Text())

	stats := map[string]string{}
	doc.Find(".stat").Each(func(_ int, s *goquery.Selection) {
		stats[s.Find(".stat-label").Text()] = strings.TrimSpace(s.Find(".stat-value").Text())
	})
	assert.Equal(t, "15448422", stats["Player ID"])
	assert.Equal(t, "Premium", stats["Status"])
	assert.Equal(t, "1,234,567", stats["Followers"])
	assert.Equal(t, "2802", stats["FIDE Rating"])
	assert.Equal(t, "✗No", stats["Verified"])
	assert.Equal(t, "✓Yes", stats["Streamer"])
	assert.Equal(t, "1/6/2014", stats["Joined"])
	assert.Equal(t, "Twitch", stats["Streaming Platforms"])
	assert.NotContains(t, stats, "League")

	assert.Equal(t, "Hikaru Nakamura - Chess Grandmaster Profile | Chess Grandmasters Wiki", doc.Find("title").Text())
	ogType, _ := doc.Find(`meta[property="og:type"]`).Attr("content")
	assert.Equal(t, "profile", ogType)

	data := structuredData(t, doc)
	assert.Equal(t, "Person", data["@type"])
	assert.Equal(t, "15448422", data["identifier"])
	assert.Equal(t, "GM", data["jobTitle"])
	assert.Equal(t, []any{p.URL, p.TwitchURL, "https://twitch.tv/gmhikaru"}, data["sameAs"])
}

func TestProfileClockStates(t *testing.T) {
	r := newRenderer(t)
	now := time.Unix(1700000000, 0)
	r.SetClock(func() time.Time { return now })

	tests := []struct {
		lastOnline int64
		label      string
		value      string
	}{
		{0, "Last online:", "Never"},
		{now.Add(time.Hour).Unix(), "Last online:", "Just now"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		require.NoError(t, r.Profile(&buf, &domain.PlayerProfile{Username: "x", LastOnline: tt.lastOnline}))
		doc := parse(t, &buf)
		assert.Equal(t, tt.label, doc.Find("#clock-label").Text())
		assert.Equal(t, tt.value, doc.Find("#clock-value").Text())
	}
}

func TestProfileMeta(t *testing.T) {
	site := NewSite("https://example.com", "Chess Grandmasters Wiki")
	meta, err := site.ProfileMeta(&domain.PlayerProfile{
		Username:  "magnus",
		Country:   "NO",
		Followers: 1500,
		FIDE:      2830,
		Avatar:    "https://images/magnus.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "magnus (magnus) is a Chess.com Grandmaster from NO. FIDE Rating: 2830. Followers: 1,500. View profile, stats, and more information.", meta.Description)
	assert.Equal(t, "magnus, chess grandmaster, NO, chess.com profile, FIDE rating, 2830", meta.Keywords)
	assert.Equal(t, "https://images/magnus.png", meta.Image)
	assert.Equal(t, "https://example.com/player/magnus", meta.URL)
}

func TestPersonDataMinimal(t *testing.T) {
	data := PersonData(&domain.PlayerProfile{Username: "anon", URL: "https://chess.com/member/anon"})
	assert.Equal(t, "Chess Grandmaster", data["jobTitle"])
	assert.Equal(t, "anon", data["name"])
	assert.NotContains(t, data, "identifier")
	assert.NotContains(t, data, "address")
	assert.NotContains(t, data, "additionalProperty")
	assert.Equal(t, []string{"https://chess.com/member/anon"}, data["sameAs"])
}

func TestCard(t *testing.T) {
	r := newRenderer(t)
	id := int64(42)

	var buf bytes.Buffer
	require.NoError(t, r.Card(&buf, "hikaru", &domain.PlayerProfile{
		Username: "hikaru",
		Name:     "Hikaru Nakamura",
		PlayerID: &id,
		Verified: true,
		Avatar:   "https://images/hikaru.png",
	}))
	doc := parse(t, &buf)

	href, _ := doc.Find("a.card").Attr("href")
	assert.Equal(t, "/player/hikaru", href)
	assert.Equal(t, "Hikaru Nakamura", doc.Find(".username").Text())
	assert.Equal(t, 1, doc.Find(`.badge[title="Verified"]`).Length())
	assert.Equal(t, 0, doc.Find(`.badge[title="Streamer"]`).Length())
	assert.Equal(t, "ID: 42", doc.Find(".player-id").Text())
	alt, _ := doc.Find(".avatar img").Attr("alt")
	assert.Equal(t, "Hikaru Nakamura", alt)

	buf.Reset()
	require.NoError(t, r.Card(&buf, "ghost", nil))
	doc = parse(t, &buf)
	assert.Equal(t, 1, doc.Find(".card.failed").Length())
	assert.Equal(t, "G", doc.Find(".avatar").Text())
	assert.Equal(t, "Failed to load", doc.Find(".error").Text())
}

func TestMessages(t *testing.T) {
	r := newRenderer(t)

	tests := []struct {
		name    string
		data    MessageData
		heading string
		text    string
		link    string
	}{
		{"not found", r.NotFound(), "404", "Page not found", "Go back to Grandmasters List"},
		{"invalid username", r.InvalidUsername("/player/abc!"), "Invalid username",
			"Username contains invalid characters. Usernames can only contain letters, numbers, hyphens, and underscores.", backToList},
		{"profile error", r.ProfileError("/player/ghost", 404, errors.New(`Player "ghost" not found`)),
			"Error loading player profile", `Player "ghost" not found`, backToList},
		{"directory error", r.DirectoryError(502, errors.New("Failed to fetch grandmasters")),
			"Error loading grandmasters", "Failed to fetch grandmasters", ""},
		{"fallback", r.Fallback(""), "Something went wrong", "An unexpected error occurred", "Go Home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, r.Message(&buf, tt.data))
			doc := parse(t, &buf)

			assert.Equal(t, tt.heading, doc.Find(".message h1, .message h2").First().Text())
			assert.Equal(t, tt.text, doc.Find(".message p").First().Text())
			assert.Equal(t, tt.link, doc.Find(".message a").Text())
		})
	}
}

func TestStructuredDataEscaping(t *testing.T) {
	site := NewSite("https://example.com", "Wiki")
	meta, err := site.ProfileMeta(&domain.PlayerProfile{Username: "x", Name: "</script><b>"})
	require.NoError(t, err)
	assert.NotContains(t, string(meta.StructuredData), "</script>")
}
