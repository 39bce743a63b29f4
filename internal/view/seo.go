package view

import (
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/grandmasters-wiki/internal/domain"
)

const (
	defaultTitle       = "Chess Grandmasters Wiki | Explore Top Chess Players"
	defaultDescription = "Discover and explore profiles of Chess.com Grandmasters. View stats, ratings, and information about the world's top chess players."
	defaultKeywords    = "chess, grandmaster, chess.com, chess players, chess profiles, FIDE rating, chess wiki"

	collectionDescription = "A comprehensive directory of Chess.com Grandmasters. Explore profiles, stats, and information about the world's top chess players."

	// maxListItems caps the ListItems embedded in the directory JSON-LD
	maxListItems = 50
)

// Meta is the head metadata of a rendered page
type Meta struct {
	Title          string
	Description    string
	Keywords       string
	Image          string
	URL            string
	Type           string
	SiteName       string
	StructuredData template.JS
}

// Site builds page metadata for one public site
type Site struct {
	url  string
	name string
}

// NewSite returns a Site for baseURL, without a trailing slash
func NewSite(baseURL, name string) Site {
	return Site{url: strings.TrimRight(baseURL, "/"), name: name}
}

// URL returns the absolute URL of path
func (s Site) URL(path string) string {
	if path == "" || path == "/" {
		return s.url
	}
	return s.url + path
}

// PlayerPath returns the profile path of username
func PlayerPath(username string) string {
	return "/player/" + url.PathEscape(username)
}

// meta fills the defaults every page shares
func (s Site) meta(title, description, keywords, image, path, kind string) Meta {
	m := Meta{
		Title:       defaultTitle,
		Description: description,
		Keywords:    keywords,
		Image:       image,
		URL:         s.URL(path),
		Type:        kind,
		SiteName:    s.name,
	}
	if title != "" {
		m.Title = title + " | " + s.name
	}
	if m.Description == "" {
		m.Description = defaultDescription
	}
	if m.Keywords == "" {
		m.Keywords = defaultKeywords
	}
	if m.Image == "" {
		m.Image = s.URL("/og-image.png")
	}
	if m.Type == "" {
		m.Type = "website"
	}
	return m
}

// withData embeds data as JSON-LD. go-json escapes <, > and & so the
// payload cannot close its script element.
func withData(m Meta, data any) (Meta, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Meta{}, fmt.Errorf("marshaling structured data: %w", err)
	}
	m.StructuredData = template.JS(b)
	return m, nil
}

// DirectoryMeta describes the directory page listing usernames
func (s Site) DirectoryMeta(usernames []string) (Meta, error) {
	m := s.meta(
		"Chess Grandmasters Directory",
		fmt.Sprintf("Browse %d Chess.com Grandmasters. Search and explore profiles of the world's top chess players with ratings, stats, and more.", len(usernames)),
		"chess grandmasters list, chess.com grandmasters, top chess players, chess directory, GM list",
		"",
		"/",
		"website",
	)
	return withData(m, s.CollectionData(usernames))
}

// CollectionData is the schema.org CollectionPage for the directory
func (s Site) CollectionData(usernames []string) map[string]any {
	n := min(len(usernames), maxListItems)
	items := make([]map[string]any, n)
	for i, username := range usernames[:n] {
		items[i] = map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"item": map[string]any{
				"@type": "Person",
				"name":  username,
				"url":   s.URL(PlayerPath(username)),
			},
		}
	}

	return map[string]any{
		"@context":    "https://schema.org",
		"@type":       "CollectionPage",
		"name":        s.name,
		"description": collectionDescription,
		"url":         s.URL("/"),
		"mainEntity": map[string]any{
			"@type":           "ItemList",
			"numberOfItems":   len(usernames),
			"itemListElement": items,
		},
	}
}

// ProfileMeta describes the profile page of p
func (s Site) ProfileMeta(p *domain.PlayerProfile) (Meta, error) {
	name := p.DisplayName()

	var desc strings.Builder
	fmt.Fprintf(&desc, "%s (%s) is a Chess.com Grandmaster", name, p.Username)
	if p.Country != "" {
		desc.WriteString(" from " + p.Country)
	}
	if p.HasFIDE() {
		fmt.Fprintf(&desc, ". FIDE Rating: %d. ", p.FIDE)
	}
	if p.Followers > 0 {
		fmt.Fprintf(&desc, "Followers: %s. ", FormatCount(p.Followers))
	}
	desc.WriteString("View profile, stats, and more information.")

	keywords := []string{p.Username, "chess grandmaster"}
	if p.Name != "" {
		keywords = append(keywords, p.Name)
	}
	if p.Country != "" {
		keywords = append(keywords, p.Country)
	}
	keywords = append(keywords, "chess.com profile", "FIDE rating")
	if p.HasFIDE() {
		keywords = append(keywords, strconv.Itoa(p.FIDE))
	}

	m := s.meta(
		name+" - Chess Grandmaster Profile",
		desc.String(),
		strings.Join(keywords, ", "),
		p.Avatar,
		PlayerPath(p.Username),
		"profile",
	)
	return withData(m, PersonData(p))
}

// PersonData is the schema.org Person for a profile
func PersonData(p *domain.PlayerProfile) map[string]any {
	jobTitle := p.Title
	if jobTitle == "" {
		jobTitle = "Chess Grandmaster"
	}

	data := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "Person",
		"name":          p.DisplayName(),
		"alternateName": p.Username,
		"url":           p.URL,
		"jobTitle":      jobTitle,
	}

	if p.PlayerID != nil {
		data["identifier"] = strconv.FormatInt(*p.PlayerID, 10)
	}

	if p.Country != "" {
		address := map[string]any{
			"@type":          "PostalAddress",
			"addressCountry": p.Country,
		}
		if p.Location != "" {
			address["addressLocality"] = p.Location
		}
		data["address"] = address
	}

	if p.HasFIDE() {
		data["knowsAbout"] = "Chess"
		data["additionalProperty"] = map[string]any{
			"@type": "PropertyValue",
			"name":  "FIDE Rating",
			"value": strconv.Itoa(p.FIDE),
		}
	}

	if p.Avatar != "" {
		data["image"] = p.Avatar
	}

	sameAs := make([]string, 0, 2+len(p.StreamingPlatforms))
	for _, link := range []string{p.URL, p.TwitchURL} {
		if link != "" {
			sameAs = append(sameAs, link)
		}
	}
	for _, platform := range p.StreamingPlatforms {
		if platform.ChannelURL != "" {
			sameAs = append(sameAs, platform.ChannelURL)
		}
	}
	data["sameAs"] = sameAs

	return data
}

// NotFoundMeta describes the 404 page
func (s Site) NotFoundMeta() Meta {
	return s.meta(
		"404 - Page Not Found",
		"The page you're looking for doesn't exist. Return to the Chess Grandmasters directory.",
		"404, page not found, error",
		"",
		"/404",
		"website",
	)
}

// ErrorMeta describes an error page titled title
func (s Site) ErrorMeta(title, path string) Meta {
	return s.meta(title, "", "", "", path, "website")
}
