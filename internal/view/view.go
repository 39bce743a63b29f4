// Package view renders the HTML pages and fragments of the site.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/search"
	"github.com/grandmasters-wiki/internal/service"
)

//go:embed templates
var templateFS embed.FS

// Page and fragment template names
const (
	PageDirectory = "directory"
	PageProfile   = "profile"
	PageMessage   = "message"
	FragmentCard  = "card"
)

const backToList = "← Back to Grandmasters List"

var funcs = template.FuncMap{
	"count":      FormatCount,
	"date":       FormatDate,
	"status":     FormatStatus,
	"platform":   FormatPlatform,
	"plural":     Plural,
	"initial":    domain.Initial,
	"playerPath": PlayerPath,
	"add":        func(a, b int) int { return a + b },
	"sub":        func(a, b int) int { return a - b },
	"stat":       func(label string, value any) statItem { return statItem{Label: label, Value: value} },
}

type statItem struct {
	Label string
	Value any
}

// DirectoryData is the model of the directory page
type DirectoryData struct {
	Meta Meta
	Page *service.DirectoryPage
	// vh and vw the page was sized for, 0 when unknown
	ViewportHeight int
	ViewportWidth  int
}

// PageURL links page of the same search, sized for the same viewport
func (d DirectoryData) PageURL(page int) string {
	q := url.Values{}
	if search.Normalize(d.Page.Term) != "" {
		q.Set("q", d.Page.Term)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if d.ViewportHeight > 0 {
		q.Set("vh", strconv.Itoa(d.ViewportHeight))
	}
	if d.ViewportWidth > 0 {
		q.Set("vw", strconv.Itoa(d.ViewportWidth))
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

// ProfileData is the model of the profile page
type ProfileData struct {
	Meta       Meta
	Profile    *domain.PlayerProfile
	ClockLabel string
	ClockValue string
}

// MessageData is the model of every full-page message: errors, the invalid
// username notice and the 404 page
type MessageData struct {
	Meta     Meta
	Status   int
	Heading  string
	Message  string
	LinkText string
	// Large renders the heading as the page title instead of a panel
	Large bool
}

// CardData is the model of a directory card fragment
type CardData struct {
	Username string
	Profile  *domain.PlayerProfile
}

// Renderer executes the embedded templates
type Renderer struct {
	site      Site
	templates map[string]*template.Template
	now       func() time.Time
}

// NewRenderer parses the embedded templates
func NewRenderer(site Site) (*Renderer, error) {
	r := &Renderer{
		site:      site,
		templates: make(map[string]*template.Template),
		now:       time.Now,
	}

	for _, page := range []string{PageDirectory, PageProfile, PageMessage} {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", page, err)
		}
		r.templates[page] = t
	}

	card, err := template.New(FragmentCard).Funcs(funcs).ParseFS(templateFS, "templates/card.html")
	if err != nil {
		return nil, fmt.Errorf("parsing card template: %w", err)
	}
	r.templates[FragmentCard] = card

	return r, nil
}

// SetClock replaces time.Now for the profile clock
func (r *Renderer) SetClock(now func() time.Time) {
	r.now = now
}

// Site returns the metadata builder
func (r *Renderer) Site() Site {
	return r.site
}

// render executes name fully before writing so a failing template never
// leaves a truncated page behind
func (r *Renderer) render(w io.Writer, name, entry string, data any) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, entry, data); err != nil {
		return fmt.Errorf("executing %s template: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Directory renders the directory page for page
func (r *Renderer) Directory(w io.Writer, page *service.DirectoryPage, usernames []string, vh, vw int) error {
	meta, err := r.site.DirectoryMeta(usernames)
	if err != nil {
		return err
	}
	return r.render(w, PageDirectory, "layout", DirectoryData{
		Meta:           meta,
		Page:           page,
		ViewportHeight: vh,
		ViewportWidth:  vw,
	})
}

// Profile renders the profile page of p with its clock as of now
func (r *Renderer) Profile(w io.Writer, p *domain.PlayerProfile) error {
	meta, err := r.site.ProfileMeta(p)
	if err != nil {
		return err
	}
	label, value := domain.LastOnlineText(p.LastOnline, r.now())
	return r.render(w, PageProfile, "layout", ProfileData{
		Meta:       meta,
		Profile:    p,
		ClockLabel: label,
		ClockValue: value,
	})
}

// Card renders the directory card of username. A nil profile renders the
// failed card.
func (r *Renderer) Card(w io.Writer, username string, p *domain.PlayerProfile) error {
	return r.render(w, FragmentCard, "card", CardData{Username: username, Profile: p})
}

// Message renders a full-page message
func (r *Renderer) Message(w io.Writer, data MessageData) error {
	return r.render(w, PageMessage, "layout", data)
}

// NotFound is the 404 page
func (r *Renderer) NotFound() MessageData {
	return MessageData{
		Meta:     r.site.NotFoundMeta(),
		Status:   404,
		Heading:  "404",
		Message:  "Page not found",
		LinkText: "Go back to Grandmasters List",
		Large:    true,
	}
}

// InvalidUsername is the notice for a malformed profile route
func (r *Renderer) InvalidUsername(path string) MessageData {
	return MessageData{
		Meta:     r.site.ErrorMeta("Invalid username", path),
		Status:   400,
		Heading:  "Invalid username",
		Message:  "Username contains invalid characters. Usernames can only contain letters, numbers, hyphens, and underscores.",
		LinkText: backToList,
	}
}

// ProfileError is the panel shown when a profile cannot be loaded
func (r *Renderer) ProfileError(path string, status int, cause error) MessageData {
	return MessageData{
		Meta:     r.site.ErrorMeta("Error loading player profile", path),
		Status:   status,
		Heading:  "Error loading player profile",
		Message:  cause.Error(),
		LinkText: backToList,
	}
}

// DirectoryError is the panel shown when the directory cannot be loaded
func (r *Renderer) DirectoryError(status int, cause error) MessageData {
	return MessageData{
		Meta:    r.site.ErrorMeta("Error loading grandmasters", "/"),
		Status:  status,
		Heading: "Error loading grandmasters",
		Message: cause.Error(),
	}
}

// Fallback is the generic view shown after an unexpected failure
func (r *Renderer) Fallback(message string) MessageData {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return MessageData{
		Meta:     r.site.ErrorMeta("Something went wrong", "/"),
		Status:   500,
		Heading:  "Something went wrong",
		Message:  message,
		LinkText: "Go Home",
		Large:    true,
	}
}
