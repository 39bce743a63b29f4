// Package sitemap builds the XML sitemap of the directory.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

const (
	namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

	PriorityHome       = "1.0"
	PriorityPlayer     = "0.8"
	ChangeFreqHome     = "weekly"
	ChangeFreqPlayer   = "monthly"
	lastModifiedLayout = "2006-01-02"
)

// URL is one sitemap entry
type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// URLSet is the sitemap document
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// Build returns the sitemap of siteURL: the home page followed by one
// profile page per username, all last modified on now's date
func Build(siteURL string, usernames []string, now time.Time) URLSet {
	base := strings.TrimRight(siteURL, "/")
	lastMod := now.UTC().Format(lastModifiedLayout)

	set := URLSet{
		Xmlns: namespace,
		URLs:  make([]URL, 0, len(usernames)+1),
	}
	set.URLs = append(set.URLs, URL{
		Loc:        base + "/",
		LastMod:    lastMod,
		ChangeFreq: ChangeFreqHome,
		Priority:   PriorityHome,
	})
	for _, username := range usernames {
		set.URLs = append(set.URLs, URL{
			Loc:        base + "/player/" + url.PathEscape(username),
			LastMod:    lastMod,
			ChangeFreq: ChangeFreqPlayer,
			Priority:   PriorityPlayer,
		})
	}
	return set
}

// Write encodes set as an indented XML document
func Write(w io.Writer, set URLSet) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("encoding sitemap: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding sitemap: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
