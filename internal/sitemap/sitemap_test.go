package sitemap

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 5, 17, 23, 30, 0, 0, time.UTC)

func TestBuild(t *testing.T) {
	set := Build("https://example.com/", []string{"hikaru", "a b"}, day)

	require.Len(t, set.URLs, 3)
	assert.Equal(t, URL{
		Loc:        "https://example.com/",
		LastMod:    "2024-05-17",
		ChangeFreq: "weekly",
		Priority:   "1.0",
	}, set.URLs[0])
	assert.Equal(t, "https://example.com/player/hikaru", set.URLs[1].Loc)
	assert.Equal(t, "https://example.com/player/a%20b", set.URLs[2].Loc)
	assert.Equal(t, "monthly", set.URLs[2].ChangeFreq)
	assert.Equal(t, "0.8", set.URLs[2].Priority)
}

func TestBuildHomeOnly(t *testing.T) {
	set := Build("https://example.com", nil, day)
	require.Len(t, set.URLs, 1)
	assert.Equal(t, "https://example.com/", set.URLs[0].Loc)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Build("https://example.com", []string{"hikaru"}, day)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, out, "    <loc>https://example.com/player/hikaru</loc>")

	var decoded URLSet
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.URLs, 2)
}
