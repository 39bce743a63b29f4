package domain

import "strings"

// DirectoryResponse is the payload of the titled-players endpoint
type DirectoryResponse struct {
	Players []string `json:"players"`
}

// StreamingPlatform is a channel a player streams on
type StreamingPlatform struct {
	Type       string `json:"type"`
	ChannelURL string `json:"channel_url"`
}

// PlayerProfile is a player record as served by the profile endpoint.
// Joined and LastOnline are unix seconds; LastOnline is 0 when the player
// was never seen online.
type PlayerProfile struct {
	ID                 string              `json:"@id"`
	URL                string              `json:"url"`
	Username           string              `json:"username"`
	PlayerID           *int64              `json:"player_id,omitempty"`
	Title              string              `json:"title,omitempty"`
	Status             string              `json:"status"`
	Country            string              `json:"country"`
	Joined             int64               `json:"joined"`
	LastOnline         int64               `json:"last_online"`
	Followers          int64               `json:"followers"`
	IsStreamer         bool                `json:"is_streamer"`
	Verified           bool                `json:"verified"`
	League             string              `json:"league,omitempty"`
	StreamingPlatforms []StreamingPlatform `json:"streaming_platforms"`
	Name               string              `json:"name,omitempty"`
	Avatar             string              `json:"avatar,omitempty"`
	Location           string              `json:"location,omitempty"`
	TwitchURL          string              `json:"twitch_url,omitempty"`
	FIDE               int                 `json:"fide,omitempty"`
}

// DisplayName returns the real name when known, the username otherwise
func (p *PlayerProfile) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Username
}

// HasFIDE reports whether the profile carries a FIDE rating
func (p *PlayerProfile) HasFIDE() bool {
	return p.FIDE > 0
}

// Initial is the upper-cased first letter shown when there is no avatar
func Initial(username string) string {
	for _, r := range username {
		return strings.ToUpper(string(r))
	}
	return ""
}
