package kafka

import "strings"

// InvalidationEvent asks every server to drop its cached copy of a player.
// Username "*" drops everything.
type InvalidationEvent struct {
	Username  string `json:"username"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

const wildcard = "*"

// dedupe returns the distinct usernames of events in first-seen order,
// case-insensitively. A wildcard anywhere collapses the batch to just it.
func dedupe(events []InvalidationEvent) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e.Username == wildcard {
			return []string{wildcard}
		}
		key := strings.ToLower(e.Username)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e.Username)
	}
	return out
}
