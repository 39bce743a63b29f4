package domain

// DirectoryChange describes how the directory moved between two syncs
type DirectoryChange struct {
	Total   int      `json:"total"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// DiffDirectory returns the members of next missing from prev, and of prev
// missing from next, each in input order
func DiffDirectory(prev, next []string) (added, removed []string) {
	inPrev := make(map[string]struct{}, len(prev))
	for _, u := range prev {
		inPrev[u] = struct{}{}
	}
	inNext := make(map[string]struct{}, len(next))
	for _, u := range next {
		inNext[u] = struct{}{}
		if _, ok := inPrev[u]; !ok {
			added = append(added, u)
		}
	}
	for _, u := range prev {
		if _, ok := inNext[u]; !ok {
			removed = append(removed, u)
		}
	}
	return added, removed
}
