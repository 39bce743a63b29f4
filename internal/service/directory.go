package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grandmasters-wiki/internal/cache"
	"github.com/grandmasters-wiki/internal/config"
	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/layout"
	"github.com/grandmasters-wiki/internal/pagination"
	"github.com/grandmasters-wiki/internal/search"
)

// InvalidateAll is the invalidation target that drops every cached entry
const InvalidateAll = "*"

const directoryKey = "gm"

// Upstream is the source of truth for the directory and player profiles
type Upstream interface {
	ListGrandmasters(ctx context.Context) (*domain.DirectoryResponse, error)
	GetPlayer(ctx context.Context, username string) (*domain.PlayerProfile, error)
}

// Snapshot stores the last successful fetches durably
type Snapshot interface {
	ReplaceDirectory(ctx context.Context, usernames []string) (added, removed []string, err error)
	ListDirectory(ctx context.Context) ([]string, time.Time, error)
	UpsertProfile(ctx context.Context, profile *domain.PlayerProfile, fetchedAt time.Time) error
	GetProfile(ctx context.Context, username string) (*domain.PlayerProfile, time.Time, error)
	DeleteProfiles(ctx context.Context, usernames []string) error
}

// Notifier is told when a refetched profile reports a new last_online
type Notifier interface {
	ProfileUpdated(profile *domain.PlayerProfile)
}

// DirectoryService serves the grandmaster directory and player profiles
// through the query cache, falling back to snapshots when the upstream fails.
type DirectoryService struct {
	upstream  Upstream
	snapshot  Snapshot
	layout    layout.Table
	directory *cache.Cache[[]string]
	players   *cache.Cache[*domain.PlayerProfile]
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
}

type options struct {
	snapshot       Snapshot
	directoryStore cache.Store[[]string]
	profileStore   cache.Store[*domain.PlayerProfile]
	now            func() time.Time
}

// Option configures a DirectoryService
type Option func(*options)

// WithSnapshot enables durable snapshots and the fallback to them
func WithSnapshot(s Snapshot) Option {
	return func(o *options) { o.snapshot = s }
}

// WithDirectoryStore shares the directory cache through s
func WithDirectoryStore(s cache.Store[[]string]) Option {
	return func(o *options) { o.directoryStore = s }
}

// WithProfileStore shares the profile cache through s
func WithProfileStore(s cache.Store[*domain.PlayerProfile]) Option {
	return func(o *options) { o.profileStore = s }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(
	upstream Upstream,
	cfg *config.CacheConfig,
	table layout.Table,
	logger *slog.Logger,
	opts ...Option,
) *DirectoryService {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	dirOpts := []cache.Option[[]string]{
		cache.WithClock[[]string](o.now),
		cache.WithLogger[[]string](logger),
	}
	if o.directoryStore != nil {
		dirOpts = append(dirOpts, cache.WithStore(o.directoryStore))
	}
	playerOpts := []cache.Option[*domain.PlayerProfile]{
		cache.WithClock[*domain.PlayerProfile](o.now),
		cache.WithLogger[*domain.PlayerProfile](logger),
	}
	if o.profileStore != nil {
		playerOpts = append(playerOpts, cache.WithStore(o.profileStore))
	}

	return &DirectoryService{
		upstream:  upstream,
		snapshot:  o.snapshot,
		layout:    table,
		directory: cache.New[[]string]("directory", cfg.DirectoryStaleTime, dirOpts...),
		players:   cache.New[*domain.PlayerProfile]("player", cfg.StaleTime, playerOpts...),
		now:       o.now,
		logger:    logger,
	}
}

// SetNotifier sets the receiver of profile updates
func (s *DirectoryService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Layout returns the page-size table used for directory pages
func (s *DirectoryService) Layout() layout.Table {
	return s.layout
}

// Grandmasters returns every grandmaster username in upstream order
func (s *DirectoryService) Grandmasters(ctx context.Context) ([]string, error) {
	usernames, err := s.directory.Get(ctx, directoryKey, func(ctx context.Context) ([]string, error) {
		usernames, _, err := s.fetchDirectory(ctx)
		return usernames, err
	})
	if err == nil {
		return usernames, nil
	}

	if fallback, ok := s.directoryFallback(ctx, err); ok {
		return fallback, nil
	}
	return nil, err
}

// RefreshDirectory refetches the directory regardless of staleness and
// reports which usernames joined or left it
func (s *DirectoryService) RefreshDirectory(ctx context.Context) (*domain.DirectoryChange, error) {
	var change domain.DirectoryChange
	usernames, err := s.directory.Refresh(ctx, directoryKey, func(ctx context.Context) ([]string, error) {
		usernames, c, err := s.fetchDirectory(ctx)
		change = c
		return usernames, err
	})
	if err != nil {
		return nil, err
	}
	change.Total = len(usernames)
	return &change, nil
}

// WarmDirectory seeds the directory cache from the snapshot. It returns the
// number of usernames loaded.
func (s *DirectoryService) WarmDirectory(ctx context.Context) (int, error) {
	if s.snapshot == nil {
		return 0, nil
	}
	if _, _, ok := s.directory.Peek(directoryKey); ok {
		return 0, nil
	}

	usernames, syncedAt, err := s.snapshot.ListDirectory(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("loading directory snapshot: %w", err)
	}

	s.directory.Set(ctx, directoryKey, usernames, syncedAt)
	return len(usernames), nil
}

func (s *DirectoryService) fetchDirectory(ctx context.Context) ([]string, domain.DirectoryChange, error) {
	start := s.now()
	res, err := s.upstream.ListGrandmasters(ctx)
	if err != nil {
		return nil, domain.DirectoryChange{}, err
	}
	s.logger.Debug("fetched directory", "count", len(res.Players), "duration", s.now().Sub(start))

	var change domain.DirectoryChange
	if s.snapshot != nil {
		added, removed, err := s.snapshot.ReplaceDirectory(ctx, res.Players)
		if err == nil {
			change.Added, change.Removed = added, removed
			return res.Players, change, nil
		}
		s.logger.Warn("failed to store directory snapshot", "error", err)
	}

	previous, _, _ := s.directory.Peek(directoryKey)
	change.Added, change.Removed = domain.DiffDirectory(previous, res.Players)
	return res.Players, change, nil
}

func (s *DirectoryService) directoryFallback(ctx context.Context, cause error) ([]string, bool) {
	if s.snapshot == nil || domain.IsNotFoundError(cause) {
		return nil, false
	}

	usernames, syncedAt, err := s.snapshot.ListDirectory(ctx)
	if err != nil {
		return nil, false
	}
	s.logger.Warn("serving directory snapshot after upstream failure",
		"error", cause,
		"synced_at", syncedAt,
		"count", len(usernames),
	)
	return usernames, true
}

// Player returns the profile of username. Invalid usernames fail with
// domain.ErrInvalidUsername without any upstream request.
func (s *DirectoryService) Player(ctx context.Context, username string) (*domain.PlayerProfile, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}

	key := domain.CacheKey(username)
	profile, err := s.players.Get(ctx, key, func(ctx context.Context) (*domain.PlayerProfile, error) {
		return s.fetchPlayer(ctx, key, username)
	})
	if err == nil {
		return profile, nil
	}

	if fallback, ok := s.playerFallback(ctx, username, err); ok {
		return fallback, nil
	}
	return nil, err
}

// CachedPlayer returns the cached profile of username, fresh or not
func (s *DirectoryService) CachedPlayer(username string) (*domain.PlayerProfile, bool) {
	profile, _, ok := s.players.Peek(domain.CacheKey(username))
	return profile, ok
}

// PrefetchPlayers loads the profiles of usernames into the cache. Failures
// are logged. It returns the number of profiles fetched.
func (s *DirectoryService) PrefetchPlayers(ctx context.Context, usernames []string) int {
	fetched := 0
	for _, username := range usernames {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Player(ctx, username); err != nil {
			s.logger.Warn("failed to prefetch player", "username", username, "error", err)
			continue
		}
		fetched++
	}
	return fetched
}

func (s *DirectoryService) fetchPlayer(ctx context.Context, key, username string) (*domain.PlayerProfile, error) {
	previous, _, hadPrevious := s.players.Peek(key)

	profile, err := s.upstream.GetPlayer(ctx, username)
	if err != nil {
		return nil, err
	}

	if s.snapshot != nil {
		if err := s.snapshot.UpsertProfile(ctx, profile, s.now()); err != nil {
			s.logger.Warn("failed to store profile snapshot", "username", username, "error", err)
		}
	}

	if hadPrevious && previous.LastOnline != profile.LastOnline && s.notifier != nil {
		s.notifier.ProfileUpdated(profile)
	}
	return profile, nil
}

func (s *DirectoryService) playerFallback(ctx context.Context, username string, cause error) (*domain.PlayerProfile, bool) {
	if s.snapshot == nil || domain.IsNotFoundError(cause) || errors.Is(cause, domain.ErrInvalidUsername) {
		return nil, false
	}

	profile, fetchedAt, err := s.snapshot.GetProfile(ctx, username)
	if err != nil {
		return nil, false
	}
	s.logger.Warn("serving profile snapshot after upstream failure",
		"username", username,
		"error", cause,
		"fetched_at", fetchedAt,
	)
	return profile, true
}

// Invalidate drops the cached profile of username. InvalidateAll drops the
// directory and every profile.
func (s *DirectoryService) Invalidate(ctx context.Context, username string) error {
	if username == InvalidateAll {
		if err := s.directory.InvalidateAll(ctx); err != nil {
			return err
		}
		return s.players.InvalidateAll(ctx)
	}
	return s.players.Invalidate(ctx, domain.CacheKey(username))
}

// ForgetPlayers drops the cached and stored profiles of players that left
// the directory
func (s *DirectoryService) ForgetPlayers(ctx context.Context, usernames []string) error {
	for _, username := range usernames {
		if err := s.Invalidate(ctx, username); err != nil {
			return fmt.Errorf("invalidating %s: %w", username, err)
		}
	}
	if s.snapshot != nil {
		if err := s.snapshot.DeleteProfiles(ctx, usernames); err != nil {
			return fmt.Errorf("deleting profile snapshots: %w", err)
		}
	}
	return nil
}

// DirectoryQuery selects one page of the filtered directory
type DirectoryQuery struct {
	Term     string
	Page     int
	Viewport layout.Viewport
}

// DirectoryPage is one page of the filtered directory
type DirectoryPage struct {
	Term        string            `json:"term"`
	Total       int               `json:"total"`
	PageSize    int               `json:"page_size"`
	CurrentPage int               `json:"current_page"`
	TotalPages  int               `json:"total_pages"`
	Usernames   []string          `json:"usernames"`
	Links       []pagination.Link `json:"links"`
	HasPrev     bool              `json:"has_prev"`
	HasNext     bool              `json:"has_next"`
	Breakpoint  layout.Breakpoint `json:"breakpoint"`
}

// Searching reports whether the page was filtered by a non-blank term
func (p *DirectoryPage) Searching() bool {
	return search.Normalize(p.Term) != ""
}

// DirectoryPage filters the directory by q.Term, sizes pages for
// q.Viewport and returns page q.Page, clamped into range
func (s *DirectoryService) DirectoryPage(ctx context.Context, q DirectoryQuery) (*DirectoryPage, error) {
	usernames, err := s.Grandmasters(ctx)
	if err != nil {
		return nil, err
	}
	return BuildPage(usernames, q, s.layout), nil
}

// BuildPage pages usernames for q without any fetching
func BuildPage(usernames []string, q DirectoryQuery, table layout.Table) *DirectoryPage {
	filtered := search.Filter(usernames, q.Term)
	p := pagination.New(filtered, table.PageSize(q.Viewport))
	if q.Page > 1 {
		p.GoTo(q.Page)
	}
	return PageOf(p, q.Term, q.Viewport.Breakpoint())
}

// PageOf describes the current page of p
func PageOf(p *pagination.Paginator[string], term string, bp layout.Breakpoint) *DirectoryPage {
	return &DirectoryPage{
		Term:        term,
		Total:       p.Len(),
		PageSize:    p.PageSize(),
		CurrentPage: p.CurrentPage(),
		TotalPages:  p.TotalPages(),
		Usernames:   p.Slice(),
		Links:       pagination.Links(p.CurrentPage(), p.TotalPages()),
		HasPrev:     p.HasPrevious(),
		HasNext:     p.HasNext(),
		Breakpoint:  bp,
	}
}
