package main

import (
	"context"
	"math"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"
)

const (
	// Default number of top artists/tracks imported per sync.
	defaultTopLimit = 5

	// Recently-played paging: pages of 50, at most 30 requests per sync,
	// and a one-day buffer past the window end because the provider's
	// cursor is exclusive and play-timestamp based.
	historyPageSize     = 50
	maxHistoryRequests  = 30
	historyCursorBuffer = 24 * time.Hour

	// Advisory pacing between history requests; mirrors the provider's
	// rate-limit guidance, not a correctness requirement.
	historyRequestsPerSecond = 10
)

// itemResult tags the outcome of a single imported item. Failures are
// collected, not thrown past the loop.
type itemResult struct {
	name string
	err  error
}

func successCount(results []itemResult) int {
	count := 0
	for _, r := range results {
		if r.err == nil {
			count++
		}
	}
	return count
}

// TopItemsImporter pulls a user's top artists and tracks from the
// provider and merges them into the catalog and favorite sets. A page
// fetch failure aborts the whole call; a single malformed item is
// skipped and the rest continue.
type TopItemsImporter struct {
	provider  MusicProvider
	catalog   *CatalogMerger
	favorites *FavoriteLinker
	logger    *log.Logger
}

func NewTopItemsImporter(provider MusicProvider, catalog *CatalogMerger, favorites *FavoriteLinker, logger *log.Logger) *TopItemsImporter {
	return &TopItemsImporter{provider: provider, catalog: catalog, favorites: favorites, logger: logger}
}

// ImportTopArtists fetches up to limit top artists and links each to
// the user. Returns the number of successfully imported items.
func (i *TopItemsImporter) ImportTopArtists(ctx context.Context, userID int, accessToken string, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	artists, err := i.provider.GetTopArtists(ctx, accessToken, limit)
	if err != nil {
		return 0, err
	}

	results := make([]itemResult, 0, len(artists))
	for _, artist := range artists {
		results = append(results, itemResult{name: artist.Name, err: i.importArtist(ctx, userID, artist)})
	}
	for _, r := range results {
		if r.err != nil {
			i.logger.Warnf("skipped top artist %q for user %d: %s", r.name, userID, r.err)
		}
	}
	return successCount(results), nil
}

func (i *TopItemsImporter) importArtist(ctx context.Context, userID int, artist TopArtist) error {
	artistID, err := i.catalog.ResolveArtist(ctx, artist.ExternalID, artist.Name)
	if err != nil {
		return err
	}
	return i.favorites.LinkArtist(ctx, userID, artistID)
}

// ImportTopTracks fetches up to limit top tracks, resolving each
// track's primary artist and the track itself before linking the song
// to the user. Returns the number of successfully imported items.
func (i *TopItemsImporter) ImportTopTracks(ctx context.Context, userID int, accessToken string, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	tracks, err := i.provider.GetTopTracks(ctx, accessToken, limit)
	if err != nil {
		return 0, err
	}

	results := make([]itemResult, 0, len(tracks))
	for _, track := range tracks {
		results = append(results, itemResult{name: track.Name, err: i.importTrack(ctx, userID, track)})
	}
	for _, r := range results {
		if r.err != nil {
			i.logger.Warnf("skipped top track %q for user %d: %s", r.name, userID, r.err)
		}
	}
	return successCount(results), nil
}

func (i *TopItemsImporter) importTrack(ctx context.Context, userID int, track TopTrack) error {
	artistID, err := i.catalog.ResolveArtist(ctx, track.PrimaryArtist.ExternalID, track.PrimaryArtist.Name)
	if err != nil {
		return err
	}
	songID, err := i.catalog.ResolveSong(ctx, track.ExternalID, track.Name, artistID)
	if err != nil {
		return err
	}
	return i.favorites.LinkSong(ctx, userID, songID)
}

// minutesStore is the slice of storage the aggregator needs.
type minutesStore interface {
	UpdateListeningMinutes(ctx context.Context, userID, minutes int) error
}

// ListeningTimeAggregator pages a user's play history backward in time,
// sums the durations of plays inside a target window, and overwrites
// the user's listening_minutes with the rounded total. Listening time
// is best-effort: any page failure ends the loop and the partial total
// stands, so a provider outage never blocks login.
type ListeningTimeAggregator struct {
	provider MusicProvider
	store    minutesStore
	limiter  *rate.Limiter
	logger   *log.Logger
}

func NewListeningTimeAggregator(provider MusicProvider, store minutesStore, logger *log.Logger) *ListeningTimeAggregator {
	return &ListeningTimeAggregator{
		provider: provider,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(historyRequestsPerSecond), 1),
		logger:   logger,
	}
}

// AggregateWindow computes and persists the user's listening minutes
// for [windowStart, windowEnd]. Fractional minutes accumulate; only the
// final total is rounded.
func (a *ListeningTimeAggregator) AggregateWindow(ctx context.Context, userID int, accessToken string, windowStart, windowEnd time.Time) int {
	cursor := windowEnd.Add(historyCursorBuffer)
	totalMinutes := 0.0

	for requests := 0; requests < maxHistoryRequests; requests++ {
		if err := a.limiter.Wait(ctx); err != nil {
			a.logger.Warnf("listening aggregation canceled for user %d after %d requests: %s", userID, requests, err)
			break
		}

		items, err := a.provider.GetRecentlyPlayed(ctx, accessToken, cursor, historyPageSize)
		if err != nil {
			a.logger.Warnf("listening history page %d failed for user %d, keeping partial total: %s", requests+1, userID, err)
			break
		}

		for _, item := range items {
			if item.PlayedAt.IsZero() || item.DurationMS <= 0 {
				continue
			}
			if !item.PlayedAt.Before(windowStart) && !item.PlayedAt.After(windowEnd) {
				totalMinutes += float64(item.DurationMS) / 60000.0
			}
		}

		if len(items) < historyPageSize {
			break
		}
		oldest := items[len(items)-1]
		if oldest.PlayedAt.IsZero() {
			// Cannot paginate past an item with no timestamp.
			break
		}
		cursor = oldest.PlayedAt
	}

	minutes := int(math.Round(totalMinutes))
	if err := a.store.UpdateListeningMinutes(ctx, userID, minutes); err != nil {
		a.logger.Errorf("failed to persist %d listening minutes for user %d: %s", minutes, userID, err)
	}
	return minutes
}

// IngestionOrchestrator runs the full sync for a freshly authenticated
// user: top artists, top tracks, then the listening window. Each step
// is fault-isolated; a failed step is logged, skipped for this sync,
// and attempted fresh on the next login.
type IngestionOrchestrator struct {
	importer   *TopItemsImporter
	aggregator *ListeningTimeAggregator
	logger     *log.Logger
	now        func() time.Time
}

func NewIngestionOrchestrator(importer *TopItemsImporter, aggregator *ListeningTimeAggregator, logger *log.Logger) *IngestionOrchestrator {
	return &IngestionOrchestrator{
		importer:   importer,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}
}

// listeningWindow is the month of November of the given year, in UTC.
func listeningWindow(year int) (time.Time, time.Time) {
	start := time.Date(year, time.November, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 1, 0, 0, 0, 0, time.UTC).Add(-time.Millisecond)
	return start, end
}

// OnAuthenticated syncs the user's taste snapshot. Never fails: a
// partial sync must not abort the login that triggered it.
func (o *IngestionOrchestrator) OnAuthenticated(ctx context.Context, user *UserRow, accessToken string) {
	if count, err := o.importer.ImportTopArtists(ctx, user.ID, accessToken, defaultTopLimit); err != nil {
		o.logger.Errorf("top artists import failed for user %d: %s", user.ID, err)
	} else {
		o.logger.Infof("imported %d top artists for user %d", count, user.ID)
	}

	if count, err := o.importer.ImportTopTracks(ctx, user.ID, accessToken, defaultTopLimit); err != nil {
		o.logger.Errorf("top tracks import failed for user %d: %s", user.ID, err)
	} else {
		o.logger.Infof("imported %d top tracks for user %d", count, user.ID)
	}

	windowStart, windowEnd := listeningWindow(o.now().Year())
	minutes := o.aggregator.AggregateWindow(ctx, user.ID, accessToken, windowStart, windowEnd)
	o.logger.Infof("stored %d listening minutes for user %d", minutes, user.ID)
}
