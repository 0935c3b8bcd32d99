package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
)

type fakeProvider struct {
	profile        *ProviderProfile
	topArtists     func(limit int) ([]TopArtist, error)
	topTracks      func(limit int) ([]TopTrack, error)
	recentlyPlayed func(before time.Time, limit int) ([]PlayedItem, error)
	historyCalls   int
}

func (f *fakeProvider) GetProfile(ctx context.Context, accessToken string) (*ProviderProfile, error) {
	return f.profile, nil
}

func (f *fakeProvider) GetTopArtists(ctx context.Context, accessToken string, limit int) ([]TopArtist, error) {
	return f.topArtists(limit)
}

func (f *fakeProvider) GetTopTracks(ctx context.Context, accessToken string, limit int) ([]TopTrack, error) {
	return f.topTracks(limit)
}

func (f *fakeProvider) GetRecentlyPlayed(ctx context.Context, accessToken string, before time.Time, limit int) ([]PlayedItem, error) {
	f.historyCalls++
	return f.recentlyPlayed(before, limit)
}

func testLogger() *log.Logger {
	logger := log.New("test")
	logger.SetOutput(io.Discard)
	return logger
}

func TestTopItemsImporter(t *testing.T) {
	ctx := context.Background()

	t.Run("imports all well-formed artists", func(t *testing.T) {
		provider := &fakeProvider{
			topArtists: func(limit int) ([]TopArtist, error) {
				return []TopArtist{
					{ExternalID: "a1", Name: "Radiohead"},
					{ExternalID: "a2", Name: "Portishead"},
				}, nil
			},
		}
		store := newFakeCatalogStore()
		favorites := newFakeFavoriteStore()
		importer := NewTopItemsImporter(provider, NewCatalogMerger(store), NewFavoriteLinker(favorites), testLogger())

		count, err := importer.ImportTopArtists(ctx, 1, "token", 5)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if count != 2 {
			t.Errorf("expected 2 imported, got %d", count)
		}
		if len(favorites.artistPairs) != 2 {
			t.Errorf("expected 2 favorite links, got %d", len(favorites.artistPairs))
		}
	})

	t.Run("a malformed item is skipped, the rest continue", func(t *testing.T) {
		provider := &fakeProvider{
			topArtists: func(limit int) ([]TopArtist, error) {
				return []TopArtist{
					{ExternalID: "a1", Name: "Radiohead"},
					{ExternalID: "bad id", Name: "Broken"},
					{ExternalID: "a3", Name: "Massive Attack"},
				}, nil
			},
		}
		favorites := newFakeFavoriteStore()
		importer := NewTopItemsImporter(provider, NewCatalogMerger(newFakeCatalogStore()), NewFavoriteLinker(favorites), testLogger())

		count, err := importer.ImportTopArtists(ctx, 1, "token", 5)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if count != 2 {
			t.Errorf("expected 2 imported, got %d", count)
		}
	})

	t.Run("a fetch failure aborts the whole call", func(t *testing.T) {
		provider := &fakeProvider{
			topArtists: func(limit int) ([]TopArtist, error) {
				return nil, fmt.Errorf("%w: status 502", ErrUpstream)
			},
		}
		importer := NewTopItemsImporter(provider, NewCatalogMerger(newFakeCatalogStore()), NewFavoriteLinker(newFakeFavoriteStore()), testLogger())

		count, err := importer.ImportTopArtists(ctx, 1, "token", 5)
		if !errors.Is(err, ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 imported, got %d", count)
		}
	})

	t.Run("tracks resolve the primary artist before the song", func(t *testing.T) {
		provider := &fakeProvider{
			topTracks: func(limit int) ([]TopTrack, error) {
				return []TopTrack{
					{
						ExternalID:    "t1",
						Name:          "Paranoid Android",
						DurationMS:    387000,
						PrimaryArtist: TopArtist{ExternalID: "a1", Name: "Radiohead"},
					},
				}, nil
			},
		}
		store := newFakeCatalogStore()
		favorites := newFakeFavoriteStore()
		importer := NewTopItemsImporter(provider, NewCatalogMerger(store), NewFavoriteLinker(favorites), testLogger())

		count, err := importer.ImportTopTracks(ctx, 1, "token", 5)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if count != 1 {
			t.Errorf("expected 1 imported, got %d", count)
		}
		if store.artists["a1"] == nil {
			t.Error("expected the primary artist in the catalog")
		}
		song := store.songs["t1"]
		if song == nil || song.ArtistID != store.artists["a1"].ID {
			t.Errorf("expected song linked to its artist, got %+v", song)
		}
	})

	t.Run("a track missing its artist is skipped", func(t *testing.T) {
		provider := &fakeProvider{
			topTracks: func(limit int) ([]TopTrack, error) {
				return []TopTrack{
					{ExternalID: "t1", Name: "Orphan"},
					{ExternalID: "t2", Name: "Teardrop", PrimaryArtist: TopArtist{ExternalID: "a2", Name: "Massive Attack"}},
				}, nil
			},
		}
		importer := NewTopItemsImporter(provider, NewCatalogMerger(newFakeCatalogStore()), NewFavoriteLinker(newFakeFavoriteStore()), testLogger())

		count, err := importer.ImportTopTracks(ctx, 1, "token", 5)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if count != 1 {
			t.Errorf("expected 1 imported, got %d", count)
		}
	})
}

type fakeMinutesStore struct {
	minutes  map[int]int
	failWith error
	calls    int
}

func newFakeMinutesStore() *fakeMinutesStore {
	return &fakeMinutesStore{minutes: map[int]int{}}
}

func (f *fakeMinutesStore) UpdateListeningMinutes(ctx context.Context, userID, minutes int) error {
	f.calls++
	if f.failWith != nil {
		return f.failWith
	}
	f.minutes[userID] = minutes
	return nil
}

// playedPage builds count items of the given duration, one minute apart
// going backward from newest.
func playedPage(newest time.Time, count, durationMS int) []PlayedItem {
	items := make([]PlayedItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, PlayedItem{
			PlayedAt:   newest.Add(-time.Duration(i) * time.Minute),
			DurationMS: durationMS,
		})
	}
	return items
}

func TestListeningTimeAggregator(t *testing.T) {
	ctx := context.Background()
	windowStart := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC).Add(-time.Millisecond)

	t.Run("pages until a short page, summing in-window plays", func(t *testing.T) {
		// Three full pages plus a short one: four requests total.
		pages := [][]PlayedItem{
			playedPage(time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC), historyPageSize, 60000),
			playedPage(time.Date(2025, time.November, 15, 12, 0, 0, 0, time.UTC), historyPageSize, 60000),
			playedPage(time.Date(2025, time.November, 10, 12, 0, 0, 0, time.UTC), historyPageSize, 60000),
			playedPage(time.Date(2025, time.November, 5, 12, 0, 0, 0, time.UTC), 10, 60000),
		}
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			return pages[provider.historyCalls-1], nil
		}
		store := newFakeMinutesStore()
		aggregator := NewListeningTimeAggregator(provider, store, testLogger())

		minutes := aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd)
		if minutes != 160 {
			t.Errorf("expected 160 minutes, got %d", minutes)
		}
		if provider.historyCalls != 4 {
			t.Errorf("expected 4 history requests, got %d", provider.historyCalls)
		}
		if store.minutes[1] != 160 {
			t.Errorf("expected 160 persisted, got %d", store.minutes[1])
		}
	})

	t.Run("plays outside the window are ignored", func(t *testing.T) {
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			return []PlayedItem{
				{PlayedAt: windowEnd.Add(time.Hour), DurationMS: 60000},
				{PlayedAt: time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC), DurationMS: 60000},
				{PlayedAt: windowStart.Add(-time.Second), DurationMS: 60000},
				{DurationMS: 60000},
			}, nil
		}
		aggregator := NewListeningTimeAggregator(provider, newFakeMinutesStore(), testLogger())

		if minutes := aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd); minutes != 1 {
			t.Errorf("expected 1 minute, got %d", minutes)
		}
	})

	t.Run("fractional minutes are rounded once at the end", func(t *testing.T) {
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			// Three half-minute plays: 1.5 rounds to 2, not 0.5×3 rounded each.
			return playedPage(time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC), 3, 30000), nil
		}
		aggregator := NewListeningTimeAggregator(provider, newFakeMinutesStore(), testLogger())

		if minutes := aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd); minutes != 2 {
			t.Errorf("expected 2 minutes, got %d", minutes)
		}
	})

	t.Run("an endless history stops at the request cap", func(t *testing.T) {
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			// Always a full page: only the cap can end the loop.
			newest := before.Add(-time.Minute)
			return playedPage(newest, historyPageSize, 60000), nil
		}
		aggregator := NewListeningTimeAggregator(provider, newFakeMinutesStore(), testLogger())

		aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd)
		if provider.historyCalls != maxHistoryRequests {
			t.Errorf("expected %d history requests, got %d", maxHistoryRequests, provider.historyCalls)
		}
	})

	t.Run("a full page ending without a timestamp stops pagination", func(t *testing.T) {
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			page := playedPage(time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC), historyPageSize, 60000)
			page[len(page)-1].PlayedAt = time.Time{}
			return page, nil
		}
		store := newFakeMinutesStore()
		aggregator := NewListeningTimeAggregator(provider, store, testLogger())

		// The untimestamped item is not counted and cannot be paginated past.
		minutes := aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd)
		if provider.historyCalls != 1 {
			t.Errorf("expected 1 history request, got %d", provider.historyCalls)
		}
		if minutes != historyPageSize-1 {
			t.Errorf("expected %d minutes, got %d", historyPageSize-1, minutes)
		}
		if store.minutes[1] != historyPageSize-1 {
			t.Errorf("expected %d persisted, got %d", historyPageSize-1, store.minutes[1])
		}
	})

	t.Run("a failed page keeps the partial total", func(t *testing.T) {
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			if provider.historyCalls == 1 {
				return playedPage(time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC), historyPageSize, 60000), nil
			}
			return nil, fmt.Errorf("%w: status 429", ErrUpstream)
		}
		store := newFakeMinutesStore()
		aggregator := NewListeningTimeAggregator(provider, store, testLogger())

		minutes := aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd)
		if minutes != 50 {
			t.Errorf("expected partial total 50, got %d", minutes)
		}
		if store.minutes[1] != 50 {
			t.Errorf("expected partial total persisted, got %d", store.minutes[1])
		}
	})

	t.Run("a persist failure does not change the returned total", func(t *testing.T) {
		provider := &fakeProvider{}
		provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
			return playedPage(time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC), 5, 60000), nil
		}
		store := newFakeMinutesStore()
		store.failWith = fmt.Errorf("connection refused")
		aggregator := NewListeningTimeAggregator(provider, store, testLogger())

		if minutes := aggregator.AggregateWindow(ctx, 1, "token", windowStart, windowEnd); minutes != 5 {
			t.Errorf("expected 5 minutes, got %d", minutes)
		}
	})
}

func TestListeningWindow(t *testing.T) {
	start, end := listeningWindow(2025)
	if !start.Equal(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start: %s", start)
	}
	if !end.Before(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end must fall inside November, got %s", end)
	}
	if end.Month() != time.November || end.Day() != 30 {
		t.Errorf("unexpected end: %s", end)
	}
}

func TestIngestionOrchestratorFaultIsolation(t *testing.T) {
	ctx := context.Background()

	provider := &fakeProvider{
		topArtists: func(limit int) ([]TopArtist, error) {
			return nil, fmt.Errorf("%w: status 500", ErrUpstream)
		},
		topTracks: func(limit int) ([]TopTrack, error) {
			return []TopTrack{
				{ExternalID: "t1", Name: "Teardrop", PrimaryArtist: TopArtist{ExternalID: "a1", Name: "Massive Attack"}},
			}, nil
		},
	}
	provider.recentlyPlayed = func(before time.Time, limit int) ([]PlayedItem, error) {
		return nil, fmt.Errorf("%w: status 500", ErrUpstream)
	}

	store := newFakeMinutesStore()
	favorites := newFakeFavoriteStore()
	importer := NewTopItemsImporter(provider, NewCatalogMerger(newFakeCatalogStore()), NewFavoriteLinker(favorites), testLogger())
	aggregator := NewListeningTimeAggregator(provider, store, testLogger())
	orchestrator := NewIngestionOrchestrator(importer, aggregator, testLogger())

	// Artist import and history both fail; the track import still lands.
	orchestrator.OnAuthenticated(ctx, &UserRow{ID: 1}, "token")

	if len(favorites.songPairs) != 1 {
		t.Errorf("expected the track import to survive, got %d links", len(favorites.songPairs))
	}
	if store.minutes[1] != 0 {
		t.Errorf("expected 0 minutes after a failed window, got %d", store.minutes[1])
	}
}
