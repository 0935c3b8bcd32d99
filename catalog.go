package main

import (
	"context"
	"fmt"
	"regexp"
)

// Spotify IDs are base62.
var externalIDPattern = regexp.MustCompile(`^[0-9A-Za-z]+$`)

// catalogStore is the slice of storage the merger needs.
type catalogStore interface {
	GetArtistBySpotifyID(ctx context.Context, spotifyID string) (*ArtistRow, error)
	InsertArtist(ctx context.Context, name, spotifyID string) (int, error)
	GetSongBySpotifyID(ctx context.Context, spotifyID string) (*SongRow, error)
	InsertSong(ctx context.Context, name string, artistID int, spotifyID string) (int, error)
}

// CatalogMerger idempotently resolves provider identities to internal
// catalog rows. Metadata is first-write-wins: an existing row's name is
// never updated. Two ingestion runs racing on the same external id are
// resolved by the schema's uniqueness constraint, not by locking; the
// loser of the race re-reads the winner's row.
type CatalogMerger struct {
	store catalogStore
}

func NewCatalogMerger(store catalogStore) *CatalogMerger {
	return &CatalogMerger{store: store}
}

func validateExternalIdentity(externalID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInput)
	}
	if externalID == "" || !externalIDPattern.MatchString(externalID) {
		return fmt.Errorf("%w: malformed external id %q", ErrInvalidInput, externalID)
	}
	return nil
}

// ResolveArtist returns the internal id for the given provider artist,
// inserting a catalog row on first sight.
func (m *CatalogMerger) ResolveArtist(ctx context.Context, externalID, name string) (int, error) {
	if err := validateExternalIdentity(externalID, name); err != nil {
		return 0, err
	}

	existing, err := m.store.GetArtistBySpotifyID(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	id, err := m.store.InsertArtist(ctx, name, externalID)
	if err != nil {
		if isDuplicateEntry(err) {
			// A concurrent run inserted the same external id first.
			winner, getErr := m.store.GetArtistBySpotifyID(ctx, externalID)
			if getErr == nil && winner != nil {
				return winner.ID, nil
			}
		}
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return id, nil
}

// ResolveSong returns the internal id for the given provider track,
// inserting a catalog row on first sight.
func (m *CatalogMerger) ResolveSong(ctx context.Context, externalID, name string, primaryArtistID int) (int, error) {
	if err := validateExternalIdentity(externalID, name); err != nil {
		return 0, err
	}

	existing, err := m.store.GetSongBySpotifyID(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	id, err := m.store.InsertSong(ctx, name, primaryArtistID, externalID)
	if err != nil {
		if isDuplicateEntry(err) {
			winner, getErr := m.store.GetSongBySpotifyID(ctx, externalID)
			if getErr == nil && winner != nil {
				return winner.ID, nil
			}
		}
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return id, nil
}

// favoriteStore is the slice of storage the linker needs.
type favoriteStore interface {
	LinkFavoriteArtist(ctx context.Context, userID, artistID int) error
	LinkFavoriteSong(ctx context.Context, userID, songID int) error
	UnlinkFavoriteArtist(ctx context.Context, userID, artistID int) error
	UnlinkFavoriteSong(ctx context.Context, userID, songID int) error
}

// FavoriteLinker maintains the user-to-catalog favorite relations with
// set semantics: linking an existing pair and unlinking a missing pair
// are both silent no-ops.
type FavoriteLinker struct {
	store favoriteStore
}

func NewFavoriteLinker(store favoriteStore) *FavoriteLinker {
	return &FavoriteLinker{store: store}
}

func (l *FavoriteLinker) LinkArtist(ctx context.Context, userID, artistID int) error {
	if err := l.store.LinkFavoriteArtist(ctx, userID, artistID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (l *FavoriteLinker) LinkSong(ctx context.Context, userID, songID int) error {
	if err := l.store.LinkFavoriteSong(ctx, userID, songID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (l *FavoriteLinker) UnlinkArtist(ctx context.Context, userID, artistID int) error {
	if err := l.store.UnlinkFavoriteArtist(ctx, userID, artistID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (l *FavoriteLinker) UnlinkSong(ctx context.Context, userID, songID int) error {
	if err := l.store.UnlinkFavoriteSong(ctx, userID, songID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}
