package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Each provider request is bounded so a stalled call cannot hang
	// ingestion; a timeout counts as a page-fetch failure.
	spotifyRequestTimeout = 5 * time.Second
)

// TopArtist is one entry of the user's top-artists listing.
type TopArtist struct {
	ExternalID string
	Name       string
}

// TopTrack is one entry of the user's top-tracks listing.
type TopTrack struct {
	ExternalID    string
	Name          string
	DurationMS    int
	PrimaryArtist TopArtist
}

// PlayedItem is one entry of the recently-played history. PlayedAt is
// the zero time when the provider omitted the play timestamp.
type PlayedItem struct {
	PlayedAt   time.Time
	DurationMS int
}

// ProviderProfile is the authenticated user's provider profile.
type ProviderProfile struct {
	ID          string
	DisplayName string
	Email       string
}

// MusicProvider is the boundary to the streaming provider's API.
// Failures surface wrapping ErrUpstream.
type MusicProvider interface {
	GetProfile(ctx context.Context, accessToken string) (*ProviderProfile, error)
	GetTopArtists(ctx context.Context, accessToken string, limit int) ([]TopArtist, error)
	GetTopTracks(ctx context.Context, accessToken string, limit int) ([]TopTrack, error)
	GetRecentlyPlayed(ctx context.Context, accessToken string, before time.Time, limit int) ([]PlayedItem, error)
}

// Spotify Web API payload types, per
// https://developer.spotify.com/documentation/web-api/reference/

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	DurationMS int             `json:"duration_ms"`
	Artists    []spotifyArtist `json:"artists"`
}

type spotifyTopArtistsPage struct {
	Items []spotifyArtist `json:"items"`
}

type spotifyTopTracksPage struct {
	Items []spotifyTrack `json:"items"`
}

type spotifyPlayHistoryPage struct {
	Items []struct {
		PlayedAt string `json:"played_at"`
		Track    struct {
			DurationMS int `json:"duration_ms"`
		} `json:"track"`
	} `json:"items"`
}

type spotifyProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// SpotifyClient implements MusicProvider against the Spotify Web API.
type SpotifyClient struct {
	http *resty.Client
}

// NewSpotifyClient builds a client for the real API. baseURL overrides
// exist for tests; pass "" for the production endpoint.
func NewSpotifyClient(baseURL string) *SpotifyClient {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(spotifyRequestTimeout)
	return &SpotifyClient{http: client}
}

// newSpotifyOAuthConfig builds the authorization-code flow config used
// by the login handlers.
func newSpotifyOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-top-read",
			"user-read-recently-played",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

func (c *SpotifyClient) get(ctx context.Context, accessToken, endpoint string, params map[string]string, result interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParams(params).
		SetResult(result).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUpstream, endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: GET %s: status %d", ErrUpstream, endpoint, resp.StatusCode())
	}
	return nil
}

func (c *SpotifyClient) GetProfile(ctx context.Context, accessToken string) (*ProviderProfile, error) {
	var profile spotifyProfile
	if err := c.get(ctx, accessToken, "/me", nil, &profile); err != nil {
		return nil, err
	}
	return &ProviderProfile{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
	}, nil
}

func (c *SpotifyClient) GetTopArtists(ctx context.Context, accessToken string, limit int) ([]TopArtist, error) {
	var page spotifyTopArtistsPage
	params := map[string]string{
		"limit":      strconv.Itoa(limit),
		"time_range": "medium_term",
	}
	if err := c.get(ctx, accessToken, "/me/top/artists", params, &page); err != nil {
		return nil, err
	}
	artists := make([]TopArtist, 0, len(page.Items))
	for _, item := range page.Items {
		artists = append(artists, TopArtist{ExternalID: item.ID, Name: item.Name})
	}
	return artists, nil
}

func (c *SpotifyClient) GetTopTracks(ctx context.Context, accessToken string, limit int) ([]TopTrack, error) {
	var page spotifyTopTracksPage
	params := map[string]string{
		"limit":      strconv.Itoa(limit),
		"time_range": "medium_term",
	}
	if err := c.get(ctx, accessToken, "/me/top/tracks", params, &page); err != nil {
		return nil, err
	}
	tracks := make([]TopTrack, 0, len(page.Items))
	for _, item := range page.Items {
		track := TopTrack{
			ExternalID: item.ID,
			Name:       item.Name,
			DurationMS: item.DurationMS,
		}
		if len(item.Artists) > 0 {
			track.PrimaryArtist = TopArtist{
				ExternalID: item.Artists[0].ID,
				Name:       item.Artists[0].Name,
			}
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// GetRecentlyPlayed fetches one page of play history strictly before
// the given cursor. The cursor is a millisecond timestamp on the wire.
func (c *SpotifyClient) GetRecentlyPlayed(ctx context.Context, accessToken string, before time.Time, limit int) ([]PlayedItem, error) {
	var page spotifyPlayHistoryPage
	params := map[string]string{
		"limit":  strconv.Itoa(limit),
		"before": strconv.FormatInt(before.UnixMilli(), 10),
	}
	if err := c.get(ctx, accessToken, "/me/player/recently-played", params, &page); err != nil {
		return nil, err
	}
	items := make([]PlayedItem, 0, len(page.Items))
	for _, item := range page.Items {
		played := PlayedItem{DurationMS: item.Track.DurationMS}
		if item.PlayedAt != "" {
			if t, err := time.Parse(time.RFC3339, item.PlayedAt); err == nil {
				played.PlayedAt = t
			}
		}
		items = append(items, played)
	}
	return items, nil
}
