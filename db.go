package main

import (
	"database/sql"
	"time"
)

type UserRow struct {
	ID                  int            `db:"id"`
	Name                string         `db:"name"`
	Email               string         `db:"email"`
	PasswordHash        sql.NullString `db:"password_hash"`
	SpotifyID           sql.NullString `db:"spotify_id"`
	SpotifyAccessToken  sql.NullString `db:"spotify_access_token"`
	SpotifyRefreshToken sql.NullString `db:"spotify_refresh_token"`
	ListeningMinutes    int            `db:"listening_minutes"`
	CreatedAt           time.Time      `db:"created_at"`
}

type ArtistRow struct {
	ID        int            `db:"id"`
	Name      string         `db:"artist_name"`
	SpotifyID sql.NullString `db:"spotify_id"`
	CreatedAt time.Time      `db:"created_at"`
}

type SongRow struct {
	ID        int            `db:"id"`
	Name      string         `db:"song_name"`
	ArtistID  int            `db:"artist_id"`
	SpotifyID sql.NullString `db:"spotify_id"`
	CreatedAt time.Time      `db:"created_at"`
}

type UserFavArtistRow struct {
	UserID    int       `db:"user_id"`
	ArtistID  int       `db:"artist_id"`
	CreatedAt time.Time `db:"created_at"`
}

type UserFavSongRow struct {
	UserID    int       `db:"user_id"`
	SongID    int       `db:"song_id"`
	CreatedAt time.Time `db:"created_at"`
}

// SongOverlapRow is one row of the shared-song aggregate used by the
// paginated similarity ranking.
type SongOverlapRow struct {
	UserID      int    `db:"user_id"`
	UserName    string `db:"user_name"`
	CommonSongs int    `db:"common_songs"`
}
