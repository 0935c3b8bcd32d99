package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

func isDuplicateEntry(err error) bool {
	var merr *mysql.MySQLError
	return errors.As(err, &merr) && merr.Number == 1062
}

// mysqlStore is the MySQL-backed storage layer. Row uniqueness on
// spotify_id columns and on favorite composite keys is enforced by the
// schema (see schema.sql); the store relies on it instead of locking.
type mysqlStore struct {
	db *sqlx.DB
}

func newMySQLStore(db *sqlx.DB) *mysqlStore {
	return &mysqlStore{db: db}
}

// users

func (s *mysqlStore) GetUserByID(ctx context.Context, id int) (*UserRow, error) {
	var row UserRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM users WHERE `id` = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get user by id=%d: %w", id, err)
	}
	return &row, nil
}

func (s *mysqlStore) GetUserByEmail(ctx context.Context, email string) (*UserRow, error) {
	var row UserRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM users WHERE `email` = ?", email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get user by email=%s: %w", email, err)
	}
	return &row, nil
}

func (s *mysqlStore) GetUserBySpotifyID(ctx context.Context, spotifyID string) (*UserRow, error) {
	var row UserRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM users WHERE `spotify_id` = ?", spotifyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get user by spotify_id=%s: %w", spotifyID, err)
	}
	return &row, nil
}

func (s *mysqlStore) InsertSpotifyUser(ctx context.Context, name, email, spotifyID, accessToken, refreshToken string) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		"INSERT INTO users (`name`, `email`, `spotify_id`, `spotify_access_token`, `spotify_refresh_token`) VALUES (?, ?, ?, ?, ?)",
		name, email, spotifyID, accessToken, refreshToken,
	)
	if err != nil {
		return 0, fmt.Errorf("error Insert user by spotify_id=%s: %w", spotifyID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error LastInsertId for user spotify_id=%s: %w", spotifyID, err)
	}
	return int(id), nil
}

// UpdateSpotifyUser overwrites the latest provider tokens plus the
// profile fields on every login.
func (s *mysqlStore) UpdateSpotifyUser(ctx context.Context, id int, name, email, accessToken, refreshToken string) error {
	if _, err := s.db.ExecContext(
		ctx,
		"UPDATE users SET `spotify_access_token` = ?, `spotify_refresh_token` = ?, `name` = ?, `email` = ? WHERE `id` = ?",
		accessToken, refreshToken, name, email, id,
	); err != nil {
		return fmt.Errorf("error Update user tokens by id=%d: %w", id, err)
	}
	return nil
}

// UpdateListeningMinutes overwrites the stored aggregate. Last writer
// wins when two syncs race; that is the documented policy.
func (s *mysqlStore) UpdateListeningMinutes(ctx context.Context, userID, minutes int) error {
	if _, err := s.db.ExecContext(
		ctx,
		"UPDATE users SET `listening_minutes` = ? WHERE `id` = ?",
		minutes, userID,
	); err != nil {
		return fmt.Errorf("error Update listening_minutes=%d by user_id=%d: %w", minutes, userID, err)
	}
	return nil
}

func (s *mysqlStore) SetPasswordHash(ctx context.Context, userID int, passwordHash string) error {
	if _, err := s.db.ExecContext(
		ctx,
		"UPDATE users SET `password_hash` = ? WHERE `id` = ?",
		passwordHash, userID,
	); err != nil {
		return fmt.Errorf("error Update password_hash by user_id=%d: %w", userID, err)
	}
	return nil
}

func (s *mysqlStore) ListUsers(ctx context.Context, sortColumn, sortOrder string) ([]UserRow, error) {
	// sortColumn/sortOrder are validated against an allow-list by the
	// handler; they are never raw request input here.
	query := fmt.Sprintf("SELECT * FROM users ORDER BY %s %s", sortColumn, sortOrder)
	var rows []UserRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error Select users ordered by %s %s: %w", sortColumn, sortOrder, err)
	}
	return rows, nil
}

func (s *mysqlStore) ListOtherUsers(ctx context.Context, excludeUserID int) ([]UserRow, error) {
	var rows []UserRow
	if err := s.db.SelectContext(
		ctx,
		&rows,
		"SELECT * FROM users WHERE `id` != ? ORDER BY `name`",
		excludeUserID,
	); err != nil {
		return nil, fmt.Errorf("error Select users excluding id=%d: %w", excludeUserID, err)
	}
	return rows, nil
}

// DeleteUser removes the user's favorite rows and the user itself in a
// single transaction.
func (s *mysqlStore) DeleteUser(ctx context.Context, userID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error BeginTxx for delete user id=%d: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_fav_artists WHERE `user_id` = ?", userID); err != nil {
		tx.Rollback()
		return fmt.Errorf("error Delete user_fav_artists by user_id=%d: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_fav_songs WHERE `user_id` = ?", userID); err != nil {
		tx.Rollback()
		return fmt.Errorf("error Delete user_fav_songs by user_id=%d: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE `id` = ?", userID); err != nil {
		tx.Rollback()
		return fmt.Errorf("error Delete user by id=%d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error Commit delete user id=%d: %w", userID, err)
	}
	return nil
}

// catalog

func (s *mysqlStore) GetArtistBySpotifyID(ctx context.Context, spotifyID string) (*ArtistRow, error) {
	var row ArtistRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM artists WHERE `spotify_id` = ?", spotifyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get artist by spotify_id=%s: %w", spotifyID, err)
	}
	return &row, nil
}

func (s *mysqlStore) InsertArtist(ctx context.Context, name, spotifyID string) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		"INSERT INTO artists (`artist_name`, `spotify_id`) VALUES (?, ?)",
		name, spotifyID,
	)
	if err != nil {
		return 0, fmt.Errorf("error Insert artist by spotify_id=%s: %w", spotifyID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error LastInsertId for artist spotify_id=%s: %w", spotifyID, err)
	}
	return int(id), nil
}

func (s *mysqlStore) GetSongBySpotifyID(ctx context.Context, spotifyID string) (*SongRow, error) {
	var row SongRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM songs WHERE `spotify_id` = ?", spotifyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get song by spotify_id=%s: %w", spotifyID, err)
	}
	return &row, nil
}

func (s *mysqlStore) InsertSong(ctx context.Context, name string, artistID int, spotifyID string) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		"INSERT INTO songs (`song_name`, `artist_id`, `spotify_id`) VALUES (?, ?, ?)",
		name, artistID, spotifyID,
	)
	if err != nil {
		return 0, fmt.Errorf("error Insert song by spotify_id=%s: %w", spotifyID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error LastInsertId for song spotify_id=%s: %w", spotifyID, err)
	}
	return int(id), nil
}

func (s *mysqlStore) ListArtists(ctx context.Context) ([]ArtistRow, error) {
	var rows []ArtistRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM artists ORDER BY `artist_name`"); err != nil {
		return nil, fmt.Errorf("error Select artists: %w", err)
	}
	return rows, nil
}

func (s *mysqlStore) ListSongs(ctx context.Context) ([]Song, error) {
	var rows []struct {
		ID         int    `db:"id"`
		SongName   string `db:"song_name"`
		ArtistID   int    `db:"artist_id"`
		ArtistName string `db:"artist_name"`
	}
	if err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT s.id, s.song_name, a.id AS artist_id, a.artist_name
		 FROM songs s JOIN artists a ON s.artist_id = a.id
		 ORDER BY s.song_name`,
	); err != nil {
		return nil, fmt.Errorf("error Select songs with artists: %w", err)
	}
	songs := make([]Song, 0, len(rows))
	for _, r := range rows {
		songs = append(songs, Song{ID: r.ID, Name: r.SongName, ArtistID: r.ArtistID, ArtistName: r.ArtistName})
	}
	return songs, nil
}

// favorites

func (s *mysqlStore) LinkFavoriteArtist(ctx context.Context, userID, artistID int) error {
	if _, err := s.db.ExecContext(
		ctx,
		"INSERT IGNORE INTO user_fav_artists (`user_id`, `artist_id`) VALUES (?, ?)",
		userID, artistID,
	); err != nil {
		return fmt.Errorf("error Insert user_fav_artists by user_id=%d, artist_id=%d: %w", userID, artistID, err)
	}
	return nil
}

func (s *mysqlStore) LinkFavoriteSong(ctx context.Context, userID, songID int) error {
	if _, err := s.db.ExecContext(
		ctx,
		"INSERT IGNORE INTO user_fav_songs (`user_id`, `song_id`) VALUES (?, ?)",
		userID, songID,
	); err != nil {
		return fmt.Errorf("error Insert user_fav_songs by user_id=%d, song_id=%d: %w", userID, songID, err)
	}
	return nil
}

func (s *mysqlStore) UnlinkFavoriteArtist(ctx context.Context, userID, artistID int) error {
	if _, err := s.db.ExecContext(
		ctx,
		"DELETE FROM user_fav_artists WHERE `user_id` = ? AND `artist_id` = ?",
		userID, artistID,
	); err != nil {
		return fmt.Errorf("error Delete user_fav_artists by user_id=%d, artist_id=%d: %w", userID, artistID, err)
	}
	return nil
}

func (s *mysqlStore) UnlinkFavoriteSong(ctx context.Context, userID, songID int) error {
	if _, err := s.db.ExecContext(
		ctx,
		"DELETE FROM user_fav_songs WHERE `user_id` = ? AND `song_id` = ?",
		userID, songID,
	); err != nil {
		return fmt.Errorf("error Delete user_fav_songs by user_id=%d, song_id=%d: %w", userID, songID, err)
	}
	return nil
}

func (s *mysqlStore) FavoriteArtistIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	if err := s.db.SelectContext(
		ctx,
		&ids,
		"SELECT `artist_id` FROM user_fav_artists WHERE `user_id` = ?",
		userID,
	); err != nil {
		return nil, fmt.Errorf("error Select user_fav_artists by user_id=%d: %w", userID, err)
	}
	return ids, nil
}

func (s *mysqlStore) FavoriteSongIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	if err := s.db.SelectContext(
		ctx,
		&ids,
		"SELECT `song_id` FROM user_fav_songs WHERE `user_id` = ?",
		userID,
	); err != nil {
		return nil, fmt.Errorf("error Select user_fav_songs by user_id=%d: %w", userID, err)
	}
	return ids, nil
}

func (s *mysqlStore) FavoriteArtistsByUser(ctx context.Context, userID int) ([]Artist, error) {
	var rows []struct {
		ID   int    `db:"id"`
		Name string `db:"artist_name"`
	}
	if err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT a.id, a.artist_name FROM artists a
		 WHERE a.id IN (SELECT artist_id FROM user_fav_artists WHERE user_id = ?)`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("error Select favorite artists by user_id=%d: %w", userID, err)
	}
	artists := make([]Artist, 0, len(rows))
	for _, r := range rows {
		artists = append(artists, Artist{ID: r.ID, Name: r.Name})
	}
	return artists, nil
}

func (s *mysqlStore) FavoriteSongsByUser(ctx context.Context, userID int) ([]Song, error) {
	var rows []struct {
		ID         int    `db:"id"`
		SongName   string `db:"song_name"`
		ArtistName string `db:"artist_name"`
	}
	if err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT s.id, s.song_name, a.artist_name
		 FROM songs s JOIN artists a ON s.artist_id = a.id
		 WHERE s.id IN (SELECT song_id FROM user_fav_songs WHERE user_id = ?)`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("error Select favorite songs by user_id=%d: %w", userID, err)
	}
	songs := make([]Song, 0, len(rows))
	for _, r := range rows {
		songs = append(songs, Song{ID: r.ID, Name: r.SongName, ArtistName: r.ArtistName})
	}
	return songs, nil
}

func (s *mysqlStore) AllFavoriteSongPairs(ctx context.Context) ([]UserFavSongRow, error) {
	var rows []UserFavSongRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT `user_id`, `song_id` FROM user_fav_songs"); err != nil {
		return nil, fmt.Errorf("error Select user_fav_songs: %w", err)
	}
	return rows, nil
}

func (s *mysqlStore) AllFavoriteArtistPairs(ctx context.Context) ([]UserFavArtistRow, error) {
	var rows []UserFavArtistRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT `user_id`, `artist_id` FROM user_fav_artists"); err != nil {
		return nil, fmt.Errorf("error Select user_fav_artists: %w", err)
	}
	return rows, nil
}

// similarity aggregates

// SharedSongCounts returns, for one page, the users sharing at least
// one favorite song with the subject, ordered by shared count
// descending. Ties fall back to user id so the ordering is stable.
func (s *mysqlStore) SharedSongCounts(ctx context.Context, subjectUserID, limit, offset int) ([]SongOverlapRow, error) {
	var rows []SongOverlapRow
	if err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT u.id AS user_id, u.name AS user_name, COUNT(*) AS common_songs
		 FROM user_fav_songs theirs
		 JOIN user_fav_songs mine ON mine.song_id = theirs.song_id AND mine.user_id = ?
		 JOIN users u ON u.id = theirs.user_id
		 WHERE theirs.user_id != ?
		 GROUP BY u.id, u.name
		 ORDER BY common_songs DESC, u.id ASC
		 LIMIT ? OFFSET ?`,
		subjectUserID, subjectUserID, limit, offset,
	); err != nil {
		return nil, fmt.Errorf("error Select shared song counts by user_id=%d: %w", subjectUserID, err)
	}
	return rows, nil
}

// CountUsersSharingSongs counts the candidate population behind
// SharedSongCounts for pagination totals.
func (s *mysqlStore) CountUsersSharingSongs(ctx context.Context, subjectUserID int) (int, error) {
	var count int
	if err := s.db.GetContext(
		ctx,
		&count,
		`SELECT COUNT(DISTINCT theirs.user_id) AS cnt
		 FROM user_fav_songs theirs
		 JOIN user_fav_songs mine ON mine.song_id = theirs.song_id AND mine.user_id = ?
		 WHERE theirs.user_id != ?`,
		subjectUserID, subjectUserID,
	); err != nil {
		return 0, fmt.Errorf("error Count users sharing songs with user_id=%d: %w", subjectUserID, err)
	}
	return count, nil
}

func (s *mysqlStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("error Ping database: %w", err)
	}
	return nil
}
