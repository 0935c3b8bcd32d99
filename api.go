package main

// API request types

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type FavoriteArtistRequest struct {
	UserID   int `json:"userId"`
	ArtistID int `json:"artistId"`
}

type FavoriteSongRequest struct {
	UserID int `json:"userId"`
	SongID int `json:"songId"`
}

type SetPasswordRequest struct {
	UserID   int    `json:"userId"`
	Password string `json:"password"`
}

// API response types

type BasicResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type UserResponse struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	SpotifyID        string `json:"spotify_id,omitempty"`
	ListeningMinutes int    `json:"listening_minutes"`
}

type CurrentUserResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

type Artist struct {
	ID   int    `json:"id"`
	Name string `json:"artist_name"`
}

type Song struct {
	ID         int    `json:"id"`
	Name       string `json:"song_name"`
	ArtistID   int    `json:"artist_id,omitempty"`
	ArtistName string `json:"artist_name"`
}

type ArtistListResponse struct {
	Success bool     `json:"success"`
	Data    []Artist `json:"data"`
}

type SongListResponse struct {
	Success bool   `json:"success"`
	Data    []Song `json:"data"`
}

type FavoritesResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Artists []Artist `json:"artists"`
		Songs   []Song   `json:"songs"`
	} `json:"data"`
}

// UserWithFavorites is one entry of the all-users listing.
type UserWithFavorites struct {
	UserID           int      `json:"userId"`
	UserName         string   `json:"userName"`
	Email            string   `json:"email"`
	ListeningMinutes int      `json:"listeningMinutes"`
	TopSongs         []Song   `json:"topSongs"`
	TopArtists       []Artist `json:"topArtists"`
}

type UserListResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Users []UserWithFavorites `json:"users"`
	} `json:"data"`
}

// TasteScore is one entry of the unpaged similarity listing.
type TasteScore struct {
	UserID           int    `json:"userId"`
	UserName         string `json:"userName"`
	Email            string `json:"email"`
	Score            int    `json:"score"`
	ListeningMinutes int    `json:"listeningMinutes"`
}

type SimilarityResponse struct {
	Success bool         `json:"success"`
	Data    []TasteScore `json:"data"`
}

// SharedSongMatch is one entry of the paginated similarity ranking.
type SharedSongMatch struct {
	UserID      int    `json:"userId"`
	UserName    string `json:"userName"`
	CommonSongs int    `json:"commonSongs"`
	Similarity  int    `json:"similarity"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type RankedSimilarity struct {
	CurrentUser  UserResponse      `json:"currentUser"`
	Similarities []SharedSongMatch `json:"similarities"`
	Pagination   Pagination        `json:"pagination"`
}

type RankedSimilarityResponse struct {
	Success bool             `json:"success"`
	Data    RankedSimilarity `json:"data"`
}
