package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// GET /api/artists

func apiArtistsHandler(c echo.Context) error {
	rows, err := store.ListArtists(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("error ListArtists: %s", err)
		return errorResponse(c, 500, "error fetching artists")
	}
	artists := lo.Map(rows, func(row ArtistRow, _ int) Artist {
		return Artist{ID: row.ID, Name: row.Name}
	})
	return c.JSON(http.StatusOK, ArtistListResponse{Success: true, Data: artists})
}

// GET /api/songs

func apiSongsHandler(c echo.Context) error {
	songs, err := store.ListSongs(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("error ListSongs: %s", err)
		return errorResponse(c, 500, "error fetching songs")
	}
	return c.JSON(http.StatusOK, SongListResponse{Success: true, Data: songs})
}

// GET /api/favorites?user_id=

func apiFavoritesHandler(c echo.Context) error {
	userID, err := strconv.Atoi(c.QueryParam("user_id"))
	if err != nil || userID <= 0 {
		return errorResponse(c, 400, "user id is required")
	}

	ctx := c.Request().Context()
	artists, err := store.FavoriteArtistsByUser(ctx, userID)
	if err != nil {
		c.Logger().Errorf("error FavoriteArtistsByUser: %s", err)
		return errorResponse(c, 500, "error fetching user favorites")
	}
	songs, err := store.FavoriteSongsByUser(ctx, userID)
	if err != nil {
		c.Logger().Errorf("error FavoriteSongsByUser: %s", err)
		return errorResponse(c, 500, "error fetching user favorites")
	}

	body := FavoritesResponse{Success: true}
	body.Data.Artists = artists
	body.Data.Songs = songs
	return c.JSON(http.StatusOK, body)
}

// POST /api/favorites/artists

func apiFavoriteArtistAddHandler(c echo.Context) error {
	var req FavoriteArtistRequest
	if err := c.Bind(&req); err != nil {
		c.Logger().Errorf("error Bind request to FavoriteArtistRequest: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if req.UserID <= 0 || req.ArtistID <= 0 {
		return errorResponse(c, 400, "user id and artist id are required")
	}
	if err := linker.LinkArtist(c.Request().Context(), req.UserID, req.ArtistID); err != nil {
		c.Logger().Errorf("error LinkArtist: %s", err)
		return errorResponse(c, 500, "error adding favorite artist")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "artist added to favorites"})
}

// POST /api/favorites/songs

func apiFavoriteSongAddHandler(c echo.Context) error {
	var req FavoriteSongRequest
	if err := c.Bind(&req); err != nil {
		c.Logger().Errorf("error Bind request to FavoriteSongRequest: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if req.UserID <= 0 || req.SongID <= 0 {
		return errorResponse(c, 400, "user id and song id are required")
	}
	if err := linker.LinkSong(c.Request().Context(), req.UserID, req.SongID); err != nil {
		c.Logger().Errorf("error LinkSong: %s", err)
		return errorResponse(c, 500, "error adding favorite song")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "song added to favorites"})
}

// DELETE /api/favorites/artists?userId=&artistId=

func apiFavoriteArtistRemoveHandler(c echo.Context) error {
	userID, err1 := strconv.Atoi(c.QueryParam("userId"))
	artistID, err2 := strconv.Atoi(c.QueryParam("artistId"))
	if err1 != nil || err2 != nil || userID <= 0 || artistID <= 0 {
		return errorResponse(c, 400, "user id and artist id are required")
	}
	if err := linker.UnlinkArtist(c.Request().Context(), userID, artistID); err != nil {
		c.Logger().Errorf("error UnlinkArtist: %s", err)
		return errorResponse(c, 500, "error removing favorite artist")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "artist removed from favorites"})
}

// DELETE /api/favorites/songs?userId=&songId=

func apiFavoriteSongRemoveHandler(c echo.Context) error {
	userID, err1 := strconv.Atoi(c.QueryParam("userId"))
	songID, err2 := strconv.Atoi(c.QueryParam("songId"))
	if err1 != nil || err2 != nil || userID <= 0 || songID <= 0 {
		return errorResponse(c, 400, "user id and song id are required")
	}
	if err := linker.UnlinkSong(c.Request().Context(), userID, songID); err != nil {
		c.Logger().Errorf("error UnlinkSong: %s", err)
		return errorResponse(c, 500, "error removing favorite song")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "song removed from favorites"})
}

// GET /api/users?sort_by=&sort_order=

var validUserSortColumns = map[string]string{
	"name":              "name",
	"listening_minutes": "listening_minutes",
}

func apiUsersHandler(c echo.Context) error {
	sortColumn, ok := validUserSortColumns[c.QueryParam("sort_by")]
	if !ok {
		sortColumn = "name"
	}
	sortOrder := strings.ToUpper(c.QueryParam("sort_order"))
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	ctx := c.Request().Context()
	users, err := store.ListUsers(ctx, sortColumn, sortOrder)
	if err != nil {
		c.Logger().Errorf("error ListUsers: %s", err)
		return errorResponse(c, 500, "error fetching users")
	}

	body := UserListResponse{Success: true}
	body.Data.Users = make([]UserWithFavorites, 0, len(users))
	for _, user := range users {
		songs, err := store.FavoriteSongsByUser(ctx, user.ID)
		if err != nil {
			c.Logger().Errorf("error FavoriteSongsByUser: %s", err)
			return errorResponse(c, 500, "error fetching users")
		}
		artists, err := store.FavoriteArtistsByUser(ctx, user.ID)
		if err != nil {
			c.Logger().Errorf("error FavoriteArtistsByUser: %s", err)
			return errorResponse(c, 500, "error fetching users")
		}
		body.Data.Users = append(body.Data.Users, UserWithFavorites{
			UserID:           user.ID,
			UserName:         user.Name,
			Email:            user.Email,
			ListeningMinutes: user.ListeningMinutes,
			TopSongs:         songs,
			TopArtists:       artists,
		})
	}
	return c.JSON(http.StatusOK, body)
}

// GET /api/similarity

func apiSimilarityHandler(c echo.Context) error {
	user, ok, err := currentUser(c)
	if err != nil {
		c.Logger().Errorf("error currentUser: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if !ok {
		return errorResponse(c, 401, "not authenticated")
	}

	scores, err := engine.ScoreAllUsers(c.Request().Context(), user.ID)
	if err != nil {
		c.Logger().Errorf("error ScoreAllUsers: %s", err)
		return errorResponse(c, 500, "error calculating user similarity, try again")
	}
	return c.JSON(http.StatusOK, SimilarityResponse{Success: true, Data: scores})
}

// GET /api/similarity/ranked?page=&limit=

func apiSimilarityRankedHandler(c echo.Context) error {
	user, ok, err := currentUser(c)
	if err != nil {
		c.Logger().Errorf("error currentUser: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if !ok {
		return errorResponse(c, 401, "not authenticated")
	}

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return errorResponse(c, 400, "bad page")
		}
	}
	pageSize := defaultRankPageSize
	if raw := c.QueryParam("limit"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 {
			return errorResponse(c, 400, "bad limit")
		}
	}

	result, err := engine.RankBySharedSongs(c.Request().Context(), user.ID, page, pageSize)
	if err != nil {
		c.Logger().Errorf("error RankBySharedSongs: %s", err)
		return errorResponse(c, 500, "error calculating user similarity, try again")
	}
	return c.JSON(http.StatusOK, RankedSimilarityResponse{Success: true, Data: *result})
}

// GET /api/health

func apiHealthHandler(c echo.Context) error {
	if err := store.Ping(c.Request().Context()); err != nil {
		c.Logger().Errorf("error Ping: %s", err)
		return errorResponse(c, 500, "database connection failed")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "database connection successful"})
}
