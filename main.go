package main

import (
	"fmt"
	"os"

	"github.com/go-sql-driver/mysql"
	"github.com/gorilla/sessions"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/srinathgs/mysqlstore"
	"golang.org/x/oauth2"
)

var (
	db           *sqlx.DB
	store        *mysqlStore
	sessionStore sessions.Store
	provider     MusicProvider
	oauthConfig  *oauth2.Config
	linker       *FavoriteLinker
	orchestrator *IngestionOrchestrator
	engine       *SimilarityEngine
	frontendURL  string
)

func getEnv(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return defaultValue
}

func connectDB() (*sqlx.DB, error) {
	config := mysql.NewConfig()
	config.Net = "tcp"
	config.Addr = getEnv("TASTEMATCH_DB_HOST", "127.0.0.1") + ":" + getEnv("TASTEMATCH_DB_PORT", "3306")
	config.User = getEnv("TASTEMATCH_DB_USER", "tastematch")
	config.Passwd = getEnv("TASTEMATCH_DB_PASSWORD", "tastematch")
	config.DBName = getEnv("TASTEMATCH_DB_NAME", "tastematch")
	config.ParseTime = true

	dsn := config.FormatDSN()
	return sqlx.Open("mysql", dsn)
}

func main() {
	godotenv.Load()

	e := echo.New()
	e.Logger.SetLevel(log.INFO)

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{getEnv("TASTEMATCH_FRONTEND_URL", "http://localhost:5173")},
		AllowCredentials: true,
	}))

	var err error
	db, err = connectDB()
	if err != nil {
		e.Logger.Fatalf("failed to connect db: %v", err)
		return
	}
	db.SetMaxOpenConns(10)
	defer db.Close()

	sessionStore, err = mysqlstore.NewMySQLStoreFromConnection(
		db.DB, "sessions", "/", 86400,
		[]byte(getEnv("TASTEMATCH_SESSION_SECRET", "tastematch-dev-secret")),
	)
	if err != nil {
		e.Logger.Fatalf("failed to initialize session store: %v", err)
		return
	}

	store = newMySQLStore(db)
	provider = NewSpotifyClient("")
	oauthConfig = newSpotifyOAuthConfig(
		getEnv("SPOTIFY_CLIENT_ID", ""),
		getEnv("SPOTIFY_CLIENT_SECRET", ""),
		getEnv("SPOTIFY_REDIRECT_URI", "http://localhost:3000/auth/spotify/callback"),
	)
	frontendURL = getEnv("TASTEMATCH_FRONTEND_URL", "http://localhost:5173")

	merger := NewCatalogMerger(store)
	linker = NewFavoriteLinker(store)

	ingestLogger := log.New("ingest")
	ingestLogger.SetLevel(log.INFO)
	importer := NewTopItemsImporter(provider, merger, linker, ingestLogger)
	aggregator := NewListeningTimeAggregator(provider, store, ingestLogger)
	orchestrator = NewIngestionOrchestrator(importer, aggregator, ingestLogger)

	engine = NewSimilarityEngine(store, nil)

	e.POST("/api/login", apiLoginHandler)
	e.POST("/api/logout", apiLogoutHandler)
	e.GET("/api/me", apiCurrentUserHandler)
	e.GET("/auth/spotify", spotifyAuthHandler)
	e.GET("/auth/spotify/callback", spotifyCallbackHandler)

	e.GET("/api/artists", apiArtistsHandler)
	e.GET("/api/songs", apiSongsHandler)
	e.GET("/api/favorites", apiFavoritesHandler)
	e.POST("/api/favorites/artists", apiFavoriteArtistAddHandler)
	e.POST("/api/favorites/songs", apiFavoriteSongAddHandler)
	e.DELETE("/api/favorites/artists", apiFavoriteArtistRemoveHandler)
	e.DELETE("/api/favorites/songs", apiFavoriteSongRemoveHandler)

	e.GET("/api/users", apiUsersHandler)
	e.GET("/api/similarity", apiSimilarityHandler)
	e.GET("/api/similarity/ranked", apiSimilarityRankedHandler)

	e.POST("/api/account/password", apiSetPasswordHandler)
	e.DELETE("/api/account", apiDeleteAccountHandler)

	e.GET("/api/health", apiHealthHandler)

	port := getEnv("TASTEMATCH_PORT", "3000")
	e.Logger.Infof("starting tastematch server on :%s ...", port)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%s", port)))
}
