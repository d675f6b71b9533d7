package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Angus-Paillaugue/music-player/api/handlers"
	"github.com/Angus-Paillaugue/music-player/api/middleware"
	"github.com/Angus-Paillaugue/music-player/internal/app"
	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	cfg *domain.Config,
	manager *app.AcquisitionManager,
	scanner *app.LibraryScanner,
	store domain.LibraryStore,
	logAdapter *logger.LoggerAdapter,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if logAdapter == nil {
		logAdapter = logger.NewNopAdapter()
	}

	router := gin.New()

	router.Use(middleware.Logger(logAdapter))
	router.Use(middleware.Recovery(logAdapter))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(manager)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	libraryHandler := handlers.NewLibraryHandler(store, scanner, cfg.Library, logAdapter)
	router.GET("/songs/*filepath", libraryHandler.ServeMedia)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		acquisitionHandler := handlers.NewAcquisitionHandler(
			manager,
			cfg.Downloader.DefaultFormat,
			cfg.Stream.KeepAliveInterval,
			logAdapter,
		)
		playlists := v1.Group("/playlists")
		{
			playlists.GET("", libraryHandler.ListPlaylists)
			playlists.GET("/acquire", acquisitionHandler.Acquire)
			playlists.GET("/acquire/ws", acquisitionHandler.AcquireWebSocket)
		}

		acquisitions := v1.Group("/acquisitions")
		{
			acquisitions.GET("", acquisitionHandler.ListAcquisitions)
			acquisitions.GET("/active", acquisitionHandler.ListActive)
			acquisitions.GET("/stats", acquisitionHandler.GetStats)
			acquisitions.GET("/:id", acquisitionHandler.GetAcquisition)
			acquisitions.POST("/:id/cancel", acquisitionHandler.CancelAcquisition)
		}

		v1.GET("/songs", libraryHandler.ListSongs)
		v1.GET("/albums", libraryHandler.ListAlbums)
		v1.GET("/artists", libraryHandler.ListArtists)
		v1.POST("/library/rescan", libraryHandler.Rescan)

		// Log endpoints
		logHandler := handlers.NewLogHandler(cfg.Library.LogsDir())
		logWSHandler := handlers.NewLogWebSocketHandler(cfg.Library.LogsDir(), logAdapter)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
			logs.GET("/:category/ws", logWSHandler.HandleWebSocket)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
