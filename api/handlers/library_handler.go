package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/app"
	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

// Rescanner registers media files that are on disk but not recorded
type Rescanner interface {
	Rescan(ctx context.Context) (app.RescanResult, error)
}

// LibraryHandler serves the library listings and media files
type LibraryHandler struct {
	store   domain.LibraryStore
	scanner Rescanner
	lib     domain.LibraryConfig
	log     *logger.LoggerAdapter
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(store domain.LibraryStore, scanner Rescanner, lib domain.LibraryConfig, log *logger.LoggerAdapter) *LibraryHandler {
	if log == nil {
		log = logger.NewNopAdapter()
	}
	return &LibraryHandler{store: store, scanner: scanner, lib: lib, log: log}
}

func (h *LibraryHandler) respond(c *gin.Context, what string, v interface{}, err error) {
	if err != nil {
		h.log.LogError("Failed to list "+what, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

// ListSongs handles GET /api/v1/songs
func (h *LibraryHandler) ListSongs(c *gin.Context) {
	songs, err := h.store.ListSongs(c.Request.Context())
	h.respond(c, "songs", songs, err)
}

// ListAlbums handles GET /api/v1/albums
func (h *LibraryHandler) ListAlbums(c *gin.Context) {
	albums, err := h.store.ListAlbums(c.Request.Context())
	h.respond(c, "albums", albums, err)
}

// ListArtists handles GET /api/v1/artists
func (h *LibraryHandler) ListArtists(c *gin.Context) {
	artists, err := h.store.ListArtists(c.Request.Context())
	h.respond(c, "artists", artists, err)
}

// ListPlaylists handles GET /api/v1/playlists
func (h *LibraryHandler) ListPlaylists(c *gin.Context) {
	playlists, err := h.store.ListPlaylists(c.Request.Context())
	h.respond(c, "playlists", playlists, err)
}

// RescanResponse is the result of a rescan with the refreshed songs
type RescanResponse struct {
	app.RescanResult
	Songs []domain.Song `json:"songs"`
}

// Rescan handles POST /api/v1/library/rescan
func (h *LibraryHandler) Rescan(c *gin.Context) {
	ctx := c.Request.Context()

	result, err := h.scanner.Rescan(ctx)
	if err != nil {
		h.log.LogError("Library rescan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	songs, err := h.store.ListSongs(ctx)
	h.respond(c, "songs", RescanResponse{RescanResult: result, Songs: songs}, err)
}

// ServeMedia handles GET /songs/*filepath for media files and covers.
// Hidden entries such as the staging directory are never served.
func (h *LibraryHandler) ServeMedia(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	dir, name := h.lib.MediaDir(), rel
	if cover := strings.TrimPrefix(rel, ".cover/"); cover != rel {
		dir, name = h.lib.CoverDir(), cover
	}

	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.File(filepath.Join(dir, name))
}
