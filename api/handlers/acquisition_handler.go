package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/app"
	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

// AcquisitionService starts and tracks acquisition sessions
type AcquisitionService interface {
	Start(ctx context.Context, req domain.AcquisitionRequest) (*app.Session, error)
	Cancel(id string) error
	Active() []app.SessionInfo
	History(filters map[string]interface{}) ([]*domain.Acquisition, error)
	Acquisition(id string) (*domain.Acquisition, error)
	Stats() (*domain.AcquisitionStats, error)
}

// AcquisitionHandler handles playlist acquisition requests
type AcquisitionHandler struct {
	service       AcquisitionService
	defaultFormat domain.MediaFormat
	keepAlive     time.Duration
	log           *logger.LoggerAdapter
}

// NewAcquisitionHandler creates a new acquisition handler
func NewAcquisitionHandler(service AcquisitionService, defaultFormat domain.MediaFormat, keepAlive time.Duration, log *logger.LoggerAdapter) *AcquisitionHandler {
	if defaultFormat == "" {
		defaultFormat = domain.FormatFLAC
	}
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	if log == nil {
		log = logger.NewNopAdapter()
	}
	return &AcquisitionHandler{
		service:       service,
		defaultFormat: defaultFormat,
		keepAlive:     keepAlive,
		log:           log,
	}
}

func (h *AcquisitionHandler) parseRequest(c *gin.Context) (domain.AcquisitionRequest, bool) {
	req, err := domain.NewAcquisitionRequest(c.Query("playlistId"), c.DefaultQuery("format", string(h.defaultFormat)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.AcquisitionRequest{}, false
	}
	return req, true
}

func startStatus(err error) int {
	if errors.Is(err, app.ErrShuttingDown) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Acquire handles GET /api/v1/playlists/acquire as a Server-Sent Events
// stream. Closing the connection cancels the session.
func (h *AcquisitionHandler) Acquire(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	session, err := h.service.Start(ctx, req)
	if err != nil {
		h.log.LogError("Failed to start acquisition", zap.String("playlist_id", req.PlaylistID), zap.Error(err))
		c.JSON(startStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Session-ID", session.ID())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	events := session.Events()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{Data: ev})
			if c.IsAborted() {
				h.log.LogError("Failed to write event", zap.String("session_id", session.ID()), zap.String("errors", c.Errors.String()))
				return false
			}
			return true
		case <-ticker.C:
			// comment frames are not part of sse.Event
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

// AcquireWebSocket handles GET /api/v1/playlists/acquire/ws. Each event
// is one text frame; a closed socket cancels the session.
func (h *AcquisitionHandler) AcquireWebSocket(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	// the request context is not cancelled for hijacked connections
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session, err := h.service.Start(ctx, req)
	if err != nil {
		h.log.LogError("Failed to start acquisition", zap.String("playlist_id", req.PlaylistID), zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ListAcquisitions handles GET /api/v1/acquisitions
func (h *AcquisitionHandler) ListAcquisitions(c *gin.Context) {
	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if playlistID := c.Query("playlist_id"); playlistID != "" {
		filters["playlist_id"] = playlistID
	}
	if format := c.Query("format"); format != "" {
		filters["format"] = format
	}

	records, err := h.service.History(filters)
	if err != nil {
		h.log.LogError("Failed to list acquisitions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetAcquisition handles GET /api/v1/acquisitions/:id
func (h *AcquisitionHandler) GetAcquisition(c *gin.Context) {
	record, err := h.service.Acquisition(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "acquisition not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}

// GetStats handles GET /api/v1/acquisitions/stats
func (h *AcquisitionHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats()
	if err != nil {
		h.log.LogError("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListActive handles GET /api/v1/acquisitions/active
func (h *AcquisitionHandler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Active())
}

// CancelAcquisition handles POST /api/v1/acquisitions/:id/cancel
func (h *AcquisitionHandler) CancelAcquisition(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "acquisition cancelled"})
}
