package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/relay/service"
	"github.com/cb3tech/moshcast-live/pkg/log"
	"github.com/cb3tech/moshcast-live/pkg/response"
)

// HTTPHandler serves session discovery for clients deciding what to
// tune in to.
type HTTPHandler struct {
	service service.StreamService
}

func NewHTTPHandler(svc service.StreamService) *HTTPHandler {
	return &HTTPHandler{service: svc}
}

// ActiveStreamsResponse lists everything currently live.
type ActiveStreamsResponse struct {
	Streams []*domain.Snapshot `json:"streams"`
	Total   int                `json:"total"`
}

// GetActiveStreams handles GET /api/streams/active.
func (h *HTTPHandler) GetActiveStreams(c *gin.Context) {
	ctx := c.Request.Context()

	streams, err := h.service.ActiveSessions(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list active sessions")
		response.InternalError(c, "failed to list active streams")
		return
	}

	response.Success(c, ActiveStreamsResponse{
		Streams: streams,
		Total:   len(streams),
	})
}

// HealthCheck handles GET /health.
func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	api := r.Group("/api")
	{
		api.GET("/streams/active", h.GetActiveStreams)
	}
}
