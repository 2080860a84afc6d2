package http

import (
	"net/http"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	apperrors "livecast/pkg/errors"

	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	lifecycle ports.Lifecycle
}

func NewStreamHandler(lifecycle ports.Lifecycle) *StreamHandler {
	return &StreamHandler{
		lifecycle: lifecycle,
	}
}

func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/streams", h.CreateStream)
	api.GET("/streams", h.ListStreams)
	api.GET("/streams/:id", h.GetStream)
	api.PATCH("/streams/:id", h.UpdateStream)
	api.DELETE("/streams/:id", h.DeleteStream)
	api.POST("/streams/:id/start", h.StartStream)
	api.POST("/streams/:id/end", h.EndStream)
	api.POST("/streams/:id/join", h.JoinStream)
	api.POST("/streams/:id/leave", h.LeaveStream)
}

type createStreamRequest struct {
	Title            string          `json:"title" binding:"required,min=1,max=200"`
	Visibility       string          `json:"visibility" binding:"omitempty,oneof=public unlisted private premium"`
	Password         string          `json:"password"`
	AllowCoHosts     bool            `json:"allow_co_hosts"`
	CoHosts          []string        `json:"co_hosts"`
	MaxViewers       int             `json:"max_viewers" binding:"min=0,max=1000000"`
	EnableChat       bool            `json:"enable_chat"`
	EnableRecording  bool            `json:"enable_recording"`
	TicketPriceCents int             `json:"ticket_price_cents" binding:"min=0"`
	ScheduledStart   *time.Time      `json:"scheduled_start"`
	ScheduledEnd     *time.Time      `json:"scheduled_end"`
}

func (h *StreamHandler) CreateStream(c *gin.Context) {
	var req createStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	coHosts := make([]domain.UserID, 0, len(req.CoHosts))
	for _, id := range req.CoHosts {
		coHosts = append(coHosts, domain.UserID(id))
	}

	stream, err := h.lifecycle.Create(c.Request.Context(), callerID, domain.StreamSpec{
		Title:            req.Title,
		Visibility:       domain.Visibility(req.Visibility),
		Password:         req.Password,
		AllowCoHosts:     req.AllowCoHosts,
		CoHosts:          coHosts,
		MaxViewers:       req.MaxViewers,
		EnableChat:       req.EnableChat,
		EnableRecording:  req.EnableRecording,
		TicketPriceCents: req.TicketPriceCents,
		ScheduledStart:   req.ScheduledStart,
		ScheduledEnd:     req.ScheduledEnd,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"stream": streamView(stream)})
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	stream, err := h.lifecycle.Get(c.Request.Context(), domain.StreamID(c.Param("id")))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stream": streamView(stream)})
}

func (h *StreamHandler) ListStreams(c *gin.Context) {
	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	streams, err := h.lifecycle.ListByOwner(c.Request.Context(), callerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]gin.H, 0, len(streams))
	for _, stream := range streams {
		views = append(views, streamView(stream))
	}
	c.JSON(http.StatusOK, gin.H{"streams": views})
}

func (h *StreamHandler) StartStream(c *gin.Context) {
	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	stream, err := h.lifecycle.Start(c.Request.Context(), domain.StreamID(c.Param("id")), callerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stream": streamView(stream)})
}

func (h *StreamHandler) EndStream(c *gin.Context) {
	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	stream, err := h.lifecycle.End(c.Request.Context(), domain.StreamID(c.Param("id")), callerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stream": streamView(stream)})
}

type updateStreamRequest struct {
	Title            *string     `json:"title" binding:"omitempty,min=1,max=200"`
	Visibility       *string     `json:"visibility" binding:"omitempty,oneof=public unlisted private premium"`
	Password         *string     `json:"password"`
	AllowCoHosts     *bool       `json:"allow_co_hosts"`
	CoHosts          *[]string   `json:"co_hosts"`
	MaxViewers       *int        `json:"max_viewers" binding:"omitempty,min=0,max=1000000"`
	EnableChat       *bool       `json:"enable_chat"`
	EnableRecording  *bool       `json:"enable_recording"`
	TicketPriceCents *int        `json:"ticket_price_cents" binding:"omitempty,min=0"`
	ScheduledStart   *time.Time  `json:"scheduled_start"`
	ScheduledEnd     *time.Time  `json:"scheduled_end"`
}

func (h *StreamHandler) UpdateStream(c *gin.Context) {
	var req updateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	patch := domain.StreamPatch{
		Title:            req.Title,
		Password:         req.Password,
		AllowCoHosts:     req.AllowCoHosts,
		MaxViewers:       req.MaxViewers,
		EnableChat:       req.EnableChat,
		EnableRecording:  req.EnableRecording,
		TicketPriceCents: req.TicketPriceCents,
		ScheduledStart:   req.ScheduledStart,
		ScheduledEnd:     req.ScheduledEnd,
	}
	if req.Visibility != nil {
		visibility := domain.Visibility(*req.Visibility)
		patch.Visibility = &visibility
	}
	if req.CoHosts != nil {
		coHosts := make([]domain.UserID, 0, len(*req.CoHosts))
		for _, id := range *req.CoHosts {
			coHosts = append(coHosts, domain.UserID(id))
		}
		patch.CoHosts = &coHosts
	}

	stream, err := h.lifecycle.Update(c.Request.Context(), domain.StreamID(c.Param("id")), callerID, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stream": streamView(stream)})
}

func (h *StreamHandler) DeleteStream(c *gin.Context) {
	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Delete(c.Request.Context(), domain.StreamID(c.Param("id")), callerID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type joinStreamRequest struct {
	Password      string `json:"password"`
	AsBroadcaster bool   `json:"as_broadcaster"`
}

func (h *StreamHandler) JoinStream(c *gin.Context) {
	var req joinStreamRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, apperrors.NewInvalidInputError(err.Error()))
			return
		}
	}

	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	grant, err := h.lifecycle.Join(c.Request.Context(), domain.StreamID(c.Param("id")), callerID, domain.JoinRequest{
		Password:      req.Password,
		AsBroadcaster: req.AsBroadcaster,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream":    streamView(grant.Stream),
		"uid":       grant.UID,
		"role":      grant.Role,
		"rtc_token": grant.RTCToken,
		"rtm_token": grant.RTMToken,
	})
}

func (h *StreamHandler) LeaveStream(c *gin.Context) {
	callerID, ok := callerFromContext(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Leave(c.Request.Context(), domain.StreamID(c.Param("id")), callerID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// streamView shapes a stream for API responses. The password hash and
// vendor recording handles never leave the service.
func streamView(stream *domain.Stream) gin.H {
	return gin.H{
		"id":               stream.ID,
		"channel_name":     stream.ChannelName,
		"owner_id":         stream.OwnerID,
		"title":            stream.Title,
		"visibility":       stream.Visibility,
		"password_protected": stream.PasswordHash != "",
		"allow_co_hosts":   stream.AllowCoHosts,
		"max_viewers":      stream.MaxViewers,
		"current_viewers":  stream.CurrentViewers,
		"enable_chat":      stream.EnableChat,
		"enable_recording": stream.EnableRecording,
		"recording_status": stream.RecordingStatus,
		"recording_files":  stream.RecordingFiles,
		"scheduled_start":  stream.ScheduledStart,
		"scheduled_end":    stream.ScheduledEnd,
		"actual_start":     stream.ActualStart,
		"actual_end":       stream.ActualEnd,
		"status":           stream.Status,
		"created_at":       stream.CreatedAt,
	}
}

func callerFromContext(c *gin.Context) (domain.UserID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		_ = c.Error(apperrors.NewUnauthorizedError("authentication required"))
		c.Abort()
		return "", false
	}
	userID, ok := userIDVal.(domain.UserID)
	if !ok {
		_ = c.Error(apperrors.NewUnauthorizedError("invalid user context"))
		c.Abort()
		return "", false
	}
	return userID, true
}

// respondError hands the error to the error handler middleware, which
// owns the mapping from error kinds to HTTP responses.
func (h *StreamHandler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
