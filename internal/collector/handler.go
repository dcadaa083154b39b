package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier/internal/constants"
	"courier/pkg/errors"
	"courier/pkg/health"
	"courier/pkg/metrics"
	"courier/pkg/middleware"
	"courier/pkg/models"
	"courier/pkg/ratelimit"
	"courier/pkg/tracing"
)

const apiKeyContext = "api_key"

func (s *Server) registerRoutes(router *gin.Engine) {
	metrics.RegisterCollectorMetrics()

	if s.tracingService != "" {
		router.Use(tracing.GinMiddleware(s.tracingService))
	}
	router.Use(middleware.RecoveryMiddleware(s.logger))
	router.Use(middleware.LoggerMiddleware(s.logger))
	router.Use(middleware.RequestIDMiddleware())

	api := router.Group("/api/v2", s.countRequests, s.authenticate)
	if s.limiter != nil {
		api.Use(s.limiter.Middleware(ratelimit.APIKeyOrIP))
	}
	api.Use(s.forced, s.versionHeader, middleware.BodyMiddleware(s.cfg.MaxPayloadBytes))
	{
		api.POST("/events", s.SubmitEvents)
		api.POST("/events/by-ref/:ref/user-description", s.SubmitUserDescription)
		api.GET("/events/session/heartbeat", s.SubmitHeartbeat)
		api.GET("/projects/config", s.GetSettings)
	}

	inspect := router.Group("/_collector")
	{
		inspect.GET("/events", s.ListEvents)
		inspect.DELETE("/events", s.ResetEvents)
		inspect.GET("/settings", s.ShowSettings)
		inspect.PUT("/settings", s.PutSettings)
	}

	registry := health.NewCheckerRegistry()
	registry.Register(forcedStatusChecker{s})
	router.GET("/health", func(c *gin.Context) {
		h := registry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.StatusCode(err), errors.ToErrorResponse(err))
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()
	metrics.IncCollectorRequest(c.FullPath(), c.Writer.Status())
}

func (s *Server) authenticate(c *gin.Context) {
	key, ok := strings.CutPrefix(c.GetHeader(constants.HeaderAuthorization), "Bearer ")
	key = strings.TrimSpace(key)
	if !ok || !s.authorized(key) {
		s.logger.WarnwCtx(c.Request.Context(), "Rejected request with unknown API key", "path", c.Request.URL.Path)
		abortWithError(c, errors.ErrUnauthorized)
		return
	}
	c.Set(apiKeyContext, key)
	c.Next()
}

func (s *Server) forced(c *gin.Context) {
	status := int(s.forceStatus.Load())
	if status == 0 {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"message": http.StatusText(status)})
}

func (s *Server) versionHeader(c *gin.Context) {
	c.Header(constants.HeaderConfigVersion, strconv.Itoa(s.Settings().Version))
	c.Next()
}

// readBody reports false after answering the request when the body could
// not be read.
func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err == nil {
		return body, true
	}
	if middleware.IsBodyTooLarge(err) {
		abortWithError(c, errors.ErrPayloadTooLarge.WithDetail("max_bytes", s.cfg.MaxPayloadBytes))
		return nil, false
	}
	abortWithError(c, errors.ErrValidation.WithCause(err))
	return nil, false
}

func (s *Server) SubmitEvents(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var events []*models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		abortWithError(c, errors.ErrValidation.WithCause(err))
		return
	}
	for i, ev := range events {
		if err := models.ValidateEvent(ev); err != nil {
			abortWithError(c, errors.ErrValidation.WithCause(err).WithDetail("index", i))
			return
		}
	}

	s.addEvents(events)
	metrics.CollectorEventsReceived.Add(float64(len(events)))
	s.logger.DebugwCtx(c.Request.Context(), "Events received", "count", len(events))
	c.Status(http.StatusAccepted)
}

func (s *Server) SubmitUserDescription(c *gin.Context) {
	ref := c.Param("ref")
	if err := models.ValidateIdentifier("reference_id", ref); err != nil {
		abortWithError(c, errors.ErrValidation.WithCause(err))
		return
	}

	body, ok := s.readBody(c)
	if !ok {
		return
	}
	var desc models.UserDescription
	if err := json.Unmarshal(body, &desc); err != nil {
		abortWithError(c, errors.ErrValidation.WithCause(err))
		return
	}

	s.addDescription(Description{ReferenceID: ref, Description: desc})
	c.Status(http.StatusAccepted)
}

func (s *Server) SubmitHeartbeat(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		abortWithError(c, errors.ErrValidation.WithDetail("field", "id"))
		return
	}
	closeSession, _ := strconv.ParseBool(c.Query("close"))

	s.addHeartbeat(Heartbeat{ID: id, Close: closeSession, Received: s.now()})
	c.Status(http.StatusOK)
}

// GetSettings answers 304 when the caller already holds the current
// version.
func (s *Server) GetSettings(c *gin.Context) {
	version, err := strconv.Atoi(c.DefaultQuery("v", "0"))
	if err != nil {
		abortWithError(c, errors.ErrValidation.WithDetail("field", "v"))
		return
	}

	current := s.Settings()
	if version >= current.Version {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (s *Server) ListEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events":       s.Events(),
		"descriptions": s.Descriptions(),
		"heartbeats":   s.Heartbeats(),
	})
}

func (s *Server) ResetEvents(c *gin.Context) {
	s.Reset()
	c.Status(http.StatusNoContent)
}

func (s *Server) ShowSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Settings())
}

func (s *Server) PutSettings(c *gin.Context) {
	var settings map[string]string
	if err := c.ShouldBindJSON(&settings); err != nil {
		abortWithError(c, errors.ErrValidation.WithCause(err))
		return
	}
	updated := s.UpdateSettings(settings)
	s.logger.InfowCtx(c.Request.Context(), "Settings updated", "version", updated.Version)
	c.JSON(http.StatusOK, updated)
}

// forcedStatusChecker reports the collector as degraded while it is
// answering with a forced error status.
type forcedStatusChecker struct {
	s *Server
}

func (forcedStatusChecker) Name() string { return "collector" }

func (c forcedStatusChecker) Check(context.Context) error {
	if status := int(c.s.forceStatus.Load()); status >= http.StatusBadRequest {
		return health.Degraded(fmt.Errorf("forcing status %d", status))
	}
	return nil
}
