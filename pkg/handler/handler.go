package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Invalidator drops cached catalog snapshots after a badge write.
type Invalidator interface {
	Invalidate()
}

// Dependencies holds everything the HTTP handlers need
type Dependencies struct {
	Users    user.Store
	Badges   badge.Repository
	Holdings assignment.Reader
	Recorder *activity.Recorder
	Registry *rule.Registry

	// Optional
	Cache  Invalidator
	Health map[string]Pinger
}

// Handler serves the REST API.
type Handler struct {
	deps Dependencies
}

func New(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/users", h.CreateUser)
		api.GET("/users/:userId/badges", h.ListUserBadges)
		api.POST("/users/:userId/sessions", h.CreateSession)
		api.GET("/users/:userId/sessions", h.ListSessions)

		api.POST("/badges", h.CreateBadge)
		api.GET("/badges", h.ListBadges)
		api.GET("/badges/:id", h.GetBadge)
		api.PUT("/badges/:id", h.UpdateBadge)
		api.DELETE("/badges/:id", h.DeleteBadge)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, badge.ErrInvalidBadge),
		errors.Is(err, user.ErrInvalidUser),
		errors.Is(err, activity.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, badge.ErrBadgeNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, activity.ErrStoreUnavailable),
		errors.Is(err, badge.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": message})
}
