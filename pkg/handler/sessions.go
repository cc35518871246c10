package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
)

type createSessionRequest struct {
	ChallengeID string                 `json:"challengeId" binding:"required"`
	OccurredAt  time.Time              `json:"occurredAt"`
	Calories    float64                `json:"calories" binding:"gte=0"`
	Stats       map[string]interface{} `json:"stats"`
}

// CreateSession records a workout session. Badge evaluation runs after the
// response, so the body never reflects newly granted badges.
func (h *Handler) CreateSession(c *gin.Context) {
	userID := c.Param("userId")
	ctx := c.Request.Context()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.deps.Users.GetUser(ctx, userID); err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.deps.Recorder.Record(ctx, activity.Record{
		UserID:      userID,
		ChallengeID: req.ChallengeID,
		OccurredAt:  req.OccurredAt,
		Calories:    req.Calories,
		Stats:       req.Stats,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// ListSessions returns a user's sessions, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	records, err := h.deps.Recorder.List(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": records})
}
