package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

type createUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
}

// CreateUser registers a user with an empty badge set.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	u := user.User{ID: req.ID, Name: req.Name, Email: req.Email}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if err := user.Validate(u); err != nil {
		respondError(c, err)
		return
	}

	if err := h.deps.Users.CreateUser(c.Request.Context(), &u); err != nil {
		respondError(c, err)
		return
	}

	logrus.WithField("user_id", u.ID).Info("user created")
	c.JSON(http.StatusCreated, u)
}

// ListUserBadges returns the badges held by a user.
func (h *Handler) ListUserBadges(c *gin.Context) {
	userID := c.Param("userId")
	ctx := c.Request.Context()

	if _, err := h.deps.Users.GetUser(ctx, userID); err != nil {
		respondError(c, err)
		return
	}

	held, err := h.deps.Holdings.BadgesOf(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": userID, "badges": held})
}
