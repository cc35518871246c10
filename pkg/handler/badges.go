package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

type badgeRequest struct {
	ID          string       `json:"id"`
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	Active      *bool        `json:"active"`
	Rules       rule.RuleSet `json:"rules"`
}

func (r badgeRequest) toBadge(id string) badge.Badge {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return badge.Badge{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Active:      active,
		Rules:       r.Rules,
	}
}

// CreateBadge adds a badge to the catalog. Rule types the engine does not
// know are rejected.
func (h *Handler) CreateBadge(c *gin.Context) {
	var req badgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	b := req.toBadge(id)
	if err := badge.Validate(b, h.deps.Registry.Known); err != nil {
		respondError(c, err)
		return
	}

	if err := h.deps.Badges.Create(c.Request.Context(), &b); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate()

	logrus.WithFields(logrus.Fields{
		"badge_id": b.ID,
		"rules":    b.Rules.Kinds(),
	}).Info("badge created")
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBadges(c *gin.Context) {
	badges, err := h.deps.Badges.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": badges})
}

func (h *Handler) GetBadge(c *gin.Context) {
	b, err := h.deps.Badges.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// UpdateBadge replaces a badge's definition.
func (h *Handler) UpdateBadge(c *gin.Context) {
	var req badgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	b := req.toBadge(c.Param("id"))
	if err := badge.Validate(b, h.deps.Registry.Known); err != nil {
		respondError(c, err)
		return
	}

	if err := h.deps.Badges.Update(c.Request.Context(), &b); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate()

	logrus.WithField("badge_id", b.ID).Info("badge updated")
	c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBadge(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Badges.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate()

	logrus.WithField("badge_id", id).Info("badge deleted")
	c.Status(http.StatusNoContent)
}

func (h *Handler) invalidate() {
	if h.deps.Cache != nil {
		h.deps.Cache.Invalidate()
	}
}
