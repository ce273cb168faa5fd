package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/models"
)

type templateRequest struct {
	Name        string            `json:"name"`
	Channel     models.Channel    `json:"channel" binding:"required,channel"`
	Category    models.Category   `json:"category" binding:"required,category"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content" binding:"required"`
	Variables   []models.Variable `json:"variables"`
	IsActive    *bool             `json:"isActive"`
	Description string            `json:"description"`
}

func (r templateRequest) toTemplate() models.Template {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return models.Template{
		Name:        r.Name,
		Channel:     r.Channel,
		Category:    r.Category,
		Subject:     r.Subject,
		Content:     r.Content,
		Variables:   r.Variables,
		IsActive:    active,
		Description: r.Description,
	}
}

func (h *Handler) ListTemplates(c *gin.Context) {
	f := models.TemplateFilter{
		Channel:  models.Channel(c.Query("channel")),
		Category: models.Category(c.Query("category")),
	}
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(c, errs.Validation("invalid active flag %q", v))
			return
		}
		f.Active = &b
	}
	h.listTemplates(c, f)
}

// WhatsAppTemplates handles GET /whatsapp/templates.
func (h *Handler) WhatsAppTemplates(c *gin.Context) {
	h.listTemplates(c, models.TemplateFilter{Channel: models.ChannelWhatsApp})
}

func (h *Handler) listTemplates(c *gin.Context, f models.TemplateFilter) {
	list, err := h.templates.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "templates": list})
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	t, err := h.templates.Create(c.Request.Context(), req.toTemplate())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "template": t})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	t, err := h.templates.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": t})
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	t, err := h.templates.Update(c.Request.Context(), c.Param("name"), req.toTemplate())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": t})
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Template deleted"})
}

func (h *Handler) DuplicateTemplate(c *gin.Context) {
	var req struct {
		NewName string `json:"newName"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	t, err := h.templates.Duplicate(c.Request.Context(), c.Param("name"), req.NewName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "template": t})
}

func (h *Handler) ToggleTemplate(c *gin.Context) {
	t, err := h.templates.Toggle(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": t})
}

func (h *Handler) PreviewTemplate(c *gin.Context) {
	var req struct {
		Variables map[string]string `json:"variables"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	p, err := h.templates.Preview(c.Request.Context(), c.Param("name"), req.Variables)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preview": p})
}
