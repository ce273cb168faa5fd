package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"notification-dispatch/internal/cost"
	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/export"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification"
	"notification-dispatch/internal/providers"
	"notification-dispatch/internal/templates"
)

type Handler struct {
	dispatcher *notification.Dispatcher
	tracker    *notification.Tracker
	templates  *templates.Service
	estimator  *cost.Estimator
	hub        *providers.Hub
	logger     *logging.Logger
}

func NewHandler(dispatcher *notification.Dispatcher, tracker *notification.Tracker, tpl *templates.Service, estimator *cost.Estimator, hub *providers.Hub, logger *logging.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		tracker:    tracker,
		templates:  tpl,
		estimator:  estimator,
		hub:        hub,
		logger:     logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SendNotification handles POST /notifications/send.
func (h *Handler) SendNotification(c *gin.Context) {
	h.send(c, "")
}

// SendOnChannel returns a handler that sends with the channel fixed.
func (h *Handler) SendOnChannel(ch models.Channel) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.send(c, ch)
	}
}

func (h *Handler) send(c *gin.Context, ch models.Channel) {
	var payload models.SendPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.badRequest(c, err)
		return
	}
	if ch != "" {
		payload.Channel = ch
	}
	req, err := payload.ToRequest()
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.dispatcher.Send(c.Request.Context(), req)
	if err != nil {
		h.failWith(c, err, result)
		return
	}
	status := http.StatusOK
	if result.Status == models.StatusScheduled {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"success": true, "data": result})
}

type estimateRequest struct {
	Channel        models.Channel `json:"channel" binding:"required,channel"`
	Recipients     []string       `json:"recipients"`
	RecipientCount int            `json:"recipientCount"`
	Message        string         `json:"message"`
	MessageLength  int            `json:"messageLength"`
}

type estimateResponse struct {
	Channel        models.Channel  `json:"channel"`
	RecipientCount int             `json:"recipientCount"`
	MessageLength  int             `json:"messageLength"`
	Segments       int             `json:"segments"`
	Cost           decimal.Decimal `json:"cost"`
}

// EstimateCost handles POST /notifications/estimate.
func (h *Handler) EstimateCost(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	count := req.RecipientCount
	if len(req.Recipients) > 0 {
		count = len(req.Recipients)
	}
	length := req.MessageLength
	if req.Message != "" {
		length = utf8.RuneCountInString(req.Message)
	}
	resp := estimateResponse{
		Channel:        req.Channel,
		RecipientCount: count,
		MessageLength:  length,
		Cost:           h.estimator.Estimate(req.Channel, count, length),
	}
	if req.Channel.IsPhone() {
		resp.Segments = cost.Segments(length)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := parsePage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.tracker.Query(c.Request.Context(), f, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}

// NotificationStats handles GET /notifications/stats.
func (h *Handler) NotificationStats(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.tracker.Stats(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// ExportNotifications handles GET /notifications/export.
func (h *Handler) ExportNotifications(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := h.tracker.Export(c.Request.Context(), f, &buf, c.DefaultQuery("format", "csv")); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) GetNotification(c *gin.Context) {
	n, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": n})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	if err := h.tracker.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification deleted"})
}

func (h *Handler) RetryNotification(c *gin.Context) {
	result, err := h.tracker.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		if result.NotificationID != "" {
			h.failWith(c, err, result)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (h *Handler) CancelNotification(c *gin.Context) {
	n, err := h.tracker.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": n})
}

type idsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *Handler) RetryBulk(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	results := h.tracker.RetryBulk(c.Request.Context(), req.IDs)
	failed := 0
	for _, r := range results {
		if r.Kind != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": results, "failed": failed})
}

func (h *Handler) DeleteBulk(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	n, err := h.tracker.DeleteBulk(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

// WebSocket handles GET /ws?user_id= for the web channel.
func (h *Handler) WebSocket(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		h.fail(c, errs.Validation("user_id is required"))
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		h.logger.Warnf("WebSocket upgrade failed for user %s: %v", userID, err)
	}
}

func parseFilter(c *gin.Context) (models.NotificationFilter, error) {
	f := models.NotificationFilter{
		Type:     models.Channel(c.Query("type")),
		Status:   models.Status(c.Query("status")),
		Priority: models.Priority(c.Query("priority")),
		Search:   c.Query("search"),
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, errs.Validation("unknown type %q", f.Type)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, errs.Validation("unknown status %q", f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return f, errs.Validation("unknown priority %q", f.Priority)
	}
	from, to, err := parseRange(c)
	if err != nil {
		return f, err
	}
	f.From, f.To = from, to
	return f, nil
}

func parsePage(c *gin.Context) (models.Page, error) {
	var p models.Page
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errs.Validation("invalid page %q", v)
		}
		p.Page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errs.Validation("invalid limit %q", v)
		}
		p.Limit = n
	}
	return p.Normalize(), nil
}

func parseRange(c *gin.Context) (from, to *time.Time, err error) {
	if v := c.Query("from"); v != "" {
		t, err := parseTime(v, false)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := parseTime(v, true)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

// parseTime accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper bound
// covers the whole day.
func parseTime(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errs.Validation("invalid date %q: want RFC3339 or YYYY-MM-DD", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
