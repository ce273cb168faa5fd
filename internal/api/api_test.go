package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/cost"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/memstore"
	"notification-dispatch/internal/metrics"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification"
	"notification-dispatch/internal/providers"
	"notification-dispatch/internal/recipient"
	"notification-dispatch/internal/templates"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// okAdapter reports every recipient as sent.
type okAdapter struct {
	ch models.Channel
}

func (a okAdapter) Channel() models.Channel { return a.ch }

func (a okAdapter) Transmit(ctx context.Context, msg providers.Message) []providers.Outcome {
	out := make([]providers.Outcome, len(msg.Recipients))
	for i, r := range msg.Recipients {
		out[i] = providers.Outcome{Recipient: r, Status: models.OutcomeSent}
	}
	return out
}

type server struct {
	router *gin.Engine
	store  *memstore.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := logging.NewNop()
	var cfg config.Config
	cfg.API.BasePath = "/api/v0"

	st := memstore.New()
	tpl := templates.NewService(st, logger)
	validator, err := recipient.NewValidator("")
	require.NoError(t, err)
	estimator, err := cost.NewEstimator(config.Rates{
		EmailBase:       "0.001",
		EmailLengthRate: "0.0005",
		WhatsAppBase:    "0.05",
		WhatsAppLong:    "0.08",
		SMSBase:         "0.03",
		SMSLong:         "0.06",
	})
	require.NoError(t, err)

	// SMS stays unconfigured.
	adapters := providers.Registry{}
	adapters.Register(okAdapter{ch: models.ChannelEmail})
	adapters.Register(okAdapter{ch: models.ChannelWhatsApp})
	adapters.Register(okAdapter{ch: models.ChannelWeb})

	hub := providers.NewHub(logger)
	t.Cleanup(hub.Close)

	dispatcher := notification.NewDispatcher(st, tpl, adapters, validator, logger, cfg)
	tracker := notification.NewTracker(st, dispatcher, logger)
	h := NewHandler(dispatcher, tracker, tpl, estimator, hub, logger)
	sink := metrics.New(nil)
	return &server{router: NewRouter(h, logger, cfg, sink.Handler()), store: st}
}

func (s *server) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "missing data in %v", body)
	return d
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSendNotification(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v0/notifications/send", map[string]interface{}{
		"channel":    "email",
		"recipients": []string{"a@b.com", "bad"},
		"subject":    "Hello",
		"message":    "World",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	d := data(t, body)
	assert.Equal(t, "sent", d["status"])
	assert.Equal(t, []interface{}{"a@b.com"}, d["accepted"])
	rejected := d["rejected"].([]interface{})
	require.Len(t, rejected, 1)
	assert.Equal(t, "bad", rejected[0].(map[string]interface{})["recipient"])

	id := d["notificationId"].(string)
	rec, body = s.do(t, http.MethodGet, "/api/v0/notifications/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	n := data(t, body)
	assert.Equal(t, "a@b.com", n["recipient"])
	assert.Equal(t, "sent", n["status"])
}

func TestSendNotification_Errors(t *testing.T) {
	s := newServer(t)
	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"malformed json", "/api/v0/notifications/send", `{"channel":`, http.StatusBadRequest, "validation_error"},
		{"bad priority", "/api/v0/notifications/send", map[string]interface{}{"channel": "web", "recipient": "u1", "message": "hi", "priority": "critical"}, http.StatusBadRequest, "validation_error"},
		{"both contents", "/api/v0/notifications/send", map[string]interface{}{"channel": "web", "recipient": "u1", "message": "hi", "templateName": "t"}, http.StatusBadRequest, "validation_error"},
		{"no valid recipients", "/api/v0/notifications/send", map[string]interface{}{"channel": "email", "recipient": "nope", "subject": "s", "message": "hi"}, http.StatusBadRequest, "no_valid_recipients"},
		{"unknown template", "/api/v0/notifications/send", map[string]interface{}{"channel": "web", "recipient": "u1", "templateName": "ghost"}, http.StatusNotFound, "template_not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.kind, body["error"])
		})
	}
}

func TestSendOnChannel_TransportFailure(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v0/sms/send", map[string]interface{}{
		"channel":   "email",
		"recipient": "05551234567",
		"message":   "code 1234",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	assert.Equal(t, "transport_failure", body["error"])
	d := data(t, body)
	assert.Equal(t, "failed", d["status"])
	id := d["notificationId"].(string)

	n, err := s.store.GetNotification(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, n.Type)
	assert.Equal(t, models.StatusFailed, n.Status)
}

func TestScheduleAndCancel(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v0/whatsapp/send", map[string]interface{}{
		"recipient":   "05551234567",
		"message":     "Reminder",
		"scheduledAt": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	d := data(t, body)
	assert.Equal(t, "scheduled", d["status"])
	id := d["notificationId"].(string)

	rec, _ = s.do(t, http.MethodPost, "/api/v0/notifications/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/v0/notifications/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", data(t, body)["status"])

	rec, body = s.do(t, http.MethodPost, "/api/v0/notifications/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", body["error"])
}

func seed(t *testing.T, s *server, n models.Notification) {
	t.Helper()
	require.NoError(t, s.store.CreateNotification(context.Background(), n))
}

func TestListStatsAndExport(t *testing.T) {
	s := newServer(t)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	seed(t, s, models.Notification{ID: "n-1", Type: models.ChannelEmail, Recipients: []string{"a@b.com"}, Subject: "Hi", Message: "one", Status: models.StatusSent, CreatedAt: base, Version: 1})
	seed(t, s, models.Notification{ID: "n-2", Type: models.ChannelSMS, Recipients: []string{"05551234567"}, Message: "two", Status: models.StatusFailed, Error: "boom", CreatedAt: base.Add(time.Hour), Version: 1})
	seed(t, s, models.Notification{ID: "n-3", Type: models.ChannelEmail, Recipients: []string{"c@d.com"}, Subject: "Hi", Message: "three", Status: models.StatusDelivered, CreatedAt: base.AddDate(0, 0, 1), Version: 1})

	rec, body := s.do(t, http.MethodGet, "/api/v0/notifications?type=email&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	assert.Equal(t, float64(2), d["total"])
	assert.Equal(t, float64(2), d["totalPages"])
	list := d["notifications"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "n-3", list[0].(map[string]interface{})["id"])

	rec, body = s.do(t, http.MethodGet, "/api/v0/notifications?to=2026-05-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), data(t, body)["total"])

	for _, q := range []string{"status=lost", "type=fax", "priority=max", "page=x", "from=yesterday"} {
		rec, _ = s.do(t, http.MethodGet, "/api/v0/notifications?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec, body = s.do(t, http.MethodGet, "/api/v0/notifications/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := data(t, body)
	assert.Equal(t, float64(3), stats["total"])
	assert.Equal(t, float64(1), stats["failed"])
	assert.Equal(t, float64(1), stats["delivered"])

	rec, _ = s.do(t, http.MethodGet, "/api/v0/notifications/export?type=email", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="notifications-`)
	assert.Contains(t, rec.Body.String(), "n-1,email")
	assert.NotContains(t, rec.Body.String(), "n-2")

	rec, _ = s.do(t, http.MethodGet, "/api/v0/notifications/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryAndDelete(t *testing.T) {
	s := newServer(t)
	seed(t, s, models.Notification{ID: "n-1", Type: models.ChannelEmail, Recipients: []string{"a@b.com"}, Subject: "Hi", Message: "one", Status: models.StatusFailed, Error: "boom", CreatedAt: time.Now(), Version: 1})
	seed(t, s, models.Notification{ID: "n-2", Type: models.ChannelEmail, Recipients: []string{"c@d.com"}, Subject: "Hi", Message: "two", Status: models.StatusSent, CreatedAt: time.Now(), Version: 1})

	rec, body := s.do(t, http.MethodPost, "/api/v0/notifications/n-1/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sent", data(t, body)["status"])

	rec, body = s.do(t, http.MethodPost, "/api/v0/notifications/retry-bulk", map[string]interface{}{"ids": []string{"n-1", "missing"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["failed"])
	results := body["data"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "n-1", results[0].(map[string]interface{})["id"])
	assert.Equal(t, "not_found", results[1].(map[string]interface{})["error"])

	rec, _ = s.do(t, http.MethodPost, "/api/v0/notifications/retry-bulk", map[string]interface{}{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/api/v0/notifications/n-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body = s.do(t, http.MethodDelete, "/api/v0/notifications/n-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])

	rec, body = s.do(t, http.MethodPost, "/api/v0/notifications/delete-bulk", map[string]interface{}{"ids": []string{"n-1", "n-2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["deleted"])
}

func TestEstimateCost(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v0/notifications/estimate", map[string]interface{}{
		"channel":    "sms",
		"recipients": []string{"05551234567", "05557654321"},
		"message":    "short",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := data(t, body)
	assert.Equal(t, float64(2), d["recipientCount"])
	assert.Equal(t, float64(5), d["messageLength"])
	assert.Equal(t, float64(1), d["segments"])
	assert.Equal(t, "0.06", d["cost"])

	rec, _ = s.do(t, http.MethodPost, "/api/v0/notifications/estimate", map[string]interface{}{"channel": "pigeon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplateLifecycle(t *testing.T) {
	s := newServer(t)
	base := "/api/v0/templates"

	rec, body := s.do(t, http.MethodPost, base, map[string]interface{}{
		"name":     "welcome",
		"channel":  "email",
		"category": "user",
		"subject":  "Hi {{name}}",
		"content":  "Welcome {{name}} to {{product}}",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tpl := body["template"].(map[string]interface{})
	assert.Equal(t, true, tpl["isActive"])
	assert.Len(t, tpl["variables"], 2)

	rec, body = s.do(t, http.MethodPost, base, map[string]interface{}{"name": "welcome", "channel": "email", "category": "user", "content": "dup"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", body["error"])

	rec, _ = s.do(t, http.MethodPost, base, map[string]interface{}{"name": "x", "channel": "email", "category": "gossip", "content": "c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPost, base+"/welcome/preview", map[string]interface{}{"variables": map[string]string{"name": "Ada"}})
	require.Equal(t, http.StatusOK, rec.Code)
	preview := body["preview"].(map[string]interface{})
	assert.Equal(t, "Hi Ada", preview["subject"])
	assert.Equal(t, "Welcome Ada to {{product}}", preview["content"])
	assert.Equal(t, []interface{}{"product"}, preview["unresolved"])

	rec, body = s.do(t, http.MethodPost, base+"/welcome/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dup := body["template"].(map[string]interface{})
	assert.Equal(t, "welcome_copy", dup["name"])
	assert.Equal(t, false, dup["isActive"])

	rec, body = s.do(t, http.MethodGet, base+"?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["templates"], 1)

	rec, _ = s.do(t, http.MethodGet, base+"?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPost, base+"/welcome/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["template"].(map[string]interface{})["isActive"])

	rec, body = s.do(t, http.MethodPost, "/api/v0/notifications/send", map[string]interface{}{"channel": "email", "recipient": "a@b.com", "templateName": "welcome"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "template_inactive", body["error"])

	rec, body = s.do(t, http.MethodPut, base+"/welcome", map[string]interface{}{"channel": "email", "category": "marketing", "subject": "New", "content": "Body", "isActive": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := body["template"].(map[string]interface{})
	assert.Equal(t, "welcome", updated["name"])
	assert.Equal(t, "marketing", updated["category"])

	rec, _ = s.do(t, http.MethodDelete, base+"/welcome", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body = s.do(t, http.MethodGet, base+"/welcome", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "template_not_found", body["error"])
}

func TestWhatsAppTemplates(t *testing.T) {
	s := newServer(t)
	for _, req := range []map[string]interface{}{
		{"name": "wa_order", "channel": "whatsapp", "category": "order", "content": "Order {{id}}"},
		{"name": "mail_order", "channel": "email", "category": "order", "subject": "s", "content": "Order {{id}}"},
	} {
		rec, _ := s.do(t, http.MethodPost, "/api/v0/templates", req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, body := s.do(t, http.MethodGet, "/api/v0/whatsapp/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["templates"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "wa_order", list[0].(map[string]interface{})["name"])
}

func TestWebSocketRequiresUser(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(t, http.MethodGet, "/api/v0/ws", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", body["error"])
}

func TestRequestID(t *testing.T) {
	s := newServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
