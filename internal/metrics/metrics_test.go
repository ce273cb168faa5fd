package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/models"
)

func TestSink_Publish(t *testing.T) {
	s := New(prometheus.NewRegistry())
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, models.Event{Type: models.EventCreated, Channel: models.ChannelEmail}))
	require.NoError(t, s.Publish(ctx, models.Event{
		Type:     models.EventFailed,
		Channel:  models.ChannelEmail,
		Status:   models.StatusFailed,
		Duration: 120 * time.Millisecond,
		Deliveries: []models.Delivery{
			{Recipient: "a@b.com", Outcome: models.OutcomeSent},
			{Recipient: "c@d.com", Outcome: models.OutcomeFailed},
		},
	}))
	require.NoError(t, s.Publish(ctx, models.Event{Type: models.EventRetried, Channel: models.ChannelEmail}))
	require.NoError(t, s.Publish(ctx, models.Event{
		Type:       models.EventCompleted,
		Channel:    models.ChannelEmail,
		Status:     models.StatusSent,
		Deliveries: []models.Delivery{{Recipient: "c@d.com", Outcome: models.OutcomeSent}},
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.dispatches.WithLabelValues("email", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.dispatches.WithLabelValues("email", "sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.recipients.WithLabelValues("email", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.recipients.WithLabelValues("email", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.retries.WithLabelValues("email")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.duration))
}

func TestSink_Handler(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Publish(context.Background(), models.Event{Type: models.EventRetried, Channel: models.ChannelSMS}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `notification_retries_total{channel="sms"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
