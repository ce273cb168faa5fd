package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

type fakeReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	reqs []models.SendRequest
	full bool
}

func (q *fakeQueue) Enqueue(req models.SendRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.reqs = append(q.reqs, req)
	return true
}

func (q *fakeQueue) Requests() []models.SendRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.SendRequest(nil), q.reqs...)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestDecode(t *testing.T) {
	req, err := Decode([]byte(`{"channel":"sms","recipient":"05551234567","message":"code 1234","priority":"high"}`))
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, req.Channel)
	assert.Equal(t, []string{"05551234567"}, req.Recipients)
	assert.Equal(t, models.PriorityHigh, req.Priority)
	assert.Equal(t, models.RawContent{Message: "code 1234"}, req.Content)

	req, err = Decode([]byte(`{"channel":"email","recipients":["a@b.com"],"templateName":"welcome","variables":{"name":"Ayşe"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.TemplateContent{Name: "welcome", Variables: map[string]string{"name": "Ayşe"}}, req.Content)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"bad json", `{"channel":`},
		{"unknown channel", `{"channel":"fax","recipient":"x","message":"hi"}`},
		{"no recipients", `{"channel":"web","message":"hi"}`},
		{"both contents", `{"channel":"web","recipient":"u1","message":"hi","templateName":"t"}`},
		{"no content", `{"channel":"web","recipient":"u1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.value))
			assert.Error(t, err)
		})
	}

	_, err := Decode([]byte(`{"channel":"fax","recipient":"x","message":"hi"}`))
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestConsumer_EnqueuesValidMessages(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	queue := &fakeQueue{}
	c := NewConsumerWithReader(reader, queue, logging.NewNop())

	reader.msgs <- kafka.Message{Offset: 1, Value: []byte(`{"channel":"web","recipient":"u1","message":"hi"}`)}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte(`not json`)}
	reader.msgs <- kafka.Message{Offset: 3, Value: []byte(`{"channel":"web","recipient":"u2","message":"hey"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	assert.Eventually(t, func() bool { return len(queue.Requests()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	reqs := queue.Requests()
	assert.Equal(t, []string{"u1"}, reqs[0].Recipients)
	assert.Equal(t, []string{"u2"}, reqs[1].Recipients)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestConsumer_QueueFullDropsMessage(t *testing.T) {
	queue := &fakeQueue{full: true}
	c := NewConsumerWithReader(&fakeReader{msgs: make(chan kafka.Message)}, queue, logging.NewNop())

	c.handle(kafka.Message{Value: []byte(`{"channel":"web","recipient":"u1","message":"hi"}`)})
	assert.Empty(t, queue.Requests())
}

func TestEventWriter_Publish(t *testing.T) {
	w := &fakeWriter{}
	ew := NewEventWriterWith(w)
	ev := models.Event{
		Type:           models.EventCompleted,
		NotificationID: "n-1",
		Channel:        models.ChannelEmail,
		Status:         models.StatusSent,
		Recipients:     2,
		At:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ew.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "n-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, string(models.EventCompleted), string(msg.Headers[0].Value))

	var decoded models.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev, decoded)
}

func TestEventWriter_PublishError(t *testing.T) {
	ew := NewEventWriterWith(&fakeWriter{err: errors.New("leader not available")})
	err := ew.Publish(context.Background(), models.Event{Type: models.EventFailed, NotificationID: "n-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write event notification.failed")
	require.NoError(t, ew.Close())
}
