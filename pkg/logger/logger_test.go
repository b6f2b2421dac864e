package logger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := &Logger{zap.New(core)}

	ctx := NewContext(context.Background(), StringField("job_id", "j1"))
	ctx = NewContext(ctx, StringField("queue", "default"))
	base.With(ResourceField("r1")).InfoContext(ctx, "hello")
	base.Info("plain")

	require.Equal(t, 2, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "r1", fields["resource_id"])
	assert.Equal(t, "j1", fields["job_id"])
	assert.Equal(t, "default", fields["queue"])
	assert.Empty(t, logs.All()[1].ContextMap())
}

func TestAlertCoreSendsOnlyFlaggedErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	alerts := make(chan Alert, 4)
	alertCore := NewAlertCore(core, zapcore.ErrorLevel, func(a Alert) { alerts <- a })
	log := &Logger{zap.New(alertCore)}

	log.Error("plain error")
	log.ErrorContextWithAlert(context.Background(), "validation job crashed", StringField("resource_id", "r1"))
	log.Warn("flagged warning", zap.Bool("send_alert", true))

	select {
	case a := <-alerts:
		assert.Equal(t, "validation job crashed", a.Message)
		assert.Equal(t, "r1", a.Fields["resource_id"])
		assert.NotContains(t, a.Fields, "send_alert")
		assert.Contains(t, a.Text, "resource_id: r1")
	case <-time.After(time.Second):
		t.Fatal("expected an alert")
	}

	select {
	case a := <-alerts:
		t.Fatalf("unexpected alert %q", a.Message)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 3, logs.Len())
}

func TestWithAlertWebhookPostsJSON(t *testing.T) {
	received := make(chan Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Alert
		_ = json.NewDecoder(r.Body).Decode(&a)
		received <- a
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(discard{}), zapcore.DebugLevel)
	log := (&Logger{zap.New(core)}).WithAlertWebhook(srv.URL)
	log.ErrorContextWithAlert(context.Background(), "boom")

	select {
	case a := <-received:
		assert.Equal(t, "boom", a.Message)
		assert.Equal(t, "error", a.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
