package logger

import (
	"catalog-validation/pkg/common"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap/zapcore"
)

// Alert is the payload posted to the alert webhook.
type Alert struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Text    string                 `json:"text"`
	Fields  map[string]interface{} `json:"fields"`
	Time    time.Time              `json:"time"`
}

// AlertSender delivers an alert somewhere outside the process.
type AlertSender func(alert Alert)

type AlertCore struct {
	core     zapcore.Core
	minLevel zapcore.Level
	send     AlertSender
}

func NewAlertCore(core zapcore.Core, minLevel zapcore.Level, send AlertSender) *AlertCore {
	return &AlertCore{core: core, minLevel: minLevel, send: send}
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		minLevel: a.minLevel,
		send:     a.send,
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, a)
	}
	return checkedEntry
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	shouldSend := false
	for _, f := range fields {
		if f.Key == common.KEY_LOG_HOOK_SEND_ALERT && f.Type == zapcore.BoolType && f.Integer == 1 {
			shouldSend = true
			break
		}
	}
	if entry.Level >= a.minLevel && shouldSend && a.send != nil {
		alert := buildAlert(entry, fields)
		go a.send(alert)
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}

func buildAlert(entry zapcore.Entry, fields []zapcore.Field) Alert {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if f.Key == common.KEY_LOG_HOOK_SEND_ALERT {
			continue
		}
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", entry.Level.CapitalString(), entry.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, enc.Fields[k])
	}
	fmt.Fprintf(&b, "time: %s", entry.Time.UTC().Format(time.RFC3339))

	return Alert{
		Level:   entry.Level.String(),
		Message: entry.Message,
		Text:    b.String(),
		Fields:  enc.Fields,
		Time:    entry.Time,
	}
}

func newWebhookSender(webhookURL string) AlertSender {
	client := resty.New().SetTimeout(10 * time.Second)
	return func(alert Alert) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// best effort
		_, _ = client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(alert).
			Post(webhookURL)
	}
}
