package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/obsidianstack/spacewatch/monitor/internal/config"
	"github.com/obsidianstack/spacewatch/monitor/internal/store"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Notifier forwards alerts to the configured webhooks.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	webhooks []config.WebhookConfig
	min      types.Level
	client   *resty.Client
	metrics  *telemetry.Metrics

	mu   sync.Mutex
	seen *store.AlertSet

	wg sync.WaitGroup
}

// New builds a Notifier. A nil client gets a resty client with a 10s
// timeout; a nil metrics records nothing.
func New(cfg config.NotifyConfig, client *resty.Client, metrics *telemetry.Metrics) *Notifier {
	if client == nil {
		client = resty.New().SetTimeout(defaultTimeout)
	}
	if metrics == nil {
		metrics = telemetry.Discard()
	}
	seen := store.NewAlertSet(store.DefaultAlertCap, 0, 0)
	seen.SeedHistory(nil)
	return &Notifier{
		webhooks: cfg.Webhooks,
		min:      types.ParseLevel(cfg.MinLevel),
		client:   client,
		metrics:  metrics,
		seen:     seen,
	}
}

// Notify is an alert feed listener. Delivery runs in the background so the
// feed reader is never blocked by a slow webhook.
func (n *Notifier) Notify(a types.Alert) {
	if len(n.webhooks) == 0 || a.Level.Rank() < n.min.Rank() {
		return
	}

	now := time.Now()
	n.mu.Lock()
	res := n.seen.Merge(a, now)
	n.seen.Expire(now)
	n.mu.Unlock()
	if res.Duplicate {
		slog.Debug("notify: duplicate alert suppressed", "key", a.Key().String())
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(context.Background(), a)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() { n.wg.Wait() }

// deliver sends a to every configured target. Errors are logged and counted.
func (n *Notifier) deliver(ctx context.Context, a types.Alert) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body any
		switch wh.Type {
		case "slack":
			body = slackBody(a)
		case "teams":
			body = teamsBody(a)
		case "http":
			body = map[string]any{"alert": a}
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(ctx, url, body); err != nil {
			n.metrics.WebhookDelivered.WithLabelValues(wh.Type, "error").Inc()
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"alert", a.Key().String(),
				"err", err,
			)
			continue
		}
		n.metrics.WebhookDelivered.WithLabelValues(wh.Type, "ok").Inc()
		slog.Debug("notify: webhook delivered", "type", wh.Type, "alert", a.Key().String())
	}
}

func (n *Notifier) post(ctx context.Context, url string, body any) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func slackBody(a types.Alert) map[string]string {
	return map[string]string{
		"text": fmt.Sprintf("*%s* %s at %s", levelLabel(a.Level), a.Code, a.Timestamp.UTC().Format(time.RFC3339)),
	}
}

func teamsBody(a types.Alert) map[string]any {
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": levelColor(a.Level),
		"summary":    a.Code,
		"title":      fmt.Sprintf("Space weather alert: %s", a.Code),
		"text":       fmt.Sprintf("%s %s issued %s", levelLabel(a.Level), a.Code, a.Timestamp.UTC().Format(time.RFC3339)),
	}
}

func levelLabel(l types.Level) string {
	switch l {
	case types.LevelCritical:
		return "[CRITICAL]"
	case types.LevelWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func levelColor(l types.Level) string {
	switch l {
	case types.LevelCritical:
		return "FF4F6A"
	case types.LevelWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
