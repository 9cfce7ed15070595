package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/obsidianstack/spacewatch/monitor/internal/config"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Client fetches historical samples and alerts from the upstream API.
type Client struct {
	rc         *resty.Client
	samplesURL string
	alertsURL  string
	metrics    *telemetry.Metrics
}

// New resolves the history endpoints of u against its base URL.
// metrics may be nil.
func New(rc *resty.Client, u config.Upstream, metrics *telemetry.Metrics) (*Client, error) {
	samplesURL, err := u.Resolve(u.SamplesPath)
	if err != nil {
		return nil, fmt.Errorf("history: samples url: %w", err)
	}
	alertsURL, err := u.Resolve(u.AlertsPath)
	if err != nil {
		return nil, fmt.Errorf("history: alerts url: %w", err)
	}
	if metrics == nil {
		metrics = telemetry.Discard()
	}
	return &Client{rc: rc, samplesURL: samplesURL, alertsURL: alertsURL, metrics: metrics}, nil
}

// Samples returns up to limit of the most recent samples in the order the
// upstream sent them.
func (c *Client) Samples(ctx context.Context, limit int) ([]types.Sample, error) {
	body, err := c.get(ctx, c.samplesURL, limit)
	if err != nil {
		return nil, c.fail("samples", err)
	}
	samples, dropped, err := types.DecodeSamples(body)
	if err != nil {
		return nil, c.fail("samples", err)
	}
	c.reportDropped("samples", dropped)
	return samples, nil
}

// Alerts returns up to limit of the most recent alerts in the order the
// upstream sent them.
func (c *Client) Alerts(ctx context.Context, limit int) ([]types.Alert, error) {
	body, err := c.get(ctx, c.alertsURL, limit)
	if err != nil {
		return nil, c.fail("alerts", err)
	}
	alerts, dropped, err := types.DecodeAlerts(body)
	if err != nil {
		return nil, c.fail("alerts", err)
	}
	c.reportDropped("alerts", dropped)
	return alerts, nil
}

func (c *Client) get(ctx context.Context, url string, limit int) ([]byte, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func (c *Client) fail(resource string, err error) error {
	c.metrics.FetchErrors.WithLabelValues(resource).Inc()
	return &types.FetchError{Resource: resource, Err: err}
}

func (c *Client) reportDropped(resource string, dropped int) {
	if dropped == 0 {
		return
	}
	slog.Warn("history: skipped malformed records", "resource", resource, "dropped", dropped)
	c.metrics.MalformedMessages.WithLabelValues("history_" + resource).Add(float64(dropped))
}

// DefaultAPIBase is used when the runtime config is missing or unusable.
const DefaultAPIBase = "/api/"

type runtimeConfig struct {
	APIBaseURL string `json:"apiBaseUrl"`
}

// ResolveBaseURL fetches the runtime config document at configURL and
// returns its apiBaseUrl resolved against configURL. Any failure falls back
// to DefaultAPIBase on the same origin; the error is logged, not returned.
func ResolveBaseURL(ctx context.Context, rc *resty.Client, configURL string) string {
	base := DefaultAPIBase

	resp, err := rc.R().SetContext(ctx).SetHeader("Accept", "application/json").Get(configURL)
	switch {
	case err != nil:
		slog.Warn("history: runtime config not found, defaulting to "+DefaultAPIBase, "url", configURL, "err", err)
	case resp.StatusCode() != http.StatusOK:
		slog.Warn("history: runtime config not found, defaulting to "+DefaultAPIBase, "url", configURL, "status", resp.StatusCode())
	default:
		var rt runtimeConfig
		if err := json.Unmarshal(resp.Body(), &rt); err != nil {
			slog.Warn("history: runtime config unreadable, defaulting to "+DefaultAPIBase, "url", configURL, "err", err)
		} else if rt.APIBaseURL != "" {
			base = rt.APIBaseURL
		}
	}

	ref, err := url.Parse(base)
	if err != nil {
		ref, _ = url.Parse(DefaultAPIBase)
	}
	origin, err := url.Parse(configURL)
	if err != nil {
		return ref.String()
	}
	return origin.ResolveReference(ref).String()
}
