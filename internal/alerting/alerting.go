// Package alerting notifies operators when scheduled rate refreshes keep
// failing.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bher20/ratehub/pkg/providers/shared"
)

// Config holds alerting configuration.
type Config struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom).
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or
	// "generic". Detected from the URL when empty.
	WebhookType string
	// MinConsecutiveFailures is how many refreshes in a row must fail
	// before an alert goes out.
	MinConsecutiveFailures int
	Timeout                time.Duration

	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	EmailTo        []string
}

func (c Config) withDefaults() Config {
	if c.MinConsecutiveFailures <= 0 {
		c.MinConsecutiveFailures = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.WebhookType == "" {
		c.WebhookType = detectWebhookType(c.WebhookURL)
	}
	return c
}

func detectWebhookType(url string) string {
	switch {
	case strings.Contains(url, "slack.com"):
		return "slack"
	case strings.Contains(url, "discord.com"):
		return "discord"
	default:
		return "generic"
	}
}

// RefreshAlert describes a failed scheduled refresh.
type RefreshAlert struct {
	JobName             string
	ConsecutiveFailures int
	Error               string
	// Failures holds one "provider: error" entry per failed provider.
	Failures  []string
	Duration  time.Duration
	Timestamp time.Time
}

// EmailSender delivers a plain-text alert email.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Alerter sends alerts to the configured webhook and email sinks.
type Alerter struct {
	cfg    Config
	client *http.Client
	email  EmailSender
	logger *slog.Logger
}

type Option func(*Alerter)

// WithEmailSender replaces the SendGrid sender.
func WithEmailSender(s EmailSender) Option {
	return func(a *Alerter) { a.email = s }
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Alerter) { a.client = c }
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg Config, logger *slog.Logger, opts ...Option) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	a := &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "alerting"),
	}
	if cfg.SendGridAPIKey != "" && len(cfg.EmailTo) > 0 {
		a.email = NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether any sink is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.WebhookURL != "" || (a.email != nil && len(a.cfg.EmailTo) > 0)
}

// SendRefreshAlert delivers alert to every configured sink once the
// consecutive failure threshold is reached.
func (a *Alerter) SendRefreshAlert(ctx context.Context, alert RefreshAlert) error {
	if !a.Enabled() {
		a.logger.Debug("alerts disabled, skipping")
		return nil
	}
	if alert.ConsecutiveFailures < a.cfg.MinConsecutiveFailures {
		a.logger.Info("failures below alert threshold, skipping",
			"failures", alert.ConsecutiveFailures, "threshold", a.cfg.MinConsecutiveFailures)
		return nil
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var errs []error
	if a.cfg.WebhookURL != "" {
		if err := a.sendWebhook(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}
	if a.email != nil && len(a.cfg.EmailTo) > 0 {
		subject := fmt.Sprintf("[ratehub] %s failed %d times in a row", alert.JobName, alert.ConsecutiveFailures)
		if err := a.email.Send(ctx, a.cfg.EmailTo, subject, plainText(alert)); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Info("sent refresh alert", "job", alert.JobName, "failures", alert.ConsecutiveFailures)
	return nil
}

func (a *Alerter) sendWebhook(ctx context.Context, alert RefreshAlert) error {
	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", shared.RedactURLError(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", shared.RedactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func failureList(alert RefreshAlert, bold string) string {
	if len(alert.Failures) == 0 {
		return alert.Error
	}
	var b strings.Builder
	for _, f := range alert.Failures {
		provider, msg, found := strings.Cut(f, ": ")
		if !found {
			fmt.Fprintf(&b, "• %s\n", f)
			continue
		}
		fmt.Fprintf(&b, "• %s%s%s: %s\n", bold, provider, bold, msg)
	}
	return b.String()
}

func buildSlackPayload(alert RefreshAlert) ([]byte, error) {
	payload := map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":x: Rate refresh failing: %s", alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", alert.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Providers:*\n%s", failureList(alert, "*")),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(alert RefreshAlert) ([]byte, error) {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       fmt.Sprintf("Rate refresh failing: %s", alert.JobName),
				"description": fmt.Sprintf("%d consecutive failures", alert.ConsecutiveFailures),
				"color":       16711680, // red
				"fields": []map[string]any{
					{"name": "Duration", "value": alert.Duration.Round(time.Millisecond).String(), "inline": true},
					{"name": "Providers", "value": failureList(alert, "**"), "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericPayload(alert RefreshAlert) ([]byte, error) {
	payload := map[string]any{
		"alert_type":           "rate_refresh_failure",
		"job_name":             alert.JobName,
		"consecutive_failures": alert.ConsecutiveFailures,
		"error":                alert.Error,
		"failures":             alert.Failures,
		"duration_ms":          alert.Duration.Milliseconds(),
		"timestamp":            alert.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

func plainText(alert RefreshAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s has failed %d times in a row.\n\n", alert.JobName, alert.ConsecutiveFailures)
	fmt.Fprintf(&b, "Last attempt: %s (took %s)\n\n", alert.Timestamp.Format(time.RFC3339), alert.Duration.Round(time.Millisecond))
	b.WriteString(failureList(alert, ""))
	return b.String()
}
