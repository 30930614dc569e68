// Package notification pushes critical cluster events to an external
// webhook: worker deaths, critical health transitions, and failed scaling
// actions. Delivery is best-effort; a webhook outage never affects the
// cluster itself.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert one critical event as delivered to the webhook.
type Alert struct {
	ClusterID  string                 `json:"cluster_id"`
	Event      string                 `json:"event"`
	Severity   string                 `json:"severity"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// WebhookNotifier posts alerts to a configured webhook URL.
type WebhookNotifier struct {
	webhookURL string
	enabled    bool
	clusterID  string
	client     *http.Client
}

// NewWebhookNotifier creates a notifier. URL priority: config file, then
// the CLUSTER_WEBHOOK_URL environment variable. Without a URL the
// notifier stays disabled and every send is a silent no-op.
func NewWebhookNotifier(cfg config.NotificationConfig, clusterID string) *WebhookNotifier {
	webhookURL := cfg.WebhookURL
	if webhookURL == "" {
		webhookURL = os.Getenv("CLUSTER_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("using webhook URL from environment variable")
		}
	}

	enabled := cfg.Enabled && webhookURL != ""
	if cfg.Enabled && webhookURL == "" {
		logger.Warn("webhook notifications enabled but no URL configured (check config or CLUSTER_WEBHOOK_URL env), alerts will be dropped")
	}

	return &WebhookNotifier{
		webhookURL: webhookURL,
		enabled:    enabled,
		clusterID:  clusterID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether alerts will actually be delivered.
func (n *WebhookNotifier) Enabled() bool {
	return n.enabled
}

// Send posts one alert. Disabled notifiers succeed without sending.
func (n *WebhookNotifier) Send(ctx context.Context, alert *Alert) error {
	if !n.enabled {
		return nil
	}
	if alert.ClusterID == "" {
		alert.ClusterID = n.clusterID
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "webhook alert sent, event: %s, severity: %s", alert.Event, alert.Severity)
	return nil
}

// Subscribe attaches the notifier to the event bus. Only alert-worthy
// events produce a webhook call; the rest are ignored.
func (n *WebhookNotifier) Subscribe(ctx context.Context, bus pubsub.PubSub[model.Event]) error {
	if bus == nil {
		return nil
	}
	return bus.Subscribe(ctx, pubsub.SubscriberFunc[model.Event](n.handleEvent))
}

func (n *WebhookNotifier) handleEvent(ctx context.Context, event model.Event) error {
	alert := n.alertFor(event)
	if alert == nil {
		return nil
	}
	if err := n.Send(ctx, alert); err != nil {
		logger.WarnCtx(ctx, "failed to deliver webhook alert for %s: %v", event.Name, err)
	}
	return nil
}

// alertFor maps a bus event to an alert, or nil for events that are not
// alert-worthy.
func (n *WebhookNotifier) alertFor(event model.Event) *Alert {
	switch event.Name {
	case constants.EventWorkerDied:
		return &Alert{
			Event:      event.Name,
			Severity:   SeverityCritical,
			Message:    "worker process died",
			Details:    toDetails(event.Payload),
			OccurredAt: event.Timestamp,
		}
	case constants.EventWorkerHealthCritical:
		return &Alert{
			Event:      event.Name,
			Severity:   SeverityWarning,
			Message:    "worker health is critical",
			Details:    toDetails(event.Payload),
			OccurredAt: event.Timestamp,
		}
	case constants.EventScalingCompleted:
		payload, ok := event.Payload.(model.ScalingEventPayload)
		if !ok || payload.Success == nil || *payload.Success {
			return nil
		}
		return &Alert{
			Event:      event.Name,
			Severity:   SeverityCritical,
			Message:    "scaling action failed",
			Details:    toDetails(event.Payload),
			OccurredAt: event.Timestamp,
		}
	default:
		return nil
	}
}

func toDetails(payload interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
