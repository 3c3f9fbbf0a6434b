// Package alerts toggles alert rules on behalf of automation tooling.
package alerts

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/besteffort"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Notifier posts a JSON body to a URL. *httpclient.Client implements it.
type Notifier interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error
}

// TriggerRequest asks for an alert to be switched on or off
type TriggerRequest struct {
	Action     models.AlertAction `json:"action" validate:"required,oneof=activate deactivate"`
	AlertType  string             `json:"alert_type" validate:"required"`
	AlertID    uuid.UUID          `json:"alert_id" validate:"required"`
	WebhookURL string             `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

// Notification is the body posted to the automation webhook
type Notification struct {
	AlertID   uuid.UUID          `json:"alert_id"`
	AlertType string             `json:"alert_type"`
	Action    models.AlertAction `json:"action"`
	IsActive  bool               `json:"is_active"`
	Timestamp time.Time          `json:"timestamp"`
}

// TriggerResult is the updated alert and what happened to the notification
type TriggerResult struct {
	Alert             *models.Alert `json:"alert"`
	NotificationSent  bool          `json:"notification_sent"`
	NotificationError string        `json:"notification_error,omitempty"`
}

// Service flips alerts and fans out the change
type Service struct {
	alerts     repositories.AlertRepo
	logs       repositories.LogRepo
	notifier   Notifier
	events     kafka.Publisher
	defaultURL string
	logger     ectologger.Logger
	now        func() time.Time
}

// NewService creates the alert trigger service. defaultURL is used when a request carries no
// webhook URL; empty disables notifications for such requests.
func NewService(
	alerts repositories.AlertRepo,
	logs repositories.LogRepo,
	notifier Notifier,
	events kafka.Publisher,
	defaultURL string,
	logger ectologger.Logger,
) *Service {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Service{
		alerts:     alerts,
		logs:       logs,
		notifier:   notifier,
		events:     events,
		defaultURL: defaultURL,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Trigger sets is_active on the alert. Only the alert write can fail the call; the
// notification, audit row and event are best effort.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Alerts.Trigger",
		attribute.String("alert_id", req.AlertID.String()),
		attribute.String("action", string(req.Action)),
	)
	defer span.End()

	alert, err := s.alerts.SetActive(ctx, req.AlertID, req.AlertType, req.Action.Active())
	if err != nil {
		tracing.Fail(span, err, "set alert active")
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s alert %s", req.Action, req.AlertID)
		return nil, err
	}

	result := &TriggerResult{Alert: alert}
	url := req.WebhookURL
	if url == "" {
		url = s.defaultURL
	}

	notification := "skipped"
	if url != "" {
		result.NotificationSent = besteffort.Run(ctx, s.logger, "alert_notification", func(ctx context.Context) error {
			err := s.notifier.PostJSON(ctx, url, nil, Notification{
				AlertID:   alert.ID,
				AlertType: alert.AlertType,
				Action:    req.Action,
				IsActive:  alert.IsActive,
				Timestamp: s.now().UTC(),
			}, nil)
			if err != nil {
				result.NotificationError = err.Error()
			}
			return err
		})
		notification = "sent"
		if !result.NotificationSent {
			notification = "failed"
		}
	}

	s.appendLog(ctx, req, url, result)
	s.publish(ctx, req, alert, result)
	metrics.AlertTriggersTotal.WithLabelValues(string(req.Action), notification).Inc()

	s.logger.WithContext(ctx).Infof("Alert %s %sd (notification %s)", alert.ID, req.Action, notification)
	return result, nil
}

func (s *Service) appendLog(ctx context.Context, req TriggerRequest, url string, result *TriggerResult) {
	besteffort.Run(ctx, s.logger, "append_alert_log", func(ctx context.Context) error {
		entry := &models.AlertLog{
			AlertID:          req.AlertID,
			AlertType:        req.AlertType,
			Action:           req.Action,
			NotificationSent: result.NotificationSent,
			CreatedAt:        s.now().UTC(),
		}
		if url != "" {
			entry.WebhookURL = &url
		}
		if result.NotificationError != "" {
			msg := result.NotificationError
			entry.NotificationError = &msg
		}
		return s.logs.AppendAlertLog(ctx, entry)
	})
}

func (s *Service) publish(ctx context.Context, req TriggerRequest, alert *models.Alert, result *TriggerResult) {
	besteffort.Run(ctx, s.logger, "publish_alert_event", func(ctx context.Context) error {
		return s.events.Publish(ctx, &kafka.Event{
			Type:     kafka.EventAlertToggled,
			TenantID: alert.TenantID.String(),
			Status:   string(req.Action),
			Data: map[string]any{
				"alert_id":          alert.ID.String(),
				"alert_type":        alert.AlertType,
				"is_active":         alert.IsActive,
				"notification_sent": result.NotificationSent,
			},
		})
	})
}
