package services

import (
	"context"
	"encoding/json"
	"time"

	"tontiflex/internal/core/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NotificationService publishes fire-and-forget dispatch requests to a
// Redis stream consumed by the SMS/push delivery worker. Publish failures
// are logged and never block a workflow transition.
type NotificationService struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewNotificationService creates a new notification service. A nil client
// disables dispatch (tests, offline dev).
func NewNotificationService(client *redis.Client, stream string, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Dispatch queues one notification. Always returns; errors are logged.
func (s *NotificationService) Dispatch(ctx context.Context, recipientID uint, templateID string, params map[string]string) {
	if s.client == nil {
		return
	}

	n := domain.Notification{
		RecipientID: recipientID,
		TemplateID:  templateID,
		Parameters:  params,
		SentAt:      time.Now(),
	}

	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Warn("notification marshal failed", zap.Error(err))
		return
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"timestamp": n.SentAt.Unix(),
		},
	}).Err(); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.Uint("recipient_id", recipientID),
			zap.String("template_id", templateID),
			zap.Error(err))
	}
}
