package services

import (
	"context"
	"encoding/json"
	"testing"

	"tontiflex/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotificationDispatchPublishesToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := NewNotificationService(client, "notifications", zap.NewNop())
	svc.Dispatch(context.Background(), 7, "membership_approved", map[string]string{
		"tontine": "Tontine Espoir",
	})

	entries, err := client.XRange(context.Background(), "notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var n domain.Notification
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &n))
	assert.Equal(t, uint(7), n.RecipientID)
	assert.Equal(t, "membership_approved", n.TemplateID)
	assert.Equal(t, "Tontine Espoir", n.Parameters["tontine"])
}

func TestNotificationDispatchNilClientIsNoop(t *testing.T) {
	svc := NewNotificationService(nil, "notifications", zap.NewNop())
	// Must not panic or block.
	svc.Dispatch(context.Background(), 1, "whatever", nil)
}

func TestNotificationDispatchSurvivesBrokenStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	svc := NewNotificationService(client, "notifications", zap.NewNop())
	// Publish failure is logged, never returned.
	svc.Dispatch(context.Background(), 1, "whatever", nil)
}
