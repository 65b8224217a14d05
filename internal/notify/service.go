// Package notify records terminal session events and pushes them to the
// owning user's live channel.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bridgeml/bridge/pkg/types"
)

// Dispatcher delivers a terminal notification to a user. Implementations
// must durably record the message; the live push is best-effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, message string) error
}

// Publisher fans a payload out to a named channel
type Publisher interface {
	Publish(ctx context.Context, channel string, value interface{}) error
}

// Service persists notifications and publishes them to a per-user Redis
// channel for the live feed
type Service struct {
	db        *gorm.DB
	publisher Publisher
}

// NewService creates a notification service. publisher may be nil, in which
// case notifications are persisted but not pushed.
func NewService(db *gorm.DB, publisher Publisher) *Service {
	return &Service{db: db, publisher: publisher}
}

// Dispatch stores the notification and then publishes it. A publish failure
// is logged and swallowed: the record is already durable and the client will
// see it on its next fetch.
func (s *Service) Dispatch(ctx context.Context, userID, message string) error {
	notification := &types.Notification{
		UserID:  userID,
		Message: message,
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to persist notification")
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("notification_id", notification.ID.String()).
		Msg("notification recorded")

	if s.publisher != nil {
		channel := fmt.Sprintf("notifications:%s", userID)
		if err := s.publisher.Publish(ctx, channel, notification); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to push notification")
		}
	}

	return nil
}
