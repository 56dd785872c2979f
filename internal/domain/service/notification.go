package service

import (
	"context"

	"SignalEngine/internal/domain/models"
)

// Channel delivers rendered content to one user over one medium. Send must
// honour ctx cancellation; the caller applies the per-channel timeout.
type Channel interface {
	Name() string
	Send(ctx context.Context, sub *models.Subscriber, content models.NotificationContent) error
}

// Dispatcher hands a signal to the notification stage, either inline or
// through a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *models.Signal, userIDs []string) ([]*models.Notification, error)
}
