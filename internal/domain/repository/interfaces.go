package repository

import (
	"context"
	"time"

	"SignalEngine/internal/domain/models"
)

// RuleRepository stores rule definitions in insertion order.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.Rule) error
	Get(ctx context.Context, id string) (*models.Rule, error)
	Delete(ctx context.Context, id string) (bool, error)
	// List returns copies of all rules in the order they were first saved.
	List(ctx context.Context) ([]*models.Rule, error)
}

// HistoryMutation edits an entry and its tracking in place. Returning an error
// discards both edits.
type HistoryMutation func(entry *models.HistoryEntry, tracking *models.AccuracyTracking) error

// HistoryRepository is the append-only signal store with per-signal accuracy
// tracking. Update must apply fn atomically with respect to other writers of
// the same signal id.
type HistoryRepository interface {
	// Append stores a copy stamped with models.HistoryID and returns its
	// zero-based sequence. A signal id already present is ErrConflict.
	Append(ctx context.Context, entry *models.HistoryEntry) (seq int64, err error)
	Get(ctx context.Context, signalID string) (*models.HistoryEntry, error)
	Update(ctx context.Context, signalID string, fn HistoryMutation) (*models.HistoryEntry, error)
	// List returns copies in insertion order.
	List(ctx context.Context) ([]*models.HistoryEntry, error)
	Tracking(ctx context.Context) (map[string]*models.AccuracyTracking, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SubscriberRepository stores per-user notification settings.
type SubscriberRepository interface {
	Get(ctx context.Context, userID string) (*models.Subscriber, error)
	Save(ctx context.Context, sub *models.Subscriber) error
	// ListConfigured returns ids of users that have thresholds set.
	ListConfigured(ctx context.Context) ([]string, error)
}

// NotificationRepository keeps the dispatch log.
type NotificationRepository interface {
	Append(ctx context.Context, n *models.Notification) error
	// Recent returns at most limit notifications for userID (all users when
	// empty), oldest first.
	Recent(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	Clear(ctx context.Context, userID string) (int, error)
}

// KeyLocker serialises work per key. The returned func releases the lock.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// HistoryArchive mirrors history writes to durable storage.
type HistoryArchive interface {
	Record(ctx context.Context, entry *models.HistoryEntry) error
}

// SignalPublisher emits engine events to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
	PublishOutcome(ctx context.Context, e *models.HistoryEntry) error
	Close() error
}

type Metrics interface {
	RecordSignalGenerated(signalType, asset string)
	RecordSignalSkipped(reason string)
	RecordNotification(channel, status string)
	RecordOutcome(signalType string, accuracy float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
