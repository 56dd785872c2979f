package usecase

import (
	"context"
	"fmt"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/service"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/queue"
)

// JobNotifySignal is the queue message type for deferred notification dispatch.
const JobNotifySignal = "notify_signal"

// Notifier is the notification stage.
type Notifier interface {
	CheckAndSendNotifications(ctx context.Context, s *models.Signal, userIDs []string) ([]*models.Notification, error)
}

// InlineDispatcher notifies within the caller's request.
type InlineDispatcher struct {
	notifier Notifier
}

func NewInlineDispatcher(n Notifier) *InlineDispatcher {
	return &InlineDispatcher{notifier: n}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, s *models.Signal, userIDs []string) ([]*models.Notification, error) {
	return d.notifier.CheckAndSendNotifications(ctx, s, userIDs)
}

// NotifyPayload is the queued form of a dispatch.
type NotifyPayload struct {
	Signal  *models.Signal `json:"signal"`
	UserIDs []string       `json:"user_ids,omitempty"`
}

// QueueDispatcher enqueues a notify_signal job and returns no notifications;
// they show up in the notification history once a worker has run the job.
type QueueDispatcher struct {
	queue queue.QueueService
}

func NewQueueDispatcher(q queue.QueueService) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, s *models.Signal, userIDs []string) ([]*models.Notification, error) {
	if err := d.queue.PublishMessage(ctx, JobNotifySignal, NotifyPayload{Signal: s, UserIDs: userIDs}); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", JobNotifySignal, err)
	}
	return nil, nil
}

var (
	_ service.Dispatcher = (*InlineDispatcher)(nil)
	_ service.Dispatcher = (*QueueDispatcher)(nil)
)

// NotifySignalJob is the worker side of QueueDispatcher.
type NotifySignalJob struct {
	notifier Notifier
	logger   *logger.Logger
}

func NewNotifySignalJob(n Notifier, l *logger.Logger) *NotifySignalJob {
	if l == nil {
		l = logger.NewNop()
	}
	return &NotifySignalJob{notifier: n, logger: l.Component("notify_signal_job")}
}

func (j *NotifySignalJob) Name() string { return "NotifySignalJob" }

func (j *NotifySignalJob) Type() string { return JobNotifySignal }

// Handle returns nil for payloads that can never succeed so the queue does
// not retry them.
func (j *NotifySignalJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[NotifyPayload](payload)
	if err != nil || p.Signal == nil {
		j.logger.Warn("dropping malformed notify payload", logger.Error(err))
		return nil
	}
	sent, err := j.notifier.CheckAndSendNotifications(ctx, p.Signal, p.UserIDs)
	if err != nil {
		if ackable(err) {
			j.logger.Warn("notify job rejected",
				logger.String("signal_id", p.Signal.SignalID),
				logger.String("reason", models.SkipReason(err)),
				logger.Error(err),
			)
			return nil
		}
		return err
	}
	j.logger.Info("notify job done",
		logger.String("signal_id", p.Signal.SignalID),
		logger.Int("notifications", len(sent)),
	)
	return nil
}

var _ queue.Job = (*NotifySignalJob)(nil)
