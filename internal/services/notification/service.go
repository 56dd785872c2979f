package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/internal/domain/service"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
)

const (
	DefaultChannelTimeout = 5 * time.Second
	DefaultHistoryLimit   = 50
)

// DefaultThresholds apply to users without their own.
func DefaultThresholds() models.Thresholds {
	return models.Thresholds{
		models.SignalBuy:   6,
		models.SignalSell:  6,
		models.SignalAlert: 5,
		models.SignalHold:  0,
	}
}

type Config struct {
	Enabled           bool
	DefaultThresholds models.Thresholds
	ChannelTimeout    time.Duration
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Component("notification_service")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithChannels(channels ...service.Channel) Option {
	return func(s *Service) {
		for _, c := range channels {
			s.channels[c.Name()] = c
		}
	}
}

// WithLimiter throttles dispatch per user.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service gates signals against per-user strength thresholds and fans
// matching ones out to each user's channels.
type Service struct {
	subs     repository.SubscriberRepository
	history  repository.NotificationRepository
	channels map[string]service.Channel
	limiter  *ratelimit.Limiter
	timeout  time.Duration
	enabled  atomic.Bool

	mu       sync.RWMutex
	defaults models.Thresholds

	logger  *logger.Logger
	metrics repository.Metrics
	now     func() time.Time
}

func NewService(cfg Config, subs repository.SubscriberRepository, history repository.NotificationRepository, opts ...Option) (*Service, error) {
	if cfg.DefaultThresholds == nil {
		cfg.DefaultThresholds = DefaultThresholds()
	}
	if err := cfg.DefaultThresholds.Validate(); err != nil {
		return nil, fmt.Errorf("default thresholds: %w", err)
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = DefaultChannelTimeout
	}
	s := &Service{
		subs:     subs,
		history:  history,
		channels: make(map[string]service.Channel),
		timeout:  cfg.ChannelTimeout,
		defaults: cfg.DefaultThresholds.Clone(),
		logger:   logger.NewNop(),
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
	s.enabled.Store(cfg.Enabled)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
	s.logger.Info("notifications toggled", logger.Bool("enabled", enabled))
}

func (s *Service) Enabled() bool { return s.enabled.Load() }

// SetUserThresholds replaces the user's thresholds. An invalid entry rejects
// the whole map and leaves the previous thresholds in place.
func (s *Service) SetUserThresholds(ctx context.Context, userID string, thresholds models.Thresholds) error {
	if userID == "" {
		return models.NewValidationError("user_id", "user_id is required")
	}
	if err := thresholds.Validate(); err != nil {
		s.logger.Warn("thresholds rejected", logger.String("reason", "validation"), logger.String("user_id", userID), logger.Error(err))
		return err
	}
	sub, err := s.subscriber(ctx, userID)
	if err != nil {
		return err
	}
	sub.Thresholds = thresholds.Clone()
	sub.UpdatedAt = s.now()
	if err := s.subs.Save(ctx, sub); err != nil {
		return err
	}
	s.logger.Info("user thresholds set", logger.String("user_id", userID))
	return nil
}

// GetUserThresholds returns the user's thresholds, or the defaults.
func (s *Service) GetUserThresholds(ctx context.Context, userID string) (models.Thresholds, error) {
	sub, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Thresholds != nil {
		return sub.Thresholds, nil
	}
	return s.DefaultThresholds(), nil
}

// SetUserChannels replaces the user's delivery channels and contacts.
func (s *Service) SetUserChannels(ctx context.Context, userID string, channels []string, contacts models.Contacts) error {
	if userID == "" {
		return models.NewValidationError("user_id", "user_id is required")
	}
	if len(channels) == 0 {
		return models.NewValidationError("channels", "at least one channel is required")
	}
	for _, c := range channels {
		if !models.ValidChannel(c) {
			return models.NewValidationError("channels", fmt.Sprintf("unsupported channel %q", c))
		}
	}
	sub, err := s.subscriber(ctx, userID)
	if err != nil {
		return err
	}
	sub.Channels = append([]string(nil), channels...)
	sub.Contacts = contacts
	sub.UpdatedAt = s.now()
	return s.subs.Save(ctx, sub)
}

func (s *Service) DefaultThresholds() models.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults.Clone()
}

func (s *Service) UpdateDefaultThresholds(thresholds models.Thresholds) error {
	if err := thresholds.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.defaults = thresholds.Clone()
	s.mu.Unlock()
	s.logger.Info("default thresholds updated")
	return nil
}

// CheckAndSendNotifications dispatches sig to every target user whose
// threshold for its type is met. With no user ids it targets the users with
// configured thresholds, or the default user when there are none. Users run
// in parallel and so do each user's channels.
func (s *Service) CheckAndSendNotifications(ctx context.Context, sig *models.Signal, userIDs []string) ([]*models.Notification, error) {
	if err := sig.Validate(); err != nil {
		s.logger.Warn("notification check rejected", logger.String("reason", "validation"), logger.Error(err))
		return nil, err
	}
	if !s.Enabled() {
		s.logger.Info("notifications disabled, skipping", logger.String("signal_id", sig.SignalID))
		return []*models.Notification{}, nil
	}
	targets, err := s.targets(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	start := s.now()
	content := RenderContent(sig)
	results := make([]*models.Notification, len(targets))
	var wg sync.WaitGroup
	for i, userID := range targets {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			n, err := s.notifyUser(ctx, sig, userID, content)
			if err != nil {
				s.metrics.RecordError("notification")
				s.logger.Error("notification failed", logger.String("user_id", userID), logger.Error(err))
				return
			}
			results[i] = n
		}(i, userID)
	}
	wg.Wait()
	s.metrics.RecordLatency("check_and_send_notifications", s.now().Sub(start).Seconds())

	out := make([]*models.Notification, 0, len(results))
	for _, n := range results {
		if n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) targets(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) > 0 {
		return dedupe(userIDs), nil
	}
	configured, err := s.subs.ListConfigured(ctx)
	if err != nil {
		return nil, err
	}
	if len(configured) == 0 {
		return []string{models.DefaultUserID}, nil
	}
	return configured, nil
}

// notifyUser returns nil, nil when the threshold suppresses the signal.
func (s *Service) notifyUser(ctx context.Context, sig *models.Signal, userID string, content models.NotificationContent) (*models.Notification, error) {
	sub, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	thresholds := sub.Thresholds
	if thresholds == nil {
		thresholds = s.DefaultThresholds()
	}
	threshold, ok := thresholds[sig.Type]
	if !ok || sig.Strength < threshold {
		s.logger.Debug("notification suppressed",
			logger.String("user_id", userID),
			logger.String("signal_id", sig.SignalID),
			logger.Bool("type_configured", ok),
		)
		return nil, nil
	}

	n := &models.Notification{
		NotificationID: fmt.Sprintf("notif_%d_%s", s.now().Unix(), userID),
		UserID:         userID,
		SignalID:       sig.SignalID,
		Content:        content,
		Channels:       map[string]models.ChannelResult{},
		Timestamp:      s.now(),
	}
	if !s.limiter.Allow(userID) {
		n.Status = models.NotificationThrottled
		s.metrics.RecordNotification("all", string(n.Status))
		s.logger.Warn("notification throttled", logger.String("user_id", userID), logger.String("signal_id", sig.SignalID))
		return n, s.history.Append(ctx, n)
	}

	n.Channels = s.deliver(ctx, sub, content)
	n.Status = models.NotificationFailed
	for _, r := range n.Channels {
		if r.Success {
			n.Status = models.NotificationSent
			break
		}
	}
	if err := s.history.Append(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info("notification dispatched",
		logger.String("user_id", userID),
		logger.String("signal_id", sig.SignalID),
		logger.String("status", string(n.Status)),
	)
	return n, nil
}

// deliver runs every configured channel in parallel, each under its own
// timeout. Unknown channel names are reported as failures.
func (s *Service) deliver(ctx context.Context, sub *models.Subscriber, content models.NotificationContent) map[string]models.ChannelResult {
	names := sub.Channels
	if len(names) == 0 {
		names = []string{models.ChannelSystem}
	}
	results := make(map[string]models.ChannelResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range dedupe(names) {
		ch, ok := s.channels[name]
		if !ok {
			results[name] = models.ChannelResult{Error: "channel not configured"}
			s.metrics.RecordNotification(name, "unavailable")
			continue
		}
		wg.Add(1)
		go func(name string, ch service.Channel) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			r := models.ChannelResult{Success: true}
			if err := ch.Send(cctx, sub, content); err != nil {
				r = models.ChannelResult{Error: err.Error()}
				if errors.Is(err, context.DeadlineExceeded) {
					r.Error = "timeout: " + r.Error
				}
				s.logger.Warn("channel delivery failed",
					logger.String("channel", name),
					logger.String("user_id", sub.UserID),
					logger.Error(err),
				)
			}
			s.metrics.RecordNotification(name, resultLabel(r))

			mu.Lock()
			results[name] = r
			mu.Unlock()
		}(name, ch)
	}
	wg.Wait()
	return results
}

// GetNotificationHistory returns up to limit of the most recent
// notifications (all users when userID is empty), oldest first.
func (s *Service) GetNotificationHistory(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.history.Recent(ctx, userID, limit)
}

func (s *Service) ClearHistory(ctx context.Context, userID string) (int, error) {
	n, err := s.history.Clear(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("notification history cleared", logger.String("user_id", userID), logger.Int("removed", n))
	return n, nil
}

func (s *Service) subscriber(ctx context.Context, userID string) (*models.Subscriber, error) {
	sub, err := s.subs.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.Subscriber{UserID: userID, Channels: []string{models.ChannelSystem}}, nil
	}
	return sub, err
}

func resultLabel(r models.ChannelResult) string {
	if r.Success {
		return string(models.NotificationSent)
	}
	return string(models.NotificationFailed)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ChannelNames lists the registered channels.
func (s *Service) ChannelNames() []string {
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
