package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/service"
	pkghttp "SignalEngine/pkg/http"
	"SignalEngine/pkg/logger"
)

var (
	ErrNoContact   = errors.New("no contact address for channel")
	ErrNoListeners = errors.New("no live connection for user")
)

// Pusher delivers a payload to a user's live connections.
type Pusher interface {
	Push(userID string, payload any) error
}

// EventPublisher is the message bus used by the email and sms gateways.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// HTTPSender posts a request and decodes the response into dest (nil to discard).
type HTTPSender interface {
	SendAndParse(ctx context.Context, opts *pkghttp.RequestOptions, dest interface{}) error
}

// SystemChannel logs the notification and pushes it to the user's websocket
// connections. A user with no connection still counts as delivered: the log
// line is the system record.
type SystemChannel struct {
	pusher Pusher
	logger *logger.Logger
}

func NewSystemChannel(p Pusher, l *logger.Logger) *SystemChannel {
	if l == nil {
		l = logger.NewNop()
	}
	return &SystemChannel{pusher: p, logger: l.Component("notify_system")}
}

func (c *SystemChannel) Name() string { return models.ChannelSystem }

func (c *SystemChannel) Send(ctx context.Context, sub *models.Subscriber, content models.NotificationContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("system notification",
		logger.String("user_id", sub.UserID),
		logger.String("signal_id", content.SignalID),
		logger.String("title", content.Title),
	)
	if c.pusher == nil {
		return nil
	}
	if err := c.pusher.Push(sub.UserID, content); err != nil && !errors.Is(err, ErrNoListeners) {
		return err
	}
	return nil
}

// BreakerSettings trips a webhook target after consecutive failures.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// WebhookChannel POSTs the content to the subscriber's webhook URL. Each
// target host gets its own circuit breaker.
type WebhookChannel struct {
	client   HTTPSender
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewWebhookChannel(client HTTPSender, settings BreakerSettings) *WebhookChannel {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	return &WebhookChannel{client: client, settings: settings, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (c *WebhookChannel) Name() string { return models.ChannelWebhook }

func (c *WebhookChannel) Send(ctx context.Context, sub *models.Subscriber, content models.NotificationContent) error {
	target := sub.Contacts.WebhookURL
	if target == "" {
		return fmt.Errorf("webhook: %w", ErrNoContact)
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return fmt.Errorf("webhook: invalid url %q", target)
	}

	_, err = c.breaker(u.Host).Execute(func() (interface{}, error) {
		return nil, c.client.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method:  pkghttp.MethodPost,
			URL:     target,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body: map[string]any{
				"user_id":      sub.UserID,
				"notification": content,
			},
		}, nil)
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", u.Host, err)
	}
	return nil
}

func (c *WebhookChannel) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}
	limit := c.settings.ConsecutiveFailures
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webhook:" + host,
		Timeout: c.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		// a rejected request says nothing about the health of the target
		IsSuccessful: func(err error) bool {
			return err == nil || pkghttp.IsClientError(err)
		},
	})
	c.breakers[host] = b
	return b
}

// Envelope is the message handed to the email and sms gateways.
type Envelope struct {
	Channel string                     `json:"channel"`
	UserID  string                     `json:"user_id"`
	To      string                     `json:"to"`
	Subject string                     `json:"subject,omitempty"`
	Body    string                     `json:"body"`
	Content models.NotificationContent `json:"content"`
}

// GatewayChannel publishes email or sms envelopes to a topic; the gateway
// consuming it performs the actual delivery.
type GatewayChannel struct {
	name      string
	topic     string
	publisher EventPublisher
}

func NewEmailChannel(p EventPublisher, topic string) *GatewayChannel {
	return &GatewayChannel{name: models.ChannelEmail, topic: topic, publisher: p}
}

func NewSMSChannel(p EventPublisher, topic string) *GatewayChannel {
	return &GatewayChannel{name: models.ChannelSMS, topic: topic, publisher: p}
}

func (c *GatewayChannel) Name() string { return c.name }

func (c *GatewayChannel) Send(ctx context.Context, sub *models.Subscriber, content models.NotificationContent) error {
	env := Envelope{Channel: c.name, UserID: sub.UserID, Content: content}
	switch c.name {
	case models.ChannelEmail:
		env.To = sub.Contacts.Email
		env.Subject = EmailSubject(content)
		env.Body = EmailBody(content)
	default:
		env.To = sub.Contacts.Phone
		env.Body = SMSText(content)
	}
	if env.To == "" {
		return fmt.Errorf("%s: %w", c.name, ErrNoContact)
	}
	return c.publisher.Publish(ctx, c.topic, []byte(sub.UserID), env)
}

var (
	_ service.Channel = (*SystemChannel)(nil)
	_ service.Channel = (*WebhookChannel)(nil)
	_ service.Channel = (*GatewayChannel)(nil)
)
