package models

import (
	"fmt"
	"time"
)

// Channel names accepted in subscriber settings.
const (
	ChannelSystem  = "system"
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
)

var Channels = []string{ChannelSystem, ChannelEmail, ChannelSMS, ChannelWebhook}

func ValidChannel(name string) bool {
	for _, c := range Channels {
		if c == name {
			return true
		}
	}
	return false
}

// DefaultUserID receives notifications when no subscriber is configured.
const DefaultUserID = "default"

type NotificationStatus string

const (
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationThrottled NotificationStatus = "throttled"
)

// Thresholds maps a signal type to the minimum strength that triggers dispatch.
type Thresholds map[SignalType]int

// Validate rejects the whole map if any entry is outside [0,10] or names an unknown type.
func (t Thresholds) Validate() error {
	if len(t) == 0 {
		return NewValidationError("thresholds", "thresholds are required")
	}
	for typ, v := range t {
		if !typ.Valid() {
			return NewValidationError("thresholds", fmt.Sprintf("unknown signal type %q", typ))
		}
		if v < 0 || v > 10 {
			return NewValidationError("thresholds", fmt.Sprintf("threshold for %s must be within [0,10], got %d", typ, v))
		}
	}
	return nil
}

func (t Thresholds) Clone() Thresholds {
	if t == nil {
		return nil
	}
	c := make(Thresholds, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Contacts holds per-channel addresses for a subscriber.
type Contacts struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Subscriber is a user's notification settings. Nil Thresholds means the user
// has not configured any and falls back to the defaults.
type Subscriber struct {
	UserID     string     `json:"user_id"`
	Thresholds Thresholds `json:"thresholds,omitempty"`
	Channels   []string   `json:"channels,omitempty"`
	Contacts   Contacts   `json:"contacts"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Subscriber) Clone() *Subscriber {
	if s == nil {
		return nil
	}
	c := *s
	c.Thresholds = s.Thresholds.Clone()
	c.Channels = append([]string(nil), s.Channels...)
	return &c
}

// NotificationContent is rendered once per dispatch from the signal.
type NotificationContent struct {
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Asset      string         `json:"asset"`
	Type       SignalType     `json:"type"`
	Strength   int            `json:"strength"`
	Confidence float64        `json:"confidence"`
	Level      SignalLevel    `json:"level"`
	SignalID   string         `json:"signal_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
}

// ChannelResult is the outcome of one channel delivery attempt.
type ChannelResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Notification struct {
	NotificationID string                   `json:"notification_id"`
	UserID         string                   `json:"user_id"`
	SignalID       string                   `json:"signal_id"`
	Content        NotificationContent      `json:"content"`
	Channels       map[string]ChannelResult `json:"channels"`
	Status         NotificationStatus       `json:"status"`
	Timestamp      time.Time                `json:"timestamp"`
}
