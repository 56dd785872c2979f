package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService enqueues typed work for the job registered under msgType.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job handles every envelope of one Type. A nil error acknowledges the
// envelope; any other error schedules a retry.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// Observer receives job latencies and queue failures.
type Observer interface {
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}

type nopObserver struct{}

func (nopObserver) RecordLatency(string, float64) {}
func (nopObserver) RecordError(string)            {}

type QueueConfig struct {
	Workers    int
	RetryLimit int
	// RetryDelay is the first backoff step. Each further attempt doubles it
	// up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// PollInterval bounds how long an idle worker blocks on Redis.
	PollInterval time.Duration
	// Reclaim moves envelopes left in flight by a previous process back to
	// the pending list on Start.
	Reclaim bool
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := QueueConfig{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 5 * time.Second
	}
	if out.MaxRetryDelay < out.RetryDelay {
		out.MaxRetryDelay = 5 * time.Minute
		if out.MaxRetryDelay < out.RetryDelay {
			out.MaxRetryDelay = out.RetryDelay
		}
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	return &out
}

// Backoff returns the delay before retry number attempt (1-based).
func (c *QueueConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxRetryDelay {
			return c.MaxRetryDelay
		}
	}
	return d
}

// Envelope is the JSON document stored in Redis for every enqueued job.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

func decodeEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

// Stats is a point-in-time view of the queue lists.
type Stats struct {
	Pending  int64 `json:"pending"`
	InFlight int64 `json:"in_flight"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

// ParsePayload decodes a job payload into T. Payloads read back from Redis
// arrive as json.RawMessage; in-process callers may pass T directly.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return unmarshalPayload[T](p)
	case []byte:
		return unmarshalPayload[T](p)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		return unmarshalPayload[T](data)
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

func unmarshalPayload[T any](data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &out, nil
}
