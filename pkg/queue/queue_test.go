package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	SignalID string   `json:"signal_id"`
	UserIDs  []string `json:"user_ids"`
}

func TestParsePayload(t *testing.T) {
	want := &job{SignalID: "signal_1", UserIDs: []string{"alice"}}

	got, err := ParsePayload[job](want)
	require.NoError(t, err)
	assert.Same(t, want, got)

	got, err = ParsePayload[job](map[string]interface{}{"signal_id": "signal_1", "user_ids": []interface{}{"alice"}})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParsePayload[job](json.RawMessage(`{"signal_id":"signal_1","user_ids":["alice"]}`))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParsePayload[job](42)
	assert.ErrorContains(t, err, "invalid payload type")
}

func TestBackoff(t *testing.T) {
	cfg := (&QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}).withDefaults()

	assert.Equal(t, time.Second, cfg.Backoff(0))
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
	assert.Equal(t, 5*time.Second, cfg.Backoff(4))
	assert.Equal(t, 5*time.Second, cfg.Backoff(40))
}

func TestConfigDefaults(t *testing.T) {
	cfg := (*QueueConfig)(nil).withDefaults()
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.MaxRetryDelay)
	assert.Equal(t, time.Second, cfg.PollInterval)

	cfg = (&QueueConfig{RetryDelay: 10 * time.Minute}).withDefaults()
	assert.Equal(t, 10*time.Minute, cfg.MaxRetryDelay)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope(`{"id":"e1","type":"notify_signal","payload":{"signal_id":"signal_1"},"attempts":2}`)
	require.NoError(t, err)
	assert.Equal(t, "notify_signal", env.Type)
	assert.Equal(t, 2, env.Attempts)

	got, err := ParsePayload[job](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "signal_1", got.SignalID)

	_, err = decodeEnvelope(`{"id":"e2"}`)
	assert.ErrorContains(t, err, "missing type")
	_, err = decodeEnvelope(`not json`)
	assert.Error(t, err)
}
