package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/repository"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/pkg/cache"
)

type fakeChannel struct {
	name  string
	err   error
	block bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, sub *models.Subscriber, _ models.NotificationContent) error {
	f.mu.Lock()
	f.calls = append(f.calls, sub.UserID)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	svc, err := NewService(
		Config{Enabled: true, ChannelTimeout: 50 * time.Millisecond},
		repository.NewCacheSubscriberRepository(mc),
		repository.NewMemoryNotificationRepository(100),
		opts...,
	)
	require.NoError(t, err)
	return svc
}

func testSignal(typ models.SignalType, strength int) *models.Signal {
	return &models.Signal{
		SignalID:   "signal_0001",
		Asset:      "BTC",
		Type:       typ,
		Strength:   strength,
		Confidence: 0.8,
		Timestamp:  now,
		ExpiryTime: now.Add(24 * time.Hour),
		Status:     models.StatusActive,
		Level:      models.DeriveLevel(strength, 0.8),
	}
}

func TestSetUserThresholds_RejectsWholeMap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetUserThresholds(ctx, "alice", models.Thresholds{models.SignalBuy: 7}))

	err := svc.SetUserThresholds(ctx, "alice", models.Thresholds{models.SignalBuy: 3, models.SignalSell: 11})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := svc.GetUserThresholds(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Thresholds{models.SignalBuy: 7}, got)

	fallback, err := svc.GetUserThresholds(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), fallback)

	assert.ErrorIs(t, svc.SetUserThresholds(ctx, "alice", models.Thresholds{"moon": 3}), models.ErrValidation)
	assert.ErrorIs(t, svc.SetUserThresholds(ctx, "", models.Thresholds{models.SignalBuy: 3}), models.ErrValidation)
}

func TestCheckAndSend_DefaultUserAndThreshold(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem}
	svc := newTestService(t, WithChannels(system))
	ctx := context.Background()

	// buy threshold 6 by default
	out, err := svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 5), nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 6), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	n := out[0]
	assert.Equal(t, models.DefaultUserID, n.UserID)
	assert.Equal(t, "notif_1740830400_default", n.NotificationID)
	assert.Equal(t, models.NotificationSent, n.Status)
	assert.True(t, n.Channels[models.ChannelSystem].Success)
	assert.Equal(t, "Buy signal: BTC", n.Content.Title)

	// opportunity has no default threshold
	out, err = svc.CheckAndSendNotifications(ctx, testSignal(models.SignalOpportunity, 10), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCheckAndSend_ConfiguredUsersFallback(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem}
	svc := newTestService(t, WithChannels(system))
	ctx := context.Background()
	require.NoError(t, svc.SetUserThresholds(ctx, "alice", models.Thresholds{models.SignalSell: 3}))
	require.NoError(t, svc.SetUserThresholds(ctx, "bob", models.Thresholds{models.SignalSell: 9}))

	out, err := svc.CheckAndSendNotifications(ctx, testSignal(models.SignalSell, 5), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alice", out[0].UserID)

	out, err = svc.CheckAndSendNotifications(ctx, testSignal(models.SignalSell, 5), []string{"carol", "alice", "carol"})
	require.NoError(t, err)
	assert.Len(t, out, 1, "carol falls back to defaults (sell 6)")
}

func TestCheckAndSend_ChannelIsolationAndTimeout(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem, err: errors.New("boom")}
	slow := &fakeChannel{name: models.ChannelWebhook, block: true}
	email := &fakeChannel{name: models.ChannelEmail}
	svc := newTestService(t, WithChannels(system, slow, email))
	ctx := context.Background()
	require.NoError(t, svc.SetUserChannels(ctx, "alice", []string{"system", "webhook", "email", "sms"}, models.Contacts{Email: "a@example.com"}))

	start := time.Now()
	out, err := svc.CheckAndSendNotifications(ctx, testSignal(models.SignalAlert, 9), []string{"alice"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, out, 1)

	n := out[0]
	assert.Equal(t, models.NotificationSent, n.Status)
	assert.False(t, n.Channels["system"].Success)
	assert.False(t, n.Channels["webhook"].Success)
	assert.Contains(t, n.Channels["webhook"].Error, "timeout")
	assert.True(t, n.Channels["email"].Success)
	assert.Equal(t, "channel not configured", n.Channels["sms"].Error)
}

func TestCheckAndSend_AllChannelsFail(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem, err: errors.New("down")}
	svc := newTestService(t, WithChannels(system))

	out, err := svc.CheckAndSendNotifications(context.Background(), testSignal(models.SignalAlert, 9), []string{"alice"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.NotificationFailed, out[0].Status)
}

func TestCheckAndSend_ParallelUsers(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem}
	svc := newTestService(t, WithChannels(system))
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}

	out, err := svc.CheckAndSendNotifications(context.Background(), testSignal(models.SignalBuy, 9), users)
	require.NoError(t, err)
	require.Len(t, out, len(users))
	for i, n := range out {
		assert.Equal(t, users[i], n.UserID)
	}
	assert.Equal(t, len(users), system.count())
}

func TestCheckAndSend_DisabledAndInvalid(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem}
	svc := newTestService(t, WithChannels(system))
	ctx := context.Background()

	svc.SetEnabled(false)
	out, err := svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 9), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, system.count())

	svc.SetEnabled(true)
	_, err = svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 0), nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCheckAndSend_Throttled(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem}
	svc := newTestService(t, WithChannels(system), WithLimiter(ratelimit.New(0.001, 1)))
	ctx := context.Background()

	out, err := svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 9), []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, out[0].Status)

	out, err = svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 9), []string{"alice"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.NotificationThrottled, out[0].Status)
	assert.Equal(t, 1, system.count())
}

func TestNotificationHistory(t *testing.T) {
	system := &fakeChannel{name: models.ChannelSystem}
	svc := newTestService(t, WithChannels(system))
	ctx := context.Background()

	for _, u := range []string{"alice", "bob", "alice"} {
		_, err := svc.CheckAndSendNotifications(ctx, testSignal(models.SignalBuy, 9), []string{u})
		require.NoError(t, err)
	}
	all, err := svc.GetNotificationHistory(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].UserID)
	assert.Equal(t, "bob", all[1].UserID)

	alice, err := svc.GetNotificationHistory(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, alice, 1)

	n, err := svc.ClearHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	all, err = svc.GetNotificationHistory(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateDefaultThresholdsAndChannels(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.UpdateDefaultThresholds(models.Thresholds{models.SignalBuy: -1}), models.ErrValidation)
	assert.Equal(t, DefaultThresholds(), svc.DefaultThresholds())
	require.NoError(t, svc.UpdateDefaultThresholds(models.Thresholds{models.SignalBuy: 2}))
	assert.Equal(t, models.Thresholds{models.SignalBuy: 2}, svc.DefaultThresholds())

	assert.ErrorIs(t, svc.SetUserChannels(ctx, "alice", []string{"pigeon"}, models.Contacts{}), models.ErrValidation)
	assert.ErrorIs(t, svc.SetUserChannels(ctx, "alice", nil, models.Contacts{}), models.ErrValidation)
}
