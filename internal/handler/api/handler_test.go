package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/repository"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/internal/services/classification"
	"SignalEngine/internal/services/evaluation"
	"SignalEngine/internal/services/history"
	"SignalEngine/internal/services/notification"
	"SignalEngine/internal/services/rules"
	"SignalEngine/internal/services/signals"
	"SignalEngine/internal/usecase"
	"SignalEngine/pkg/cache"
)

type quietChannel struct{}

func (quietChannel) Name() string { return models.ChannelSystem }

func (quietChannel) Send(context.Context, *models.Subscriber, models.NotificationContent) error {
	return nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestHandler(t *testing.T, limiter *ratelimit.Limiter) (*echo.Echo, *Handler) {
	t.Helper()
	generator := signals.NewGenerator(signals.Config{MinConfidence: signals.DefaultMinConfidence})
	evaluator, err := evaluation.NewEvaluator(models.DefaultWeights())
	require.NoError(t, err)
	classifier, err := classification.NewClassifier(models.DefaultStrengthThresholds(), models.DefaultConfidenceThresholds())
	require.NoError(t, err)

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	notifier, err := notification.NewService(
		notification.Config{Enabled: true, ChannelTimeout: time.Second},
		repository.NewCacheSubscriberRepository(mc),
		repository.NewMemoryNotificationRepository(100),
		notification.WithChannels(quietChannel{}),
	)
	require.NoError(t, err)

	engine := rules.NewEngine(repository.NewMemoryRuleRepository(), repository.NewKeyedMutex())
	hist := history.NewService(repository.NewMemoryHistoryRepository(0), repository.NewKeyedMutex())

	h := NewHandler(Deps{
		Generator:  generator,
		Evaluator:  evaluator,
		Classifier: classifier,
		Rules:      engine,
		Notifier:   notifier,
		History:    hist,
		Pipeline: usecase.NewSignalPipeline(usecase.PipelineDeps{
			Generator:  generator,
			Evaluator:  evaluator,
			Classifier: classifier,
			Rules:      engine,
			History:    hist,
			Dispatcher: usecase.NewInlineDispatcher(notifier),
		}),
		Limiter: limiter,
	})
	e := echo.New()
	h.RegisterRoutes(e)
	return e, h
}

func do(t *testing.T, e *echo.Echo, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) && rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestGenerateSignal(t *testing.T) {
	e, _ := newTestHandler(t, nil)

	rec, env := do(t, e, http.MethodPost, "/api/signals", map[string]any{
		"asset": "BTC", "type": "buy", "strength": 8, "confidence": 0.9,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var s models.Signal
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "BTC", s.Asset)
	assert.Equal(t, models.StatusActive, s.Status)
	assert.Equal(t, models.DeriveLevel(8, 0.9), s.Level)

	rec, _ = do(t, e, http.MethodPost, "/api/signals", map[string]any{"type": "buy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, e, http.MethodPost, "/api/signals", map[string]any{
		"asset": "BTC", "type": "buy", "strength": 11, "confidence": 0.9,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_VALIDATION")

	rec, env = do(t, e, http.MethodPost, "/api/signals", map[string]any{
		"asset": "BTC", "type": "buy", "strength": 8, "confidence": 0.1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var skipped map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &skipped))
	assert.Equal(t, true, skipped["skipped"])
}

func TestRuleCRUD(t *testing.T) {
	e, _ := newTestHandler(t, nil)

	rec, env := do(t, e, http.MethodPost, "/api/rules", map[string]any{
		"name":        "hot",
		"description": "price above 100",
		"type":        "threshold",
		"conditions":  []map[string]any{{"parameter": "price.current", "operator": "greater_than", "value": 100}},
		"actions":     []map[string]any{{"type": "generate_signal", "signal_type": "alert", "asset": "ALL", "strength": 8, "confidence": 0.8}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule models.Rule
	require.NoError(t, json.Unmarshal(env.Data, &rule))
	require.NotEmpty(t, rule.RuleID)
	assert.Equal(t, models.DefaultRulePriority, rule.Priority)

	rec, _ = do(t, e, http.MethodGet, "/api/rules/"+rule.RuleID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, e, http.MethodPost, "/api/rules/evaluate", map[string]any{
		"snapshot": map[string]any{"price": map[string]any{"current": 150}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), rule.RuleID)

	rec, _ = do(t, e, http.MethodGet, "/api/rules?type=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodDelete, "/api/rules/"+rule.RuleID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/rules/"+rule.RuleID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddRule_ExplicitZeroPriorityRejected(t *testing.T) {
	e, _ := newTestHandler(t, nil)

	rec, _ := do(t, e, http.MethodPost, "/api/rules", map[string]any{
		"name":        "zero",
		"description": "explicit zero priority",
		"type":        "threshold",
		"priority":    0,
		"conditions":  []map[string]any{{"parameter": "price.current", "operator": "greater_than", "value": 100}},
		"actions":     []map[string]any{{"type": "log"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec, env := do(t, e, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "explicit zero priority")
}

func TestUserThresholds(t *testing.T) {
	e, _ := newTestHandler(t, nil)

	rec, _ := do(t, e, http.MethodPut, "/api/users/alice/thresholds", map[string]any{
		"thresholds": map[string]int{"buy": 4},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/users/alice/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"alice","thresholds":{"buy":4}}`, string(env.Data))

	rec, _ = do(t, e, http.MethodPut, "/api/users/alice/thresholds", map[string]any{
		"thresholds": map[string]int{"buy": 40},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryOutcomeAndExport(t *testing.T) {
	e, h := newTestHandler(t, nil)
	ctx := context.Background()

	s, err := h.Generator.GenerateSignal(signals.Params{Asset: "ETH", Type: models.SignalBuy, Strength: 7, Confidence: 0.8})
	require.NoError(t, err)
	rec, _ := do(t, e, http.MethodPost, "/api/history", s)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, e, http.MethodPut, "/api/history/"+s.SignalID+"/outcome", map[string]any{"actual_outcome": "up"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entry models.HistoryEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, models.StatusCompleted, entry.Status)
	require.NotNil(t, entry.Accuracy)
	assert.Equal(t, 1.0, *entry.Accuracy)

	rec, _ = do(t, e, http.MethodPut, "/api/history/"+s.SignalID+"/outcome", map[string]any{"actual_outcome": "down"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/history/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/history?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/history/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "signal_history.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "history_id,signal_id"))

	entries, err := h.History.GetSignalHistory(ctx, models.HistoryFilter{}, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddToHistory_IgnoresClientLevel(t *testing.T) {
	e, h := newTestHandler(t, nil)

	s, err := h.Generator.GenerateSignal(signals.Params{Asset: "BTC", Type: models.SignalBuy, Strength: 1, Confidence: 0.6})
	require.NoError(t, err)
	s.Confidence = 0
	s.Level = models.LevelExtreme

	rec, env := do(t, e, http.MethodPost, "/api/history", s)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry models.HistoryEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, models.DeriveLevel(1, 0), entry.Level)

	rec, env = do(t, e, http.MethodGet, "/api/history?level=extreme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), s.SignalID)
}

func TestCheckNotifications_Disabled(t *testing.T) {
	e, h := newTestHandler(t, nil)
	sig := &models.Signal{
		SignalID: "signal_x", Asset: "BTC", Type: models.SignalBuy, Strength: 9, Confidence: 0.9,
		Timestamp: time.Now(), ExpiryTime: time.Now().Add(time.Hour), Status: models.StatusActive,
	}

	rec, env := do(t, e, http.MethodPost, "/api/notifications/check", map[string]any{"signal": sig, "user_ids": []string{"alice"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"total":1`)

	h.Notifier.SetEnabled(false)
	rec, env = do(t, e, http.MethodPost, "/api/notifications/check", map[string]any{"signal": sig})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_NOTIFICATIONS_DISABLED")

	rec, env = do(t, e, http.MethodPut, "/api/notifications/config", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"enabled":true`)
}

func TestThrottle(t *testing.T) {
	e, _ := newTestHandler(t, ratelimit.New(0.001, 2))

	for i := 0; i < 2; i++ {
		rec, _ := do(t, e, http.MethodGet, "/api/rules/defaults", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := do(t, e, http.MethodGet, "/api/rules/defaults", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")

	rec, _ = do(t, e, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
