package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/handler/ws"
	apimetrics "SignalEngine/internal/service/metrics"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/internal/services/classification"
	"SignalEngine/internal/services/evaluation"
	"SignalEngine/internal/services/history"
	"SignalEngine/internal/services/notification"
	"SignalEngine/internal/services/rules"
	"SignalEngine/internal/services/signals"
	"SignalEngine/internal/usecase"
	xhttp "SignalEngine/pkg/http"
	xlogger "SignalEngine/pkg/logger"
	"SignalEngine/pkg/util"
)

// Deps are the services exposed over HTTP.
type Deps struct {
	Generator  *signals.Generator
	Evaluator  *evaluation.Evaluator
	Classifier *classification.Classifier
	Rules      *rules.Engine
	Notifier   *notification.Service
	History    *history.Service
	Pipeline   *usecase.SignalPipeline
	Hub        *ws.Hub
	// Limiter throttles requests per client IP; nil disables it.
	Limiter *ratelimit.Limiter
	Health  func(ctx context.Context) error
	Logger  *xlogger.Logger
}

// Handler is the REST façade of the engine.
type Handler struct {
	Deps
	logger *xlogger.Logger
}

func NewHandler(d Deps) *Handler {
	apimetrics.Register(nil)
	l := d.Logger
	if l == nil {
		l = xlogger.NewNop()
	}
	return &Handler{Deps: d, logger: l.Component("api")}
}

var _ xhttp.Handler = (*Handler)(nil)

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.HealthCheck)
	if h.Hub != nil {
		e.GET("/ws/notifications", h.Hub.Handle)
	}

	g := e.Group("/api", h.throttle)

	g.POST("/signals", h.GenerateSignal)
	g.PATCH("/signals", h.UpdateSignal)
	g.POST("/signals/ai", h.ProcessAIAnalysis)
	g.POST("/signals/snapshot", h.ProcessSnapshot)
	g.POST("/signals/evaluate", h.EvaluateSignal)
	g.POST("/signals/compare", h.CompareSignals)
	g.POST("/signals/evaluation-stats", h.EvaluationStatistics)
	g.POST("/signals/classify", h.ClassifySignal)
	g.POST("/signals/classification-stats", h.ClassificationStatistics)

	g.GET("/rules", h.ListRules)
	g.POST("/rules", h.AddRule)
	g.GET("/rules/defaults", h.DefaultRules)
	g.POST("/rules/evaluate", h.EvaluateRules)
	g.GET("/rules/:id", h.GetRule)
	g.PUT("/rules/:id", h.UpdateRule)
	g.DELETE("/rules/:id", h.RemoveRule)

	g.GET("/users/:user_id/thresholds", h.GetUserThresholds)
	g.PUT("/users/:user_id/thresholds", h.SetUserThresholds)
	g.PUT("/users/:user_id/channels", h.SetUserChannels)

	g.POST("/notifications/check", h.CheckNotifications)
	g.GET("/notifications", h.NotificationHistory)
	g.DELETE("/notifications", h.ClearNotifications)
	g.GET("/notifications/config", h.NotificationConfig)
	g.PUT("/notifications/config", h.UpdateNotificationConfig)

	g.POST("/history", h.AddToHistory)
	g.GET("/history", h.SignalHistory)
	g.DELETE("/history", h.ClearHistory)
	g.GET("/history/stats", h.HistoryStatistics)
	g.GET("/history/accuracy", h.AccuracyTracking)
	g.GET("/history/export", h.ExportHistory)
	g.PUT("/history/:signal_id/outcome", h.UpdateOutcome)
	g.POST("/history/:signal_id/cancel", h.CancelSignal)
}

func (h *Handler) HealthCheck(c echo.Context) error {
	if h.Health != nil {
		if err := h.Health(c.Request().Context()); err != nil {
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *Handler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.Limiter.Allow(c.RealIP()) {
			apimetrics.APIThrottled.WithLabelValues(c.Path()).Inc()
			h.logger.Warn("api rate limited", xlogger.String("remote", c.RealIP()), xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError())
		}
		return next(c)
	}
}

// fail maps domain errors onto the response envelope. A policy skip is a
// successful request that produced nothing.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	var verr *models.ValidationError
	var skip *models.PolicySkip
	if !errors.As(err, &skip) {
		apimetrics.APIErrors.WithLabelValues(op, errorKind(err)).Inc()
	}
	switch {
	case errors.As(err, &skip):
		h.logger.Info(op+" skipped", xlogger.String("reason", "policy_skip"), xlogger.String("detail", skip.Reason))
		return xhttp.SuccessResponse(c, map[string]any{"skipped": true, "reason": skip.Reason})
	case errors.As(err, &verr):
		h.logger.Warn(op+" rejected", xlogger.String("reason", "validation"), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_VALIDATION", verr.Field, verr.Message, http.StatusBadRequest).WithError(err))
	case errors.Is(err, models.ErrValidation):
		h.logger.Warn(op+" rejected", xlogger.String("reason", "validation"), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_VALIDATION", "", err.Error(), http.StatusBadRequest))
	case errors.Is(err, models.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, models.ErrConflict):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("ERR_CONFLICT", err.Error()))
	case errors.Is(err, models.ErrNotificationsDisabled):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("ERR_NOTIFICATIONS_DISABLED", err.Error()))
	}
	h.logger.Error(op+" failed", xlogger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrNotificationsDisabled):
		return "disabled"
	}
	return models.SkipReason(err)
}

// timeRange parses optional RFC3339 or unix-second bounds.
func timeRange(from, to string) (*time.Time, *time.Time, error) {
	parse := func(field, v string) (*time.Time, error) {
		if v == "" {
			return nil, nil
		}
		t, ok := util.ParseTime(v)
		if !ok {
			return nil, models.NewValidationError(field, "expected RFC3339 or unix seconds")
		}
		return &t, nil
	}
	f, err := parse("from", from)
	if err != nil {
		return nil, nil, err
	}
	t, err := parse("to", to)
	if err != nil {
		return nil, nil, err
	}
	return f, t, nil
}
