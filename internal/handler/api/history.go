package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
	xhttp "SignalEngine/pkg/http"
)

func (h *Handler) AddToHistory(c echo.Context) error {
	s := &models.Signal{}
	if err := c.Bind(s); err != nil {
		return h.fail(c, "add_signal_to_history", models.NewValidationError("body", err.Error()))
	}
	e, err := h.History.AddSignalToHistory(c.Request().Context(), s)
	if err != nil {
		return h.fail(c, "add_signal_to_history", err)
	}
	return xhttp.CreatedResponse(c, e)
}

func (h *Handler) SignalHistory(c echo.Context) error {
	req := &models.HistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := timeRange(req.From, req.To)
	if err != nil {
		return h.fail(c, "signal_history", err)
	}
	list, err := h.History.GetSignalHistory(c.Request().Context(), models.HistoryFilter{
		Asset:  req.Asset,
		Type:   models.SignalType(req.Type),
		Status: models.SignalStatus(req.Status),
		Level:  models.SignalLevel(req.Level),
		From:   from,
		To:     to,
	}, req.Limit)
	if err != nil {
		return h.fail(c, "signal_history", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *Handler) UpdateOutcome(c echo.Context) error {
	outcome := models.Outcome{}
	if err := c.Bind(&outcome); err != nil {
		return h.fail(c, "update_signal_outcome", models.NewValidationError("body", err.Error()))
	}
	e, err := h.Pipeline.ResolveOutcome(c.Request().Context(), c.Param("signal_id"), outcome)
	if err != nil {
		return h.fail(c, "update_signal_outcome", err)
	}
	return xhttp.SuccessResponse(c, e)
}

func (h *Handler) CancelSignal(c echo.Context) error {
	e, err := h.History.CancelSignal(c.Request().Context(), c.Param("signal_id"))
	if err != nil {
		return h.fail(c, "cancel_signal", err)
	}
	return xhttp.SuccessResponse(c, e)
}

func (h *Handler) HistoryStatistics(c echo.Context) error {
	req := &models.TimeRangeQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := timeRange(req.From, req.To)
	if err != nil {
		return h.fail(c, "history_statistics", err)
	}
	stats, err := h.History.GetSignalStatistics(c.Request().Context(), from, to)
	if err != nil {
		return h.fail(c, "history_statistics", err)
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *Handler) AccuracyTracking(c echo.Context) error {
	req := &models.AccuracyQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	report, err := h.History.GetAccuracyTracking(c.Request().Context(), req.Asset, models.SignalType(req.Type))
	if err != nil {
		return h.fail(c, "accuracy_tracking", err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *Handler) ClearHistory(c echo.Context) error {
	req := &models.ClearHistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	n, err := h.History.ClearHistory(c.Request().Context(), req.OlderThanDays)
	if err != nil {
		return h.fail(c, "clear_history", err)
	}
	return xhttp.SuccessResponse(c, map[string]int{"removed": n})
}

func (h *Handler) ExportHistory(c echo.Context) error {
	req := &models.ExportQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	data, err := h.History.Export(c.Request().Context(), req.Format)
	if err != nil {
		return h.fail(c, "export_history", err)
	}
	contentType := echo.MIMEApplicationJSONCharsetUTF8
	if req.Format == "csv" {
		contentType = "text/csv; charset=utf-8"
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="signal_history.csv"`)
	}
	return c.Blob(http.StatusOK, contentType, data)
}
