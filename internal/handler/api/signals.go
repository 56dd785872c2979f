package api

import (
	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/signals"
	xhttp "SignalEngine/pkg/http"
)

func (h *Handler) GenerateSignal(c echo.Context) error {
	req := &models.GenerateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.Generator.GenerateSignal(signals.Params{
		Asset:             req.Asset,
		Type:              req.Type,
		Strength:          req.Strength,
		Confidence:        req.Confidence,
		TriggerConditions: req.TriggerConditions,
		AIAnalysis:        req.AIAnalysis,
		MarketData:        req.MarketData,
	})
	if err != nil {
		return h.fail(c, "generate_signal", err)
	}
	return xhttp.CreatedResponse(c, s)
}

func (h *Handler) UpdateSignal(c echo.Context) error {
	req := &models.UpdateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.Generator.UpdateSignal(req.Signal, req.Patch)
	if err != nil {
		return h.fail(c, "update_signal", err)
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *Handler) ProcessAIAnalysis(c echo.Context) error {
	req := &models.AIAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.Pipeline.ProcessAIAnalysis(c.Request().Context(), req.AIAnalysis, req.MarketData, req.UserIDs)
	if err != nil {
		return h.fail(c, "process_ai_analysis", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *Handler) ProcessSnapshot(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.Pipeline.ProcessSnapshot(c.Request().Context(), req.Snapshot, req.UserIDs)
	if err != nil {
		return h.fail(c, "process_snapshot", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *Handler) EvaluateSignal(c echo.Context) error {
	req := &models.EvaluateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ev, err := h.Evaluator.EvaluateSignal(req.Signal, req.HistoricalData)
	if err != nil {
		return h.fail(c, "evaluate_signal", err)
	}
	return xhttp.SuccessResponse(c, ev)
}

func (h *Handler) CompareSignals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ranked := h.Evaluator.CompareSignals(req.Signals, req.HistoricalData)
	return xhttp.ListResponse(c, ranked, int64(len(ranked)))
}

func (h *Handler) EvaluationStatistics(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.Evaluator.GetSignalStatistics(req.Signals))
}

func (h *Handler) ClassifySignal(c echo.Context) error {
	req := &models.ClassifySignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cl, err := h.Classifier.ClassifySignal(req.Signal)
	if err != nil {
		return h.fail(c, "classify_signal", err)
	}
	return xhttp.SuccessResponse(c, cl)
}

func (h *Handler) ClassificationStatistics(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.Classifier.GetSignalStatistics(req.Signals))
}
