package api

import (
	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/rules"
	xhttp "SignalEngine/pkg/http"
)

func (h *Handler) ListRules(c echo.Context) error {
	req := &models.RulesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var (
		list []*models.Rule
		err  error
	)
	if req.Type != "" {
		list, err = h.Rules.GetRulesByType(c.Request().Context(), models.RuleType(req.Type))
	} else {
		list, err = h.Rules.GetAllRules(c.Request().Context())
	}
	if err != nil {
		return h.fail(c, "list_rules", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *Handler) AddRule(c echo.Context) error {
	rule := &models.Rule{}
	if err := c.Bind(rule); err != nil {
		return h.fail(c, "add_rule", models.NewValidationError("body", err.Error()))
	}
	id, err := h.Rules.AddRule(c.Request().Context(), rule)
	if err != nil {
		return h.fail(c, "add_rule", err)
	}
	stored, err := h.Rules.GetRule(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "add_rule", err)
	}
	return xhttp.CreatedResponse(c, stored)
}

func (h *Handler) GetRule(c echo.Context) error {
	r, err := h.Rules.GetRule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get_rule", err)
	}
	return xhttp.SuccessResponse(c, r)
}

func (h *Handler) UpdateRule(c echo.Context) error {
	patch := models.RulePatch{}
	if err := c.Bind(&patch); err != nil {
		return h.fail(c, "update_rule", models.NewValidationError("body", err.Error()))
	}
	r, err := h.Rules.UpdateRule(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, "update_rule", err)
	}
	return xhttp.SuccessResponse(c, r)
}

func (h *Handler) RemoveRule(c echo.Context) error {
	if err := h.Rules.RemoveRule(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "remove_rule", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *Handler) DefaultRules(c echo.Context) error {
	list := rules.DefaultRules()
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *Handler) EvaluateRules(c echo.Context) error {
	req := &models.EvaluateRulesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	matched, err := h.Rules.EvaluateRules(c.Request().Context(), req.Snapshot)
	if err != nil {
		return h.fail(c, "evaluate_rules", err)
	}
	return xhttp.ListResponse(c, matched, int64(len(matched)))
}
