package api

import (
	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
	xhttp "SignalEngine/pkg/http"
)

func (h *Handler) GetUserThresholds(c echo.Context) error {
	t, err := h.Notifier.GetUserThresholds(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return h.fail(c, "get_user_thresholds", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"user_id": c.Param("user_id"), "thresholds": t})
}

func (h *Handler) SetUserThresholds(c echo.Context) error {
	req := &models.ThresholdsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.Notifier.SetUserThresholds(c.Request().Context(), req.UserID, req.Thresholds); err != nil {
		return h.fail(c, "set_user_thresholds", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"user_id": req.UserID, "thresholds": req.Thresholds})
}

func (h *Handler) SetUserChannels(c echo.Context) error {
	req := &models.ChannelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.Notifier.SetUserChannels(c.Request().Context(), req.UserID, req.Channels, req.Contacts); err != nil {
		return h.fail(c, "set_user_channels", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"user_id": req.UserID, "channels": req.Channels})
}

func (h *Handler) CheckNotifications(c echo.Context) error {
	req := &models.CheckNotificationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.Notifier.Enabled() {
		return h.fail(c, "check_notifications", models.ErrNotificationsDisabled)
	}
	sent, err := h.Notifier.CheckAndSendNotifications(c.Request().Context(), req.Signal, req.UserIDs)
	if err != nil {
		return h.fail(c, "check_notifications", err)
	}
	return xhttp.ListResponse(c, sent, int64(len(sent)))
}

func (h *Handler) NotificationHistory(c echo.Context) error {
	req := &models.NotificationsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list, err := h.Notifier.GetNotificationHistory(c.Request().Context(), req.UserID, req.Limit)
	if err != nil {
		return h.fail(c, "notification_history", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *Handler) ClearNotifications(c echo.Context) error {
	n, err := h.Notifier.ClearHistory(c.Request().Context(), c.QueryParam("user_id"))
	if err != nil {
		return h.fail(c, "clear_notifications", err)
	}
	return xhttp.SuccessResponse(c, map[string]int{"removed": n})
}

type notificationConfig struct {
	Enabled           *bool             `json:"enabled,omitempty"`
	DefaultThresholds models.Thresholds `json:"default_thresholds,omitempty"`
	Channels          []string          `json:"channels,omitempty"`
}

func (h *Handler) NotificationConfig(c echo.Context) error {
	enabled := h.Notifier.Enabled()
	return xhttp.SuccessResponse(c, notificationConfig{
		Enabled:           &enabled,
		DefaultThresholds: h.Notifier.DefaultThresholds(),
		Channels:          h.Notifier.ChannelNames(),
	})
}

// UpdateNotificationConfig toggles dispatch and replaces the default
// thresholds. Omitted fields are left as they are.
func (h *Handler) UpdateNotificationConfig(c echo.Context) error {
	req := notificationConfig{}
	if err := c.Bind(&req); err != nil {
		return h.fail(c, "update_notification_config", models.NewValidationError("body", err.Error()))
	}
	if req.DefaultThresholds != nil {
		if err := h.Notifier.UpdateDefaultThresholds(req.DefaultThresholds); err != nil {
			return h.fail(c, "update_notification_config", err)
		}
	}
	if req.Enabled != nil {
		h.Notifier.SetEnabled(*req.Enabled)
	}
	return h.NotificationConfig(c)
}
