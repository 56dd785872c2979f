package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createRequest struct {
	Name  string `json:"name" validate:"required"`
	Limit int    `json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"name":"x"}`)
	var req createRequest
	assert.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, 100, req.Limit)

	c, _ = newContext(http.MethodPost, `{"limit":5000}`)
	errs := ReadAndValidateRequest(c, &createRequest{})
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
	assert.Equal(t, "name", errs[0].Field)
	assert.Equal(t, "ERR_LTE", errs[1].Code)
	assert.Equal(t, "limit", errs[1].Field)
	assert.Equal(t, "1000", errs[1].Params["max"])

	c, _ = newContext(http.MethodPost, `{"name":`)
	errs = ReadAndValidateRequest(c, &createRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
}

func TestAppErrorResponse_WritesStatus(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, NotFoundErrorf("signal %s not found", "signal_1")))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Contains(t, rec.Body.String(), "signal signal_1 not found")
}

func TestAppErrorResponse_UnknownErrorIs500(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, assert.AnError))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
