package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skip-hire/internal/common"
)

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestWriteErrorAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NotFound("session not found"))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	env := decodeError(t, rr)
	require.Equal(t, common.CodeNotFound, env.Error.Code)
	require.Equal(t, "session not found", env.Error.Message)
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("dial tcp: secret host"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeError(t, rr)
	require.Equal(t, common.CodeInternal, env.Error.Code)
	require.NotContains(t, rr.Body.String(), "secret host")
}

type sortRequest struct {
	Order string   `json:"order" validate:"required,oneof=asc desc recommended"`
	Low   *float64 `json:"low" validate:"required,gte=0"`
}

func TestValidatorReportsJSONFieldNames(t *testing.T) {
	v := common.NewValidator()
	neg := -1.0
	err := v.Struct(sortRequest{Order: "cheapest", Low: &neg})
	require.Error(t, err)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, "oneof=asc desc recommended", details["order"])
	require.Equal(t, "gte=0", details["low"])

	zero := 0.0
	require.NoError(t, v.Struct(sortRequest{Order: "asc", Low: &zero}))
}

type boundRequest struct {
	Low decimal.NullDecimal `json:"low" validate:"required,gte=0"`
}

func TestValidatorHandlesNullDecimal(t *testing.T) {
	v := common.NewValidator()

	cases := []struct {
		name string
		body string
		rule string
	}{
		{name: "absent", body: `{}`, rule: "required"},
		{name: "null", body: `{"low":null}`, rule: "required"},
		{name: "negative", body: `{"low":-0.01}`, rule: "gte=0"},
		{name: "zero", body: `{"low":0}`},
		{name: "quoted", body: `{"low":"600.01"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req boundRequest
			require.NoError(t, json.Unmarshal([]byte(tc.body), &req))
			err := v.Struct(req)
			if tc.rule == "" {
				require.NoError(t, err)
				return
			}
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, tc.rule, appErr.Details.(map[string]string)["low"])
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"order":"asc","low":0}`},
		{name: "unknown field", body: `{"order":"asc","extra":1}`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
		{name: "trailing", body: `{"order":"asc"} {"order":"desc"}`, wantErr: true},
		{name: "syntax", body: `{"order":`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tc.body))
			var dst sortRequest
			err := common.DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, common.IsAppError(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, "asc", dst.Order)
		})
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	body := `{"order":"` + strings.Repeat("a", common.MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	var dst sortRequest
	err := common.DecodeJSON(httptest.NewRecorder(), req, &dst)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusRequestEntityTooLarge, appErr.HTTPStatus)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", common.ClientIP(req))
}
