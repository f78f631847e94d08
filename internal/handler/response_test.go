package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmanuelC1601/back-end/internal/database"
	"github.com/EmanuelC1601/back-end/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", service.Invalid("mal", nil), http.StatusBadRequest, "mal"},
		{"duplicate", fmt.Errorf("create: %w", service.ErrDuplicate), http.StatusConflict, "El usuario ya existe"},
		{"not found", service.ErrNotFound, http.StatusNotFound, ""},
		{"saturated", &database.QueryError{Op: "query", Kind: database.ErrPoolSaturated, Err: database.ErrPoolSaturated}, http.StatusServiceUnavailable, msgUnavailable},
		{"transient", &database.QueryError{Op: "exec", Attempts: 3, Kind: database.ErrTransient, Err: io.ErrUnexpectedEOF}, http.StatusServiceUnavailable, msgUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func failWith(dev bool, err error) (*httptest.ResponseRecorder, map[string]any) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	r := newResponder(dev, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_ = r.fail(c, err, "Error del servidor")
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestFailHidesDetailOutsideDevelopment(t *testing.T) {
	rec, body := failWith(false, errors.New("dial tcp 10.0.0.1:3306: refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error del servidor", body["message"])
	assert.NotContains(t, body, "error")

	_, body = failWith(true, errors.New("dial tcp 10.0.0.1:3306: refused"))
	assert.Equal(t, "dial tcp 10.0.0.1:3306: refused", body["error"])
}

func TestFailUnavailableSetsRetryAfter(t *testing.T) {
	rec, body := failWith(false, &database.QueryError{Op: "query", Kind: database.ErrPoolSaturated, Err: database.ErrPoolSaturated})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, false, body["success"])
}

func TestHTTPErrorHandlerEnvelope(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.GET("/boom", func(echo.Context) error { return errors.New("secret detail") })
	e.GET("/grande", func(echo.Context) error { return echo.ErrStatusRequestEntityTooLarge })
	e.GET("/solo-get", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	tests := []struct {
		method, path string
		status       int
		msg          string
	}{
		{http.MethodGet, "/boom", http.StatusInternalServerError, "Error interno del servidor"},
		{http.MethodGet, "/grande", http.StatusRequestEntityTooLarge, "La solicitud excede el tamaño máximo permitido"},
		{http.MethodPost, "/solo-get", http.StatusMethodNotAllowed, "Método no permitido: POST /solo-get"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.status, rec.Code, tt.path)
		assert.Equal(t, tt.msg, body["message"], tt.path)
		assert.Equal(t, false, body["success"])
		assert.NotContains(t, body, "error")
	}
}
