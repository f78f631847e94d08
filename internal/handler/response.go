package handler // handler translates HTTP requests into service calls and service errors into responses

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/EmanuelC1601/back-end/internal/database"
	"github.com/EmanuelC1601/back-end/internal/service"
)

const (
	msgDuplicate   = "El usuario ya existe"
	msgUnavailable = "Servicio temporalmente no disponible, intenta de nuevo en unos segundos"
	msgBadBody     = "El cuerpo de la solicitud no es válido"
)

// responder writes the {success:false, message} envelope.  Diagnostic
// detail is added only in development.
type responder struct {
	dev bool
	log *slog.Logger
}

func newResponder(dev bool, log *slog.Logger) responder {
	if log == nil {
		log = slog.Default()
	}
	return responder{dev: dev, log: log}
}

// statusFor maps a service or database error to its HTTP status and the
// client message.  An empty message means the caller's fallback is used.
func statusFor(err error) (int, string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, service.ErrDuplicate):
		return http.StatusConflict, msgDuplicate
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, database.ErrPoolSaturated), errors.Is(err, database.ErrTransient):
		return http.StatusServiceUnavailable, msgUnavailable
	}
	return http.StatusInternalServerError, ""
}

// fail writes err with the status it maps to.  fallback is the message for
// statuses that carry none of their own.
func (r responder) fail(c echo.Context, err error, fallback string) error {
	status, msg := statusFor(err)
	if msg == "" {
		msg = fallback
	}
	body := map[string]any{"success": false, "message": msg}
	if status >= http.StatusInternalServerError {
		r.log.Error(fallback,
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
		if r.dev {
			body["error"] = err.Error()
		}
	}
	if status == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "5")
	}
	return c.JSON(status, body)
}

func (r responder) badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": msg})
}

// NewHTTPErrorHandler renders framework errors (unknown route, wrong
// method, oversized body, panics recovered by middleware) in the same
// envelope as handler errors.
func NewHTTPErrorHandler(dev bool, log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		req := c.Request()
		status := http.StatusInternalServerError
		body := map[string]any{"success": false, "timestamp": time.Now().UTC().Format(time.RFC3339)}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		switch status {
		case http.StatusNotFound:
			body["message"] = fmt.Sprintf("Ruta no encontrada: %s %s", req.Method, req.URL.RequestURI())
		case http.StatusMethodNotAllowed:
			body["message"] = fmt.Sprintf("Método no permitido: %s %s", req.Method, req.URL.Path)
		case http.StatusRequestEntityTooLarge:
			body["message"] = "La solicitud excede el tamaño máximo permitido"
		case http.StatusForbidden:
			body["message"] = "Acceso bloqueado por política CORS"
		case http.StatusInternalServerError:
			log.Error("unhandled error", slog.String("method", req.Method), slog.String("uri", req.RequestURI), slog.String("error", err.Error()))
			body["message"] = "Error interno del servidor"
			if dev {
				body["error"] = err.Error()
			}
		default:
			body["message"] = http.StatusText(status)
			if he != nil {
				if m, ok := he.Message.(string); ok && m != "" {
					body["message"] = m
				}
			}
		}

		if req.Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("error response not written", slog.String("error", err.Error()))
		}
	}
}
