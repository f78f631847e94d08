package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/EmanuelC1601/back-end/internal/database"
)

// ServerInfo describes the running process for the health and index
// endpoints.
type ServerInfo struct {
	Environment string
	Host        string
	Port        string
	PublicURL   string
	UploadsDir  string
	Render      bool
}

// DBProbe is the part of the executor the health check reads.
type DBProbe interface {
	Ping(ctx context.Context) error
	Stats() database.Stats
}

// HealthHandler serves the liveness probe and the API index.
type HealthHandler struct {
	Info ServerInfo
	DB   DBProbe // optional
}

// Health always answers 200 while the process serves requests; the
// database state is informational.
func (h *HealthHandler) Health(c echo.Context) error {
	body := map[string]any{
		"success":     true,
		"message":     "Servidor funcionando correctamente",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": h.Info.Environment,
		"host":        h.Info.Host,
		"port":        h.Info.Port,
		"renderUrl":   h.Info.PublicURL,
		"uploadsDir":  h.Info.UploadsDir,
	}
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		estado := "conectada"
		if err := h.DB.Ping(ctx); err != nil {
			estado = "no disponible"
		}
		body["baseDatos"] = map[string]any{"estado": estado, "pool": h.DB.Stats()}
	}
	return c.JSON(http.StatusOK, body)
}

// Index handles GET / with the list of endpoints.
func (h *HealthHandler) Index(c echo.Context) error {
	var warning any
	if h.Info.Environment == "production" {
		warning = "Uploads son temporales en plan Free"
	}
	render := "No"
	if h.Info.Render {
		render = "Sí"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":     "API del Proyecto Angular",
		"version":     "1.0.0",
		"environment": h.Info.Environment,
		"endpoints": map[string]any{
			"health": "GET /api/health",
			"registros": map[string]string{
				"insertar":     "POST /api/registros/insertar-automatico",
				"registrar":    "POST /api/registros/registrar-usuario",
				"listar":       "GET /api/registros/obtener-registros",
				"usuarios":     "GET /api/registros/obtener-usuarios",
				"estadisticas": "GET /api/registros/estadisticas",
			},
			"imagenes": map[string]string{
				"subir":        "POST /api/imagenes/subir",
				"listar":       "GET /api/imagenes/obtener-todas",
				"eliminar":     "DELETE /api/imagenes/eliminar/:id",
				"estadisticas": "GET /api/imagenes/estadisticas",
				"ver":          "GET /api/imagenes/:filename",
			},
		},
		"info": map[string]any{
			"host":    h.Info.Host,
			"port":    h.Info.Port,
			"uploads": h.Info.UploadsDir,
			"render":  render,
			"warning": warning,
		},
	})
}
