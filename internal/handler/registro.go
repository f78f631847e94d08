package handler

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/EmanuelC1601/back-end/internal/model"
	"github.com/EmanuelC1601/back-end/internal/service"
)

const (
	msgCamposRequeridos = "Todos los campos son requeridos (usuario, password, serie)"
	msgSerieRango       = "La serie debe ser un número entre 1 y 9999"
	msgFechaInvalida    = "La fecha de nacimiento no es válida (formato AAAA-MM-DD)"
)

// RegistroHandler serves /api/registros.
type RegistroHandler struct {
	Svc *service.RegistroService
	responder
}

func NewRegistroHandler(svc *service.RegistroService, dev bool, log *slog.Logger) *RegistroHandler {
	if svc == nil {
		panic("nil service passed to NewRegistroHandler")
	}
	return &RegistroHandler{Svc: svc, responder: newResponder(dev, log)}
}

// serie is kept untyped so a string or a fraction is reported as out of
// range instead of failing the whole body.  It is checked by hand after
// the struct validation.
type insertarAutomaticoRequest struct {
	Usuario  string `json:"usuario" validate:"required" msg:"Todos los campos son requeridos (usuario, password, serie)"`
	Password string `json:"password" validate:"required" msg:"Todos los campos son requeridos (usuario, password, serie)"`
	Serie    any    `json:"serie"`
}

type registrarUsuarioRequest struct {
	Usuario         string `json:"usuario" form:"usuario" validate:"min=3" msg:"El usuario debe tener al menos 3 caracteres"`
	FechaNacimiento string `json:"fechaNacimiento" form:"fechaNacimiento" validate:"required" msg:"La fecha de nacimiento es requerida"`
	Password        string `json:"password" form:"password" validate:"min=6" msg:"La contraseña debe tener al menos 6 caracteres"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword" validate:"eqfield=Password" msg:"Las contraseñas no coinciden"`
}

// bindInsertar decodes JSON bodies with echo's binder.  Form bodies are
// read field by field because the form binder cannot fill an untyped
// field; a numeric serie there is converted to a number.
func bindInsertar(c echo.Context, req *insertarAutomaticoRequest) error {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEApplicationForm) && !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		return c.Bind(req)
	}
	req.Usuario = c.FormValue("usuario")
	req.Password = c.FormValue("password")
	if raw := strings.TrimSpace(c.FormValue("serie")); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			req.Serie = f
		} else {
			req.Serie = raw
		}
	}
	return nil
}

// serieMissing reports an absent, zero or empty serie.
func serieMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return x == 0
	case string:
		return x == ""
	case bool:
		return !x
	}
	return false
}

// parseSerie accepts JSON numbers with an integral value in 1..9999.
func parseSerie(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 1 || f > 9999 {
		return 0, false
	}
	return int(f), true
}

// InsertarAutomatico handles POST /api/registros/insertar-automatico.
func (h *RegistroHandler) InsertarAutomatico(c echo.Context) error {
	var req insertarAutomaticoRequest
	if err := bindInsertar(c, &req); err != nil {
		return h.badRequest(c, msgBadBody)
	}
	req.Usuario = strings.TrimSpace(req.Usuario)
	if err := c.Validate(&req); err != nil {
		return h.fail(c, err, msgCamposRequeridos)
	}
	if serieMissing(req.Serie) {
		return h.badRequest(c, msgCamposRequeridos)
	}
	serie, ok := parseSerie(req.Serie)
	if !ok {
		return h.badRequest(c, msgSerieRango)
	}

	reg, err := h.Svc.InsertarAutomatico(c.Request().Context(), req.Usuario, req.Password, serie)
	if err != nil {
		return h.fail(c, err, "Error del servidor al insertar registro")
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registro insertado correctamente",
		"data":    reg,
	})
}

// RegistrarUsuario handles POST /api/registros/registrar-usuario.  Checks
// run in a fixed order and the first failure is reported.
func (h *RegistroHandler) RegistrarUsuario(c echo.Context) error {
	var req registrarUsuarioRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, msgBadBody)
	}
	req.Usuario = strings.TrimSpace(req.Usuario)
	req.FechaNacimiento = strings.TrimSpace(req.FechaNacimiento)
	if err := c.Validate(&req); err != nil {
		return h.fail(c, err, msgBadBody)
	}
	fecha, err := model.ParseDate(req.FechaNacimiento)
	if err != nil {
		return h.badRequest(c, msgFechaInvalida)
	}

	u, err := h.Svc.RegistrarUsuario(c.Request().Context(), req.Usuario, fecha, req.Password)
	if err != nil {
		return h.fail(c, err, "Error del servidor al registrar usuario")
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": "Usuario registrado correctamente",
		"data":    u,
	})
}

// ObtenerRegistros handles GET /api/registros/obtener-registros.
func (h *RegistroHandler) ObtenerRegistros(c echo.Context) error {
	regs, err := h.Svc.Listar(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Error del servidor al obtener registros")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": regs, "count": len(regs)})
}

// ObtenerUsuarios handles GET /api/registros/obtener-usuarios.
func (h *RegistroHandler) ObtenerUsuarios(c echo.Context) error {
	users, err := h.Svc.ListarUsuarios(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Error del servidor al obtener usuarios")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": users, "count": len(users)})
}

// Estadisticas handles GET /api/registros/estadisticas.
func (h *RegistroHandler) Estadisticas(c echo.Context) error {
	st, err := h.Svc.Estadisticas(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Error del servidor al obtener estadísticas")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"totalRegistros": st.TotalRegistros,
			"totalUsuarios":  st.TotalUsuarios,
			"fecha":          time.Now().UTC().Format(time.RFC3339),
		},
	})
}
