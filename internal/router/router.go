package router // package router defines how HTTP routes are registered for the API

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/EmanuelC1601/back-end/internal/config"
	"github.com/EmanuelC1601/back-end/internal/handler"
	"github.com/EmanuelC1601/back-end/internal/middleware"
	"github.com/EmanuelC1601/back-end/internal/service"
)

// Deps is everything the routes need.  Cache and RateLimit may be nil.
type Deps struct {
	Config    config.Config
	Imagenes  *handler.ImagenHandler
	Registros *handler.RegistroHandler
	Health    *handler.HealthHandler
	Cache     *middleware.RedisCache
	RateLimit echo.MiddlewareFunc
	// UploadsDir is served under /uploads when blobs live on local disk.
	UploadsDir string
	Logger     *slog.Logger
}

// New builds the echo instance with the global middleware stack and all
// routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(d.Config.IsDevelopment(), d.Logger)

	if d.Config.TracingEnabled {
		e.Use(echo.WrapMiddleware(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "http.server")
		}))
	}
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(corsMiddleware(d.Config.CORSOrigins, d.Logger))
	e.Use(echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		// uploads carry their own limit, see Register
		Skipper: func(c echo.Context) bool { return c.Request().URL.Path == uploadPath },
		Limit:   "5M",
	}))
	if d.Config.RequestTimeout > 0 {
		e.Use(echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{Timeout: d.Config.RequestTimeout}))
	}

	Register(e, d)
	return e
}

const uploadPath = "/api/imagenes/subir"

// uploadLimit leaves room for multipart framing around a file of the
// maximum size.
func uploadLimit(cfg config.Config) string {
	return fmt.Sprintf("%dM", max(2*cfg.MaxUploadMB(), 1))
}

// Register maps every API route onto e.
func Register(e *echo.Echo, d Deps) {
	limit := d.RateLimit
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	cached := func(group string) echo.MiddlewareFunc {
		if d.Cache == nil {
			return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
		}
		return d.Cache.Middleware(group)
	}

	e.GET("/", d.Health.Index)
	e.GET("/api/health", d.Health.Health)

	img := e.Group("/api/imagenes")
	img.POST("/subir", d.Imagenes.Subir, limit, d.Imagenes.LimitUpload(uploadLimit(d.Config)))
	img.GET("/obtener-todas", d.Imagenes.ObtenerTodas, cached(service.GroupImagenes))
	img.DELETE("/eliminar/:id", d.Imagenes.Eliminar, limit)
	img.GET("/estadisticas", d.Imagenes.Estadisticas, cached(service.GroupImagenes))
	img.GET("/:filename", d.Imagenes.Servir)

	reg := e.Group("/api/registros")
	reg.POST("/insertar-automatico", d.Registros.InsertarAutomatico, limit)
	reg.POST("/registrar-usuario", d.Registros.RegistrarUsuario, limit)
	reg.GET("/obtener-registros", d.Registros.ObtenerRegistros, cached(service.GroupRegistros))
	reg.GET("/obtener-usuarios", d.Registros.ObtenerUsuarios, cached(service.GroupRegistros))
	reg.GET("/estadisticas", d.Registros.Estadisticas, cached(service.GroupRegistros))

	if d.UploadsDir == "" {
		// blobs live off-disk; stored paths still point at /uploads
		e.GET("/uploads/:filename", d.Imagenes.Servir)
	} else {
		uploads := e.Group("/uploads")
		uploads.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Response().Header().Set("Cache-Control", "public, max-age=86400")
				return next(c)
			}
		})
		uploads.Static("/", d.UploadsDir)
	}
}

// corsMiddleware accepts requests without an Origin header and requests
// from the allow-list; other origins get 403.
func corsMiddleware(origins []string, log *slog.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	allowed := func(origin string) bool { return slices.Contains(origins, origin) }
	cors := echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOriginFunc:  func(origin string) (bool, error) { return allowed(origin), nil },
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderAccept},
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withCORS := cors(next)
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin != "" && !allowed(origin) {
				log.Warn("cors: origin blocked", slog.String("origin", origin))
				return c.JSON(http.StatusForbidden, map[string]any{
					"success":        false,
					"message":        "Acceso bloqueado por política CORS",
					"allowedOrigins": origins,
				})
			}
			return withCORS(c)
		}
	}
}
