package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/EmanuelC1601/back-end/internal/model"
	"github.com/EmanuelC1601/back-end/internal/service"
)

const (
	msgSinImagen       = "No se ha seleccionado ninguna imagen"
	msgUnaImagen       = "Solo se permite subir una imagen a la vez"
	msgIDInvalido      = "ID de imagen no válido"
	msgImagenNoExiste  = "Imagen no encontrada"
	msgArchivoNoExiste = "Archivo de imagen no encontrado en el servidor"
)

// ImagenHandler serves /api/imagenes.
type ImagenHandler struct {
	Svc *service.IntakeService
	// BaseURL prefixes image URLs; the request's scheme and host are used
	// when empty.
	BaseURL string
	responder
}

func NewImagenHandler(svc *service.IntakeService, baseURL string, dev bool, log *slog.Logger) *ImagenHandler {
	if svc == nil {
		panic("nil service passed to NewImagenHandler")
	}
	return &ImagenHandler{Svc: svc, BaseURL: baseURL, responder: newResponder(dev, log)}
}

// imagenView is an Imagen plus its absolute URL.
type imagenView struct {
	model.Imagen
	URL string `json:"url"`
}

func (h *ImagenHandler) view(c echo.Context, img model.Imagen) imagenView {
	base := h.BaseURL
	if base == "" {
		base = c.Scheme() + "://" + c.Request().Host
	}
	return imagenView{Imagen: img, URL: base + img.Ruta}
}

// LimitUpload caps the upload request body at limit (echo size syntax,
// e.g. "10M").  Any overflow is answered like an oversized file.
func (h *ImagenHandler) LimitUpload(limit string) echo.MiddlewareFunc {
	bodyLimit := echomw.BodyLimit(limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := bodyLimit(next)
		return func(c echo.Context) error {
			err := limited(c)
			if isTooLarge(err) && !c.Response().Committed {
				return h.badRequest(c, h.Svc.TooLargeMessage())
			}
			return err
		}
	}
}

func isTooLarge(err error) bool {
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge
}

// Subir handles POST /api/imagenes/subir (multipart field "imagen").
func (h *ImagenHandler) Subir(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			return h.badRequest(c, h.Svc.TooLargeMessage())
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return h.badRequest(c, msgSinImagen)
		}
		return h.fail(c, err, "Error al procesar el archivo")
	}
	files := form.File["imagen"]
	switch {
	case len(files) == 0:
		return h.badRequest(c, msgSinImagen)
	case len(files) > 1:
		return h.badRequest(c, msgUnaImagen)
	}
	fh := files[0]

	f, err := fh.Open()
	if err != nil {
		return h.fail(c, err, "Error al procesar el archivo")
	}
	defer f.Close()

	img, err := h.Svc.Upload(c.Request().Context(), service.Upload{
		OriginalName: fh.Filename,
		ContentType:  fh.Header.Get(echo.HeaderContentType),
		Size:         fh.Size,
		Body:         f,
	})
	if err != nil {
		return h.fail(c, err, "Error del servidor al subir imagen")
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": "Imagen subida correctamente",
		"data":    h.view(c, img),
	})
}

// ObtenerTodas handles GET /api/imagenes/obtener-todas, newest first.
func (h *ImagenHandler) ObtenerTodas(c echo.Context) error {
	imgs, err := h.Svc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Error del servidor al obtener imágenes")
	}
	out := make([]imagenView, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, h.view(c, img))
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": out, "count": len(out)})
}

// Eliminar handles DELETE /api/imagenes/eliminar/:id.
func (h *ImagenHandler) Eliminar(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return h.badRequest(c, msgIDInvalido)
	}
	if err := h.Svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]any{"success": false, "message": msgImagenNoExiste})
		}
		return h.fail(c, err, "Error del servidor al eliminar imagen")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Imagen eliminada correctamente"})
}

// Estadisticas handles GET /api/imagenes/estadisticas.
func (h *ImagenHandler) Estadisticas(c echo.Context) error {
	st, err := h.Svc.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Error del servidor al obtener estadísticas")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"totalImagenes": st.Total,
			"tamañoTotal":   st.TotalBytes,
			"tamañoTotalMB": service.FormatMB(st.TotalBytes),
			"ultimaSubida":  st.UltimaSubida,
		},
	})
}

// Servir handles GET /api/imagenes/:filename.  A row whose file is gone
// answers 410 with the row as metadata.
func (h *ImagenHandler) Servir(c echo.Context) error {
	name := c.Param("filename")
	rc, info, err := h.Svc.Open(c.Request().Context(), name)
	if err != nil {
		var gone *service.BlobGoneError
		switch {
		case errors.As(err, &gone):
			return c.JSON(http.StatusGone, map[string]any{
				"success": false,
				"message": msgArchivoNoExiste,
				"imagen":  h.view(c, gone.Imagen),
			})
		case errors.Is(err, service.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]any{"success": false, "message": msgImagenNoExiste})
		}
		return h.fail(c, err, "Error del servidor al servir imagen")
	}
	defer rc.Close()

	res := c.Response()
	res.Header().Set("Cache-Control", "public, max-age=86400")
	if info.ContentType != "" {
		res.Header().Set(echo.HeaderContentType, info.ContentType)
	}
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(res, c.Request(), info.Name, info.ModTime, rs)
		return nil
	}
	return c.Stream(http.StatusOK, info.ContentType, rc)
}
