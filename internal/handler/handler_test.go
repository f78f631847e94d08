package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/EmanuelC1601/back-end/internal/database/dbtest"
	"github.com/EmanuelC1601/back-end/internal/repository"
	"github.com/EmanuelC1601/back-end/internal/service"
	"github.com/EmanuelC1601/back-end/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

type testServer struct {
	e       *echo.Echo
	uploads string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ex := dbtest.New(t)
	uploads := filepath.Join(t.TempDir(), "uploads")
	store, err := storage.NewDiskStore(uploads)
	require.NoError(t, err)

	intake := service.NewIntakeService(repository.NewImagenRepo(ex), store, nil, nil, 5*1024*1024, log)
	registros := service.NewRegistroService(repository.NewRegistroRepo(ex), nil, nil, bcrypt.MinCost, log)

	e := echo.New()
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(false, log)

	img := NewImagenHandler(intake, "", false, log)
	e.POST("/api/imagenes/subir", img.Subir)
	e.GET("/api/imagenes/obtener-todas", img.ObtenerTodas)
	e.DELETE("/api/imagenes/eliminar/:id", img.Eliminar)
	e.GET("/api/imagenes/estadisticas", img.Estadisticas)
	e.GET("/api/imagenes/:filename", img.Servir)

	reg := NewRegistroHandler(registros, false, log)
	e.POST("/api/registros/insertar-automatico", reg.InsertarAutomatico)
	e.POST("/api/registros/registrar-usuario", reg.RegistrarUsuario)
	e.GET("/api/registros/obtener-registros", reg.ObtenerRegistros)
	e.GET("/api/registros/obtener-usuarios", reg.ObtenerUsuarios)
	e.GET("/api/registros/estadisticas", reg.Estadisticas)

	health := &HealthHandler{Info: ServerInfo{Environment: "test", Host: "localhost", Port: "3000"}, DB: ex}
	e.GET("/api/health", health.Health)
	e.GET("/", health.Index)
	return &testServer{e: e, uploads: uploads}
}

func (s *testServer) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func (s *testServer) postJSON(path, payload string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return s.do(req)
}

func (s *testServer) get(path string) (*httptest.ResponseRecorder, map[string]any) {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) upload(t *testing.T, filename, contentType string, content []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="imagen"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imagenes/subir", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return s.do(req)
}

func TestInsertarAutomaticoSerieOutOfRange(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.postJSON("/api/registros/insertar-automatico", `{"usuario":"bob","password":"x","serie":10000}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "La serie debe ser un número entre 1 y 9999", body["message"])
}

func TestInsertarAutomaticoCreated(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.postJSON("/api/registros/insertar-automatico", `{"usuario":"bob","password":"x","serie":42}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(42), data["serie"])
	assert.Equal(t, "bob", data["usuario"])
	assert.NotContains(t, data, "password")
	assert.NotZero(t, data["id"])
}

func TestInsertarAutomaticoValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"missing serie", `{"usuario":"bob","password":"x"}`, "Todos los campos son requeridos (usuario, password, serie)"},
		{"zero serie", `{"usuario":"bob","password":"x","serie":0}`, "Todos los campos son requeridos (usuario, password, serie)"},
		{"missing usuario", `{"password":"x","serie":5}`, "Todos los campos son requeridos (usuario, password, serie)"},
		{"blank usuario", `{"usuario":"   ","password":"x","serie":5}`, "Todos los campos son requeridos (usuario, password, serie)"},
		{"empty serie", `{"usuario":"bob","password":"x","serie":""}`, "Todos los campos son requeridos (usuario, password, serie)"},
		{"string serie", `{"usuario":"bob","password":"x","serie":"42"}`, "La serie debe ser un número entre 1 y 9999"},
		{"fraction", `{"usuario":"bob","password":"x","serie":4.5}`, "La serie debe ser un número entre 1 y 9999"},
		{"negative", `{"usuario":"bob","password":"x","serie":-3}`, "La serie debe ser un número entre 1 y 9999"},
		{"malformed", `{"usuario":`, msgBadBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.postJSON("/api/registros/insertar-automatico", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, body["message"])
		})
	}
}

func (s *testServer) postForm(path string, form url.Values) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return s.do(req)
}

func TestInsertarAutomaticoFormBody(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.postForm("/api/registros/insertar-automatico", url.Values{
		"usuario": {"bob"}, "password": {"x"}, "serie": {"42"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(42), data["serie"])

	rec, body = s.postForm("/api/registros/insertar-automatico", url.Values{
		"usuario": {"ana"}, "password": {"x"}, "serie": {"abc"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "La serie debe ser un número entre 1 y 9999", body["message"])

	rec, body = s.postForm("/api/registros/insertar-automatico", url.Values{
		"usuario": {"ana"}, "password": {"x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Todos los campos son requeridos (usuario, password, serie)", body["message"])
}

func TestInsertarAutomaticoDuplicate(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.postJSON("/api/registros/insertar-automatico", `{"usuario":"bob","password":"x","serie":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.postJSON("/api/registros/insertar-automatico", `{"usuario":"bob","password":"y","serie":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "El usuario ya existe", body["message"])
}

func TestRegistrarUsuarioValidationOrder(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"short usuario", `{"usuario":"  ab  ","fechaNacimiento":"2000-01-02","password":"secreto","confirmPassword":"secreto"}`, "El usuario debe tener al menos 3 caracteres"},
		{"short usuario wins over everything", `{"usuario":"a"}`, "El usuario debe tener al menos 3 caracteres"},
		{"no fecha", `{"usuario":"alice","password":"secreto","confirmPassword":"secreto"}`, "La fecha de nacimiento es requerida"},
		{"short password", `{"usuario":"alice","fechaNacimiento":"2000-01-02","password":"abc","confirmPassword":"abc"}`, "La contraseña debe tener al menos 6 caracteres"},
		{"mismatch", `{"usuario":"alice","fechaNacimiento":"2000-01-02","password":"secreto","confirmPassword":"otro123"}`, "Las contraseñas no coinciden"},
		{"bad date", `{"usuario":"alice","fechaNacimiento":"02/01/2000","password":"secreto","confirmPassword":"secreto"}`, msgFechaInvalida},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.postJSON("/api/registros/registrar-usuario", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, body["message"])
		})
	}
}

func TestRegistrarUsuarioCreatedThenConflict(t *testing.T) {
	s := newTestServer(t)
	payload := `{"usuario":" alice ","fechaNacimiento":"2000-01-02","password":"secreto","confirmPassword":"secreto"}`

	rec, body := s.postJSON("/api/registros/registrar-usuario", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, "alice", data["usuario"])
	assert.Equal(t, "2000-01-02", data["fechaNacimiento"])
	assert.NotContains(t, data, "password")

	rec, body = s.postJSON("/api/registros/registrar-usuario", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "El usuario ya existe", body["message"])

	rec, body = s.get("/api/registros/obtener-usuarios")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestRegistrosListAndStats(t *testing.T) {
	s := newTestServer(t)
	for i, u := range []string{"ana", "beto"} {
		rec, _ := s.postJSON("/api/registros/insertar-automatico", fmt.Sprintf(`{"usuario":%q,"password":"x","serie":%d}`, u, i+1))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, body := s.get("/api/registros/obtener-registros")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Len(t, body["data"], 2)

	rec, body = s.get("/api/registros/estadisticas")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["totalRegistros"])
	assert.Equal(t, float64(0), data["totalUsuarios"])
	assert.NotEmpty(t, data["fecha"])
}

func TestObtenerTodasEmpty(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.get("/api/imagenes/obtener-todas")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
	assert.Equal(t, float64(0), body["count"])
}

func TestSubirTooLarge(t *testing.T) {
	s := newTestServer(t)
	content := append(append([]byte{}, pngBytes...), make([]byte, 6*1024*1024)...)
	rec, body := s.upload(t, "grande.png", "image/png", content)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El archivo es demasiado grande. Máximo 5MB", body["message"])
	entries, _ := os.ReadDir(s.uploads)
	assert.Empty(t, entries)
}

func TestSubirUnsupportedType(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.upload(t, "notas.txt", "text/plain", []byte("hola"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Error: Solo se permiten imágenes (jpeg, jpg, png, gif, webp, svg)", body["message"])
}

func TestSubirWithoutFile(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("otro", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/imagenes/subir", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())

	rec, body := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No se ha seleccionado ninguna imagen", body["message"])

	rec, body = s.postJSON("/api/imagenes/subir", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No se ha seleccionado ninguna imagen", body["message"])
}

func TestImagenLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.upload(t, "Mi Foto.png", "image/png", pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := body["data"].(map[string]any)
	name := data["nombreArchivo"].(string)
	assert.Equal(t, "Mi Foto.png", data["nombreOriginal"])
	assert.Equal(t, "http://example.com/uploads/"+name, data["url"])
	assert.Equal(t, "/uploads/"+name, data["ruta"])
	assert.Equal(t, "image/png", data["tipo"])
	assert.Equal(t, float64(len(pngBytes)), data["tamaño"])
	id := int64(data["id"].(float64))

	rec, body = s.get("/api/imagenes/obtener-todas")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = s.get("/api/imagenes/" + name)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))

	rec, body = s.get("/api/imagenes/estadisticas")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := body["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["totalImagenes"])
	assert.Equal(t, float64(len(pngBytes)), stats["tamañoTotal"])
	assert.Equal(t, "0.00 MB", stats["tamañoTotalMB"])
	assert.NotNil(t, stats["ultimaSubida"])

	del := func() (*httptest.ResponseRecorder, map[string]any) {
		return s.do(httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/imagenes/eliminar/%d", id), nil))
	}
	rec, body = del()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Imagen eliminada correctamente", body["message"])

	rec, body = del()
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Imagen no encontrada", body["message"])

	_, err := os.Stat(filepath.Join(s.uploads, name))
	assert.True(t, os.IsNotExist(err))
}

func TestServirMissingFileAnswersGone(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.upload(t, "foto.png", "image/png", pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code)
	name := body["data"].(map[string]any)["nombreArchivo"].(string)
	require.NoError(t, os.Remove(filepath.Join(s.uploads, name)))

	rec, body = s.get("/api/imagenes/" + name)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "Archivo de imagen no encontrado en el servidor", body["message"])
	assert.Equal(t, name, body["imagen"].(map[string]any)["nombreArchivo"])

	rec, body = s.get("/api/imagenes/desconocida.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Imagen no encontrada", body["message"])
}

func TestEliminarBadID(t *testing.T) {
	s := newTestServer(t)
	for _, id := range []string{"abc", "0", "-4"} {
		rec, body := s.do(httptest.NewRequest(http.MethodDelete, "/api/imagenes/eliminar/"+id, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		assert.Equal(t, "ID de imagen no válido", body["message"])
	}
}

func TestHealthAndIndex(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.get("/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	db := body["baseDatos"].(map[string]any)
	assert.Equal(t, "conectada", db["estado"])
	assert.Equal(t, float64(5), db["pool"].(map[string]any)["maxConexiones"])

	rec, body = s.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API del Proyecto Angular", body["message"])
	assert.Contains(t, body, "endpoints")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.get("/api/nada?x=1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Ruta no encontrada: GET /api/nada?x=1", body["message"])
	assert.NotEmpty(t, body["timestamp"])
}
