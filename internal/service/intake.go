package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/EmanuelC1601/back-end/internal/model"
	"github.com/EmanuelC1601/back-end/internal/queue"
	"github.com/EmanuelC1601/back-end/internal/repository"
	"github.com/EmanuelC1601/back-end/internal/storage"
	"github.com/EmanuelC1601/back-end/internal/utils"
)

// ImagenRepository is the part of repository.ImagenRepo the intake
// pipeline needs.
type ImagenRepository interface {
	Create(ctx context.Context, img *model.Imagen) error
	List(ctx context.Context) ([]model.Imagen, error)
	GetByID(ctx context.Context, id int64) (model.Imagen, error)
	GetByFilename(ctx context.Context, name string) (model.Imagen, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (model.ImagenStats, error)
}

// IntakeState is the position of one upload in the pipeline.
//
//	Received -> Validated -> Stored -> Persisted -> Complete
//	Stored -> Rollback -> Failed
//
// Validation or storage failures go straight to Failed.  No state leads
// back to Received.
type IntakeState int

const (
	StateReceived IntakeState = iota
	StateValidated
	StateStored
	StatePersisted
	StateComplete
	StateRollback
	StateFailed
)

func (s IntakeState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateStored:
		return "stored"
	case StatePersisted:
		return "persisted"
	case StateComplete:
		return "complete"
	case StateRollback:
		return "rollback"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("IntakeState(%d)", int(s))
}

// Upload is one inbound file.
type Upload struct {
	OriginalName string
	ContentType  string // as declared by the client
	Size         int64  // as declared by the client; the body is still capped
	Body         io.Reader
}

// allowed extensions and the MIME types they may be declared as
var allowedTypes = map[string][]string{
	".jpeg": {"image/jpeg", "image/jpg", "image/pjpeg"},
	".jpg":  {"image/jpeg", "image/jpg", "image/pjpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".webp": {"image/webp"},
	".svg":  {"image/svg+xml"},
}

// IntakeService turns uploads into a stored blob plus an Imagenes row.
type IntakeService struct {
	repo     ImagenRepository
	store    storage.Store
	events   Publisher
	cache    Invalidator
	log      *slog.Logger
	maxBytes int64
}

func NewIntakeService(repo ImagenRepository, store storage.Store, events Publisher, cache Invalidator, maxBytes int64, log *slog.Logger) *IntakeService {
	if events == nil {
		events = NoopPublisher{}
	}
	if cache == nil {
		cache = noopInvalidator{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &IntakeService{repo: repo, store: store, events: events, cache: cache, log: log, maxBytes: maxBytes}
}

// MaxBytes is the upload cap.
func (s *IntakeService) MaxBytes() int64 { return s.maxBytes }

// TooLargeMessage is the client message for an oversized upload.
func (s *IntakeService) TooLargeMessage() string {
	return fmt.Sprintf("El archivo es demasiado grande. Máximo %dMB", s.maxBytes/(1024*1024))
}

const unsupportedMessage = "Error: Solo se permiten imágenes (jpeg, jpg, png, gif, webp, svg)"

type intake struct {
	svc   *IntakeService
	state IntakeState
	name  string
	log   *slog.Logger
}

func (in *intake) to(next IntakeState) {
	in.log.Debug("intake transition", slog.String("from", in.state.String()), slog.String("to", next.String()))
	in.state = next
}

// Upload validates, stores and persists one image.  When the row insert
// fails the stored blob is removed again and the insert error is returned;
// a failure to remove the blob is only logged.
func (s *IntakeService) Upload(ctx context.Context, up Upload) (model.Imagen, error) {
	in := &intake{svc: s, state: StateReceived, log: s.log.With(slog.String("original", up.OriginalName))}

	if up.Body == nil {
		in.to(StateFailed)
		return model.Imagen{}, Invalid("No se ha seleccionado ninguna imagen", ErrNoFile)
	}
	body, contentType, err := s.validate(up)
	if err != nil {
		in.to(StateFailed)
		return model.Imagen{}, err
	}
	in.to(StateValidated)

	in.name = utils.StoredName(up.OriginalName)
	counter := &cappedReader{r: body, max: s.maxBytes}
	if err := s.store.Save(ctx, in.name, counter, up.Size, contentType); err != nil {
		in.to(StateFailed)
		if errors.Is(err, ErrFileTooLarge) {
			return model.Imagen{}, Invalid(s.TooLargeMessage(), ErrFileTooLarge)
		}
		return model.Imagen{}, fmt.Errorf("store %s: %w", in.name, err)
	}
	in.to(StateStored)

	img := model.Imagen{
		NombreOriginal: up.OriginalName,
		NombreArchivo:  in.name,
		Ruta:           "/uploads/" + in.name,
		Tipo:           contentType,
		Tamano:         counter.n,
	}
	if err := s.repo.Create(ctx, &img); err != nil {
		in.rollback(ctx)
		return model.Imagen{}, mapRepoErr(err)
	}
	in.to(StatePersisted)

	ev := queue.NewEvent(queue.EventImagenSubida, img.ID)
	ev.NombreArchivo, ev.Tamano = img.NombreArchivo, img.Tamano
	afterWrite(ctx, s.log, s.events, s.cache, GroupImagenes, ev)
	in.to(StateComplete)

	s.log.Info("imagen subida", slog.Int64("id", img.ID), slog.String("archivo", img.NombreArchivo), slog.Int64("bytes", img.Tamano))
	return img, nil
}

func (in *intake) rollback(ctx context.Context) {
	in.to(StateRollback)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := in.svc.store.Remove(ctx, in.name); err != nil && !errors.Is(err, storage.ErrNotExist) {
		in.log.Error("rollback: stored file not removed", slog.String("archivo", in.name), slog.String("error", err.Error()))
	}
	in.to(StateFailed)
}

// validate checks size, extension, declared type and, for raster formats,
// the sniffed content.  It returns a reader replaying the sniffed prefix.
func (s *IntakeService) validate(up Upload) (io.Reader, string, error) {
	if up.Size > s.maxBytes {
		return nil, "", Invalid(s.TooLargeMessage(), ErrFileTooLarge)
	}

	ext := utils.Ext(up.OriginalName)
	mimes, ok := allowedTypes[ext]
	declared := strings.ToLower(strings.TrimSpace(strings.Split(up.ContentType, ";")[0]))
	if !ok || !slices.Contains(mimes, declared) {
		return nil, "", Invalid(unsupportedMessage, ErrUnsupportedType)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, "", Invalid("No se ha seleccionado ninguna imagen", ErrNoFile)
	}
	if ext != ".svg" {
		sniffed := http.DetectContentType(head)
		if !strings.HasPrefix(sniffed, "image/") {
			return nil, "", Invalid(unsupportedMessage, ErrUnsupportedType)
		}
	}
	return io.MultiReader(bytes.NewReader(head), up.Body), declared, nil
}

// Delete removes the blob, tolerating its absence, then the row.  The row
// delete is authoritative: a second Delete of the same id is ErrNotFound.
func (s *IntakeService) Delete(ctx context.Context, id int64) error {
	img, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapRepoErr(err)
	}
	if err := s.store.Remove(ctx, img.NombreArchivo); err != nil && !errors.Is(err, storage.ErrNotExist) {
		s.log.Warn("stored file not removed", slog.String("archivo", img.NombreArchivo), slog.String("error", err.Error()))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoErr(err)
	}

	ev := queue.NewEvent(queue.EventImagenEliminada, img.ID)
	ev.NombreArchivo = img.NombreArchivo
	afterWrite(ctx, s.log, s.events, s.cache, GroupImagenes, ev)
	s.log.Info("imagen eliminada", slog.Int64("id", id), slog.String("archivo", img.NombreArchivo))
	return nil
}

// Open returns the stored blob.  A missing blob whose row still exists is
// a *BlobGoneError carrying the row; a name unknown to both is ErrNotFound.
func (s *IntakeService) Open(ctx context.Context, filename string) (io.ReadCloser, storage.Info, error) {
	if !storage.ValidName(filename) {
		return nil, storage.Info{}, ErrNotFound
	}
	rc, info, err := s.store.Open(ctx, filename)
	if err == nil {
		return rc, info, nil
	}
	if !errors.Is(err, storage.ErrNotExist) {
		return nil, storage.Info{}, err
	}
	img, err := s.repo.GetByFilename(ctx, filename)
	if err != nil {
		return nil, storage.Info{}, mapRepoErr(err)
	}
	return nil, storage.Info{}, &BlobGoneError{Imagen: img}
}

func (s *IntakeService) List(ctx context.Context) ([]model.Imagen, error) {
	return s.repo.List(ctx)
}

func (s *IntakeService) Stats(ctx context.Context) (model.ImagenStats, error) {
	return s.repo.Stats(ctx)
}

// FormatMB renders a byte count the way the statistics endpoint shows it.
func FormatMB(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}

// cappedReader counts bytes and fails once more than max were read.
type cappedReader struct {
	r   io.Reader
	max int64
	n   int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.max {
		return n, ErrFileTooLarge
	}
	return n, err
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}
