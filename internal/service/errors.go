package service

import (
	"errors"
	"fmt"

	"github.com/EmanuelC1601/back-end/internal/model"
)

// Service level error classes.  Handlers translate these to HTTP statuses.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrBlobGone   = errors.New("stored file is gone")

	ErrNoFile          = errors.New("no file uploaded")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ValidationError carries the message shown to the client.  It matches
// ErrValidation and, when set, its cause.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// Invalid builds a ValidationError.
func Invalid(msg string, cause error) error { return &ValidationError{Message: msg, Err: cause} }

// BlobGoneError reports an image whose row exists but whose file does not.
type BlobGoneError struct {
	Imagen model.Imagen
}

func (e *BlobGoneError) Error() string {
	return fmt.Sprintf("file %s of imagen %d is gone", e.Imagen.NombreArchivo, e.Imagen.ID)
}

func (e *BlobGoneError) Unwrap() error { return ErrBlobGone }
