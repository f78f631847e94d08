// Package storage holds uploaded image blobs.  The intake pipeline writes
// a blob before its row exists and removes it again when the row insert
// fails, so implementations must make Save visible atomically: a reader
// sees either the whole blob or nothing.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotExist is returned by Open and Remove for unknown names.
	ErrNotExist = errors.New("blob does not exist")
	// ErrInvalidName rejects names that could escape the namespace.
	ErrInvalidName = errors.New("invalid blob name")
)

// Info describes a stored blob.
type Info struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is a flat namespace of blobs keyed by stored filename.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns the blob content.  The reader also implements
	// io.ReadSeeker for both built-in stores.
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	Remove(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// ValidName reports whether name is a single path element that stays
// inside the namespace.
func ValidName(name string) bool {
	switch {
	case name == "", name == ".", name == "..":
		return false
	case strings.ContainsAny(name, `/\`+"\x00"):
		return false
	case strings.HasPrefix(name, "."):
		return false
	}
	return true
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
