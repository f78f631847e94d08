package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EmanuelC1601/back-end/internal/database"
	"github.com/EmanuelC1601/back-end/internal/model"
)

type ImagenRepo struct{ DB *database.Executor }

func NewImagenRepo(db *database.Executor) *ImagenRepo { return &ImagenRepo{DB: db} }

const imagenColumns = "Id, NombreOriginal, NombreArchivo, Ruta, Tipo, `Tamaño`, FechaSubida"

// Create inserts img and fills in its ID and FechaSubida.
func (r *ImagenRepo) Create(ctx context.Context, img *model.Imagen) error {
	ts := now()
	res, err := r.DB.Exec(ctx,
		"INSERT INTO Imagenes (NombreOriginal, NombreArchivo, Ruta, Tipo, `Tamaño`, FechaSubida) VALUES (?,?,?,?,?,?)",
		img.NombreOriginal, img.NombreArchivo, img.Ruta, img.Tipo, img.Tamano, sqlTime(ts))
	if err != nil {
		return mapInsertErr("insert imagen", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	img.ID = id
	img.FechaSubida = ts
	return nil
}

// List returns every image, newest first.
func (r *ImagenRepo) List(ctx context.Context) ([]model.Imagen, error) {
	var out []model.Imagen
	err := r.DB.Query(ctx, func(rows *sql.Rows) error {
		out = make([]model.Imagen, 0)
		for rows.Next() {
			img, err := scanImagen(rows)
			if err != nil {
				return err
			}
			out = append(out, img)
		}
		return nil
	}, "SELECT "+imagenColumns+" FROM Imagenes ORDER BY FechaSubida DESC, Id DESC")
	if err != nil {
		return nil, fmt.Errorf("list imagenes: %w", err)
	}
	return out, nil
}

// GetByID fetches one image.  ErrNotFound when absent.
func (r *ImagenRepo) GetByID(ctx context.Context, id int64) (model.Imagen, error) {
	return r.getOne(ctx, "SELECT "+imagenColumns+" FROM Imagenes WHERE Id = ? LIMIT 1", id)
}

// GetByFilename fetches one image by its stored filename.
func (r *ImagenRepo) GetByFilename(ctx context.Context, name string) (model.Imagen, error) {
	return r.getOne(ctx, "SELECT "+imagenColumns+" FROM Imagenes WHERE NombreArchivo = ? LIMIT 1", name)
}

func (r *ImagenRepo) getOne(ctx context.Context, query string, arg any) (model.Imagen, error) {
	var img model.Imagen
	err := r.DB.QueryRow(ctx, func(s database.Scanner) error {
		var err error
		img, err = scanImagen(s)
		return err
	}, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Imagen{}, ErrNotFound
	}
	if err != nil {
		return model.Imagen{}, fmt.Errorf("get imagen: %w", err)
	}
	return img, nil
}

// Delete removes the row.  ErrNotFound when nothing was deleted, so a
// second delete of the same id never succeeds.
func (r *ImagenRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.Exec(ctx, "DELETE FROM Imagenes WHERE Id = ?", id)
	if err != nil {
		return fmt.Errorf("delete imagen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored images.
func (r *ImagenRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, func(s database.Scanner) error { return s.Scan(&n) },
		"SELECT COUNT(*) FROM Imagenes")
	if err != nil {
		return 0, fmt.Errorf("count imagenes: %w", err)
	}
	return n, nil
}

// TotalSize returns the sum of all image sizes in bytes.
func (r *ImagenRepo) TotalSize(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, func(s database.Scanner) error { return s.Scan(&n) },
		"SELECT COALESCE(SUM(`Tamaño`), 0) FROM Imagenes")
	if err != nil {
		return 0, fmt.Errorf("sum imagenes: %w", err)
	}
	return n, nil
}

// Stats aggregates count, total size and newest upload in one statement.
func (r *ImagenRepo) Stats(ctx context.Context) (model.ImagenStats, error) {
	var st model.ImagenStats
	var last timeScanner
	err := r.DB.QueryRow(ctx, func(s database.Scanner) error {
		return s.Scan(&st.Total, &st.TotalBytes, &last)
	}, "SELECT COUNT(*), COALESCE(SUM(`Tamaño`), 0), MAX(FechaSubida) FROM Imagenes")
	if err != nil {
		return model.ImagenStats{}, fmt.Errorf("stats imagenes: %w", err)
	}
	if last.Valid {
		st.UltimaSubida = &last.T
	}
	return st, nil
}

func scanImagen(s database.Scanner) (model.Imagen, error) {
	var img model.Imagen
	var ts timeScanner
	if err := s.Scan(&img.ID, &img.NombreOriginal, &img.NombreArchivo, &img.Ruta, &img.Tipo, &img.Tamano, &ts); err != nil {
		return model.Imagen{}, err
	}
	img.FechaSubida = ts.T
	return img, nil
}
