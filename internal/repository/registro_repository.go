package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/EmanuelC1601/back-end/internal/database"
	"github.com/EmanuelC1601/back-end/internal/model"
)

type RegistroRepo struct{ DB *database.Executor }

func NewRegistroRepo(db *database.Executor) *RegistroRepo { return &RegistroRepo{DB: db} }

// CreateAutomatico inserts an automatic record.  r.Password must already
// be hashed.  A taken username yields ErrDuplicate.
func (r *RegistroRepo) CreateAutomatico(ctx context.Context, reg *model.Registro) error {
	ts := now()
	res, err := r.DB.Exec(ctx,
		"INSERT INTO Registros (Usuario, Password, Serie, FechaRegistro) VALUES (?,?,?,?)",
		reg.Usuario, reg.Password, reg.Serie, sqlTime(ts))
	if err != nil {
		return mapInsertErr("insert registro", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	reg.ID = id
	reg.FechaRegistro = ts
	return nil
}

// CreateUsuario inserts a user-registered record.  u.Password must
// already be hashed.  A taken username yields ErrDuplicate.
func (r *RegistroRepo) CreateUsuario(ctx context.Context, u *model.Usuario) error {
	ts := now()
	res, err := r.DB.Exec(ctx,
		"INSERT INTO Usuarios (Usuario, FechaNacimiento, Password, FechaRegistro) VALUES (?,?,?,?)",
		u.Usuario, u.FechaNacimiento, u.Password, sqlTime(ts))
	if err != nil {
		return mapInsertErr("insert usuario", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	u.FechaRegistro = ts
	return nil
}

// UsuarioExiste reports whether the username is taken in Usuarios.  The
// answer may be stale by the time the caller inserts; the unique key on
// Usuario still rejects the second insert.
func (r *RegistroRepo) UsuarioExiste(ctx context.Context, usuario string) (bool, error) {
	var n int64
	err := r.DB.QueryRow(ctx, func(s database.Scanner) error { return s.Scan(&n) },
		"SELECT COUNT(*) FROM Usuarios WHERE Usuario = ?", usuario)
	if err != nil {
		return false, fmt.Errorf("usuario existe: %w", err)
	}
	return n > 0, nil
}

// ListAutomaticos returns automatic records, newest first.
func (r *RegistroRepo) ListAutomaticos(ctx context.Context) ([]model.Registro, error) {
	var out []model.Registro
	err := r.DB.Query(ctx, func(rows *sql.Rows) error {
		out = make([]model.Registro, 0)
		for rows.Next() {
			var reg model.Registro
			var ts timeScanner
			if err := rows.Scan(&reg.ID, &reg.Usuario, &reg.Password, &reg.Serie, &ts); err != nil {
				return err
			}
			reg.FechaRegistro = ts.T
			out = append(out, reg)
		}
		return nil
	}, "SELECT Id, Usuario, Password, Serie, FechaRegistro FROM Registros ORDER BY FechaRegistro DESC, Id DESC")
	if err != nil {
		return nil, fmt.Errorf("list registros: %w", err)
	}
	return out, nil
}

// ListUsuarios returns user-registered records, newest first.
func (r *RegistroRepo) ListUsuarios(ctx context.Context) ([]model.Usuario, error) {
	var out []model.Usuario
	err := r.DB.Query(ctx, func(rows *sql.Rows) error {
		out = make([]model.Usuario, 0)
		for rows.Next() {
			var u model.Usuario
			var ts timeScanner
			if err := rows.Scan(&u.ID, &u.Usuario, &u.FechaNacimiento, &u.Password, &ts); err != nil {
				return err
			}
			u.FechaRegistro = ts.T
			out = append(out, u)
		}
		return nil
	}, "SELECT Id, Usuario, FechaNacimiento, Password, FechaRegistro FROM Usuarios ORDER BY FechaRegistro DESC, Id DESC")
	if err != nil {
		return nil, fmt.Errorf("list usuarios: %w", err)
	}
	return out, nil
}

func (r *RegistroRepo) CountRegistros(ctx context.Context) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM Registros")
}

func (r *RegistroRepo) CountUsuarios(ctx context.Context) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM Usuarios")
}

func (r *RegistroRepo) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := r.DB.QueryRow(ctx, func(s database.Scanner) error { return s.Scan(&n) }, query); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
