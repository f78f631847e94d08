package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/EmanuelC1601/back-end/internal/database/dbtest"
	"github.com/EmanuelC1601/back-end/internal/model"
	"github.com/EmanuelC1601/back-end/internal/queue"
	"github.com/EmanuelC1601/back-end/internal/repository"
	"github.com/EmanuelC1601/back-end/internal/utils"
)

func newTestRegistro(t *testing.T) (*RegistroService, *repository.RegistroRepo, *recorder) {
	t.Helper()
	repo := repository.NewRegistroRepo(dbtest.New(t))
	rec := &recorder{}
	return NewRegistroService(repo, rec, rec, bcrypt.MinCost, quietLogger()), repo, rec
}

func TestInsertarAutomaticoHashesPassword(t *testing.T) {
	svc, repo, rec := newTestRegistro(t)
	ctx := context.Background()

	reg, err := svc.InsertarAutomatico(ctx, "bob", "x", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, reg.Serie)
	assert.NotZero(t, reg.ID)

	list, err := repo.ListAutomaticos(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEqual(t, "x", list[0].Password)
	assert.True(t, utils.VerifyPassword(list[0].Password, "x"))

	require.Len(t, rec.events, 1)
	assert.Equal(t, queue.EventRegistroCreado, rec.events[0].Type)
	assert.Equal(t, []string{GroupRegistros}, rec.groups)
}

func TestInsertarAutomaticoDuplicateIsConflict(t *testing.T) {
	svc, _, _ := newTestRegistro(t)
	ctx := context.Background()

	_, err := svc.InsertarAutomatico(ctx, "bob", "x", 1)
	require.NoError(t, err)
	_, err = svc.InsertarAutomatico(ctx, "bob", "y", 2)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRegistrarUsuario(t *testing.T) {
	svc, _, rec := newTestRegistro(t)
	ctx := context.Background()
	birth, err := model.ParseDate("2000-01-15")
	require.NoError(t, err)

	u, err := svc.RegistrarUsuario(ctx, "  ana  ", birth, "secreto1")
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Usuario)
	assert.Equal(t, queue.EventUsuarioRegistrado, rec.events[0].Type)

	_, err = svc.RegistrarUsuario(ctx, "ana", birth, "secreto2")
	assert.ErrorIs(t, err, ErrDuplicate)

	st, err := svc.Estadisticas(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.TotalRegistros)
	assert.Equal(t, int64(1), st.TotalUsuarios)

	users, err := svc.ListarUsuarios(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

// racyRepo reports the name as free but the insert hits the unique key,
// as when a concurrent registration wins between check and insert.
type racyRepo struct {
	RegistroRepository
}

func (racyRepo) UsuarioExiste(context.Context, string) (bool, error) { return false, nil }
func (racyRepo) CreateUsuario(context.Context, *model.Usuario) error {
	return errors.Join(repository.ErrDuplicate, errors.New("UNIQUE constraint failed"))
}

func TestRegistrarUsuarioLostRaceIsConflict(t *testing.T) {
	svc := NewRegistroService(racyRepo{}, nil, nil, bcrypt.MinCost, quietLogger())
	_, err := svc.RegistrarUsuario(context.Background(), "ana", model.Date{}, "secreto1")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	svc, _, rec := newTestRegistro(t)
	rec.err = errors.New("broker down")

	_, err := svc.InsertarAutomatico(context.Background(), "bob", "x", 7)
	assert.NoError(t, err)
}
