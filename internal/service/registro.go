package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/EmanuelC1601/back-end/internal/model"
	"github.com/EmanuelC1601/back-end/internal/queue"
	"github.com/EmanuelC1601/back-end/internal/utils"
)

// RegistroRepository is the part of repository.RegistroRepo the
// registration service needs.
type RegistroRepository interface {
	CreateAutomatico(ctx context.Context, reg *model.Registro) error
	CreateUsuario(ctx context.Context, u *model.Usuario) error
	UsuarioExiste(ctx context.Context, usuario string) (bool, error)
	ListAutomaticos(ctx context.Context) ([]model.Registro, error)
	ListUsuarios(ctx context.Context) ([]model.Usuario, error)
	CountRegistros(ctx context.Context) (int64, error)
	CountUsuarios(ctx context.Context) (int64, error)
}

// RegistroService creates and reads registration records.  Passwords are
// stored as bcrypt hashes.
type RegistroService struct {
	repo   RegistroRepository
	events Publisher
	cache  Invalidator
	cost   int
	log    *slog.Logger
}

func NewRegistroService(repo RegistroRepository, events Publisher, cache Invalidator, bcryptCost int, log *slog.Logger) *RegistroService {
	if events == nil {
		events = NoopPublisher{}
	}
	if cache == nil {
		cache = noopInvalidator{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RegistroService{repo: repo, events: events, cache: cache, cost: bcryptCost, log: log}
}

// InsertarAutomatico stores an automatic record.  Inputs are expected to
// be validated already; a taken username is ErrDuplicate.
func (s *RegistroService) InsertarAutomatico(ctx context.Context, usuario, password string, serie int) (model.Registro, error) {
	hash, err := utils.HashPassword(password, s.cost)
	if err != nil {
		return model.Registro{}, err
	}
	reg := model.Registro{Usuario: strings.TrimSpace(usuario), Password: hash, Serie: serie}
	if err := s.repo.CreateAutomatico(ctx, &reg); err != nil {
		return model.Registro{}, mapRepoErr(err)
	}

	ev := queue.NewEvent(queue.EventRegistroCreado, reg.ID)
	ev.Usuario = reg.Usuario
	afterWrite(ctx, s.log, s.events, s.cache, GroupRegistros, ev)
	s.log.Info("registro insertado", slog.Int64("id", reg.ID), slog.String("usuario", reg.Usuario))
	return reg, nil
}

// RegistrarUsuario stores a user-registered record.  The existence check
// before the insert is advisory only: two concurrent registrations can
// both pass it, and the unique key on Usuario then rejects the loser,
// which is reported as ErrDuplicate as well.
func (s *RegistroService) RegistrarUsuario(ctx context.Context, usuario string, fechaNacimiento model.Date, password string) (model.Usuario, error) {
	usuario = strings.TrimSpace(usuario)
	exists, err := s.repo.UsuarioExiste(ctx, usuario)
	if err != nil {
		return model.Usuario{}, err
	}
	if exists {
		return model.Usuario{}, ErrDuplicate
	}

	hash, err := utils.HashPassword(password, s.cost)
	if err != nil {
		return model.Usuario{}, err
	}
	u := model.Usuario{Usuario: usuario, FechaNacimiento: fechaNacimiento, Password: hash}
	if err := s.repo.CreateUsuario(ctx, &u); err != nil {
		return model.Usuario{}, mapRepoErr(err)
	}

	ev := queue.NewEvent(queue.EventUsuarioRegistrado, u.ID)
	ev.Usuario = u.Usuario
	afterWrite(ctx, s.log, s.events, s.cache, GroupRegistros, ev)
	s.log.Info("usuario registrado", slog.Int64("id", u.ID), slog.String("usuario", u.Usuario))
	return u, nil
}

// Listar returns automatic records, newest first.
func (s *RegistroService) Listar(ctx context.Context) ([]model.Registro, error) {
	return s.repo.ListAutomaticos(ctx)
}

// ListarUsuarios returns user-registered records, newest first.
func (s *RegistroService) ListarUsuarios(ctx context.Context) ([]model.Usuario, error) {
	return s.repo.ListUsuarios(ctx)
}

// Estadisticas counts both record kinds.
type Estadisticas struct {
	TotalRegistros int64
	TotalUsuarios  int64
}

func (s *RegistroService) Estadisticas(ctx context.Context) (Estadisticas, error) {
	regs, err := s.repo.CountRegistros(ctx)
	if err != nil {
		return Estadisticas{}, err
	}
	users, err := s.repo.CountUsuarios(ctx)
	if err != nil {
		return Estadisticas{}, err
	}
	return Estadisticas{TotalRegistros: regs, TotalUsuarios: users}, nil
}
