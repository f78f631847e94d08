package model

import "time"

// Registro is an automatic record from the `Registros` table.  Password
// holds a bcrypt hash and is never serialised.
type Registro struct {
	ID            int64     `json:"id"`            // Registros.Id
	Usuario       string    `json:"usuario"`       // Registros.Usuario (unique)
	Password      string    `json:"-"`             // Registros.Password (bcrypt)
	Serie         int       `json:"serie"`         // Registros.Serie, 1..9999
	FechaRegistro time.Time `json:"fechaRegistro"` // Registros.FechaRegistro
}

// Usuario is a user-registered record from the `Usuarios` table.
type Usuario struct {
	ID              int64     `json:"id"`              // Usuarios.Id
	Usuario         string    `json:"usuario"`         // Usuarios.Usuario (unique)
	FechaNacimiento Date      `json:"fechaNacimiento"` // Usuarios.FechaNacimiento
	Password        string    `json:"-"`               // Usuarios.Password (bcrypt)
	FechaRegistro   time.Time `json:"fechaRegistro"`   // Usuarios.FechaRegistro
}
