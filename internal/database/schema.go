package database

import (
	"context"
	"fmt"
)

// Bootstrap DDL.  Tables are created only when missing; there is no
// versioning and existing tables are never altered.
var schemas = map[string][]string{
	"mysql": {
		"CREATE TABLE IF NOT EXISTS Imagenes (" +
			"Id INT AUTO_INCREMENT PRIMARY KEY," +
			"NombreOriginal VARCHAR(255) NOT NULL," +
			"NombreArchivo VARCHAR(255) NOT NULL UNIQUE," +
			"Ruta VARCHAR(500) NOT NULL," +
			"Tipo VARCHAR(100) NOT NULL," +
			"`Tamaño` BIGINT NOT NULL DEFAULT 0," +
			"FechaSubida DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP" +
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		"CREATE TABLE IF NOT EXISTS Registros (" +
			"Id INT AUTO_INCREMENT PRIMARY KEY," +
			"Usuario VARCHAR(100) NOT NULL UNIQUE," +
			"Password VARCHAR(255) NOT NULL," +
			"Serie INT NOT NULL," +
			"FechaRegistro DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP" +
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		"CREATE TABLE IF NOT EXISTS Usuarios (" +
			"Id INT AUTO_INCREMENT PRIMARY KEY," +
			"Usuario VARCHAR(100) NOT NULL UNIQUE," +
			"FechaNacimiento DATE NOT NULL," +
			"Password VARCHAR(255) NOT NULL," +
			"FechaRegistro DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP" +
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	},
	"sqlite": {
		"CREATE TABLE IF NOT EXISTS Imagenes (" +
			"Id INTEGER PRIMARY KEY AUTOINCREMENT," +
			"NombreOriginal TEXT NOT NULL," +
			"NombreArchivo TEXT NOT NULL UNIQUE," +
			"Ruta TEXT NOT NULL," +
			"Tipo TEXT NOT NULL," +
			"`Tamaño` INTEGER NOT NULL DEFAULT 0," +
			"FechaSubida DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)",
		"CREATE TABLE IF NOT EXISTS Registros (" +
			"Id INTEGER PRIMARY KEY AUTOINCREMENT," +
			"Usuario TEXT NOT NULL UNIQUE," +
			"Password TEXT NOT NULL," +
			"Serie INTEGER NOT NULL," +
			"FechaRegistro DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)",
		"CREATE TABLE IF NOT EXISTS Usuarios (" +
			"Id INTEGER PRIMARY KEY AUTOINCREMENT," +
			"Usuario TEXT NOT NULL UNIQUE," +
			"FechaNacimiento DATE NOT NULL," +
			"Password TEXT NOT NULL," +
			"FechaRegistro DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)",
	},
}

// EnsureSchema creates the Imagenes, Registros and Usuarios tables for the
// given dialect when they do not exist yet.
func EnsureSchema(ctx context.Context, ex *Executor, dialect string) error {
	stmts, ok := schemas[dialect]
	if !ok {
		return fmt.Errorf("no schema for dialect %q", dialect)
	}
	for _, stmt := range stmts {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
