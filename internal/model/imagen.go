package model

import "time"

// Imagen represents an uploaded image as stored in the `Imagenes`
// table.  Rows are created by the intake pipeline once the blob has
// been written and are never updated afterwards; deleting a row also
// removes its blob.
//
// Fields:
//  ID             – primary key identifier.
//  NombreOriginal – filename supplied by the client, unsanitised.
//  NombreArchivo  – server generated, unique stored filename.
//  Ruta           – public path of the blob (/uploads/<NombreArchivo>).
//  Tipo           – declared MIME type.
//  Tamano         – size in bytes.
//  FechaSubida    – upload timestamp (UTC).
type Imagen struct {
	ID             int64     `json:"id"`             // Imagenes.Id
	NombreOriginal string    `json:"nombreOriginal"` // Imagenes.NombreOriginal
	NombreArchivo  string    `json:"nombreArchivo"`  // Imagenes.NombreArchivo
	Ruta           string    `json:"ruta"`           // Imagenes.Ruta
	Tipo           string    `json:"tipo"`           // Imagenes.Tipo
	Tamano         int64     `json:"tamaño"`         // Imagenes.Tamaño
	FechaSubida    time.Time `json:"fechaSubida"`    // Imagenes.FechaSubida
}

// ImagenStats aggregates the image table.
type ImagenStats struct {
	Total        int64      // number of rows
	TotalBytes   int64      // sum of Tamaño
	UltimaSubida *time.Time // newest FechaSubida, nil when empty
}
