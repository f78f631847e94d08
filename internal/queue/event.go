// Package queue defines the activity events exchanged over the message
// broker and the background consumer that records them.
package queue

import "time"

// Activity event types.
const (
	EventImagenSubida      = "imagen.subida"
	EventImagenEliminada   = "imagen.eliminada"
	EventRegistroCreado    = "registro.creado"
	EventUsuarioRegistrado = "usuario.registrado"
)

// DefaultQueue is the durable queue activity events are routed to.
const DefaultQueue = "actividad"

// ActivityEvent is published after a successful write.  It carries enough
// information for consumers to log or audit without querying the store.
// Fields that do not apply to the event type are omitted.
type ActivityEvent struct {
	Type          string `json:"type"`
	ID            int64  `json:"id"`
	Usuario       string `json:"usuario,omitempty"`
	NombreArchivo string `json:"nombre_archivo,omitempty"`
	Tamano        int64  `json:"tamano,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ string, id int64) ActivityEvent {
	return ActivityEvent{Type: typ, ID: id, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}
