package documents

import (
	"context"
	"time"
)

// Document es el payload clínico que entrega la capa documental (FHIR).
// Este servicio no interpreta el contenido: lo media y lo entrega.
type Document struct {
	ID        string
	PatientCI string

	Type        string
	ContentType string
	Content     []byte

	FetchedAt time.Time
}

// Fetcher trae el contenido de un documento desde el almacenamiento periférico.
type Fetcher interface {
	FetchByID(ctx context.Context, documentID string) (Document, error)
}
