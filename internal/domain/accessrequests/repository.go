package accessrequests

import (
	"context"
	"time"
)

type ListFilter struct {
	Status Status
	Offset int
	Limit  int
}

// Las implementaciones distinguen "no existe" de un fallo del store: ante
// ausencia devuelven un error que satisface errors.Is(err, ErrNotFound);
// cualquier otro error es una falla de infraestructura y se propaga tal cual.
type Repository interface {
	Create(ctx context.Context, ar AccessRequest) error

	// Update persiste la solicitud solo si el status guardado coincide con
	// expect (compare-and-swap sobre status). Devuelve false si otro actor
	// (decisión del paciente vs barrido de expiración) ganó la carrera: el
	// perdedor nunca pisa un estado terminal.
	Update(ctx context.Context, ar AccessRequest, expect Status) (bool, error)

	GetByID(ctx context.Context, id string) (AccessRequest, error)

	// FindPending busca el PENDING de la tripla (profesional, paciente,
	// documento); puede devolver uno ya vencido lógicamente, el service lo
	// ajusta.
	FindPending(ctx context.Context, professionalID, patientCI, documentID string) (AccessRequest, error)

	// ListByPatient devuelve la página pedida y el total sin paginar.
	ListByPatient(ctx context.Context, patientCI string, f ListFilter) ([]AccessRequest, int, error)

	ListByProfessional(ctx context.Context, professionalID string) ([]AccessRequest, error)

	// ListPendingBefore lista PENDING con ExpiresAt anterior a t (para el
	// barrido periódico).
	ListPendingBefore(ctx context.Context, t time.Time) ([]AccessRequest, error)
}
