package policies

import "context"

// ListFilter pagina y filtra el listado por paciente.
// Limit <= 0 significa "todo el set" (lo usa el cache para evaluar).
type ListFilter struct {
	Type   PolicyType
	Offset int
	Limit  int
}

// Las implementaciones distinguen "no existe" de un fallo del store: ante
// ausencia devuelven un error que satisface errors.Is(err, ErrNotFound);
// cualquier otro error es una falla de infraestructura y se propaga tal cual.
type Repository interface {
	Create(ctx context.Context, p Policy) error
	Update(ctx context.Context, p Policy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Policy, error)

	// ListByPatient devuelve la página pedida y el total sin paginar.
	ListByPatient(ctx context.Context, patientCI string, f ListFilter) ([]Policy, int, error)
}
