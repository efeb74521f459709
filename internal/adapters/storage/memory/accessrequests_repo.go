package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"clinical-doc-access/internal/domain/accessrequests"
)

type accessRequestsRepo struct {
	mu   sync.RWMutex
	byID map[string]accessrequests.AccessRequest
}

func NewAccessRequestsRepo() accessrequests.Repository {
	return &accessRequestsRepo{
		byID: make(map[string]accessrequests.AccessRequest),
	}
}

func (r *accessRequestsRepo) Create(ctx context.Context, ar accessrequests.AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(ar.ID) == "" {
		return errors.New("access request id required")
	}
	if _, exists := r.byID[ar.ID]; exists {
		return errors.New("access request already exists")
	}
	r.byID[ar.ID] = ar
	return nil
}

// Update es CAS sobre el status: guarda solo si el registro persistido sigue
// en expect. Devolver false (no error) deja que el service lo trate como
// conflicto de estado.
func (r *accessRequestsRepo) Update(ctx context.Context, ar accessrequests.AccessRequest, expect accessrequests.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(ar.ID) == "" {
		return false, errors.New("access request id required")
	}
	current, exists := r.byID[ar.ID]
	if !exists {
		return false, accessrequests.ErrNotFound
	}
	if current.Status != expect {
		return false, nil
	}
	r.byID[ar.ID] = ar
	return true, nil
}

func (r *accessRequestsRepo) GetByID(ctx context.Context, id string) (accessrequests.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ar, ok := r.byID[id]
	if !ok {
		return accessrequests.AccessRequest{}, accessrequests.ErrNotFound
	}
	return ar, nil
}

// Defensivo: si por data sucia existieran varios PENDING de la misma tripla,
// devolvemos el más reciente por RequestedAt.
func (r *accessRequestsRepo) FindPending(ctx context.Context, professionalID, patientCI, documentID string) (accessrequests.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var winner accessrequests.AccessRequest
	has := false

	for _, ar := range r.byID {
		if ar.ProfessionalID != professionalID || ar.PatientCI != patientCI || ar.DocumentID != documentID {
			continue
		}
		if ar.Status != accessrequests.StatusPending {
			continue
		}
		if !has || ar.RequestedAt.After(winner.RequestedAt) {
			winner = ar
			has = true
		}
	}

	if !has {
		return accessrequests.AccessRequest{}, accessrequests.ErrNotFound
	}
	return winner, nil
}

func (r *accessRequestsRepo) ListByPatient(ctx context.Context, patientCI string, f accessrequests.ListFilter) ([]accessrequests.AccessRequest, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]accessrequests.AccessRequest, 0)
	for _, ar := range r.byID {
		if ar.PatientCI != patientCI {
			continue
		}
		if f.Status != "" && ar.Status != f.Status {
			continue
		}
		all = append(all, ar)
	}

	// Más recientes primero.
	sort.Slice(all, func(i, j int) bool {
		if all[i].RequestedAt.Equal(all[j].RequestedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].RequestedAt.After(all[j].RequestedAt)
	})

	total := len(all)
	if f.Limit <= 0 {
		return all, total, nil
	}
	if f.Offset >= total {
		return []accessrequests.AccessRequest{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (r *accessRequestsRepo) ListByProfessional(ctx context.Context, professionalID string) ([]accessrequests.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]accessrequests.AccessRequest, 0)
	for _, ar := range r.byID {
		if ar.ProfessionalID == professionalID {
			out = append(out, ar)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (r *accessRequestsRepo) ListPendingBefore(ctx context.Context, t time.Time) ([]accessrequests.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]accessrequests.AccessRequest, 0)
	for _, ar := range r.byID {
		if ar.Status == accessrequests.StatusPending && t.After(ar.ExpiresAt) {
			out = append(out, ar)
		}
	}
	return out, nil
}
