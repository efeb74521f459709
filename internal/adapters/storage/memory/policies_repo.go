package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"clinical-doc-access/internal/domain/policies"
)

type policiesRepo struct {
	mu   sync.RWMutex
	byID map[string]policies.Policy
}

func NewPoliciesRepo() policies.Repository {
	return &policiesRepo{
		byID: make(map[string]policies.Policy),
	}
}

func (r *policiesRepo) Create(ctx context.Context, p policies.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(p.ID) == "" {
		return errors.New("policy id required")
	}
	if _, exists := r.byID[p.ID]; exists {
		return errors.New("policy already exists")
	}
	r.byID[p.ID] = p
	return nil
}

func (r *policiesRepo) Update(ctx context.Context, p policies.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(p.ID) == "" {
		return errors.New("policy id required")
	}
	if _, exists := r.byID[p.ID]; !exists {
		return policies.ErrNotFound
	}
	r.byID[p.ID] = p
	return nil
}

func (r *policiesRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return policies.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *policiesRepo) GetByID(ctx context.Context, id string) (policies.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return policies.Policy{}, policies.ErrNotFound
	}
	return p, nil
}

func (r *policiesRepo) ListByPatient(ctx context.Context, patientCI string, f policies.ListFilter) ([]policies.Policy, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]policies.Policy, 0)
	for _, p := range r.byID {
		if p.PatientCI != patientCI {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		all = append(all, p)
	}

	// Orden estable por fecha de creación (y por id ante empate).
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if f.Limit <= 0 {
		return all, total, nil
	}

	if f.Offset >= total {
		return []policies.Policy{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}
