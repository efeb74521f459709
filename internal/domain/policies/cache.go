package policies

import (
	"context"
	"sync"

	"clinical-doc-access/internal/platform/metrics"

	"golang.org/x/sync/singleflight"
)

// Cache mantiene en memoria el set de políticas vigente por paciente.
// Es una optimización, nunca fuente de verdad: ante miss repobla del
// repositorio, y si el repositorio falla el error se propaga (evaluar contra
// un set vacío o parcial podría resolver PENDING donde la respuesta real era
// DENY).
//
// La repoblación se serializa por paciente con singleflight. Contra una
// invalidación concurrente no alcanza con Forget: una repoblación en vuelo
// leyó el set viejo y lo instalaría después del delete. Por eso cada paciente
// lleva un número de generación que Invalidate incrementa; la repoblación
// solo instala su snapshot si la generación que observó antes de leer sigue
// vigente.
type Cache struct {
	repo Repository

	mu      sync.RWMutex
	entries map[string][]Policy
	gens    map[string]uint64

	group singleflight.Group
}

func NewCache(repo Repository) *Cache {
	return &Cache{
		repo:    repo,
		entries: make(map[string][]Policy),
		gens:    make(map[string]uint64),
	}
}

// Get devuelve el set completo del paciente (read-through).
func (c *Cache) Get(ctx context.Context, patientCI string) ([]Policy, error) {
	c.mu.RLock()
	cached, ok := c.entries[patientCI]
	c.mu.RUnlock()

	if ok {
		metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
		return clonePolicies(cached), nil
	}
	metrics.CacheOpsTotal.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(patientCI, func() (any, error) {
		c.mu.RLock()
		gen := c.gens[patientCI]
		c.mu.RUnlock()

		items, _, err := c.repo.ListByPatient(ctx, patientCI, ListFilter{})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// Si hubo un Invalidate entre la lectura y acá, el snapshot quedó
		// viejo: no se instala y el próximo Get repobla de cero.
		if c.gens[patientCI] == gen {
			c.entries[patientCI] = items
		}
		c.mu.Unlock()

		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePolicies(v.([]Policy)), nil
}

// Invalidate descarta la entrada del paciente. El caller (el service de
// políticas) la llama de forma síncrona después de cada write exitoso, antes
// de dar la operación por terminada.
func (c *Cache) Invalidate(patientCI string) {
	c.mu.Lock()
	delete(c.entries, patientCI)
	c.gens[patientCI]++
	c.mu.Unlock()

	// Si hay una repoblación en vuelo con el set viejo, que no se comparta.
	c.group.Forget(patientCI)

	metrics.CacheOpsTotal.WithLabelValues("invalidate").Inc()
}

// clonePolicies evita que un caller mute la entrada cacheada; los slices de
// la config se copian también, no solo el slice de políticas.
func clonePolicies(in []Policy) []Policy {
	out := make([]Policy, len(in))
	copy(out, in)
	for i := range out {
		out[i] = out[i].clone()
	}
	return out
}
