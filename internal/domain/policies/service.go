package policies

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinical-doc-access/internal/platform/config"
	"clinical-doc-access/internal/platform/logger"
	"clinical-doc-access/internal/platform/metrics"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

type Service struct {
	repo  Repository
	cache *Cache
	cfg   config.Config
	log   logger.Logger
	now   func() time.Time
}

func NewService(repo Repository, cache *Cache, cfg config.Config, log logger.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

type CreateInput struct {
	Type       PolicyType
	Config     Config
	Effect     Effect
	Priority   int
	DocumentID string
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

func (s *Service) Create(ctx context.Context, ownerCI string, in CreateInput) (Policy, error) {
	ownerCI = strings.TrimSpace(ownerCI)
	if ownerCI == "" {
		return Policy{}, ErrInvalidInput
	}
	if err := s.validateRule(in.Type, in.Effect, in.Priority, in.Config, in.ValidFrom, in.ValidUntil); err != nil {
		return Policy{}, err
	}

	now := s.now()
	p := Policy{
		ID:         uuid.NewString(),
		PatientCI:  ownerCI,
		Type:       in.Type,
		Config:     in.Config,
		Effect:     in.Effect,
		Priority:   in.Priority,
		DocumentID: strings.TrimSpace(in.DocumentID),
		ValidFrom:  in.ValidFrom,
		ValidUntil: in.ValidUntil,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return Policy{}, err
	}

	// Invalidación síncrona: el write no está completo hasta que el cache
	// dejó de poder servir el set viejo.
	s.cache.Invalidate(ownerCI)
	return p, nil
}

type UpdateInput struct {
	Config     Config
	Effect     Effect
	Priority   int
	DocumentID string
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// Update no permite cambiar ni el dueño ni el tipo de la política; para eso
// se borra y se crea otra.
func (s *Service) Update(ctx context.Context, id, callerCI string, in UpdateInput) (Policy, error) {
	id = strings.TrimSpace(id)
	callerCI = strings.TrimSpace(callerCI)
	if id == "" || callerCI == "" {
		return Policy{}, ErrInvalidInput
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		// Un fallo del store no es un 404: solo la ausencia real lo es.
		return Policy{}, err
	}
	if p.PatientCI != callerCI {
		return Policy{}, ErrForbidden
	}

	if err := s.validateRule(p.Type, in.Effect, in.Priority, in.Config, in.ValidFrom, in.ValidUntil); err != nil {
		return Policy{}, err
	}

	p.Config = in.Config
	p.Effect = in.Effect
	p.Priority = in.Priority
	p.DocumentID = strings.TrimSpace(in.DocumentID)
	p.ValidFrom = in.ValidFrom
	p.ValidUntil = in.ValidUntil
	p.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, p); err != nil {
		return Policy{}, err
	}

	s.cache.Invalidate(p.PatientCI)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id, callerCI string) error {
	id = strings.TrimSpace(id)
	callerCI = strings.TrimSpace(callerCI)
	if id == "" || callerCI == "" {
		return ErrInvalidInput
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.PatientCI != callerCI {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.Invalidate(p.PatientCI)
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Policy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Policy{}, ErrInvalidInput
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	return p, nil
}

// ListByPatient devuelve la página pedida y el total. page arranca en 0.
func (s *Service) ListByPatient(ctx context.Context, patientCI string, policyType PolicyType, page, size int) ([]Policy, int, error) {
	patientCI = strings.TrimSpace(patientCI)
	if patientCI == "" {
		return nil, 0, ErrInvalidInput
	}
	if policyType != "" && !knownType(policyType) {
		return nil, 0, ErrInvalidInput
	}
	if page < 0 {
		page = 0
	}
	size = s.cfg.ClampPageSize(size)

	return s.repo.ListByPatient(ctx, patientCI, ListFilter{
		Type:   policyType,
		Offset: page * size,
		Limit:  size,
	})
}

// Evaluate trae el set del paciente vía cache y corre el motor.
// Si la lectura falla, la evaluación aborta: nunca se decide contra un set
// vacío o parcial.
func (s *Service) Evaluate(ctx context.Context, req AccessContext) (EvaluationResult, error) {
	set, err := s.cache.Get(ctx, req.PatientCI)
	if err != nil {
		s.log.Error("fallo leyendo políticas para evaluación", map[string]any{
			"patient_ci": req.PatientCI,
			"error":      err.Error(),
		})
		return EvaluationResult{}, err
	}

	res, err := Evaluate(req, set, s.now())
	if err != nil {
		return EvaluationResult{}, err
	}

	metrics.EvaluationsTotal.WithLabelValues(string(res.Decision)).Inc()
	s.log.Info("evaluación de acceso", map[string]any{
		"patient_ci":      req.PatientCI,
		"professional_id": req.ProfessionalID,
		"decision":        string(res.Decision),
		"deciding_policy": res.DecidingPolicyID,
	})
	return res, nil
}

func (s *Service) validateRule(t PolicyType, e Effect, priority int, c Config, from, until *time.Time) error {
	if !knownType(t) || !knownEffect(e) {
		return ErrInvalidInput
	}
	if priority < s.cfg.PriorityMin || priority > s.cfg.PriorityMax {
		return fmt.Errorf("%w: priority fuera de rango [%d, %d]", ErrInvalidInput, s.cfg.PriorityMin, s.cfg.PriorityMax)
	}
	// El override de emergencia siempre permite; un DENY acá sería una regla
	// imposible de razonar.
	if t == TypeEmergencyOverride && e != EffectPermit {
		return ErrInvalidInput
	}
	if from != nil && until != nil && !from.Before(*until) {
		return ErrInvalidInput
	}
	if err := c.Validate(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
