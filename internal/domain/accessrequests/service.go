package accessrequests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clinical-doc-access/internal/domain/policies"
	"clinical-doc-access/internal/platform/config"
	"clinical-doc-access/internal/platform/logger"
	"clinical-doc-access/internal/platform/metrics"
	"clinical-doc-access/internal/ports/documents"
	"clinical-doc-access/internal/ports/notify"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadState     = errors.New("invalid state")
)

type Service struct {
	repo     Repository
	docs     documents.Fetcher
	notifier notify.Notifier
	cfg      config.Config
	log      logger.Logger
	now      func() time.Time

	// Serializa CreateOrReuse por tripla (profesional, paciente, documento)
	// para que dos submissions concurrentes no inserten dos PENDING. Los
	// mutex se cuentan por referencia y se descartan al soltar el último
	// holder: el mapa no crece con cada tripla vista.
	locksMu sync.Mutex
	locks   map[string]*tripleLock
}

type tripleLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(repo Repository, docs documents.Fetcher, notifier notify.Notifier, cfg config.Config, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		docs:     docs,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		locks:    make(map[string]*tripleLock),
	}
}

type CreateInput struct {
	ProfessionalID string
	Specialties    []string
	ClinicID       string
	PatientCI      string
	DocumentID     string
	DocumentType   string
	Reason         string
	Urgency        Urgency
}

// Start implementa policies.ConsentStarter: arranca el pedido de
// consentimiento cuando una evaluación da PENDING.
func (s *Service) Start(ctx context.Context, req policies.AccessContext) (string, bool, error) {
	ar, isNew, err := s.CreateOrReuse(ctx, CreateInput{
		ProfessionalID: req.ProfessionalID,
		Specialties:    req.Specialties,
		ClinicID:       req.ClinicID,
		PatientCI:      req.PatientCI,
		DocumentID:     req.DocumentID,
		DocumentType:   req.DocumentType,
		Reason:         req.Reason,
		Urgency:        Urgency(strings.ToUpper(strings.TrimSpace(req.Urgency))),
	})
	if err != nil {
		return "", false, err
	}
	return ar.ID, isNew, nil
}

// CreateOrReuse es el borde de idempotencia del workflow: si ya hay un
// PENDING vigente para la tripla, se devuelve ese (isNew=false); si no, se
// crea uno nuevo con vencimiento a cfg.RequestTTL y se avisa al paciente.
func (s *Service) CreateOrReuse(ctx context.Context, in CreateInput) (AccessRequest, bool, error) {
	professionalID := strings.TrimSpace(in.ProfessionalID)
	patientCI := strings.TrimSpace(in.PatientCI)
	documentID := strings.TrimSpace(in.DocumentID)

	if professionalID == "" || patientCI == "" {
		return AccessRequest{}, false, ErrInvalidInput
	}

	urgency := in.Urgency
	if urgency == "" {
		urgency = UrgencyNormal
	}
	switch urgency {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyEmergency:
	default:
		return AccessRequest{}, false, ErrInvalidInput
	}

	key := dedupKey(professionalID, patientCI, documentID)
	lock := s.lockTriple(key)
	defer s.unlockTriple(key, lock)

	now := s.now()

	existing, err := s.repo.FindPending(ctx, professionalID, patientCI, documentID)
	switch {
	case err == nil:
		if !existing.expiredAt(now) {
			metrics.AccessRequestsTotal.WithLabelValues("reused").Inc()
			return existing, false, nil
		}
		// Venció: se transiciona (lazy) y se deja crear una nueva.
		s.expire(ctx, existing)

	case errors.Is(err, ErrNotFound):
		// No hay PENDING para la tripla: se crea.

	default:
		// Un fallo del store no autoriza a crear: podría existir un PENDING
		// que no pudimos ver, y duplicarlo rompe la deduplicación.
		return AccessRequest{}, false, err
	}

	ar := AccessRequest{
		ID:                      uuid.NewString(),
		ProfessionalID:          professionalID,
		ProfessionalSpecialties: in.Specialties,
		ClinicID:                strings.TrimSpace(in.ClinicID),
		PatientCI:               patientCI,
		DocumentID:              documentID,
		DocumentType:            strings.TrimSpace(in.DocumentType),
		RequestReason:           strings.TrimSpace(in.Reason),
		Urgency:                 urgency,
		Status:                  StatusPending,
		RequestedAt:             now,
		ExpiresAt:               now.Add(s.cfg.RequestTTL),
	}

	if err := s.repo.Create(ctx, ar); err != nil {
		return AccessRequest{}, false, err
	}

	// El aviso al paciente es best-effort: la solicitud ya quedó persistida.
	if err := s.notifier.NotifyPatient(ctx, notify.PatientNotice{
		PatientCI:      ar.PatientCI,
		RequestID:      ar.ID,
		ProfessionalID: ar.ProfessionalID,
		DocumentType:   ar.DocumentType,
		Reason:         ar.RequestReason,
		Urgency:        string(ar.Urgency),
	}); err != nil {
		s.log.Warn("no se pudo notificar al paciente", map[string]any{
			"request_id": ar.ID,
			"error":      err.Error(),
		})
	}

	metrics.AccessRequestsTotal.WithLabelValues("created").Inc()
	return ar, true, nil
}

// Approve resuelve la solicitud a favor y habilita la entrega del documento.
// El documento queda disponible mientras la solicitud siga APPROVED (decisión
// explícita: re-uso permitido, no one-shot).
func (s *Service) Approve(ctx context.Context, requestID, patientCI, reason string) (AccessRequest, error) {
	ar, err := s.loadForDecision(ctx, requestID, patientCI)
	if err != nil {
		return AccessRequest{}, err
	}

	now := s.now()
	ar.Status = StatusApproved
	ar.PatientResponse = strings.TrimSpace(reason)
	ar.RespondedAt = &now

	ok, err := s.repo.Update(ctx, ar, StatusPending)
	if err != nil {
		return AccessRequest{}, err
	}
	if !ok {
		// Otro actor (el barrido, u otra decisión) llegó primero.
		return AccessRequest{}, ErrBadState
	}

	s.notifyResolution(ctx, ar, "solicitud aprobada por el paciente")
	metrics.AccessRequestsTotal.WithLabelValues("approved").Inc()
	return ar, nil
}

// Deny exige motivo (largo mínimo configurable).
func (s *Service) Deny(ctx context.Context, requestID, patientCI, reason string) (AccessRequest, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < s.cfg.MinReasonLen {
		return AccessRequest{}, fmt.Errorf("%w: el motivo debe tener al menos %d caracteres", ErrInvalidInput, s.cfg.MinReasonLen)
	}

	ar, err := s.loadForDecision(ctx, requestID, patientCI)
	if err != nil {
		return AccessRequest{}, err
	}

	now := s.now()
	ar.Status = StatusDenied
	ar.PatientResponse = reason
	ar.RespondedAt = &now

	ok, err := s.repo.Update(ctx, ar, StatusPending)
	if err != nil {
		return AccessRequest{}, err
	}
	if !ok {
		return AccessRequest{}, ErrBadState
	}

	s.notifyResolution(ctx, ar, "solicitud denegada por el paciente")
	metrics.AccessRequestsTotal.WithLabelValues("denied").Inc()
	return ar, nil
}

// RequestMoreInfo es canal lateral: le hace llegar una pregunta al
// profesional sin cambiar el status de la solicitud.
func (s *Service) RequestMoreInfo(ctx context.Context, requestID, patientCI, question string) (AccessRequest, error) {
	question = strings.TrimSpace(question)
	if len(question) < s.cfg.MinReasonLen {
		return AccessRequest{}, fmt.Errorf("%w: la pregunta debe tener al menos %d caracteres", ErrInvalidInput, s.cfg.MinReasonLen)
	}

	ar, err := s.loadForDecision(ctx, requestID, patientCI)
	if err != nil {
		return AccessRequest{}, err
	}

	now := s.now()
	ar.InfoQuestion = question
	ar.InfoRequestedAt = &now
	// Status queda PENDING.

	ok, err := s.repo.Update(ctx, ar, StatusPending)
	if err != nil {
		return AccessRequest{}, err
	}
	if !ok {
		return AccessRequest{}, ErrBadState
	}

	if err := s.notifier.NotifyProfessional(ctx, notify.ProfessionalNotice{
		ProfessionalID: ar.ProfessionalID,
		RequestID:      ar.ID,
		Subject:        "el paciente pide más información",
		Message:        question,
	}); err != nil {
		s.log.Warn("no se pudo notificar al profesional", map[string]any{
			"request_id": ar.ID,
			"error":      err.Error(),
		})
	}

	metrics.AccessRequestsTotal.WithLabelValues("request_info").Inc()
	return ar, nil
}

// ApprovedDocument entrega el documento de una solicitud APPROVED al
// profesional que la originó. Vale mientras la solicitud siga aprobada; cada
// llamada trae el contenido fresco de la capa documental.
func (s *Service) ApprovedDocument(ctx context.Context, requestID, professionalID string) (documents.Document, error) {
	requestID = strings.TrimSpace(requestID)
	professionalID = strings.TrimSpace(professionalID)
	if requestID == "" || professionalID == "" {
		return documents.Document{}, ErrInvalidInput
	}

	ar, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return documents.Document{}, err
	}
	if ar.ProfessionalID != professionalID {
		return documents.Document{}, ErrForbidden
	}

	ar = s.clampExpiry(ctx, ar)
	if ar.Status != StatusApproved {
		return documents.Document{}, ErrBadState
	}
	if ar.DocumentID == "" {
		// Pedido de acceso general: no refiere a un documento puntual.
		return documents.Document{}, fmt.Errorf("%w: la solicitud no refiere a un documento", ErrInvalidInput)
	}

	return s.docs.FetchByID(ctx, ar.DocumentID)
}

func (s *Service) GetByID(ctx context.Context, id string) (AccessRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return AccessRequest{}, ErrInvalidInput
	}
	ar, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return AccessRequest{}, err
	}
	return s.clampExpiry(ctx, ar), nil
}

// ListByPatient pagina las solicitudes del paciente. Todo lo que vuelve pasa
// por el ajuste de expiración: un PENDING vencido jamás se lista accionable.
func (s *Service) ListByPatient(ctx context.Context, patientCI string, status Status, page, size int) ([]AccessRequest, int, error) {
	patientCI = strings.TrimSpace(patientCI)
	if patientCI == "" {
		return nil, 0, ErrInvalidInput
	}
	if status != "" && !knownStatus(status) {
		return nil, 0, ErrInvalidInput
	}
	if page < 0 {
		page = 0
	}
	size = s.cfg.ClampPageSize(size)

	items, total, err := s.repo.ListByPatient(ctx, patientCI, ListFilter{
		Status: status,
		Offset: page * size,
		Limit:  size,
	})
	if err != nil {
		return nil, 0, err
	}

	out := make([]AccessRequest, 0, len(items))
	for _, ar := range items {
		clamped := s.clampExpiry(ctx, ar)
		// Si se filtró por status y la solicitud acaba de vencer, ya no
		// pertenece a la página pedida.
		if status != "" && clamped.Status != status {
			total--
			continue
		}
		out = append(out, clamped)
	}
	return out, total, nil
}

func (s *Service) ListByProfessional(ctx context.Context, professionalID string) ([]AccessRequest, error) {
	professionalID = strings.TrimSpace(professionalID)
	if professionalID == "" {
		return nil, ErrInvalidInput
	}
	items, err := s.repo.ListByProfessional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	out := make([]AccessRequest, 0, len(items))
	for _, ar := range items {
		out = append(out, s.clampExpiry(ctx, ar))
	}
	return out, nil
}

// ExpireSweep transiciona en batch los PENDING vencidos. Corre en un ticker
// independiente; es observacionalmente equivalente al ajuste lazy de los
// reads, solo que deja el status persistido.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	now := s.now()
	items, err := s.repo.ListPendingBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, ar := range items {
		if s.expire(ctx, ar) {
			n++
		}
	}
	if n > 0 {
		s.log.Info("barrido de expiración", map[string]any{"expired": n})
	}
	return n, nil
}

// loadForDecision hace los chequeos comunes de approve/deny/request-info:
// existencia, pertenencia y que siga PENDING vigente. El orden importa:
// "no es tuya" (forbidden) se distingue de "no existe" (not found) y de
// "ya resuelta" (conflict).
func (s *Service) loadForDecision(ctx context.Context, requestID, patientCI string) (AccessRequest, error) {
	requestID = strings.TrimSpace(requestID)
	patientCI = strings.TrimSpace(patientCI)
	if requestID == "" || patientCI == "" {
		return AccessRequest{}, ErrInvalidInput
	}

	ar, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return AccessRequest{}, err
	}
	if ar.PatientCI != patientCI {
		return AccessRequest{}, ErrForbidden
	}

	ar = s.clampExpiry(ctx, ar)
	if ar.Status != StatusPending {
		return AccessRequest{}, ErrBadState
	}
	return ar, nil
}

// clampExpiry aplica la transición lazy: un PENDING con ExpiresAt en el
// pasado se devuelve (y se persiste best-effort) como EXPIRED.
func (s *Service) clampExpiry(ctx context.Context, ar AccessRequest) AccessRequest {
	if !ar.expiredAt(s.now()) {
		return ar
	}
	s.expire(ctx, ar)
	ar.Status = StatusExpired
	return ar
}

func (s *Service) expire(ctx context.Context, ar AccessRequest) bool {
	ar.Status = StatusExpired
	ok, err := s.repo.Update(ctx, ar, StatusPending)
	if err != nil {
		s.log.Warn("no se pudo persistir expiración", map[string]any{
			"request_id": ar.ID,
			"error":      err.Error(),
		})
		return false
	}
	if ok {
		metrics.AccessRequestsTotal.WithLabelValues("expired").Inc()
	}
	return ok
}

func (s *Service) notifyResolution(ctx context.Context, ar AccessRequest, subject string) {
	if err := s.notifier.NotifyProfessional(ctx, notify.ProfessionalNotice{
		ProfessionalID: ar.ProfessionalID,
		RequestID:      ar.ID,
		Subject:        subject,
		Message:        ar.PatientResponse,
	}); err != nil {
		s.log.Warn("no se pudo notificar al profesional", map[string]any{
			"request_id": ar.ID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) lockTriple(key string) *tripleLock {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &tripleLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Service) unlockTriple(key string, l *tripleLock) {
	l.mu.Unlock()

	s.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.locksMu.Unlock()
}
