package policies

import (
	"fmt"
	"strings"
	"time"
)

// AccessContext es el intento de acceso que se evalúa. El "ahora" se pasa por
// parámetro a Evaluate, nunca se lee del ambiente, para que el motor sea
// determinista y testeable.
type AccessContext struct {
	ProfessionalID string
	Specialties    []string
	ClinicID       string

	PatientCI string

	// DocumentID puede venir vacío (consulta general, no de un documento puntual).
	DocumentID   string
	DocumentType string

	Reason  string
	Urgency string
}

// EvaluationResult es un value object, no se persiste.
type EvaluationResult struct {
	Decision Decision
	Reason   string

	// Toda política vigente considerada, en orden de evaluación (audit trail).
	EvaluatedPolicyIDs []string

	// Vacío si y solo si la decisión es PENDING.
	DecidingPolicyID string

	// true solo vía EMERGENCY_OVERRIDE.
	RequiresAudit bool
}

// Evaluate corre el set de políticas del paciente contra el contexto.
// Función pura: mismo (req, list, now) => mismo resultado.
//
// Orden del algoritmo:
//  1. filtrar por dueño (defensivo; el caller ya pasa el set del paciente)
//  2. filtrar por vigencia [ValidFrom, ValidUntil]
//  3. EMERGENCY_OVERRIDE habilitado corta todo: PERMIT + auditoría obligatoria
//  4. matching por tipo + alcance por documento
//  5. gana la mayor prioridad; empate lo resuelve CreatedAt más reciente
//  6. sin match => PENDING (resultado de negocio, no error)
//
// Solo devuelve error ante entrada malformada; "ninguna política aplica" es
// PENDING, nunca un error.
func Evaluate(req AccessContext, list []Policy, now time.Time) (EvaluationResult, error) {
	if strings.TrimSpace(req.PatientCI) == "" {
		return EvaluationResult{}, ErrInvalidInput
	}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		return EvaluationResult{}, ErrInvalidInput
	}

	// 1–2: dueño + vigencia. Todo lo que pasa este filtro queda en el audit trail.
	valid := make([]Policy, 0, len(list))
	evaluated := make([]string, 0, len(list))
	for _, p := range list {
		if p.PatientCI != req.PatientCI {
			continue
		}
		if !p.validAt(now) {
			continue
		}
		valid = append(valid, p)
		evaluated = append(evaluated, p.ID)
	}

	// 3: override de emergencia, por encima de cualquier otra política.
	for _, p := range valid {
		if p.Type != TypeEmergencyOverride || !p.Config.Enabled {
			continue
		}
		reason := fmt.Sprintf("acceso de emergencia vía política %s; auditoría obligatoria", p.ID)
		return EvaluationResult{
			Decision:           DecisionPermit,
			Reason:             reason,
			EvaluatedPolicyIDs: evaluated,
			DecidingPolicyID:   p.ID,
			RequiresAudit:      true,
		}, nil
	}

	// 4–5: selección por prioridad entre las que matchean.
	// Una política con DocumentID solo compite por ese documento, pero no le
	// gana a una global por ser específica: la prioridad es el único árbitro.
	var winner Policy
	hasWinner := false
	for _, p := range valid {
		if p.Type == TypeEmergencyOverride {
			continue
		}
		if !p.appliesToDocument(req.DocumentID) {
			continue
		}
		if !matches(p, req, now) {
			continue
		}
		if !hasWinner {
			winner = p
			hasWinner = true
			continue
		}
		if p.Priority > winner.Priority {
			winner = p
			continue
		}
		if p.Priority == winner.Priority && p.CreatedAt.After(winner.CreatedAt) {
			winner = p
		}
	}

	if !hasWinner {
		return EvaluationResult{
			Decision:           DecisionPending,
			Reason:             "ninguna política aplica; se requiere aprobación del paciente",
			EvaluatedPolicyIDs: evaluated,
		}, nil
	}

	decision := DecisionPermit
	if winner.Effect == EffectDeny {
		decision = DecisionDeny
	}
	return EvaluationResult{
		Decision:           decision,
		Reason:             fmt.Sprintf("política %s (%s, prioridad %d) => %s", winner.ID, winner.Type, winner.Priority, winner.Effect),
		EvaluatedPolicyIDs: evaluated,
		DecidingPolicyID:   winner.ID,
	}, nil
}

// matches aplica el predicado específico del tipo.
func matches(p Policy, req AccessContext, now time.Time) bool {
	switch p.Type {
	case TypeDocumentType:
		return req.DocumentType != "" && contains(p.Config.DocumentTypes, req.DocumentType)

	case TypeProfessional:
		if contains(p.Config.AllowedProfessionals, req.ProfessionalID) {
			return true
		}
		return contains(p.Config.DeniedProfessionals, req.ProfessionalID)

	case TypeSpecialty:
		for _, s := range req.Specialties {
			if contains(p.Config.Specialties, s) {
				return true
			}
		}
		return false

	case TypeClinic:
		return req.ClinicID != "" && contains(p.Config.ClinicIDs, req.ClinicID)

	case TypeTimeBased:
		day := now.Weekday()
		ok := false
		for _, d := range p.Config.Weekdays {
			if d == day {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
		h := now.Hour()
		return h >= p.Config.HourFrom && h < p.Config.HourTo

	default:
		return false
	}
}
