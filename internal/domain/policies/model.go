package policies

import (
	"errors"
	"strings"
	"time"
)

// Config agrupa los parámetros por tipo de política. Es una unión etiquetada
// por Policy.Type: cada tipo usa solo su grupo de campos y Validate exige que
// estén bien formados al construir/actualizar. Una config inválida es un error
// de entrada, nunca un "no matchea" silencioso en evaluación.
type Config struct {
	// DOCUMENT_TYPE
	DocumentTypes []string

	// PROFESSIONAL (lista allow y/o deny de ids de profesional)
	AllowedProfessionals []string
	DeniedProfessionals  []string

	// SPECIALTY
	Specialties []string

	// CLINIC
	ClinicIDs []string

	// TIME_BASED: días permitidos + ventana horaria [HourFrom, HourTo)
	Weekdays []time.Weekday
	HourFrom int
	HourTo   int

	// EMERGENCY_OVERRIDE
	Enabled       bool
	RequiresAudit bool
}

// Policy es una regla de acceso de un único paciente.
type Policy struct {
	ID        string
	PatientCI string // dueña de la regla; inmutable

	Type   PolicyType
	Config Config
	Effect Effect

	// Mayor prioridad gana entre políticas que matchean.
	Priority int

	// Alcance opcional: si está seteado, la política aplica solo a ese
	// documento; vacío = aplica a todos los documentos del paciente.
	DocumentID string

	// Ventana de vigencia; nil = sin límite de ese lado.
	ValidFrom  *time.Time
	ValidUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate chequea la config contra el tipo declarado.
func (c Config) Validate(t PolicyType) error {
	switch t {
	case TypeDocumentType:
		if len(cleanSet(c.DocumentTypes)) == 0 {
			return errors.New("document_types requerido para DOCUMENT_TYPE")
		}
	case TypeProfessional:
		if len(cleanSet(c.AllowedProfessionals)) == 0 && len(cleanSet(c.DeniedProfessionals)) == 0 {
			return errors.New("PROFESSIONAL requiere allow list o deny list")
		}
	case TypeSpecialty:
		if len(cleanSet(c.Specialties)) == 0 {
			return errors.New("specialties requerido para SPECIALTY")
		}
	case TypeClinic:
		if len(cleanSet(c.ClinicIDs)) == 0 {
			return errors.New("clinic_ids requerido para CLINIC")
		}
	case TypeTimeBased:
		if len(c.Weekdays) == 0 {
			return errors.New("weekdays requerido para TIME_BASED")
		}
		for _, d := range c.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return errors.New("weekday fuera de rango")
			}
		}
		if c.HourFrom < 0 || c.HourFrom > 23 || c.HourTo < 1 || c.HourTo > 24 || c.HourFrom >= c.HourTo {
			return errors.New("ventana horaria inválida (se espera 0 <= from < to <= 24)")
		}
	case TypeEmergencyOverride:
		// Enabled/RequiresAudit son booleanos libres; nada más que validar.
	default:
		return errors.New("tipo de política desconocido")
	}
	return nil
}

// validAt indica si la política está vigente en el instante dado.
func (p Policy) validAt(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

// appliesToDocument chequea el alcance opcional por documento.
func (p Policy) appliesToDocument(documentID string) bool {
	if p.DocumentID == "" {
		return true
	}
	return p.DocumentID == documentID
}

// clone copia la política con sus campos referenciados (slices de la config,
// punteros de vigencia), para que el receptor no pueda mutar el original.
func (p Policy) clone() Policy {
	p.Config = p.Config.clone()
	if p.ValidFrom != nil {
		t := *p.ValidFrom
		p.ValidFrom = &t
	}
	if p.ValidUntil != nil {
		t := *p.ValidUntil
		p.ValidUntil = &t
	}
	return p
}

func (c Config) clone() Config {
	c.DocumentTypes = cloneStrings(c.DocumentTypes)
	c.AllowedProfessionals = cloneStrings(c.AllowedProfessionals)
	c.DeniedProfessionals = cloneStrings(c.DeniedProfessionals)
	c.Specialties = cloneStrings(c.Specialties)
	c.ClinicIDs = cloneStrings(c.ClinicIDs)
	if c.Weekdays != nil {
		c.Weekdays = append([]time.Weekday(nil), c.Weekdays...)
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cleanSet(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
