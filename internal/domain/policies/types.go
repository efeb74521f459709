package policies

// PolicyType define los tipos de regla soportados.
// @Enum DOCUMENT_TYPE, PROFESSIONAL, SPECIALTY, CLINIC, TIME_BASED, EMERGENCY_OVERRIDE
type PolicyType string

const (
	TypeDocumentType      PolicyType = "DOCUMENT_TYPE"
	TypeProfessional      PolicyType = "PROFESSIONAL"
	TypeSpecialty         PolicyType = "SPECIALTY"
	TypeClinic            PolicyType = "CLINIC"
	TypeTimeBased         PolicyType = "TIME_BASED"
	TypeEmergencyOverride PolicyType = "EMERGENCY_OVERRIDE"
)

// Effect es el resultado que aporta una política cuando matchea.
// @Enum PERMIT, DENY
type Effect string

const (
	EffectPermit Effect = "PERMIT"
	EffectDeny   Effect = "DENY"
)

// Decision es la salida del motor.
// @Enum PERMIT, DENY, PENDING
type Decision string

const (
	DecisionPermit  Decision = "PERMIT"
	DecisionDeny    Decision = "DENY"
	DecisionPending Decision = "PENDING"
)

func knownType(t PolicyType) bool {
	switch t {
	case TypeDocumentType, TypeProfessional, TypeSpecialty, TypeClinic, TypeTimeBased, TypeEmergencyOverride:
		return true
	default:
		return false
	}
}

func knownEffect(e Effect) bool {
	return e == EffectPermit || e == EffectDeny
}
