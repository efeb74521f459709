package accessrequests

// Status del ciclo de vida de una solicitud de consentimiento.
// PENDING es el único estado no terminal; las transiciones son de ida.
// @Enum PENDING, APPROVED, DENIED, EXPIRED
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusExpired  Status = "EXPIRED"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

func knownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusExpired:
		return true
	default:
		return false
	}
}

// Urgency declarada por el profesional al pedir acceso.
// @Enum LOW, NORMAL, HIGH, EMERGENCY
type Urgency string

const (
	UrgencyLow       Urgency = "LOW"
	UrgencyNormal    Urgency = "NORMAL"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyEmergency Urgency = "EMERGENCY"
)
