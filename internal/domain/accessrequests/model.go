package accessrequests

import "time"

// AccessRequest es el registro de consentimiento que se le pide al paciente
// cuando el motor no resuelve PERMIT/DENY. Nunca se borra: queda para
// auditoría.
type AccessRequest struct {
	ID string

	ProfessionalID          string
	ProfessionalSpecialties []string
	ClinicID                string

	PatientCI string

	// DocumentID vacío = pedido de acceso general, no de un documento puntual.
	DocumentID   string
	DocumentType string

	RequestReason string
	Urgency       Urgency

	Status Status

	RequestedAt time.Time
	ExpiresAt   time.Time

	// Respuesta del paciente (approve/deny).
	PatientResponse string
	RespondedAt     *time.Time

	// Canal lateral de request-info: última pregunta del paciente.
	// No cambia el Status.
	InfoQuestion    string
	InfoRequestedAt *time.Time
}

// dedupKey identifica la tripla sobre la que vale "a lo sumo un PENDING".
func (ar AccessRequest) dedupKey() string {
	return dedupKey(ar.ProfessionalID, ar.PatientCI, ar.DocumentID)
}

func dedupKey(professionalID, patientCI, documentID string) string {
	return professionalID + "|" + patientCI + "|" + documentID
}

// expiredAt indica si una solicitud PENDING ya venció lógicamente.
func (ar AccessRequest) expiredAt(now time.Time) bool {
	return ar.Status == StatusPending && now.After(ar.ExpiresAt)
}
