package notify

import "context"

// PatientNotice avisa al paciente que tiene una solicitud de acceso pendiente.
type PatientNotice struct {
	PatientCI      string
	RequestID      string
	ProfessionalID string
	DocumentType   string
	Reason         string
	Urgency        string
}

// ProfessionalNotice comunica al profesional una resolución o una pregunta
// del paciente (canal lateral de request-info).
type ProfessionalNotice struct {
	ProfessionalID string
	RequestID      string
	Subject        string
	Message        string
}

// Notifier entrega avisos. La entrega real (mail, push, lo que sea) es de otro
// servicio; acá solo se despacha.
type Notifier interface {
	NotifyPatient(ctx context.Context, n PatientNotice) error
	NotifyProfessional(ctx context.Context, n ProfessionalNotice) error
}
