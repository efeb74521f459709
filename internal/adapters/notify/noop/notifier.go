package noop

import (
	"context"

	"clinical-doc-access/internal/platform/logger"
	"clinical-doc-access/internal/ports/notify"
)

// Notifier para dev y tests: loguea el aviso y nada más.
type Notifier struct {
	log logger.Logger
}

func NewNotifier(log logger.Logger) *Notifier {
	return &Notifier{log: log}
}

func (n *Notifier) NotifyPatient(ctx context.Context, p notify.PatientNotice) error {
	n.log.Debug("aviso a paciente (noop)", map[string]any{
		"patient_ci": p.PatientCI,
		"request_id": p.RequestID,
	})
	return nil
}

func (n *Notifier) NotifyProfessional(ctx context.Context, p notify.ProfessionalNotice) error {
	n.log.Debug("aviso a profesional (noop)", map[string]any{
		"professional_id": p.ProfessionalID,
		"request_id":      p.RequestID,
	})
	return nil
}
