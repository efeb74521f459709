package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinical-doc-access/internal/platform/httpclient"
	"clinical-doc-access/internal/ports/notify"
)

var (
	ErrNotConfigured = errors.New("notification gateway not configured")
	ErrUpstream      = errors.New("notification gateway upstream error")
)

// Config del gateway de notificaciones. La entrega real (mail/push/SMS) vive
// en otro servicio; acá solo se despacha el aviso.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http   *httpclient.Client
	apiKey string
}

func NewClient(cfg Config) (*Client, error) {
	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:   hc,
		apiKey: strings.TrimSpace(cfg.APIKey),
	}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != ""
}

func (c *Client) NotifyPatient(ctx context.Context, n notify.PatientNotice) error {
	return c.post(ctx, "/v1/notifications/patient", map[string]string{
		"patient_ci":      n.PatientCI,
		"request_id":      n.RequestID,
		"professional_id": n.ProfessionalID,
		"document_type":   n.DocumentType,
		"reason":          n.Reason,
		"urgency":         n.Urgency,
	})
}

func (c *Client) NotifyProfessional(ctx context.Context, n notify.ProfessionalNotice) error {
	return c.post(ctx, "/v1/notifications/professional", map[string]string{
		"professional_id": n.ProfessionalID,
		"request_id":      n.RequestID,
		"subject":         n.Subject,
		"message":         n.Message,
	})
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["X-Api-Key"] = c.apiKey
	}

	if err := c.http.DoJSON(ctx, http.MethodPost, path, headers, body, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}
