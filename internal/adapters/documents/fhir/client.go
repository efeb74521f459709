package fhir

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinical-doc-access/internal/platform/httpclient"
	"clinical-doc-access/internal/ports/documents"
)

var (
	ErrNotConfigured = errors.New("fhir client not configured")
	ErrNotFound      = errors.New("document not found")
	ErrUpstream      = errors.New("fhir upstream error")
)

// Config del cliente contra la capa documental (servicio FHIR).
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client trae documentos clínicos ya aprobados. Este servicio no interpreta
// el recurso FHIR: lo entrega tal como viene.
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

func (c *Client) FetchByID(ctx context.Context, documentID string) (documents.Document, error) {
	if !c.IsConfigured() {
		return documents.Document{}, ErrNotConfigured
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return documents.Document{}, ErrNotFound
	}

	var out struct {
		ID          string `json:"id"`
		PatientCI   string `json:"patient_ci"`
		Type        string `json:"type"`
		ContentType string `json:"content_type"`
		Content     []byte `json:"content"`
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["X-Api-Key"] = c.apiKey
	}

	err := c.http.DoJSON(ctx, http.MethodGet, "/v1/documents/"+documentID, headers, nil, &out)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusNotFound {
				return documents.Document{}, ErrNotFound
			}
			return documents.Document{}, fmt.Errorf("%w: status=%d", ErrUpstream, httpErr.StatusCode)
		}
		return documents.Document{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return documents.Document{
		ID:          out.ID,
		PatientCI:   out.PatientCI,
		Type:        out.Type,
		ContentType: out.ContentType,
		Content:     out.Content,
		FetchedAt:   time.Now(),
	}, nil
}
