package policies

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinical-doc-access/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// ConsentStarter arranca (o reutiliza) una solicitud de consentimiento cuando
// la evaluación da PENDING. Evita importar el paquete accessrequests (rompe
// ciclos).
type ConsentStarter interface {
	Start(ctx context.Context, req AccessContext) (requestID string, isNew bool, err error)
}

func RegisterRoutes(r chi.Router, svc *Service, consents ConsentStarter) {
	r.Route("/policies", func(pr chi.Router) {
		pr.Post("/", createPolicyHandler(svc))
		pr.Get("/patient/{patientCi}", listPoliciesHandler(svc))
		pr.Post("/evaluate", evaluateHandler(svc, consents))
		pr.Put("/{policyID}", updatePolicyHandler(svc))
		pr.Delete("/{policyID}", deletePolicyHandler(svc))
	})
}

type policyConfigDTO struct {
	DocumentTypes        []string `json:"documentTypes,omitempty"`
	AllowedProfessionals []string `json:"allowedProfessionals,omitempty"`
	DeniedProfessionals  []string `json:"deniedProfessionals,omitempty"`
	Specialties          []string `json:"specialties,omitempty"`
	ClinicIDs            []string `json:"clinicIds,omitempty"`
	Weekdays             []int    `json:"weekdays,omitempty"`
	HourFrom             int      `json:"hourFrom,omitempty"`
	HourTo               int      `json:"hourTo,omitempty"`
	Enabled              bool     `json:"enabled,omitempty"`
	RequiresAudit        bool     `json:"requiresAudit,omitempty"`
}

type createPolicyRequest struct {
	PatientCI    string          `json:"patientCi"`
	PolicyType   PolicyType      `json:"policyType"`
	PolicyConfig policyConfigDTO `json:"policyConfig"`
	PolicyEffect Effect          `json:"policyEffect"`
	Priority     int             `json:"priority"`
	DocumentID   string          `json:"documentId,omitempty"`
	ValidFrom    *time.Time      `json:"validFrom,omitempty"`
	ValidUntil   *time.Time      `json:"validUntil,omitempty"`
}

type updatePolicyRequest struct {
	PolicyConfig policyConfigDTO `json:"policyConfig"`
	PolicyEffect Effect          `json:"policyEffect"`
	Priority     int             `json:"priority"`
	DocumentID   string          `json:"documentId,omitempty"`
	ValidFrom    *time.Time      `json:"validFrom,omitempty"`
	ValidUntil   *time.Time      `json:"validUntil,omitempty"`
}

type policyResponse struct {
	ID           string          `json:"id"`
	PatientCI    string          `json:"patientCi"`
	PolicyType   PolicyType      `json:"policyType"`
	PolicyConfig policyConfigDTO `json:"policyConfig"`
	PolicyEffect Effect          `json:"policyEffect"`
	Priority     int             `json:"priority"`
	DocumentID   string          `json:"documentId,omitempty"`
	ValidFrom    *time.Time      `json:"validFrom,omitempty"`
	ValidUntil   *time.Time      `json:"validUntil,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type policyPageResponse struct {
	Items []policyResponse `json:"items"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Total int              `json:"total"`
}

type evaluateRequest struct {
	ProfessionalID string   `json:"professionalId"`
	Specialties    []string `json:"specialties"`
	ClinicID       string   `json:"clinicId"`
	PatientCI      string   `json:"patientCi"`
	DocumentID     string   `json:"documentId,omitempty"`
	DocumentType   string   `json:"documentType"`
	RequestReason  string   `json:"requestReason,omitempty"`
	Urgency        string   `json:"urgency,omitempty"`
}

type evaluateResponse struct {
	Decision          Decision `json:"decision"`
	Reason            string   `json:"reason"`
	EvaluatedPolicies []string `json:"evaluatedPolicies"`
	DecidingPolicy    string   `json:"decidingPolicy,omitempty"`
	RequiresAudit     bool     `json:"requiresAudit,omitempty"`

	// Solo en PENDING: la solicitud de consentimiento creada o reutilizada.
	AccessRequestID string `json:"accessRequestId,omitempty"`
	AlreadyPending  bool   `json:"alreadyPending,omitempty"`
}

// createPolicyHandler crea una política del paciente autenticado.
// @Summary Crear política de acceso
// @Router /policies [post]
func createPolicyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createPolicyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		// Las políticas se crean en nombre propio: si el body trae otra
		// cédula, es un intento de escribir reglas ajenas.
		owner := claims.UserID
		if ci := strings.TrimSpace(req.PatientCI); ci != "" && ci != owner {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		p, err := svc.Create(r.Context(), owner, CreateInput{
			Type:       req.PolicyType,
			Config:     fromConfigDTO(req.PolicyConfig),
			Effect:     req.PolicyEffect,
			Priority:   req.Priority,
			DocumentID: req.DocumentID,
			ValidFrom:  req.ValidFrom,
			ValidUntil: req.ValidUntil,
		})
		if err != nil {
			writePolicyError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPolicyResponse(p))
	}
}

// listPoliciesHandler lista paginado por paciente; lista vacía, nunca 404.
// @Summary Listar políticas de un paciente
// @Router /policies/patient/{patientCi} [get]
func listPoliciesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientCI := chi.URLParam(r, "patientCi")
		policyType := PolicyType(strings.TrimSpace(r.URL.Query().Get("policyType")))
		page := parseIntQuery(r, "page", 0)
		size := parseIntQuery(r, "size", 0)

		items, total, err := svc.ListByPatient(r.Context(), patientCI, policyType, page, size)
		if err != nil {
			writePolicyError(w, err)
			return
		}

		out := make([]policyResponse, 0, len(items))
		for _, p := range items {
			out = append(out, toPolicyResponse(p))
		}
		writeJSON(w, http.StatusOK, policyPageResponse{
			Items: out,
			Page:  page,
			Size:  svc.cfg.ClampPageSize(size),
			Total: total,
		})
	}
}

func updatePolicyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req updatePolicyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		p, err := svc.Update(r.Context(), chi.URLParam(r, "policyID"), claims.UserID, UpdateInput{
			Config:     fromConfigDTO(req.PolicyConfig),
			Effect:     req.PolicyEffect,
			Priority:   req.Priority,
			DocumentID: req.DocumentID,
			ValidFrom:  req.ValidFrom,
			ValidUntil: req.ValidUntil,
		})
		if err != nil {
			writePolicyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPolicyResponse(p))
	}
}

func deletePolicyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := svc.Delete(r.Context(), chi.URLParam(r, "policyID"), claims.UserID); err != nil {
			writePolicyError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// evaluateHandler corre el motor. Mapeo de status: PERMIT=200, DENY=403,
// PENDING=202 (y se crea/reutiliza la solicitud de consentimiento).
// @Summary Evaluar intento de acceso a documento
// @Router /policies/evaluate [post]
func evaluateHandler(svc *Service, consents ConsentStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		professionalID := strings.TrimSpace(req.ProfessionalID)
		if professionalID == "" {
			professionalID = claims.UserID
		} else if professionalID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		actx := AccessContext{
			ProfessionalID: professionalID,
			Specialties:    req.Specialties,
			ClinicID:       strings.TrimSpace(req.ClinicID),
			PatientCI:      strings.TrimSpace(req.PatientCI),
			DocumentID:     strings.TrimSpace(req.DocumentID),
			DocumentType:   strings.TrimSpace(req.DocumentType),
			Reason:         strings.TrimSpace(req.RequestReason),
			Urgency:        strings.TrimSpace(req.Urgency),
		}

		res, err := svc.Evaluate(r.Context(), actx)
		if err != nil {
			writePolicyError(w, err)
			return
		}

		out := evaluateResponse{
			Decision:          res.Decision,
			Reason:            res.Reason,
			EvaluatedPolicies: res.EvaluatedPolicyIDs,
			DecidingPolicy:    res.DecidingPolicyID,
			RequiresAudit:     res.RequiresAudit,
		}

		switch res.Decision {
		case DecisionPermit:
			writeJSON(w, http.StatusOK, out)

		case DecisionDeny:
			writeJSON(w, http.StatusForbidden, out)

		case DecisionPending:
			reqID, isNew, err := consents.Start(r.Context(), actx)
			if err != nil {
				writePolicyError(w, err)
				return
			}
			out.AccessRequestID = reqID
			out.AlreadyPending = !isNew
			writeJSON(w, http.StatusAccepted, out)

		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func writePolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toPolicyResponse(p Policy) policyResponse {
	return policyResponse{
		ID:           p.ID,
		PatientCI:    p.PatientCI,
		PolicyType:   p.Type,
		PolicyConfig: toConfigDTO(p.Config),
		PolicyEffect: p.Effect,
		Priority:     p.Priority,
		DocumentID:   p.DocumentID,
		ValidFrom:    p.ValidFrom,
		ValidUntil:   p.ValidUntil,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toConfigDTO(c Config) policyConfigDTO {
	days := make([]int, 0, len(c.Weekdays))
	for _, d := range c.Weekdays {
		days = append(days, int(d))
	}
	return policyConfigDTO{
		DocumentTypes:        c.DocumentTypes,
		AllowedProfessionals: c.AllowedProfessionals,
		DeniedProfessionals:  c.DeniedProfessionals,
		Specialties:          c.Specialties,
		ClinicIDs:            c.ClinicIDs,
		Weekdays:             days,
		HourFrom:             c.HourFrom,
		HourTo:               c.HourTo,
		Enabled:              c.Enabled,
		RequiresAudit:        c.RequiresAudit,
	}
}

func fromConfigDTO(in policyConfigDTO) Config {
	days := make([]time.Weekday, 0, len(in.Weekdays))
	for _, d := range in.Weekdays {
		days = append(days, time.Weekday(d))
	}
	return Config{
		DocumentTypes:        in.DocumentTypes,
		AllowedProfessionals: in.AllowedProfessionals,
		DeniedProfessionals:  in.DeniedProfessionals,
		Specialties:          in.Specialties,
		ClinicIDs:            in.ClinicIDs,
		Weekdays:             days,
		HourFrom:             in.HourFrom,
		HourTo:               in.HourTo,
		Enabled:              in.Enabled,
		RequiresAudit:        in.RequiresAudit,
	}
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear paquetes/helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
