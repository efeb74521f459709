package accessrequests

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinical-doc-access/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/access-requests", func(ar chi.Router) {
		ar.Get("/", listByPatientHandler(svc))
		ar.Get("/mine", listMineHandler(svc))

		ar.Route("/{requestID}", func(rr chi.Router) {
			rr.Get("/", getHandler(svc))
			rr.Post("/approve", approveHandler(svc))
			rr.Post("/deny", denyHandler(svc))
			rr.Post("/request-info", requestInfoHandler(svc))
			rr.Get("/approved-document", approvedDocumentHandler(svc))
		})
	})
}

type decisionRequest struct {
	Reason string `json:"reason"`
}

type requestInfoRequest struct {
	Question string `json:"question"`
}

type accessRequestResponse struct {
	ID                      string     `json:"id"`
	ProfessionalID          string     `json:"professionalId"`
	ProfessionalSpecialties []string   `json:"professionalSpecialties,omitempty"`
	ClinicID                string     `json:"clinicId,omitempty"`
	PatientCI               string     `json:"patientCi"`
	DocumentID              string     `json:"documentId,omitempty"`
	DocumentType            string     `json:"documentType,omitempty"`
	RequestReason           string     `json:"requestReason,omitempty"`
	Urgency                 Urgency    `json:"urgency"`
	Status                  Status     `json:"status"`
	RequestedAt             time.Time  `json:"requestedAt"`
	ExpiresAt               time.Time  `json:"expiresAt"`
	PatientResponse         string     `json:"patientResponse,omitempty"`
	RespondedAt             *time.Time `json:"respondedAt,omitempty"`
	InfoQuestion            string     `json:"infoQuestion,omitempty"`
	InfoRequestedAt         *time.Time `json:"infoRequestedAt,omitempty"`
}

type accessRequestPageResponse struct {
	Items []accessRequestResponse `json:"items"`
	Page  int                     `json:"page"`
	Size  int                     `json:"size"`
	Total int                     `json:"total"`
}

// listByPatientHandler lista las solicitudes del paciente autenticado.
// @Summary Listar solicitudes de consentimiento del paciente
// @Router /access-requests [get]
func listByPatientHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientCI := strings.TrimSpace(r.URL.Query().Get("patientCi"))
		if patientCI == "" {
			patientCI = claims.UserID
		} else if patientCI != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		status := Status(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
		page := parseIntQuery(r, "page", 0)
		size := parseIntQuery(r, "size", 0)

		items, total, err := svc.ListByPatient(r.Context(), patientCI, status, page, size)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		out := make([]accessRequestResponse, 0, len(items))
		for _, ar := range items {
			out = append(out, toResponse(ar))
		}
		writeJSON(w, http.StatusOK, accessRequestPageResponse{
			Items: out,
			Page:  page,
			Size:  svc.cfg.ClampPageSize(size),
			Total: total,
		})
	}
}

// listMineHandler: el profesional ve sus propias solicitudes.
func listMineHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByProfessional(r.Context(), claims.UserID)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		out := make([]accessRequestResponse, 0, len(items))
		for _, ar := range items {
			out = append(out, toResponse(ar))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ar, err := svc.GetByID(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			writeRequestError(w, err)
			return
		}

		// Solo las partes involucradas pueden mirarla.
		if ar.PatientCI != claims.UserID && ar.ProfessionalID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(ar))
	}
}

// approveHandler: decisión del paciente dueño de la solicitud.
// @Summary Aprobar solicitud de acceso
// @Router /access-requests/{requestID}/approve [post]
func approveHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req decisionRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // reason es opcional en approve
		}

		ar, err := svc.Approve(r.Context(), chi.URLParam(r, "requestID"), claims.UserID, req.Reason)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(ar))
	}
}

func denyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		ar, err := svc.Deny(r.Context(), chi.URLParam(r, "requestID"), claims.UserID, req.Reason)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(ar))
	}
}

func requestInfoHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req requestInfoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		ar, err := svc.RequestMoreInfo(r.Context(), chi.URLParam(r, "requestID"), claims.UserID, req.Question)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(ar))
	}
}

// approvedDocumentHandler entrega el documento de una solicitud aprobada al
// profesional que la pidió.
// @Summary Obtener documento de una solicitud aprobada
// @Router /access-requests/{requestID}/approved-document [get]
func approvedDocumentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		doc, err := svc.ApprovedDocument(r.Context(), chi.URLParam(r, "requestID"), claims.UserID)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		ct := doc.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc.Content)
	}
}

func writeRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrBadState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toResponse(ar AccessRequest) accessRequestResponse {
	return accessRequestResponse{
		ID:                      ar.ID,
		ProfessionalID:          ar.ProfessionalID,
		ProfessionalSpecialties: ar.ProfessionalSpecialties,
		ClinicID:                ar.ClinicID,
		PatientCI:               ar.PatientCI,
		DocumentID:              ar.DocumentID,
		DocumentType:            ar.DocumentType,
		RequestReason:           ar.RequestReason,
		Urgency:                 ar.Urgency,
		Status:                  ar.Status,
		RequestedAt:             ar.RequestedAt,
		ExpiresAt:               ar.ExpiresAt,
		PatientResponse:         ar.PatientResponse,
		RespondedAt:             ar.RespondedAt,
		InfoQuestion:            ar.InfoQuestion,
		InfoRequestedAt:         ar.InfoRequestedAt,
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
