package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	memdocs "clinical-doc-access/internal/adapters/documents/memory"
	"clinical-doc-access/internal/platform/config"
	"clinical-doc-access/internal/ports/documents"
	"clinical-doc-access/internal/router"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	docs := memdocs.NewFetcher()
	docs.Put(documents.Document{
		ID:          "doc-1",
		PatientCI:   "1.234.567-8",
		Type:        "LAB_RESULT",
		ContentType: "application/pdf",
		Content:     []byte("resultado de laboratorio"),
	})

	cfg := config.Default()
	handler, _ := router.NewRouter(router.Options{
		AuthVerifier: nil, // modo dev: X-Debug-User-ID
		Cfg:          &cfg,
		Docs:         docs,
	})
	return httptest.NewServer(handler)
}

func TestHTTP_EndToEnd_PolicyDecisions(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	patientCI := "1.234.567-8"

	// 1) El paciente publica sus reglas: cardiología puede, prof-9 no.
	createPolicy(t, ts.URL, patientCI, map[string]any{
		"policyType":   "SPECIALTY",
		"policyConfig": map[string]any{"specialties": []string{"CARDIOLOGY"}},
		"policyEffect": "PERMIT",
		"priority":     10,
	})
	denyID := createPolicy(t, ts.URL, patientCI, map[string]any{
		"policyType":   "PROFESSIONAL",
		"policyConfig": map[string]any{"deniedProfessionals": []string{"prof-9"}},
		"policyEffect": "DENY",
		"priority":     20,
	})

	evalBody := map[string]any{
		"specialties":  []string{"CARDIOLOGY"},
		"patientCi":    patientCI,
		"documentId":   "doc-1",
		"documentType": "LAB_RESULT",
	}

	// 2) prof-2 (cardiólogo) => PERMIT
	{
		st, body := doReq(t, ts.URL, "POST", "/policies/evaluate", "prof-2", evalBody)
		if st != http.StatusOK {
			t.Fatalf("expected 200 PERMIT, got %d body=%s", st, string(body))
		}
		var resp struct {
			Decision string `json:"decision"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Decision != "PERMIT" {
			t.Fatalf("expected PERMIT, got %s", resp.Decision)
		}
	}

	// 3) prof-9 está en la deny list y la prioridad 20 le gana a la 10 => 403
	{
		st, body := doReq(t, ts.URL, "POST", "/policies/evaluate", "prof-9", evalBody)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 DENY, got %d body=%s", st, string(body))
		}
	}

	// 4) El paciente borra la regla de deny; el cambio se ve en la evaluación
	//    siguiente, sin TTL de por medio.
	{
		st, body := doReq(t, ts.URL, "DELETE", "/policies/"+denyID, patientCI, nil)
		if st != http.StatusNoContent {
			t.Fatalf("expected 204 delete policy, got %d body=%s", st, string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/policies/evaluate", "prof-9", evalBody)
		if st != http.StatusOK {
			t.Fatalf("expected 200 right after delete, got %d body=%s", st, string(body))
		}
	}

	// 5) Listado paginado del paciente
	{
		st, body := doReq(t, ts.URL, "GET", "/policies/patient/"+patientCI, patientCI, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 listing policies, got %d body=%s", st, string(body))
		}
		var page struct {
			Items []map[string]any `json:"items"`
			Total int              `json:"total"`
		}
		_ = json.Unmarshal(body, &page)
		if page.Total != 1 || len(page.Items) != 1 {
			t.Fatalf("expected one remaining policy, got total=%d items=%d", page.Total, len(page.Items))
		}
	}
}

func TestHTTP_EndToEnd_ConsentFlow(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	patientCI := "1.234.567-8"
	professionalID := "prof-5"

	evalBody := map[string]any{
		"patientCi":     patientCI,
		"documentId":    "doc-1",
		"documentType":  "LAB_RESULT",
		"requestReason": "control post operatorio",
	}

	// 1) Sin políticas: PENDING => 202 con solicitud de consentimiento creada.
	requestID := ""
	{
		st, body := doReq(t, ts.URL, "POST", "/policies/evaluate", professionalID, evalBody)
		if st != http.StatusAccepted {
			t.Fatalf("expected 202 PENDING, got %d body=%s", st, string(body))
		}
		var resp struct {
			Decision        string `json:"decision"`
			AccessRequestID string `json:"accessRequestId"`
			AlreadyPending  bool   `json:"alreadyPending"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Decision != "PENDING" || resp.AccessRequestID == "" {
			t.Fatalf("expected PENDING with request id, body=%s", string(body))
		}
		if resp.AlreadyPending {
			t.Fatalf("first evaluation must create, not reuse")
		}
		requestID = resp.AccessRequestID
	}

	// 2) Re-evaluar no duplica: misma solicitud, alreadyPending=true.
	{
		st, body := doReq(t, ts.URL, "POST", "/policies/evaluate", professionalID, evalBody)
		if st != http.StatusAccepted {
			t.Fatalf("expected 202 on resubmit, got %d body=%s", st, string(body))
		}
		var resp struct {
			AccessRequestID string `json:"accessRequestId"`
			AlreadyPending  bool   `json:"alreadyPending"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.AccessRequestID != requestID || !resp.AlreadyPending {
			t.Fatalf("expected reuse of %s, body=%s", requestID, string(body))
		}
	}

	// 3) El paciente ve la solicitud pendiente.
	{
		st, body := doReq(t, ts.URL, "GET", "/access-requests?status=PENDING", patientCI, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 listing requests, got %d body=%s", st, string(body))
		}
		var page struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		_ = json.Unmarshal(body, &page)
		if len(page.Items) != 1 || page.Items[0].ID != requestID {
			t.Fatalf("expected the pending request listed, body=%s", string(body))
		}
	}

	// 4) Otro paciente no puede decidir sobre ella.
	{
		st, _ := doReq(t, ts.URL, "POST", "/access-requests/"+requestID+"/approve", "9.999.999-9", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 approving foreign request, got %d", st)
		}
	}

	// 5) Deny con motivo corto => 400.
	{
		st, _ := doReq(t, ts.URL, "POST", "/access-requests/"+requestID+"/deny", patientCI, map[string]any{
			"reason": "no",
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 for short deny reason, got %d", st)
		}
	}

	// 6) El profesional todavía no puede bajar el documento.
	{
		st, _ := doReq(t, ts.URL, "GET", "/access-requests/"+requestID+"/approved-document", professionalID, nil)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 before approval, got %d", st)
		}
	}

	// 7) El paciente aprueba.
	{
		st, body := doReq(t, ts.URL, "POST", "/access-requests/"+requestID+"/approve", patientCI, map[string]any{
			"reason": "de acuerdo",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 approve, got %d body=%s", st, string(body))
		}
		var resp struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Status != "APPROVED" {
			t.Fatalf("expected APPROVED, got %s", resp.Status)
		}
	}

	// 8) Re-decidir una solicitud terminal => 409.
	{
		st, _ := doReq(t, ts.URL, "POST", "/access-requests/"+requestID+"/deny", patientCI, map[string]any{
			"reason": "me arrepentí del permiso",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 re-deciding, got %d", st)
		}
	}

	// 9) El profesional descarga el documento; otro profesional no.
	{
		st, body, ct := doReqWithContentType(t, ts.URL, "GET", "/access-requests/"+requestID+"/approved-document", professionalID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 approved document, got %d body=%s", st, string(body))
		}
		if ct != "application/pdf" {
			t.Fatalf("expected content type from the document, got %s", ct)
		}
		if string(body) != "resultado de laboratorio" {
			t.Fatalf("unexpected document body=%q", string(body))
		}
	}
	{
		st, _ := doReq(t, ts.URL, "GET", "/access-requests/"+requestID+"/approved-document", "prof-99", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for other professional, got %d", st)
		}
	}

	// 10) El profesional ve la solicitud en /mine.
	{
		st, body := doReq(t, ts.URL, "GET", "/access-requests/mine", professionalID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 on mine, got %d body=%s", st, string(body))
		}
		var items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &items)
		if len(items) != 1 || items[0].ID != requestID || items[0].Status != "APPROVED" {
			t.Fatalf("expected approved request in mine, body=%s", string(body))
		}
	}
}

func TestHTTP_Policies_RejectInvalid(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	patientCI := "1.234.567-8"

	// Sin auth => 401
	{
		st, _ := doReq(t, ts.URL, "POST", "/policies", "", map[string]any{
			"policyType": "SPECIALTY",
		})
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 without auth, got %d", st)
		}
	}

	// Prioridad fuera de rango => 400
	{
		st, _ := doReq(t, ts.URL, "POST", "/policies", patientCI, map[string]any{
			"policyType":   "SPECIALTY",
			"policyConfig": map[string]any{"specialties": []string{"CARDIOLOGY"}},
			"policyEffect": "PERMIT",
			"priority":     999,
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 for out-of-range priority, got %d", st)
		}
	}

	// Crear políticas a nombre de otro => 403
	{
		st, _ := doReq(t, ts.URL, "POST", "/policies", patientCI, map[string]any{
			"patientCi":    "9.999.999-9",
			"policyType":   "SPECIALTY",
			"policyConfig": map[string]any{"specialties": []string{"CARDIOLOGY"}},
			"policyEffect": "PERMIT",
			"priority":     10,
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 writing foreign policies, got %d", st)
		}
	}

	// Evaluar en nombre de otro profesional => 403
	{
		st, _ := doReq(t, ts.URL, "POST", "/policies/evaluate", "prof-2", map[string]any{
			"professionalId": "prof-9",
			"patientCi":      patientCI,
			"documentType":   "LAB_RESULT",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 impersonating professional, got %d", st)
		}
	}
}

func createPolicy(t *testing.T, baseURL, patientCI string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/policies", patientCI, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create policy, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("create policy: missing id body=%s", string(body))
	}
	return resp.ID
}

func doReq(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte) {
	t.Helper()
	st, b, _ := doReqWithContentType(t, baseURL, method, path, debugUserID, body)
	return st, b
}

func doReqWithContentType(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte, string) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody, res.Header.Get("Content-Type")
}
