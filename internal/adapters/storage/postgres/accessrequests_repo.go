package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"clinical-doc-access/internal/domain/accessrequests"
)

// AccessRequestsRepo persiste solicitudes en la tabla access_requests:
//
//	id text pk, professional_id text, specialties jsonb, clinic_id text,
//	patient_ci text, document_id text, document_type text,
//	request_reason text, urgency text, status text,
//	requested_at timestamptz, expires_at timestamptz,
//	patient_response text, responded_at timestamptz null,
//	info_question text, info_requested_at timestamptz null
type AccessRequestsRepo struct {
	db *sql.DB
}

func NewAccessRequestsRepo(db *sql.DB) *AccessRequestsRepo {
	return &AccessRequestsRepo{db: db}
}

const requestColumns = `
	id, professional_id, specialties, clinic_id, patient_ci,
	document_id, document_type, request_reason, urgency, status,
	requested_at, expires_at, patient_response, responded_at,
	info_question, info_requested_at`

func (r *AccessRequestsRepo) Create(ctx context.Context, ar accessrequests.AccessRequest) error {
	specs, err := json.Marshal(ar.ProfessionalSpecialties)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO access_requests (`+requestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		ar.ID,
		ar.ProfessionalID,
		specs,
		ar.ClinicID,
		ar.PatientCI,
		ar.DocumentID,
		ar.DocumentType,
		ar.RequestReason,
		string(ar.Urgency),
		string(ar.Status),
		ar.RequestedAt,
		ar.ExpiresAt,
		ar.PatientResponse,
		toNullTime(ar.RespondedAt),
		ar.InfoQuestion,
		toNullTime(ar.InfoRequestedAt),
	)
	return err
}

// Update con guarda de status: solo escribe si el registro sigue en expect.
// El WHERE hace de compare-and-swap; si no afecta filas hay que distinguir
// "no existe" de "otro actor ya lo transicionó".
func (r *AccessRequestsRepo) Update(ctx context.Context, ar accessrequests.AccessRequest, expect accessrequests.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE access_requests
		SET
			status = $3,
			patient_response = $4,
			responded_at = $5,
			info_question = $6,
			info_requested_at = $7
		WHERE id = $1 AND status = $2
	`,
		ar.ID,
		string(expect),
		string(ar.Status),
		ar.PatientResponse,
		toNullTime(ar.RespondedAt),
		ar.InfoQuestion,
		toNullTime(ar.InfoRequestedAt),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_requests WHERE id = $1)`, ar.ID,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, accessrequests.ErrNotFound
	}
	return false, nil
}

func (r *AccessRequestsRepo) GetByID(ctx context.Context, id string) (accessrequests.AccessRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return accessrequests.AccessRequest{}, accessrequests.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE id = $1
	`, id)

	return scanAccessRequest(row)
}

func (r *AccessRequestsRepo) FindPending(ctx context.Context, professionalID, patientCI, documentID string) (accessrequests.AccessRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE professional_id = $1
		  AND patient_ci = $2
		  AND document_id = $3
		  AND status = 'PENDING'
		ORDER BY requested_at DESC
		LIMIT 1
	`, professionalID, patientCI, documentID)

	return scanAccessRequest(row)
}

func (r *AccessRequestsRepo) ListByPatient(ctx context.Context, patientCI string, f accessrequests.ListFilter) ([]accessrequests.AccessRequest, int, error) {
	patientCI = strings.TrimSpace(patientCI)
	if patientCI == "" {
		return nil, 0, nil
	}

	where := `WHERE patient_ci = $1`
	args := []any{patientCI}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, string(f.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_requests `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM access_requests ` + where + ` ORDER BY requested_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ` + itoa(f.Limit) + ` OFFSET ` + itoa(f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]accessrequests.AccessRequest, 0)
	for rows.Next() {
		ar, err := scanAccessRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ar)
	}
	return out, total, rows.Err()
}

func (r *AccessRequestsRepo) ListByProfessional(ctx context.Context, professionalID string) ([]accessrequests.AccessRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE professional_id = $1
		ORDER BY requested_at DESC
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]accessrequests.AccessRequest, 0)
	for rows.Next() {
		ar, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

func (r *AccessRequestsRepo) ListPendingBefore(ctx context.Context, t time.Time) ([]accessrequests.AccessRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE status = 'PENDING' AND expires_at < $1
	`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]accessrequests.AccessRequest, 0)
	for rows.Next() {
		ar, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

func scanAccessRequest(row rowScanner) (accessrequests.AccessRequest, error) {
	var ar accessrequests.AccessRequest
	var specs []byte
	var urgency, status string
	var respondedAt, infoRequestedAt sql.NullTime

	if err := row.Scan(
		&ar.ID,
		&ar.ProfessionalID,
		&specs,
		&ar.ClinicID,
		&ar.PatientCI,
		&ar.DocumentID,
		&ar.DocumentType,
		&ar.RequestReason,
		&urgency,
		&status,
		&ar.RequestedAt,
		&ar.ExpiresAt,
		&ar.PatientResponse,
		&respondedAt,
		&ar.InfoQuestion,
		&infoRequestedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return accessrequests.AccessRequest{}, accessrequests.ErrNotFound
		}
		return accessrequests.AccessRequest{}, err
	}

	ar.Urgency = accessrequests.Urgency(urgency)
	ar.Status = accessrequests.Status(status)
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &ar.ProfessionalSpecialties); err != nil {
			return accessrequests.AccessRequest{}, err
		}
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		ar.RespondedAt = &t
	}
	if infoRequestedAt.Valid {
		t := infoRequestedAt.Time
		ar.InfoRequestedAt = &t
	}
	return ar, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
