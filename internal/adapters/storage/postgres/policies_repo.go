package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"clinical-doc-access/internal/domain/policies"
)

// PoliciesRepo persiste políticas en la tabla access_policies:
//
//	id text pk, patient_ci text, policy_type text, config jsonb,
//	effect text, priority int, document_id text,
//	valid_from timestamptz null, valid_until timestamptz null,
//	created_at timestamptz, updated_at timestamptz
//
// La config tipada viaja como jsonb; se valida en el dominio antes de llegar
// acá, nunca en el camino de evaluación.
type PoliciesRepo struct {
	db *sql.DB
}

func NewPoliciesRepo(db *sql.DB) *PoliciesRepo {
	return &PoliciesRepo{db: db}
}

const policyColumns = `
	id, patient_ci, policy_type, config, effect, priority, document_id,
	valid_from, valid_until, created_at, updated_at`

func (r *PoliciesRepo) Create(ctx context.Context, p policies.Policy) error {
	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO access_policies (`+policyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		p.ID,
		p.PatientCI,
		string(p.Type),
		cfg,
		string(p.Effect),
		p.Priority,
		p.DocumentID,
		toNullTime(p.ValidFrom),
		toNullTime(p.ValidUntil),
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

func (r *PoliciesRepo) Update(ctx context.Context, p policies.Policy) error {
	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE access_policies
		SET
			config = $2,
			effect = $3,
			priority = $4,
			document_id = $5,
			valid_from = $6,
			valid_until = $7,
			updated_at = $8
		WHERE id = $1
	`,
		p.ID,
		cfg,
		string(p.Effect),
		p.Priority,
		p.DocumentID,
		toNullTime(p.ValidFrom),
		toNullTime(p.ValidUntil),
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return policies.ErrNotFound
	}
	return nil
}

func (r *PoliciesRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return policies.ErrNotFound
	}
	return nil
}

func (r *PoliciesRepo) GetByID(ctx context.Context, id string) (policies.Policy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return policies.Policy{}, policies.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM access_policies
		WHERE id = $1
	`, id)

	return scanPolicy(row)
}

func (r *PoliciesRepo) ListByPatient(ctx context.Context, patientCI string, f policies.ListFilter) ([]policies.Policy, int, error) {
	patientCI = strings.TrimSpace(patientCI)
	if patientCI == "" {
		return nil, 0, nil
	}

	where := `WHERE patient_ci = $1`
	args := []any{patientCI}
	if f.Type != "" {
		where += ` AND policy_type = $2`
		args = append(args, string(f.Type))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_policies `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + policyColumns + ` FROM access_policies ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ` + itoa(f.Limit) + ` OFFSET ` + itoa(f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]policies.Policy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (policies.Policy, error) {
	var p policies.Policy
	var policyType, effect string
	var cfg []byte
	var validFrom, validUntil sql.NullTime

	if err := row.Scan(
		&p.ID,
		&p.PatientCI,
		&policyType,
		&cfg,
		&effect,
		&p.Priority,
		&p.DocumentID,
		&validFrom,
		&validUntil,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return policies.Policy{}, policies.ErrNotFound
		}
		return policies.Policy{}, err
	}

	p.Type = policies.PolicyType(policyType)
	p.Effect = policies.Effect(effect)
	if err := json.Unmarshal(cfg, &p.Config); err != nil {
		return policies.Policy{}, err
	}
	if validFrom.Valid {
		t := validFrom.Time
		p.ValidFrom = &t
	}
	if validUntil.Valid {
		t := validUntil.Time
		p.ValidUntil = &t
	}
	return p, nil
}
