package store

import (
	"context"
	"database/sql"
	"fmt"

	"eligibility/internal/orgpolicy/models"
	"eligibility/pkg/platform/sentinel"
)

// PostgresStore reads the organization_configuration table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, organizationID int64) (*models.Configuration, error) {
	query := `
		SELECT organization_id, eligibility_type, implementation,
		       activated_at, terminated_at, employee_only, medical_plan_only,
		       data_provider, created_at, updated_at
		FROM organization_configuration
		WHERE organization_id = $1`

	cfg := models.Configuration{}
	var (
		implementation sql.NullString
		activatedAt    sql.NullTime
		terminatedAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, organizationID).Scan(
		&cfg.OrganizationID, &cfg.EligibilityType, &implementation,
		&activatedAt, &terminatedAt, &cfg.EmployeeOnly, &cfg.MedicalPlanOnly,
		&cfg.DataProvider, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get organization configuration: %w", err)
	}
	cfg.Implementation = implementation.String
	if activatedAt.Valid {
		cfg.ActivatedAt = &activatedAt.Time
	}
	if terminatedAt.Valid {
		cfg.TerminatedAt = &terminatedAt.Time
	}
	return &cfg, nil
}
