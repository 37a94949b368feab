package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"eligibility/internal/member/models"
	"eligibility/pkg/platform/sentinel"
)

// V1Store reads the member_versioned schema. Rows are written by the file
// ingestion pipeline; the only write here is Create, used by the
// non-production test utilities.
type V1Store struct {
	db *sql.DB
}

func NewV1(db *sql.DB) *V1Store {
	return &V1Store{db: db}
}

const v1MemberColumns = `
	id, organization_id, unique_corp_id, dependent_id, employer_assigned_id,
	first_name, last_name, date_of_birth, email, work_state, work_country,
	gender_code, do_not_contact, record, custom_attributes,
	effective_start, effective_end, file_id, created_at, updated_at`

// activeRange keeps only rows whose effective range contains today under the
// half-open convention.
const v1ActiveRange = `
	(effective_start IS NULL OR effective_start <= CURRENT_DATE)
	AND (effective_end IS NULL OR CURRENT_DATE < effective_end)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanV1Member(row rowScanner) (*models.MemberRecord, error) {
	m := models.MemberRecord{Source: models.SourceV1}
	var (
		effectiveStart sql.NullTime
		effectiveEnd   sql.NullTime
		fileID         sql.NullInt64
	)
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.UniqueCorpID, &m.DependentID, &m.EmployerAssignedID,
		&m.FirstName, &m.LastName, &m.DateOfBirth, &m.Email, &m.WorkState, &m.WorkCountry,
		&m.GenderCode, &m.DoNotContact, &m.Record, &m.CustomAttributes,
		&effectiveStart, &effectiveEnd, &fileID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if effectiveStart.Valid {
		m.EffectiveRange.Lower = &effectiveStart.Time
	}
	if effectiveEnd.Valid {
		m.EffectiveRange.Upper = &effectiveEnd.Time
	}
	if fileID.Valid {
		m.FileID = &fileID.Int64
	}
	return &m, nil
}

func (s *V1Store) queryMembers(ctx context.Context, query string, args ...any) ([]*models.MemberRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.MemberRecord
	for rows.Next() {
		m, err := scanV1Member(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *V1Store) Get(ctx context.Context, id int64) (*models.MemberRecord, error) {
	query := `SELECT ` + v1MemberColumns + ` FROM member_versioned WHERE id = $1`
	m, err := scanV1Member(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *V1Store) GetByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.MemberRecord, error) {
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE organization_id = $1
		  AND ltrim(lower(unique_corp_id), '0') = ltrim(lower(btrim($2)), '0')
		  AND lower(dependent_id) = lower(btrim($3))
		ORDER BY created_at DESC
		LIMIT 1`
	m, err := scanV1Member(s.db.QueryRowContext(ctx, query,
		identity.OrganizationID, identity.UniqueCorpID, identity.DependentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get member by org identity: %w", err)
	}
	return m, nil
}

func (s *V1Store) GetByDOBAndEmail(ctx context.Context, dob time.Time, email string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE date_of_birth = $1
		  AND lower(btrim(email)) = lower(btrim($2))
		  AND ` + v1ActiveRange
	members, err := s.queryMembers(ctx, query, dob, email)
	if err != nil {
		return nil, fmt.Errorf("get members by dob and email: %w", err)
	}
	return members, nil
}

func (s *V1Store) GetBySecondaryVerification(ctx context.Context, dob time.Time, firstName, lastName, workState string) ([]*models.MemberRecord, error) {
	// Empty work state is a wildcard; client files frequently omit it.
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE date_of_birth = $1
		  AND lower(btrim(first_name)) = lower(btrim($2))
		  AND lower(btrim(last_name)) = lower(btrim($3))
		  AND (btrim($4) = '' OR lower(btrim(work_state)) = lower(btrim($4)))
		  AND ` + v1ActiveRange
	members, err := s.queryMembers(ctx, query, dob, firstName, lastName, workState)
	if err != nil {
		return nil, fmt.Errorf("get members by secondary verification: %w", err)
	}
	return members, nil
}

func (s *V1Store) GetByTertiaryVerification(ctx context.Context, dob time.Time, uniqueCorpID string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE date_of_birth = $1
		  AND ltrim(lower(unique_corp_id), '0') = ltrim(lower(btrim($2)), '0')
		  AND ` + v1ActiveRange
	members, err := s.queryMembers(ctx, query, dob, uniqueCorpID)
	if err != nil {
		return nil, fmt.Errorf("get members by tertiary verification: %w", err)
	}
	return members, nil
}

func (s *V1Store) GetByEmailAndName(ctx context.Context, email, firstName, lastName string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE lower(btrim(email)) = lower(btrim($1))
		  AND lower(btrim(first_name)) = lower(btrim($2))
		  AND lower(btrim(last_name)) = lower(btrim($3))
		  AND ` + v1ActiveRange
	members, err := s.queryMembers(ctx, query, email, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("get members by email and name: %w", err)
	}
	return members, nil
}

func (s *V1Store) GetByNameAndDateOfBirth(ctx context.Context, firstName, lastName string, dob time.Time) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE lower(btrim(first_name)) = lower(btrim($1))
		  AND lower(btrim(last_name)) = lower(btrim($2))
		  AND date_of_birth = $3
		  AND ` + v1ActiveRange
	members, err := s.queryMembers(ctx, query, firstName, lastName, dob)
	if err != nil {
		return nil, fmt.Errorf("get members by name and dob: %w", err)
	}
	return members, nil
}

func (s *V1Store) GetByOvereligibility(ctx context.Context, dob time.Time, firstName, lastName string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v1MemberColumns + `
		FROM member_versioned
		WHERE date_of_birth = $1
		  AND lower(btrim(first_name)) = lower(btrim($2))
		  AND lower(btrim(last_name)) = lower(btrim($3))
		  AND ` + v1ActiveRange
	members, err := s.queryMembers(ctx, query, dob, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("get members by overeligibility: %w", err)
	}
	return members, nil
}

func (s *V1Store) GetWalletEnablement(ctx context.Context, memberID int64) (*models.WalletEnablement, error) {
	m, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(m), nil
}

func (s *V1Store) GetWalletEnablementByIdentity(ctx context.Context, identity models.OrgIdentity) (*models.WalletEnablement, error) {
	m, err := s.GetByOrgIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(m), nil
}

// GetOtherUserIDsInFamily returns users holding an active verification
// against a member sharing this user's (organization_id, unique_corp_id).
func (s *V1Store) GetOtherUserIDsInFamily(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT v.user_id
		FROM verification v
		JOIN member_verification mv ON mv.verification_id = v.id
		JOIN member_versioned m ON m.id = mv.member_id
		WHERE v.deactivated_at IS NULL
		  AND v.user_id <> $1
		  AND (m.organization_id, ltrim(lower(m.unique_corp_id), '0')) IN (
			SELECT sm.organization_id, ltrim(lower(sm.unique_corp_id), '0')
			FROM verification sv
			JOIN member_verification smv ON smv.verification_id = sv.id
			JOIN member_versioned sm ON sm.id = smv.member_id
			WHERE sv.user_id = $1 AND sv.deactivated_at IS NULL
		  )`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get family user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a member row. Production traffic never calls this; it
// backs the test-member admin utility.
func (s *V1Store) Create(ctx context.Context, rec *models.MemberRecord) (*models.MemberRecord, error) {
	query := `
		INSERT INTO member_versioned (
			organization_id, unique_corp_id, dependent_id, employer_assigned_id,
			first_name, last_name, date_of_birth, email, work_state, work_country,
			gender_code, do_not_contact, record, custom_attributes,
			effective_start, effective_end, file_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + v1MemberColumns
	m, err := scanV1Member(s.db.QueryRowContext(ctx, query,
		rec.OrganizationID, rec.UniqueCorpID, rec.DependentID, rec.EmployerAssignedID,
		rec.FirstName, rec.LastName, rec.DateOfBirth, rec.Email, rec.WorkState, rec.WorkCountry,
		rec.GenderCode, rec.DoNotContact, rec.Record, rec.CustomAttributes,
		rec.EffectiveRange.Lower, rec.EffectiveRange.Upper, rec.FileID,
	))
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	return m, nil
}
