package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"eligibility/internal/member/models"
	"eligibility/pkg/platform/sentinel"
)

// V2Store reads the member_2 schema through a pgx pool. The v2 side of the
// migration runs on its own database; verification_2 stays in the primary
// one, so the store also carries the primary handle for link lookups.
type V2Store struct {
	pool    *pgxpool.Pool
	primary *sql.DB
}

func NewV2(pool *pgxpool.Pool, primary *sql.DB) *V2Store {
	return &V2Store{pool: pool, primary: primary}
}

const v2MemberColumns = `
	id, organization_id, unique_corp_id, dependent_id, employer_assigned_id,
	first_name, last_name, date_of_birth, email, work_state, work_country,
	gender_code, do_not_contact, record, custom_attributes,
	effective_start, effective_end, version, created_at, updated_at`

const v2ActiveRange = `
	(effective_start IS NULL OR effective_start <= CURRENT_DATE)
	AND (effective_end IS NULL OR CURRENT_DATE < effective_end)`

func scanV2Member(row pgx.Row) (*models.MemberRecord, error) {
	m := models.MemberRecord{Source: models.SourceV2}
	var (
		effectiveStart *time.Time
		effectiveEnd   *time.Time
		version        int64
	)
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.UniqueCorpID, &m.DependentID, &m.EmployerAssignedID,
		&m.FirstName, &m.LastName, &m.DateOfBirth, &m.Email, &m.WorkState, &m.WorkCountry,
		&m.GenderCode, &m.DoNotContact, &m.Record, &m.CustomAttributes,
		&effectiveStart, &effectiveEnd, &version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.EffectiveRange = models.Range{Lower: effectiveStart, Upper: effectiveEnd}
	m.Version = &version
	return &m, nil
}

func (s *V2Store) queryMembers(ctx context.Context, query string, args ...any) ([]*models.MemberRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.MemberRecord
	for rows.Next() {
		m, err := scanV2Member(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *V2Store) Get(ctx context.Context, id int64) (*models.MemberRecord, error) {
	query := `SELECT ` + v2MemberColumns + ` FROM member_2 WHERE id = $1`
	m, err := scanV2Member(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get member_2: %w", err)
	}
	return m, nil
}

func (s *V2Store) GetByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE organization_id = $1
		  AND ltrim(lower(unique_corp_id), '0') = ltrim(lower(btrim($2)), '0')
		  AND lower(dependent_id) = lower(btrim($3))
		ORDER BY updated_at DESC
		LIMIT 1`
	m, err := scanV2Member(s.pool.QueryRow(ctx, query,
		identity.OrganizationID, identity.UniqueCorpID, identity.DependentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get member_2 by org identity: %w", err)
	}
	return m, nil
}

func (s *V2Store) GetByDOBAndEmail(ctx context.Context, dob time.Time, email string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE date_of_birth = $1
		  AND lower(btrim(email)) = lower(btrim($2))
		  AND ` + v2ActiveRange
	members, err := s.queryMembers(ctx, query, dob, email)
	if err != nil {
		return nil, fmt.Errorf("get members_2 by dob and email: %w", err)
	}
	return members, nil
}

func (s *V2Store) GetBySecondaryVerification(ctx context.Context, dob time.Time, firstName, lastName, workState string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE date_of_birth = $1
		  AND lower(btrim(first_name)) = lower(btrim($2))
		  AND lower(btrim(last_name)) = lower(btrim($3))
		  AND (btrim($4) = '' OR lower(btrim(work_state)) = lower(btrim($4)))
		  AND ` + v2ActiveRange
	members, err := s.queryMembers(ctx, query, dob, firstName, lastName, workState)
	if err != nil {
		return nil, fmt.Errorf("get members_2 by secondary verification: %w", err)
	}
	return members, nil
}

func (s *V2Store) GetByTertiaryVerification(ctx context.Context, dob time.Time, uniqueCorpID string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE date_of_birth = $1
		  AND ltrim(lower(unique_corp_id), '0') = ltrim(lower(btrim($2)), '0')
		  AND ` + v2ActiveRange
	members, err := s.queryMembers(ctx, query, dob, uniqueCorpID)
	if err != nil {
		return nil, fmt.Errorf("get members_2 by tertiary verification: %w", err)
	}
	return members, nil
}

func (s *V2Store) GetByEmailAndName(ctx context.Context, email, firstName, lastName string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE lower(btrim(email)) = lower(btrim($1))
		  AND lower(btrim(first_name)) = lower(btrim($2))
		  AND lower(btrim(last_name)) = lower(btrim($3))
		  AND ` + v2ActiveRange
	members, err := s.queryMembers(ctx, query, email, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("get members_2 by email and name: %w", err)
	}
	return members, nil
}

func (s *V2Store) GetByNameAndDateOfBirth(ctx context.Context, firstName, lastName string, dob time.Time) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE lower(btrim(first_name)) = lower(btrim($1))
		  AND lower(btrim(last_name)) = lower(btrim($2))
		  AND date_of_birth = $3
		  AND ` + v2ActiveRange
	members, err := s.queryMembers(ctx, query, firstName, lastName, dob)
	if err != nil {
		return nil, fmt.Errorf("get members_2 by name and dob: %w", err)
	}
	return members, nil
}

func (s *V2Store) GetByOvereligibility(ctx context.Context, dob time.Time, firstName, lastName string) ([]*models.MemberRecord, error) {
	query := `
		SELECT ` + v2MemberColumns + `
		FROM member_2
		WHERE date_of_birth = $1
		  AND lower(btrim(first_name)) = lower(btrim($2))
		  AND lower(btrim(last_name)) = lower(btrim($3))
		  AND ` + v2ActiveRange
	members, err := s.queryMembers(ctx, query, dob, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("get members_2 by overeligibility: %w", err)
	}
	return members, nil
}

func (s *V2Store) GetWalletEnablement(ctx context.Context, memberID int64) (*models.WalletEnablement, error) {
	m, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(m), nil
}

func (s *V2Store) GetWalletEnablementByIdentity(ctx context.Context, identity models.OrgIdentity) (*models.WalletEnablement, error) {
	m, err := s.GetByOrgIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(m), nil
}

// GetOtherUserIDsInFamily resolves the family in hops: verification_2 rows
// live in the primary database while member_2 lives in the v2 one, so the
// link cannot be joined in a single query.
func (s *V2Store) GetOtherUserIDsInFamily(ctx context.Context, userID int64) ([]int64, error) {
	own, err := s.verifiedMember2IDs(ctx,
		`SELECT member_id FROM verification_2 WHERE user_id = $1 AND deactivated_at IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	if len(own) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT m.id
		FROM member_2 m
		JOIN member_2 own ON own.organization_id = m.organization_id
			AND ltrim(lower(own.unique_corp_id), '0') = ltrim(lower(m.unique_corp_id), '0')
		WHERE own.id = ANY($1)`, own)
	if err != nil {
		return nil, fmt.Errorf("get family member ids v2: %w", err)
	}
	defer rows.Close()

	var family []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family member id v2: %w", err)
		}
		family = append(family, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get family member ids v2: %w", err)
	}
	if len(family) == 0 {
		return nil, nil
	}

	return s.verifiedUserIDs(ctx, family, userID)
}

// verifiedMember2IDs reads member ids off verification_2 on the primary
// handle.
func (s *V2Store) verifiedMember2IDs(ctx context.Context, query string, userID int64) ([]int64, error) {
	rows, err := s.primary.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get verified member ids v2: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan verified member id v2: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// verifiedUserIDs returns the distinct users holding an active verification
// against any of the given member_2 ids, excluding the requesting user.
func (s *V2Store) verifiedUserIDs(ctx context.Context, member2IDs []int64, exclude int64) ([]int64, error) {
	rows, err := s.primary.QueryContext(ctx, `
		SELECT DISTINCT user_id
		FROM verification_2
		WHERE member_id = ANY($1) AND deactivated_at IS NULL AND user_id <> $2`,
		pq.Array(member2IDs), exclude)
	if err != nil {
		return nil, fmt.Errorf("get family user ids v2: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family user id v2: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
