package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	membermodels "eligibility/internal/member/models"
	"eligibility/internal/verification/models"
	"eligibility/pkg/platform/sentinel"
	platformtx "eligibility/pkg/platform/tx"
)

// PostgresStore persists verifications in the primary database. The v2
// verification table lives in the same database, so dual writes run in a
// single transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// exec returns the transaction carried by ctx when present, otherwise the
// pool. Every statement goes through this so batched writes share one tx.
func (s *PostgresStore) exec(ctx context.Context) execer {
	if tx, ok := platformtx.From(ctx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn with a transaction in the derived context, committing on
// nil error and rolling back otherwise.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := platformtx.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(platformtx.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation. Concurrent claims of the same member surface this way.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const verificationColumns = `
	id, user_id, organization_id, verification_type,
	first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
	verified_at, deactivated_at, verification_session, additional_fields, verification_2_id,
	created_at, updated_at`

func scanVerification(row rowScanner) (*models.Verification, error) {
	var (
		v             models.Verification
		dob           sql.NullTime
		deactivatedAt sql.NullTime
		session       sql.NullString
		v2ID          sql.NullInt64
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.OrganizationID, &v.VerificationType,
		&v.Demographics.FirstName, &v.Demographics.LastName, &v.Demographics.Email,
		&dob, &v.Demographics.UniqueCorpID, &v.Demographics.DependentID, &v.Demographics.WorkState,
		&v.VerifiedAt, &deactivatedAt, &session, &v.AdditionalFields, &v2ID,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		v.Demographics.DateOfBirth = &dob.Time
	}
	if deactivatedAt.Valid {
		v.DeactivatedAt = &deactivatedAt.Time
	}
	if session.Valid {
		if parsed, err := uuid.Parse(session.String); err == nil {
			v.VerificationSession = &parsed
		}
	}
	if v2ID.Valid {
		v.Verification2ID = &v2ID.Int64
	}
	return &v, nil
}

const verification2Columns = `
	id, user_id, organization_id, verification_type, member_id, member_version,
	first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
	verified_at, deactivated_at, verification_session, additional_fields,
	created_at, updated_at`

func scanVerification2(row rowScanner) (*models.Verification2, error) {
	var (
		v             models.Verification2
		dob           sql.NullTime
		deactivatedAt sql.NullTime
		session       sql.NullString
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.OrganizationID, &v.VerificationType, &v.MemberID, &v.MemberVersion,
		&v.Demographics.FirstName, &v.Demographics.LastName, &v.Demographics.Email,
		&dob, &v.Demographics.UniqueCorpID, &v.Demographics.DependentID, &v.Demographics.WorkState,
		&v.VerifiedAt, &deactivatedAt, &session, &v.AdditionalFields,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		v.Demographics.DateOfBirth = &dob.Time
	}
	if deactivatedAt.Valid {
		v.DeactivatedAt = &deactivatedAt.Time
	}
	if session.Valid {
		if parsed, err := uuid.Parse(session.String); err == nil {
			v.VerificationSession = &parsed
		}
	}
	return &v, nil
}

func (s *PostgresStore) CreateVerification(ctx context.Context, p CreateVerificationParams) (*models.Verification, error) {
	query := `
		INSERT INTO verification (
			user_id, organization_id, verification_type,
			first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
			verified_at, verification_session, additional_fields, verification_2_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING` + verificationColumns

	row := s.exec(ctx).QueryRowContext(ctx, query,
		p.UserID, p.OrganizationID, p.VerificationType,
		p.Demographics.FirstName, p.Demographics.LastName, p.Demographics.Email,
		p.Demographics.DateOfBirth, p.Demographics.UniqueCorpID, p.Demographics.DependentID, p.Demographics.WorkState,
		p.VerifiedAt, p.VerificationSession, p.AdditionalFields, p.Verification2ID,
	)
	v, err := scanVerification(row)
	if err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) CreateVerification2(ctx context.Context, p CreateVerification2Params) (*models.Verification2, error) {
	query := `
		INSERT INTO verification_2 (
			user_id, organization_id, verification_type, member_id, member_version,
			first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
			verified_at, verification_session, additional_fields
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING` + verification2Columns

	row := s.exec(ctx).QueryRowContext(ctx, query,
		p.UserID, p.OrganizationID, p.VerificationType, p.MemberID, p.MemberVersion,
		p.Demographics.FirstName, p.Demographics.LastName, p.Demographics.Email,
		p.Demographics.DateOfBirth, p.Demographics.UniqueCorpID, p.Demographics.DependentID, p.Demographics.WorkState,
		p.VerifiedAt, p.VerificationSession, p.AdditionalFields,
	)
	v, err := scanVerification2(row)
	if err != nil {
		return nil, fmt.Errorf("create verification_2: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) CreateVerificationAttempt(ctx context.Context, p CreateAttemptParams) (*models.VerificationAttempt, error) {
	query := `
		INSERT INTO verification_attempt (
			user_id, organization_id, verification_type,
			first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
			successful_verification, policy_used, verification_id, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, user_id, organization_id, verification_type,
			first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
			successful_verification, policy_used, verification_id, verified_at, created_at`

	row := s.exec(ctx).QueryRowContext(ctx, query,
		p.UserID, p.OrganizationID, p.VerificationType,
		p.Demographics.FirstName, p.Demographics.LastName, p.Demographics.Email,
		p.Demographics.DateOfBirth, p.Demographics.UniqueCorpID, p.Demographics.DependentID, p.Demographics.WorkState,
		p.VerificationID != nil, p.PolicyUsed, p.VerificationID, p.VerifiedAt,
	)
	a, err := scanAttempt(row)
	if err != nil {
		return nil, fmt.Errorf("create verification attempt: %w", err)
	}
	return a, nil
}

func scanAttempt(row rowScanner) (*models.VerificationAttempt, error) {
	var (
		a              models.VerificationAttempt
		userID         sql.NullInt64
		dob            sql.NullTime
		verificationID sql.NullInt64
	)
	err := row.Scan(
		&a.ID, &userID, &a.OrganizationID, &a.VerificationType,
		&a.Demographics.FirstName, &a.Demographics.LastName, &a.Demographics.Email,
		&dob, &a.Demographics.UniqueCorpID, &a.Demographics.DependentID, &a.Demographics.WorkState,
		&a.SuccessfulVerification, &a.PolicyUsed, &verificationID, &a.VerifiedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = &userID.Int64
	}
	if dob.Valid {
		a.Demographics.DateOfBirth = &dob.Time
	}
	if verificationID.Valid {
		a.VerificationID = &verificationID.Int64
	}
	return &a, nil
}

func (s *PostgresStore) CreateMemberVerification(ctx context.Context, memberID, verificationID, attemptID *int64) (*models.MemberVerification, error) {
	query := `
		INSERT INTO member_verification (member_id, verification_id, verification_attempt_id)
		VALUES ($1, $2, $3)
		RETURNING id, member_id, verification_id, verification_attempt_id, created_at`

	var (
		mv  models.MemberVerification
		mID sql.NullInt64
		vID sql.NullInt64
		aID sql.NullInt64
	)
	err := s.exec(ctx).QueryRowContext(ctx, query, memberID, verificationID, attemptID).
		Scan(&mv.ID, &mID, &vID, &aID, &mv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create member verification: %w", err)
	}
	if mID.Valid {
		mv.MemberID = &mID.Int64
	}
	if vID.Valid {
		mv.VerificationID = &vID.Int64
	}
	if aID.Valid {
		mv.VerificationAttemptID = &aID.Int64
	}
	return &mv, nil
}

// CreateVerificationDualWrite writes the v2 row first, then the v1 row
// pointing at it. Both land or neither does.
func (s *PostgresStore) CreateVerificationDualWrite(ctx context.Context, p DualWriteParams) (*models.Verification, error) {
	var created *models.Verification
	err := s.WithTx(ctx, func(ctx context.Context) error {
		v2, err := s.CreateVerification2(ctx, p.V2)
		if err != nil {
			return err
		}
		v1Params := p.V1
		v1Params.Verification2ID = &v2.ID
		created, err = s.CreateVerification(ctx, v1Params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateMultipleVerifications inserts one verification per record and
// backfills each record's VerificationID in order.
func (s *PostgresStore) CreateMultipleVerifications(ctx context.Context, records []*BatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO verification (
		user_id, organization_id, verification_type,
		first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
		verified_at, verification_session, additional_fields
	) VALUES `)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuePlaceholders(i*13, 13))
		args = append(args,
			r.UserID, r.OrganizationID, r.VerificationType,
			r.Demographics.FirstName, r.Demographics.LastName, r.Demographics.Email,
			r.Demographics.DateOfBirth, r.Demographics.UniqueCorpID, r.Demographics.DependentID, r.Demographics.WorkState,
			r.VerifiedAt, r.VerificationSession, r.AdditionalFields,
		)
	}
	sb.WriteString(" RETURNING id")

	rows, err := s.exec(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("create verifications: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan verification id: %w", err)
		}
		records[i].VerificationID = &id
		i++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("create verifications: %w", err)
	}
	return nil
}

// CreateMultipleVerificationAttempts inserts one attempt per record and
// backfills each record's VerificationAttemptID in order.
func (s *PostgresStore) CreateMultipleVerificationAttempts(ctx context.Context, records []*BatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO verification_attempt (
		user_id, organization_id, verification_type,
		first_name, last_name, email, date_of_birth, unique_corp_id, dependent_id, work_state,
		successful_verification, verification_id, verified_at
	) VALUES `)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuePlaceholders(i*13, 13))
		args = append(args,
			r.UserID, r.OrganizationID, r.VerificationType,
			r.Demographics.FirstName, r.Demographics.LastName, r.Demographics.Email,
			r.Demographics.DateOfBirth, r.Demographics.UniqueCorpID, r.Demographics.DependentID, r.Demographics.WorkState,
			r.VerificationID != nil, r.VerificationID, r.VerifiedAt,
		)
	}
	sb.WriteString(" RETURNING id")

	rows, err := s.exec(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("create verification attempts: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan attempt id: %w", err)
		}
		records[i].VerificationAttemptID = &id
		i++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("create verification attempts: %w", err)
	}
	return nil
}

// CreateMultipleMemberVerifications inserts one link row per record using
// the ids backfilled by the earlier batch inserts.
func (s *PostgresStore) CreateMultipleMemberVerifications(ctx context.Context, records []*BatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO member_verification (member_id, verification_id, verification_attempt_id) VALUES `)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuePlaceholders(i*3, 3))
		args = append(args, r.EligibilityMemberID, r.VerificationID, r.VerificationAttemptID)
	}
	if _, err := s.exec(ctx).ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("create member verifications: %w", err)
	}
	return nil
}

func valuePlaceholders(offset, n int) string {
	var sb strings.Builder
	sb.WriteString("(")
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", offset+i+1)
	}
	sb.WriteString(")")
	return sb.String()
}

func (s *PostgresStore) GetVerification(ctx context.Context, verificationID int64) (*models.Verification, error) {
	query := `SELECT` + verificationColumns + ` FROM verification WHERE id = $1`
	v, err := scanVerification(s.exec(ctx).QueryRowContext(ctx, query, verificationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) GetVerificationForMember(ctx context.Context, memberID int64) (*models.Verification, error) {
	query := `
		SELECT` + prefixColumns("v", verificationColumns) + `
		FROM verification v
		JOIN member_verification mv ON mv.verification_id = v.id
		WHERE mv.member_id = $1 AND v.deactivated_at IS NULL
		ORDER BY v.created_at DESC
		LIMIT 1`
	v, err := scanVerification(s.exec(ctx).QueryRowContext(ctx, query, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification for member: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) GetVerification2ForMember(ctx context.Context, member2ID int64) (*models.Verification2, error) {
	query := `
		SELECT` + verification2Columns + `
		FROM verification_2
		WHERE member_id = $1 AND deactivated_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`
	v, err := scanVerification2(s.exec(ctx).QueryRowContext(ctx, query, member2ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification_2 for member: %w", err)
	}
	return v, nil
}

// GetVerificationKeyForUser resolves the member pointers behind the user's
// most recent active verification. A dangling verification_2_id pointer is
// dropped rather than surfaced.
func (s *PostgresStore) GetVerificationKeyForUser(ctx context.Context, userID int64) (*models.VerificationKey, error) {
	query := `
		SELECT v.organization_id, mv.member_id, v.verification_2_id
		FROM verification v
		LEFT JOIN member_verification mv ON mv.verification_id = v.id
		WHERE v.user_id = $1 AND v.deactivated_at IS NULL
		ORDER BY v.created_at DESC
		LIMIT 1`

	var (
		key      models.VerificationKey
		memberID sql.NullInt64
		v2ID     sql.NullInt64
	)
	err := s.exec(ctx).QueryRowContext(ctx, query, userID).Scan(&key.OrganizationID, &memberID, &v2ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification key: %w", err)
	}
	if memberID.Valid {
		key.MemberID = &memberID.Int64
	}
	if v2ID.Valid {
		var member2ID, member2Version int64
		err := s.exec(ctx).QueryRowContext(ctx,
			`SELECT member_id, member_version FROM verification_2 WHERE id = $1`, v2ID.Int64).
			Scan(&member2ID, &member2Version)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// stale pointer, leave the v2 side empty
		case err != nil:
			return nil, fmt.Errorf("get verification key: resolve verification_2: %w", err)
		default:
			key.Member2ID = &member2ID
			key.Member2Version = &member2Version
		}
	}
	return &key, nil
}

func (s *PostgresStore) GetVerificationKey2ForUserAndOrg(ctx context.Context, userID, organizationID int64) (*models.VerificationKey, error) {
	query := `
		SELECT organization_id, member_id, member_version
		FROM verification_2
		WHERE user_id = $1 AND organization_id = $2 AND deactivated_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`

	var (
		key     models.VerificationKey
		mID     int64
		version int64
	)
	err := s.exec(ctx).QueryRowContext(ctx, query, userID, organizationID).Scan(&key.OrganizationID, &mID, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification key 2: %w", err)
	}
	key.Member2ID = &mID
	key.Member2Version = &version
	return &key, nil
}

const forUserQuery = `
	SELECT v.id, v.user_id, v.organization_id, v.verification_type,
		v.first_name, v.last_name, v.email, v.date_of_birth, v.unique_corp_id, v.dependent_id, v.work_state,
		v.verified_at, v.deactivated_at, v.verification_session, v.additional_fields, v.verification_2_id,
		v.created_at, mv.member_id, m.effective_start, m.effective_end
	FROM verification v
	LEFT JOIN member_verification mv ON mv.verification_id = v.id
	LEFT JOIN member_versioned m ON m.id = mv.member_id
	WHERE v.user_id = $1`

func scanForUser(row rowScanner) (*models.ForUser, error) {
	var (
		f              models.ForUser
		dob            sql.NullTime
		deactivatedAt  sql.NullTime
		session        sql.NullString
		v2ID           sql.NullInt64
		memberID       sql.NullInt64
		effectiveStart sql.NullTime
		effectiveEnd   sql.NullTime
	)
	err := row.Scan(
		&f.VerificationID, &f.UserID, &f.OrganizationID, &f.VerificationType,
		&f.Demographics.FirstName, &f.Demographics.LastName, &f.Demographics.Email,
		&dob, &f.Demographics.UniqueCorpID, &f.Demographics.DependentID, &f.Demographics.WorkState,
		&f.VerifiedAt, &deactivatedAt, &session, &f.AdditionalFields, &v2ID,
		&f.CreatedAt, &memberID, &effectiveStart, &effectiveEnd,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		f.Demographics.DateOfBirth = &dob.Time
	}
	if deactivatedAt.Valid {
		f.DeactivatedAt = &deactivatedAt.Time
	}
	if session.Valid {
		if parsed, err := uuid.Parse(session.String); err == nil {
			f.VerificationSession = &parsed
		}
	}
	if v2ID.Valid {
		f.Verification2ID = &v2ID.Int64
	}
	if memberID.Valid {
		f.EligibilityMemberID = &memberID.Int64
		r := &membermodels.Range{}
		if effectiveStart.Valid {
			r.Lower = &effectiveStart.Time
		}
		if effectiveEnd.Valid {
			r.Upper = &effectiveEnd.Time
		}
		f.EffectiveRange = r
	}
	return &f, nil
}

func (s *PostgresStore) GetEligibilityVerificationRecordForUser(ctx context.Context, userID int64) (*models.ForUser, error) {
	query := forUserQuery + ` ORDER BY v.created_at DESC LIMIT 1`
	f, err := scanForUser(s.exec(ctx).QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get eligibility verification record: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) GetAllEligibilityVerificationRecordsForUser(ctx context.Context, userID int64, organizationIDs []int64) ([]*models.ForUser, error) {
	query := forUserQuery + `
		AND (cardinality($2::bigint[]) = 0 OR v.organization_id = ANY($2))
	ORDER BY v.created_at DESC`

	rows, err := s.exec(ctx).QueryContext(ctx, query, userID, pq.Array(organizationIDs))
	if err != nil {
		return nil, fmt.Errorf("list eligibility verification records: %w", err)
	}
	defer rows.Close()

	var out []*models.ForUser
	for rows.Next() {
		f, err := scanForUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eligibility verification record: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list eligibility verification records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetEligibilityMemberIDForUserAndOrg(ctx context.Context, userID, organizationID int64) (*int64, error) {
	query := `
		SELECT mv.member_id
		FROM verification v
		JOIN member_verification mv ON mv.verification_id = v.id
		WHERE v.user_id = $1 AND v.organization_id = $2
			AND v.deactivated_at IS NULL AND mv.member_id IS NOT NULL
		ORDER BY v.created_at DESC
		LIMIT 1`

	var memberID int64
	err := s.exec(ctx).QueryRowContext(ctx, query, userID, organizationID).Scan(&memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get eligibility member id: %w", err)
	}
	return &memberID, nil
}

func (s *PostgresStore) GetVerificationAttemptsForMember(ctx context.Context, memberID int64) ([]*models.VerificationAttempt, error) {
	query := `
		SELECT a.id, a.user_id, a.organization_id, a.verification_type,
			a.first_name, a.last_name, a.email, a.date_of_birth, a.unique_corp_id, a.dependent_id, a.work_state,
			a.successful_verification, a.policy_used, a.verification_id, a.verified_at, a.created_at
		FROM verification_attempt a
		JOIN member_verification mv ON mv.verification_attempt_id = a.id
		WHERE mv.member_id = $1
		ORDER BY a.created_at DESC`

	rows, err := s.exec(ctx).QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("list verification attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.VerificationAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verification attempts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeactivateVerification(ctx context.Context, verificationID int64) (*models.Verification, error) {
	query := `
		UPDATE verification
		SET deactivated_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING` + verificationColumns
	v, err := scanVerification(s.exec(ctx).QueryRowContext(ctx, query, verificationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate verification: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) DeactivateVerification2(ctx context.Context, verification2ID int64) error {
	res, err := s.exec(ctx).ExecContext(ctx,
		`UPDATE verification_2 SET deactivated_at = NOW(), updated_at = NOW() WHERE id = $1`, verification2ID)
	if err != nil {
		return fmt.Errorf("deactivate verification_2: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate verification_2: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// prefixColumns qualifies each column in a comma separated list with the
// given table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = " " + alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
