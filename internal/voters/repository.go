package voters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"election-platform/internal/database"
	"election-platform/internal/rbac"
	"election-platform/pkg/utils"
)

type Repository interface {
	Create(ctx context.Context, i Identity) error
	Get(ctx context.Context, id string) (Identity, error)
	GetByUsername(ctx context.Context, username string) (Identity, error)
	GetByRegNumber(ctx context.Context, regNumber string) (Identity, error)
	SetApproval(ctx context.Context, id string, approved bool, now time.Time) error
	// MarkCompleted sets has_voted. It is idempotent.
	MarkCompleted(ctx context.Context, id string, now time.Time) error
	// ResetCompleted clears has_voted for every voter and returns how many changed.
	ResetCompleted(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, f ListFilter) ([]Identity, error)
	Counts(ctx context.Context) (Counts, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, i Identity) error {
	const q = `
INSERT INTO voter_identities (
  id, username, password_hash, role, reg_number, is_approved, has_voted,
  full_name, email, phone, department, year_of_study, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
`
	_, err := r.db.ExecContext(ctx, q,
		i.ID,
		i.Username,
		i.PasswordHash,
		string(i.Role),
		nullIfEmpty(i.RegNumber),
		i.Approved,
		i.HasVoted,
		i.FullName,
		i.Email,
		i.Phone,
		i.Department,
		i.YearOfStudy,
		i.CreatedAt,
		i.UpdatedAt,
	)
	switch {
	case utils.IsUniqueViolation(err, database.ConstraintVoterUsername):
		return ErrUsernameTaken
	case utils.IsUniqueViolation(err, database.ConstraintVoterRegNumber):
		return ErrRegNumberTaken
	case utils.IsForeignKeyViolation(err):
		return ErrNotInRegistry
	}
	return err
}

const selectIdentity = `
SELECT id, username, password_hash, role, reg_number, is_approved, has_voted,
       full_name, email, phone, department, year_of_study, created_at, updated_at
FROM voter_identities`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(s rowScanner) (Identity, error) {
	var (
		i    Identity
		role string
		reg  sql.NullString
	)
	if err := s.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&role,
		&reg,
		&i.Approved,
		&i.HasVoted,
		&i.FullName,
		&i.Email,
		&i.Phone,
		&i.Department,
		&i.YearOfStudy,
		&i.CreatedAt,
		&i.UpdatedAt,
	); err != nil {
		return Identity{}, err
	}
	parsed, ok := rbac.ParseRole(role)
	if !ok {
		return Identity{}, fmt.Errorf("voters: identity %s has unknown role %q", i.ID, role)
	}
	i.Role = parsed
	i.RegNumber = reg.String
	return i, nil
}

func (r *PostgresRepo) getOne(ctx context.Context, where string, arg any) (Identity, error) {
	i, err := scanIdentity(r.db.QueryRowContext(ctx, selectIdentity+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	return i, err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Identity, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *PostgresRepo) GetByUsername(ctx context.Context, username string) (Identity, error) {
	return r.getOne(ctx, "username = $1", username)
}

func (r *PostgresRepo) GetByRegNumber(ctx context.Context, regNumber string) (Identity, error) {
	return r.getOne(ctx, "reg_number = $1", regNumber)
}

func (r *PostgresRepo) SetApproval(ctx context.Context, id string, approved bool, now time.Time) error {
	return r.execOne(ctx, `UPDATE voter_identities SET is_approved = $2, updated_at = $3 WHERE id = $1`, id, approved, now)
}

func (r *PostgresRepo) ResetCompleted(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE voter_identities SET has_voted = FALSE, updated_at = $1 WHERE has_voted`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	return r.execOne(ctx, `UPDATE voter_identities SET has_voted = TRUE, updated_at = $2 WHERE id = $1`, id, now)
}

func (r *PostgresRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Identity, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.PendingOnly {
		where = append(where, "NOT is_approved")
	}
	if f.CompletedOnly {
		where = append(where, "has_voted")
	}
	q := selectIdentity
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Identity, 0)
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Counts(ctx context.Context) (Counts, error) {
	const q = `
SELECT
  COUNT(*) FILTER (WHERE role = 'voter' AND is_approved),
  COUNT(*) FILTER (WHERE role = 'voter' AND NOT is_approved),
  COUNT(*) FILTER (WHERE role = 'voter' AND is_approved AND has_voted),
  COUNT(*) FILTER (WHERE role = 'admin')
FROM voter_identities
`
	var c Counts
	err := r.db.QueryRowContext(ctx, q).Scan(&c.ApprovedVoters, &c.PendingVoters, &c.CompletedVoters, &c.Admins)
	return c, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
