package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"election-platform/pkg/utils"
)

type Repository interface {
	Create(ctx context.Context, e Entry) error
	Update(ctx context.Context, e Entry) error
	// Upsert inserts or replaces e and reports whether it was newly created.
	Upsert(ctx context.Context, e Entry) (created bool, err error)
	Get(ctx context.Context, regNumber string) (Entry, error)
	List(ctx context.Context, f ListFilter) ([]Entry, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO registry_entries (reg_number, full_name, email, department, year_of_study, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q, e.RegNumber, e.FullName, e.Email, e.Department, e.YearOfStudy, e.Active, e.CreatedAt, e.UpdatedAt)
	if utils.IsUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, e Entry) error {
	const q = `
UPDATE registry_entries
SET full_name = $2, email = $3, department = $4, year_of_study = $5, is_active = $6, updated_at = $7
WHERE reg_number = $1
`
	res, err := r.db.ExecContext(ctx, q, e.RegNumber, e.FullName, e.Email, e.Department, e.YearOfStudy, e.Active, e.UpdatedAt)
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

func (r *PostgresRepo) Upsert(ctx context.Context, e Entry) (bool, error) {
	// xmax = 0 only for freshly inserted tuples.
	const q = `
INSERT INTO registry_entries (reg_number, full_name, email, department, year_of_study, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (reg_number) DO UPDATE
SET full_name = EXCLUDED.full_name,
    email = EXCLUDED.email,
    department = EXCLUDED.department,
    year_of_study = EXCLUDED.year_of_study,
    is_active = EXCLUDED.is_active,
    updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0)
`
	var created bool
	err := r.db.QueryRowContext(ctx, q, e.RegNumber, e.FullName, e.Email, e.Department, e.YearOfStudy, e.Active, e.CreatedAt, e.UpdatedAt).Scan(&created)
	return created, err
}

const selectEntry = `SELECT reg_number, full_name, email, department, year_of_study, is_active, created_at, updated_at FROM registry_entries`

func (r *PostgresRepo) Get(ctx context.Context, regNumber string) (Entry, error) {
	var e Entry
	err := r.db.QueryRowContext(ctx, selectEntry+` WHERE reg_number = $1`, regNumber).Scan(
		&e.RegNumber,
		&e.FullName,
		&e.Email,
		&e.Department,
		&e.YearOfStudy,
		&e.Active,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.Department != "" {
		args = append(args, f.Department)
		where = append(where, fmt.Sprintf("department = $%d", len(args)))
	}
	q := selectEntry
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY reg_number"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RegNumber, &e.FullName, &e.Email, &e.Department, &e.YearOfStudy, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
