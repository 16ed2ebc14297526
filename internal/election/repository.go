package election

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"election-platform/internal/database"
	"election-platform/pkg/utils"
)

type Repository interface {
	// GetSettings reports ok=false when the slot has never been written.
	GetSettings(ctx context.Context) (Settings, bool, error)
	SaveSettings(ctx context.Context, s Settings) error

	CreatePosition(ctx context.Context, p Position) error
	UpdatePosition(ctx context.Context, p Position) error
	DeletePosition(ctx context.Context, id string) error
	GetPosition(ctx context.Context, id string) (Position, error)
	ListPositions(ctx context.Context, activeOnly bool) ([]Position, error)

	CreateCandidate(ctx context.Context, c Candidate) error
	UpdateCandidate(ctx context.Context, c Candidate) error
	DeleteCandidate(ctx context.Context, id string) error
	GetCandidate(ctx context.Context, id string) (Candidate, error)
	// ListCandidates with an empty positionID lists all positions.
	ListCandidates(ctx context.Context, positionID string, activeOnly bool) ([]Candidate, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetSettings(ctx context.Context) (Settings, bool, error) {
	const q = `
SELECT name, is_active, voting_start, voting_end, results_published, updated_at
FROM election_settings WHERE id = 1
`
	var (
		s          Settings
		start, end sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q).Scan(&s.Name, &s.Active, &start, &end, &s.ResultsPublished, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	s.VotingStart = timePtr(start)
	s.VotingEnd = timePtr(end)
	return s, true, nil
}

func (r *PostgresRepo) SaveSettings(ctx context.Context, s Settings) error {
	const q = `
INSERT INTO election_settings (id, name, is_active, voting_start, voting_end, results_published, updated_at)
VALUES (1, $1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    is_active = EXCLUDED.is_active,
    voting_start = EXCLUDED.voting_start,
    voting_end = EXCLUDED.voting_end,
    results_published = EXCLUDED.results_published,
    updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q, s.Name, s.Active, s.VotingStart, s.VotingEnd, s.ResultsPublished, s.UpdatedAt)
	return err
}

func (r *PostgresRepo) CreatePosition(ctx context.Context, p Position) error {
	const q = `
INSERT INTO positions (id, name, description, sort_order, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Order, p.Active, p.CreatedAt, p.UpdatedAt)
	if utils.IsUniqueViolation(err, database.ConstraintPositionName) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepo) UpdatePosition(ctx context.Context, p Position) error {
	const q = `
UPDATE positions SET name = $2, description = $3, sort_order = $4, is_active = $5, updated_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Order, p.Active, p.UpdatedAt)
	if utils.IsUniqueViolation(err, database.ConstraintPositionName) {
		return ErrDuplicate
	}
	return affectedOne(res, err)
}

func (r *PostgresRepo) DeletePosition(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if utils.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	return affectedOne(res, err)
}

const selectPosition = `SELECT id, name, description, sort_order, is_active, created_at, updated_at FROM positions`

func (r *PostgresRepo) GetPosition(ctx context.Context, id string) (Position, error) {
	var p Position
	err := r.db.QueryRowContext(ctx, selectPosition+` WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Order, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	return p, err
}

func (r *PostgresRepo) ListPositions(ctx context.Context, activeOnly bool) ([]Position, error) {
	q := selectPosition
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY sort_order, name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Position, 0)
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Order, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CreateCandidate(ctx context.Context, c Candidate) error {
	const q = `
INSERT INTO candidates (id, position_id, name, bio, photo_ref, vote_count, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,0,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.PositionID, c.Name, c.Bio, c.PhotoRef, c.Active, c.CreatedAt, c.UpdatedAt)
	switch {
	case utils.IsUniqueViolation(err, database.ConstraintCandidateNamePosition):
		return ErrDuplicate
	case utils.IsForeignKeyViolation(err):
		return ErrNotFound
	}
	return err
}

// UpdateCandidate never writes vote_count. A move to another position only
// applies while the candidate has no ballots; vote_count is on the locked row
// so a concurrent cast is seen even after the statement snapshot.
func (r *PostgresRepo) UpdateCandidate(ctx context.Context, c Candidate) error {
	const q = `
UPDATE candidates SET position_id = $2, name = $3, bio = $4, photo_ref = $5, is_active = $6, updated_at = $7
WHERE id = $1
  AND (position_id = $2
       OR (vote_count = 0 AND NOT EXISTS (SELECT 1 FROM ballots WHERE candidate_id = $1)))
`
	res, err := r.db.ExecContext(ctx, q, c.ID, c.PositionID, c.Name, c.Bio, c.PhotoRef, c.Active, c.UpdatedAt)
	switch {
	case utils.IsUniqueViolation(err, database.ConstraintCandidateNamePosition):
		return ErrDuplicate
	case utils.IsForeignKeyViolation(err):
		return ErrNotFound
	}
	err = affectedOne(res, err)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrInUse
	}
	return ErrNotFound
}

func (r *PostgresRepo) DeleteCandidate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if utils.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	return affectedOne(res, err)
}

const selectCandidate = `SELECT id, position_id, name, bio, photo_ref, vote_count, is_active, created_at, updated_at FROM candidates`

func scanCandidate(s interface{ Scan(...any) error }) (Candidate, error) {
	var c Candidate
	err := s.Scan(&c.ID, &c.PositionID, &c.Name, &c.Bio, &c.PhotoRef, &c.VoteCount, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *PostgresRepo) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	c, err := scanCandidate(r.db.QueryRowContext(ctx, selectCandidate+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Candidate{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) ListCandidates(ctx context.Context, positionID string, activeOnly bool) ([]Candidate, error) {
	q := selectCandidate + ` WHERE ($1 = '' OR position_id = $1)`
	if activeOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, q, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func affectedOne(res sql.Result, err error) error {
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

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
