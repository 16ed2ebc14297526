package voting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"election-platform/internal/audit"
	"election-platform/internal/database"
	"election-platform/pkg/logger"
	"election-platform/pkg/utils"
)

// PostgresStore keeps ballots in the ballots and anonymized_ballots tables.
// The unique constraints on those tables decide races between concurrent
// casts; no application lock is taken.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Record(ctx context.Context, rec CastRecord) (bool, error) {
	audited := false
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		b := rec.Ballot
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ballots (id, voter_id, candidate_id, position_id, cast_at)
VALUES ($1, $2, $3, $4, $5)`, b.ID, b.VoterID, b.CandidateID, b.PositionID, b.CastAt); err != nil {
			if utils.IsUniqueViolation(err, database.ConstraintBallotVoterPosition) ||
				utils.IsUniqueViolation(err, database.ConstraintBallotVoterCandidate) {
				return ErrStorageConflict
			}
			if utils.IsForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert ballot: %w", err)
		}

		a := rec.Anonymized
		if _, err := tx.ExecContext(ctx, `
INSERT INTO anonymized_ballots (id, voter_hash, position_id, payload, cast_at)
VALUES ($1, $2, $3, $4, $5)`, a.ID, a.VoterHash, a.PositionID, a.Payload, a.CastAt); err != nil {
			if utils.IsUniqueViolation(err, database.ConstraintAnonymizedVoterPosition) {
				return ErrStorageConflict
			}
			return fmt.Errorf("insert anonymized ballot: %w", err)
		}

		// position_id must still match; a candidate moved mid-cast rolls the ballot back.
		res, err := tx.ExecContext(ctx, `
UPDATE candidates SET vote_count = vote_count + 1, updated_at = $2
WHERE id = $1 AND position_id = $3`, b.CandidateID, b.CastAt, b.PositionID)
		if err != nil {
			return fmt.Errorf("increment vote count: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrNotFound
		}

		if rec.Audit != nil {
			err := utils.WithSavepoint(ctx, tx, "cast_audit", func(ctx context.Context, tx *sql.Tx) error {
				return audit.InsertTx(ctx, tx, *rec.Audit)
			})
			if err != nil {
				logger.From(ctx).Warn("vote audit insert failed", "err", err)
			} else {
				audited = true
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return audited, nil
}

func (s *PostgresStore) FindBallot(ctx context.Context, voterID, positionID string) (Ballot, bool, error) {
	var b Ballot
	err := s.db.QueryRowContext(ctx, `
SELECT id, voter_id, candidate_id, position_id, cast_at
FROM ballots WHERE voter_id = $1 AND position_id = $2`, voterID, positionID).
		Scan(&b.ID, &b.VoterID, &b.CandidateID, &b.PositionID, &b.CastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Ballot{}, false, nil
	}
	if err != nil {
		return Ballot{}, false, err
	}
	return b, true, nil
}

func (s *PostgresStore) BallotsByVoter(ctx context.Context, voterID string) ([]Ballot, error) {
	return s.queryBallots(ctx, "voter_id = $1", voterID)
}

func (s *PostgresStore) ListBallots(ctx context.Context, positionID string) ([]Ballot, error) {
	if positionID == "" {
		return s.queryBallots(ctx, "")
	}
	return s.queryBallots(ctx, "position_id = $1", positionID)
}

func (s *PostgresStore) queryBallots(ctx context.Context, where string, args ...any) ([]Ballot, error) {
	q := `SELECT id, voter_id, candidate_id, position_id, cast_at FROM ballots`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY cast_at, id"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Ballot, 0)
	for rows.Next() {
		var b Ballot
		if err := rows.Scan(&b.ID, &b.VoterID, &b.CandidateID, &b.PositionID, &b.CastAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByCandidate(ctx context.Context, positionID string) (map[string]int64, error) {
	var (
		where []string
		args  []any
	)
	if positionID != "" {
		args = append(args, positionID)
		where = append(where, "position_id = $1")
	}
	q := `SELECT candidate_id, COUNT(*) FROM ballots`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " GROUP BY candidate_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByPosition(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position_id, COUNT(*) FROM ballots GROUP BY position_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountAnonymized(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anonymized_ballots`).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListAnonymized(ctx context.Context, positionID string) ([]AnonymizedBallot, error) {
	q := `SELECT id, voter_hash, position_id, payload, cast_at FROM anonymized_ballots`
	var args []any
	if positionID != "" {
		q += " WHERE position_id = $1"
		args = append(args, positionID)
	}
	q += " ORDER BY cast_at, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AnonymizedBallot, 0)
	for rows.Next() {
		var a AnonymizedBallot
		if err := rows.Scan(&a.ID, &a.VoterHash, &a.PositionID, &a.Payload, &a.CastAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
