package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresRepo stores entries in audit_entries. The table has triggers
// rejecting UPDATE and DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEntrySQL = `
INSERT INTO audit_entries (id, actor_id, action, description, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, insertEntrySQL, entryArgs(e)...)
	return err
}

// InsertTx appends e as part of a caller-owned transaction.
func InsertTx(ctx context.Context, tx *sql.Tx, e Entry) error {
	_, err := tx.ExecContext(ctx, insertEntrySQL, entryArgs(e)...)
	return err
}

func entryArgs(e Entry) []any {
	return []any{
		e.ID,
		nullIfEmpty(e.ActorID),
		string(e.Action),
		e.Description,
		nullIfEmpty(e.IPAddress),
		e.UserAgent,
		e.CreatedAt,
	}
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Action != "" {
		args = append(args, string(f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	q := `SELECT id, actor_id, action, description, ip_address, user_agent, created_at FROM audit_entries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			actorID sql.NullString
			ip      sql.NullString
			action  string
		)
		if err := rows.Scan(&e.ID, &actorID, &action, &e.Description, &ip, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = actorID.String
		e.IPAddress = ip.String
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
