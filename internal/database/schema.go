package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Constraint names referenced by stores when translating unique violations.
const (
	ConstraintBallotVoterCandidate    = "ballots_voter_candidate_key"
	ConstraintBallotVoterPosition     = "ballots_voter_position_key"
	ConstraintAnonymizedVoterPosition = "anonymized_ballots_voter_position_key"
	ConstraintCandidateNamePosition   = "candidates_name_position_key"
	ConstraintPositionName            = "positions_name_key"
	ConstraintVoterUsername           = "voter_identities_username_key"
	ConstraintVoterRegNumber          = "voter_identities_reg_number_key"
)

// CreateSchema creates all tables, constraints and append-only triggers.
// Safe to call multiple times.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
-- Authoritative list of people allowed to hold a voter identity.
CREATE TABLE IF NOT EXISTS registry_entries (
    reg_number    TEXT PRIMARY KEY,
    full_name     TEXT NOT NULL,
    email         TEXT NOT NULL DEFAULT '',
    department    TEXT NOT NULL DEFAULT '',
    year_of_study INTEGER NOT NULL DEFAULT 0,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS voter_identities (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('voter', 'admin')),
    reg_number    TEXT REFERENCES registry_entries(reg_number) ON DELETE RESTRICT,
    is_approved   BOOLEAN NOT NULL DEFAULT TRUE,
    has_voted     BOOLEAN NOT NULL DEFAULT FALSE,
    full_name     TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    department    TEXT NOT NULL DEFAULT '',
    year_of_study INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT voter_identities_username_key UNIQUE (username),
    CONSTRAINT voter_identities_reg_number_key UNIQUE (reg_number)
);

CREATE TABLE IF NOT EXISTS positions (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    sort_order  INTEGER NOT NULL DEFAULT 0,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT positions_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS candidates (
    id          TEXT PRIMARY KEY,
    position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE RESTRICT,
    name        TEXT NOT NULL,
    bio         TEXT NOT NULL DEFAULT '',
    photo_ref   TEXT NOT NULL DEFAULT '',
    vote_count  BIGINT NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT candidates_name_position_key UNIQUE (name, position_id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_position ON candidates(position_id);

-- Exactly one settings row; id is pinned to 1.
CREATE TABLE IF NOT EXISTS election_settings (
    id                INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    name              TEXT NOT NULL DEFAULT '',
    is_active         BOOLEAN NOT NULL DEFAULT FALSE,
    voting_start      TIMESTAMPTZ,
    voting_end        TIMESTAMPTZ,
    results_published BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (voting_start IS NULL OR voting_end IS NULL OR voting_start <= voting_end)
);

CREATE TABLE IF NOT EXISTS ballots (
    id           TEXT PRIMARY KEY,
    voter_id     TEXT NOT NULL REFERENCES voter_identities(id) ON DELETE RESTRICT,
    candidate_id TEXT NOT NULL REFERENCES candidates(id) ON DELETE RESTRICT,
    position_id  TEXT NOT NULL REFERENCES positions(id) ON DELETE RESTRICT,
    cast_at      TIMESTAMPTZ NOT NULL,
    CONSTRAINT ballots_voter_candidate_key UNIQUE (voter_id, candidate_id),
    CONSTRAINT ballots_voter_position_key UNIQUE (voter_id, position_id)
);

CREATE INDEX IF NOT EXISTS idx_ballots_candidate ON ballots(candidate_id);
CREATE INDEX IF NOT EXISTS idx_ballots_position ON ballots(position_id);

CREATE TABLE IF NOT EXISTS anonymized_ballots (
    id          TEXT PRIMARY KEY,
    voter_hash  TEXT NOT NULL,
    position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE RESTRICT,
    payload     TEXT NOT NULL,
    cast_at     TIMESTAMPTZ NOT NULL,
    CONSTRAINT anonymized_ballots_voter_position_key UNIQUE (voter_hash, position_id)
);

CREATE INDEX IF NOT EXISTS idx_anonymized_ballots_position ON anonymized_ballots(position_id);

CREATE TABLE IF NOT EXISTS audit_entries (
    id          TEXT PRIMARY KEY,
    actor_id    TEXT,
    action      TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    ip_address  TEXT,
    user_agent  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_created ON audit_entries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);

CREATE OR REPLACE FUNCTION reject_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_entries_append_only ON audit_entries;
CREATE TRIGGER audit_entries_append_only BEFORE UPDATE OR DELETE ON audit_entries
    FOR EACH ROW EXECUTE FUNCTION reject_mutation();

DROP TRIGGER IF EXISTS ballots_append_only ON ballots;
CREATE TRIGGER ballots_append_only BEFORE UPDATE OR DELETE ON ballots
    FOR EACH ROW EXECUTE FUNCTION reject_mutation();

DROP TRIGGER IF EXISTS anonymized_ballots_append_only ON anonymized_ballots;
CREATE TRIGGER anonymized_ballots_append_only BEFORE UPDATE OR DELETE ON anonymized_ballots
    FOR EACH ROW EXECUTE FUNCTION reject_mutation();
`
