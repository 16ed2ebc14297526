//go:build integration

package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-platform/internal/audit"
	"election-platform/internal/database"
	"election-platform/internal/election"
	"election-platform/internal/registry"
	"election-platform/internal/secrecy"
	"election-platform/internal/voters"
	"election-platform/pkg/testutil/containers"
)

type pgFixture struct {
	pg        *containers.PostgresContainer
	engine    *Engine
	store     *PostgresStore
	elections *election.Service
	registry  *registry.Service
	voters    *voters.Service
	t0        time.Time
	president election.Position
	secretary election.Position
	alice     election.Candidate
	bob       election.Candidate
}

func newPostgresFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	require.NoError(t, database.CreateSchema(ctx, pg.DB))

	auditSvc := audit.NewService(audit.NewPostgresRepo(pg.DB))
	elections := election.NewService(election.NewPostgresRepo(pg.DB), auditSvc)
	reg := registry.NewService(registry.NewPostgresRepo(pg.DB), auditSvc)
	voterSvc := voters.NewService(voters.NewPostgresRepo(pg.DB), reg, auditSvc, voters.Options{AdminSecretCode: "code", BcryptCost: 4})
	elections.SetCompletionResetter(voterSvc)

	sealer, err := secrecy.NewSealer(testEncKey)
	require.NoError(t, err)
	hasher, err := secrecy.NewVoterHasher(testHashKey)
	require.NoError(t, err)
	store := NewPostgresStore(pg.DB)

	f := &pgFixture{
		pg: pg,
		engine: NewEngine(Deps{
			Catalog:  elections,
			Registry: reg,
			Ledger:   voterSvc,
			Store:    store,
			Sealer:   sealer,
			Hasher:   hasher,
			Audit:    auditSvc,
		}),
		store:     store,
		elections: elections,
		registry:  reg,
		voters:    voterSvc,
		t0:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	start, end := f.t0, f.t0.Add(time.Hour)
	_, err = elections.UpdateSettings(ctx, "admin", election.SettingsInput{Name: "Guild", Active: true, VotingStart: &start, VotingEnd: &end})
	require.NoError(t, err)
	f.president, err = elections.CreatePosition(ctx, "admin", election.PositionInput{Name: "President", Order: 1})
	require.NoError(t, err)
	f.secretary, err = elections.CreatePosition(ctx, "admin", election.PositionInput{Name: "Secretary", Order: 2})
	require.NoError(t, err)
	f.alice, err = elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: f.president.ID, Name: "Alice"})
	require.NoError(t, err)
	f.bob, err = elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: f.president.ID, Name: "Bob"})
	require.NoError(t, err)
	return f
}

func (f *pgFixture) voter(t *testing.T, regNo string) voters.Identity {
	t.Helper()
	ctx := context.Background()
	_, err := f.registry.Create(ctx, "admin", registry.Entry{RegNumber: regNo, FullName: "Voter " + regNo, Active: true})
	require.NoError(t, err)
	id, err := f.voters.RegisterVoter(ctx, voters.VoterRegistration{Username: regNo, Password: "password123", RegNumber: regNo})
	require.NoError(t, err)
	return id
}

func (f *pgFixture) count(t *testing.T, q string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.pg.DB.QueryRowContext(context.Background(), q, args...).Scan(&n))
	return n
}

func TestPostgresStore_ConcurrentSameVoterOneAccepted(t *testing.T) {
	f := newPostgresFixture(t)
	v := f.voter(t, "S001")
	now := f.t0.Add(time.Minute)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		already  int
		other    []error
	)
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cand := f.alice.ID
			if i%2 == 1 {
				cand = f.bob.ID
			}
			<-start
			_, err := f.engine.CastVote(context.Background(), v, cand, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrAlreadyVoted):
				already++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, already)

	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM ballots WHERE voter_id = $1`, v.ID))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM anonymized_ballots WHERE position_id = $1`, f.president.ID))
	assert.Equal(t,
		f.count(t, `SELECT COUNT(*) FROM ballots WHERE position_id = $1`, f.president.ID),
		f.count(t, `SELECT COALESCE(SUM(vote_count), 0) FROM candidates WHERE position_id = $1`, f.president.ID))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM audit_entries WHERE action = 'VOTE'`))

	drift, err := f.engine.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestPostgresStore_ConcurrentVotersCounted(t *testing.T) {
	f := newPostgresFixture(t)
	now := f.t0.Add(time.Minute)
	ids := make([]voters.Identity, 10)
	for i := range ids {
		ids[i] = f.voter(t, uuid.NewString()[:8])
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, v := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.engine.CastVote(context.Background(), v, f.alice.ID, now)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	alice, err := f.elections.GetCandidate(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), alice.VoteCount)
	tally, err := f.engine.Tally(context.Background(), f.president.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), tally.TotalVotes)

	sum, err := f.engine.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), sum.Identified)
	assert.Equal(t, int64(len(ids)), sum.Anonymized)
	assert.Equal(t, map[string]int64{f.president.ID: int64(len(ids))}, sum.ByPosition)
}

func TestPostgresStore_RecordTranslatesConstraints(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	v := f.voter(t, "S001")
	now := f.t0.Add(time.Minute)

	rec, err := f.engine.buildRecord(ctx, v, f.alice, f.president, now)
	require.NoError(t, err)
	audited, err := f.store.Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, audited)

	t.Run("same voter and position", func(t *testing.T) {
		again, err := f.engine.buildRecord(ctx, v, f.bob, f.president, now)
		require.NoError(t, err)
		_, err = f.store.Record(ctx, again)
		assert.ErrorIs(t, err, ErrStorageConflict)
	})

	t.Run("anonymized hash reused", func(t *testing.T) {
		other := f.voter(t, "S002")
		dup, err := f.engine.buildRecord(ctx, other, f.alice, f.president, now)
		require.NoError(t, err)
		dup.Anonymized.VoterHash = rec.Anonymized.VoterHash
		_, err = f.store.Record(ctx, dup)
		assert.ErrorIs(t, err, ErrStorageConflict)
		// Nothing from the failed cast survives.
		assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM ballots WHERE voter_id = $1`, other.ID))
	})

	t.Run("unknown candidate", func(t *testing.T) {
		other := f.voter(t, "S003")
		ghost := f.alice
		ghost.ID = uuid.NewString()
		bad, err := f.engine.buildRecord(ctx, other, ghost, f.president, now)
		require.NoError(t, err)
		_, err = f.store.Record(ctx, bad)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("candidate moved to another position", func(t *testing.T) {
		other := f.voter(t, "S004")
		// Bob still belongs to President, so the counter update matches no row.
		moved, err := f.engine.buildRecord(ctx, other, f.bob, f.secretary, now)
		require.NoError(t, err)
		_, err = f.store.Record(ctx, moved)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM ballots WHERE voter_id = $1`, other.ID))
	})

	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM ballots`))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM anonymized_ballots`))
	assert.Equal(t, int64(1), f.count(t, `SELECT COALESCE(SUM(vote_count), 0) FROM candidates`))
}

func TestPostgresStore_AuditFailureKeepsVote(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	now := f.t0.Add(time.Minute)

	first, err := f.engine.buildRecord(ctx, f.voter(t, "S001"), f.alice, f.president, now)
	require.NoError(t, err)
	_, err = f.store.Record(ctx, first)
	require.NoError(t, err)

	// Reusing the audit id makes the savepointed insert fail.
	second, err := f.engine.buildRecord(ctx, f.voter(t, "S002"), f.bob, f.president, now)
	require.NoError(t, err)
	second.Audit.ID = first.Audit.ID
	audited, err := f.store.Record(ctx, second)
	require.NoError(t, err)
	assert.False(t, audited)

	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM ballots`))
	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM anonymized_ballots`))
	assert.Equal(t, int64(1), f.count(t, `SELECT vote_count FROM candidates WHERE id = $1`, f.bob.ID))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM audit_entries WHERE action = 'VOTE'`))
}

func TestPostgresRepo_MoveCandidateWithBallotsRefused(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	_, err := f.engine.CastVote(ctx, f.voter(t, "S001"), f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)

	// The stale copy still reads vote_count 0; the write itself must refuse.
	stale := f.alice
	stale.PositionID = f.secretary.ID
	err = election.NewPostgresRepo(f.pg.DB).UpdateCandidate(ctx, stale)
	assert.ErrorIs(t, err, election.ErrInUse)

	ghost := stale
	ghost.ID = uuid.NewString()
	err = election.NewPostgresRepo(f.pg.DB).UpdateCandidate(ctx, ghost)
	assert.ErrorIs(t, err, election.ErrNotFound)

	// Bob has no ballots and may move.
	bob := f.bob
	bob.PositionID = f.secretary.ID
	require.NoError(t, election.NewPostgresRepo(f.pg.DB).UpdateCandidate(ctx, bob))
}

func TestPostgresVoters_CompletionResetByNewPosition(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	v := f.voter(t, "S001")
	carol, err := f.elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: f.secretary.ID, Name: "Carol"})
	require.NoError(t, err)

	_, err = f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)
	r, err := f.engine.CastVote(ctx, v, carol.ID, f.t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, r.Completed)

	_, err = f.elections.CreatePosition(ctx, "admin", election.PositionInput{Name: "Treasurer", Order: 3})
	require.NoError(t, err)
	got, err := f.voters.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.HasVoted)

	counts, err := f.voters.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.CompletedVoters)
}
