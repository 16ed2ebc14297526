package voting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-platform/internal/audit"
	"election-platform/internal/election"
	"election-platform/internal/rbac"
	"election-platform/internal/registry"
	"election-platform/internal/secrecy"
	"election-platform/internal/voters"
)

var (
	testEncKey  = []byte("0123456789abcdef0123456789abcdef")
	testHashKey = []byte("fedcba9876543210fedcba9876543210")
)

type fixture struct {
	engine    *Engine
	elections *election.Service
	registry  *registry.Service
	voters    *voters.Service
	store     *MemoryStore
	auditRepo *audit.MemoryRepo

	t0        time.Time
	president election.Position
	alice     election.Candidate
	bob       election.Candidate
}

type failingAuditRepo struct{}

func (failingAuditRepo) Append(context.Context, audit.Entry) error {
	return errors.New("audit store down")
}

func (failingAuditRepo) List(context.Context, audit.Filter) ([]audit.Entry, error) {
	return nil, nil
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithAudit(t, nil)
}

// newFixtureWithAudit builds an open election (T0 .. T0+1h) with one position,
// President, and two candidates. A non-nil voteAudit replaces the repository
// the ballot store writes VOTE entries to.
func newFixtureWithAudit(t *testing.T, voteAudit audit.Repository) *fixture {
	t.Helper()
	ctx := context.Background()

	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo)
	electionRepo := election.NewMemoryRepo()
	elections := election.NewService(electionRepo, auditSvc)
	reg := registry.NewService(registry.NewMemoryRepo(), auditSvc)
	voterSvc := voters.NewService(voters.NewMemoryRepo(), reg, auditSvc, voters.Options{AdminSecretCode: "code", BcryptCost: 4})
	elections.SetCompletionResetter(voterSvc)

	if voteAudit == nil {
		voteAudit = auditRepo
	}
	store := NewMemoryStore(electionRepo, voteAudit)

	sealer, err := secrecy.NewSealer(testEncKey)
	require.NoError(t, err)
	hasher, err := secrecy.NewVoterHasher(testHashKey)
	require.NoError(t, err)

	f := &fixture{
		engine: NewEngine(Deps{
			Catalog:  elections,
			Registry: reg,
			Ledger:   voterSvc,
			Store:    store,
			Sealer:   sealer,
			Hasher:   hasher,
			Audit:    auditSvc,
		}),
		elections: elections,
		registry:  reg,
		voters:    voterSvc,
		store:     store,
		auditRepo: auditRepo,
		t0:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	start, end := f.t0, f.t0.Add(time.Hour)
	_, err = elections.UpdateSettings(ctx, "admin", election.SettingsInput{Name: "Guild", Active: true, VotingStart: &start, VotingEnd: &end})
	require.NoError(t, err)

	f.president, err = elections.CreatePosition(ctx, "admin", election.PositionInput{Name: "President", Order: 1})
	require.NoError(t, err)
	f.alice, err = elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: f.president.ID, Name: "Alice"})
	require.NoError(t, err)
	f.bob, err = elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: f.president.ID, Name: "Bob"})
	require.NoError(t, err)
	return f
}

func (f *fixture) voter(t *testing.T, reg string) voters.Identity {
	t.Helper()
	ctx := context.Background()
	_, err := f.registry.Create(ctx, "admin", registry.Entry{RegNumber: reg, FullName: "Voter " + reg, Active: true})
	require.NoError(t, err)
	id, err := f.voters.RegisterVoter(ctx, voters.VoterRegistration{Username: strings.ToLower(reg), Password: "password123", RegNumber: reg})
	require.NoError(t, err)
	return id
}

func (f *fixture) candidate(t *testing.T, id string) election.Candidate {
	t.Helper()
	c, err := f.elections.GetCandidate(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) voteEntries() []audit.Entry {
	var out []audit.Entry
	for _, e := range f.auditRepo.Entries() {
		if e.Action == audit.ActionVote {
			out = append(out, e)
		}
	}
	return out
}

func TestCastVote_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voter(t, "S001")

	r, err := f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, r.CandidateID)
	assert.True(t, r.Completed)
	assert.Equal(t, int64(1), f.candidate(t, f.alice.ID).VoteCount)

	_, err = f.engine.CastVote(ctx, v, f.bob.ID, f.t0.Add(time.Minute))
	require.ErrorIs(t, err, ErrAlreadyVoted)
	var av *AlreadyVotedError
	require.ErrorAs(t, err, &av)
	require.NotNil(t, av.Existing)
	assert.Equal(t, f.alice.ID, av.Existing.ID)
	assert.Equal(t, int64(0), f.candidate(t, f.bob.ID).VoteCount)

	other := f.voter(t, "S002")
	_, err = f.engine.CastVote(ctx, other, f.bob.ID, f.t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrEnded)

	got, err := f.voters.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.HasVoted)
}

func TestCastVote_WindowBoundariesAreInclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CastVote(ctx, f.voter(t, "S001"), f.alice.ID, f.t0.Add(-time.Second))
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = f.engine.CastVote(ctx, f.voter(t, "S002"), f.alice.ID, f.t0)
	assert.NoError(t, err)

	_, err = f.engine.CastVote(ctx, f.voter(t, "S003"), f.alice.ID, f.t0.Add(time.Hour))
	assert.NoError(t, err)

	_, err = f.engine.CastVote(ctx, f.voter(t, "S004"), f.alice.ID, f.t0.Add(time.Hour+time.Nanosecond))
	assert.ErrorIs(t, err, ErrEnded)
}

func TestCastVote_InactiveElection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.elections.UpdateSettings(ctx, "admin", election.SettingsInput{Active: false})
	require.NoError(t, err)

	_, err = f.engine.CastVote(ctx, f.voter(t, "S001"), f.alice.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNoActiveElection)
}

func TestCastVote_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := voters.Identity{ID: "admin-1", Role: rbac.RoleAdmin, Approved: true}

	// Unknown candidate is reported before the role check.
	_, err := f.engine.CastVote(ctx, admin, "missing", f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.CastVote(ctx, admin, f.alice.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrForbidden)

	off := false
	_, err = f.elections.UpdateCandidate(ctx, "admin", f.bob.ID, election.CandidateInput{Name: "Bob", Active: &off})
	require.NoError(t, err)
	_, err = f.engine.CastVote(ctx, f.voter(t, "S001"), f.bob.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCastVote_NotEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stranger := voters.Identity{ID: "v-x", Role: rbac.RoleVoter, Approved: true, RegNumber: "S999"}
	for _, now := range []time.Time{f.t0.Add(-time.Hour), f.t0.Add(time.Minute), f.t0.Add(3 * time.Hour)} {
		_, err := f.engine.CastVote(ctx, stranger, f.alice.ID, now)
		assert.ErrorIs(t, err, ErrNotEligible)
	}

	noReg := voters.Identity{ID: "v-y", Role: rbac.RoleVoter, Approved: true}
	_, err := f.engine.CastVote(ctx, noReg, f.alice.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotEligible)

	// Registry status is read on every cast.
	v := f.voter(t, "S001")
	_, err = f.registry.SetActive(ctx, "admin", "S001", false)
	require.NoError(t, err)
	_, err = f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotEligible)

	pending := f.voter(t, "S002")
	pending, err = f.voters.SetApproval(ctx, "admin", pending.ID, false)
	require.NoError(t, err)
	_, err = f.engine.CastVote(ctx, pending, f.alice.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotEligible)

	assert.Equal(t, int64(0), f.candidate(t, f.alice.ID).VoteCount)
}

func TestCastVote_ConcurrentSameVoter(t *testing.T) {
	f := newFixture(t)
	v := f.voter(t, "S001")
	now := f.t0.Add(time.Minute)

	const attempts = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dupes    int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cand := f.alice.ID
			if i%2 == 1 {
				cand = f.bob.ID
			}
			_, err := f.engine.CastVote(context.Background(), v, cand, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrAlreadyVoted):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, dupes)
	total := f.candidate(t, f.alice.ID).VoteCount + f.candidate(t, f.bob.ID).VoteCount
	assert.Equal(t, int64(1), total)
	assert.Len(t, f.voteEntries(), 1)
}

func TestCastVote_ConcurrentDifferentVoters(t *testing.T) {
	f := newFixture(t)
	now := f.t0.Add(time.Minute)

	const n = 12
	ids := make([]voters.Identity, n)
	for i := range ids {
		ids[i] = f.voter(t, fmt.Sprintf("S%03d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.CastVote(context.Background(), ids[i], f.alice.ID, now)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(n), f.candidate(t, f.alice.ID).VoteCount)
	assert.Len(t, f.voteEntries(), n)
}

func TestCastVote_StorageConflictReportsAlreadyVoted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voter(t, "S001")

	// Simulate the race: another request stored the ballot after our read.
	_, err := f.store.Record(ctx, CastRecord{
		Ballot:     Ballot{ID: "b-0", VoterID: "someone-else", CandidateID: f.bob.ID, PositionID: f.president.ID, CastAt: f.t0},
		Anonymized: AnonymizedBallot{ID: "a-0", VoterHash: f.engine.hasher.Hash(v.ID, v.RegNumber), PositionID: f.president.ID, Payload: "x", CastAt: f.t0},
	})
	require.NoError(t, err)

	_, err = f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Equal(t, int64(0), f.candidate(t, f.alice.ID).VoteCount)
}

func TestCastVote_AuditEntryKeepsChoiceOut(t *testing.T) {
	f := newFixture(t)
	v := f.voter(t, "S001")
	ctx := audit.WithOrigin(context.Background(), audit.Origin{IP: "10.0.0.7", UserAgent: "test-agent"})

	_, err := f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)

	entries := f.voteEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, v.ID, entries[0].ActorID)
	assert.Equal(t, "10.0.0.7", entries[0].IPAddress)
	assert.NotContains(t, entries[0].Description, "Alice")
	assert.Contains(t, entries[0].Description, "President")
}

func TestCastVote_AuditFailureDoesNotBlock(t *testing.T) {
	f := newFixtureWithAudit(t, failingAuditRepo{})
	v := f.voter(t, "S001")

	r, err := f.engine.CastVote(context.Background(), v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEmpty(t, r.BallotID)
	assert.Equal(t, int64(1), f.candidate(t, f.alice.ID).VoteCount)
	assert.Empty(t, f.voteEntries())
}

func TestCastVote_CompletionNeedsEveryActivePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sec, err := f.elections.CreatePosition(ctx, "admin", election.PositionInput{Name: "Secretary", Order: 2})
	require.NoError(t, err)
	carol, err := f.elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: sec.ID, Name: "Carol"})
	require.NoError(t, err)
	v := f.voter(t, "S001")

	r, err := f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, r.Completed)
	got, err := f.voters.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.HasVoted)

	r, err = f.engine.CastVote(ctx, v, carol.ID, f.t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, r.Completed)
	got, err = f.voters.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.HasVoted)

	mine, err := f.engine.VoterBallots(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestCastVote_NewPositionReopensCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voter(t, "S003")

	r, err := f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, r.Completed)

	treasurer, err := f.elections.CreatePosition(ctx, "admin", election.PositionInput{Name: "Treasurer", Order: 3})
	require.NoError(t, err)
	dan, err := f.elections.CreateCandidate(ctx, "admin", election.CandidateInput{PositionID: treasurer.ID, Name: "Dan"})
	require.NoError(t, err)
	got, err := f.voters.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.HasVoted)

	r, err = f.engine.CastVote(ctx, v, dan.ID, f.t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, r.Completed)
	got, err = f.voters.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.HasVoted)
}

func TestCastVote_CancelledAfterCommitStillCompletes(t *testing.T) {
	f := newFixture(t)
	v := f.voter(t, "S001")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The memory store ignores cancellation, standing in for a commit that
	// landed just before the caller went away.
	r, err := f.engine.CastVote(ctx, v, f.alice.ID, f.t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, r.Completed)
}

func TestTally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.engine.Tally(ctx, f.president.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalVotes)
	for _, row := range empty.Results {
		assert.Equal(t, 0.0, row.Percentage)
	}
	// Ties fall back to name order.
	require.Len(t, empty.Results, 2)
	assert.Equal(t, "Alice", empty.Results[0].CandidateName)

	now := f.t0.Add(time.Minute)
	for i, cand := range []string{f.bob.ID, f.bob.ID, f.alice.ID} {
		_, err := f.engine.CastVote(ctx, f.voter(t, fmt.Sprintf("S%03d", i)), cand, now)
		require.NoError(t, err)
	}

	first, err := f.engine.Tally(ctx, f.president.ID)
	require.NoError(t, err)
	second, err := f.engine.Tally(ctx, f.president.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int64(3), first.TotalVotes)
	require.Len(t, first.Results, 2)
	assert.Equal(t, "Bob", first.Results[0].CandidateName)
	assert.Equal(t, int64(2), first.Results[0].VoteCount)
	assert.Equal(t, 66.7, first.Results[0].Percentage)
	assert.Equal(t, 33.3, first.Results[1].Percentage)
	assert.InDelta(t, 100.0, first.Results[0].Percentage+first.Results[1].Percentage, 0.1)

	_, err = f.engine.Tally(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	drift, err := f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestDecrypt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.t0.Add(time.Minute)
	_, err := f.engine.CastVote(ctx, f.voter(t, "S001"), f.alice.ID, now)
	require.NoError(t, err)

	rows, err := f.store.ListAnonymized(ctx, f.president.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	ab := rows[0]
	assert.NotContains(t, ab.Payload, "Alice")

	p, err := f.engine.Decrypt(ab)
	require.NoError(t, err)
	assert.Equal(t, Payload{
		CandidateID:   f.alice.ID,
		CandidateName: "Alice",
		PositionID:    f.president.ID,
		PositionName:  "President",
		Timestamp:     now,
	}, p)

	otherSealer, err := secrecy.NewSealer(testHashKey)
	require.NoError(t, err)
	wrongKey := NewEngine(Deps{Catalog: f.elections, Store: f.store, Sealer: otherSealer})
	_, err = wrongKey.Decrypt(ab)
	assert.ErrorIs(t, err, ErrDecryptFailure)
	var de *DecryptError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ab.ID, de.BallotID)

	// A payload moved to another position does not open.
	moved := ab
	moved.PositionID = "elsewhere"
	_, err = f.engine.Decrypt(moved)
	assert.ErrorIs(t, err, ErrDecryptFailure)
}

func TestAuditAnonymized_ReportsCorruptRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.t0.Add(time.Minute)
	_, err := f.engine.CastVote(ctx, f.voter(t, "S001"), f.alice.ID, now)
	require.NoError(t, err)
	_, err = f.engine.CastVote(ctx, f.voter(t, "S002"), f.bob.ID, now)
	require.NoError(t, err)

	rows, err := f.store.ListAnonymized(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	f.store.tamper(rows[1].ID, "v1.not-a-real-token")

	report, err := f.engine.AuditAnonymized(ctx, f.president.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failures)
	require.Len(t, report.Ballots, 2)
	assert.NotNil(t, report.Ballots[0].Payload)
	assert.NotEmpty(t, report.Ballots[1].Failure)
	var opened int64
	for _, n := range report.Counts {
		opened += n
	}
	assert.Equal(t, int64(1), opened)
}

func TestVoterHashIsStableAndDistinct(t *testing.T) {
	f := newFixture(t)
	h := f.engine.hasher
	assert.Equal(t, h.Hash("id-1", "S001"), h.Hash("id-1", "S001"))
	assert.NotEqual(t, h.Hash("id-1", "S001"), h.Hash("id-2", "S001"))
	assert.NotContains(t, h.Hash("id-1", "S001"), "S001")
}

// tamper replaces a stored anonymized payload in place.
func (s *MemoryStore) tamper(ballotID, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.anonymized {
		if s.anonymized[i].ID == ballotID {
			s.anonymized[i].Payload = payload
		}
	}
}
