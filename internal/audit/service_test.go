package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return p.err
}

func TestService_AppendRequiresValidAction(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Entry{}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if err := svc.Append(context.Background(), Entry{Action: "DROP_TABLE"}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if len(repo.Entries()) != 0 {
		t.Fatalf("invalid entries must not be stored")
	}
}

func TestService_FillsOriginAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo, WithClock(func() time.Time { return now }))

	ctx := WithOrigin(context.Background(), Origin{IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"})
	if err := svc.Record(ctx, "admin-1", ActionAdmin, "approved voter"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	es := repo.Entries()
	if len(es) != 1 {
		t.Fatalf("expected 1 entry")
	}
	e := es[0]
	if e.ID == "" || !e.CreatedAt.Equal(now) {
		t.Fatalf("expected id and timestamp filled, got %+v", e)
	}
	if e.IPAddress != "1.2.3.4" || e.UserAgent == "" {
		t.Fatalf("expected origin captured, got %+v", e)
	}
}

func TestService_SystemEntryHasNoActor(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	if err := svc.Record(context.Background(), "", ActionAdmin, "schema migrated"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.Entries()[0].ActorID != "" {
		t.Fatalf("expected empty actor")
	}
}

func TestService_PublishFailureDoesNotFailAppend(t *testing.T) {
	repo := NewMemoryRepo()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(repo, WithPublisher(pub))

	if err := svc.Record(context.Background(), "u", ActionLogin, "login"); err != nil {
		t.Fatalf("append must succeed when publish fails: %v", err)
	}
	if len(pub.entries) != 1 || len(repo.Entries()) != 1 {
		t.Fatalf("expected entry stored and publish attempted")
	}
}

func TestMemoryRepo_ListNewestFirstWithFilter(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_ = svc.Record(ctx, "a", ActionLogin, "1")
	_ = svc.Record(ctx, "a", ActionVote, "2")
	_ = svc.Record(ctx, "b", ActionVote, "3")

	votes, err := svc.List(ctx, Filter{Action: ActionVote})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(votes) != 2 || votes[0].Description != "3" {
		t.Fatalf("expected newest vote first, got %+v", votes)
	}

	one, _ := svc.List(ctx, Filter{Limit: 1})
	if len(one) != 1 || one[0].Description != "3" {
		t.Fatalf("expected limit to apply, got %+v", one)
	}

	byActor, _ := svc.List(ctx, Filter{ActorID: "a"})
	if len(byActor) != 2 {
		t.Fatalf("expected 2 entries for actor a, got %d", len(byActor))
	}
}

func TestSummarizeUserAgent(t *testing.T) {
	got := summarizeUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	if !strings.HasPrefix(got, "Firefox 120 / ") || !strings.Contains(got, "Linux") {
		t.Fatalf("unexpected summary %q", got)
	}
	if summarizeUserAgent("") != "" {
		t.Fatalf("expected empty summary for empty header")
	}
}
