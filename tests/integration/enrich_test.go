package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/scrapeworks/follower-enrich/internal/testutil"
	"github.com/scrapeworks/follower-enrich/pkg/enrich"
	"github.com/scrapeworks/follower-enrich/pkg/provider"
)

// newStack wires a real provider client against the mock server and a
// pipeline on top of it.
func newStack(t *testing.T, mock *testutil.MockProvider) *enrich.Pipeline {
	t.Helper()

	client, err := provider.New(provider.Config{
		BaseURL:   mock.URL(),
		AccessKey: "integration-key",
		Timeout:   5 * time.Second,
		Retry: provider.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    20 * time.Millisecond,
			MaxBackoff:        200 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
	})
	if err != nil {
		t.Fatalf("provider.New failed: %v", err)
	}

	return enrich.New(client)
}

// seedFollowers registers n followers where follower i has i*1000
// followers and returns the fixtures in page order.
func seedFollowers(mock *testutil.MockProvider, n int, nextCursor string) []testutil.UserFixture {
	fixtures := make([]testutil.UserFixture, 0, n)
	for i := 1; i <= n; i++ {
		f := testutil.UserFixture{
			ID:             fmt.Sprintf("%d", i),
			Username:       fmt.Sprintf("user%d", i),
			FollowersCount: i * 1000,
		}
		fixtures = append(fixtures, f)
		mock.AddUser(f)
	}
	mock.SetFollowersPage(fixtures, nextCursor)
	return fixtures
}

func TestEnrichFlow_EndToEnd(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	seedFollowers(mock, 10, "page-2-token")
	pipeline := newStack(t, mock)

	payload, err := pipeline.Enrich(context.Background(), enrich.Params{
		Account:      "target",
		UserID:       "100",
		MinFollowers: 4000,
		Workers:      4,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	// Followers 4..10 survive the inclusive 4000 threshold
	if len(payload.Users) != 7 {
		t.Fatalf("Expected 7 users, got %d", len(payload.Users))
	}
	for i, u := range payload.Users {
		want := fmt.Sprintf("user%d", i+4)
		if u.Username != want {
			t.Errorf("Users[%d] = %s, want %s (source page order)", i, u.Username, want)
		}
	}
	if payload.Returned != 7 {
		t.Errorf("Returned = %d, want 7", payload.Returned)
	}
	if payload.NextCursor != "page-2-token" {
		t.Errorf("NextCursor = %q, want page-2-token", payload.NextCursor)
	}
	if payload.Account != "target" {
		t.Errorf("Account = %q, want target", payload.Account)
	}
}

func TestEnrichFlow_RetryThenSuccessStaysInOutput(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	seedFollowers(mock, 5, "")
	// Follower 3 fails twice before succeeding; it must still be returned
	mock.FailLookups("3", 2, 500)

	pipeline := newStack(t, mock)

	payload, err := pipeline.Enrich(context.Background(), enrich.Params{
		UserID:  "100",
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(payload.Users) != 5 {
		t.Fatalf("Expected all 5 users, got %d", len(payload.Users))
	}
	if mock.GetLookupCount("3") != 3 {
		t.Errorf("Expected 3 lookups for the flaky user, got %d", mock.GetLookupCount("3"))
	}
}

func TestEnrichFlow_ExhaustedLookupDropped(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	seedFollowers(mock, 5, "")
	mock.FailLookups("2", 10, 503)

	pipeline := newStack(t, mock)

	payload, err := pipeline.Enrich(context.Background(), enrich.Params{
		UserID:  "100",
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(payload.Users) != 4 {
		t.Fatalf("Expected 4 users (one exhausted), got %d", len(payload.Users))
	}
	for _, u := range payload.Users {
		if u.ID == "2" {
			t.Error("Exhausted lookup must not appear in the output")
		}
	}
	if payload.Failed != 1 {
		t.Errorf("Failed = %d, want 1", payload.Failed)
	}
}

func TestEnrichFlow_ListingExhaustionFailsRequest(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	mock.FailListings(10, 502)
	pipeline := newStack(t, mock)

	_, err := pipeline.Enrich(context.Background(), enrich.Params{UserID: "100"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, provider.ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}

	var perr *enrich.PipelineError
	if !errors.As(err, &perr) {
		t.Errorf("Expected *PipelineError, got %T", err)
	}
}

func TestEnrichFlow_CursorPagination(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	seedFollowers(mock, 3, "QVFDWjFoSHpq==")
	pipeline := newStack(t, mock)

	first, err := pipeline.Enrich(context.Background(), enrich.Params{UserID: "100"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if first.NextCursor != "QVFDWjFoSHpq==" {
		t.Fatalf("NextCursor = %q, want the provider token", first.NextCursor)
	}

	// Feed the cursor back; the provider must receive it byte for byte
	if _, err := pipeline.Enrich(context.Background(), enrich.Params{
		UserID: "100",
		Cursor: first.NextCursor,
	}); err != nil {
		t.Fatalf("Enrich with cursor failed: %v", err)
	}

	if got := mock.LastQuery.Get("max_id"); got != "QVFDWjFoSHpq==" {
		t.Errorf("max_id = %q, want the cursor unmodified", got)
	}
}

func TestEnrichFlow_ListResponseShape(t *testing.T) {
	mock := testutil.NewMockProvider()
	defer mock.Close()

	mock.AddUser(testutil.UserFixture{ID: "1", Username: "alice", FollowersCount: 5000})
	mock.SetFollowersPageList([]testutil.UserFixture{{ID: "1", Username: "alice"}}, "tok")

	pipeline := newStack(t, mock)

	payload, err := pipeline.Enrich(context.Background(), enrich.Params{UserID: "100"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if len(payload.Users) != 1 || payload.Users[0].Username != "alice" {
		t.Errorf("Unexpected users: %+v", payload.Users)
	}
	if payload.NextCursor != "tok" {
		t.Errorf("NextCursor = %q, want tok", payload.NextCursor)
	}
}
