package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/scrapeworks/follower-enrich/pkg/provider"
)

// fakeProvider serves scripted pages and details without a network.
type fakeProvider struct {
	page    *provider.FollowerPage
	listErr error

	details    map[string]*provider.UserDetail
	lookupErrs map[string]error

	lastUserID   string
	lastPageSize int
	lastCursor   string
}

func (f *fakeProvider) ListFollowers(_ context.Context, userID string, pageSize int, cursor string) (*provider.FollowerPage, error) {
	f.lastUserID = userID
	f.lastPageSize = pageSize
	f.lastCursor = cursor
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.page, nil
}

func (f *fakeProvider) LookupUser(_ context.Context, id string) (*provider.UserDetail, error) {
	if err, ok := f.lookupErrs[id]; ok {
		return nil, err
	}
	detail, ok := f.details[id]
	if !ok {
		return nil, &provider.Error{StatusCode: 404, ErrorClass: provider.ErrorClassClient, Message: "user not found"}
	}
	return detail, nil
}

// newFakeProvider builds a provider serving n followers where follower i
// has i*1000 followers of their own.
func newFakeProvider(n int, nextCursor string) *fakeProvider {
	f := &fakeProvider{
		page:       &provider.FollowerPage{NextCursor: nextCursor},
		details:    make(map[string]*provider.UserDetail),
		lookupErrs: make(map[string]error),
	}
	for i := 1; i <= n; i++ {
		id := strconv.Itoa(i)
		f.page.Followers = append(f.page.Followers, provider.RawFollower{
			ID: id, Username: fmt.Sprintf("user%d", i),
		})
		f.details[id] = &provider.UserDetail{
			ID:             id,
			Username:       fmt.Sprintf("user%d", i),
			FollowersCount: i * 1000,
		}
	}
	return f
}

func TestPipeline_Enrich_FiltersByThreshold(t *testing.T) {
	fake := newFakeProvider(10, "")
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{
		Account:      "target",
		UserID:       "100",
		MinFollowers: 5000,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	// Followers 5..10 meet the 5000 threshold (counts are i*1000, inclusive)
	if len(payload.Users) != 6 {
		t.Fatalf("Expected 6 users, got %d", len(payload.Users))
	}
	for _, u := range payload.Users {
		if u.FollowersCount < 5000 {
			t.Errorf("User %s has %d followers, below the threshold", u.Username, u.FollowersCount)
		}
	}
	if payload.Returned != len(payload.Users) {
		t.Errorf("Returned = %d, want len(Users) = %d", payload.Returned, len(payload.Users))
	}
	if payload.Account != "target" {
		t.Errorf("Account = %q, want target", payload.Account)
	}
}

func TestPipeline_Enrich_ThresholdInclusive(t *testing.T) {
	fake := newFakeProvider(3, "")
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{
		UserID:       "100",
		MinFollowers: 2000,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	// Follower 2 has exactly 2000 followers and must be included
	if len(payload.Users) != 2 {
		t.Fatalf("Expected 2 users (counts 2000 and 3000), got %d", len(payload.Users))
	}
	if payload.Users[0].FollowersCount != 2000 {
		t.Errorf("First user count = %d, want the exact-threshold user included", payload.Users[0].FollowersCount)
	}
}

func TestPipeline_Enrich_OrderPreserved(t *testing.T) {
	fake := newFakeProvider(20, "")
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{
		UserID:  "100",
		Workers: 8,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(payload.Users) != 20 {
		t.Fatalf("Expected 20 users, got %d", len(payload.Users))
	}
	for i, u := range payload.Users {
		want := fmt.Sprintf("user%d", i+1)
		if u.Username != want {
			t.Errorf("Users[%d] = %s, want %s (source page order)", i, u.Username, want)
		}
	}
}

func TestPipeline_Enrich_FilteredOrderIsSubsequence(t *testing.T) {
	fake := newFakeProvider(10, "")
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{
		UserID:       "100",
		MinFollowers: 4000,
		Workers:      8,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	// Survivors keep their relative page order
	prev := 0
	for _, u := range payload.Users {
		id, _ := strconv.Atoi(u.ID)
		if id <= prev {
			t.Errorf("Output order broken: id %d after %d", id, prev)
		}
		prev = id
	}
}

func TestPipeline_Enrich_EmptyPage(t *testing.T) {
	fake := &fakeProvider{page: &provider.FollowerPage{}}
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{UserID: "100"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if payload.Users == nil {
		t.Error("Users must be an empty slice, not nil, for JSON encoding")
	}
	if payload.Returned != 0 {
		t.Errorf("Returned = %d, want 0", payload.Returned)
	}
	if payload.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty", payload.NextCursor)
	}
}

func TestPipeline_Enrich_LookupFailureDropsFollower(t *testing.T) {
	fake := newFakeProvider(10, "")
	fake.lookupErrs["4"] = fmt.Errorf("%w after 3 attempts: boom", provider.ErrRetryExhausted)
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{UserID: "100"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(payload.Users) != 9 {
		t.Fatalf("Expected 9 users (one dropped), got %d", len(payload.Users))
	}
	for _, u := range payload.Users {
		if u.ID == "4" {
			t.Error("Failed lookup must not appear in the output")
		}
	}
	if payload.Failed != 1 {
		t.Errorf("Failed = %d, want 1", payload.Failed)
	}
	if payload.Returned != 9 {
		t.Errorf("Returned = %d, want 9", payload.Returned)
	}
}

func TestPipeline_Enrich_CursorForwardedAndReturned(t *testing.T) {
	fake := newFakeProvider(2, "QVFC_opaque==")
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{
		UserID: "100",
		Cursor: "prev-cursor-xyz",
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if fake.lastCursor != "prev-cursor-xyz" {
		t.Errorf("Cursor forwarded = %q, want prev-cursor-xyz unmodified", fake.lastCursor)
	}
	if payload.NextCursor != "QVFC_opaque==" {
		t.Errorf("NextCursor = %q, want the provider cursor unmodified", payload.NextCursor)
	}
}

func TestPipeline_Enrich_ListingFailureFailsRequest(t *testing.T) {
	fake := &fakeProvider{listErr: fmt.Errorf("%w after 3 attempts: upstream", provider.ErrRetryExhausted)}
	pipeline := New(fake)

	_, err := pipeline.Enrich(context.Background(), Params{UserID: "100"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *PipelineError, got %T", err)
	}
	if !errors.Is(err, provider.ErrRetryExhausted) {
		t.Errorf("Expected the provider error preserved through Unwrap, got %v", err)
	}
}

func TestPipeline_Enrich_UserIDRequired(t *testing.T) {
	pipeline := New(&fakeProvider{})

	if _, err := pipeline.Enrich(context.Background(), Params{Account: "handle-only"}); err == nil {
		t.Error("Expected error for missing user id")
	}
}

func TestPipeline_Enrich_Defaults(t *testing.T) {
	fake := newFakeProvider(1, "")
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{UserID: "100"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if fake.lastPageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want default %d", fake.lastPageSize, DefaultPageSize)
	}
	// Account label falls back to the user id
	if payload.Account != "100" {
		t.Errorf("Account = %q, want the user id fallback", payload.Account)
	}
	// MinFollowers zero keeps everyone
	if len(payload.Users) != 1 {
		t.Errorf("Expected 1 user with no threshold, got %d", len(payload.Users))
	}
}

func TestPipeline_Enrich_UsernameFallbackFromListing(t *testing.T) {
	fake := newFakeProvider(1, "")
	fake.details["1"].Username = ""
	pipeline := New(fake)

	payload, err := pipeline.Enrich(context.Background(), Params{UserID: "100"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if payload.Users[0].Username != "user1" {
		t.Errorf("Username = %q, want the listing record fallback", payload.Users[0].Username)
	}
}

func TestPipeline_Enrich_WorkerCountDoesNotChangeOutput(t *testing.T) {
	run := func(workers int) *ResponsePayload {
		fake := newFakeProvider(30, "tok")
		fake.lookupErrs["7"] = errors.New("exhausted")
		pipeline := New(fake)

		payload, err := pipeline.Enrich(context.Background(), Params{
			UserID:       "100",
			MinFollowers: 3000,
			Workers:      workers,
		})
		if err != nil {
			t.Fatalf("Enrich(workers=%d) failed: %v", workers, err)
		}
		return payload
	}

	single := run(1)
	parallel := run(8)

	if len(single.Users) != len(parallel.Users) {
		t.Fatalf("Output size differs by worker count: %d vs %d", len(single.Users), len(parallel.Users))
	}
	for i := range single.Users {
		if single.Users[i].ID != parallel.Users[i].ID {
			t.Errorf("Users[%d] differs by worker count: %s vs %s", i, single.Users[i].ID, parallel.Users[i].ID)
		}
	}
	if single.NextCursor != parallel.NextCursor {
		t.Errorf("NextCursor differs by worker count: %q vs %q", single.NextCursor, parallel.NextCursor)
	}
}

func TestPipeline_Enrich_ContextCancelled(t *testing.T) {
	fake := newFakeProvider(5, "")
	pipeline := New(fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Enrich(ctx, Params{UserID: "100"})
	if err == nil {
		t.Fatal("Expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled preserved, got %v", err)
	}
}

func TestClampWorkers(t *testing.T) {
	tests := []struct {
		in       int
		expected int
	}{
		{0, 1},
		{-3, 1},
		{1, 1},
		{5, 5},
		{8, 8},
		{9, 8},
		{100, 8},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.in), func(t *testing.T) {
			if got := ClampWorkers(tt.in); got != tt.expected {
				t.Errorf("ClampWorkers(%d) = %d, want %d", tt.in, got, tt.expected)
			}
		})
	}
}

func TestPipeline_Enrich_LargePage(t *testing.T) {
	fake := newFakeProvider(200, "next")
	pipeline := New(fake)

	start := time.Now()
	payload, err := pipeline.Enrich(context.Background(), Params{
		UserID:   "100",
		PageSize: 200,
		Workers:  8,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(payload.Users) != 200 {
		t.Errorf("Expected 200 users, got %d", len(payload.Users))
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Enrichment of an in-memory page took %v", elapsed)
	}
}
