package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/house-audio/audionode/internal/journal"
)

// fakeJournal returns canned entries and records the filter it was
// queried with.
type fakeJournal struct {
	entries    []journal.Entry
	lastFilter journal.Filter
}

func (f *fakeJournal) Record(_ context.Context, _ *journal.Entry) error { return nil }

func (f *fakeJournal) List(_ context.Context, filter journal.Filter) (*journal.ListResult, error) {
	f.lastFilter = filter
	return &journal.ListResult{
		Entries: f.entries,
		Total:   len(f.entries),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func (f *fakeJournal) Prune(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func TestSystemEvents(t *testing.T) {
	srv := testServer(t)
	fake := &fakeJournal{
		entries: []journal.Entry{
			{ID: "evt-1", Kind: "device.state_changed", Address: testAddr, CreatedAt: time.Now().UTC()},
		},
	}
	srv.journal = fake
	router := srv.buildRouter()
	token := login(t, router)

	var resp journal.ListResult
	rec := doJSON(t, router, http.MethodGet,
		"/api/v1/system/events?kind=device.state_changed&address="+testAddr+"&limit=10", token, nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp.Total != 1 || len(resp.Entries) != 1 {
		t.Fatalf("total = %d, entries = %d", resp.Total, len(resp.Entries))
	}
	if resp.Entries[0].ID != "evt-1" {
		t.Errorf("entry ID = %q", resp.Entries[0].ID)
	}

	if fake.lastFilter.Kind != "device.state_changed" {
		t.Errorf("filter kind = %q", fake.lastFilter.Kind)
	}
	if fake.lastFilter.Address != testAddr {
		t.Errorf("filter address = %q", fake.lastFilter.Address)
	}
	if fake.lastFilter.Limit != 10 {
		t.Errorf("filter limit = %d", fake.lastFilter.Limit)
	}
}

func TestSystemEvents_BadLimit(t *testing.T) {
	srv := testServer(t)
	srv.journal = &fakeJournal{}
	router := srv.buildRouter()
	token := login(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/system/events?limit=lots", token, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSystemEvents_Disabled(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := login(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/system/events", token, nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
