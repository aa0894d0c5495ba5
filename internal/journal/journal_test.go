package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/house-audio/audionode/internal/audio"
	"github.com/house-audio/audionode/internal/infrastructure/database"
	"github.com/house-audio/audionode/internal/journal"
	"github.com/house-audio/audionode/internal/node"
	_ "github.com/house-audio/audionode/migrations"
)

const (
	testAddr   = "AA:BB:CC:DD:EE:FF"
	testOutput = "alsa_output.platform-soc_sound.stereo-fallback"
)

// openTestRepo creates a migrated temp database and returns a repository.
func openTestRepo(t *testing.T) *journal.SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     false,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	return journal.NewSQLiteRepository(db.DB)
}

func TestRecordAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := &journal.Entry{
		Kind:    node.EventDeviceStateChanged,
		Address: testAddr,
		Details: map[string]any{"state": "connected"},
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Record() did not generate an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Record() did not set CreatedAt")
	}

	result, err := repo.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Kind != node.EventDeviceStateChanged {
		t.Errorf("Kind = %q, want %q", got.Kind, node.EventDeviceStateChanged)
	}
	if got.Address != testAddr {
		t.Errorf("Address = %q, want %q", got.Address, testAddr)
	}
	if got.Details["state"] != "connected" {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestList_Filters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entries := []*journal.Entry{
		{Kind: node.EventDeviceFound, Address: testAddr},
		{Kind: node.EventDeviceStateChanged, Address: testAddr},
		{Kind: node.EventDeviceStateChanged, Address: "11:22:33:44:55:66"},
		{Kind: node.EventLinkCreated, Address: testAddr, OutputID: testOutput},
		{Kind: node.EventOutputAdded, OutputID: testOutput},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	byKind, err := repo.List(ctx, journal.Filter{Kind: node.EventDeviceStateChanged})
	if err != nil {
		t.Fatalf("List(kind) error = %v", err)
	}
	if byKind.Total != 2 {
		t.Errorf("List(kind) total = %d, want 2", byKind.Total)
	}

	byAddress, err := repo.List(ctx, journal.Filter{Address: testAddr})
	if err != nil {
		t.Fatalf("List(address) error = %v", err)
	}
	if byAddress.Total != 3 {
		t.Errorf("List(address) total = %d, want 3", byAddress.Total)
	}

	byOutput, err := repo.List(ctx, journal.Filter{OutputID: testOutput})
	if err != nil {
		t.Fatalf("List(output) error = %v", err)
	}
	if byOutput.Total != 2 {
		t.Errorf("List(output) total = %d, want 2", byOutput.Total)
	}

	combined, err := repo.List(ctx, journal.Filter{Kind: node.EventLinkCreated, Address: testAddr})
	if err != nil {
		t.Fatalf("List(combined) error = %v", err)
	}
	if combined.Total != 1 {
		t.Errorf("List(combined) total = %d, want 1", combined.Total)
	}
}

func TestList_Pagination(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		entry := &journal.Entry{
			Kind:      node.EventDeviceFound,
			Address:   testAddr,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	page, err := repo.List(ctx, journal.Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 || len(page.Entries) != 2 {
		t.Fatalf("page 1: total = %d, entries = %d", page.Total, len(page.Entries))
	}

	// Most recent first.
	if page.Entries[0].CreatedAt.Before(page.Entries[1].CreatedAt) {
		t.Error("entries not ordered most recent first")
	}

	last, err := repo.List(ctx, journal.Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(last.Entries) != 1 {
		t.Errorf("last page entries = %d, want 1", len(last.Entries))
	}
}

func TestPrune(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	old := &journal.Entry{
		Kind:      node.EventDeviceFound,
		Address:   testAddr,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := &journal.Entry{
		Kind:    node.EventDeviceFound,
		Address: testAddr,
	}
	if err := repo.Record(ctx, old); err != nil {
		t.Fatalf("Record(old) error = %v", err)
	}
	if err := repo.Record(ctx, recent); err != nil {
		t.Fatalf("Record(recent) error = %v", err)
	}

	removed, err := repo.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed = %d, want 1", removed)
	}

	result, err := repo.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("remaining total = %d, want 1", result.Total)
	}
	if result.Entries[0].ID != recent.ID {
		t.Errorf("surviving entry = %q, want %q", result.Entries[0].ID, recent.ID)
	}
}

func TestRecorder_PersistsEvents(t *testing.T) {
	repo := openTestRepo(t)
	recorder := journal.NewRecorder(repo, 0, nil)

	events := make(chan node.Event, 4)
	events <- node.Event{
		Kind:      node.EventDeviceStateChanged,
		Device:    &node.Device{Address: testAddr, Name: "Kitchen Speaker", State: node.StateConnected},
		Timestamp: time.Now().UTC(),
	}
	events <- node.Event{
		Kind:      node.EventLinkCreated,
		Link:      &node.Link{ID: "link-1", DeviceAddress: testAddr, OutputID: testOutput, Volume: 0.7},
		Timestamp: time.Now().UTC(),
	}
	events <- node.Event{
		Kind:      node.EventOutputAdded,
		Output:    &audio.Output{ID: testOutput, Name: "Built-in Stereo"},
		Timestamp: time.Now().UTC(),
	}
	close(events)

	// Run returns when the channel closes.
	recorder.Run(context.Background(), events)

	result, err := repo.List(context.Background(), journal.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("journalled entries = %d, want 3", result.Total)
	}

	link, err := repo.List(context.Background(), journal.Filter{Kind: node.EventLinkCreated})
	if err != nil {
		t.Fatalf("List(link) error = %v", err)
	}
	if len(link.Entries) != 1 {
		t.Fatalf("link entries = %d, want 1", len(link.Entries))
	}
	if link.Entries[0].OutputID != testOutput {
		t.Errorf("link OutputID = %q, want %q", link.Entries[0].OutputID, testOutput)
	}
	if link.Entries[0].Details["volume"] != 0.7 {
		t.Errorf("link volume detail = %v, want 0.7", link.Entries[0].Details["volume"])
	}
}
