package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolgate-dev/toolgate/api"
)

func TestJSONLStore_WriteAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store := NewJSONLStore(path, JSONLOptions{})
	defer store.Close()

	ctx := context.Background()

	record := &api.AuditRecord{
		Tool:     "read_file",
		Class:    api.ClassFilesystem,
		Layer:    api.LayerResource,
		Approved: true,
		Reason:   "filesystem allow-list",
	}
	if err := store.Write(ctx, record); err != nil {
		t.Fatal(err)
	}
	if record.ID == "" {
		t.Error("expected generated record ID")
	}

	results, err := store.Query(ctx, api.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Tool != "read_file" {
		t.Errorf("expected tool read_file, got %s", results[0].Tool)
	}
}

func TestJSONLStore_FileIsLineOriented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store := NewJSONLStore(path, JSONLOptions{})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.Write(ctx, &api.AuditRecord{Tool: "t", Layer: api.LayerContext}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r api.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("expected 3 lines, got %d", lines)
	}
}

func TestJSONLStore_QueryFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store := NewJSONLStore(path, JSONLOptions{})
	defer store.Close()

	ctx := context.Background()
	records := []*api.AuditRecord{
		{Tool: "read_file", Layer: api.LayerResource, Approved: true},
		{Tool: "run_command", Layer: api.LayerToolAllowlist, Approved: false},
		{Tool: "run_command", Layer: api.LayerResource, Approved: false},
	}
	for _, r := range records {
		if err := store.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	denied, err := store.Query(ctx, api.QueryFilter{DeniedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(denied) != 2 {
		t.Errorf("expected 2 denied records, got %d", len(denied))
	}

	byTool, err := store.Query(ctx, api.QueryFilter{Tool: "run_command", Layer: api.LayerResource})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTool) != 1 {
		t.Errorf("expected 1 record, got %d", len(byTool))
	}

	since, err := store.Query(ctx, api.QueryFilter{Since: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 0 {
		t.Errorf("expected no future records, got %d", len(since))
	}
}

func TestJSONLStore_Stats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store := NewJSONLStore(path, JSONLOptions{})
	defer store.Close()

	ctx := context.Background()
	store.Write(ctx, &api.AuditRecord{Tool: "a", Layer: api.LayerResource, Approved: true})
	store.Write(ctx, &api.AuditRecord{Tool: "a", Layer: api.LayerConsent, Approved: false})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Approved != 1 || stats.Denied != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ByTool["a"] != 2 {
		t.Errorf("expected 2 records for tool a, got %d", stats.ByTool["a"])
	}
}
