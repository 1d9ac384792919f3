package planrepo

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPlanRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := PlanContent{
		Title:        "Dementia support plan",
		Status:       "draft",
		ProviderName: "CareLink Homecare",
		StaffIDs:     []string{"sta_1"},
		PrimaryStaff: "sta_1",
	}

	if err := svc.EnsurePlanRepo("cpl_1", initial, "Priya Shah"); err != nil {
		t.Fatalf("EnsurePlanRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "cpl_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Re-ensuring is a no-op
	if err := svc.EnsurePlanRepo("cpl_1", initial, "Priya Shah"); err != nil {
		t.Fatalf("EnsurePlanRepo() second call error = %v", err)
	}

	updated := initial
	updated.Status = "active"
	updated.StaffIDs = []string{"sta_1", "sta_2"}
	rev, err := svc.CommitSnapshot("cpl_1", updated, "Priya Shah", "Finalize plan as active")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if rev.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("cpl_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if history[0].Hash != rev.Hash {
		t.Errorf("expected newest revision first, got %s", history[0].Hash)
	}

	content, _, err := svc.GetRevision("cpl_1", rev.Hash)
	if err != nil {
		t.Fatalf("GetRevision() error = %v", err)
	}
	if content.Status != "active" {
		t.Errorf("expected status active, got %s", content.Status)
	}
	if len(content.StaffIDs) != 2 {
		t.Errorf("expected 2 staff ids, got %v", content.StaffIDs)
	}
}

func TestGetHeadContent(t *testing.T) {
	svc := New(t.TempDir())

	initial := PlanContent{Title: "Mobility plan", Status: "draft", ProviderName: "Thames Care"}
	if err := svc.EnsurePlanRepo("cpl_head", initial, "Priya Shah"); err != nil {
		t.Fatalf("EnsurePlanRepo() error = %v", err)
	}

	updated := initial
	updated.Status = "pending_client_approval"
	if _, err := svc.CommitSnapshot("cpl_head", updated, "Priya Shah", "Submit for approval"); err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	content, rev, err := svc.GetHeadContent("cpl_head")
	if err != nil {
		t.Fatalf("GetHeadContent() error = %v", err)
	}
	if content.Status != "pending_client_approval" {
		t.Errorf("expected head status pending_client_approval, got %s", content.Status)
	}
	if rev.Author != "Priya Shah" {
		t.Errorf("expected author Priya Shah, got %s", rev.Author)
	}
}

func TestHistoryMissingRepo(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("cpl_missing", 5); err == nil {
		t.Fatal("expected error for missing repo")
	}
}

func TestConcurrentSnapshots(t *testing.T) {
	svc := New(t.TempDir())

	initial := PlanContent{Title: "Concurrent plan", Status: "draft"}
	if err := svc.EnsurePlanRepo("cpl_conc", initial, "Priya Shah"); err != nil {
		t.Fatalf("EnsurePlanRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := initial
			content.Status = "active"
			if _, err := svc.CommitSnapshot("cpl_conc", content, "Priya Shah", "Update"); err != nil {
				t.Errorf("CommitSnapshot() error = %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := svc.History("cpl_conc", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 6 {
		t.Errorf("expected 6 revisions (baseline + 5 snapshots), got %d", len(history))
	}
}
