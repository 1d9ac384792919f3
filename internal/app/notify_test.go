package app

import (
	"context"
	"errors"
	"testing"

	"carelink/api/internal/store"
)

func testPlan() store.CarePlan {
	staffID := "sta_1"
	return store.CarePlan{
		ID:           "cpl_1",
		DisplayID:    "CP-1001",
		BranchID:     "brn_1",
		ClientID:     "cli_1",
		Title:        "Dementia support plan",
		Status:       store.PlanStatusActive,
		StaffID:      &staffID,
		ProviderName: "CareLink Homecare",
	}
}

func TestDispatchNotificationsPriorities(t *testing.T) {
	var inserted []store.Notification
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{ID: "cli_1", Name: "Margaret Hale", BranchID: "brn_1"}, nil
		},
		ResolveStaffUserIDsFn: func(ctx context.Context, staffIDs []string) (map[string]string, error) {
			return map[string]string{"sta_1": "usr_1", "sta_2": "usr_2", "sta_3": "usr_3"}, nil
		},
		InsertNotificationsFn: func(ctx context.Context, items []store.Notification) error {
			inserted = items
			return nil
		},
	}
	svc := newTestService(fs)

	diff := store.AssignmentDiff{
		Added:     []string{"sta_1"},
		Removed:   []string{"sta_2"},
		Unchanged: []string{"sta_3"},
	}
	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), diff, true); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}

	if len(inserted) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(inserted))
	}
	byUser := map[string]store.Notification{}
	for _, item := range inserted {
		byUser[item.UserID] = item
	}
	if got := byUser["usr_1"]; got.Priority != "high" || got.Type != "assignment.assigned" {
		t.Errorf("added staff notification = %s/%s", got.Priority, got.Type)
	}
	if got := byUser["usr_2"]; got.Priority != "medium" || got.Type != "assignment.unassigned" {
		t.Errorf("removed staff notification = %s/%s", got.Priority, got.Type)
	}
	if got := byUser["usr_3"]; got.Priority != "low" || got.Type != "assignment.updated" {
		t.Errorf("unchanged staff notification = %s/%s", got.Priority, got.Type)
	}
}

func TestDispatchNotificationsDataPayload(t *testing.T) {
	var inserted []store.Notification
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{ID: "cli_1", Name: "Margaret Hale", BranchID: "brn_1"}, nil
		},
		ResolveStaffUserIDsFn: func(ctx context.Context, staffIDs []string) (map[string]string, error) {
			return map[string]string{"sta_1": "usr_1", "sta_2": "usr_2"}, nil
		},
		InsertNotificationsFn: func(ctx context.Context, items []store.Notification) error {
			inserted = items
			return nil
		},
	}
	svc := newTestService(fs)

	diff := store.AssignmentDiff{Added: []string{"sta_1"}, Removed: []string{"sta_2"}}
	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), diff, false); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(inserted))
	}

	actions := map[string]string{}
	for _, item := range inserted {
		if item.Data["care_plan_id"] != "cpl_1" {
			t.Errorf("care_plan_id = %v", item.Data["care_plan_id"])
		}
		if item.Data["care_plan_title"] != "Dementia support plan" {
			t.Errorf("care_plan_title = %v", item.Data["care_plan_title"])
		}
		if item.Data["care_plan_display_id"] != "CP-1001" {
			t.Errorf("care_plan_display_id = %v", item.Data["care_plan_display_id"])
		}
		if item.Data["client_name"] != "Margaret Hale" {
			t.Errorf("client_name = %v", item.Data["client_name"])
		}
		action, _ := item.Data["action"].(string)
		actions[item.UserID] = action
	}
	if actions["usr_1"] != "assigned" || actions["usr_2"] != "unassigned" {
		t.Errorf("per-item actions = %v", actions)
	}
}

func TestDispatchNotificationsSkipsUnchangedWhenNotAsked(t *testing.T) {
	var inserted []store.Notification
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{ID: "cli_1", Name: "Margaret Hale", BranchID: "brn_1"}, nil
		},
		ResolveStaffUserIDsFn: func(ctx context.Context, staffIDs []string) (map[string]string, error) {
			out := map[string]string{}
			for _, id := range staffIDs {
				out[id] = "usr_" + id
			}
			return out, nil
		},
		InsertNotificationsFn: func(ctx context.Context, items []store.Notification) error {
			inserted = items
			return nil
		},
	}
	svc := newTestService(fs)

	diff := store.AssignmentDiff{Added: []string{"sta_1"}, Unchanged: []string{"sta_3"}}
	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), diff, false); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected only the added-staff notification, got %d", len(inserted))
	}
	if inserted[0].Type != "assignment.assigned" {
		t.Errorf("unexpected notification type %s", inserted[0].Type)
	}
}

func TestDispatchNotificationsClientLookupFailureIsSwallowed(t *testing.T) {
	resolved := false
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{}, errors.New("db down")
		},
		ResolveStaffUserIDsFn: func(ctx context.Context, staffIDs []string) (map[string]string, error) {
			resolved = true
			return nil, nil
		},
	}
	svc := newTestService(fs)

	diff := store.AssignmentDiff{Added: []string{"sta_1"}}
	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), diff, true); err != nil {
		t.Fatalf("expected nil error on client lookup failure, got %v", err)
	}
	if resolved {
		t.Error("staff resolution should not run when the client lookup fails")
	}
}

func TestDispatchNotificationsSkipsUnresolvedStaff(t *testing.T) {
	var inserted []store.Notification
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{ID: "cli_1", Name: "Margaret Hale", BranchID: "brn_1"}, nil
		},
		ResolveStaffUserIDsFn: func(ctx context.Context, staffIDs []string) (map[string]string, error) {
			// sta_2 has no portal account.
			return map[string]string{"sta_1": "usr_1"}, nil
		},
		InsertNotificationsFn: func(ctx context.Context, items []store.Notification) error {
			inserted = items
			return nil
		},
	}
	svc := newTestService(fs)

	diff := store.AssignmentDiff{Added: []string{"sta_1", "sta_2"}}
	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), diff, true); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(inserted))
	}
	if inserted[0].UserID != "usr_1" {
		t.Errorf("notification went to %s", inserted[0].UserID)
	}
}

func TestDispatchNotificationsInsertFailureIsSwallowed(t *testing.T) {
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{ID: "cli_1", Name: "Margaret Hale", BranchID: "brn_1"}, nil
		},
		ResolveStaffUserIDsFn: func(ctx context.Context, staffIDs []string) (map[string]string, error) {
			return map[string]string{"sta_1": "usr_1"}, nil
		},
		InsertNotificationsFn: func(ctx context.Context, items []store.Notification) error {
			return errors.New("insert failed")
		},
	}
	svc := newTestService(fs)

	diff := store.AssignmentDiff{Added: []string{"sta_1"}}
	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), diff, true); err != nil {
		t.Fatalf("expected nil error on insert failure, got %v", err)
	}
}

func TestDispatchNotificationsEmptyDiffNoInsert(t *testing.T) {
	insertCalled := false
	fs := &fakeStore{
		GetClientSummaryFn: func(ctx context.Context, id string) (store.ClientSummary, error) {
			return store.ClientSummary{ID: "cli_1", Name: "Margaret Hale", BranchID: "brn_1"}, nil
		},
		InsertNotificationsFn: func(ctx context.Context, items []store.Notification) error {
			insertCalled = true
			return nil
		},
	}
	svc := newTestService(fs)

	if err := svc.dispatchAssignmentNotifications(context.Background(), testPlan(), store.AssignmentDiff{}, true); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if insertCalled {
		t.Error("no notifications should be written for an empty diff")
	}
}
