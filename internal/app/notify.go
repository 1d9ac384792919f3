package app

import (
	"context"
	"fmt"
	"log"

	"carelink/api/internal/store"
	"carelink/api/internal/util"
)

// dispatchAssignmentNotifications tells affected staff about an assignment
// change. It is strictly best-effort: a notification that cannot be built or
// written is logged and dropped, never surfaced to the caller, because the
// assignment sync has already committed by the time this runs.
//
// Added staff get a high-priority "assigned" notification, removed staff a
// medium-priority "unassigned" one. Staff whose assignment did not change are
// told about the plan update only when notifyUnchanged is set (a finalize is
// worth telling them about, a no-op sync is not).
func (s *Service) dispatchAssignmentNotifications(ctx context.Context, plan store.CarePlan, diff store.AssignmentDiff, notifyUnchanged bool) error {
	summary, err := s.store.GetClientSummary(ctx, plan.ClientID)
	if err != nil {
		log.Printf("notify: client summary for %s: %v", plan.ClientID, err)
		return nil
	}

	staffIDs := make([]string, 0, len(diff.Added)+len(diff.Removed)+len(diff.Unchanged))
	staffIDs = append(staffIDs, diff.Added...)
	staffIDs = append(staffIDs, diff.Removed...)
	if notifyUnchanged {
		staffIDs = append(staffIDs, diff.Unchanged...)
	}
	if len(staffIDs) == 0 {
		return nil
	}

	userIDs, err := s.store.ResolveStaffUserIDs(ctx, staffIDs)
	if err != nil {
		log.Printf("notify: resolve staff users for plan %s: %v", plan.ID, err)
		return nil
	}

	items := make([]store.Notification, 0, len(staffIDs))
	add := func(staffID, event, action, priority, title, message string) {
		userID, ok := userIDs[staffID]
		if !ok {
			// Staff without a portal account simply get nothing.
			return
		}
		items = append(items, store.Notification{
			ID:             util.NewID("ntf"),
			UserID:         userID,
			BranchID:       summary.BranchID,
			OrganizationID: summary.OrganizationID,
			Type:           event,
			Category:       "care_plan",
			Priority:       priority,
			Title:          title,
			Message:        message,
			// Payload shape consumed by the portal; keys are part of the
			// notification contract.
			Data: map[string]any{
				"care_plan_id":         plan.ID,
				"action":               action,
				"care_plan_title":      plan.Title,
				"care_plan_display_id": plan.DisplayID,
				"client_name":          summary.Name,
			},
		})
	}

	for _, staffID := range diff.Added {
		add(staffID, "assignment.assigned", "assigned", "high",
			"New care plan assignment",
			fmt.Sprintf("You have been assigned to the care plan for %s.", summary.Name))
	}
	for _, staffID := range diff.Removed {
		add(staffID, "assignment.unassigned", "unassigned", "medium",
			"Removed from care plan",
			fmt.Sprintf("You are no longer assigned to the care plan for %s.", summary.Name))
	}
	if notifyUnchanged {
		for _, staffID := range diff.Unchanged {
			add(staffID, "assignment.updated", "updated", "low",
				"Care plan updated",
				fmt.Sprintf("The care plan for %s was updated.", summary.Name))
		}
	}

	if len(items) == 0 {
		return nil
	}
	if err := s.store.InsertNotifications(ctx, items); err != nil {
		log.Printf("notify: insert %d notifications for plan %s: %v", len(items), plan.ID, err)
	}
	return nil
}

// notifyClientPlanAvailable tells the client their plan is ready to review,
// in-app and (when SMTP is configured) by email.
func (s *Service) notifyClientPlanAvailable(ctx context.Context, plan store.CarePlan) error {
	client, err := s.store.GetClient(ctx, plan.ClientID)
	if err != nil {
		return fmt.Errorf("load client %s: %w", plan.ClientID, err)
	}
	if client.UserID == nil {
		// Client has no portal account; nothing to deliver to.
		return nil
	}

	summary, err := s.store.GetClientSummary(ctx, plan.ClientID)
	if err != nil {
		return fmt.Errorf("client summary %s: %w", plan.ClientID, err)
	}

	notification := store.Notification{
		ID:             util.NewID("ntf"),
		UserID:         *client.UserID,
		BranchID:       plan.BranchID,
		OrganizationID: summary.OrganizationID,
		Type:           "care_plan.available",
		Category:       "care_plan",
		Priority:       "high",
		Title:          "Your care plan is ready",
		Message:        fmt.Sprintf("Your care plan %q is now %s.", plan.Title, plan.Status),
		Data: map[string]any{
			"carePlanId": plan.ID,
			"status":     plan.Status,
		},
	}
	if err := s.store.InsertNotifications(ctx, []store.Notification{notification}); err != nil {
		return fmt.Errorf("insert client notification: %w", err)
	}

	if s.email != nil && s.email.IsConfigured() {
		user, err := s.store.GetUserByID(ctx, *client.UserID)
		if err != nil {
			return fmt.Errorf("load portal user: %w", err)
		}
		if err := s.email.SendPlanAvailableEmail(user.Email, user.DisplayName, plan.Title, s.cfg.PortalURL); err != nil {
			return fmt.Errorf("send plan available email: %w", err)
		}
	}
	return nil
}
