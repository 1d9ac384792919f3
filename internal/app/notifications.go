package app

import (
	"context"

	"carelink/api/internal/store"
)

func (s *Service) ListNotifications(ctx context.Context, session Session, limit int) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, session.UserID, limit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, session.UserID, notificationID)
}

func (s *Service) UnreadNotificationCount(ctx context.Context, session Session) (int, error) {
	return s.store.UnreadNotificationCount(ctx, session.UserID)
}
