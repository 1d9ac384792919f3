package app

import (
	"context"
	"errors"
	"log"

	"carelink/api/internal/rbac"
	"carelink/api/internal/search"
)

var errNoLinkedClient = errors.New("no client record linked to user")

// Search runs a tenant-scoped full-text search. Clients are additionally
// scoped to their own records: the roster index is skipped entirely and plan
// or visit hits are filtered to their client id.
func (s *Service) Search(ctx context.Context, session Session, text string, filterType string, limit, offset int) (search.Response, error) {
	q := search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		BranchID:   session.BranchID,
		Limit:      limit,
		Offset:     offset,
	}
	if rbac.Normalize(session.Role) == rbac.RoleClient {
		clientID, err := s.clientIDForUser(ctx, session)
		if err != nil {
			log.Printf("search: resolve client for user %s: %v", session.UserID, err)
			return search.Response{Results: []search.Result{}, Query: text}, nil
		}
		q.ClientScope = clientID
	}
	return s.search.Search(q), nil
}

// clientIDForUser finds the client record linked to a portal user account.
func (s *Service) clientIDForUser(ctx context.Context, session Session) (string, error) {
	clients, err := s.store.ListClients(ctx, session.BranchID)
	if err != nil {
		return "", err
	}
	for _, client := range clients {
		if client.UserID != nil && *client.UserID == session.UserID {
			return client.ID, nil
		}
	}
	return "", errNoLinkedClient
}
