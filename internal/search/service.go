package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexClient indexes a client (fire-and-forget to Meilisearch).
func (s *Service) IndexClient(c ClientRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexClient(c); err != nil {
			log.Printf("search: index client %s: %v", c.ID, err)
		}
	}()
}

// IndexCarePlan indexes a care plan (fire-and-forget to Meilisearch).
func (s *Service) IndexCarePlan(p CarePlanRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCarePlan(p); err != nil {
			log.Printf("search: index care plan %s: %v", p.ID, err)
		}
	}()
}

// IndexVisit indexes a visit (fire-and-forget to Meilisearch).
func (s *Service) IndexVisit(v VisitRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexVisit(v); err != nil {
			log.Printf("search: index visit %s: %v", v.ID, err)
		}
	}()
}

// DeleteClient removes a client from the search index (fire-and-forget).
func (s *Service) DeleteClient(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteClient(id); err != nil {
			log.Printf("search: delete client %s: %v", id, err)
		}
	}()
}

// DeleteCarePlan removes a care plan from the search index (fire-and-forget).
func (s *Service) DeleteCarePlan(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCarePlan(id); err != nil {
			log.Printf("search: delete care plan %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch in bulk.
func (s *Service) ReindexAll(clients []ClientRecord, plans []CarePlanRecord, visits []VisitRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(clients) > 0 {
		if err := s.meili.IndexClients(clients); err != nil {
			log.Printf("search: reindex clients: %v", err)
		}
	}
	if len(plans) > 0 {
		if err := s.meili.IndexCarePlans(plans); err != nil {
			log.Printf("search: reindex care plans: %v", err)
		}
	}
	if len(visits) > 0 {
		if err := s.meili.IndexVisits(visits); err != nil {
			log.Printf("search: reindex visits: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	clients, plans, visits, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(clients, plans, visits)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
