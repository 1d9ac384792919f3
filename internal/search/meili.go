package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxClients   = "carelink_clients"
	idxCarePlans = "carelink_care_plans"
	idxVisits    = "carelink_visits"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxClients,
			primaryKey: "id",
			filterable: []string{"branchId", "status"},
			searchable: []string{"name", "address"},
		},
		{
			uid:        idxCarePlans,
			primaryKey: "id",
			filterable: []string{"branchId", "status", "clientId"},
			searchable: []string{"title", "displayId", "providerName"},
		},
		{
			uid:        idxVisits,
			primaryKey: "id",
			filterable: []string{"branchId", "status", "clientId"},
			searchable: []string{"notes"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxClients, ResultClient},
		{idxCarePlans, ResultCarePlan},
		{idxVisits, ResultVisit},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		if q.ClientScope != "" && ti.rtyp == ResultClient {
			// Portal clients search their own plans and visits, not the roster.
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		var filters []string
		if q.BranchID != "" {
			filters = append(filters, fmt.Sprintf("branchId = %q", q.BranchID))
		}
		if q.ClientScope != "" {
			filters = append(filters, fmt.Sprintf("clientId = %q", q.ClientScope))
		}
		if len(filters) > 0 {
			sr.Filter = filters
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxClients:
		return ResultClient
	case idxCarePlans:
		return ResultCarePlan
	case idxVisits:
		return ResultVisit
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.ClientID = decodeString(hit, "clientId")
	r.BranchID = decodeString(hit, "branchId")
	r.Status = decodeString(hit, "status")

	switch rtyp {
	case ResultClient:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "address"), decodeString(hit, "address"))
		r.ClientID = r.ID // client's own ID
	case ResultCarePlan:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "providerName"), decodeString(hit, "providerName"))
	case ResultVisit:
		r.Title = firstNonBlank(decodeFormattedString(hit, "status"), decodeString(hit, "status"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "notes"), decodeString(hit, "notes"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexClient adds or updates a client in the search index.
func (m *Meili) IndexClient(c ClientRecord) error {
	_, err := m.client.Index(idxClients).AddDocuments([]ClientRecord{c}, nil)
	return err
}

// IndexCarePlan adds or updates a care plan in the search index.
func (m *Meili) IndexCarePlan(p CarePlanRecord) error {
	_, err := m.client.Index(idxCarePlans).AddDocuments([]CarePlanRecord{p}, nil)
	return err
}

// IndexVisit adds or updates a visit in the search index.
func (m *Meili) IndexVisit(v VisitRecord) error {
	_, err := m.client.Index(idxVisits).AddDocuments([]VisitRecord{v}, nil)
	return err
}

// DeleteClient removes a client from the search index.
func (m *Meili) DeleteClient(id string) error {
	_, err := m.client.Index(idxClients).DeleteDocument(id, nil)
	return err
}

// DeleteCarePlan removes a care plan from the search index.
func (m *Meili) DeleteCarePlan(id string) error {
	_, err := m.client.Index(idxCarePlans).DeleteDocument(id, nil)
	return err
}

// IndexClients bulk-indexes clients.
func (m *Meili) IndexClients(clients []ClientRecord) error {
	if len(clients) == 0 {
		return nil
	}
	_, err := m.client.Index(idxClients).AddDocuments(clients, nil)
	return err
}

// IndexCarePlans bulk-indexes care plans.
func (m *Meili) IndexCarePlans(plans []CarePlanRecord) error {
	if len(plans) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCarePlans).AddDocuments(plans, nil)
	return err
}

// IndexVisits bulk-indexes visits.
func (m *Meili) IndexVisits(visits []VisitRecord) error {
	if len(visits) == 0 {
		return nil
	}
	_, err := m.client.Index(idxVisits).AddDocuments(visits, nil)
	return err
}
