package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across clients, care_plans, and visits
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Clients sub-query
	if (q.FilterType == "" || q.FilterType == ResultClient) && q.ClientScope == "" {
		clientWhere := "c.fts @@ " + tsQuery
		if q.BranchID != "" {
			clientWhere += fmt.Sprintf(" AND c.branch_id = $%d", argN)
			args = append(args, q.BranchID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'client'::text AS type, c.id, c.first_name || ' ' || c.last_name AS title,
				ts_headline('english', coalesce(c.address, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.id AS client_id, c.branch_id, c.status,
				ts_rank(c.fts, %s) AS rank
			FROM clients c
			WHERE %s`, tsQuery, tsQuery, clientWhere))
	}

	// Care plans sub-query
	if q.FilterType == "" || q.FilterType == ResultCarePlan {
		planWhere := "cp.fts @@ " + tsQuery
		if q.BranchID != "" {
			planWhere += fmt.Sprintf(" AND cp.branch_id = $%d", argN)
			args = append(args, q.BranchID)
			argN++
		}
		if q.ClientScope != "" {
			planWhere += fmt.Sprintf(" AND cp.client_id = $%d", argN)
			args = append(args, q.ClientScope)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'care_plan'::text AS type, cp.id, cp.title,
				ts_headline('english', coalesce(cp.provider_name, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				cp.client_id, cp.branch_id, cp.status,
				ts_rank(cp.fts, %s) AS rank
			FROM care_plans cp
			WHERE %s`, tsQuery, tsQuery, planWhere))
	}

	// Visits sub-query
	if q.FilterType == "" || q.FilterType == ResultVisit {
		visitWhere := "v.fts @@ " + tsQuery
		if q.BranchID != "" {
			visitWhere += fmt.Sprintf(" AND v.branch_id = $%d", argN)
			args = append(args, q.BranchID)
			argN++
		}
		if q.ClientScope != "" {
			visitWhere += fmt.Sprintf(" AND v.client_id = $%d", argN)
			args = append(args, q.ClientScope)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'visit'::text AS type, v.id, v.status AS title,
				ts_headline('english', coalesce(v.notes, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				v.client_id, v.branch_id, v.status,
				ts_rank(v.fts, %s) AS rank
			FROM visits v
			WHERE %s`, tsQuery, tsQuery, visitWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, client_id, branch_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ClientID, &r.BranchID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ClientRecord, []CarePlanRecord, []VisitRecord, error) {
	clientRows, err := p.db.QueryContext(ctx, `
		SELECT id, first_name || ' ' || last_name, COALESCE(address, ''), branch_id, status
		FROM clients
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load clients: %w", err)
	}
	defer clientRows.Close()

	clients := make([]ClientRecord, 0)
	for clientRows.Next() {
		var c ClientRecord
		if err := clientRows.Scan(&c.ID, &c.Name, &c.Address, &c.BranchID, &c.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := clientRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate clients: %w", err)
	}

	planRows, err := p.db.QueryContext(ctx, `
		SELECT id, display_id, title, COALESCE(provider_name, ''), client_id, branch_id, status
		FROM care_plans
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load care plans: %w", err)
	}
	defer planRows.Close()

	plans := make([]CarePlanRecord, 0)
	for planRows.Next() {
		var cp CarePlanRecord
		if err := planRows.Scan(&cp.ID, &cp.DisplayID, &cp.Title, &cp.ProviderName, &cp.ClientID, &cp.BranchID, &cp.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan care plan: %w", err)
		}
		plans = append(plans, cp)
	}
	if err := planRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate care plans: %w", err)
	}

	visitRows, err := p.db.QueryContext(ctx, `
		SELECT id, COALESCE(notes, ''), client_id, branch_id, status
		FROM visits
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load visits: %w", err)
	}
	defer visitRows.Close()

	visits := make([]VisitRecord, 0)
	for visitRows.Next() {
		var v VisitRecord
		if err := visitRows.Scan(&v.ID, &v.Notes, &v.ClientID, &v.BranchID, &v.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := visitRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate visits: %w", err)
	}

	return clients, plans, visits, nil
}
