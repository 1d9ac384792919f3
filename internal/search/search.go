package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultClient   ResultType = "client"
	ResultCarePlan ResultType = "care_plan"
	ResultVisit    ResultType = "visit"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	ClientID string     `json:"clientId"`
	BranchID string     `json:"branchId"`
	Status   string     `json:"status,omitempty"`
}

// Query describes a search request. BranchID is the caller's tenant scope and
// is always applied. ClientScope restricts hits to one client's own records
// (set for portal users with the client role).
type Query struct {
	Text        string
	FilterType  ResultType // empty = all types
	BranchID    string
	ClientScope string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexClient(c ClientRecord) error
	IndexCarePlan(p CarePlanRecord) error
	IndexVisit(v VisitRecord) error
	DeleteClient(id string) error
	DeleteCarePlan(id string) error
}

// ClientRecord is the data we index for a client.
type ClientRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	BranchID string `json:"branchId"`
	Status   string `json:"status"`
}

// CarePlanRecord is the data we index for a care plan.
type CarePlanRecord struct {
	ID           string `json:"id"`
	DisplayID    string `json:"displayId"`
	Title        string `json:"title"`
	ProviderName string `json:"providerName"`
	ClientID     string `json:"clientId"`
	BranchID     string `json:"branchId"`
	Status       string `json:"status"`
}

// VisitRecord is the data we index for a visit.
type VisitRecord struct {
	ID       string `json:"id"`
	Notes    string `json:"notes"`
	ClientID string `json:"clientId"`
	BranchID string `json:"branchId"`
	Status   string `json:"status"`
}
