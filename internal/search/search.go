package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBoard   ResultType = "board"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	BoardID   string     `json:"boardId"`
	ProjectID string     `json:"projectId,omitempty"`
}

// Query describes a search request. OrgID is mandatory: results never
// cross organization boundaries.
type Query struct {
	Text            string
	OrgID           string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	Limit           int
	Offset          int
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
	IndexBoard(b BoardRecord) error
	IndexComment(c CommentRecord) error
	DeleteBoard(id string) error
	DeleteComment(id string) error
}

// BoardRecord is the data we index for a board.
type BoardRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OrgID       string `json:"orgId"`
	ProjectID   string `json:"projectId"`
	Status      string `json:"status"`
}

// CommentRecord is the data we index for a board comment.
type CommentRecord struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	AuthorName string `json:"authorName"`
	BoardID    string `json:"boardId"`
	OrgID      string `json:"orgId"`
	ProjectID  string `json:"projectId"`
}
