package models

// Hit is a single ranked chunk returned by a search.
type Hit struct {
	Rank       int     `json:"rank"`
	Filename   string  `json:"filename"`
	Owner      string  `json:"owner"`
	SequenceID int     `json:"sequence_id"`
	Score      float64 `json:"score"`
	// SummaryScore and ContentScore are set for the paths that returned this chunk.
	SummaryScore *float64 `json:"summary_score,omitempty"`
	ContentScore *float64 `json:"content_score,omitempty"`
	IsPublic     bool     `json:"is_public"`
	Summary      string   `json:"summary,omitempty"`
	Content      string   `json:"content"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string     `json:"query"`
	Mode      SearchMode `json:"mode"`
	Results   []*Hit     `json:"results"`
	Total     int        `json:"total"`
	QueryTime int64      `json:"query_time_ms"`
}
