package model

// PipelineState carries intermediate values through one pipeline run.
// Each stage writes only its own field; later stages read but never
// rewrite earlier outputs. The state lives for a single invocation.
type PipelineState struct {
	Question      string
	History       string
	SearchResults []string
	VectorContext string
	Answer        string
}

// AgentResult is the immutable outcome of one pipeline run.
type AgentResult struct {
	Answer        string   `json:"answer"`
	SearchResults []string `json:"search_results"`
	VectorContext string   `json:"vector_context"`
}

// SearchHit is one ranked result from the market signal source.
type SearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// MemoryRecord is the unit indexed into the vector store. Records are
// appended only; nothing in this codebase mutates or deletes them.
type MemoryRecord struct {
	Text   string
	ChatID ChatID
	Role   string
}
