package model

// WebSnippet is a live web-search result merged into retrieval output.
type WebSnippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

// RetrievedChunk is a local chunk plus its similarity score.
type RetrievedChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// RetrievalResult is the transient, per-query ranked context. Order is the
// merge order the orchestrator consumes: strong locals, web snippets, weak
// locals.
type RetrievalResult struct {
	Local []RetrievedChunk `json:"local"`
	Web   []WebSnippet     `json:"web"`
	// Order references entries above: "local:<i>" or "web:<i>".
	Order []string `json:"order"`
	// StaleExcluded reports that the owner has documents indexed under a
	// different embedding model; those documents were left out of Local
	// and need re-ingestion to become searchable again.
	StaleExcluded bool `json:"stale_excluded,omitempty"`
}

func (r *RetrievalResult) Empty() bool {
	return len(r.Local) == 0 && len(r.Web) == 0
}

// Citation identifies a context piece actually included in the prompt.
type Citation struct {
	DocumentID string  `json:"document_id,omitempty"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Ordinal    int     `json:"ordinal,omitempty"`
	URL        string  `json:"url,omitempty"`
	Title      string  `json:"title,omitempty"`
	Score      float32 `json:"score,omitempty"`
}
