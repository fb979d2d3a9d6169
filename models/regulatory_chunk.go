package models

// RegulatoryChunk represents a chunk of regulatory text from the corpus
type RegulatoryChunk struct {
	ID          string   `json:"chunk_id"`
	Text        string   `json:"text"`
	Source      string   `json:"source"`
	Section     string   `json:"section_ref"`
	TemplateIDs []string `json:"template_ids"`
	Keywords    []string `json:"keywords"`
}

// Citation returns the reference used when quoting the chunk, e.g. "CRR, Article 26(1)"
func (c RegulatoryChunk) Citation() string {
	if c.Section == "" {
		return c.Source
	}
	return c.Source + ", " + c.Section
}

// ScoredChunk is a retrieved chunk together with its relevance score
type ScoredChunk struct {
	Chunk RegulatoryChunk `json:"chunk"`
	Score float64         `json:"score"`
}
