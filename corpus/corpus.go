// Package corpus holds the immutable set of regulatory text chunks that
// retrieval ranks against. A Corpus is built once at startup and shared
// read-only by every component that needs it.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"corep-assistant/data"
	"corep-assistant/models"
)

// ErrEmptyCorpus is returned when a source yields no chunks
var ErrEmptyCorpus = errors.New("corpus contains no chunks")

// Loader is a source of regulatory chunks, such as a database table
type Loader interface {
	LoadChunks(ctx context.Context) ([]models.RegulatoryChunk, error)
}

// Corpus is an ordered, immutable collection of chunks with unique IDs
type Corpus struct {
	chunks []models.RegulatoryChunk
	index  map[string]int
}

// New validates chunks and builds a corpus preserving their order
func New(chunks []models.RegulatoryChunk) (*Corpus, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}

	c := &Corpus{
		chunks: make([]models.RegulatoryChunk, len(chunks)),
		index:  make(map[string]int, len(chunks)),
	}
	for i, chunk := range chunks {
		chunk.ID = strings.TrimSpace(chunk.ID)
		if chunk.ID == "" {
			return nil, fmt.Errorf("chunk %d has no id", i)
		}
		if _, dup := c.index[chunk.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id: %s", chunk.ID)
		}
		if strings.TrimSpace(chunk.Text) == "" {
			return nil, fmt.Errorf("chunk %s has no text", chunk.ID)
		}
		chunk.TemplateIDs = uniqueStrings(chunk.TemplateIDs)
		chunk.Keywords = append([]string(nil), chunk.Keywords...)
		c.chunks[i] = chunk
		c.index[chunk.ID] = i
	}
	return c, nil
}

// Parse decodes a JSON array of chunks
func Parse(raw []byte) (*Corpus, error) {
	var chunks []models.RegulatoryChunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	return New(chunks)
}

// LoadFile reads a JSON corpus from disk
func LoadFile(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}
	return Parse(raw)
}

// Load builds a corpus from an external source
func Load(ctx context.Context, loader Loader) (*Corpus, error) {
	chunks, err := loader.LoadChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	return New(chunks)
}

// Default returns the embedded corpus
func Default() (*Corpus, error) {
	return Parse(data.RegulatoryCorpus)
}

// Len returns the number of chunks
func (c *Corpus) Len() int {
	return len(c.chunks)
}

// Chunks returns the chunks in insertion order. Callers must not modify them.
func (c *Corpus) Chunks() []models.RegulatoryChunk {
	return c.chunks
}

// Chunk returns the chunk at position i
func (c *Corpus) Chunk(i int) models.RegulatoryChunk {
	return c.chunks[i]
}

// Get looks a chunk up by ID
func (c *Corpus) Get(id string) (models.RegulatoryChunk, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.RegulatoryChunk{}, false
	}
	return c.chunks[i], true
}

// IDs returns chunk IDs in insertion order
func (c *Corpus) IDs() []string {
	ids := make([]string, len(c.chunks))
	for i, chunk := range c.chunks {
		ids[i] = chunk.ID
	}
	return ids
}

// Texts returns chunk texts in insertion order
func (c *Corpus) Texts() []string {
	texts := make([]string, len(c.chunks))
	for i, chunk := range c.chunks {
		texts[i] = chunk.Text
	}
	return texts
}

// SameIDs reports whether ids is exactly the corpus ID set
func (c *Corpus) SameIDs(ids []string) bool {
	if len(ids) != len(c.chunks) {
		return false
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := c.index[id]; !ok {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
