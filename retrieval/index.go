package retrieval

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"corep-assistant/corpus"
	"corep-assistant/storage"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultBatchSize is the number of chunks embedded per request
	DefaultBatchSize = 5

	// VectorsKey and IDsKey name the two cache artifacts
	VectorsKey = "embeddings_vectors.json"
	IDsKey     = "embeddings_ids.json"
)

// Embedder turns text into vectors in a shared embedding space
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CacheEntry is one persisted chunk embedding
type CacheEntry struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}

// cacheManifest is the chunk-id list written after the vectors artifact.
// The cache is valid only when its ids match the corpus exactly.
type cacheManifest struct {
	IDs       []string  `json:"ids"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model,omitempty"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// errCacheInvalid marks a persisted cache that no longer matches the corpus
// or fails its integrity checks. Only such a cache is deleted.
var errCacheInvalid = errors.New("embedding cache invalid")

// EmbeddingIndex holds one vector per corpus chunk. Vectors are loaded from
// storage when the persisted cache matches the corpus, and otherwise built
// lazily in batches and persisted.
type EmbeddingIndex struct {
	corpus    *corpus.Corpus
	embedder  Embedder
	store     storage.Storage
	logger    *zap.Logger
	model     string
	batchSize int

	mu      sync.Mutex
	vectors [][]float32
}

// IndexOption configures an EmbeddingIndex
type IndexOption func(*EmbeddingIndex)

// IndexWithStorage persists the cache in store
func IndexWithStorage(store storage.Storage) IndexOption {
	return func(x *EmbeddingIndex) {
		x.store = store
	}
}

// IndexWithLogger sets the logger
func IndexWithLogger(logger *zap.Logger) IndexOption {
	return func(x *EmbeddingIndex) {
		x.logger = logger
	}
}

// IndexWithModel records the embedding model name; a cache written by another model is discarded
func IndexWithModel(model string) IndexOption {
	return func(x *EmbeddingIndex) {
		x.model = model
	}
}

// IndexWithBatchSize overrides DefaultBatchSize
func IndexWithBatchSize(n int) IndexOption {
	return func(x *EmbeddingIndex) {
		if n > 0 {
			x.batchSize = n
		}
	}
}

// NewEmbeddingIndex creates an empty index over c
func NewEmbeddingIndex(c *corpus.Corpus, embedder Embedder, opts ...IndexOption) *EmbeddingIndex {
	x := &EmbeddingIndex{
		corpus:    c,
		embedder:  embedder,
		logger:    zap.NewNop(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Vectors returns the loaded vectors in corpus order, or nil before Ensure
func (x *EmbeddingIndex) Vectors() [][]float32 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.vectors
}

// Ensure makes the vectors available, loading the cache or building it
func (x *EmbeddingIndex) Ensure(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.vectors != nil {
		return nil
	}

	if x.store != nil {
		vectors, err := x.load(ctx)
		switch {
		case errors.Is(err, errCacheInvalid):
			x.logger.Warn("discarding embedding cache", zap.Error(err))
			x.discard(ctx)
		case err != nil:
			// stored artifacts are left in place; a later load may succeed
			x.logger.Warn("embedding cache unreadable, rebuilding in memory", zap.Error(err))
			return x.build(ctx, false)
		case vectors != nil:
			x.vectors = vectors
			x.logger.Debug("loaded embedding cache", zap.Int("chunks", len(vectors)))
			return nil
		}
	}

	return x.build(ctx, true)
}

// Rebuild discards any cached vectors and embeds the whole corpus again
func (x *EmbeddingIndex) Rebuild(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.vectors = nil
	if x.store != nil {
		x.discard(ctx)
	}
	return x.build(ctx, true)
}

// build must be called with mu held. persist controls whether the new
// vectors are written to storage.
func (x *EmbeddingIndex) build(ctx context.Context, persist bool) error {
	if x.embedder == nil {
		return fmt.Errorf("%w: no embedder configured", ErrEmbeddingUnavailable)
	}

	texts := x.corpus.Texts()
	vectors := make([][]float32, 0, len(texts))
	dimension := 0

	for start := 0; start < len(texts); start += x.batchSize {
		end := min(start+x.batchSize, len(texts))
		batch, err := x.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("%w: embedding chunks %d-%d: %v", ErrEmbeddingUnavailable, start, end-1, err)
		}
		if len(batch) != end-start {
			return fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingUnavailable, end-start, len(batch))
		}
		for _, v := range batch {
			if dimension == 0 {
				dimension = len(v)
			}
			if len(v) == 0 || len(v) != dimension {
				return fmt.Errorf("%w: inconsistent vector dimension %d", ErrEmbeddingUnavailable, len(v))
			}
			vectors = append(vectors, v)
		}
	}

	x.vectors = vectors
	x.logger.Info("built corpus embeddings",
		zap.Int("chunks", len(vectors)),
		zap.Int("dimension", dimension),
	)

	if persist && x.store != nil {
		if err := x.persist(ctx, vectors); err != nil {
			// in-memory vectors remain usable
			x.logger.Warn("failed to persist embedding cache", zap.Error(err))
		}
	}
	return nil
}

// persist writes the vectors artifact first and the id manifest last, so a
// crash between the two writes leaves a manifest whose checksum no longer matches.
func (x *EmbeddingIndex) persist(ctx context.Context, vectors [][]float32) error {
	ids := x.corpus.IDs()
	entries := make([]CacheEntry, len(ids))
	for i, id := range ids {
		entries[i] = CacheEntry{ChunkID: id, Vector: vectors[i]}
	}

	raw, err := sonic.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}
	if err := x.store.Put(ctx, VectorsKey, raw); err != nil {
		return err
	}

	manifest, err := sonic.Marshal(cacheManifest{
		IDs:       ids,
		Dimension: len(vectors[0]),
		Model:     x.model,
		Checksum:  checksum(raw),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return x.store.Put(ctx, IDsKey, manifest)
}

// load returns nil vectors and no error when there is no cache. A mismatch
// with the current corpus or a corrupt artifact wraps errCacheInvalid; storage
// read failures are returned as they are.
func (x *EmbeddingIndex) load(ctx context.Context) ([][]float32, error) {
	rawManifest, err := x.store.Get(ctx, IDsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest cacheManifest
	if err := sonic.Unmarshal(rawManifest, &manifest); err != nil {
		return nil, fmt.Errorf("%w: corrupt id manifest: %v", errCacheInvalid, err)
	}
	if !x.corpus.SameIDs(manifest.IDs) {
		return nil, fmt.Errorf("%w: cached chunk ids differ from corpus", errCacheInvalid)
	}
	if x.model != "" && manifest.Model != x.model {
		return nil, fmt.Errorf("%w: cache built with model %q, want %q", errCacheInvalid, manifest.Model, x.model)
	}

	raw, err := x.store.Get(ctx, VectorsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: vectors artifact missing", errCacheInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("vectors artifact unreadable: %w", err)
	}
	if checksum(raw) != manifest.Checksum {
		return nil, fmt.Errorf("%w: vectors checksum mismatch", errCacheInvalid)
	}

	var entries []CacheEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: corrupt vectors artifact: %v", errCacheInvalid, err)
	}
	byID := make(map[string][]float32, len(entries))
	for _, e := range entries {
		if len(e.Vector) != manifest.Dimension || manifest.Dimension == 0 {
			return nil, fmt.Errorf("%w: vector for %s has dimension %d, want %d", errCacheInvalid, e.ChunkID, len(e.Vector), manifest.Dimension)
		}
		byID[e.ChunkID] = e.Vector
	}

	vectors := make([][]float32, x.corpus.Len())
	for i, id := range x.corpus.IDs() {
		v, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: vectors artifact missing chunk %s", errCacheInvalid, id)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (x *EmbeddingIndex) discard(ctx context.Context) {
	for _, key := range []string{IDsKey, VectorsKey} {
		if err := x.store.Delete(ctx, key); err != nil {
			x.logger.Warn("failed to delete cache artifact", zap.String("key", key), zap.Error(err))
		}
	}
}

func checksum(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
