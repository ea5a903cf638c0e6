// Package memory implements the knowledge memory store: vector-embedded,
// relationship-linked nodes with semantic retrieval, graph traversal,
// consolidation, and pruning. All mutation goes through the store API;
// callers only ever hold clones of returned data.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/cortex/internal/memory/backend"
	"github.com/haasonsaas/cortex/internal/memory/embeddings"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/pkg/models"
)

// Config contains tuning parameters for the memory store.
type Config struct {
	// MaxNodes caps the node table. Store returns ErrResourceExhausted at
	// capacity; there is no silent eviction.
	MaxNodes int `yaml:"max_nodes"`

	// Dimension is the embedding dimension. When an external provider is
	// configured its dimension wins.
	Dimension int `yaml:"dimension"`

	// LinkThreshold is the minimum similarity for automatic
	// semantic_similarity edges created on Store.
	LinkThreshold float64 `yaml:"link_threshold"`

	// LinkTopK bounds how many semantic edges one Store call creates.
	LinkTopK int `yaml:"link_top_k"`

	// MergeThreshold is the near-duplicate similarity for Consolidate.
	MergeThreshold float64 `yaml:"merge_threshold"`

	// RecencyHalfLife controls the recency decay term in search ranking.
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`

	// QueryCacheSize bounds the search-result LRU.
	QueryCacheSize int `yaml:"query_cache_size"`

	// EmbeddingCacheSize bounds the query-embedding LRU.
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`

	// CoAccessWindow is the window within which two nodes' last accesses
	// count as co-access during consolidation.
	CoAccessWindow time.Duration `yaml:"co_access_window"`
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxNodes == 0 {
		c.MaxNodes = 10000
	}
	if c.Dimension == 0 {
		c.Dimension = 256
	}
	if c.LinkThreshold == 0 {
		c.LinkThreshold = 0.6
	}
	if c.LinkTopK == 0 {
		c.LinkTopK = 5
	}
	if c.MergeThreshold == 0 {
		c.MergeThreshold = 0.9
	}
	if c.RecencyHalfLife == 0 {
		c.RecencyHalfLife = 24 * time.Hour
	}
	if c.QueryCacheSize == 0 {
		c.QueryCacheSize = 512
	}
	if c.EmbeddingCacheSize == 0 {
		c.EmbeddingCacheSize = 1000
	}
	if c.CoAccessWindow == 0 {
		c.CoAccessWindow = 10 * time.Minute
	}
}

// Options carries the store's collaborators.
type Options struct {
	// Provider is the external embedding provider. Nil means the fallback
	// vectorizer is used for everything.
	Provider embeddings.Provider

	// Backend is the durable store. Nil defaults to the in-process backend.
	Backend backend.Backend

	// Scorer computes importance at node creation. Nil defaults to
	// HeuristicScorer.
	Scorer Scorer

	// Logger receives warnings for degraded operations. Nil defaults to
	// slog.Default().
	Logger *slog.Logger

	// Metrics receives store operation counts and fallback events. Nil
	// disables instrumentation.
	Metrics *observability.Metrics
}

// cachedHit is a search-result cache entry: node id plus raw similarity.
type cachedHit struct {
	id         string
	similarity float64
}

// Store owns all knowledge nodes and relationships. Reads take the shared
// lock; Store/Consolidate/PruneWeakRelationships take the exclusive lock
// for the duration of their structural mutation.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*models.MemoryNode
	rels  map[string]*models.MemoryRelationship

	// generation increments on every structural mutation; search-result
	// cache entries from older generations are treated as misses. This
	// gives O(1) bulk invalidation with staleness bounded to one
	// generation.
	generation atomic.Uint64

	cfg      Config
	provider embeddings.Provider
	fallback *embeddings.Fallback
	backend  backend.Backend
	scorer   Scorer
	logger   *slog.Logger
	metrics  *observability.Metrics

	queryCache *lruCache[[]cachedHit]
	embedCache *lruCache[[]float32]
}

// New builds a store, rebuilding the in-memory index from the backend's
// persisted state. A relationship referencing a missing node surfaces
// ErrCorruption.
func New(ctx context.Context, cfg Config, opts Options) (*Store, error) {
	cfg.ApplyDefaults()
	if opts.Provider != nil {
		cfg.Dimension = opts.Provider.Dimension()
	}
	if opts.Backend == nil {
		opts.Backend = backend.NewMemory()
	}
	if opts.Scorer == nil {
		opts.Scorer = HeuristicScorer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Store{
		nodes:      make(map[string]*models.MemoryNode),
		rels:       make(map[string]*models.MemoryRelationship),
		cfg:        cfg,
		provider:   opts.Provider,
		fallback:   embeddings.NewFallback(cfg.Dimension),
		backend:    opts.Backend,
		scorer:     opts.Scorer,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		queryCache: newLRUCache[[]cachedHit](cfg.QueryCacheSize),
		embedCache: newLRUCache[[]float32](cfg.EmbeddingCacheSize),
	}

	nodes, rels, err := s.backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted state: %w", err)
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	for _, r := range rels {
		if _, ok := s.nodes[r.SourceID]; !ok {
			return nil, fmt.Errorf("%w: relationship %s references missing source %s", ErrCorruption, r.ID, r.SourceID)
		}
		if _, ok := s.nodes[r.TargetID]; !ok {
			return nil, fmt.Errorf("%w: relationship %s references missing target %s", ErrCorruption, r.ID, r.TargetID)
		}
		s.rels[r.ID] = r
	}
	return s, nil
}

// ProviderName reports which embedding provider is active.
func (s *Store) ProviderName() string {
	if s.provider != nil {
		return s.provider.Name()
	}
	return s.fallback.Name()
}

// Dimension returns the embedding dimension in use.
func (s *Store) Dimension() int { return s.cfg.Dimension }

// recordOp reports one store operation outcome to the metrics sink.
func (s *Store) recordOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreOperation(op, status)
}

// embed computes an embedding, degrading to the deterministic fallback on
// any provider failure. Embedding never fails the caller.
func (s *Store) embed(ctx context.Context, text string) []float32 {
	if s.provider != nil {
		vec, err := s.provider.Embed(ctx, text)
		if err == nil && len(vec) == s.cfg.Dimension {
			return vec
		}
		if err != nil {
			s.logger.Warn("embedding provider failed, using fallback", "provider", s.provider.Name(), "error", err)
		}
		if s.metrics != nil {
			s.metrics.EmbeddingFallbacks.Inc()
		}
	}
	vec, _ := s.fallback.Embed(ctx, text)
	return vec
}

// queryEmbedding returns the (possibly cached) embedding for a query text.
func (s *Store) queryEmbedding(ctx context.Context, query string) []float32 {
	if vec, ok := s.embedCache.get(query, 0); ok {
		return vec
	}
	vec := s.embed(ctx, query)
	s.embedCache.set(query, vec, 0)
	return vec
}

// Store adds a new knowledge node. Ids are content-addressed with a
// timestamp component, so identical content stored later yields a new node
// (append-only, no upsert). Relationship detection links the node to
// existing nodes above the link threshold; those edges are visible to any
// graph search that observes the new id.
func (s *Store) Store(ctx context.Context, content string, metadata map[string]any, tags []string) (string, error) {
	// Embedding may call the external provider; keep it outside the lock.
	embedding := s.embed(ctx, content)

	now := time.Now()
	node := &models.MemoryNode{
		ID:              models.NewNodeID(content, now),
		Content:         content,
		Embedding:       embedding,
		Metadata:        metadata,
		Tags:            tags,
		ImportanceScore: s.scorer.Score(content, metadata),
		CreatedAt:       now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.nodes) >= s.cfg.MaxNodes {
		err := fmt.Errorf("%w: %d nodes (max %d)", ErrResourceExhausted, len(s.nodes), s.cfg.MaxNodes)
		s.recordOp("store", err)
		return "", err
	}

	// Relationship detection against the current table, before insertion.
	type linkCand struct {
		id  string
		sim float64
	}
	var cands []linkCand
	for id, other := range s.nodes {
		sim := cosineSimilarity(embedding, other.Embedding)
		if sim >= s.cfg.LinkThreshold {
			cands = append(cands, linkCand{id: id, sim: sim})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].sim > cands[j].sim })
	if len(cands) > s.cfg.LinkTopK {
		cands = cands[:s.cfg.LinkTopK]
	}

	s.nodes[node.ID] = node
	for _, c := range cands {
		s.addRelationshipLocked(ctx, node.ID, c.id, models.RelationSemantic, c.sim)
	}

	if err := s.backend.PutNode(ctx, node); err != nil {
		s.logger.Warn("persist node failed", "node", node.ID, "error", err)
	}

	s.generation.Add(1)
	s.recordOp("store", nil)
	return node.ID, nil
}

// Get returns a copy of the node and records the access.
func (s *Store) Get(ctx context.Context, id string) (*models.MemoryNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNotFound, id)
		s.recordOp("get", err)
		return nil, err
	}
	s.touchLocked(ctx, node)
	s.recordOp("get", nil)
	return node.Clone(), nil
}

// SearchSemantic ranks stored nodes against the query by a blend of cosine
// similarity, importance, and recency. Only nodes with raw cosine
// similarity >= minSimilarity are eligible, regardless of topK. Metadata
// filters are applied before ranking. Every returned node has its access
// bookkeeping updated.
func (s *Store) SearchSemantic(ctx context.Context, query string, topK int, minSimilarity float64, filters map[string]any) ([]*models.ScoredNode, error) {
	if topK <= 0 {
		topK = 10
	}

	gen := s.generation.Load()
	key := searchCacheKey(query, topK, minSimilarity, filters)
	if hits, ok := s.queryCache.get(key, gen); ok {
		s.recordOp("search_semantic", nil)
		return s.materialize(ctx, hits), nil
	}

	queryVec := s.queryEmbedding(ctx, query)

	s.mu.RLock()
	now := time.Now()
	type scored struct {
		hit   cachedHit
		blend float64
	}
	var candidates []scored
	for id, node := range s.nodes {
		if !matchFilters(node, filters) {
			continue
		}
		sim := cosineSimilarity(queryVec, node.Embedding)
		if sim < minSimilarity {
			continue
		}
		rec := recencyDecay(node.LastAccessed, node.CreatedAt, now, s.cfg.RecencyHalfLife)
		candidates = append(candidates, scored{
			hit:   cachedHit{id: id, similarity: sim},
			blend: blendScore(sim, node.ImportanceScore, rec),
		})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].blend > candidates[j].blend })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]cachedHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	s.queryCache.set(key, hits, gen)

	s.recordOp("search_semantic", nil)
	return s.materialize(ctx, hits), nil
}

// materialize turns cached hits into result clones, applying access
// bookkeeping. Nodes merged away since the hits were computed are skipped.
func (s *Store) materialize(ctx context.Context, hits []cachedHit) []*models.ScoredNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]*models.ScoredNode, 0, len(hits))
	for _, h := range hits {
		node, ok := s.nodes[h.id]
		if !ok {
			continue
		}
		s.touchLocked(ctx, node)
		results = append(results, &models.ScoredNode{Node: node.Clone(), Similarity: h.similarity})
	}
	return results
}

// touchLocked records a read of the node. Caller holds the write lock.
func (s *Store) touchLocked(ctx context.Context, node *models.MemoryNode) {
	node.AccessCount++
	node.LastAccessed = time.Now()
	if err := s.backend.PutNode(ctx, node); err != nil {
		s.logger.Warn("persist access bookkeeping failed", "node", node.ID, "error", err)
	}
}

// ReinforceNode nudges a node's importance by delta, clamped to [0,1].
// Used by the learning engine to reward or penalize stored knowledge.
func (s *Store) ReinforceNode(ctx context.Context, id string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	node.ImportanceScore = clamp01(node.ImportanceScore + delta)
	if err := s.backend.PutNode(ctx, node); err != nil {
		return fmt.Errorf("persist reinforcement: %w", err)
	}
	// Importance feeds the blended search score, so cached rankings are
	// stale from here on.
	s.generation.Add(1)
	return nil
}

// Stats reports counts, cache behavior, and a memory footprint estimate.
func (s *Store) Stats() *models.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bytes int64
	for _, n := range s.nodes {
		bytes += int64(len(n.Content)) + int64(4*len(n.Embedding)) + 128
	}
	bytes += int64(len(s.rels)) * 96

	qh, qm := s.queryCache.stats()
	eh, em := s.embedCache.stats()
	hits, misses := qh+eh, qm+em
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return &models.StoreStats{
		NodeCount:         len(s.nodes),
		RelationshipCount: len(s.rels),
		CacheHits:         hits,
		CacheMisses:       misses,
		CacheHitRate:      rate,
		MemoryBytes:       bytes,
		Generation:        s.generation.Load(),
		EmbeddingProvider: s.ProviderName(),
		Dimension:         s.cfg.Dimension,
	}
}

// Close flushes nothing (writes are write-through) and closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func matchFilters(node *models.MemoryNode, filters map[string]any) bool {
	for k, want := range filters {
		if k == "tag" {
			tag, _ := want.(string)
			if !node.HasTag(tag) {
				return false
			}
			continue
		}
		got, ok := node.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
