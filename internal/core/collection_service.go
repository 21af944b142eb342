package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"ragserver/internal/chunk"
	"ragserver/internal/store"
)

// CollectionService owns the mapping from (tenant, collection name) to
// embedded chunk records and performs idempotent ingestion.
type CollectionService struct {
	dbStore  *store.SQLiteStore
	embedder Embedder
	pool     *ants.Pool

	chunkSize    int
	chunkOverlap int

	logger *slog.Logger
}

func NewCollectionService(db *store.SQLiteStore, embedder Embedder, chunkSize, chunkOverlap int) (*CollectionService, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}

	return &CollectionService{
		dbStore:      db,
		embedder:     embedder,
		pool:         pool,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       slog.Default().With("component", "collections"),
	}, nil
}

func (s *CollectionService) Close() {
	s.pool.Release()
}

// UpsertCollection returns the stable id for (tenant, name), allocating one
// on first use.
func (s *CollectionService) UpsertCollection(tenant, name string) (string, error) {
	if tenant == "" || name == "" {
		return "", fmt.Errorf("tenant and collection name are required")
	}
	return s.dbStore.UpsertCollection(tenant, name)
}

// IngestText chunks raw source text and ingests it into the named
// collection, creating the collection if needed.
func (s *CollectionService) IngestText(ctx context.Context, tenant, name, text string) (string, error) {
	chunks := chunk.Split(chunk.Sanitize(text), s.chunkSize, s.chunkOverlap, chunk.DefaultSeparator)
	return s.Ingest(ctx, tenant, name, chunks)
}

// Ingest embeds and stores the given chunks. Embedding runs on the worker
// pool; the first failure aborts the chunks not yet processed and is
// reported, while chunks already stored stay in place. Chunk ids are derived
// from (collection id, normalized content), so re-ingesting identical
// content inserts nothing new.
func (s *CollectionService) Ingest(ctx context.Context, tenant, name string, chunks []string) (string, error) {
	collectionID, err := s.UpsertCollection(tenant, name)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		s.logger.Info("nothing to ingest", "tenant", tenant, "collection", name)
		return collectionID, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	aborted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for _, text := range chunks {
		text := text
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			if aborted() {
				return
			}
			embedding, err := s.embedder.EmbedQuery(ctx, text)
			if err != nil {
				fail(fmt.Errorf("failed to embed chunk: %w", err))
				return
			}
			record := store.ChunkRecord{
				ID:           chunkID(collectionID, text),
				CollectionID: collectionID,
				Content:      text,
				Embedding:    embedding,
			}
			if err := s.dbStore.InsertChunk(&record); err != nil {
				fail(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit embedding task: %w", submitErr))
		}
	}
	wg.Wait()

	if firstErr != nil {
		s.logger.Error("ingestion aborted", "tenant", tenant, "collection", name, "err", firstErr)
		return collectionID, firstErr
	}
	s.logger.Info("ingested chunks", "tenant", tenant, "collection", name, "count", len(chunks))
	return collectionID, nil
}

// ListCollections maps visible collection names to ids: the tenant's own
// plus the shared tenant's, with the tenant's own entry winning a name
// collision.
func (s *CollectionService) ListCollections(tenant string) (map[string]string, error) {
	collections, err := s.dbStore.ListCollections(tenant)
	if err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(collections))
	for _, c := range collections {
		mapping[c.Name] = c.ID
	}
	return mapping, nil
}

// Collections returns the visible collection records themselves, for
// knowledge-base inspection.
func (s *CollectionService) Collections(tenant string) ([]store.Collection, error) {
	return s.dbStore.ListCollections(tenant)
}

// FetchChunks returns the raw chunk texts of a collection visible to the
// tenant. An absent or non-visible collection reads as empty.
func (s *CollectionService) FetchChunks(tenant, collectionID string) ([]string, error) {
	return s.dbStore.GetChunkTexts(tenant, collectionID)
}

// DeleteCollection removes a collection and its chunks; idempotent.
func (s *CollectionService) DeleteCollection(collectionID string) error {
	return s.dbStore.DeleteCollection(collectionID)
}

// BuildRetriever assembles the ensemble retriever over the named
// collections. Nil names selects every visible collection. Collections
// without embedded chunks are skipped; if none remain the null retriever is
// returned and the caller falls back to a plain model call.
func (s *CollectionService) BuildRetriever(ctx context.Context, tenant string, names []string) (Retriever, error) {
	mapping, err := s.ListCollections(tenant)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(names))
	for _, n := range names {
		selected[n] = true
	}

	var members []*collectionSearcher
	for name, id := range mapping {
		if len(names) > 0 && !selected[name] {
			continue
		}
		records, err := s.dbStore.GetChunksByCollection(id)
		if err != nil {
			return nil, err
		}
		searcher := newCollectionSearcher(id, records)
		if searcher == nil {
			s.logger.Debug("skipping collection without embedded chunks", "collection", name)
			continue
		}
		members = append(members, searcher)
	}

	if len(members) == 0 {
		return NullRetriever(), nil
	}
	return NewEnsembleRetriever(s.embedder, members), nil
}

// chunkID derives a deterministic chunk identifier from the collection and
// the whitespace-normalized content.
func chunkID(collectionID, content string) string {
	namespace, err := uuid.Parse(collectionID)
	if err != nil {
		namespace = uuid.NameSpaceOID
	}
	normalized := strings.Join(strings.Fields(content), " ")
	return uuid.NewSHA1(namespace, []byte(normalized)).String()
}
