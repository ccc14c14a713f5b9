package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JinchengGao-Infty/Creator-Studio/logging"
	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

// Hit is one search result, best first.
type Hit struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
	Text  string  `json:"text"`
}

// IndexSummary describes one completed build.
type IndexSummary struct {
	CreatedAt  int64  `json:"createdAt"`
	DocCount   int    `json:"docCount"`
	ChunkCount int    `json:"chunkCount"`
	Model      string `json:"model"`
}

// Index ties the document library, the embedder and the store together.
type Index struct {
	ProjectDir string
	Embedder   Embedder
}

func NewIndex(projectDir string, embedder Embedder) *Index {
	return &Index{ProjectDir: projectDir, Embedder: embedder}
}

func enabledDocs(projectRoot string) ([]Doc, error) {
	docs, err := ListDocs(projectRoot)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out, nil
}

// Build re-embeds every enabled document and replaces the stored index.
func (ix *Index) Build(ctx context.Context) (IndexSummary, error) {
	if err := ensureKnowledgeDir(ix.ProjectDir); err != nil {
		return IndexSummary{}, err
	}

	docs, err := enabledDocs(ix.ProjectDir)
	if err != nil {
		return IndexSummary{}, err
	}

	var states []DocState
	var chunks []Chunk
	var texts []string
	for _, doc := range docs {
		content, err := ReadDoc(ix.ProjectDir, doc.Path)
		if err != nil {
			continue
		}
		states = append(states, DocState{Path: doc.Path, ModifiedAt: doc.ModifiedAt})
		for i, text := range ChunkText(content, chunkSize, chunkOverlap) {
			chunks = append(chunks, Chunk{
				ID:         fmt.Sprintf("%s#%d", doc.Path, i),
				SourcePath: doc.Path,
				Text:       text,
			})
			texts = append(texts, text)
		}
	}

	embeddings, err := ix.Embedder.Embed(ctx, texts)
	if err != nil {
		return IndexSummary{}, err
	}
	if len(embeddings) != len(chunks) {
		return IndexSummary{}, fmt.Errorf("Embedding count mismatch")
	}
	for i := range chunks {
		chunks[i].Norm = normalizeEmbedding(embeddings[i])
		chunks[i].Embedding = embeddings[i]
	}

	store, err := OpenStore(ix.ProjectDir)
	if err != nil {
		return IndexSummary{}, err
	}
	defer store.Close()

	createdAt := time.Now().Unix()
	if err := store.Replace(states, chunks, ix.Embedder.Model(), createdAt); err != nil {
		return IndexSummary{}, fmt.Errorf("Failed to write RAG index: %v", err)
	}

	logging.L().Debugw("rag index built",
		"docs", len(states), "chunks", len(chunks), "model", ix.Embedder.Model())

	return IndexSummary{
		CreatedAt:  createdAt,
		DocCount:   len(states),
		ChunkCount: len(chunks),
		Model:      ix.Embedder.Model(),
	}, nil
}

func isStale(indexed []DocState, current []Doc) bool {
	if len(indexed) != len(current) {
		return true
	}
	have := make(map[DocState]bool, len(indexed))
	for _, d := range indexed {
		have[d] = true
	}
	for _, d := range current {
		if !have[DocState{Path: d.Path, ModifiedAt: d.ModifiedAt}] {
			return true
		}
	}
	return false
}

// Search embeds the query and ranks stored chunks by cosine similarity.
// A missing or stale index is rebuilt first.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if _, err := security.ValidatePath(ix.ProjectDir, KnowledgeDir); err != nil {
		return nil, err
	}

	store, err := OpenStore(ix.ProjectDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	built, err := store.HasIndex()
	if err != nil {
		return nil, err
	}
	rebuild := !built
	if built {
		indexed, err := store.DocStates()
		if err != nil {
			return nil, err
		}
		current, err := enabledDocs(ix.ProjectDir)
		if err != nil {
			return nil, err
		}
		rebuild = isStale(indexed, current)
	}
	if rebuild {
		if _, err := ix.Build(ctx); err != nil {
			return nil, err
		}
	}

	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	embeddings, err := ix.Embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}
	qVec := embeddings[0]
	if normalizeEmbedding(qVec) == 0 {
		return nil, nil
	}

	chunks, err := store.Chunks()
	if err != nil {
		return nil, err
	}

	// Stored vectors are unit length, so the dot product is the cosine.
	hits := make([]Hit, 0, len(chunks))
	for _, c := range chunks {
		var dot float32
		for i, x := range c.Embedding {
			if i >= len(qVec) {
				break
			}
			dot += x * qVec[i]
		}
		hits = append(hits, Hit{Path: c.SourcePath, Score: dot, Text: c.Text})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if topK < 1 {
		topK = 1
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
