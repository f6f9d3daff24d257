// Package rag retrieves similar resolved cases from the VOC knowledge corpus
// and feeds confirmed-quality analyses back into it.
package rag

import (
	"context"
	"log"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/database"
	"github.com/geonhos/poc-voc-auto-processing/internal/llm"
)

// MaxTopK caps how many similar cases a single search may return.
const MaxTopK = 10

// StoreThreshold is the minimum overall confidence for a case to enter the
// corpus. Low-confidence analyses would poison future retrievals.
const StoreThreshold = 0.70

// CorpusStore is the persistence surface the retriever needs.
type CorpusStore interface {
	UpsertCorpusEntry(ctx context.Context, entry database.CorpusEntry) error
	QueryCorpus(ctx context.Context, embedding []float32, limit int) ([]database.CorpusMatch, error)
}

// SimilarCase is one corpus hit scored against a query.
type SimilarCase struct {
	TicketRef     string  `json:"ticket_ref"`
	Similarity    float64 `json:"similarity"`
	Summary       string  `json:"summary,omitempty"`
	PrimaryType   string  `json:"primary_type,omitempty"`
	SecondaryType string  `json:"secondary_type,omitempty"`
	Resolution    string  `json:"resolution,omitempty"`
}

// ResolvedCase is a completed analysis offered to the corpus.
type ResolvedCase struct {
	TicketRef      string
	Content        string
	Summary        string
	PrimaryType    string
	SecondaryType  string
	AffectedSystem string
	Resolution     string
	Overall        float64
	ResolvedAt     time.Time
}

// Retriever performs embedding-based similarity search over the corpus.
type Retriever struct {
	embedder llm.Embedder
	store    CorpusStore
}

// NewRetriever creates a Retriever backed by the given embedder and store.
func NewRetriever(embedder llm.Embedder, store CorpusStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// SearchSimilar returns up to topK cases whose similarity to the query text
// is at least minSimilarity. Similarity is 1/(1+distance), so identical
// embeddings score 1.0. Embedding or storage failures degrade to an empty
// result rather than an error; missing evidence is not a pipeline failure.
func (r *Retriever) SearchSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]SimilarCase, error) {
	if topK <= 0 || topK > MaxTopK {
		topK = MaxTopK
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("rag: embedding query failed, returning no similar cases: %v", err)
		return nil, nil
	}

	matches, err := r.store.QueryCorpus(ctx, embedding, topK)
	if err != nil {
		log.Printf("rag: corpus query failed, returning no similar cases: %v", err)
		return nil, nil
	}

	cases := make([]SimilarCase, 0, len(matches))
	for _, m := range matches {
		similarity := 1.0 / (1.0 + m.Distance)
		if similarity < minSimilarity {
			continue
		}
		c := SimilarCase{
			TicketRef:  m.Entry.TicketRef,
			Similarity: similarity,
		}
		if m.Entry.Summary != nil {
			c.Summary = *m.Entry.Summary
		}
		if m.Entry.PrimaryType != nil {
			c.PrimaryType = *m.Entry.PrimaryType
		}
		if m.Entry.SecondaryType != nil {
			c.SecondaryType = *m.Entry.SecondaryType
		}
		if m.Entry.Resolution != nil {
			c.Resolution = *m.Entry.Resolution
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// StoreResolvedCase writes a case into the corpus when its overall confidence
// meets StoreThreshold. Storing is keyed by ticket reference, so re-analysis
// of the same ticket updates the entry instead of duplicating it. Returns
// true when the case was stored.
func (r *Retriever) StoreResolvedCase(ctx context.Context, c ResolvedCase) (bool, error) {
	if c.Overall < StoreThreshold {
		return false, nil
	}

	embedding, err := r.embedder.Embed(ctx, c.Content)
	if err != nil {
		return false, err
	}

	entry := database.CorpusEntry{
		TicketRef:  c.TicketRef,
		Embedding:  embedding,
		Content:    c.Content,
		Confidence: &c.Overall,
		ResolvedAt: c.ResolvedAt,
	}
	if c.Summary != "" {
		entry.Summary = &c.Summary
	}
	if c.PrimaryType != "" {
		entry.PrimaryType = &c.PrimaryType
	}
	if c.SecondaryType != "" {
		entry.SecondaryType = &c.SecondaryType
	}
	if c.AffectedSystem != "" {
		entry.AffectedSystem = &c.AffectedSystem
	}
	if c.Resolution != "" {
		entry.Resolution = &c.Resolution
	}

	if err := r.store.UpsertCorpusEntry(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}
