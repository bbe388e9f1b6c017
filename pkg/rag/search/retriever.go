package search

import (
	"context"

	"rag-chat-be/pkg/rag/vectorindex"
)

// DefaultTopK is the number of chunks handed to the model per query.
const DefaultTopK = 4

// Searcher is the part of the vector store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, sessionId, query string, k int) ([]vectorindex.ChunkRecord, error)
}

// Retriever fetches the chunks most similar to a query from one session.
type Retriever struct {
	searcher Searcher
	topK     int
}

func NewRetriever(searcher Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{searcher: searcher, topK: topK}
}

// Retrieve returns up to TopK records, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, sessionId, query string) ([]vectorindex.ChunkRecord, error) {
	return r.searcher.Search(ctx, sessionId, query, r.topK)
}

func (r *Retriever) TopK() int { return r.topK }
