package usecase

import (
	"context"
	"fmt"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

// IndexPapers embeds stored papers and inserts them into the vector index.
// A limit of zero or less indexes every stored paper.
func (p *Pipeline) IndexPapers(ctx context.Context, embedder ports.Embedder, index ports.VectorIndex, limit int) (int, error) {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	papers, err := tx.Papers().ListPapers(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list papers: %w", err)
	}
	if len(papers) == 0 {
		return 0, nil
	}

	texts := make([]string, len(papers))
	for i, paper := range papers {
		texts[i] = paper.Title + "\n\n" + paper.Abstract
	}

	embeddings, err := embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed papers: %w", err)
	}
	if err := index.Insert(ctx, embeddings, papers); err != nil {
		return 0, fmt.Errorf("insert embeddings: %w", err)
	}

	p.logger.Info("papers indexed", "count", len(papers))
	return len(papers), nil
}

// SimilarPapers embeds the query text, asks the vector index for the topK
// nearest papers under the filter, and loads them from the repository.
func (p *Pipeline) SimilarPapers(ctx context.Context, embedder ports.Embedder, index ports.VectorIndex, query string, topK int, filter *ports.SearchFilter) ([]domain.Paper, error) {
	embeddings, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("embedder returned %d embeddings for one query", len(embeddings))
	}

	arxivIDs, err := index.Query(ctx, embeddings[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	papers := make([]domain.Paper, 0, len(arxivIDs))
	var missing []string
	for _, id := range arxivIDs {
		paper, ok, err := tx.Papers().GetPaper(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get paper %s: %w", id, err)
		}
		if !ok {
			missing = append(missing, id)
			continue
		}
		papers = append(papers, paper)
	}
	if len(missing) > 0 {
		return nil, &ports.PapersNotFoundError{ArxivIDs: missing}
	}

	return papers, nil
}
