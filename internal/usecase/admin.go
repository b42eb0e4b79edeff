package usecase

import (
	"context"
	"fmt"

	"paperloom/internal/domain"
)

// ListCategories returns the persisted taxonomy.
func (p *Pipeline) ListCategories(ctx context.Context) ([]domain.Category, error) {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	return tx.Papers().ListCategories(ctx)
}

// ListPapers returns stored papers. A limit of zero or less returns all.
func (p *Pipeline) ListPapers(ctx context.Context, limit int) ([]domain.Paper, error) {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	return tx.Papers().ListPapers(ctx, limit)
}

// DeletePapers removes papers by arxiv id, all or none.
func (p *Pipeline) DeletePapers(ctx context.Context, arxivIDs []string) error {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.Papers().DeletePapers(ctx, arxivIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Info("papers deleted", "count", len(arxivIDs))
	return nil
}

// DeleteCategories removes categories by identifier, all or none. Paper
// associations referencing a deleted category go with it.
func (p *Pipeline) DeleteCategories(ctx context.Context, categoryStrings []string) error {
	ids := make([]domain.CategoryID, 0, len(categoryStrings))
	for _, s := range categoryStrings {
		id, err := domain.ParseCategoryID(s)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.Papers().DeleteCategories(ctx, ids); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Info("categories deleted", "count", len(ids))
	return nil
}
