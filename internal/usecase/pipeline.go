package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

// ErrNoCategories signals that the persisted taxonomy is empty. It is a
// prerequisite-ordering error: categories must be synced before papers can
// be fetched "for all categories".
var ErrNoCategories = errors.New("no categories found in the repository")

// Pipeline implements the fetch-resolve-enrich-persist ingestion workflow.
// Every ingestion call runs inside one transactional scope; any failure
// rolls back all writes made in that scope.
type Pipeline struct {
	uow    ports.UnitOfWork
	logger *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(uow ports.UnitOfWork, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{uow: uow, logger: logger}
}

// SyncCategories fetches the taxonomy from the source and upserts it,
// keyed by identifier, in one transaction.
func (p *Pipeline) SyncCategories(ctx context.Context, src ports.CategorySource) ([]domain.Category, error) {
	dtos, err := src.FetchCategories(ctx)
	if err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(dtos))
	for _, dto := range dtos {
		categories = append(categories, domain.Category{
			ID:           domain.CategoryID{Archive: dto.Archive, Subcategory: dto.Subcategory},
			ArchiveName:  dto.ArchiveName,
			CategoryName: dto.CategoryName,
			Description:  dto.Description,
		})
	}
	categories = domain.DedupeCategories(categories)

	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.Papers().UpsertCategories(ctx, categories); err != nil {
		return nil, fmt.Errorf("upsert categories: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	p.logger.Info("categories synced", "count", len(categories))
	return categories, nil
}

// IngestLatest fetches the latest papers for the requested categories and
// persists them. An empty category list means all archive-level categories.
func (p *Pipeline) IngestLatest(ctx context.Context, src ports.PaperSource, categoryStrings []string) ([]domain.Paper, error) {
	return p.ingest(ctx, categoryStrings, func(ctx context.Context, categories []domain.Category) ([]ports.PaperDTO, error) {
		return src.FetchLatest(ctx, categories)
	})
}

// IngestHistorical fetches papers within the inclusive [from, to] date
// range (either bound may be nil) and persists them.
func (p *Pipeline) IngestHistorical(ctx context.Context, src ports.PaperSource, categoryStrings []string, from, to *time.Time) ([]domain.Paper, error) {
	return p.ingest(ctx, categoryStrings, func(ctx context.Context, categories []domain.Category) ([]ports.PaperDTO, error) {
		return src.FetchHistorical(ctx, categories, from, to)
	})
}

type fetchFunc func(ctx context.Context, categories []domain.Category) ([]ports.PaperDTO, error)

func (p *Pipeline) ingest(ctx context.Context, categoryStrings []string, fetch fetchFunc) ([]domain.Paper, error) {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	repo := tx.Papers()

	categories, err := p.resolveCategories(ctx, repo, categoryStrings)
	if err != nil {
		return nil, err
	}
	categories = append(categories, domain.LegacyEquivalents(categories)...)

	dtos, err := fetch(ctx, categories)
	if err != nil {
		return nil, err
	}

	papers, err := p.enrich(ctx, repo, dtos)
	if err != nil {
		return nil, err
	}

	if err := repo.UpsertPapers(ctx, papers); err != nil {
		return nil, fmt.Errorf("upsert papers: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	p.logger.Info("papers ingested", "count", len(papers))
	return papers, nil
}

// resolveCategories turns requested category strings into persisted
// categories. An empty request resolves to every archive-level category.
// Every lookup miss is collected so the caller can fix all of them at once.
func (p *Pipeline) resolveCategories(ctx context.Context, repo ports.PaperRepository, categoryStrings []string) ([]domain.Category, error) {
	if len(categoryStrings) == 0 {
		all, err := repo.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		var archives []domain.Category
		for _, c := range all {
			if c.ID.IsArchive() {
				archives = append(archives, c)
			}
		}
		if len(archives) == 0 {
			return nil, ErrNoCategories
		}
		return archives, nil
	}

	var (
		resolved []domain.Category
		missing  []domain.CategoryID
	)
	for _, s := range categoryStrings {
		id, err := domain.ParseCategoryID(s)
		if err != nil {
			return nil, err
		}
		category, ok, err := repo.GetCategory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get category %s: %w", id, err)
		}
		if !ok {
			missing = append(missing, id)
			continue
		}
		resolved = append(resolved, category)
	}
	if len(missing) > 0 {
		return nil, &ports.CategoriesNotFoundError{IDs: missing}
	}

	return domain.DedupeCategories(resolved), nil
}

// enrich replaces each DTO's raw category strings with the authoritative
// categories from the live taxonomy, canonicalizing legacy aliases first.
// Any string that still resolves to nothing is a hard error, never a
// silent drop.
func (p *Pipeline) enrich(ctx context.Context, repo ports.PaperRepository, dtos []ports.PaperDTO) ([]domain.Paper, error) {
	all, err := repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	lookup := make(map[string]domain.Category, len(all))
	for _, c := range all {
		lookup[c.ID.String()] = c
	}

	var (
		papers     []domain.Paper
		missing    []domain.CategoryID
		missingSet = map[domain.CategoryID]struct{}{}
		seen       = map[string]struct{}{}
	)
	for _, dto := range dtos {
		if _, ok := seen[dto.ArxivID]; ok {
			continue
		}
		seen[dto.ArxivID] = struct{}{}

		var categories []domain.Category
		for _, raw := range dto.Categories {
			canonical := domain.CanonicalIdentifier(raw)
			category, ok := lookup[canonical]
			if !ok {
				id, err := domain.ParseCategoryID(canonical)
				if err != nil {
					return nil, err
				}
				if _, dup := missingSet[id]; !dup {
					missingSet[id] = struct{}{}
					missing = append(missing, id)
				}
				continue
			}
			categories = append(categories, category)
		}
		papers = append(papers, domain.Paper{
			ArxivID:     dto.ArxivID,
			Title:       dto.Title,
			Abstract:    dto.Abstract,
			PublishedAt: dto.PublishedAt,
			Categories:  domain.DedupeCategories(categories),
		})
	}
	if len(missing) > 0 {
		return nil, &ports.CategoriesNotFoundError{IDs: missing}
	}

	return papers, nil
}
