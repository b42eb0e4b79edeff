package ports

import (
	"context"
	"time"

	"paperloom/internal/domain"
)

// CategoryDTO is the transport record for a taxonomy node as produced by a
// source adapter, before resolution against the persisted taxonomy.
type CategoryDTO struct {
	Archive      string
	Subcategory  string
	ArchiveName  string
	CategoryName string
	Description  string
}

// PaperDTO is the transport record for a paper. Categories are raw strings;
// converting to a domain Paper requires resolving each against the
// persisted taxonomy, legacy aliases canonicalized first.
type PaperDTO struct {
	ArxivID     string
	Title       string
	Abstract    string
	PublishedAt time.Time
	Categories  []string
}

// CategorySource fetches the full category taxonomy from an upstream
// provider.
type CategorySource interface {
	FetchCategories(ctx context.Context) ([]CategoryDTO, error)
}

// PaperSource fetches paper records for a category set. A source may
// support only one of the two directions; the other returns an error
// wrapping ErrNotSupported rather than a silent empty result.
type PaperSource interface {
	FetchLatest(ctx context.Context, categories []domain.Category) ([]PaperDTO, error)
	FetchHistorical(ctx context.Context, categories []domain.Category, from, to *time.Time) ([]PaperDTO, error)
}

// PaperRepository persists the taxonomy and papers. All operations run
// inside the transaction the owning Tx was opened with.
type PaperRepository interface {
	UpsertCategories(ctx context.Context, categories []domain.Category) error
	GetCategory(ctx context.Context, id domain.CategoryID) (domain.Category, bool, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategories(ctx context.Context, ids []domain.CategoryID) error

	UpsertPapers(ctx context.Context, papers []domain.Paper) error
	GetPaper(ctx context.Context, arxivID string) (domain.Paper, bool, error)
	ListPapers(ctx context.Context, limit int) ([]domain.Paper, error)
	DeletePapers(ctx context.Context, arxivIDs []string) error
}

// UnitOfWork opens transactional scopes over the repository.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transactional scope. Rollback is safe to defer: it is a no-op
// once Commit has succeeded, so exiting the scope without an explicit
// commit always rolls back.
type Tx interface {
	Papers() PaperRepository
	Commit() error
	Rollback() error
}

// SearchFilter is a conjunction over category membership and inclusive
// published-date bounds, translated by the vector index into its native
// predicate syntax.
type SearchFilter struct {
	Categories      []domain.CategoryID
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
}

// VectorIndex stores paper embeddings and answers nearest-neighbor queries.
type VectorIndex interface {
	Insert(ctx context.Context, embeddings [][]float32, papers []domain.Paper) error
	Delete(ctx context.Context, arxivIDs []string) error
	Query(ctx context.Context, embedding []float32, topK int, filter *SearchFilter) ([]string, error)
}

// Embedder converts text into vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
