package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

// chunkSize bounds the number of rows per statement, keeping well under
// SQLite's bound-parameter limit.
const chunkSize = 400

const dateLayout = "2006-01-02"

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// PaperRepository persists categories and papers inside the transaction it
// was bound to by the unit of work.
type PaperRepository struct {
	tx *sql.Tx
}

var _ ports.PaperRepository = (*PaperRepository)(nil)

// NewPaperRepository binds a repository to an open transaction.
func NewPaperRepository(tx *sql.Tx) *PaperRepository {
	return &PaperRepository{tx: tx}
}

// UpsertCategories inserts or updates categories keyed by their
// (archive, subcategory) identifier. Metadata is replaced on conflict.
func (r *PaperRepository) UpsertCategories(ctx context.Context, categories []domain.Category) error {
	for _, chunk := range chunkCategories(categories, chunkSize) {
		builder := psq.Insert("category").
			Columns("archive", "subcategory", "archive_name", "category_name", "description").
			Suffix(`ON CONFLICT (archive, subcategory) DO UPDATE SET
				archive_name = excluded.archive_name,
				category_name = excluded.category_name,
				description = excluded.description`)
		for _, c := range chunk {
			builder = builder.Values(c.ID.Archive, c.ID.Subcategory, c.ArchiveName, c.CategoryName, c.Description)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("build category upsert: %w", err)
		}
		if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert categories: %w", err)
		}
	}
	return nil
}

// GetCategory fetches one category by identifier, with its derived
// subcategory view populated for archive-level nodes.
func (r *PaperRepository) GetCategory(ctx context.Context, id domain.CategoryID) (domain.Category, bool, error) {
	index, err := r.loadCategoryIndex(ctx)
	if err != nil {
		return domain.Category{}, false, err
	}
	category, ok := index.materialize(id)
	return category, ok, nil
}

// ListCategories returns every persisted category in insertion order.
func (r *PaperRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	index, err := r.loadCategoryIndex(ctx)
	if err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(index.rows))
	for _, row := range index.rows {
		category, _ := index.materialize(row.cat.ID)
		categories = append(categories, category)
	}
	return categories, nil
}

// DeleteCategories removes the given categories. If any identifier is
// unknown, nothing is deleted and the error names every missing one.
func (r *PaperRepository) DeleteCategories(ctx context.Context, ids []domain.CategoryID) error {
	index, err := r.loadCategoryIndex(ctx)
	if err != nil {
		return err
	}

	var (
		dbIDs   []int64
		missing []domain.CategoryID
		seen    = map[domain.CategoryID]struct{}{}
	)
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dbID, ok := index.dbID(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		dbIDs = append(dbIDs, dbID)
	}
	if len(missing) > 0 {
		return &ports.CategoriesNotFoundError{IDs: missing}
	}
	if len(dbIDs) == 0 {
		return nil
	}

	query, args, err := psq.Delete("category").Where(sq.Eq{"id": dbIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("build category delete: %w", err)
	}
	if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	return nil
}

// UpsertPapers inserts or updates papers keyed by arxiv id, replacing each
// paper's category set. The whole batch fails if any referenced category is
// absent from the taxonomy.
func (r *PaperRepository) UpsertPapers(ctx context.Context, papers []domain.Paper) error {
	if len(papers) == 0 {
		return nil
	}

	index, err := r.loadCategoryIndex(ctx)
	if err != nil {
		return err
	}
	if err := validatePaperCategories(papers, index); err != nil {
		return err
	}

	for _, chunk := range chunkPapers(papers, chunkSize) {
		if err := r.upsertPaperChunk(ctx, chunk, index); err != nil {
			return err
		}
	}
	return nil
}

func (r *PaperRepository) upsertPaperChunk(ctx context.Context, papers []domain.Paper, index *categoryIndex) error {
	builder := psq.Insert("paper").
		Columns("arxiv_id", "title", "abstract", "published_at").
		Suffix(`ON CONFLICT (arxiv_id) DO UPDATE SET
			title = excluded.title,
			abstract = excluded.abstract,
			published_at = excluded.published_at`)
	arxivIDs := make([]string, 0, len(papers))
	for _, p := range papers {
		builder = builder.Values(p.ArxivID, p.Title, p.Abstract, p.PublishedAt.Format(dateLayout))
		arxivIDs = append(arxivIDs, p.ArxivID)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build paper upsert: %w", err)
	}
	if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert papers: %w", err)
	}

	paperIDs, err := r.paperIDs(ctx, arxivIDs)
	if err != nil {
		return err
	}

	// Full replacement: drop existing associations before relinking.
	query, args, err = psq.Delete("paper_category").Where(sq.Eq{"paper_id": values(paperIDs)}).ToSql()
	if err != nil {
		return fmt.Errorf("build association delete: %w", err)
	}
	if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete paper associations: %w", err)
	}

	refs := psq.Insert("paper_category").Columns("paper_id", "category_id")
	count := 0
	for _, p := range papers {
		paperID := paperIDs[p.ArxivID]
		for _, c := range domain.DedupeCategories(p.Categories) {
			categoryID, _ := index.dbID(c.ID)
			refs = refs.Values(paperID, categoryID)
			count++
		}
	}
	if count == 0 {
		return nil
	}

	query, args, err = refs.ToSql()
	if err != nil {
		return fmt.Errorf("build association insert: %w", err)
	}
	if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert paper associations: %w", err)
	}
	return nil
}

// GetPaper fetches one paper with its resolved category set.
func (r *PaperRepository) GetPaper(ctx context.Context, arxivID string) (domain.Paper, bool, error) {
	query, args, err := psq.Select("id", "arxiv_id", "title", "abstract", "published_at").
		From("paper").Where(sq.Eq{"arxiv_id": arxivID}).ToSql()
	if err != nil {
		return domain.Paper{}, false, fmt.Errorf("build paper select: %w", err)
	}

	var (
		id          int64
		paper       domain.Paper
		publishedAt string
	)
	row := r.tx.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&id, &paper.ArxivID, &paper.Title, &paper.Abstract, &publishedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Paper{}, false, nil
		}
		return domain.Paper{}, false, fmt.Errorf("get paper: %w", err)
	}
	if paper.PublishedAt, err = time.Parse(dateLayout, publishedAt); err != nil {
		return domain.Paper{}, false, fmt.Errorf("parse published_at: %w", err)
	}

	index, err := r.loadCategoryIndex(ctx)
	if err != nil {
		return domain.Paper{}, false, err
	}
	if paper.Categories, err = r.paperCategories(ctx, id, index); err != nil {
		return domain.Paper{}, false, err
	}
	return paper, true, nil
}

// ListPapers returns stored papers in insertion order. A limit of zero or
// less returns all of them.
func (r *PaperRepository) ListPapers(ctx context.Context, limit int) ([]domain.Paper, error) {
	builder := psq.Select("id", "arxiv_id", "title", "abstract", "published_at").
		From("paper").OrderBy("id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build paper list: %w", err)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	type paperRow struct {
		id    int64
		paper domain.Paper
	}
	var paperRows []paperRow
	for rows.Next() {
		var (
			pr          paperRow
			publishedAt string
		)
		if err := rows.Scan(&pr.id, &pr.paper.ArxivID, &pr.paper.Title, &pr.paper.Abstract, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		if pr.paper.PublishedAt, err = time.Parse(dateLayout, publishedAt); err != nil {
			return nil, fmt.Errorf("parse published_at: %w", err)
		}
		paperRows = append(paperRows, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}

	index, err := r.loadCategoryIndex(ctx)
	if err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(paperRows))
	for _, pr := range paperRows {
		if pr.paper.Categories, err = r.paperCategories(ctx, pr.id, index); err != nil {
			return nil, err
		}
		papers = append(papers, pr.paper)
	}
	return papers, nil
}

// DeletePapers removes the given papers. If any arxiv id is unknown,
// nothing is deleted and the error names every missing one.
func (r *PaperRepository) DeletePapers(ctx context.Context, arxivIDs []string) error {
	unique := make([]string, 0, len(arxivIDs))
	seen := map[string]struct{}{}
	for _, id := range arxivIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	existing, err := r.paperIDs(ctx, unique)
	if err != nil {
		return err
	}

	var missing []string
	for _, id := range unique {
		if _, ok := existing[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &ports.PapersNotFoundError{ArxivIDs: missing}
	}
	if len(existing) == 0 {
		return nil
	}

	query, args, err := psq.Delete("paper").Where(sq.Eq{"id": values(existing)}).ToSql()
	if err != nil {
		return fmt.Errorf("build paper delete: %w", err)
	}
	if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete papers: %w", err)
	}
	return nil
}

// categoryIndex is an in-memory snapshot of the category table. The
// archive → children mapping replaces the self-referential view the
// subcategory relation would otherwise need.
type categoryIndex struct {
	rows              []categoryRow
	byID              map[domain.CategoryID]int
	childrenByArchive map[string][]domain.Category
}

type categoryRow struct {
	id  int64
	cat domain.Category
}

func (ix *categoryIndex) materialize(id domain.CategoryID) (domain.Category, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return domain.Category{}, false
	}
	category := ix.rows[i].cat
	if id.IsArchive() {
		category.Subcategories = append([]domain.Category(nil), ix.childrenByArchive[id.Archive]...)
	}
	return category, true
}

func (ix *categoryIndex) dbID(id domain.CategoryID) (int64, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return 0, false
	}
	return ix.rows[i].id, true
}

func (r *PaperRepository) loadCategoryIndex(ctx context.Context) (*categoryIndex, error) {
	query, args, err := psq.Select("id", "archive", "subcategory", "archive_name", "category_name", "description").
		From("category").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build category select: %w", err)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	index := &categoryIndex{
		byID:              map[domain.CategoryID]int{},
		childrenByArchive: map[string][]domain.Category{},
	}
	for rows.Next() {
		var (
			row                                     categoryRow
			archiveName, categoryName, description sql.NullString
		)
		if err := rows.Scan(&row.id, &row.cat.ID.Archive, &row.cat.ID.Subcategory, &archiveName, &categoryName, &description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		row.cat.ArchiveName = archiveName.String
		row.cat.CategoryName = categoryName.String
		row.cat.Description = description.String

		index.byID[row.cat.ID] = len(index.rows)
		index.rows = append(index.rows, row)
		if !row.cat.ID.IsArchive() {
			index.childrenByArchive[row.cat.ID.Archive] = append(index.childrenByArchive[row.cat.ID.Archive], row.cat)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return index, nil
}

func (r *PaperRepository) paperCategories(ctx context.Context, paperID int64, index *categoryIndex) ([]domain.Category, error) {
	query, args, err := psq.Select("c.archive", "c.subcategory").
		From("category c").
		Join("paper_category pc ON pc.category_id = c.id").
		Where(sq.Eq{"pc.paper_id": paperID}).
		OrderBy("c.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build paper category select: %w", err)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load paper categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var id domain.CategoryID
		if err := rows.Scan(&id.Archive, &id.Subcategory); err != nil {
			return nil, fmt.Errorf("scan paper category: %w", err)
		}
		if category, ok := index.materialize(id); ok {
			categories = append(categories, category)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper categories: %w", err)
	}
	return categories, nil
}

func (r *PaperRepository) paperIDs(ctx context.Context, arxivIDs []string) (map[string]int64, error) {
	if len(arxivIDs) == 0 {
		return map[string]int64{}, nil
	}

	query, args, err := psq.Select("arxiv_id", "id").From("paper").Where(sq.Eq{"arxiv_id": arxivIDs}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build paper id select: %w", err)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load paper ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64, len(arxivIDs))
	for rows.Next() {
		var (
			arxivID string
			id      int64
		)
		if err := rows.Scan(&arxivID, &id); err != nil {
			return nil, fmt.Errorf("scan paper id: %w", err)
		}
		ids[arxivID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper ids: %w", err)
	}
	return ids, nil
}

func validatePaperCategories(papers []domain.Paper, index *categoryIndex) error {
	var (
		missing []domain.CategoryID
		seen    = map[domain.CategoryID]struct{}{}
	)
	for _, p := range papers {
		for _, c := range p.Categories {
			if _, ok := index.byID[c.ID]; ok {
				continue
			}
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			missing = append(missing, c.ID)
		}
	}
	if len(missing) > 0 {
		return &ports.CategoriesNotFoundError{IDs: missing}
	}
	return nil
}

func chunkCategories(categories []domain.Category, size int) [][]domain.Category {
	var chunks [][]domain.Category
	for len(categories) > size {
		chunks = append(chunks, categories[:size])
		categories = categories[size:]
	}
	if len(categories) > 0 {
		chunks = append(chunks, categories)
	}
	return chunks
}

func chunkPapers(papers []domain.Paper, size int) [][]domain.Paper {
	var chunks [][]domain.Paper
	for len(papers) > size {
		chunks = append(chunks, papers[:size])
		papers = papers[size:]
	}
	if len(papers) > 0 {
		chunks = append(chunks, papers)
	}
	return chunks
}

func values(m map[string]int64) []int64 {
	out := make([]int64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
