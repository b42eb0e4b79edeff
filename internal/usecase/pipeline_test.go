package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

// fakeRepo is an in-memory PaperRepository. Writes go to the live maps; the
// surrounding fakeTx snapshots them at Begin and restores on rollback.
type fakeRepo struct {
	categories map[domain.CategoryID]domain.Category
	catOrder   []domain.CategoryID
	papers     map[string]domain.Paper
	paperOrder []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		categories: map[domain.CategoryID]domain.Category{},
		papers:     map[string]domain.Paper{},
	}
}

func (r *fakeRepo) UpsertCategories(_ context.Context, categories []domain.Category) error {
	for _, c := range categories {
		if _, ok := r.categories[c.ID]; !ok {
			r.catOrder = append(r.catOrder, c.ID)
		}
		c.Subcategories = nil
		r.categories[c.ID] = c
	}
	return nil
}

func (r *fakeRepo) GetCategory(_ context.Context, id domain.CategoryID) (domain.Category, bool, error) {
	c, ok := r.categories[id]
	if !ok {
		return domain.Category{}, false, nil
	}
	return r.materialize(c), true, nil
}

func (r *fakeRepo) ListCategories(_ context.Context) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(r.catOrder))
	for _, id := range r.catOrder {
		out = append(out, r.materialize(r.categories[id]))
	}
	return out, nil
}

func (r *fakeRepo) DeleteCategories(_ context.Context, ids []domain.CategoryID) error {
	var missing []domain.CategoryID
	for _, id := range ids {
		if _, ok := r.categories[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &ports.CategoriesNotFoundError{IDs: missing}
	}
	for _, id := range ids {
		delete(r.categories, id)
	}
	return nil
}

func (r *fakeRepo) UpsertPapers(_ context.Context, papers []domain.Paper) error {
	var missing []domain.CategoryID
	for _, p := range papers {
		for _, c := range p.Categories {
			if _, ok := r.categories[c.ID]; !ok {
				missing = append(missing, c.ID)
			}
		}
	}
	if len(missing) > 0 {
		return &ports.CategoriesNotFoundError{IDs: missing}
	}
	for _, p := range papers {
		if _, ok := r.papers[p.ArxivID]; !ok {
			r.paperOrder = append(r.paperOrder, p.ArxivID)
		}
		r.papers[p.ArxivID] = p
	}
	return nil
}

func (r *fakeRepo) GetPaper(_ context.Context, arxivID string) (domain.Paper, bool, error) {
	p, ok := r.papers[arxivID]
	return p, ok, nil
}

func (r *fakeRepo) ListPapers(_ context.Context, limit int) ([]domain.Paper, error) {
	out := make([]domain.Paper, 0, len(r.paperOrder))
	for _, id := range r.paperOrder {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.papers[id])
	}
	return out, nil
}

func (r *fakeRepo) DeletePapers(_ context.Context, arxivIDs []string) error {
	var missing []string
	for _, id := range arxivIDs {
		if _, ok := r.papers[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &ports.PapersNotFoundError{ArxivIDs: missing}
	}
	for _, id := range arxivIDs {
		delete(r.papers, id)
	}
	return nil
}

func (r *fakeRepo) materialize(c domain.Category) domain.Category {
	if !c.ID.IsArchive() {
		return c
	}
	for _, id := range r.catOrder {
		if id.Archive == c.ID.Archive && !id.IsArchive() {
			c.Subcategories = append(c.Subcategories, r.categories[id])
		}
	}
	return c
}

func (r *fakeRepo) snapshot() *fakeRepo {
	clone := newFakeRepo()
	for id, c := range r.categories {
		clone.categories[id] = c
	}
	clone.catOrder = append([]domain.CategoryID(nil), r.catOrder...)
	for id, p := range r.papers {
		clone.papers[id] = p
	}
	clone.paperOrder = append([]string(nil), r.paperOrder...)
	return clone
}

func (r *fakeRepo) restore(snap *fakeRepo) {
	r.categories = snap.categories
	r.catOrder = snap.catOrder
	r.papers = snap.papers
	r.paperOrder = snap.paperOrder
}

type fakeTx struct {
	repo      *fakeRepo
	snap      *fakeRepo
	uow       *fakeUOW
	committed bool
}

func (t *fakeTx) Papers() ports.PaperRepository { return t.repo }

func (t *fakeTx) Commit() error {
	t.committed = true
	t.uow.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.committed {
		return nil
	}
	t.uow.rollbacks++
	t.repo.restore(t.snap)
	return nil
}

type fakeUOW struct {
	repo      *fakeRepo
	commits   int
	rollbacks int
}

func (u *fakeUOW) Begin(context.Context) (ports.Tx, error) {
	return &fakeTx{repo: u.repo, snap: u.repo.snapshot(), uow: u}, nil
}

type fakeCategorySource struct {
	dtos []ports.CategoryDTO
	err  error
}

func (s *fakeCategorySource) FetchCategories(context.Context) ([]ports.CategoryDTO, error) {
	return s.dtos, s.err
}

type fakePaperSource struct {
	dtos     []ports.PaperDTO
	err      error
	received []domain.Category
}

func (s *fakePaperSource) FetchLatest(_ context.Context, categories []domain.Category) ([]ports.PaperDTO, error) {
	s.received = categories
	return s.dtos, s.err
}

func (s *fakePaperSource) FetchHistorical(_ context.Context, categories []domain.Category, _, _ *time.Time) ([]ports.PaperDTO, error) {
	s.received = categories
	return s.dtos, s.err
}

func seedTaxonomy(t *testing.T, repo *fakeRepo) {
	t.Helper()
	err := repo.UpsertCategories(context.Background(), []domain.Category{
		{ID: domain.CategoryID{Archive: "cs"}, ArchiveName: "Computer Science"},
		{ID: domain.CategoryID{Archive: "cs", Subcategory: "AI"}, CategoryName: "Artificial Intelligence"},
		{ID: domain.CategoryID{Archive: "cs", Subcategory: "CL"}, CategoryName: "Computation and Language"},
		{ID: domain.CategoryID{Archive: "math"}, ArchiveName: "Mathematics"},
		{ID: domain.CategoryID{Archive: "math", Subcategory: "AG"}, CategoryName: "Algebraic Geometry"},
	})
	require.NoError(t, err)
}

func TestSyncCategories(t *testing.T) {
	t.Parallel()

	uow := &fakeUOW{repo: newFakeRepo()}
	p := NewPipeline(uow, nil)
	src := &fakeCategorySource{dtos: []ports.CategoryDTO{
		{Archive: "cs", Subcategory: "AI", CategoryName: "Artificial Intelligence"},
		{Archive: "cs", Subcategory: "AI", CategoryName: "duplicate"},
		{Archive: "cs", ArchiveName: "Computer Science"},
	}}

	categories, err := p.SyncCategories(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, categories, 2)
	assert.Equal(t, 1, uow.commits)

	stored, ok, err := uow.repo.GetCategory(context.Background(), domain.CategoryID{Archive: "cs", Subcategory: "AI"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Artificial Intelligence", stored.CategoryName, "first occurrence wins")
}

func TestIngestLatest(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	uow := &fakeUOW{repo: repo}
	p := NewPipeline(uow, nil)

	src := &fakePaperSource{dtos: []ports.PaperDTO{
		{
			ArxivID:     "2401.00001",
			Title:       "A Paper",
			Abstract:    "About things.",
			PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Categories:  []string{"cs.AI", "cmp-lg"},
		},
		{ArxivID: "2401.00001", Title: "A Paper", Categories: []string{"cs.AI"}},
	}}

	papers, err := p.IngestLatest(context.Background(), src, []string{"cs.AI", "cs.CL"})
	require.NoError(t, err)
	require.Len(t, papers, 1, "duplicate arxiv ids collapse")
	assert.Equal(t, 1, uow.commits)

	ids := make([]string, len(papers[0].Categories))
	for i, c := range papers[0].Categories {
		ids[i] = c.ID.String()
	}
	assert.ElementsMatch(t, []string{"cs.AI", "cs.CL"}, ids, "legacy cmp-lg canonicalizes to cs.CL")

	// cs.CL has a legacy alias, so the source sees the synthesized cmp-lg too.
	received := make([]string, len(src.received))
	for i, c := range src.received {
		received[i] = c.ID.String()
	}
	assert.ElementsMatch(t, []string{"cs.AI", "cs.CL", "cmp-lg"}, received)

	stored, ok, err := repo.GetPaper(context.Background(), "2401.00001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A Paper", stored.Title)
}

func TestIngestLatestAllMeansArchiveLevel(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	p := NewPipeline(&fakeUOW{repo: repo}, nil)

	src := &fakePaperSource{}
	_, err := p.IngestLatest(context.Background(), src, nil)
	require.NoError(t, err)

	received := make([]string, len(src.received))
	for i, c := range src.received {
		received[i] = c.ID.String()
	}
	assert.ElementsMatch(t, []string{"cs", "math"}, received)
}

func TestIngestLatestEmptyTaxonomy(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&fakeUOW{repo: newFakeRepo()}, nil)
	_, err := p.IngestLatest(context.Background(), &fakePaperSource{}, nil)
	assert.ErrorIs(t, err, ErrNoCategories)
}

func TestIngestLatestCollectsAllMissingCategories(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	p := NewPipeline(&fakeUOW{repo: repo}, nil)

	_, err := p.IngestLatest(context.Background(), &fakePaperSource{}, []string{"cs.AI", "nonexistent.X", "bogus.Y"})
	var notFound *ports.CategoriesNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.ElementsMatch(t, []domain.CategoryID{
		{Archive: "nonexistent", Subcategory: "X"},
		{Archive: "bogus", Subcategory: "Y"},
	}, notFound.IDs)
}

func TestIngestLatestUnknownDTOCategoryIsHardError(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	uow := &fakeUOW{repo: repo}
	p := NewPipeline(uow, nil)

	src := &fakePaperSource{dtos: []ports.PaperDTO{
		{ArxivID: "2401.00002", Title: "Stray", Categories: []string{"cs.AI", "q-bio.NC"}},
	}}

	_, err := p.IngestLatest(context.Background(), src, []string{"cs.AI"})
	var notFound *ports.CategoriesNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []domain.CategoryID{{Archive: "q-bio", Subcategory: "NC"}}, notFound.IDs)

	assert.Equal(t, 0, uow.commits)
	_, ok, _ := repo.GetPaper(context.Background(), "2401.00002")
	assert.False(t, ok, "failed ingestion leaves no partial writes")
}

func TestIngestLatestRollsBackOnFetchError(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	uow := &fakeUOW{repo: repo}
	p := NewPipeline(uow, nil)

	fetchErr := errors.New("network down")
	_, err := p.IngestLatest(context.Background(), &fakePaperSource{err: fetchErr}, []string{"cs.AI"})
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, 0, uow.commits)
	assert.Equal(t, 1, uow.rollbacks)
}

func TestIngestHistoricalNotSupported(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	p := NewPipeline(&fakeUOW{repo: repo}, nil)

	src := &fakePaperSource{err: ports.ErrNotSupported}
	_, err := p.IngestHistorical(context.Background(), src, []string{"cs.AI"}, nil, nil)
	assert.ErrorIs(t, err, ports.ErrNotSupported)
}

func TestIngestLatestMalformedCategoryString(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	seedTaxonomy(t, repo)
	p := NewPipeline(&fakeUOW{repo: repo}, nil)

	_, err := p.IngestLatest(context.Background(), &fakePaperSource{}, []string{"a.b.c"})
	var invalid *domain.InvalidCategoryError
	assert.ErrorAs(t, err, &invalid)
}
