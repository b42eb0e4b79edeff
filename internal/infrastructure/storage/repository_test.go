package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func beginTestTx(t *testing.T, db *sql.DB) (*sql.Tx, *PaperRepository) {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx, NewPaperRepository(tx)
}

func testTaxonomy() []domain.Category {
	return []domain.Category{
		{ID: domain.CategoryID{Archive: "cs"}, ArchiveName: "Computer Science"},
		{ID: domain.CategoryID{Archive: "cs", Subcategory: "AI"}, ArchiveName: "Computer Science", CategoryName: "Artificial Intelligence"},
		{ID: domain.CategoryID{Archive: "cs", Subcategory: "CV"}, ArchiveName: "Computer Science", CategoryName: "Computer Vision"},
		{ID: domain.CategoryID{Archive: "math", Subcategory: "AG"}, CategoryName: "Algebraic Geometry"},
	}
}

func TestCategoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))

	archive, ok, err := repo.GetCategory(ctx, domain.CategoryID{Archive: "cs"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Computer Science", archive.ArchiveName)
	require.Len(t, archive.Subcategories, 2, "archive node carries the derived children view")

	sub, ok, err := repo.GetCategory(ctx, domain.CategoryID{Archive: "cs", Subcategory: "AI"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Artificial Intelligence", sub.CategoryName)
	assert.Empty(t, sub.Subcategories)

	_, ok, err = repo.GetCategory(ctx, domain.CategoryID{Archive: "q-bio"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCategoryUpsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))

	updated := []domain.Category{
		{ID: domain.CategoryID{Archive: "cs", Subcategory: "AI"}, CategoryName: "AI, renamed"},
	}
	require.NoError(t, repo.UpsertCategories(ctx, updated))

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 4, "re-upsert does not duplicate rows")

	sub, ok, err := repo.GetCategory(ctx, domain.CategoryID{Archive: "cs", Subcategory: "AI"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AI, renamed", sub.CategoryName)
}

func TestDeleteCategoriesMissingLeavesState(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))

	err := repo.DeleteCategories(ctx, []domain.CategoryID{
		{Archive: "cs", Subcategory: "AI"},
		{Archive: "nonexistent", Subcategory: "X"},
	})
	var notFound *ports.CategoriesNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []domain.CategoryID{{Archive: "nonexistent", Subcategory: "X"}}, notFound.IDs)

	_, ok, err := repo.GetCategory(ctx, domain.CategoryID{Archive: "cs", Subcategory: "AI"})
	require.NoError(t, err)
	assert.True(t, ok, "all-or-nothing delete")
}

func testPaper(id string, categories ...domain.Category) domain.Paper {
	return domain.Paper{
		ArxivID:     id,
		Title:       "Title " + id,
		Abstract:    "Abstract " + id,
		PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Categories:  categories,
	}
}

func TestPaperRoundTrip(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))

	ai := domain.Category{ID: domain.CategoryID{Archive: "cs", Subcategory: "AI"}}
	cv := domain.Category{ID: domain.CategoryID{Archive: "cs", Subcategory: "CV"}}
	require.NoError(t, repo.UpsertPapers(ctx, []domain.Paper{testPaper("2401.00001", ai, cv)}))

	paper, ok, err := repo.GetPaper(ctx, "2401.00001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Title 2401.00001", paper.Title)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), paper.PublishedAt)

	ids := make([]string, len(paper.Categories))
	for i, c := range paper.Categories {
		ids[i] = c.ID.String()
	}
	assert.ElementsMatch(t, []string{"cs.AI", "cs.CV"}, ids)
	assert.Equal(t, "Artificial Intelligence", paper.Categories[0].CategoryName,
		"stored metadata comes back, not the caller's bare identifier")
}

func TestPaperUpsertIsIdempotentAndReplacesCategories(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))

	ai := domain.Category{ID: domain.CategoryID{Archive: "cs", Subcategory: "AI"}}
	ag := domain.Category{ID: domain.CategoryID{Archive: "math", Subcategory: "AG"}}
	require.NoError(t, repo.UpsertPapers(ctx, []domain.Paper{testPaper("2401.00001", ai)}))

	second := testPaper("2401.00001", ag)
	second.Title = "Changed Title"
	require.NoError(t, repo.UpsertPapers(ctx, []domain.Paper{second}))

	papers, err := repo.ListPapers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, papers, 1, "one row per arxiv id")
	assert.Equal(t, "Changed Title", papers[0].Title)
	require.Len(t, papers[0].Categories, 1)
	assert.Equal(t, "math.AG", papers[0].Categories[0].ID.String(), "category set replaced, not merged")
}

func TestPaperUpsertRejectsUnknownCategory(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))

	stray := domain.Category{ID: domain.CategoryID{Archive: "q-bio", Subcategory: "NC"}}
	err := repo.UpsertPapers(ctx, []domain.Paper{testPaper("2401.00001", stray)})

	var notFound *ports.CategoriesNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []domain.CategoryID{{Archive: "q-bio", Subcategory: "NC"}}, notFound.IDs)

	_, ok, err := repo.GetPaper(ctx, "2401.00001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListPapersLimit(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))
	require.NoError(t, repo.UpsertPapers(ctx, []domain.Paper{
		testPaper("2401.00001"),
		testPaper("2401.00002"),
		testPaper("2401.00003"),
	}))

	papers, err := repo.ListPapers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "2401.00001", papers[0].ArxivID, "insertion order")
}

func TestDeletePapersMissingLeavesState(t *testing.T) {
	db := openTestDB(t)
	_, repo := beginTestTx(t, db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCategories(ctx, testTaxonomy()))
	require.NoError(t, repo.UpsertPapers(ctx, []domain.Paper{testPaper("2401.00001")}))

	err := repo.DeletePapers(ctx, []string{"2401.00001", "2401.99999"})
	var notFound *ports.PapersNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"2401.99999"}, notFound.ArxivIDs)

	_, ok, err := repo.GetPaper(ctx, "2401.00001")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.DeletePapers(ctx, []string{"2401.00001"}))
	_, ok, err = repo.GetPaper(ctx, "2401.00001")
	require.NoError(t, err)
	assert.False(t, ok)
}
