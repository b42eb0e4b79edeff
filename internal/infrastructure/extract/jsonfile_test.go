package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

func writeDump(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.json")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func dumpLine(id, date, categories string) string {
	return `{"id":"` + id + `","title":"Title ` + id + `","abstract":"Abstract ` + id + `","update_date":"` + date + `","categories":"` + categories + `"}`
}

func TestJSONFileFetchHistorical(t *testing.T) {
	t.Parallel()

	path := writeDump(t,
		dumpLine("2401.00001", "2024-01-01", "cs.AI"),
		dumpLine("2401.00002", "2024-01-02", "cs.AI stat.ML"),
		dumpLine("2401.00003", "2024-01-03", "cs.CL"),
		dumpLine("2401.00004", "2024-01-04", "math.AG"),
		dumpLine("2401.00005", "2024-01-05", "cs.AI"),
		dumpLine("2401.00002", "2024-01-02", "cs.AI"),
	)
	src := NewJSONFileSource(path, nil)

	archive := domain.Category{
		ID: domain.CategoryID{Archive: "cs"},
		Subcategories: []domain.Category{
			{ID: domain.CategoryID{Archive: "cs", Subcategory: "AI"}},
			{ID: domain.CategoryID{Archive: "cs", Subcategory: "CL"}},
		},
	}
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	dtos, err := src.FetchHistorical(context.Background(), []domain.Category{archive}, &from, &to)
	require.NoError(t, err)

	ids := make([]string, len(dtos))
	for i, dto := range dtos {
		ids[i] = dto.ArxivID
	}
	assert.ElementsMatch(t, []string{"2401.00002", "2401.00003"}, ids,
		"archive request matches subcategories, bounds inclusive, duplicates collapse")
}

func TestJSONFileFetchHistoricalNoFilters(t *testing.T) {
	t.Parallel()

	path := writeDump(t,
		dumpLine("2401.00001", "2024-01-01", "cs.AI"),
		dumpLine("2401.00002", "2024-01-02", "math.AG"),
	)
	src := NewJSONFileSource(path, nil)

	dtos, err := src.FetchHistorical(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, dtos, 2, "no categories and no bounds means everything")
}

func TestJSONFileFetchHistoricalMissingField(t *testing.T) {
	t.Parallel()

	path := writeDump(t,
		`{"id":"2401.00001","title":"","abstract":"A","update_date":"2024-01-01","categories":"cs.AI"}`,
	)
	src := NewJSONFileSource(path, nil)

	_, err := src.FetchHistorical(context.Background(), nil, nil, nil)
	var missing *ports.PaperMissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "title", missing.Field)
}

func TestJSONFileFetchLatestNotSupported(t *testing.T) {
	t.Parallel()

	src := NewJSONFileSource("unused", nil)
	_, err := src.FetchLatest(context.Background(), nil)
	assert.ErrorIs(t, err, ports.ErrNotSupported)
}
