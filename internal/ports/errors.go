package ports

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"paperloom/internal/domain"
)

// ErrNotSupported marks a fetch direction a paper source intentionally does
// not implement (e.g. a bulk-file source has no "latest" notion).
var ErrNotSupported = errors.New("not supported by this source")

// CategoriesNotFoundError reports every requested category identifier
// missing from the repository, so a caller can correct a batch request in
// one round-trip.
type CategoriesNotFoundError struct {
	IDs []domain.CategoryID
}

func (e *CategoriesNotFoundError) Error() string {
	return fmt.Sprintf("categories %s not found in the repository", joinIDs(e.IDs))
}

// PapersNotFoundError reports every requested arxiv id missing from the
// repository.
type PapersNotFoundError struct {
	ArxivIDs []string
}

func (e *PapersNotFoundError) Error() string {
	ids := append([]string(nil), e.ArxivIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("papers %s not found in the repository", strings.Join(ids, ", "))
}

// CategoryFetchError reports a transport failure while fetching the
// category taxonomy.
type CategoryFetchError struct {
	URL string
	Err error
}

func (e *CategoryFetchError) Error() string {
	return fmt.Sprintf("fetch categories from %s: %v", e.URL, e.Err)
}

func (e *CategoryFetchError) Unwrap() error { return e.Err }

// CategoryParseError reports an unexpected taxonomy page structure.
type CategoryParseError struct {
	Reason string
}

func (e *CategoryParseError) Error() string {
	return "parse categories: " + e.Reason
}

// PaperMissingFieldError reports a source record lacking a required field.
// Entry carries the offending raw record for diagnosis.
type PaperMissingFieldError struct {
	Field string
	Entry string
}

func (e *PaperMissingFieldError) Error() string {
	return fmt.Sprintf("paper entry missing required field %q: %s", e.Field, e.Entry)
}

func joinIDs(ids []domain.CategoryID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
