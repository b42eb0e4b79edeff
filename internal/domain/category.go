package domain

import (
	"fmt"
	"sort"
	"strings"
)

// InvalidCategoryError reports a category string that does not match the
// "archive" or "archive.subcategory" form.
type InvalidCategoryError struct {
	Value string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category string: %q", e.Value)
}

// CategoryID identifies a taxonomy node. An empty Subcategory marks an
// archive-level node (e.g. "cs"); otherwise the node is a concrete
// subcategory (e.g. "cs.AI"). The zero-value-friendly struct is comparable
// and used directly as a map key.
type CategoryID struct {
	Archive     string
	Subcategory string
}

// ParseCategoryID parses "archive" or "archive.subcategory". Anything with
// more dot-separated parts, or an empty string, is invalid.
func ParseCategoryID(s string) (CategoryID, error) {
	if s == "" {
		return CategoryID{}, &InvalidCategoryError{Value: s}
	}
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return CategoryID{Archive: parts[0]}, nil
	case 2:
		return CategoryID{Archive: parts[0], Subcategory: parts[1]}, nil
	default:
		return CategoryID{}, &InvalidCategoryError{Value: s}
	}
}

// String returns the canonical form, round-tripping with ParseCategoryID.
func (id CategoryID) String() string {
	if id.Subcategory == "" {
		return id.Archive
	}
	return id.Archive + "." + id.Subcategory
}

// IsArchive reports whether the identifier names an archive-level node.
func (id CategoryID) IsArchive() bool {
	return id.Subcategory == ""
}

// Category is a taxonomy node with its descriptive metadata. Identity is the
// ID alone: two categories with the same ID are the same category regardless
// of metadata, so code keys sets and maps on ID.
type Category struct {
	ID           CategoryID
	ArchiveName  string
	CategoryName string
	Description  string

	// Subcategories is a derived view: for an archive-level node it holds
	// every persisted category sharing the archive. It is reconstructed by
	// the repository whenever a Category is materialized, never stored.
	Subcategories []Category
}

// SortCategories orders categories by their canonical identifier string.
// The feed splitter relies on this for deterministic halving.
func SortCategories(categories []Category) {
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].ID.String() < categories[j].ID.String()
	})
}

// DedupeCategories drops duplicate identifiers, keeping the first occurrence.
func DedupeCategories(categories []Category) []Category {
	seen := make(map[CategoryID]struct{}, len(categories))
	out := categories[:0]
	for _, c := range categories {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
