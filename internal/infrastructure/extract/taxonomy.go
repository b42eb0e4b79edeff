package extract

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"paperloom/internal/ports"
)

const defaultTaxonomyURL = "https://arxiv.org/category_taxonomy"

var (
	categoryHeaderExpr = regexp.MustCompile(`([a-zA-Z\-]+)(?:\.([a-zA-Z\-]+))?\s*\(([^)]+)\)`)
	archiveHeaderExpr  = regexp.MustCompile(`^(.*?)\s*\(`)
)

// TaxonomySource scrapes the ArXiv category taxonomy page. The page is a
// flat sequence of h2 group headers, h3 archive headers, h4 category
// headers and p description paragraphs; state from the last seen header
// applies to following paragraphs.
type TaxonomySource struct {
	client *http.Client
	url    string
}

var _ ports.CategorySource = (*TaxonomySource)(nil)

// NewTaxonomySource wires an HTTP client; a nil client gets a 10s timeout.
func NewTaxonomySource(client *http.Client, url string) *TaxonomySource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if url == "" {
		url = defaultTaxonomyURL
	}
	return &TaxonomySource{client: client, url: url}
}

// FetchCategories downloads and parses the taxonomy page into category
// records, one per subcategory plus one synthesized archive-level record
// per distinct archive.
func (t *TaxonomySource) FetchCategories(ctx context.Context) ([]ports.CategoryDTO, error) {
	doc, err := t.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}

	list := doc.Find("div#category_taxonomy_list")
	if list.Length() == 0 {
		return nil, &ports.CategoryParseError{Reason: "category taxonomy list not found in the page"}
	}

	return extractCategories(list)
}

func (t *TaxonomySource) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, &ports.CategoryFetchError{URL: t.url, Err: err}
	}
	req.Header.Set("User-Agent", "paperloom/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ports.CategoryFetchError{URL: t.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ports.CategoryFetchError{URL: t.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ports.CategoryFetchError{URL: t.url, Err: fmt.Errorf("parse document: %w", err)}
	}

	return doc, nil
}

func extractCategories(list *goquery.Selection) ([]ports.CategoryDTO, error) {
	var (
		dtos         []ports.CategoryDTO
		seen         = map[string]struct{}{}
		groupName    string
		archiveName  string
		archive      string
		subcategory  string
		categoryName string
		parseErr     error
	)

	list.Find("h2, h3, h4, p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())

		switch goquery.NodeName(sel) {
		case "h2":
			groupName = text
			archiveName, archive, subcategory, categoryName = "", "", "", ""
		case "h3":
			archiveName = extractArchiveName(text)
			archive, subcategory, categoryName = "", "", ""
		case "h4":
			match := categoryHeaderExpr.FindStringSubmatch(text)
			if match == nil {
				parseErr = &ports.CategoryParseError{Reason: fmt.Sprintf("unparsable category header %q", text)}
				return false
			}
			archive, subcategory, categoryName = match[1], match[2], match[3]
		case "p":
			if archive == "" {
				parseErr = &ports.CategoryParseError{
					Reason: fmt.Sprintf("description for %q in group %q before any category header", categoryName, groupName),
				}
				return false
			}
			name := archiveName
			if name == "" {
				name = groupName
			}
			dto := ports.CategoryDTO{
				Archive:      archive,
				Subcategory:  subcategory,
				ArchiveName:  name,
				CategoryName: categoryName,
				Description:  text,
			}
			key := dto.Archive + "." + dto.Subcategory
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				dtos = append(dtos, dto)
			}
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return append(dtos, archiveLevelCategories(dtos, seen)...), nil
}

// archiveLevelCategories synthesizes one archive-level record per distinct
// archive that only appeared with subcategories.
func archiveLevelCategories(dtos []ports.CategoryDTO, seen map[string]struct{}) []ports.CategoryDTO {
	var archives []ports.CategoryDTO
	for _, dto := range dtos {
		if dto.Subcategory == "" {
			continue
		}
		key := dto.Archive + "."
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		archives = append(archives, ports.CategoryDTO{
			Archive:     dto.Archive,
			ArchiveName: dto.ArchiveName,
		})
	}
	return archives
}

func extractArchiveName(text string) string {
	match := archiveHeaderExpr.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}
