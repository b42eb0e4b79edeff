package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

const (
	defaultFeedURL = "https://rss.arxiv.org/rss/"

	// feedLimit is the fixed result cap per feed request. A response of
	// exactly this size is assumed truncated and eligible for splitting.
	feedLimit = 2000
)

var versionSuffixExpr = regexp.MustCompile(`v\d+$`)

// FeedSource fetches the latest papers from the ArXiv RSS feed. The feed
// caps every response at feedLimit entries, so category sets whose combined
// result hits the cap are subdivided until each query fits.
type FeedSource struct {
	client  *http.Client
	baseURL string
	limit   int
	logger  *slog.Logger
}

var _ ports.PaperSource = (*FeedSource)(nil)

// NewFeedSource wires an HTTP client; a nil client gets a 20s timeout.
func NewFeedSource(client *http.Client, baseURL string, logger *slog.Logger) *FeedSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultFeedURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedSource{client: client, baseURL: baseURL, limit: feedLimit, logger: logger}
}

// FetchLatest walks a breadth-first work queue of category sets, fetching
// one feed page per set and splitting any set whose result hits the cap.
// An empty category set queries the unfiltered feed.
func (f *FeedSource) FetchLatest(ctx context.Context, categories []domain.Category) ([]ports.PaperDTO, error) {
	categories = append([]domain.Category(nil), categories...)
	domain.SortCategories(categories)

	queue := [][]domain.Category{categories}
	seen := 1
	processed := 0
	byID := map[string]ports.PaperDTO{}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		result, err := f.fetchFeed(ctx, item)
		if err != nil {
			return nil, err
		}

		if f.shouldSplit(result, item) {
			halves := splitCategories(item)
			queue = append(queue, halves...)
			seen += len(halves)
		} else if len(result) == f.limit {
			f.logger.Warn("feed result hit cap for a maximally specific query; result may be truncated",
				"categories", identifierStrings(item))
		}

		for _, dto := range result {
			byID[dto.ArxivID] = dto
		}
		processed++
		f.logger.Debug("feed page fetched", "processed", processed, "seen", seen, "entries", len(result))
	}

	dtos := make([]ports.PaperDTO, 0, len(byID))
	for _, dto := range byID {
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

// FetchHistorical is not supported: the live feed has no date-range notion.
func (f *FeedSource) FetchHistorical(ctx context.Context, categories []domain.Category, from, to *time.Time) ([]ports.PaperDTO, error) {
	return nil, fmt.Errorf("historical fetch from the rss feed: %w", ports.ErrNotSupported)
}

// shouldSplit reports whether a result must be subdivided: it hit the cap
// exactly, and the query can still be narrowed (multiple categories, or a
// single archive-level category that expands into subcategories). A single
// subcategory at the cap is already maximally specific.
func (f *FeedSource) shouldSplit(result []ports.PaperDTO, categories []domain.Category) bool {
	if len(result) != f.limit {
		return false
	}
	return len(categories) >= 2 || (len(categories) == 1 && categories[0].ID.IsArchive())
}

// splitCategories halves a category set by index order. A single category
// is first expanded into its subcategories.
func splitCategories(categories []domain.Category) [][]domain.Category {
	if len(categories) == 1 {
		categories = append([]domain.Category(nil), categories[0].Subcategories...)
		domain.SortCategories(categories)
	}
	mid := len(categories) / 2
	return [][]domain.Category{categories[:mid], categories[mid:]}
}

func (f *FeedSource) fetchFeed(ctx context.Context, categories []domain.Category) ([]ports.PaperDTO, error) {
	url := f.baseURL + strings.Join(identifierStrings(categories), "+")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", "paperloom/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %s", url, resp.Status)
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", url, err)
	}

	dtos := make([]ports.PaperDTO, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		dto, err := item.toPaperDTO()
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Description string   `xml:"description"`
	GUID        string   `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

func (it rssItem) toPaperDTO() (ports.PaperDTO, error) {
	if it.GUID == "" {
		return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: "guid", Entry: it.raw()}
	}
	title := strings.TrimSpace(it.Title)
	if title == "" {
		return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: "title", Entry: it.raw()}
	}
	if it.PubDate == "" {
		return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: "pubDate", Entry: it.raw()}
	}

	publishedAt, err := parsePubDate(it.PubDate)
	if err != nil {
		return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: "pubDate", Entry: it.raw()}
	}

	// GUIDs look like "oai:arXiv.org:2401.12345v2".
	id := it.GUID
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	id = versionSuffixExpr.ReplaceAllString(strings.TrimSpace(id), "")

	abstract := it.Description
	if i := strings.Index(abstract, "Abstract:"); i >= 0 {
		abstract = abstract[i+len("Abstract:"):]
	}
	abstract = strings.Join(strings.Fields(abstract), " ")

	categories := make([]string, 0, len(it.Categories))
	for _, c := range it.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	return ports.PaperDTO{
		ArxivID:     id,
		Title:       title,
		Abstract:    abstract,
		PublishedAt: publishedAt,
		Categories:  categories,
	}, nil
}

func (it rssItem) raw() string {
	return fmt.Sprintf("guid=%q title=%q pubDate=%q", it.GUID, it.Title, it.PubDate)
}

func parsePubDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func identifierStrings(categories []domain.Category) []string {
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID.String()
	}
	return ids
}
