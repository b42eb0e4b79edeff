package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

// JSONFileSource reads papers from a bulk JSON-lines dump, one record per
// line, as published by the ArXiv metadata snapshots.
type JSONFileSource struct {
	path   string
	logger *slog.Logger
}

var _ ports.PaperSource = (*JSONFileSource)(nil)

// NewJSONFileSource reads from the given JSON-lines file path.
func NewJSONFileSource(path string, logger *slog.Logger) *JSONFileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONFileSource{path: path, logger: logger}
}

// FetchLatest is not supported: a static dump has no "latest" notion.
func (j *JSONFileSource) FetchLatest(ctx context.Context, categories []domain.Category) ([]ports.PaperDTO, error) {
	return nil, fmt.Errorf("latest fetch from a json dump: %w", ports.ErrNotSupported)
}

// FetchHistorical streams the dump and keeps records matching at least one
// requested category (archive-level requests match any of their
// subcategories) inside the inclusive [from, to] window.
func (j *JSONFileSource) FetchHistorical(ctx context.Context, categories []domain.Category, from, to *time.Time) ([]ports.PaperDTO, error) {
	wanted := map[string]struct{}{}
	for _, c := range categories {
		wanted[c.ID.String()] = struct{}{}
		for _, sub := range c.Subcategories {
			wanted[sub.ID.String()] = struct{}{}
		}
	}

	file, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("open dump %s: %w", j.path, err)
	}
	defer file.Close()

	byID := map[string]ports.PaperDTO{}
	reader := bufio.NewReaderSize(file, 1<<20)
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			dto, convErr := parseJSONEntry(raw)
			if convErr != nil {
				return nil, convErr
			}
			if matchesCategories(dto, wanted) && withinRange(dto.PublishedAt, from, to) {
				byID[dto.ArxivID] = dto
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dump %s: %w", j.path, err)
		}
	}

	j.logger.Debug("dump scanned", "lines", line, "matched", len(byID))

	dtos := make([]ports.PaperDTO, 0, len(byID))
	for _, dto := range byID {
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

type jsonPaperEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Abstract   string `json:"abstract"`
	UpdateDate string `json:"update_date"`
	Categories string `json:"categories"`
}

func parseJSONEntry(raw []byte) (ports.PaperDTO, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: "id", Entry: trimmed}
	}

	var entry jsonPaperEntry
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return ports.PaperDTO{}, fmt.Errorf("decode dump entry: %w", err)
	}

	for _, check := range []struct {
		field string
		value string
	}{
		{"id", entry.ID},
		{"title", entry.Title},
		{"abstract", entry.Abstract},
		{"update_date", entry.UpdateDate},
		{"categories", entry.Categories},
	} {
		if strings.TrimSpace(check.value) == "" {
			return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: check.field, Entry: trimmed}
		}
	}

	publishedAt, err := time.Parse("2006-01-02", entry.UpdateDate)
	if err != nil {
		return ports.PaperDTO{}, &ports.PaperMissingFieldError{Field: "update_date", Entry: trimmed}
	}

	return ports.PaperDTO{
		ArxivID:     strings.TrimSpace(entry.ID),
		Title:       strings.Join(strings.Fields(entry.Title), " "),
		Abstract:    strings.Join(strings.Fields(entry.Abstract), " "),
		PublishedAt: publishedAt,
		Categories:  strings.Fields(entry.Categories),
	}, nil
}

func matchesCategories(dto ports.PaperDTO, wanted map[string]struct{}) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, c := range dto.Categories {
		if _, ok := wanted[c]; ok {
			return true
		}
	}
	return false
}

func withinRange(date time.Time, from, to *time.Time) bool {
	if from != nil && date.Before(*from) {
		return false
	}
	if to != nil && date.After(*to) {
		return false
	}
	return true
}
