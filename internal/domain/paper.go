package domain

import "time"

const arxivBaseURL = "https://arxiv.org"

// Paper is the core entity for an ArXiv paper. Identity is the ArxivID
// alone; all other fields are mutable content replaced on upsert.
type Paper struct {
	ArxivID     string
	Title       string
	Abstract    string
	PublishedAt time.Time
	Categories  []Category
}

// PublishedAtInt returns the published date as a sortable YYYYMMDD integer,
// the surrogate used for range filters in the vector store.
func (p Paper) PublishedAtInt() int {
	return p.PublishedAt.Year()*10000 + int(p.PublishedAt.Month())*100 + p.PublishedAt.Day()
}

// SummaryURL returns the abstract page URL.
func (p Paper) SummaryURL() string {
	return arxivBaseURL + "/abs/" + p.ArxivID
}

// PDFURL returns the PDF URL.
func (p Paper) PDFURL() string {
	return arxivBaseURL + "/pdf/" + p.ArxivID
}

// HTMLURL returns the HTML rendering URL.
func (p Paper) HTMLURL() string {
	return arxivBaseURL + "/html/" + p.ArxivID
}
