package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS paper_vector (
	arxiv_id TEXT PRIMARY KEY,
	embedding BLOB NOT NULL,
	published_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_vector_category (
	arxiv_id TEXT NOT NULL REFERENCES paper_vector(arxiv_id) ON DELETE CASCADE,
	category TEXT NOT NULL,
	PRIMARY KEY (arxiv_id, category)
);
`

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Store keeps paper embeddings in a SQLite file separate from the
// relational database. Filters become SQL predicates; similarity ranking
// happens in memory over the filtered candidate set.
type Store struct {
	db *sql.DB
}

var _ ports.VectorIndex = (*Store)(nil)

// Open opens (or creates) the vector database at path.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vector database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores one embedding per paper, replacing any previous entry for
// the same arxiv id along with its category rows.
func (s *Store) Insert(ctx context.Context, embeddings [][]float32, papers []domain.Paper) error {
	if len(embeddings) != len(papers) {
		return fmt.Errorf("got %d embeddings for %d papers", len(embeddings), len(papers))
	}
	if len(papers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, p := range papers {
		query, args, err := psq.Insert("paper_vector").
			Columns("arxiv_id", "embedding", "published_at").
			Values(p.ArxivID, encodeEmbedding(embeddings[i]), p.PublishedAtInt()).
			Suffix(`ON CONFLICT (arxiv_id) DO UPDATE SET
				embedding = excluded.embedding,
				published_at = excluded.published_at`).ToSql()
		if err != nil {
			return fmt.Errorf("build vector upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert vector for %s: %w", p.ArxivID, err)
		}

		query, args, err = psq.Delete("paper_vector_category").Where(sq.Eq{"arxiv_id": p.ArxivID}).ToSql()
		if err != nil {
			return fmt.Errorf("build vector category delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete vector categories for %s: %w", p.ArxivID, err)
		}

		categories := domain.DedupeCategories(p.Categories)
		if len(categories) == 0 {
			continue
		}
		builder := psq.Insert("paper_vector_category").Columns("arxiv_id", "category")
		for _, c := range categories {
			builder = builder.Values(p.ArxivID, c.ID.String())
		}
		if query, args, err = builder.ToSql(); err != nil {
			return fmt.Errorf("build vector category insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert vector categories for %s: %w", p.ArxivID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vector insert: %w", err)
	}
	return nil
}

// Delete removes entries by arxiv id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, arxivIDs []string) error {
	if len(arxivIDs) == 0 {
		return nil
	}

	query, args, err := psq.Delete("paper_vector").Where(sq.Eq{"arxiv_id": arxivIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("build vector delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Query returns the arxiv ids of the topK stored papers most similar to
// the given embedding, most similar first. A nil filter matches everything;
// within the filter, category membership is any-of and the date bounds are
// inclusive.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filter *ports.SearchFilter) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}

	builder := psq.Select("arxiv_id", "embedding").From("paper_vector")
	if filter != nil {
		if len(filter.Categories) > 0 {
			ids := make([]string, len(filter.Categories))
			for i, id := range filter.Categories {
				ids[i] = id.String()
			}
			builder = builder.Where(sq.Expr(
				"EXISTS (SELECT 1 FROM paper_vector_category pc WHERE pc.arxiv_id = paper_vector.arxiv_id AND pc.category IN ("+sq.Placeholders(len(ids))+"))",
				toAny(ids)...,
			))
		}
		if filter.PublishedAfter != nil {
			builder = builder.Where(sq.GtOrEq{"published_at": dateInt(*filter.PublishedAfter)})
		}
		if filter.PublishedBefore != nil {
			builder = builder.Where(sq.LtOrEq{"published_at": dateInt(*filter.PublishedBefore)})
		}
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build vector query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	type scored struct {
		arxivID string
		score   float64
	}
	var candidates []scored
	for rows.Next() {
		var (
			arxivID string
			blob    []byte
		)
		if err := rows.Scan(&arxivID, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		candidate, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", arxivID, err)
		}
		candidates = append(candidates, scored{arxivID: arxivID, score: cosineSimilarity(embedding, candidate)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.arxivID
	}
	return ids, nil
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return embedding, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func dateInt(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
