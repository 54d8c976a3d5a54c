package db

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"nilewire.dev/ingest-pipeline/internal/globaltime"
	"nilewire.dev/ingest-pipeline/internal/pipeline"
)

// ArticleStore persists admitted articles and answers the pipeline's
// identity and semantic-window lookups against news.articles.
type ArticleStore struct {
	pool *Pool
}

var _ pipeline.Store = (*ArticleStore)(nil)

func NewArticleStore(pool *Pool) *ArticleStore {
	return &ArticleStore{pool: pool}
}

func (s *ArticleStore) URLExists(ctx context.Context, url string) (bool, error) {
	const q = `
SELECT 1
FROM news.articles
WHERE url = $1
`
	var one int
	err := s.pool.QueryRow(ctx, q, url).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("query url exists: %w", err)
	}
	return true, nil
}

func (s *ArticleStore) NearestInWindow(ctx context.Context, embedding pipeline.Vector, cutoff time.Time) (pipeline.Neighbor, bool, error) {
	literal, err := toVectorLiteral(embedding)
	if err != nil {
		return pipeline.Neighbor{}, false, fmt.Errorf("serialize query vector: %w", err)
	}

	const q = `
SELECT
	article_id,
	title,
	url,
	(1 - (embedding <=> $1::vector))::DOUBLE PRECISION AS similarity
FROM news.articles
WHERE inserted_at >= $2
ORDER BY embedding <=> $1::vector ASC
LIMIT 1
`
	var neighbor pipeline.Neighbor
	err = s.pool.QueryRow(ctx, q, literal, cutoff.UTC()).Scan(
		&neighbor.ArticleID,
		&neighbor.Title,
		&neighbor.URL,
		&neighbor.Similarity,
	)
	if err != nil {
		if IsNoRows(err) {
			return pipeline.Neighbor{}, false, nil
		}
		return pipeline.Neighbor{}, false, fmt.Errorf("query nearest in window: %w", err)
	}
	return neighbor, true, nil
}

func (s *ArticleStore) Insert(ctx context.Context, article pipeline.AdmittedArticle) (int64, error) {
	literal, err := toVectorLiteral(article.Embedding)
	if err != nil {
		return 0, fmt.Errorf("serialize embedding: %w", err)
	}

	const q = `
INSERT INTO news.articles (
	source,
	language,
	category,
	title,
	url,
	summary,
	full_text,
	image_url,
	sentiment,
	published_at,
	fetched_at,
	embedding,
	inserted_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::vector, $13)
RETURNING article_id
`
	var articleID int64
	err = s.pool.QueryRow(
		ctx,
		q,
		article.Source,
		article.Language,
		article.Category,
		article.Title,
		article.URL,
		article.Summary,
		nullableString(article.FullText),
		nullableString(article.ImageURL),
		nullableString(article.Sentiment),
		article.PublishedAt,
		article.FetchedAt.UTC(),
		literal,
		globaltime.UTC(),
	).Scan(&articleID)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, fmt.Errorf("insert url=%s: %w", article.URL, pipeline.ErrDuplicateURL)
		}
		return 0, fmt.Errorf("insert article url=%s: %w", article.URL, err)
	}
	return articleID, nil
}

func toVectorLiteral(values pipeline.Vector) (string, error) {
	if len(values) != vectorDimensions {
		return "", fmt.Errorf("expected %d dimensions, got %d", vectorDimensions, len(values))
	}

	var builder strings.Builder
	builder.Grow(len(values) * 8)
	builder.WriteByte('[')
	for i, value := range values {
		if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
			return "", fmt.Errorf("vector has non-finite value at index %d", i)
		}
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(value), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
