package db

import (
	"context"
	"fmt"

	"github.com/kehsibha/walter/internal/models"
)

// UpsertArticle inserts or refreshes an ingested article, keyed by its
// normalized content URL.
func (db *DB) UpsertArticle(ctx context.Context, article *models.Article) error {
	query := `
		INSERT INTO articles (headline, content_url, source, published_at, full_text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_url) DO UPDATE SET
			headline = EXCLUDED.headline,
			source = EXCLUDED.source,
			published_at = EXCLUDED.published_at,
			full_text = COALESCE(EXCLUDED.full_text, articles.full_text)
	`
	_, err := db.ExecContext(
		ctx, query,
		article.Headline, article.ContentURL, article.Source, article.PublishedAt, article.FullText,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}
	return nil
}

// RecentArticles returns the most recently published ingested articles.
func (db *DB) RecentArticles(ctx context.Context, limit int) ([]models.Article, error) {
	query := `
		SELECT headline, content_url, source, published_at, full_text
		FROM articles
		ORDER BY published_at DESC NULLS LAST
		LIMIT $1
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.Headline, &a.ContentURL, &a.Source, &a.PublishedAt, &a.FullText); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}

	return articles, nil
}
