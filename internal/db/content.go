package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/models"
)

// InsertSummary persists one Axios-style summary and returns its ID.
func (db *DB) InsertSummary(ctx context.Context, summary *models.NewsSummary) (uuid.UUID, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	id := uuid.New()
	query := `INSERT INTO summaries (id, axios_summary) VALUES ($1, $2)`
	if _, err := db.ExecContext(ctx, query, id, data); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert summary: %w", err)
	}

	return id, nil
}

// InsertVideo persists one assembled video row and returns its ID.
func (db *DB) InsertVideo(ctx context.Context, video *models.Video) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO videos (id, summary_id, video_url, thumbnail_url, duration, script)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.ExecContext(
		ctx, query,
		id, video.SummaryID, video.VideoURL, video.ThumbnailURL, video.Duration, video.Script,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert video: %w", err)
	}

	return id, nil
}

// InsertUserContent links a produced video to its owner's feed.
func (db *DB) InsertUserContent(ctx context.Context, owner, videoID uuid.UUID) error {
	query := `
		INSERT INTO user_content (id, owner_id, video_id, viewed, liked)
		VALUES ($1, $2, $3, false, false)
	`
	if _, err := db.ExecContext(ctx, query, uuid.New(), owner, videoID); err != nil {
		return fmt.Errorf("failed to insert user content: %w", err)
	}
	return nil
}

// ListUserContent returns the owner's completed content items with their
// videos and summaries, most recent first.
func (db *DB) ListUserContent(ctx context.Context, owner uuid.UUID) ([]models.ContentItem, error) {
	query := `
		SELECT
			uc.id, uc.viewed, uc.liked, uc.created_at,
			v.id, v.summary_id, v.video_url, v.thumbnail_url, v.duration, v.script, v.created_at,
			s.axios_summary
		FROM user_content uc
		JOIN videos v ON v.id = uc.video_id
		LEFT JOIN summaries s ON s.id = v.summary_id
		WHERE uc.owner_id = $1
		ORDER BY uc.created_at DESC
	`

	rows, err := db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query user content: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var item models.ContentItem
		var summaryJSON []byte
		err := rows.Scan(
			&item.ID, &item.Viewed, &item.Liked, &item.CreatedAt,
			&item.Video.ID, &item.Video.SummaryID, &item.Video.VideoURL,
			&item.Video.ThumbnailURL, &item.Video.Duration, &item.Video.Script,
			&item.Video.CreatedAt,
			&summaryJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}

		if len(summaryJSON) > 0 {
			var summary models.NewsSummary
			if err := json.Unmarshal(summaryJSON, &summary); err == nil {
				item.Summary = &summary
			}
		}

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read content items: %w", err)
	}

	return items, nil
}
