package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xlog-social/xlog/domain"
)

const (
	sqlInsertPost = `INSERT INTO posts(id, author_id, title, content_html, summary, banner_url, hashtags, like_count, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPost                   = `SELECT id, author_id, title, content_html, summary, banner_url, hashtags, like_count, published_at, updated_at FROM posts`
	sqlSelectPostById               = sqlSelectPost + ` WHERE id = ?`
	sqlSelectPublishedPostsByAuthor = sqlSelectPost + ` WHERE author_id = ? AND published_at IS NOT NULL ORDER BY published_at DESC LIMIT ?`
	sqlCountPublishedPosts          = `SELECT COUNT(*) FROM posts WHERE published_at IS NOT NULL`
	sqlPublishPost                  = `UPDATE posts SET published_at = ?, updated_at = ? WHERE id = ? AND published_at IS NULL`
	sqlIncrementLikeCount           = `UPDATE posts SET like_count = like_count + 1 WHERE id = ?`
	sqlDecrementLikeCount           = `UPDATE posts SET like_count = CASE WHEN like_count > 0 THEN like_count - 1 ELSE 0 END WHERE id = ?`
)

func (db *DB) CreatePost(ctx context.Context, p *domain.Post) error {
	tags := p.Hashtags
	if tags == nil {
		tags = []string{}
	}
	hashtags, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	var publishedAt sql.NullInt64
	if p.PublishedAt != nil {
		publishedAt = sql.NullInt64{Int64: toMillis(*p.PublishedAt), Valid: true}
	}

	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.rebind(sqlInsertPost),
			p.Id.String(),
			p.AuthorId.String(),
			p.Title,
			p.ContentHtml,
			nullString(p.Summary),
			nullString(p.BannerURL),
			string(hashtags),
			p.LikeCount,
			publishedAt,
			toMillis(p.UpdatedAt),
		)
		return err
	})
}

func (db *DB) ReadPost(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	p, err := scanPost(db.db.QueryRowContext(ctx, db.rebind(sqlSelectPostById), id.String()))
	if err != nil {
		return nil, notFound(err, "post "+id.String())
	}
	return p, nil
}

// ReadPublishedPostsByAuthor returns the newest published posts first.
func (db *DB) ReadPublishedPostsByAuthor(ctx context.Context, authorId uuid.UUID, limit int) ([]domain.Post, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(sqlSelectPublishedPostsByAuthor), authorId.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (db *DB) CountPublishedPosts(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountPublishedPosts).Scan(&n)
	return n, err
}

// PublishPost stamps an unpublished post. It reports false if the post was
// already published or does not exist.
func (db *DB) PublishPost(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	n, err := db.exec(ctx, sqlPublishPost, toMillis(at), toMillis(at), id.String())
	return n == 1, err
}

func (db *DB) IncrementLikeCount(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := db.exec(ctx, sqlIncrementLikeCount, id.String())
	return n == 1, err
}

// DecrementLikeCount never takes like_count below zero.
func (db *DB) DecrementLikeCount(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := db.exec(ctx, sqlDecrementLikeCount, id.String())
	return n == 1, err
}

func scanPost(row scanner) (*domain.Post, error) {
	var (
		p                domain.Post
		idStr, authorStr string
		summary, banner  sql.NullString
		hashtags         string
		publishedAt      sql.NullInt64
		updatedAt        int64
	)
	err := row.Scan(&idStr, &authorStr, &p.Title, &p.ContentHtml, &summary, &banner, &hashtags, &p.LikeCount, &publishedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if p.Id, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("post id %q: %w", idStr, err)
	}
	if p.AuthorId, err = uuid.Parse(authorStr); err != nil {
		return nil, fmt.Errorf("post author %q: %w", authorStr, err)
	}
	if err := json.Unmarshal([]byte(hashtags), &p.Hashtags); err != nil {
		return nil, fmt.Errorf("post %s hashtags: %w", idStr, err)
	}
	p.Summary = summary.String
	p.BannerURL = banner.String
	if publishedAt.Valid {
		t := fromMillis(publishedAt.Int64)
		p.PublishedAt = &t
	}
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}
