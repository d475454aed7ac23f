package domain

import (
	"time"

	"github.com/google/uuid"
)

// Post is the blog entry federated as an Article.
type Post struct {
	Id          uuid.UUID
	AuthorId    uuid.UUID
	Title       string
	ContentHtml string
	Summary     string
	BannerURL   string
	Hashtags    []string
	LikeCount   int
	PublishedAt *time.Time
	UpdatedAt   time.Time
}

func (p *Post) IsPublished() bool {
	return p.PublishedAt != nil
}
