package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SiteSnapshot represents a crawl of a brand's public site. A completed
// snapshot materializes as an html Document so deck builds can consume it.
type SiteSnapshot struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BrandID      primitive.ObjectID  `bson:"brand_id" json:"brand_id"`
	URL          string              `bson:"url" json:"url"`
	Status       string              `bson:"status" json:"status"` // pending, fetching, completed, failed
	Progress     int                 `bson:"progress" json:"progress"`
	Title        string              `bson:"title,omitempty" json:"title,omitempty"`
	PagesFound   int                 `bson:"pages_found" json:"pages_found"`
	PagesFetched int                 `bson:"pages_fetched" json:"pages_fetched"`
	Error        string              `bson:"error,omitempty" json:"error,omitempty"`
	DocumentID   *primitive.ObjectID `bson:"document_id,omitempty" json:"document_id,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
	FetchedAt    *time.Time          `bson:"fetched_at,omitempty" json:"fetched_at,omitempty"`

	// Crawling configuration
	MaxPages       int      `bson:"max_pages,omitempty" json:"max_pages,omitempty"`
	AllowedDomains []string `bson:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	AllowedPaths   []string `bson:"allowed_paths,omitempty" json:"allowed_paths,omitempty"`
	FollowLinks    bool     `bson:"follow_links" json:"follow_links"`
	RespectRobots  bool     `bson:"respect_robots" json:"respect_robots"`
	RenderJS       bool     `bson:"render_js,omitempty" json:"render_js,omitempty"` // headless-browser rendering for script-heavy sites

	// Extracted data
	Pages []SnapshotPage `bson:"pages,omitempty" json:"pages,omitempty"`
	Facts []SiteFact     `bson:"facts,omitempty" json:"facts,omitempty"`

	// Compressed page text for storage; Pages[].Content is emptied once this is set
	CompressedContent []byte `bson:"compressed_content,omitempty" json:"-"`

	// Processing metadata
	FetchTime  time.Duration `bson:"fetch_time,omitempty" json:"fetch_time,omitempty"`
	RetryCount int           `bson:"retry_count,omitempty" json:"retry_count,omitempty"`
}

// SnapshotPage represents a single fetched page
type SnapshotPage struct {
	URL        string    `bson:"url" json:"url"`
	Title      string    `bson:"title" json:"title"`
	Content    string    `bson:"content" json:"content"`
	FetchedAt  time.Time `bson:"fetched_at" json:"fetched_at"`
	StatusCode int       `bson:"status_code" json:"status_code"`
	Size       int64     `bson:"size" json:"size"`
	WordCount  int       `bson:"word_count,omitempty" json:"word_count,omitempty"`
}

// SiteFact is a structured fact parsed from JSON-LD or meta tags, such as
// the organization name, description or social profiles.
type SiteFact struct {
	Name      string    `bson:"name" json:"name"`
	Value     string    `bson:"value" json:"value"`
	SourceURL string    `bson:"source_url" json:"source_url"`
	ParsedAt  time.Time `bson:"parsed_at" json:"parsed_at"`
}

// CreateSnapshotRequest starts a snapshot of the given site
type CreateSnapshotRequest struct {
	URL      string `json:"url" binding:"required,url"`
	MaxPages int    `json:"max_pages,omitempty" binding:"omitempty,min=1,max=100"`
	RenderJS bool   `json:"render_js,omitempty"`
}

// Snapshot status constants
const (
	SnapshotStatusPending   = "pending"
	SnapshotStatusFetching  = "fetching"
	SnapshotStatusCompleted = "completed"
	SnapshotStatusFailed    = "failed"
	SnapshotStatusCancelled = "cancelled"
)
