package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents one uploaded brand document for both sync and async processing
type Document struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID            primitive.ObjectID `bson:"brand_id" json:"brand_id"`
	Filename           string             `bson:"filename" json:"filename"`
	OriginalName       string             `bson:"original_name" json:"original_name"`
	Format             string             `bson:"format" json:"format"`       // pdf, text, markdown, html, other
	Sensitive          bool               `bson:"sensitive" json:"sensitive"` // sensitive documents never leave the box
	FilePath           string             `bson:"file_path" json:"-"`         // storage path, never exposed over the API
	FileHash           string             `bson:"file_hash" json:"file_hash"` // For deduplication
	ContentChunks      []ContentChunk     `bson:"content_chunks,omitempty" json:"content_chunks,omitempty"`
	CompressionEnabled bool               `bson:"compression_enabled" json:"compression_enabled"`
	Summary            string             `bson:"summary,omitempty" json:"summary,omitempty"`
	TotalTokens        int                `bson:"total_tokens" json:"total_tokens"`
	Status             string             `bson:"status" json:"status"` // pending, processing, completed, failed
	Progress           int                `bson:"progress" json:"progress"`
	ErrorMessage       string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt         time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt        *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	Metadata           DocumentMetadata   `bson:"metadata" json:"metadata"`
}

// ContentChunk represents a text chunk from a document
type ContentChunk struct {
	ChunkID     string    `bson:"chunk_id" json:"chunk_id"`
	Text        string    `bson:"text" json:"text"`
	Compressed  bool      `bson:"compressed,omitempty" json:"compressed,omitempty"`
	Compression string    `bson:"compression,omitempty" json:"compression,omitempty"`
	Order       int       `bson:"order" json:"order"`
	StartIndex  int       `bson:"start_index,omitempty" json:"start_index,omitempty"`
	EndIndex    int       `bson:"end_index,omitempty" json:"end_index,omitempty"`
	CharCount   int       `bson:"char_count,omitempty" json:"char_count,omitempty"`
	WordCount   int       `bson:"word_count,omitempty" json:"word_count,omitempty"`
	Keywords    []string  `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Summary     string    `bson:"summary,omitempty" json:"summary,omitempty"`
	TokenCount  int       `bson:"token_count,omitempty" json:"token_count,omitempty"`
	Vector      []float32 `bson:"vector,omitempty" json:"-"` // Optional: Atlas Vector Search
}

// DocumentMetadata contains processing metadata
type DocumentMetadata struct {
	Size             int64         `bson:"size" json:"size"`
	Pages            int           `bson:"pages" json:"pages"`
	ProcessingTime   time.Duration `bson:"processing_time" json:"processing_time"`
	ExtractionMethod string        `bson:"extraction_method" json:"extraction_method"`
	WordCount        int           `bson:"word_count" json:"word_count"`
	CharacterCount   int           `bson:"character_count" json:"character_count"`
}

// Document status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Document format constants
const (
	FormatPDF      = "pdf"
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatOther    = "other"
)

// Extraction method constants
const (
	ExtractionMethodPDF      = "pdf-native"
	ExtractionMethodPlain    = "plain-text"
	ExtractionMethodMarkdown = "markdown-strip"
	ExtractionMethodHTML     = "html-strip"
	ExtractionMethodSnapshot = "site-snapshot"
)
