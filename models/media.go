package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Media represents an uploaded media file (logo, deck asset)
type Media struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID      primitive.ObjectID `bson:"brand_id" json:"brand_id"`
	Filename     string             `bson:"filename" json:"filename"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	FilePath     string             `bson:"file_path" json:"file_path"`
	FileHash     string             `bson:"file_hash" json:"file_hash"`
	FileSize     int64              `bson:"file_size" json:"file_size"`
	MimeType     string             `bson:"mime_type" json:"mime_type"`
	MediaType    string             `bson:"media_type" json:"media_type"` // image, svg
	Purpose      string             `bson:"purpose" json:"purpose"`       // logo, deck_asset
	URL          string             `bson:"url" json:"url"`
	Status       string             `bson:"status" json:"status"` // active, deleted
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	Metadata     MediaMetadata      `bson:"metadata" json:"metadata"`
}

// Media type and purpose constants
const (
	MediaTypeImage = "image"
	MediaTypeSVG   = "svg"

	MediaPurposeLogo      = "logo"
	MediaPurposeDeckAsset = "deck_asset"
)

// MediaMetadata contains additional metadata about the media file
type MediaMetadata struct {
	Width       int    `bson:"width,omitempty" json:"width,omitempty"`
	Height      int    `bson:"height,omitempty" json:"height,omitempty"`
	IsAnimated  bool   `bson:"is_animated,omitempty" json:"is_animated,omitempty"` // for SVGs
	ColorDepth  int    `bson:"color_depth,omitempty" json:"color_depth,omitempty"`
	Compression string `bson:"compression,omitempty" json:"compression,omitempty"`
}

// MediaUploadResponse represents the response after successful upload
type MediaUploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}
