package services

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"brand-deck-platform/models"
	"brand-deck-platform/utils"
)

// MediaService stores brand assets: logos and images referenced by decks.
// Logo uploads also update the brand theme, so the next build picks the
// new logo up without a separate call.
type MediaService struct {
	mediaCollection *mongo.Collection
	brandsCol       *mongo.Collection
	storagePath     string
}

func NewMediaService(db *mongo.Database, storagePath string) *MediaService {
	return &MediaService{
		mediaCollection: db.Collection("media"),
		brandsCol:       db.Collection("brands"),
		storagePath:     storagePath,
	}
}

// UploadMedia handles media file uploads
func (s *MediaService) UploadMedia(ctx context.Context, brandID primitive.ObjectID, file *multipart.FileHeader, mediaType, purpose string) (*models.Media, error) {
	if err := s.validateFile(file, mediaType); err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	// Hash pass for deduplication
	hash := md5.New()
	head := make([]byte, 4096)
	headLen, _ := io.ReadFull(src, head)
	hash.Write(head[:headLen])
	if _, err := io.Copy(hash, src); err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	fileHash := fmt.Sprintf("%x", hash.Sum(nil))

	if err := s.validateContent(head[:headLen], mediaType); err != nil {
		return nil, err
	}

	existingMedia, err := s.findDuplicate(ctx, brandID, fileHash)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if existingMedia != nil {
		if purpose == models.MediaPurposeLogo {
			s.setBrandLogo(ctx, brandID, existingMedia.URL)
		}
		return existingMedia, nil
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	storageDir := filepath.Join(s.storagePath, "media", brandID.Hex())
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Extension comes from the validated MIME type, not the client's
	// filename, so stored files always carry a known image extension.
	ext := utils.GetImageExtension(file.Header.Get("Content-Type"))
	secureFilename := fmt.Sprintf("%s_%d%s", fileHash[:8], time.Now().Unix(), ext)
	filePath := filepath.Join(storageDir, secureFilename)

	dst, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	media := &models.Media{
		ID:           primitive.NewObjectID(),
		BrandID:      brandID,
		Filename:     secureFilename,
		OriginalName: file.Filename,
		FilePath:     filePath,
		FileHash:     fileHash,
		FileSize:     file.Size,
		MimeType:     file.Header.Get("Content-Type"),
		MediaType:    mediaType,
		Purpose:      purpose,
		URL:          fmt.Sprintf("/media/%s/%s", brandID.Hex(), secureFilename),
		Status:       "active",
		UploadedAt:   time.Now(),
		Metadata:     extractMediaMetadata(head[:headLen], mediaType),
	}

	if _, err := s.mediaCollection.InsertOne(ctx, media); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to save media record: %w", err)
	}

	if purpose == models.MediaPurposeLogo {
		s.setBrandLogo(ctx, brandID, media.URL)
	}

	return media, nil
}

// setBrandLogo points the brand theme at the uploaded logo. Best effort.
func (s *MediaService) setBrandLogo(ctx context.Context, brandID primitive.ObjectID, url string) {
	if _, err := s.brandsCol.UpdateOne(ctx, bson.M{"_id": brandID}, bson.M{"$set": bson.M{
		"theme.logo_url": url,
		"updated_at":     time.Now(),
	}}); err != nil {
		log.Printf("⚠️ Failed to update brand logo for %s: %v", brandID.Hex(), err)
	}
}

// validateFile validates the uploaded file
func (s *MediaService) validateFile(file *multipart.FileHeader, mediaType string) error {
	// 5MB cap for brand assets
	const maxSize = 5 * 1024 * 1024
	if file.Size > maxSize {
		return fmt.Errorf("file size exceeds 5MB limit: %w", utils.ErrMalformedInput)
	}
	if file.Size == 0 {
		return fmt.Errorf("file is empty: %w", utils.ErrMalformedInput)
	}

	mimeType := file.Header.Get("Content-Type")
	switch mediaType {
	case models.MediaTypeImage:
		allowedTypes := []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"}
		if !contains(allowedTypes, mimeType) {
			return fmt.Errorf("invalid image type %s: %w", mimeType, utils.ErrMalformedInput)
		}
	case models.MediaTypeSVG:
		if mimeType != "image/svg+xml" {
			return fmt.Errorf("invalid SVG type %s: %w", mimeType, utils.ErrMalformedInput)
		}
	default:
		return fmt.Errorf("unsupported media type %s: %w", mediaType, utils.ErrMalformedInput)
	}

	return nil
}

// validateContent screens the leading bytes. SVG is XML and gets served
// back to browsers, so scripted SVGs are rejected outright.
func (s *MediaService) validateContent(head []byte, mediaType string) error {
	if mediaType != models.MediaTypeSVG {
		return nil
	}
	lower := strings.ToLower(string(head))
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		return fmt.Errorf("svg contains script content: %w", utils.ErrMalformedInput)
	}
	return nil
}

// findDuplicate checks for existing media with the same hash
func (s *MediaService) findDuplicate(ctx context.Context, brandID primitive.ObjectID, fileHash string) (*models.Media, error) {
	var media models.Media
	err := s.mediaCollection.FindOne(ctx, bson.M{
		"brand_id":  brandID,
		"file_hash": fileHash,
		"status":    "active",
	}).Decode(&media)

	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &media, nil
}

// extractMediaMetadata derives light metadata from the leading bytes.
func extractMediaMetadata(head []byte, mediaType string) models.MediaMetadata {
	metadata := models.MediaMetadata{}

	if mediaType == models.MediaTypeSVG {
		lower := strings.ToLower(string(head))
		metadata.IsAnimated = strings.Contains(lower, "<animate") || strings.Contains(lower, "dur=")
	}

	return metadata
}

// GetMediaByID retrieves media by ID scoped to a brand
func (s *MediaService) GetMediaByID(ctx context.Context, brandID, mediaID primitive.ObjectID) (*models.Media, error) {
	var media models.Media
	err := s.mediaCollection.FindOne(ctx, bson.M{
		"_id":      mediaID,
		"brand_id": brandID,
		"status":   "active",
	}).Decode(&media)

	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("media %s: %w", mediaID.Hex(), utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &media, nil
}

// GetMediaByBrand retrieves all media for a brand
func (s *MediaService) GetMediaByBrand(ctx context.Context, brandID primitive.ObjectID, purpose string) ([]*models.Media, error) {
	filter := bson.M{
		"brand_id": brandID,
		"status":   "active",
	}

	if purpose != "" {
		filter["purpose"] = purpose
	}

	cursor, err := s.mediaCollection.Find(ctx, filter, options.Find().SetSort(bson.M{
		"uploaded_at": -1,
	}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var media []*models.Media
	if err := cursor.All(ctx, &media); err != nil {
		return nil, err
	}

	return media, nil
}

// DeleteMedia soft deletes media
func (s *MediaService) DeleteMedia(ctx context.Context, brandID, mediaID primitive.ObjectID) error {
	result, err := s.mediaCollection.UpdateOne(ctx,
		bson.M{"_id": mediaID, "brand_id": brandID, "status": "active"},
		bson.M{"$set": bson.M{"status": "deleted"}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("media %s: %w", mediaID.Hex(), utils.ErrNotFound)
	}
	return nil
}

// CleanupDeletedMedia removes files for soft-deleted media records
func (s *MediaService) CleanupDeletedMedia(ctx context.Context) error {
	cursor, err := s.mediaCollection.Find(ctx, bson.M{"status": "deleted"})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var deletedMedia []*models.Media
	if err := cursor.All(ctx, &deletedMedia); err != nil {
		return err
	}

	for _, media := range deletedMedia {
		if err := os.Remove(media.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️ Failed to remove file %s: %v", media.FilePath, err)
			continue
		}

		if _, err := s.mediaCollection.DeleteOne(ctx, bson.M{"_id": media.ID}); err != nil {
			log.Printf("⚠️ Failed to delete media record %s: %v", media.ID.Hex(), err)
		}
	}

	return nil
}

// GetFilePath returns the file path for a given brand ID and filename
func (s *MediaService) GetFilePath(brandID primitive.ObjectID, filename string) string {
	return filepath.Join(s.storagePath, "media", brandID.Hex(), filename)
}

// Helper function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
