package services

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"brand-deck-platform/internal/ai"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentService owns the upload-to-processed lifecycle of brand
// documents: validation, secure storage, deduplication, text extraction,
// and chunking. Small files are processed inline; large or explicitly
// async uploads go through the background queue.
type DocumentService struct {
	config        *config.Config
	documentsCol  *mongo.Collection
	chunkIndexCol *mongo.Collection
	extractor     *TextExtractor
	chunker       *ChunkerService
	storage       *FileStorageManager
	enqueuer      DocumentEnqueuer
}

// DocumentEnqueuer hands stored documents to the background queue. The
// asynq-backed client in internal/queue satisfies this. Without one,
// every upload is processed inline.
type DocumentEnqueuer interface {
	EnqueueDocumentProcess(ctx context.Context, brandID, documentID, filePath string) (string, error)
}

// NewDocumentService creates a new document service instance
func NewDocumentService(cfg *config.Config, documentsCol *mongo.Collection) *DocumentService {
	return &DocumentService{
		config:        cfg,
		documentsCol:  documentsCol,
		chunkIndexCol: documentsCol.Database().Collection("document_chunks"),
		extractor:     NewTextExtractor(cfg),
		chunker:       NewChunkerService(cfg.ChunkSize),
		storage:       NewFileStorageManager(cfg),
	}
}

// SetEnqueuer wires the background queue client. Call before serving.
func (s *DocumentService) SetEnqueuer(q DocumentEnqueuer) {
	s.enqueuer = q
}

// FileStorageManager handles secure file storage operations
type FileStorageManager struct {
	config    *config.Config
	uploadDir string
	tempDir   string
}

// NewFileStorageManager creates a new file storage manager
func NewFileStorageManager(cfg *config.Config) *FileStorageManager {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}

	uploadDir := filepath.Join(baseDir, "documents")
	tempDir := filepath.Join(baseDir, "temp")

	os.MkdirAll(uploadDir, 0755)
	os.MkdirAll(tempDir, 0755)

	return &FileStorageManager{
		config:    cfg,
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}
}

// UploadRequest represents a validated document upload
type UploadRequest struct {
	File      multipart.File
	Header    *multipart.FileHeader
	BrandID   primitive.ObjectID
	UserID    primitive.ObjectID
	Sensitive bool
	IsAsync   bool
}

// UploadResult represents the result of an upload operation
type UploadResult struct {
	Document  *models.Document
	Duplicate bool
	TaskID    string // set when processing was queued
}

// ValidateAndProcessUpload validates and processes a document upload
func (s *DocumentService) ValidateAndProcessUpload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	format := FormatFromFilename(req.Header.Filename)

	// Step 1: Validate file
	if err := s.validateUpload(req, format); err != nil {
		return nil, fmt.Errorf("file validation failed: %w", err)
	}

	// Step 2: Create secure file storage
	fileInfo, err := s.storage.SecureStore(req.File, req.Header, req.BrandID.Hex(), format)
	if err != nil {
		return nil, fmt.Errorf("file storage failed: %w", err)
	}

	// Step 3: Check for duplicates
	existing, err := s.checkDuplicate(ctx, req.BrandID, fileInfo.Hash)
	if err != nil {
		s.storage.Cleanup(fileInfo.Path)
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if existing != nil {
		s.storage.Cleanup(fileInfo.Path)
		// Sensitivity only ratchets up: a re-upload flagged sensitive makes
		// the stored copy sensitive too, never the other way around.
		if req.Sensitive && !existing.Sensitive {
			if err := s.markSensitive(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to update sensitivity flag: %w", err)
			}
			existing.Sensitive = true
		}
		return &UploadResult{Document: existing, Duplicate: true}, nil
	}

	// Step 4: Create document record
	doc := &models.Document{
		ID:                 primitive.NewObjectID(),
		BrandID:            req.BrandID,
		Filename:           fileInfo.SecureName,
		OriginalName:       req.Header.Filename,
		Format:             format,
		Sensitive:          req.Sensitive,
		FilePath:           fileInfo.Path,
		FileHash:           fileInfo.Hash,
		CompressionEnabled: s.config.CompressChunks,
		Status:             models.StatusPending,
		Progress:           0,
		UploadedAt:         time.Now(),
		Metadata: models.DocumentMetadata{
			Size: fileInfo.Size,
		},
	}

	// Step 5: Save to database
	if _, err := s.documentsCol.InsertOne(ctx, doc); err != nil {
		s.storage.Cleanup(fileInfo.Path)
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	// Step 6: Process based on size and async flag
	result := &UploadResult{Document: doc}

	if req.IsAsync || fileInfo.Size > s.config.SyncProcessingLimit {
		taskID, err := s.enqueueProcessing(ctx, doc)
		if err != nil {
			log.Printf("⚠️ Failed to enqueue processing for %s, falling back to inline: %v", doc.ID.Hex(), err)
			s.processInline(doc)
		} else {
			result.TaskID = taskID
		}
	} else {
		s.processInline(doc)
	}

	return result, nil
}

// processInline runs extraction in the background of this process.
func (s *DocumentService) processInline(doc *models.Document) {
	go func() {
		processingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := s.ProcessDocumentSync(processingCtx, doc); err != nil {
			log.Printf("❌ Inline processing failed for %s: %v", doc.ID.Hex(), err)
			s.updateStatus(context.Background(), doc.ID, models.StatusFailed, err.Error())
		}
	}()
}

// enqueueProcessing queues a document for background processing
func (s *DocumentService) enqueueProcessing(ctx context.Context, doc *models.Document) (string, error) {
	if s.enqueuer == nil {
		return "", fmt.Errorf("no queue client configured")
	}
	return s.enqueuer.EnqueueDocumentProcess(ctx, doc.BrandID.Hex(), doc.ID.Hex(), doc.FilePath)
}

// RegisterSnapshotDocument stores crawled site content as an html
// document so deck builds can consume a brand's web presence alongside
// uploads. Snapshot content comes from the brand's public site, so it is
// never sensitive. A re-crawl that produced identical content dedups
// against the stored hash instead of creating a second document.
func (s *DocumentService) RegisterSnapshotDocument(ctx context.Context, brandID primitive.ObjectID, siteURL string, content []byte) (*models.Document, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("snapshot content is empty: %w", utils.ErrMalformedInput)
	}

	name := snapshotDocumentName(siteURL)

	fileInfo, err := s.storage.StoreBytes(content, brandID.Hex(), name)
	if err != nil {
		return nil, fmt.Errorf("file storage failed: %w", err)
	}

	existing, err := s.checkDuplicate(ctx, brandID, fileInfo.Hash)
	if err != nil {
		s.storage.Cleanup(fileInfo.Path)
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if existing != nil {
		s.storage.Cleanup(fileInfo.Path)
		return existing, nil
	}

	doc := &models.Document{
		ID:                 primitive.NewObjectID(),
		BrandID:            brandID,
		Filename:           fileInfo.SecureName,
		OriginalName:       name,
		Format:             models.FormatHTML,
		Sensitive:          false,
		FilePath:           fileInfo.Path,
		FileHash:           fileInfo.Hash,
		CompressionEnabled: s.config.CompressChunks,
		Status:             models.StatusPending,
		UploadedAt:         time.Now(),
		Metadata: models.DocumentMetadata{
			Size: fileInfo.Size,
		},
	}

	if _, err := s.documentsCol.InsertOne(ctx, doc); err != nil {
		s.storage.Cleanup(fileInfo.Path)
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	// The caller is a background crawl, so processing runs right here
	// rather than through another queue hop.
	if err := s.ProcessDocumentSync(ctx, doc); err != nil {
		s.updateStatus(context.Background(), doc.ID, models.StatusFailed, err.Error())
		return nil, fmt.Errorf("snapshot document processing failed: %w", err)
	}
	doc.Status = models.StatusCompleted

	// Extraction reported the generic html method; the record should say
	// where the content actually came from.
	if _, err := s.documentsCol.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{
		"$set": bson.M{"metadata.extraction_method": models.ExtractionMethodSnapshot},
	}); err != nil {
		log.Printf("⚠️ Failed to tag snapshot document %s: %v", doc.ID.Hex(), err)
	}

	return doc, nil
}

// snapshotDocumentName derives a stable display name from the site host.
func snapshotDocumentName(siteURL string) string {
	host := strings.TrimSpace(siteURL)
	if parsed, err := url.Parse(siteURL); err == nil && parsed.Hostname() != "" {
		host = parsed.Hostname()
	}
	if host == "" {
		host = "site"
	}
	return host + "-snapshot.html"
}

// SecureFileInfo contains information about a securely stored file
type SecureFileInfo struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
}

// SecureStore streams a file into storage with hash calculation and
// format validation, writing through a temp file so the final path only
// ever holds a complete upload.
func (sm *FileStorageManager) SecureStore(file multipart.File, header *multipart.FileHeader, brandID, format string) (*SecureFileInfo, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	secureName := sm.generateSecureFilename(header.Filename)

	brandDir := filepath.Join(sm.uploadDir, brandID)
	if err := os.MkdirAll(brandDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create brand directory: %w", err)
	}

	filePath := filepath.Join(brandDir, secureName)

	tempPath := filepath.Join(sm.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	// Stream to disk and hash in one pass for deduplication
	hasher := md5.New()
	multiWriter := io.MultiWriter(tempFile, hasher)

	bytesWritten, err := io.Copy(multiWriter, file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if bytesWritten == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty: %w", utils.ErrMalformedInput)
	}

	if err := sm.validateStoredContent(tempPath, format, bytesWritten); err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	// Move to final location
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &SecureFileInfo{
		Path:       filePath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		Size:       bytesWritten,
	}, nil
}

// StoreBytes writes generated content through the same temp-then-rename
// path as uploads. Used for snapshot documents, which are produced by
// the crawler rather than a multipart upload.
func (sm *FileStorageManager) StoreBytes(content []byte, brandID, name string) (*SecureFileInfo, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("content is empty: %w", utils.ErrMalformedInput)
	}

	secureName := sm.generateSecureFilename(name)

	brandDir := filepath.Join(sm.uploadDir, brandID)
	if err := os.MkdirAll(brandDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create brand directory: %w", err)
	}
	filePath := filepath.Join(brandDir, secureName)

	tempPath := filepath.Join(sm.tempDir, uuid.NewString()+".tmp")
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	hash := md5.Sum(content)
	return &SecureFileInfo{
		Path:       filePath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hash[:]),
		Size:       int64(len(content)),
	}, nil
}

// CleanupTemp removes temp files older than the cutoff. An interrupted
// upload leaves its temp file behind; anything still there after an hour
// was never renamed into place.
func (sm *FileStorageManager) CleanupTemp(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(sm.tempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(sm.tempDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// validateUpload performs comprehensive upload validation
func (s *DocumentService) validateUpload(req *UploadRequest, format string) error {
	header := req.Header

	if header.Size > s.config.MaxFileSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d: %w", header.Size, s.config.MaxFileSize, utils.ErrMalformedInput)
	}

	if header.Size == 0 {
		return fmt.Errorf("file is empty: %w", utils.ErrMalformedInput)
	}

	if err := s.validateFilename(header.Filename); err != nil {
		return err
	}

	if format == models.FormatOther {
		return fmt.Errorf("unsupported document format for %q, expected pdf, txt, md, or html: %w", header.Filename, utils.ErrMalformedInput)
	}

	// Browsers disagree wildly on text content types, so only PDF uploads
	// get their declared type checked against the extension.
	contentType := header.Header.Get("Content-Type")
	if format == models.FormatPDF && contentType != "" && !strings.Contains(contentType, "pdf") {
		return fmt.Errorf("content type %q does not match a PDF upload: %w", contentType, utils.ErrMalformedInput)
	}

	return nil
}

// validateFilename ensures the filename is safe to store
func (s *DocumentService) validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is required: %w", utils.ErrMalformedInput)
	}

	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters): %w", utils.ErrMalformedInput)
	}

	dangerous := []string{"../", "..\\", "<", ">", ":", "\"", "|", "?", "*", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return fmt.Errorf("filename contains invalid or dangerous characters: %w", utils.ErrMalformedInput)
		}
	}

	return nil
}

// validateStoredContent checks the stored bytes against the declared format.
// PDFs get structural checks; text formats are only screened for binary
// content smuggled in under a text extension.
func (sm *FileStorageManager) validateStoredContent(filePath, format string, size int64) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer file.Close()

	head := make([]byte, min(int64(1024), size))
	if _, err := io.ReadFull(file, head); err != nil {
		return fmt.Errorf("failed to read file header: %w", err)
	}

	if format != models.FormatPDF {
		for _, b := range head {
			if b == 0x00 {
				return fmt.Errorf("binary content in a text document: %w", utils.ErrMalformedInput)
			}
		}
		return nil
	}

	// PDF magic bytes: %PDF
	if len(head) < 4 || string(head[:4]) != "%PDF" {
		return fmt.Errorf("not a valid PDF document (missing PDF header): %w", utils.ErrMalformedInput)
	}

	// EOF markers live in the last 2KB of a well-formed PDF
	if size > 2048 {
		trailer := make([]byte, 2048)
		if _, err := file.ReadAt(trailer, size-2048); err != nil {
			return fmt.Errorf("failed to read PDF trailer: %w", err)
		}
		trailerStr := string(trailer)
		if !strings.Contains(trailerStr, "%%EOF") && !strings.Contains(trailerStr, "startxref") {
			return fmt.Errorf("invalid or corrupted PDF, missing EOF markers: %w", utils.ErrMalformedInput)
		}
	}

	// Object structure should show up within the first 32KB
	if size > 1024 {
		checkBytes := make([]byte, min(int64(32768), size))
		n, _ := file.ReadAt(checkBytes, 0)
		content := string(checkBytes[:n])
		if !strings.Contains(content, "obj") && !strings.Contains(content, "xref") {
			return fmt.Errorf("invalid PDF structure, file appears corrupted or incomplete: %w", utils.ErrMalformedInput)
		}

		suspiciousPatterns := []string{"/JavaScript", "/JS", "/EmbeddedFile", "/Launch", "javascript:"}
		lowerContent := strings.ToLower(content)
		for _, pattern := range suspiciousPatterns {
			if strings.Contains(lowerContent, strings.ToLower(pattern)) {
				log.Printf("⚠️ Potentially suspicious PDF content detected in upload: %s", pattern)
			}
		}
	}

	return nil
}

// generateSecureFilename creates a collision-resistant stored filename
func (sm *FileStorageManager) generateSecureFilename(originalName string) string {
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)
	randomPrefix := hex.EncodeToString(randomBytes)

	timestamp := time.Now().Format("20060102_150405")

	ext := filepath.Ext(originalName)
	baseName := strings.TrimSuffix(originalName, ext)

	safeName := strings.ReplaceAll(baseName, " ", "_")
	safeName = strings.ReplaceAll(safeName, "..", "")
	if len(safeName) > 50 {
		safeName = safeName[:50]
	}

	return fmt.Sprintf("%s_%s_%s%s", timestamp, randomPrefix, safeName, ext)
}

// checkDuplicate looks for a live document with the same content hash
func (s *DocumentService) checkDuplicate(ctx context.Context, brandID primitive.ObjectID, fileHash string) (*models.Document, error) {
	var existing models.Document
	err := s.documentsCol.FindOne(ctx, bson.M{
		"brand_id":  brandID,
		"file_hash": fileHash,
		"status":    bson.M{"$in": []string{models.StatusCompleted, models.StatusProcessing, models.StatusPending}},
	}).Decode(&existing)

	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &existing, nil
}

// Cleanup removes a file from storage
func (sm *FileStorageManager) Cleanup(filePath string) {
	if filePath != "" {
		if err := os.Remove(filePath); err != nil {
			log.Printf("⚠️ Failed to cleanup file %s: %v", filePath, err)
		}
	}
}

func (s *DocumentService) markSensitive(ctx context.Context, docID primitive.ObjectID) error {
	_, err := s.documentsCol.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
		"$set": bson.M{"sensitive": true, "updated_at": time.Now()},
	})
	return err
}

// updateStatus updates the processing status of a document
func (s *DocumentService) updateStatus(ctx context.Context, docID primitive.ObjectID, status, errorMessage string) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}

	switch status {
	case models.StatusPending, models.StatusFailed:
		set["progress"] = 0
	case models.StatusProcessing:
		set["progress"] = 50
	case models.StatusCompleted:
		set["progress"] = 100
	}

	if errorMessage != "" {
		set["error_message"] = errorMessage
	}

	if status == models.StatusCompleted || status == models.StatusFailed {
		set["processed_at"] = time.Now()
	}

	_, err := s.documentsCol.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{"$set": set})
	return err
}

// ProcessDocumentSync extracts, chunks, and stores a document's text.
// Callers are responsible for marking the document failed on error.
func (s *DocumentService) ProcessDocumentSync(ctx context.Context, doc *models.Document) error {
	if err := s.updateStatus(ctx, doc.ID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	result, err := s.extractor.ExtractText(ctx, doc.Format, doc.FilePath)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	chunks := s.chunker.BuildContentChunks(s.chunker.SplitText(result.Text))

	storedChunks := chunks
	if s.config.CompressChunks {
		storedChunks, err = CompressChunksForStorage(chunks)
		if err != nil {
			return fmt.Errorf("failed to compress chunks: %w", err)
		}
	}

	update := bson.M{
		"$set": bson.M{
			"content_chunks":      storedChunks,
			"compression_enabled": s.config.CompressChunks,
			"total_tokens":        len(result.Text) / 4,
			"status":              models.StatusCompleted,
			"progress":            100,
			"processed_at":        time.Now(),
			"metadata": models.DocumentMetadata{
				Size:             doc.Metadata.Size,
				Pages:            result.Pages,
				ProcessingTime:   result.ProcessingTime,
				ExtractionMethod: result.Method,
				WordCount:        result.WordCount,
				CharacterCount:   result.CharacterCount,
			},
		},
	}

	if _, err := s.documentsCol.UpdateOne(ctx, bson.M{"_id": doc.ID}, update); err != nil {
		return fmt.Errorf("failed to update document with extracted content: %w", err)
	}

	s.indexChunksForSearch(ctx, doc, chunks)

	log.Printf("✅ Processed document %s: %d chunks via %s", doc.ID.Hex(), len(chunks), result.Method)
	return nil
}

// ProcessDocumentByID loads a brand's document and processes it, recording
// failure on the record when processing errors. This is the entry point for
// the queue worker, which only has ids from the task payload.
func (s *DocumentService) ProcessDocumentByID(ctx context.Context, brandID, documentID string) error {
	brandOID, err := primitive.ObjectIDFromHex(brandID)
	if err != nil {
		return fmt.Errorf("invalid brand id %q: %w", brandID, utils.ErrMalformedInput)
	}
	docOID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", documentID, utils.ErrMalformedInput)
	}

	doc, err := s.GetDocument(ctx, brandOID, docOID)
	if err != nil {
		return err
	}
	if doc.Status == models.StatusCompleted {
		log.Printf("⚠️ Document %s is already processed, skipping duplicate task", documentID)
		return nil
	}

	if err := s.ProcessDocumentSync(ctx, doc); err != nil {
		// The worker context may already be expired here.
		s.updateStatus(context.Background(), doc.ID, models.StatusFailed, err.Error())
		return err
	}
	return nil
}

// indexChunksForSearch upserts chunks into the Q&A retrieval index.
// Answer prompts quote indexed text and embeddings go to the remote
// provider, so sensitive documents are never indexed: their text stays
// on the box.
func (s *DocumentService) indexChunksForSearch(ctx context.Context, doc *models.Document, chunks []models.ContentChunk) {
	if doc.Sensitive {
		return
	}

	batch := make([]mongo.WriteModel, 0, len(chunks))
	for _, ch := range chunks {
		entry := bson.M{
			"brand_id":    doc.BrandID,
			"document_id": doc.ID,
			"chunk_id":    ch.ChunkID,
			"order":       ch.Order,
			"text":        ch.Text,
		}
		if s.config.VectorSearchEnabled {
			// The Atlas index declares a fixed dimension; vectors of any
			// other length are stored but never matched, so skip them.
			if vec, embErr := ai.GenerateEmbedding(ctx, s.config, ch.Text); embErr == nil {
				if s.config.VectorDimensions == 0 || len(vec) == s.config.VectorDimensions {
					entry["vector"] = vec
				}
			}
		}
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"document_id": doc.ID, "chunk_id": ch.ChunkID}).
			SetUpdate(bson.M{"$set": entry}).
			SetUpsert(true))
	}
	if len(batch) > 0 {
		if _, err := s.chunkIndexCol.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false)); err != nil {
			log.Printf("⚠️ Chunk index upsert failed for %s: %v", doc.ID.Hex(), err)
		}
	}
}

// GetDocument fetches one document scoped to a brand
func (s *DocumentService) GetDocument(ctx context.Context, brandID, docID primitive.ObjectID) (*models.Document, error) {
	var doc models.Document
	err := s.documentsCol.FindOne(ctx, bson.M{"_id": docID, "brand_id": brandID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("document %s: %w", docID.Hex(), utils.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns a brand's documents, newest first, without the
// chunk payloads.
func (s *DocumentService) ListDocuments(ctx context.Context, brandID primitive.ObjectID) ([]models.Document, error) {
	opts := options.Find().
		SetSort(bson.M{"uploaded_at": -1}).
		SetProjection(bson.M{"content_chunks": 0})
	cursor, err := s.documentsCol.Find(ctx, bson.M{"brand_id": brandID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document's record, index entries, and file
func (s *DocumentService) DeleteDocument(ctx context.Context, brandID, docID primitive.ObjectID) error {
	doc, err := s.GetDocument(ctx, brandID, docID)
	if err != nil {
		return err
	}

	if _, err := s.chunkIndexCol.DeleteMany(ctx, bson.M{"document_id": docID}); err != nil {
		log.Printf("⚠️ Failed to delete chunk index entries for %s: %v", docID.Hex(), err)
	}

	if _, err := s.documentsCol.DeleteOne(ctx, bson.M{"_id": docID, "brand_id": brandID}); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.storage.Cleanup(doc.FilePath)
	return nil
}

// DocumentText reconstructs a document's full extracted text from its
// stored chunks, decompressing when they were stored compressed.
func DocumentText(doc *models.Document) (string, error) {
	chunks := doc.ContentChunks
	if doc.CompressionEnabled {
		decompressed, err := DecompressChunksForRetrieval(chunks)
		if err != nil {
			return "", fmt.Errorf("failed to decompress chunks for %s: %w", doc.ID.Hex(), err)
		}
		chunks = decompressed
	}

	ordered := make([]models.ContentChunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var b strings.Builder
	for _, ch := range ordered {
		b.WriteString(ch.Text)
	}
	return b.String(), nil
}

// CleanupTempFiles sweeps the upload temp directory. Runs on the storage
// cleanup schedule.
func (s *DocumentService) CleanupTempFiles(ctx context.Context) error {
	removed, err := s.storage.CleanupTemp(time.Hour)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("🔄 Removed %d orphaned temp files", removed)
	}
	return nil
}

// VerifyDocumentsReady checks that every id exists under the brand and
// finished processing, without loading chunk payloads. Used to fail deck
// creation fast before anything is queued.
func (s *DocumentService) VerifyDocumentsReady(ctx context.Context, brandID primitive.ObjectID, docIDs []primitive.ObjectID) error {
	opts := options.Find().SetProjection(bson.M{"status": 1})
	cursor, err := s.documentsCol.Find(ctx, bson.M{
		"_id":      bson.M{"$in": docIDs},
		"brand_id": brandID,
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to verify documents: %w", err)
	}
	defer cursor.Close(ctx)

	statusByID := make(map[primitive.ObjectID]string, len(docIDs))
	for cursor.Next(ctx) {
		var doc struct {
			ID     primitive.ObjectID `bson:"_id"`
			Status string             `bson:"status"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode document status: %w", err)
		}
		statusByID[doc.ID] = doc.Status
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor error verifying documents: %w", err)
	}

	for _, id := range docIDs {
		status, ok := statusByID[id]
		if !ok {
			return fmt.Errorf("document %s: %w", id.Hex(), utils.ErrNotFound)
		}
		if status != models.StatusCompleted {
			return fmt.Errorf("document %s is not ready (status %s): %w", id.Hex(), status, utils.ErrMalformedInput)
		}
	}
	return nil
}

// LoadRoutableDocuments resolves deck build inputs. Every requested
// document must exist, belong to the brand, and be fully processed;
// order follows the request.
func (s *DocumentService) LoadRoutableDocuments(ctx context.Context, brandID primitive.ObjectID, docIDs []primitive.ObjectID) ([]RoutableDocument, error) {
	cursor, err := s.documentsCol.Find(ctx, bson.M{
		"_id":      bson.M{"$in": docIDs},
		"brand_id": brandID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deck documents: %w", err)
	}
	defer cursor.Close(ctx)

	byID := make(map[primitive.ObjectID]models.Document, len(docIDs))
	for cursor.Next(ctx) {
		var doc models.Document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		byID[doc.ID] = doc
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error fetching deck documents: %w", err)
	}

	routable := make([]RoutableDocument, 0, len(docIDs))
	for _, id := range docIDs {
		doc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("document %s: %w", id.Hex(), utils.ErrNotFound)
		}
		if doc.Status != models.StatusCompleted {
			return nil, fmt.Errorf("document %s is not ready (status %s): %w", id.Hex(), doc.Status, utils.ErrMalformedInput)
		}
		text, err := DocumentText(&doc)
		if err != nil {
			return nil, err
		}
		routable = append(routable, RoutableDocument{
			ID:        doc.ID.Hex(),
			Name:      doc.OriginalName,
			Sensitive: doc.Sensitive,
			Text:      text,
		})
	}

	return routable, nil
}
