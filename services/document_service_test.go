package services

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func storageTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		FileStorageDir:      t.TempDir(),
		MaxFileSize:         1 << 20,
		SyncProcessingLimit: 1 << 19,
		ChunkSize:           2000,
	}
}

func uploadHeader(filename, contentType string, size int64) *multipart.FileHeader {
	h := &multipart.FileHeader{
		Filename: filename,
		Size:     size,
		Header:   textproto.MIMEHeader{},
	}
	if contentType != "" {
		h.Header.Set("Content-Type", contentType)
	}
	return h
}

// writeTestFile puts content on disk and opens it as a multipart.File.
func writeTestFile(t *testing.T, dir, name string, content []byte) multipart.File {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open test file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestValidateUpload(t *testing.T) {
	svc := &DocumentService{config: storageTestConfig(t)}

	cases := []struct {
		name    string
		header  *multipart.FileHeader
		format  string
		wantErr bool
	}{
		{"valid pdf", uploadHeader("report.pdf", "application/pdf", 1024), models.FormatPDF, false},
		{"valid markdown", uploadHeader("notes.md", "text/markdown", 512), models.FormatMarkdown, false},
		{"text without content type", uploadHeader("plain.txt", "", 64), models.FormatText, false},
		{"oversized", uploadHeader("big.pdf", "application/pdf", 2<<20), models.FormatPDF, true},
		{"empty", uploadHeader("zero.pdf", "application/pdf", 0), models.FormatPDF, true},
		{"unsupported format", uploadHeader("deck.pptx", "application/octet-stream", 1024), models.FormatOther, true},
		{"pdf with wrong content type", uploadHeader("report.pdf", "image/png", 1024), models.FormatPDF, true},
		{"path traversal", uploadHeader("../../etc/passwd.txt", "text/plain", 64), models.FormatText, true},
		{"null byte in name", uploadHeader("bad\x00name.txt", "text/plain", 64), models.FormatText, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.validateUpload(&UploadRequest{Header: tc.header}, tc.format)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, utils.ErrMalformedInput) {
					t.Errorf("expected malformed-input error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSecureStorePDFRoundTrip(t *testing.T) {
	cfg := storageTestConfig(t)
	sm := NewFileStorageManager(cfg)

	content := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\nxref\ntrailer\nstartxref\n%%EOF\n")
	file := writeTestFile(t, t.TempDir(), "input.pdf", content)

	info, err := sm.SecureStore(file, uploadHeader("Annual Report 2025.pdf", "application/pdf", int64(len(content))), "brand1", models.FormatPDF)
	if err != nil {
		t.Fatalf("SecureStore failed: %v", err)
	}

	stored, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(stored) != string(content) {
		t.Error("stored bytes differ from uploaded bytes")
	}

	sum := md5.Sum(content)
	if info.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %s, want md5 of content", info.Hash)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", info.Size, len(content))
	}
	if !strings.Contains(info.Path, "brand1") {
		t.Errorf("stored path %q not scoped to brand directory", info.Path)
	}
	if strings.Contains(info.SecureName, " ") {
		t.Errorf("secure name %q contains spaces", info.SecureName)
	}

	// Temp directory must not accumulate files after a successful store
	entries, err := os.ReadDir(filepath.Join(cfg.FileStorageDir, "temp"))
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir holds %d leftover files", len(entries))
	}
}

func TestSecureStoreRejectsFakePDF(t *testing.T) {
	cfg := storageTestConfig(t)
	sm := NewFileStorageManager(cfg)

	content := []byte("this is plain text pretending to be a pdf")
	file := writeTestFile(t, t.TempDir(), "fake.pdf", content)

	_, err := sm.SecureStore(file, uploadHeader("fake.pdf", "application/pdf", int64(len(content))), "brand1", models.FormatPDF)
	if err == nil {
		t.Fatal("expected rejection of non-PDF bytes")
	}
	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Errorf("expected malformed-input error, got %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(cfg.FileStorageDir, "temp"))
	if len(entries) != 0 {
		t.Errorf("temp dir holds %d leftover files after rejection", len(entries))
	}
}

func TestSecureStoreRejectsBinaryText(t *testing.T) {
	cfg := storageTestConfig(t)
	sm := NewFileStorageManager(cfg)

	content := []byte("looks like text\x00but carries binary")
	file := writeTestFile(t, t.TempDir(), "sneaky.txt", content)

	_, err := sm.SecureStore(file, uploadHeader("sneaky.txt", "text/plain", int64(len(content))), "brand1", models.FormatText)
	if err == nil {
		t.Fatal("expected rejection of binary content under a text extension")
	}
	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Errorf("expected malformed-input error, got %v", err)
	}
}

func TestSecureStoreAcceptsPlainText(t *testing.T) {
	cfg := storageTestConfig(t)
	sm := NewFileStorageManager(cfg)

	content := []byte("Quarterly revenue grew 12% on strong subscription renewals.")
	file := writeTestFile(t, t.TempDir(), "summary.txt", content)

	info, err := sm.SecureStore(file, uploadHeader("summary.txt", "text/plain", int64(len(content))), "brand2", models.FormatText)
	if err != nil {
		t.Fatalf("SecureStore failed for plain text: %v", err)
	}
	if _, err := os.Stat(info.Path); err != nil {
		t.Errorf("stored file missing: %v", err)
	}
}

func TestDocumentTextReconstruction(t *testing.T) {
	chunker := NewChunkerService(10)
	original := "abcdefghijklmnopqrstuvwxyz0123456789"
	chunks := chunker.BuildContentChunks(chunker.SplitText(original))
	if len(chunks) < 3 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Shuffle order to prove reconstruction sorts by chunk order
	doc := &models.Document{ID: primitive.NewObjectID()}
	doc.ContentChunks = []models.ContentChunk{chunks[2], chunks[0], chunks[1]}
	doc.ContentChunks = append(doc.ContentChunks, chunks[3:]...)

	text, err := DocumentText(doc)
	if err != nil {
		t.Fatalf("DocumentText failed: %v", err)
	}
	if text != original {
		t.Errorf("reconstructed text = %q, want %q", text, original)
	}
}

func TestDocumentTextCompressedChunks(t *testing.T) {
	chunker := NewChunkerService(16)
	original := strings.Repeat("brand growth narrative ", 20)
	chunks := chunker.BuildContentChunks(chunker.SplitText(original))

	compressed, err := CompressChunksForStorage(chunks)
	if err != nil {
		t.Fatalf("compress chunks: %v", err)
	}

	doc := &models.Document{
		ID:                 primitive.NewObjectID(),
		ContentChunks:      compressed,
		CompressionEnabled: true,
	}

	text, err := DocumentText(doc)
	if err != nil {
		t.Fatalf("DocumentText failed on compressed chunks: %v", err)
	}
	if text != original {
		t.Errorf("round-trip through compression lost content")
	}
}

func TestGenerateSecureFilename(t *testing.T) {
	sm := &FileStorageManager{}

	name := sm.generateSecureFilename("My Strategy Deck..2025.pdf")
	if strings.Contains(name, " ") {
		t.Errorf("generated name %q contains spaces", name)
	}
	if strings.Contains(name, "..") {
		t.Errorf("generated name %q contains dot-dot", name)
	}
	if !strings.HasSuffix(name, ".pdf") {
		t.Errorf("generated name %q lost its extension", name)
	}

	other := sm.generateSecureFilename("My Strategy Deck..2025.pdf")
	if name == other {
		t.Error("two generated names collided")
	}
}

func TestCleanupTemp(t *testing.T) {
	sm := NewFileStorageManager(storageTestConfig(t))

	stale := filepath.Join(sm.tempDir, "stale.tmp")
	if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
		t.Fatalf("write stale temp: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("age stale temp: %v", err)
	}

	fresh := filepath.Join(sm.tempDir, "fresh.tmp")
	if err := os.WriteFile(fresh, []byte("y"), 0644); err != nil {
		t.Fatalf("write fresh temp: %v", err)
	}
	unrelated := filepath.Join(sm.tempDir, "keep.dat")
	if err := os.WriteFile(unrelated, []byte("z"), 0644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	removed, err := sm.CleanupTemp(time.Hour)
	if err != nil {
		t.Fatalf("CleanupTemp failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d files, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh temp file was removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("non-tmp file was removed")
	}
}
