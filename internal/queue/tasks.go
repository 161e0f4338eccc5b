package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"brand-deck-platform/internal/telemetry"
	"brand-deck-platform/utils"
)

// Task types. Document ingest is user-facing and runs on critical, deck
// builds are long batch jobs on default, snapshot crawls on low.
const (
	TaskTypeDocumentProcess = "document:process"
	TaskTypeDeckBuild       = "deck:build"
	TaskTypeSnapshotCrawl   = "snapshot:crawl"
)

type DocumentProcessPayload struct {
	BrandID    string `json:"brand_id"`
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
}

type DeckBuildPayload struct {
	BrandID string `json:"brand_id"`
	DeckID  string `json:"deck_id"`
}

type SnapshotCrawlPayload struct {
	BrandID    string `json:"brand_id"`
	SnapshotID string `json:"snapshot_id"`
	SiteURL    string `json:"site_url"`
}

// Task creators
func NewDocumentProcessTask(brandID, documentID, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{
		BrandID:    brandID,
		DocumentID: documentID,
		FilePath:   filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskTypeDocumentProcess,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

func NewDeckBuildTask(brandID, deckID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeckBuildPayload{
		BrandID: brandID,
		DeckID:  deckID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskTypeDeckBuild,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewSnapshotCrawlTask(brandID, snapshotID, siteURL string) (*asynq.Task, error) {
	payload, err := json.Marshal(SnapshotCrawlPayload{
		BrandID:    brandID,
		SnapshotID: snapshotID,
		SiteURL:    siteURL,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskTypeSnapshotCrawl,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("low"),
	), nil
}

// DocumentProcessor runs document ingestion to a terminal status.
type DocumentProcessor interface {
	ProcessDocumentByID(ctx context.Context, brandID, documentID string) error
}

// DeckExecutor runs a deck build to a terminal status.
type DeckExecutor interface {
	ExecuteBuild(ctx context.Context, deckID primitive.ObjectID) error
}

// SnapshotCrawler runs one site-snapshot crawl to a terminal status.
type SnapshotCrawler interface {
	ExecuteCrawl(ctx context.Context, snapshotID string) error
}

// TaskProcessor holds the handlers the worker registers on its mux.
type TaskProcessor struct {
	documents DocumentProcessor
	decks     DeckExecutor
	snapshots SnapshotCrawler
	metrics   *telemetry.Metrics
}

func NewTaskProcessor(documents DocumentProcessor, decks DeckExecutor, snapshots SnapshotCrawler) *TaskProcessor {
	return &TaskProcessor{
		documents: documents,
		decks:     decks,
		snapshots: snapshots,
	}
}

// SetMetrics attaches the meter handle. Without it the worker runs fine,
// just unmeasured.
func (p *TaskProcessor) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	log.Printf("Processing document: brand=%s document=%s path=%s",
		payload.BrandID, payload.DocumentID, payload.FilePath)

	started := time.Now()
	err := p.documents.ProcessDocumentByID(ctx, payload.BrandID, payload.DocumentID)
	if p.metrics != nil {
		p.metrics.RecordDocumentProcessing(time.Since(started).Seconds(), statusLabel(err))
	}
	if err != nil {
		if isPermanent(err) {
			return fmt.Errorf("document %s will not be retried: %v: %w", payload.DocumentID, err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (p *TaskProcessor) BuildDeck(ctx context.Context, t *asynq.Task) error {
	var payload DeckBuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	deckID, err := primitive.ObjectIDFromHex(payload.DeckID)
	if err != nil {
		return fmt.Errorf("invalid deck id %q: %w", payload.DeckID, asynq.SkipRetry)
	}

	log.Printf("Building deck: brand=%s deck=%s", payload.BrandID, payload.DeckID)

	started := time.Now()
	err = p.decks.ExecuteBuild(ctx, deckID)
	if p.metrics != nil {
		p.metrics.RecordDeckBuild(time.Since(started).Seconds(), statusLabel(err))
	}
	if err != nil {
		if isPermanent(err) {
			return fmt.Errorf("deck %s will not be retried: %v: %w", payload.DeckID, err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (p *TaskProcessor) CrawlSnapshot(ctx context.Context, t *asynq.Task) error {
	var payload SnapshotCrawlPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	log.Printf("Crawling snapshot: brand=%s snapshot=%s url=%s",
		payload.BrandID, payload.SnapshotID, payload.SiteURL)

	if err := p.snapshots.ExecuteCrawl(ctx, payload.SnapshotID); err != nil {
		if isPermanent(err) {
			return fmt.Errorf("snapshot %s will not be retried: %v: %w", payload.SnapshotID, err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// isPermanent reports whether a task failure is deterministic. Bad ids,
// missing records and unparseable inputs do not heal on retry; backend
// outages do.
func isPermanent(err error) bool {
	return errors.Is(err, utils.ErrNotFound) ||
		errors.Is(err, utils.ErrMalformedInput) ||
		errors.Is(err, utils.ErrExtractionParseFailure)
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}
