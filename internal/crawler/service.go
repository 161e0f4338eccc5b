package crawler

import (
	"context"
	"fmt"
	"html"
	"log"
	"net/url"
	"strings"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Completed snapshots older than this are re-queued by the refresh sweep.
const snapshotRefreshAge = 7 * 24 * time.Hour

// refreshBatchLimit caps one sweep so a large brand base trickles through
// the low-priority queue instead of flooding it.
const refreshBatchLimit = 20

// SnapshotEnqueuer hands accepted snapshots to the background queue. The
// asynq-backed client in internal/queue satisfies this. Without one,
// crawls run inline in this process.
type SnapshotEnqueuer interface {
	EnqueueSnapshotCrawl(ctx context.Context, brandID, snapshotID, siteURL string) (string, error)
}

// DocumentRegistrar materializes crawled site content as a brand
// document. services.DocumentService satisfies this.
type DocumentRegistrar interface {
	RegisterSnapshotDocument(ctx context.Context, brandID primitive.ObjectID, siteURL string, content []byte) (*models.Document, error)
}

// SnapshotService owns the site snapshot lifecycle: request, crawl, fact
// parsing, compressed page storage, and materialization of the crawl as
// an html document the deck pipeline can consume.
type SnapshotService struct {
	config       *config.Config
	snapshotsCol *mongo.Collection
	documents    DocumentRegistrar
	enqueuer     SnapshotEnqueuer
}

func NewSnapshotService(cfg *config.Config, snapshotsCol *mongo.Collection, documents DocumentRegistrar) *SnapshotService {
	return &SnapshotService{
		config:       cfg,
		snapshotsCol: snapshotsCol,
		documents:    documents,
	}
}

// SetEnqueuer wires the background queue client. Call before serving.
func (s *SnapshotService) SetEnqueuer(q SnapshotEnqueuer) {
	s.enqueuer = q
}

// RequestSnapshot validates the site URL, records a pending snapshot and
// schedules the crawl. A snapshot already underway for the same brand
// and URL is returned instead of starting a second crawl.
func (s *SnapshotService) RequestSnapshot(ctx context.Context, brandID primitive.ObjectID, req *models.CreateSnapshotRequest) (*models.SiteSnapshot, error) {
	siteURL, err := normalizeSiteURL(req.URL)
	if err != nil {
		return nil, err
	}

	var active models.SiteSnapshot
	findErr := s.snapshotsCol.FindOne(ctx, bson.M{
		"brand_id": brandID,
		"url":      siteURL,
		"status":   bson.M{"$in": []string{models.SnapshotStatusPending, models.SnapshotStatusFetching}},
	}).Decode(&active)
	if findErr == nil {
		return &active, nil
	}
	if findErr != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to check for active snapshot: %w", findErr)
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.config.CrawlerMaxPages
	}

	now := time.Now()
	snap := &models.SiteSnapshot{
		ID:            primitive.NewObjectID(),
		BrandID:       brandID,
		URL:           siteURL,
		Status:        models.SnapshotStatusPending,
		MaxPages:      maxPages,
		FollowLinks:   true,
		RespectRobots: true,
		RenderJS:      req.RenderJS || s.config.CrawlerJSRendering,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.snapshotsCol.InsertOne(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.schedule(ctx, snap)
	return snap, nil
}

// schedule queues the crawl, falling back to an inline goroutine when no
// queue client is wired or the enqueue fails.
func (s *SnapshotService) schedule(ctx context.Context, snap *models.SiteSnapshot) {
	if s.enqueuer != nil {
		_, err := s.enqueuer.EnqueueSnapshotCrawl(ctx, snap.BrandID.Hex(), snap.ID.Hex(), snap.URL)
		if err == nil {
			return
		}
		log.Printf("⚠️ Failed to enqueue snapshot crawl for %s, falling back to inline: %v", snap.ID.Hex(), err)
	}

	go func() {
		crawlCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if err := s.ExecuteCrawl(crawlCtx, snap.ID.Hex()); err != nil {
			log.Printf("❌ Inline snapshot crawl failed for %s: %v", snap.ID.Hex(), err)
		}
	}()
}

// ExecuteCrawl runs one snapshot crawl to a terminal status. It is the
// entry point for the queue worker, which only has the id from the task
// payload. Failures are recorded on the snapshot and returned so the
// queue can retry; a snapshot already completed or cancelled is skipped.
func (s *SnapshotService) ExecuteCrawl(ctx context.Context, snapshotID string) error {
	snapOID, err := primitive.ObjectIDFromHex(snapshotID)
	if err != nil {
		return fmt.Errorf("invalid snapshot id %q: %w", snapshotID, utils.ErrMalformedInput)
	}

	var snap models.SiteSnapshot
	if err := s.snapshotsCol.FindOne(ctx, bson.M{"_id": snapOID}).Decode(&snap); err != nil {
		if err == mongo.ErrNoDocuments {
			return fmt.Errorf("snapshot %s: %w", snapshotID, utils.ErrNotFound)
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if snap.Status == models.SnapshotStatusCompleted || snap.Status == models.SnapshotStatusCancelled {
		log.Printf("⚠️ Snapshot %s is %s, skipping crawl", snapshotID, snap.Status)
		return nil
	}

	if err := s.markFetching(ctx, snap.ID); err != nil {
		return fmt.Errorf("failed to update snapshot status: %w", err)
	}

	started := time.Now()
	result, err := CrawlURL(CrawlConfig{
		URL:            snap.URL,
		MaxPages:       snap.MaxPages,
		AllowedDomains: snap.AllowedDomains,
		AllowedPaths:   snap.AllowedPaths,
		FollowLinks:    snap.FollowLinks,
		RespectRobots:  snap.RespectRobots,
		RenderJS:       snap.RenderJS,
		UserAgent:      s.config.CrawlerUserAgent,
	})
	if err != nil {
		// The worker context may already be expired here.
		s.recordFailure(context.Background(), snap.ID, err)
		return fmt.Errorf("crawl of %s failed: %w", snap.URL, err)
	}

	compressed, err := compressPages(result.Pages)
	if err != nil {
		s.recordFailure(context.Background(), snap.ID, err)
		return fmt.Errorf("failed to compress snapshot content: %w", err)
	}

	var documentID *primitive.ObjectID
	if s.documents != nil {
		doc, regErr := s.documents.RegisterSnapshotDocument(ctx, snap.BrandID, snap.URL, composeSnapshotHTML(&snap, result))
		if regErr != nil {
			s.recordFailure(context.Background(), snap.ID, regErr)
			return fmt.Errorf("failed to materialize snapshot document: %w", regErr)
		}
		documentID = &doc.ID
	}

	// Page text now lives in the compressed blob only.
	stored := make([]models.SnapshotPage, len(result.Pages))
	for i, page := range result.Pages {
		page.Content = ""
		stored[i] = page
	}

	now := time.Now()
	set := bson.M{
		"status":             models.SnapshotStatusCompleted,
		"progress":           100,
		"title":              result.Title,
		"pages_found":        result.PagesFound,
		"pages_fetched":      result.PagesCrawled,
		"pages":              stored,
		"facts":              result.Facts,
		"compressed_content": compressed,
		"error":              "",
		"fetched_at":         now,
		"fetch_time":         time.Since(started),
		"updated_at":         now,
	}
	if documentID != nil {
		set["document_id"] = *documentID
	}

	// Filtering on the fetching status keeps a concurrent cancellation
	// from being overwritten by a finishing crawl.
	res, err := s.snapshotsCol.UpdateOne(ctx, bson.M{"_id": snap.ID, "status": models.SnapshotStatusFetching}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to store snapshot result: %w", err)
	}
	if res.MatchedCount == 0 {
		log.Printf("⚠️ Snapshot %s was cancelled during the crawl, discarding result", snapshotID)
		return nil
	}

	log.Printf("✅ Snapshot %s completed: %d pages, %d facts in %v",
		snapshotID, result.PagesCrawled, len(result.Facts), time.Since(started).Round(time.Millisecond))
	return nil
}

func (s *SnapshotService) markFetching(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.snapshotsCol.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     models.SnapshotStatusFetching,
		"progress":   25,
		"updated_at": time.Now(),
	}})
	return err
}

// recordFailure writes a terminal failed status. The fetching filter
// keeps a concurrent cancellation from being overwritten.
func (s *SnapshotService) recordFailure(ctx context.Context, id primitive.ObjectID, cause error) {
	_, err := s.snapshotsCol.UpdateOne(ctx, bson.M{
		"_id":    id,
		"status": models.SnapshotStatusFetching,
	}, bson.M{
		"$set": bson.M{
			"status":     models.SnapshotStatusFailed,
			"progress":   0,
			"error":      cause.Error(),
			"updated_at": time.Now(),
		},
		"$inc": bson.M{"retry_count": 1},
	})
	if err != nil {
		log.Printf("⚠️ Failed to record snapshot failure for %s: %v", id.Hex(), err)
	}
}

// GetSnapshot loads one snapshot scoped to the brand.
func (s *SnapshotService) GetSnapshot(ctx context.Context, brandID, snapshotID primitive.ObjectID) (*models.SiteSnapshot, error) {
	var snap models.SiteSnapshot
	err := s.snapshotsCol.FindOne(ctx, bson.M{"_id": snapshotID, "brand_id": brandID}).Decode(&snap)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID.Hex(), utils.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns a brand's snapshots, newest first, without the
// per-page records and compressed blobs.
func (s *SnapshotService) ListSnapshots(ctx context.Context, brandID primitive.ObjectID) ([]models.SiteSnapshot, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetProjection(bson.M{"compressed_content": 0, "pages": 0})

	cursor, err := s.snapshotsCol.Find(ctx, bson.M{"brand_id": brandID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []models.SiteSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	return snapshots, nil
}

// CancelSnapshot stops a snapshot that has not finished. A queue task
// already running observes the status change and discards its result.
func (s *SnapshotService) CancelSnapshot(ctx context.Context, brandID, snapshotID primitive.ObjectID) error {
	res, err := s.snapshotsCol.UpdateOne(ctx, bson.M{
		"_id":      snapshotID,
		"brand_id": brandID,
		"status":   bson.M{"$in": []string{models.SnapshotStatusPending, models.SnapshotStatusFetching}},
	}, bson.M{"$set": bson.M{
		"status":     models.SnapshotStatusCancelled,
		"updated_at": time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("failed to cancel snapshot: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no cancellable snapshot %s: %w", snapshotID.Hex(), utils.ErrNotFound)
	}
	return nil
}

// SnapshotText returns the stored page text of a completed snapshot.
func (s *SnapshotService) SnapshotText(snap *models.SiteSnapshot) (string, error) {
	if len(snap.CompressedContent) == 0 {
		return "", nil
	}
	data, err := utils.DecompressData(snap.CompressedContent, utils.CompressionBrotli)
	if err != nil {
		return "", fmt.Errorf("failed to decompress snapshot content: %w", err)
	}
	return string(data), nil
}

// RefreshSnapshot re-queues one finished snapshot for a fresh crawl. A
// snapshot still pending or fetching cannot be refreshed; it is already
// on its way.
func (s *SnapshotService) RefreshSnapshot(ctx context.Context, brandID, snapshotID primitive.ObjectID) (*models.SiteSnapshot, error) {
	res := s.snapshotsCol.FindOneAndUpdate(ctx, bson.M{
		"_id":      snapshotID,
		"brand_id": brandID,
		"status": bson.M{"$in": []string{
			models.SnapshotStatusCompleted,
			models.SnapshotStatusFailed,
			models.SnapshotStatusCancelled,
		}},
	}, bson.M{"$set": bson.M{
		"status":     models.SnapshotStatusPending,
		"progress":   0,
		"error":      "",
		"updated_at": time.Now(),
	}}, options.FindOneAndUpdate().SetReturnDocument(options.After))

	var snap models.SiteSnapshot
	if err := res.Decode(&snap); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("no refreshable snapshot %s: %w", snapshotID.Hex(), utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to refresh snapshot: %w", err)
	}

	s.schedule(ctx, &snap)
	return &snap, nil
}

// RefreshStale re-queues completed snapshots whose content is older than
// the refresh age. The cron scheduler calls this on the configured
// refresh expression.
func (s *SnapshotService) RefreshStale(ctx context.Context) error {
	cutoff := time.Now().Add(-snapshotRefreshAge)

	opts := options.Find().
		SetSort(bson.M{"fetched_at": 1}).
		SetLimit(refreshBatchLimit).
		SetProjection(bson.M{"_id": 1, "brand_id": 1, "url": 1})

	cursor, err := s.snapshotsCol.Find(ctx, bson.M{
		"status":     models.SnapshotStatusCompleted,
		"fetched_at": bson.M{"$lt": cutoff},
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to find stale snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var stale []models.SiteSnapshot
	if err := cursor.All(ctx, &stale); err != nil {
		return fmt.Errorf("failed to decode stale snapshots: %w", err)
	}

	requeued := 0
	for _, snap := range stale {
		if _, err := s.snapshotsCol.UpdateOne(ctx, bson.M{"_id": snap.ID}, bson.M{
			"$set": bson.M{
				"status":     models.SnapshotStatusPending,
				"progress":   0,
				"updated_at": time.Now(),
			},
		}); err != nil {
			log.Printf("⚠️ Failed to reset stale snapshot %s: %v", snap.ID.Hex(), err)
			continue
		}
		s.schedule(ctx, &snap)
		requeued++
	}

	if requeued > 0 {
		log.Printf("🔄 Requeued %d stale site snapshots for refresh", requeued)
	}
	return nil
}

// normalizeSiteURL validates a snapshot target, fills in the https
// scheme when the caller left it off, and canonicalizes the result.
func normalizeSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("site url is required: %w", utils.ErrMalformedInput)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid site url %q: %w", raw, utils.ErrMalformedInput)
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return "", fmt.Errorf("invalid site url %q: %w", raw, utils.ErrMalformedInput)
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q, expected http or https: %w", parsed.Scheme, utils.ErrMalformedInput)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("site url %q has no host: %w", raw, utils.ErrMalformedInput)
	}

	normalized, err := normalizeURL(parsed.String())
	if err != nil {
		return "", fmt.Errorf("invalid site url %q: %w", raw, utils.ErrMalformedInput)
	}
	return normalized, nil
}

// compressPages packs the page text into one brotli blob. Page records
// keep their metadata; the text itself is only stored once.
func compressPages(pages []models.SnapshotPage) ([]byte, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, page := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("# ")
		sb.WriteString(page.Title)
		sb.WriteString("\n")
		sb.WriteString(page.URL)
		sb.WriteString("\n")
		sb.WriteString(page.Content)
	}

	return utils.CompressData([]byte(sb.String()), utils.CompressionBrotli)
}

// composeSnapshotHTML renders the crawl into a minimal HTML document.
// The deck pipeline consumes documents, not snapshot records, so page
// text and parsed facts are laid out as plain markup for the html
// extractor to reduce.
func composeSnapshotHTML(snap *models.SiteSnapshot, result *CrawlResult) []byte {
	var sb strings.Builder

	title := result.Title
	if title == "" {
		title = snap.URL
	}

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	sb.WriteString(html.EscapeString(title))
	sb.WriteString("</title>\n</head>\n<body>\n")

	sb.WriteString("<h1>")
	sb.WriteString(html.EscapeString(title))
	sb.WriteString("</h1>\n<p>Site snapshot of ")
	sb.WriteString(html.EscapeString(snap.URL))
	sb.WriteString("</p>\n")

	if len(result.Facts) > 0 {
		sb.WriteString("<section>\n<h2>Site facts</h2>\n<ul>\n")
		for _, fact := range result.Facts {
			sb.WriteString("<li>")
			sb.WriteString(html.EscapeString(strings.ReplaceAll(fact.Name, "_", " ")))
			sb.WriteString(": ")
			sb.WriteString(html.EscapeString(fact.Value))
			sb.WriteString("</li>\n")
		}
		sb.WriteString("</ul>\n</section>\n")
	}

	for _, page := range result.Pages {
		sb.WriteString("<article>\n<h2>")
		sb.WriteString(html.EscapeString(page.Title))
		sb.WriteString("</h2>\n<p>")
		sb.WriteString(html.EscapeString(page.URL))
		sb.WriteString("</p>\n<div>")
		sb.WriteString(html.EscapeString(page.Content))
		sb.WriteString("</div>\n</article>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String())
}
