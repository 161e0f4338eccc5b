package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"brand-deck-platform/internal/ai"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// askContextChunks is how many retrieved chunks ground a Q&A answer.
const askContextChunks = 3

// QuestionAnswerer produces grounded answers for corpus Q&A. The remote
// model client satisfies this.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string, contextChunks []string) (string, error)
}

// DeckEnqueuer hands deck builds to the background queue.
type DeckEnqueuer interface {
	EnqueueDeckBuild(ctx context.Context, brandID, deckID string) (string, error)
}

// DeckService owns the deck lifecycle: creation, build execution, status,
// and corpus Q&A. Completed decks are append-only; a rebuild always
// creates a new deck.
type DeckService struct {
	config    *config.Config
	decksCol  *mongo.Collection
	brandsCol *mongo.Collection
	documents *DocumentService
	builder   *DeckBuilder
	retrieval *RetrievalService
	answerer  QuestionAnswerer
	enqueuer  DeckEnqueuer
	auditor   *models.AuditLogger
}

// NewDeckService creates a deck service over the given database
func NewDeckService(
	cfg *config.Config,
	db *mongo.Database,
	documents *DocumentService,
	builder *DeckBuilder,
	retrieval *RetrievalService,
	answerer QuestionAnswerer,
) *DeckService {
	return &DeckService{
		config:    cfg,
		decksCol:  db.Collection("decks"),
		brandsCol: db.Collection("brands"),
		documents: documents,
		builder:   builder,
		retrieval: retrieval,
		answerer:  answerer,
	}
}

// SetEnqueuer wires the background queue client. Call before serving.
func (s *DeckService) SetEnqueuer(q DeckEnqueuer) {
	s.enqueuer = q
}

// SetAuditor wires the audit trail. Without it builds still run, but
// routing decisions are not recorded.
func (s *DeckService) SetAuditor(a *models.AuditLogger) {
	s.auditor = a
}

// CreateDeck validates the request, records a pending deck, and starts
// the build. Small batches build inline; larger ones go through the queue
// when one is wired.
func (s *DeckService) CreateDeck(ctx context.Context, brand *models.Brand, req models.CreateDeckRequest, requestedBy string) (*models.Deck, error) {
	// Decks are branded artifacts: both checks are preconditions of the
	// build, not cosmetics.
	if strings.TrimSpace(brand.Name) == "" {
		return nil, fmt.Errorf("brand name is required for deck builds: %w", utils.ErrMalformedInput)
	}
	if strings.TrimSpace(brand.Theme.LogoURL) == "" {
		return nil, fmt.Errorf("brand logo not found, upload one before building decks: %w", utils.ErrNotFound)
	}

	docIDs := make([]primitive.ObjectID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", raw, utils.ErrMalformedInput)
		}
		docIDs = append(docIDs, id)
	}

	if err := s.documents.VerifyDocumentsReady(ctx, brand.ID, docIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	deck := &models.Deck{
		ID:          primitive.NewObjectID(),
		BrandID:     brand.ID,
		Title:       strings.TrimSpace(req.Title),
		DocumentIDs: docIDs,
		Status:      models.StatusPending,
		Progress:    0,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.decksCol.InsertOne(ctx, deck); err != nil {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}

	if len(docIDs) > s.config.SyncBuildLimit && s.enqueuer != nil {
		taskID, err := s.enqueuer.EnqueueDeckBuild(ctx, brand.ID.Hex(), deck.ID.Hex())
		if err != nil {
			log.Printf("⚠️ Failed to enqueue deck build for %s, falling back to inline: %v", deck.ID.Hex(), err)
			s.buildInline(deck.ID)
		} else {
			deck.TaskID = taskID
			if _, err := s.decksCol.UpdateOne(ctx, bson.M{"_id": deck.ID}, bson.M{"$set": bson.M{"task_id": taskID}}); err != nil {
				log.Printf("⚠️ Failed to record task id for deck %s: %v", deck.ID.Hex(), err)
			}
		}
	} else {
		s.buildInline(deck.ID)
	}

	return deck, nil
}

// buildInline runs the build in the background of this process.
func (s *DeckService) buildInline(deckID primitive.ObjectID) {
	go func() {
		buildCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		if err := s.ExecuteBuild(buildCtx, deckID); err != nil {
			log.Printf("❌ Inline deck build failed for %s: %v", deckID.Hex(), err)
		}
	}()
}

// ExecuteBuild runs the full pipeline for one deck and persists the
// outcome. It is shared by inline builds and the queue worker. Completed
// decks are never rebuilt.
func (s *DeckService) ExecuteBuild(ctx context.Context, deckID primitive.ObjectID) error {
	var deck models.Deck
	err := s.decksCol.FindOne(ctx, bson.M{"_id": deckID}).Decode(&deck)
	if err == mongo.ErrNoDocuments {
		return fmt.Errorf("deck %s: %w", deckID.Hex(), utils.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load deck: %w", err)
	}

	switch deck.Status {
	case models.StatusCompleted:
		// Append-only: finished results are immutable.
		return fmt.Errorf("deck %s is already completed: %w", deckID.Hex(), utils.ErrMalformedInput)
	case models.StatusProcessing:
		log.Printf("⚠️ Deck %s is already being processed, skipping duplicate build", deckID.Hex())
		return nil
	}

	var brand models.Brand
	err = s.brandsCol.FindOne(ctx, bson.M{"_id": deck.BrandID}).Decode(&brand)
	if err == mongo.ErrNoDocuments {
		buildErr := fmt.Errorf("brand %s: %w", deck.BrandID.Hex(), utils.ErrNotFound)
		s.failDeck(ctx, deckID, buildErr)
		return buildErr
	}
	if err != nil {
		return fmt.Errorf("failed to load brand: %w", err)
	}

	started := time.Now()
	if _, err := s.decksCol.UpdateOne(ctx, bson.M{"_id": deckID}, bson.M{"$set": bson.M{
		"status":     models.StatusProcessing,
		"progress":   5,
		"started_at": started,
		"updated_at": started,
	}}); err != nil {
		return fmt.Errorf("failed to mark deck processing: %w", err)
	}

	docs, err := s.documents.LoadRoutableDocuments(ctx, deck.BrandID, deck.DocumentIDs)
	if err != nil {
		s.failDeck(ctx, deckID, err)
		return err
	}

	estimatedTokens := 0
	batchSensitive := false
	for _, d := range docs {
		estimatedTokens += len(d.Text) / 4
		if d.Sensitive {
			batchSensitive = true
		}
	}

	// Daily quota is consumed before any remote call is made
	if err := ai.CheckBrandQuota(ctx, s.decksCol.Database(), deck.BrandID.Hex(), estimatedTokens, s.config.DailyTokenLimit); err != nil {
		s.failDeck(ctx, deckID, err)
		return err
	}

	opts := BuildOptions{
		BatchSensitive: batchSensitive,
		TopChartCount:  brand.DeckSettings.TopChartCount,
		OnProgress: func(stage string, percent int) {
			if _, err := s.decksCol.UpdateOne(context.Background(), bson.M{"_id": deckID}, bson.M{"$set": bson.M{
				"progress":   percent,
				"updated_at": time.Now(),
			}}); err != nil {
				log.Printf("⚠️ Failed to persist %s progress for deck %s: %v", stage, deckID.Hex(), err)
			}
		},
	}

	result, err := s.builder.Build(ctx, brand.Name, brand.Theme.PrimaryColor, docs, opts)
	if err != nil {
		s.failDeck(ctx, deckID, err)
		return err
	}

	completed := time.Now()
	if _, err := s.decksCol.UpdateOne(ctx, bson.M{"_id": deckID}, bson.M{"$set": bson.M{
		"status":       models.StatusCompleted,
		"progress":     100,
		"result":       result,
		"completed_at": completed,
		"updated_at":   completed,
	}}); err != nil {
		return fmt.Errorf("failed to persist deck result: %w", err)
	}

	s.recordTokenUsage(ctx, deck.BrandID, estimatedTokens)
	s.auditRoutes(deck, result.Provenance.Documents)

	log.Printf("✅ Deck %s built for %s: %d remote, %d local, %d failed documents",
		deckID.Hex(), brand.Name, result.Provenance.RemoteDocuments, result.Provenance.LocalDocuments, result.Provenance.FailedDocuments)
	return nil
}

// auditRoutes records the path each document took into the audit chain.
// Only the route name lands in the trail, never text.
func (s *DeckService) auditRoutes(deck models.Deck, docs []models.DocumentProvenance) {
	if s.auditor == nil {
		return
	}
	for _, d := range docs {
		s.auditor.LogAsync(&models.AuditEvent{
			BrandID:    deck.BrandID.Hex(),
			UserID:     deck.RequestedBy,
			Action:     "ROUTE",
			Resource:   "document",
			ResourceID: d.DocumentID,
			Detail:     d.Route,
			RequestID:  deck.TaskID,
			Success:    !d.Failed,
		})
	}
}

// failDeck marks a deck failed with its cause. Best effort.
func (s *DeckService) failDeck(ctx context.Context, deckID primitive.ObjectID, cause error) {
	now := time.Now()
	if _, err := s.decksCol.UpdateOne(ctx, bson.M{"_id": deckID}, bson.M{"$set": bson.M{
		"status":       models.StatusFailed,
		"error":        cause.Error(),
		"completed_at": now,
		"updated_at":   now,
	}}); err != nil {
		log.Printf("❌ Failed to mark deck %s failed: %v", deckID.Hex(), err)
	}
}

// FailStaleBuilds marks decks abandoned mid-build as failed. A deck can
// get stuck in pending or processing when the worker dies or the enqueue
// was lost; the cutoff is well past the queue's task timeout, so anything
// older is not coming back.
func (s *DeckService) FailStaleBuilds(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.DeckStaleAfter)
	now := time.Now()

	result, err := s.decksCol.UpdateMany(ctx,
		bson.M{
			"status":     bson.M{"$in": []string{models.StatusPending, models.StatusProcessing}},
			"updated_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":       models.StatusFailed,
			"error":        "build abandoned, no progress since " + cutoff.Format(time.RFC3339),
			"completed_at": now,
			"updated_at":   now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to sweep stale decks: %w", err)
	}
	if result.ModifiedCount > 0 {
		log.Printf("🔄 Marked %d stale deck builds as failed", result.ModifiedCount)
	}
	return nil
}

// recordTokenUsage adds to the brand's lifetime token counter, which
// feeds usage dashboards and quota alerts.
func (s *DeckService) recordTokenUsage(ctx context.Context, brandID primitive.ObjectID, tokens int) {
	if tokens <= 0 {
		return
	}
	if _, err := s.brandsCol.UpdateOne(ctx, bson.M{"_id": brandID}, bson.M{
		"$inc": bson.M{"token_used": tokens},
		"$set": bson.M{"updated_at": time.Now()},
	}); err != nil {
		log.Printf("⚠️ Failed to record token usage for brand %s: %v", brandID.Hex(), err)
	}
}

// GetDeck fetches one deck scoped to a brand, including its result.
func (s *DeckService) GetDeck(ctx context.Context, brandID, deckID primitive.ObjectID) (*models.Deck, error) {
	var deck models.Deck
	err := s.decksCol.FindOne(ctx, bson.M{"_id": deckID, "brand_id": brandID}).Decode(&deck)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("deck %s: %w", deckID.Hex(), utils.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deck: %w", err)
	}
	return &deck, nil
}

// ListDecks returns a brand's decks newest first, without result payloads.
func (s *DeckService) ListDecks(ctx context.Context, brandID primitive.ObjectID) ([]models.Deck, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetProjection(bson.M{"result": 0})
	cursor, err := s.decksCol.Find(ctx, bson.M{"brand_id": brandID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer cursor.Close(ctx)

	var decks []models.Deck
	if err := cursor.All(ctx, &decks); err != nil {
		return nil, fmt.Errorf("failed to decode decks: %w", err)
	}
	return decks, nil
}

// Ask answers a question against the brand's processed corpus, optionally
// scoped to one completed deck whose master summary then leads the
// grounding context.
func (s *DeckService) Ask(ctx context.Context, brand *models.Brand, req models.AskRequest) (*models.AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", utils.ErrMalformedInput)
	}

	var deck *models.Deck
	if req.DeckID != "" {
		deckID, err := primitive.ObjectIDFromHex(req.DeckID)
		if err != nil {
			return nil, fmt.Errorf("invalid deck id %q: %w", req.DeckID, utils.ErrMalformedInput)
		}
		deck, err = s.GetDeck(ctx, brand.ID, deckID)
		if err != nil {
			return nil, err
		}
		if deck.Status != models.StatusCompleted {
			return nil, fmt.Errorf("deck %s has no result yet (status %s): %w", req.DeckID, deck.Status, utils.ErrMalformedInput)
		}
	}

	chunks, err := s.retrieval.TopChunks(ctx, brand.ID, question, askContextChunks)
	if err != nil {
		log.Printf("⚠️ Chunk retrieval failed, answering from deck summary only: %v", err)
	}

	contexts := make([]string, 0, len(chunks)+1)
	sources := make([]string, 0, len(chunks)+1)

	if deck != nil && deck.Result != nil && !deck.Result.Summary.Empty {
		contexts = append(contexts, deck.Result.Summary.Text)
		sources = append(sources, "deck:"+deck.ID.Hex())
	}

	seenDocs := make(map[string]bool)
	for _, ch := range chunks {
		contexts = append(contexts, ch.Text)
		docHex := ch.DocumentID.Hex()
		if !seenDocs[docHex] {
			seenDocs[docHex] = true
			sources = append(sources, "document:"+docHex)
		}
	}

	if len(contexts) == 0 {
		return nil, fmt.Errorf("no processed content available to answer from: %w", utils.ErrNotFound)
	}

	estimatedTokens := len(question) / 4
	for _, c := range contexts {
		estimatedTokens += len(c) / 4
	}
	if err := ai.CheckBrandQuota(ctx, s.decksCol.Database(), brand.ID.Hex(), estimatedTokens, s.config.DailyTokenLimit); err != nil {
		return nil, err
	}

	answer, err := s.answerer.Answer(ctx, question, contexts)
	if err != nil {
		return nil, fmt.Errorf("failed to answer question: %w", err)
	}

	s.recordTokenUsage(ctx, brand.ID, estimatedTokens)

	return &models.AskResponse{
		Answer:     answer,
		Sources:    sources,
		TokensUsed: estimatedTokens,
	}, nil
}
