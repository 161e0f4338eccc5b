package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditEvent represents an immutable audit log entry. Events never carry
// document content, only identifiers and the decision taken.
type AuditEvent struct {
	ID           string                 `bson:"_id,omitempty"`
	Timestamp    time.Time              `bson:"timestamp"`
	BrandID      string                 `bson:"brand_id"`
	UserID       string                 `bson:"user_id"`
	Action       string                 `bson:"action"`   // CREATE, READ, UPDATE, DELETE, ROUTE
	Resource     string                 `bson:"resource"` // document, deck, brand, user, snapshot, media
	ResourceID   string                 `bson:"resource_id"`
	Detail       string                 `bson:"detail,omitempty"` // e.g. routing path taken
	IPAddress    string                 `bson:"ip_address"`
	UserAgent    string                 `bson:"user_agent"`
	RequestID    string                 `bson:"request_id"`
	Success      bool                   `bson:"success"`
	ErrorMessage string                 `bson:"error_message,omitempty"`
	Changes      map[string]interface{} `bson:"changes,omitempty"`
	PreviousHash string                 `bson:"previous_hash"`
	CurrentHash  string                 `bson:"current_hash"`
	CreatedAt    time.Time              `bson:"created_at"`
}

// ComputeHash hashes the fields that fix the event's place in the chain.
// Free-form payloads (Changes, ErrorMessage) stay outside the hash.
func (e *AuditEvent) ComputeHash() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%t|%s",
		e.Timestamp.Format(time.RFC3339Nano),
		e.BrandID,
		e.UserID,
		e.Action,
		e.Resource,
		e.ResourceID,
		e.Detail,
		e.Success,
		e.PreviousHash,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// AuditLogger appends hash-chained events to an insert-only collection.
// Each brand has its own chain, so verifying one tenant's history never
// touches another's.
type AuditLogger struct {
	col        *mongo.Collection
	lastHashMu sync.Mutex
	lastHashes map[string]string // brandID -> hash of the brand's newest event
}

// NewAuditLogger creates the logger and its query indexes.
func NewAuditLogger(db *mongo.Database) *AuditLogger {
	col := db.Collection("audit_logs")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "resource_id", Value: 1}}},
		{Keys: bson.D{{Key: "action", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
	}
	if _, err := col.Indexes().CreateMany(context.Background(), indexes); err != nil {
		log.Printf("⚠️ Failed to create audit indexes: %v", err)
	}

	return &AuditLogger{
		col:        col,
		lastHashes: make(map[string]string),
	}
}

// chainHead returns the hash the next event for this brand must link to.
// The in-memory head only lives as long as the process, so on a miss the
// newest stored event is looked up; without that, every restart would
// fork the brand's chain. Caller holds lastHashMu.
func (al *AuditLogger) chainHead(ctx context.Context, brandID string) string {
	if head, ok := al.lastHashes[brandID]; ok {
		return head
	}

	var newest AuditEvent
	err := al.col.FindOne(ctx,
		bson.M{"brand_id": brandID},
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	).Decode(&newest)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("⚠️ Could not load audit chain head for brand %s: %v", brandID, err)
		}
		return ""
	}

	al.lastHashes[brandID] = newest.CurrentHash
	return newest.CurrentHash
}

// Log appends an event to its brand's chain. The lock serializes chain
// updates within the process; events are never modified after insert.
func (al *AuditLogger) Log(event *AuditEvent) error {
	al.lastHashMu.Lock()
	defer al.lastHashMu.Unlock()

	ctx := context.Background()

	event.PreviousHash = al.chainHead(ctx, event.BrandID)
	event.Timestamp = time.Now().UTC()
	event.CreatedAt = event.Timestamp
	event.ID = fmt.Sprintf("%d_%s", time.Now().UnixNano(), event.BrandID)
	event.CurrentHash = event.ComputeHash()

	if _, err := al.col.InsertOne(ctx, event); err != nil {
		log.Printf("❌ Failed to log audit event: %v", err)
		return err
	}

	al.lastHashes[event.BrandID] = event.CurrentHash

	log.Printf("✅ Audit event logged: %s %s %s", event.Action, event.Resource, event.ResourceID)
	return nil
}

// LogAsync logs an audit event without blocking the caller.
func (al *AuditLogger) LogAsync(event *AuditEvent) {
	go func() {
		if err := al.Log(event); err != nil {
			log.Printf("❌ Async audit logging failed: %v", err)
		}
	}()
}

// VerifyChain walks a brand's events oldest first and recomputes every
// link. A false return means stored history was altered or an event was
// removed.
func (al *AuditLogger) VerifyChain(brandID string) (bool, error) {
	ctx := context.Background()
	cursor, err := al.col.Find(ctx,
		bson.M{"brand_id": brandID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return false, err
	}
	defer cursor.Close(ctx)

	var previousHash string
	eventCount := 0

	for cursor.Next(ctx) {
		var event AuditEvent
		if err := cursor.Decode(&event); err != nil {
			return false, err
		}

		eventCount++

		if eventCount > 1 && event.PreviousHash != previousHash {
			log.Printf("❌ Audit chain broken at event %s - previous hash mismatch", event.ID)
			return false, nil
		}

		if event.CurrentHash != event.ComputeHash() {
			log.Printf("❌ Audit event hash mismatch at %s", event.ID)
			return false, nil
		}

		previousHash = event.CurrentHash
	}

	log.Printf("✅ Audit chain verified for brand %s: %d events", brandID, eventCount)
	return true, nil
}

// QueryAuditLogs returns a page of events matching the filter, newest
// first, along with the total match count.
func (al *AuditLogger) QueryAuditLogs(filter bson.M, page, pageSize int) ([]AuditEvent, int64, error) {
	ctx := context.Background()

	total, err := al.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	skip := (page - 1) * pageSize
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(pageSize))

	cursor, err := al.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var events []AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// GetAuditSummary aggregates a brand's recent events by action, plus a
// separate breakdown of routing decisions so the local/remote split is
// visible without paging through raw events.
func (al *AuditLogger) GetAuditSummary(brandID string, days int) (map[string]interface{}, error) {
	ctx := context.Background()

	startTime := time.Now().AddDate(0, 0, -days)

	pipeline := []bson.M{
		{"$match": bson.M{
			"brand_id":  brandID,
			"timestamp": bson.M{"$gte": startTime},
		}},
		{"$group": bson.M{
			"_id":   "$action",
			"count": bson.M{"$sum": 1},
			"success_count": bson.M{
				"$sum": bson.M{"$cond": bson.M{"if": "$success", "then": 1, "else": 0}},
			},
		}},
	}

	actions, err := al.aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var totalEvents int64
	for _, a := range actions {
		switch c := a["count"].(type) {
		case int32:
			totalEvents += int64(c)
		case int64:
			totalEvents += c
		}
	}

	// ROUTE events carry the processing path in detail
	routingPipeline := []bson.M{
		{"$match": bson.M{
			"brand_id":  brandID,
			"action":    "ROUTE",
			"timestamp": bson.M{"$gte": startTime},
		}},
		{"$group": bson.M{
			"_id":   "$detail",
			"count": bson.M{"$sum": 1},
		}},
	}

	routing, err := al.aggregate(ctx, routingPipeline)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"brand_id":     brandID,
		"period_days":  days,
		"actions":      actions,
		"routing":      routing,
		"total_events": totalEvents,
	}, nil
}

func (al *AuditLogger) aggregate(ctx context.Context, pipeline []bson.M) ([]bson.M, error) {
	cursor, err := al.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Collection returns the audit collection for direct access
func (al *AuditLogger) Collection() *mongo.Collection {
	return al.col
}
