package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// BrandDataManager removes or inventories a brand's rows across the shared
// collections. Brands share one database and are isolated by brand_id
// filters, so teardown has to visit every collection carrying the field.
type BrandDataManager struct {
	db          *mongo.Database
	storagePath string
}

func NewBrandDataManager(db *mongo.Database, storagePath string) *BrandDataManager {
	return &BrandDataManager{db: db, storagePath: storagePath}
}

// brandScopedCollections lists every collection holding brand_id rows.
// audit_logs is deliberately absent: the deletion itself must stay on the
// record.
var brandScopedCollections = []string{
	"documents",
	"document_chunks",
	"decks",
	"media",
	"site_snapshots",
	"model_quotas",
	"suspicious_activity_alerts",
	"token_history",
	"users",
}

// PurgeResult reports how many rows each collection lost.
type PurgeResult struct {
	Deleted map[string]int64 `json:"deleted"`
}

// PurgeBrandData deletes the brand, every row it owns and its stored
// files. Uploads and media are laid out per brand on disk, so each
// directory goes in one sweep.
func (m *BrandDataManager) PurgeBrandData(ctx context.Context, brandID primitive.ObjectID) (*PurgeResult, error) {
	brandsCol := m.db.Collection("brands")
	if err := brandsCol.FindOne(ctx, bson.M{"_id": brandID}).Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("brand %s: %w", brandID.Hex(), utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load brand: %w", err)
	}

	result := &PurgeResult{Deleted: make(map[string]int64, len(brandScopedCollections)+1)}
	for _, name := range brandScopedCollections {
		out, err := m.db.Collection(name).DeleteMany(ctx, bson.M{"brand_id": brandID})
		if err != nil {
			return result, fmt.Errorf("failed to purge %s: %w", name, err)
		}
		result.Deleted[name] = out.DeletedCount
	}

	for _, dir := range []string{
		filepath.Join(m.storagePath, "documents", brandID.Hex()),
		filepath.Join(m.storagePath, "media", brandID.Hex()),
	} {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("⚠️ Failed to remove %s: %v", dir, err)
		}
	}

	out, err := brandsCol.DeleteOne(ctx, bson.M{"_id": brandID})
	if err != nil {
		return result, fmt.Errorf("failed to delete brand: %w", err)
	}
	result.Deleted["brands"] = out.DeletedCount

	log.Printf("✅ Purged brand %s: %v", brandID.Hex(), result.Deleted)
	return result, nil
}

// CountBrandData sizes a brand's footprint without touching it.
func (m *BrandDataManager) CountBrandData(ctx context.Context, brandID primitive.ObjectID) (map[string]int64, error) {
	counts := make(map[string]int64)

	for _, name := range brandScopedCollections {
		n, err := m.db.Collection(name).CountDocuments(ctx, bson.M{"brand_id": brandID})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// Collection returns a handle on the shared database, for callers that hold
// only the manager.
func (m *BrandDataManager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}
