package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/services"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  backfill  - Backfill fields added after early brands were created")
		fmt.Println("  verify    - Check collection counts and cross-collection references")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connecting also ensures every index exists
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client.Disconnect(ctx)
	}()

	db := client.Database(cfg.DBName)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "backfill":
		if err := runBackfills(ctx, db); err != nil {
			log.Fatalf("Backfill failed: %v", err)
		}
		fmt.Println("Backfill completed successfully!")

	case "verify":
		if err := verifyData(ctx, db); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Println("Verification completed successfully!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func runBackfills(ctx context.Context, db *mongo.Database) error {
	brandsCol := db.Collection("brands")

	fmt.Println("Backfilling quota alert fields...")
	if err := services.MigrateBrandAlertFields(ctx, brandsCol); err != nil {
		return fmt.Errorf("alert fields: %v", err)
	}

	fmt.Println("Backfilling embed secrets...")
	if err := backfillEmbedSecrets(ctx, brandsCol); err != nil {
		return fmt.Errorf("embed secrets: %v", err)
	}

	return nil
}

// backfillEmbedSecrets generates a secret for brands created before the
// embed feature existed. Secrets are unique per brand, so this cannot be
// a single UpdateMany.
func backfillEmbedSecrets(ctx context.Context, brandsCol *mongo.Collection) error {
	filter := bson.M{"$or": []bson.M{
		{"embed_secret": bson.M{"$exists": false}},
		{"embed_secret": ""},
	}}

	cursor, err := brandsCol.Find(ctx, filter)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var brands []models.Brand
	if err := cursor.All(ctx, &brands); err != nil {
		return err
	}

	for _, brand := range brands {
		secret, err := utils.GenerateEmbedSecret()
		if err != nil {
			return err
		}
		_, err = brandsCol.UpdateOne(ctx,
			bson.M{"_id": brand.ID},
			bson.M{"$set": bson.M{"embed_secret": secret, "updated_at": time.Now()}})
		if err != nil {
			return fmt.Errorf("brand %s: %v", brand.ID.Hex(), err)
		}
		fmt.Printf("  %s: secret generated\n", brand.Name)
	}

	fmt.Printf("Backfilled %d brands\n", len(brands))
	return nil
}

func verifyData(ctx context.Context, db *mongo.Database) error {
	fmt.Println("Counting collections...")
	for _, name := range []string{
		"brands", "users", "documents", "document_chunks",
		"decks", "media", "site_snapshots", "audit_logs",
	} {
		count, err := db.Collection(name).CountDocuments(ctx, bson.M{})
		if err != nil {
			return fmt.Errorf("failed to count %s: %v", name, err)
		}
		fmt.Printf("  %s: %d documents\n", name, count)
	}

	brandIDs, err := db.Collection("brands").Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return err
	}
	fmt.Printf("Found %d brands to verify\n", len(brandIDs))

	// Rows referencing a brand that no longer exists indicate an
	// interrupted purge and should be cleaned up by rerunning it.
	orphanFilter := bson.M{"brand_id": bson.M{"$nin": brandIDs}}
	for _, name := range []string{"documents", "decks", "media", "site_snapshots"} {
		count, err := db.Collection(name).CountDocuments(ctx, orphanFilter)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %v", name, err)
		}
		if count > 0 {
			fmt.Printf("  ⚠️ %s: %d documents reference a deleted brand\n", name, count)
		}
	}

	// Members must be pinned to a brand. A null filter matches both
	// missing and explicitly-null brand ids.
	members, err := db.Collection("users").CountDocuments(ctx, bson.M{
		"role":     "member",
		"brand_id": nil,
	})
	if err != nil {
		return err
	}
	if members > 0 {
		fmt.Printf("  ⚠️ %d member users have no brand assigned\n", members)
	}

	return nil
}
