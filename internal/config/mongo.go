package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Users collection indexes
	usersCollection := db.Collection("users")
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}},
		},
	}
	_, err := usersCollection.Indexes().CreateMany(context.Background(), userIndexes)
	if err != nil {
		return err
	}

	// Brands collection indexes
	brandsCollection := db.Collection("brands")
	brandIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "embed_secret", Value: 1}},
		},
	}
	_, err = brandsCollection.Indexes().CreateMany(context.Background(), brandIndexes)
	if err != nil {
		return err
	}

	// Documents collection indexes. Lookups are always brand scoped and
	// the hash index backs upload dedup.
	documentsCollection := db.Collection("documents")
	documentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "filename", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "file_hash", Value: 1}},
		},
	}
	_, err = documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	// Decks collection indexes
	decksCollection := db.Collection("decks")
	deckIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err = decksCollection.Indexes().CreateMany(context.Background(), deckIndexes)
	if err != nil {
		return err
	}

	// Site snapshots collection indexes
	snapshotsCollection := db.Collection("site_snapshots")
	snapshotIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "url", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "fetched_at", Value: -1}},
		},
	}
	_, err = snapshotsCollection.Indexes().CreateMany(context.Background(), snapshotIndexes)
	if err != nil {
		return err
	}

	// Document chunks collection indexes for retrieval filters
	chunksCollection := db.Collection("document_chunks")
	chunkIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "brand_id", Value: 1}}},
		{Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "document_id", Value: 1}}},
	}
	_, err = chunksCollection.Indexes().CreateMany(context.Background(), chunkIndexes)
	if err != nil {
		return err
	}

	// Media collection indexes. The hash index backs upload dedup.
	mediaCollection := db.Collection("media")
	mediaIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "brand_id", Value: 1}}},
		{Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "file_hash", Value: 1}}},
	}
	_, err = mediaCollection.Indexes().CreateMany(context.Background(), mediaIndexes)
	if err != nil {
		return err
	}

	// Model quota usage, one doc per brand/model/day
	quotasCollection := db.Collection("model_quotas")
	quotaIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "brand_id", Value: 1}, {Key: "model", Value: 1}, {Key: "day", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err = quotasCollection.Indexes().CreateMany(context.Background(), quotaIndexes)
	if err != nil {
		return err
	}

	// Password reset tokens expire on their own via TTL
	resetsCollection := db.Collection("password_resets")
	resetIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}
	_, err = resetsCollection.Indexes().CreateMany(context.Background(), resetIndexes)
	if err != nil {
		return err
	}

	// Token limit change history per brand
	historyCollection := db.Collection("token_history")
	historyIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	_, err = historyCollection.Indexes().CreateMany(context.Background(), historyIndexes)
	if err != nil {
		return err
	}

	// Embed abuse alerts, queried by brand and recency
	alertsCollection := db.Collection("suspicious_activity_alerts")
	alertIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	_, err = alertsCollection.Indexes().CreateMany(context.Background(), alertIndexes)
	if err != nil {
		return err
	}

	// Quota alert timeline, queried by brand and recency
	quotaAlertsCollection := db.Collection("quota_alerts")
	quotaAlertIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "sent_at", Value: -1}}},
	}
	_, err = quotaAlertsCollection.Indexes().CreateMany(context.Background(), quotaAlertIndexes)
	if err != nil {
		return err
	}

	return nil
}
