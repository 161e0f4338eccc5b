package ai

import (
	"context"
	"fmt"
	"time"

	"brand-deck-platform/internal/logger"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const quotaCollection = "model_quotas"

// BrandModelQuota tracks per-brand daily consumption of the remote model.
// Deck builds and Q&A both draw from the same budget.
type BrandModelQuota struct {
	BrandID         string    `bson:"brand_id" json:"brand_id"`
	DailyTokenLimit int       `bson:"daily_token_limit" json:"daily_token_limit"`
	TokensUsedToday int       `bson:"tokens_used_today" json:"tokens_used_today"`
	RequestsToday   int       `bson:"requests_today" json:"requests_today"`
	LastResetDate   time.Time `bson:"last_reset_date" json:"last_reset_date"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// PercentUsed reports consumption against the daily limit, for alerting.
func (q *BrandModelQuota) PercentUsed() int {
	if q.DailyTokenLimit <= 0 {
		return 0
	}
	return q.TokensUsedToday * 100 / q.DailyTokenLimit
}

// CheckBrandQuota verifies the brand can consume estimatedTokens today and,
// if so, records the consumption. A brand without a quota record gets one
// created with defaultLimit. Exceeding the budget returns an error wrapping
// ErrBackendUnavailable so the caller's fallback path engages.
func CheckBrandQuota(ctx context.Context, db *mongo.Database, brandID string, estimatedTokens, defaultLimit int) error {
	col := db.Collection(quotaCollection)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Reset counters when the record is from a previous day.
	if _, err := col.UpdateOne(ctx,
		bson.M{"brand_id": brandID, "last_reset_date": bson.M{"$lt": today}},
		bson.M{"$set": bson.M{
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   today,
			"updated_at":        now,
		}},
	); err != nil {
		return fmt.Errorf("failed to reset quota window: %w", err)
	}

	var quota BrandModelQuota
	err := col.FindOne(ctx, bson.M{"brand_id": brandID}).Decode(&quota)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			return fmt.Errorf("failed to load quota: %w", err)
		}
		quota = BrandModelQuota{
			BrandID:         brandID,
			DailyTokenLimit: defaultLimit,
			LastResetDate:   today,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := col.InsertOne(ctx, quota); err != nil {
			return fmt.Errorf("failed to create quota: %w", err)
		}
	}

	if quota.TokensUsedToday+estimatedTokens > quota.DailyTokenLimit {
		logger.ForBrand(brandID).Warn("daily model quota exceeded", "tokens_used", quota.TokensUsedToday, "daily_limit", quota.DailyTokenLimit)
		return fmt.Errorf("daily model quota exceeded for brand %s: %w", brandID, utils.ErrBackendUnavailable)
	}

	_, err = col.UpdateOne(ctx,
		bson.M{"brand_id": brandID},
		bson.M{
			"$inc": bson.M{
				"tokens_used_today": estimatedTokens,
				"requests_today":    1,
			},
			"$set": bson.M{"updated_at": now},
		},
	)
	if err == nil {
		logger.ForBrand(brandID).Debug("model quota consumed", "tokens", estimatedTokens, "used_today", quota.TokensUsedToday+estimatedTokens)
	}
	return err
}

// GetBrandQuotaStatus returns the current quota record for a brand.
func GetBrandQuotaStatus(ctx context.Context, db *mongo.Database, brandID string) (*BrandModelQuota, error) {
	var quota BrandModelQuota
	err := db.Collection(quotaCollection).FindOne(ctx, bson.M{"brand_id": brandID}).Decode(&quota)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("no quota record for brand %s: %w", brandID, utils.ErrNotFound)
		}
		return nil, err
	}
	return &quota, nil
}

// ListBrandQuotas returns all quota records, for the admin surface.
func ListBrandQuotas(ctx context.Context, db *mongo.Database) ([]BrandModelQuota, error) {
	cursor, err := db.Collection(quotaCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var quotas []BrandModelQuota
	if err := cursor.All(ctx, &quotas); err != nil {
		return nil, err
	}
	return quotas, nil
}

// SetBrandQuotaLimit sets the daily token limit for a brand, creating the
// record if it does not exist yet.
func SetBrandQuotaLimit(ctx context.Context, db *mongo.Database, brandID string, dailyLimit int) error {
	now := time.Now().UTC()
	_, err := db.Collection(quotaCollection).UpdateOne(ctx,
		bson.M{"brand_id": brandID},
		bson.M{
			"$set": bson.M{
				"daily_token_limit": dailyLimit,
				"updated_at":        now,
			},
			"$setOnInsert": bson.M{
				"brand_id":          brandID,
				"tokens_used_today": 0,
				"requests_today":    0,
				"last_reset_date":   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
				"created_at":        now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// ResetBrandQuota zeroes the daily usage counters for a brand.
func ResetBrandQuota(ctx context.Context, db *mongo.Database, brandID string) error {
	now := time.Now().UTC()
	_, err := db.Collection(quotaCollection).UpdateOne(ctx,
		bson.M{"brand_id": brandID},
		bson.M{"$set": bson.M{
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
			"updated_at":        now,
		}},
	)
	return err
}
