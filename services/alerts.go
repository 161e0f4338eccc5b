package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/internal/logger"
	"brand-deck-platform/models"
)

// AlertEvaluator watches per-brand model token consumption and emails the
// brand contact plus the platform admins when thresholds are crossed. A
// level fires at most once until usage resets.
type AlertEvaluator struct {
	config      *config.Config
	emailSender EmailSender
	brandsCol   *mongo.Collection
	historyCol  *mongo.Collection
}

func NewAlertEvaluator(cfg *config.Config, emailSender EmailSender, brandsCol *mongo.Collection) *AlertEvaluator {
	return &AlertEvaluator{
		config:      cfg,
		emailSender: emailSender,
		brandsCol:   brandsCol,
		historyCol:  brandsCol.Database().Collection("quota_alerts"),
	}
}

func (a *AlertEvaluator) EvaluateAndNotify(ctx context.Context, brandID primitive.ObjectID) error {
	var brand models.Brand
	err := a.brandsCol.FindOne(ctx, bson.M{"_id": brandID}).Decode(&brand)
	if err != nil {
		return fmt.Errorf("failed to fetch brand: %w", err)
	}

	if brand.TokenLimit == 0 {
		return nil // No budget configured, nothing to alert on
	}

	percentUsed := float64(brand.TokenUsed) / float64(brand.TokenLimit) * 100

	var alertLevel string
	switch {
	case percentUsed >= float64(a.config.QuotaExhaustedPercent):
		alertLevel = models.AlertLevelExhausted
	case percentUsed >= float64(a.config.QuotaCriticalPercent):
		alertLevel = models.AlertLevelCritical
	case percentUsed >= float64(a.config.QuotaWarnPercent):
		alertLevel = models.AlertLevelWarn
	default:
		return nil
	}

	if a.shouldSkipAlert(brand, alertLevel) {
		return nil
	}

	data := QuotaAlertData{
		BrandName:       brand.Name,
		ContactEmail:    brand.ContactEmail,
		AdminEmails:     a.config.AdminEmails,
		UsedTokens:      brand.TokenUsed,
		TotalTokens:     brand.TokenLimit,
		RemainingTokens: brand.TokenLimit - brand.TokenUsed,
		PercentUsed:     percentUsed,
	}

	blog := logger.ForBrand(brandID.Hex())

	if err := a.emailSender.SendQuotaAlert(brand, alertLevel, data); err != nil {
		blog.Error("quota alert send failed", "level", alertLevel, "error", err)
		return err
	}

	blog.Warn("quota alert sent", "brand", brand.Name, "level", alertLevel, "usage_percent", percentUsed)

	// The record is advisory; a failed insert does not unsend the email
	if _, err := a.historyCol.InsertOne(ctx, models.QuotaAlertRecord{
		BrandID: brandID,
		Level:   alertLevel,
		Usage:   percentUsed,
		SentAt:  time.Now(),
	}); err != nil {
		blog.Error("quota alert record insert failed", "level", alertLevel, "error", err)
	}

	return a.updateAlertStatus(ctx, brandID, alertLevel)
}

// shouldSkipAlert suppresses repeats: once a level has fired, only a higher
// level fires again until the status is reset.
func (a *AlertEvaluator) shouldSkipAlert(brand models.Brand, alertLevel string) bool {
	if brand.AlertLevelSent == "" || brand.AlertLevelSent == "none" {
		return false
	}

	alertHierarchy := map[string]int{
		models.AlertLevelWarn:      1,
		models.AlertLevelCritical:  2,
		models.AlertLevelExhausted: 3,
	}

	return alertHierarchy[brand.AlertLevelSent] >= alertHierarchy[alertLevel]
}

func (a *AlertEvaluator) updateAlertStatus(ctx context.Context, brandID primitive.ObjectID, alertLevel string) error {
	update := bson.M{
		"$set": bson.M{
			"alert_level_sent":   alertLevel,
			"alert_last_sent_at": time.Now(),
			"updated_at":         time.Now(),
		},
	}

	_, err := a.brandsCol.UpdateOne(ctx, bson.M{"_id": brandID}, update)
	return err
}

// ResetAlertStatus clears alert state, called on budget top-up or reset.
func (a *AlertEvaluator) ResetAlertStatus(ctx context.Context, brandID primitive.ObjectID) error {
	update := bson.M{
		"$set": bson.M{
			"alert_level_sent":   "none",
			"alert_last_sent_at": time.Time{},
			"updated_at":         time.Now(),
		},
	}

	_, err := a.brandsCol.UpdateOne(ctx, bson.M{"_id": brandID}, update)
	return err
}

// ScanAllBrands evaluates every active brand, for the periodic sweep.
func (a *AlertEvaluator) ScanAllBrands(ctx context.Context) error {
	cursor, err := a.brandsCol.Find(ctx, bson.M{"status": bson.M{"$ne": "inactive"}})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	scanned := 0
	for cursor.Next(ctx) {
		var brand models.Brand
		if err := cursor.Decode(&brand); err != nil {
			logger.Error("brand decode failed during alert sweep", "error", err)
			continue
		}

		scanned++
		if err := a.EvaluateAndNotify(ctx, brand.ID); err != nil {
			logger.Error("alert evaluation failed", "brand_id", brand.ID.Hex(), "error", err)
		}
	}

	logger.Info("quota alert sweep completed", "brands_scanned", scanned)
	return cursor.Err()
}
