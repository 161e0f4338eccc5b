package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MigrateBrandAlertFields backfills alert tracking fields on brands created
// before quota alerting existed.
func MigrateBrandAlertFields(ctx context.Context, brandsCol *mongo.Collection) error {
	filter := bson.M{
		"$or": []bson.M{
			{"alert_level_sent": bson.M{"$exists": false}},
			{"alert_last_sent_at": bson.M{"$exists": false}},
		},
	}

	update := bson.M{
		"$set": bson.M{
			"alert_level_sent":   "none",
			"alert_last_sent_at": time.Time{},
			"updated_at":         time.Now(),
		},
	}

	_, err := brandsCol.UpdateMany(ctx, filter, update)
	return err
}
