package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert level constants, ordered by severity.
const (
	AlertLevelWarn      = "warn"
	AlertLevelCritical  = "critical"
	AlertLevelExhausted = "exhausted"
)

// QuotaAlertRecord is one sent quota alert, kept so operators can see
// when a brand was warned. Dedup lives on the brand itself; this is the
// timeline.
type QuotaAlertRecord struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID primitive.ObjectID `bson:"brand_id" json:"brand_id"`
	Level   string             `bson:"level" json:"level"`
	Usage   float64            `bson:"usage" json:"usage"` // percentage at send time
	SentAt  time.Time          `bson:"sent_at" json:"sent_at"`
}
