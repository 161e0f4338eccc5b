package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Brand struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name" binding:"required,min=2,max=100"`
	Theme        Theme              `bson:"theme" json:"theme"`
	TokenLimit   int                `bson:"token_limit" json:"token_limit"`
	TokenUsed    int                `bson:"token_used" json:"token_used"`
	EmbedSecret  string             `bson:"embed_secret" json:"embed_secret"`
	Status       string             `bson:"status,omitempty" json:"status,omitempty"` // optional, default "active"
	ContactEmail string             `bson:"contact_email,omitempty" json:"contact_email,omitempty"`
	ContactPhone string             `bson:"contact_phone,omitempty" json:"contact_phone,omitempty"`
	DeckSettings DeckSettings       `bson:"deck_settings" json:"deck_settings"`
	Permissions  BrandPermissions   `bson:"permissions,omitempty" json:"permissions"`

	// Origins allowed to embed this brand's published decks. Empty
	// means any origin, as long as embedding itself is enabled.
	AllowedOrigins []string `bson:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`

	// Quota alert state, managed by the alert evaluator.
	AlertLevelSent  string    `bson:"alert_level_sent,omitempty" json:"-"`
	AlertLastSentAt time.Time `bson:"alert_last_sent_at,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Theme carries the visual identity used when decks are assembled. The
// primary color seeds every derived chart palette.
type Theme struct {
	PrimaryColor   string `bson:"primary_color" json:"primary_color"`
	LogoURL        string `bson:"logo_url" json:"logo_url"`
	Tagline        string `bson:"tagline,omitempty" json:"tagline,omitempty"`
	AllowEmbedding bool   `bson:"allow_embedding" json:"allow_embedding"`
	ShowPoweredBy  bool   `bson:"show_powered_by,omitempty" json:"show_powered_by,omitempty"`
}

// DeckSettings are per-brand overrides for deck building. Zero values fall
// back to the server defaults.
type DeckSettings struct {
	TopChartCount int `bson:"top_chart_count,omitempty" json:"top_chart_count,omitempty"`
	ChunkSize     int `bson:"chunk_size,omitempty" json:"chunk_size,omitempty"`
}

// BrandPermissions gates which workspace surfaces a brand's users can
// reach. Empty lists leave everything enabled.
type BrandPermissions struct {
	AllowedNavigationItems []string `bson:"allowed_navigation_items,omitempty" json:"allowed_navigation_items,omitempty"`
	EnabledFeatures        []string `bson:"enabled_features,omitempty" json:"enabled_features,omitempty"`
}

type CreateBrandRequest struct {
	Name         string       `json:"name" binding:"required,min=2,max=100"`
	TokenLimit   int          `json:"token_limit" binding:"required,min=1000"`
	Theme        Theme        `json:"theme"`
	DeckSettings DeckSettings `json:"deck_settings"`
	Status       string       `json:"status,omitempty"`
	ContactEmail string       `json:"contact_email,omitempty"`
	ContactPhone string       `json:"contact_phone,omitempty"`

	// Optional: create the first login user for this brand
	InitialUser *InitialUser `json:"initial_user,omitempty"`
}

type InitialUser struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type UpdateBrandRequest struct {
	Name         *string           `json:"name,omitempty" binding:"omitempty,min=2,max=100"`
	TokenLimit   *int              `json:"token_limit,omitempty" binding:"omitempty,min=1000"`
	Theme        *Theme            `json:"theme,omitempty"`
	DeckSettings *DeckSettings     `json:"deck_settings,omitempty"`
	Permissions  *BrandPermissions `json:"permissions,omitempty"`
	Status       *string           `json:"status,omitempty"`
	ContactEmail *string           `json:"contact_email,omitempty"`
	ContactPhone *string           `json:"contact_phone,omitempty"`
}

type BrandUsageStats struct {
	Brand           Brand     `json:"brand"`
	UsagePercentage float64   `json:"usage_percentage"`
	LastActivity    time.Time `json:"last_activity"`
	TotalDecks      int       `json:"total_decks"`
	TotalDocuments  int       `json:"total_documents"`
	ActiveUsers     int       `json:"active_users"`
}

type UsageAnalytics struct {
	TotalBrands     int               `json:"total_brands"`
	TotalTokensUsed int               `json:"total_tokens_used"`
	TotalDecks      int               `json:"total_decks"`
	ActiveBrands    int               `json:"active_brands"`
	BrandStats      []BrandUsageStats `json:"brand_stats"`
	PeriodStart     time.Time         `json:"period_start"`
	PeriodEnd       time.Time         `json:"period_end"`
}

type TokenHistory struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID     primitive.ObjectID `bson:"brand_id" json:"brand_id"`
	OldLimit    int                `bson:"old_limit" json:"old_limit"`
	NewLimit    int                `bson:"new_limit" json:"new_limit"`
	Reason      string             `bson:"reason,omitempty" json:"reason,omitempty"`
	AdminUserID string             `bson:"admin_user_id,omitempty" json:"admin_user_id,omitempty"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	Action      string             `bson:"action" json:"action"` // "reset", "increase", "decrease"
}
