package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deck is one insight-deck build request and, once completed, its result.
// Decks are append-only: a rebuild creates a new deck rather than touching
// a completed one.
type Deck struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	BrandID     primitive.ObjectID   `bson:"brand_id" json:"brand_id"`
	Title       string               `bson:"title" json:"title"`
	DocumentIDs []primitive.ObjectID `bson:"document_ids" json:"document_ids"`
	Status      string               `bson:"status" json:"status"` // pending, processing, completed, failed
	Progress    int                  `bson:"progress" json:"progress"`
	Result      *ProcessingResult    `bson:"result,omitempty" json:"result,omitempty"`
	Error       string               `bson:"error,omitempty" json:"error,omitempty"`
	TaskID      string               `bson:"task_id,omitempty" json:"task_id,omitempty"`
	RequestedBy string               `bson:"requested_by,omitempty" json:"requested_by,omitempty"`
	CreatedAt   time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at" json:"updated_at"`
	StartedAt   *time.Time           `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time           `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

type CreateDeckRequest struct {
	Title       string   `json:"title" binding:"required,min=1,max=200"`
	DocumentIDs []string `json:"document_ids" binding:"required,min=1"`
}

// DeckResponse is the envelope returned on create and status polls.
type DeckResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	TaskID    string `json:"task_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AskRequest is a question against a brand's processed corpus.
type AskRequest struct {
	Question string `json:"question" binding:"required,min=3,max=2000"`
	DeckID   string `json:"deck_id,omitempty" binding:"omitempty,hexadecimal,len=24"`
}

type AskResponse struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources,omitempty"`
	TokensUsed int      `json:"tokens_used,omitempty"`
}
