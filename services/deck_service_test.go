package services

import (
	"context"
	"errors"
	"testing"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The create preconditions fire before any database access, so they are
// testable on a bare service value.

func TestCreateDeckRequiresBrandName(t *testing.T) {
	s := &DeckService{config: &config.Config{}}
	brand := &models.Brand{
		ID:    primitive.NewObjectID(),
		Name:  "   ",
		Theme: models.Theme{LogoURL: "/media/abc/logo.png"},
	}

	_, err := s.CreateDeck(context.Background(), brand, models.CreateDeckRequest{
		Title:       "Q1 Review",
		DocumentIDs: []string{primitive.NewObjectID().Hex()},
	}, "user-1")

	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for blank brand name, got %v", err)
	}
}

func TestCreateDeckRequiresLogo(t *testing.T) {
	s := &DeckService{config: &config.Config{}}
	brand := &models.Brand{
		ID:   primitive.NewObjectID(),
		Name: "Acme",
	}

	_, err := s.CreateDeck(context.Background(), brand, models.CreateDeckRequest{
		Title:       "Q1 Review",
		DocumentIDs: []string{primitive.NewObjectID().Hex()},
	}, "user-1")

	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing logo, got %v", err)
	}
}

func TestCreateDeckRejectsBadDocumentID(t *testing.T) {
	s := &DeckService{config: &config.Config{}}
	brand := &models.Brand{
		ID:    primitive.NewObjectID(),
		Name:  "Acme",
		Theme: models.Theme{LogoURL: "/media/abc/logo.png"},
	}

	_, err := s.CreateDeck(context.Background(), brand, models.CreateDeckRequest{
		Title:       "Q1 Review",
		DocumentIDs: []string{"not-a-hex-id"},
	}, "user-1")

	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for malformed document id, got %v", err)
	}
}
