package services

import (
	"testing"

	"brand-deck-platform/models"
)

func TestRankChunksByKeywords(t *testing.T) {
	indexed := []models.DocChunkIndex{
		{ChunkID: "a", Text: "Revenue grew 35% year over year on subscription strength."},
		{ChunkID: "b", Text: "The office relocated to a larger campus in Austin."},
		{ChunkID: "c", Text: "Subscription revenue is now the majority of total revenue."},
		{ChunkID: "d", Text: "Hiring plans focus on engineering and support."},
	}

	got := rankChunksByKeywords("How did subscription revenue develop?", indexed, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	// Chunk c mentions both "subscription" and "revenue" twice, so it
	// outranks chunk a.
	if got[0].ChunkID != "c" {
		t.Errorf("top chunk = %s, want c", got[0].ChunkID)
	}
	if got[1].ChunkID != "a" {
		t.Errorf("second chunk = %s, want a", got[1].ChunkID)
	}
}

func TestRankChunksByKeywordsDropsNonMatches(t *testing.T) {
	indexed := []models.DocChunkIndex{
		{ChunkID: "a", Text: "Nothing related at all."},
		{ChunkID: "b", Text: "Margins improved."},
	}

	got := rankChunksByKeywords("quarterly logistics spending", indexed, 5)
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestRankChunksByKeywordsIgnoresShortWords(t *testing.T) {
	indexed := []models.DocChunkIndex{
		{ChunkID: "a", Text: "of to in at on it is"},
		{ChunkID: "b", Text: "growth in new markets"},
	}

	got := rankChunksByKeywords("is it about growth", indexed, 5)
	if len(got) != 1 || got[0].ChunkID != "b" {
		t.Fatalf("expected only the growth chunk, got %v", got)
	}
}

func TestRankChunksByKeywordsEmptyQuestion(t *testing.T) {
	indexed := []models.DocChunkIndex{{ChunkID: "a", Text: "anything"}}
	if got := rankChunksByKeywords("   ", indexed, 3); got != nil {
		t.Errorf("expected nil for empty question, got %v", got)
	}
}
