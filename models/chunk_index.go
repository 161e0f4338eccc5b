package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// DocChunkIndex is a denormalized chunk for Atlas Search/VectorSearch.
// Keeping a separate collection enables efficient $search/$vectorSearch.
type DocChunkIndex struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	BrandID    primitive.ObjectID `bson:"brand_id"`
	DocumentID primitive.ObjectID `bson:"document_id"`
	ChunkID    string             `bson:"chunk_id"`
	Order      int                `bson:"order"`
	Text       string             `bson:"text"`
	Keywords   []string           `bson:"keywords,omitempty"`
	Vector     []float32          `bson:"vector,omitempty"`
}
