package models

import "time"

// CatalogRecord is the persisted catalog entry of a course: the embedded
// title plus the course metadata.
type CatalogRecord struct {
	Title          string    `json:"title" badgerhold:"key"`
	Course         Course    `json:"course"`
	LessonCount    int       `json:"lesson_count"`
	ChunkCount     int       `json:"chunk_count"`
	EmbeddingModel string    `json:"embedding_model"`
	Vector         []float32 `json:"vector"`
	IngestedAt     time.Time `json:"ingested_at"`
	Generation     string    `json:"generation"` // Content generation the catalog points at
}

// ContentRecord is the persisted embedding of one chunk.
type ContentRecord struct {
	ID          string    `json:"id"` // Chunk.Key()
	CourseTitle string    `json:"course_title"`
	Chunk       Chunk     `json:"chunk"`
	Vector      []float32 `json:"vector"`
}
