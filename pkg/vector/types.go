// Package vector is a REST client for the Qdrant vector store.
package vector

import (
	"fmt"

	"github.com/google/uuid"
)

// Payload is the metadata stored alongside every vector.
type Payload struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Category   string `json:"category"`
}

// Point is one record in the store.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// SearchHit is one scored result.
type SearchHit struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// ScrolledPoint is one record returned by Scroll (no score).
type ScrolledPoint struct {
	ID      string  `json:"id"`
	Payload Payload `json:"payload"`
}

// CollectionInfo summarizes one collection.
type CollectionInfo struct {
	Name        string
	Dimension   int
	PointsCount int64
}

// PointID derives the deterministic UUIDv5 identity of a chunk. Identical
// (source, chunkIndex) pairs map to the same id across process restarts,
// which makes embed re-runs idempotent.
func PointID(source string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", source, chunkIndex))).String()
}
