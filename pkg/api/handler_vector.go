package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListCollections handles GET /api/v1/vectors/collections, returning each
// collection with its dimension and point count.
func (s *Server) ListCollections(c *gin.Context) {
	ctx := c.Request.Context()
	names, err := s.vectors.ListCollections(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	collections := make([]gin.H, 0, len(names))
	for _, name := range names {
		info, ok, err := s.vectors.GetCollection(ctx, name)
		if err != nil || !ok {
			collections = append(collections, gin.H{"name": name})
			continue
		}
		collections = append(collections, gin.H{
			"name":      info.Name,
			"dimension": info.Dimension,
			"points":    info.PointsCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

// SearchVectors handles POST /api/v1/vectors/search: the query text is
// embedded with the configured provider, then searched with an optional
// category filter and score threshold.
func (s *Server) SearchVectors(c *gin.Context) {
	var body struct {
		Query     string  `json:"query" binding:"required"`
		Category  string  `json:"category"`
		Limit     int     `json:"limit"`
		Threshold float32 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Limit <= 0 {
		body.Limit = 5
	}

	ctx := c.Request.Context()
	vec, err := s.embedder.Embed(ctx, body.Query)
	if err != nil {
		writeError(c, err)
		return
	}

	hits, err := s.vectors.Search(ctx, s.collection, vec, body.Category, body.Limit, body.Threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

// RemoveVectors handles POST /api/v1/vectors/remove, deleting every point
// whose payload source matches.
func (s *Server) RemoveVectors(c *gin.Context) {
	var body struct {
		Source string `json:"source" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.vectors.DeleteBySource(c.Request.Context(), s.collection, body.Source); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": body.Source})
}

// ResetCollection handles POST /api/v1/vectors/reset: drop the collection
// and recreate it empty with the active embedding dimension.
func (s *Server) ResetCollection(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.vectors.DeleteCollection(ctx, s.collection); err != nil {
		writeError(c, err)
		return
	}
	if err := s.vectors.CreateCollection(ctx, s.collection, s.embedder.Dimension()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": s.collection, "dimension": s.embedder.Dimension()})
}
