package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultAnswerTopK = 5
	maxAnswerTopK     = 20
)

// answerPromptFormat grounds the answer LLM in the retrieved chunks.
const answerPromptFormat = `You are answering a question using excerpts from ingested documentation.

Question: %s

Documentation excerpts:
%s

Answer the question using only the excerpts above. If they do not contain
the answer, say so. Respond in Markdown.`

// Answer handles POST /api/v1/answer: embed the question, retrieve the
// closest chunks, and ask the answer LLM to respond from them.
func (s *Server) Answer(c *gin.Context) {
	var body struct {
		Question string `json:"question" binding:"required"`
		Category string `json:"category"`
		TopK     int    `json:"top_k"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.TopK <= 0 {
		body.TopK = defaultAnswerTopK
	}
	if body.TopK > maxAnswerTopK {
		body.TopK = maxAnswerTopK
	}

	ctx := c.Request.Context()
	vec, err := s.embedder.Embed(ctx, body.Question)
	if err != nil {
		writeError(c, err)
		return
	}

	hits, err := s.vectors.Search(ctx, s.collection, vec, body.Category, body.TopK, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(hits) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"answer":  "No ingested documentation matched the question.",
			"sources": []string{},
		})
		return
	}

	var excerpts strings.Builder
	seen := make(map[string]bool)
	var sources []string
	for i, hit := range hits {
		fmt.Fprintf(&excerpts, "--- Excerpt %d (source: %s) ---\n%s\n\n", i+1, hit.Payload.Source, hit.Payload.Text)
		if !seen[hit.Payload.Source] {
			seen[hit.Payload.Source] = true
			sources = append(sources, hit.Payload.Source)
		}
	}

	answer, err := s.completer.Complete(ctx, s.answerEP, fmt.Sprintf(answerPromptFormat, body.Question, excerpts.String()))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"answer": answer, "sources": sources})
}
