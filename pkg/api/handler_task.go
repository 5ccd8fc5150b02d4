package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docpipe/docpipe/pkg/pipeline"
	"github.com/docpipe/docpipe/pkg/registry"
)

// Ingest handles POST /api/v1/ingest. The body is a JSON array of pipeline
// requests; the whole batch is validated before any task is registered.
func (s *Server) Ingest(c *gin.Context) {
	var requests []pipeline.Request
	if err := c.ShouldBindJSON(&requests); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("request body must be a JSON array of requests: %v", err)})
		return
	}

	taskIDs, err := s.ingestor.Submit(requests)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskIds": taskIDs})
}

// ListTasks handles GET /api/v1/tasks.
func (s *Server) ListTasks(c *gin.Context) {
	prefix := c.DefaultQuery("prefix", pipeline.TaskPrefix)
	detailLevel := c.DefaultQuery("detail_level", pipeline.DetailSimple)

	now := time.Now()
	records := s.store.List(prefix)
	views := make([]pipeline.TaskView, len(records))
	for i, rec := range records {
		views[i] = pipeline.ViewTask(rec, detailLevel, now)
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views})
}

// GetTask handles GET /api/v1/tasks/:id.
func (s *Server) GetTask(c *gin.Context) {
	taskID := c.Param("id")
	rec, ok := s.store.Get(taskID)
	if !ok {
		writeError(c, fmt.Errorf("%w: %s", pipeline.ErrTaskNotFound, taskID))
		return
	}

	detailLevel := c.DefaultQuery("detail_level", pipeline.DetailSimple)
	c.JSON(http.StatusOK, pipeline.ViewTask(rec, detailLevel, time.Now()))
}

// GetTaskDetails handles GET /api/v1/tasks/:id/details, returning the raw
// details string (the restart protocol payload).
func (s *Server) GetTaskDetails(c *gin.Context) {
	taskID := c.Param("id")
	rec, ok := s.store.Get(taskID)
	if !ok {
		writeError(c, fmt.Errorf("%w: %s", pipeline.ErrTaskNotFound, taskID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": taskID, "details": rec.Details})
}

// CancelTask handles POST /api/v1/tasks/:id/cancel.
func (s *Server) CancelTask(c *gin.Context) {
	if err := s.ingestor.Cancel(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": c.Param("id")})
}

// CancelAllTasks handles POST /api/v1/tasks/cancel.
func (s *Server) CancelAllTasks(c *gin.Context) {
	cancelled := s.ingestor.CancelAll()
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled, "count": len(cancelled)})
}

// CleanupTasks handles POST /api/v1/tasks/cleanup. Optional statuses narrow
// the sweep to specific terminal states.
func (s *Server) CleanupTasks(c *gin.Context) {
	var body struct {
		Statuses []string `json:"statuses"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	statuses := make([]registry.Status, len(body.Statuses))
	for i, st := range body.Statuses {
		statuses[i] = registry.Status(st)
	}
	removed := s.store.Cleanup(statuses...)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Progress handles GET /api/v1/progress.
func (s *Server) Progress(c *gin.Context) {
	c.JSON(http.StatusOK, pipeline.Progress(s.store, time.Now()))
}

// RestartPlan handles POST /api/v1/restart-plan. It returns the request that
// would resume the failed task; submission is the caller's move.
func (s *Server) RestartPlan(c *gin.Context) {
	var body struct {
		TaskID       string `json:"task_id" binding:"required"`
		RestartStage string `json:"restart_stage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := pipeline.PlanRestart(s.store, body.TaskID, body.RestartStage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}
