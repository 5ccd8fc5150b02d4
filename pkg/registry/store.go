package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoreFileName is the registry snapshot file, created under the work dir.
const StoreFileName = ".task_store.json"

var progressPattern = regexp.MustCompile(`(\d+)/(\d+)`)

// Store manages task records in memory and serializes the full map to disk
// after every mutation. Persistence is best-effort: write failures are
// logged, never surfaced to callers.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*TaskRecord
	path   string
	logger *slog.Logger
}

// NewStore creates a store backed by <workDir>/.task_store.json, loading the
// snapshot if one exists. A corrupt snapshot is logged and replaced with an
// empty map rather than blocking startup.
func NewStore(workDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		tasks:  make(map[string]*TaskRecord),
		path:   filepath.Join(workDir, StoreFileName),
		logger: logger.With("component", "registry"),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Could not read task store, starting empty", "path", s.path, "error", err)
		}
		return
	}
	var tasks map[string]*TaskRecord
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.logger.Warn("Task store is corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	s.tasks = tasks
	s.logger.Info("Loaded task store", "path", s.path, "tasks", len(tasks))
}

// persistLocked writes the full map to disk. Callers must hold the write lock.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.tasks)
	if err != nil {
		s.logger.Error("Could not serialize task store", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("Could not persist task store", "path", s.path, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("Could not persist task store", "path", s.path, "error", err)
	}
}

// Register inserts a new queued task under "<prefix>-<uuid>" and returns its ID.
func (s *Store) Register(prefix string) string {
	taskID := fmt.Sprintf("%s-%s", prefix, uuid.New().String())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[taskID] = &TaskRecord{
		TaskID:    taskID,
		Status:    StatusQueued,
		Stage:     StageNone,
		StartTime: time.Now().UnixMilli(),
	}
	s.persistLocked()
	return taskID
}

// SetStatus transitions a task through the status state machine. The first
// transition into a terminal state stamps EndTime; transitions out of a
// terminal state are rejected, which also guarantees terminal Details are
// never overwritten.
func (s *Store) SetStatus(taskID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, taskID, rec.Status)
	}
	if !transitionAllowed(rec.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
	}

	rec.Status = status
	if status.Terminal() && rec.EndTime == nil {
		now := time.Now().UnixMilli()
		rec.EndTime = &now
	}
	s.persistLocked()
	return nil
}

func transitionAllowed(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// UpdateDetails replaces the details text of a non-terminal task. The text
// is scanned for an "X/Y" fraction; when present the progress counters are
// updated, otherwise they are cleared.
func (s *Store) UpdateDetails(taskID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, taskID, rec.Status)
	}

	rec.Details = text
	rec.ProgressCurrent = nil
	rec.ProgressTotal = nil
	if m := progressPattern.FindStringSubmatch(text); m != nil {
		current, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			rec.ProgressCurrent = &current
			rec.ProgressTotal = &total
		}
	}
	s.persistLocked()
	return nil
}

// SetStage updates the current stage label of a non-terminal task.
func (s *Store) SetStage(taskID string, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, taskID, rec.Status)
	}
	rec.Stage = stage
	s.persistLocked()
	return nil
}

// IsCancelled reports whether the task exists and was cancelled.
func (s *Store) IsCancelled(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[taskID]
	return ok && rec.Status == StatusCancelled
}

// Get returns a copy of the record.
func (s *Store) Get(taskID string) (TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return TaskRecord{}, false
	}
	return rec.Clone(), true
}

// List returns copies of all records whose ID starts with prefix (empty
// prefix matches everything), ordered by start time then ID.
func (s *Store) List(prefix string) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskRecord, 0, len(s.tasks))
	for id, rec := range s.tasks {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Counts returns the number of tasks per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, rec := range s.tasks {
		counts[rec.Status]++
	}
	return counts
}

// Cleanup removes terminal records. When statuses are given only those
// terminal statuses are removed; with no arguments every terminal record
// goes. Returns the number removed.
func (s *Store) Cleanup(statuses ...Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := func(st Status) bool {
		if !st.Terminal() {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if st == want {
				return true
			}
		}
		return false
	}

	removed := 0
	for id, rec := range s.tasks {
		if match(rec.Status) {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		s.persistLocked()
	}
	return removed
}

// CancelAll flips every queued or running task to cancelled and returns the
// affected IDs.
func (s *Store) CancelAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []string
	now := time.Now().UnixMilli()
	for id, rec := range s.tasks {
		if rec.Status.Terminal() {
			continue
		}
		rec.Status = StatusCancelled
		if rec.EndTime == nil {
			end := now
			rec.EndTime = &end
		}
		cancelled = append(cancelled, id)
	}
	if len(cancelled) > 0 {
		s.persistLocked()
	}
	sort.Strings(cancelled)
	return cancelled
}
