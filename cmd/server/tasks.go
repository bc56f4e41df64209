package main

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"sql2csv/internal/export"
)

// TaskStatus 导出任务状态
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Done 任务已结束
func (s TaskStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExportTask 异步导出任务
type ExportTask struct {
	ID        string          `json:"id"`
	Database  string          `json:"database"`
	OutputDir string          `json:"output_dir"`
	Status    TaskStatus      `json:"status"`
	Progress  int             `json:"progress"` // 0-100
	Message   string          `json:"message"`
	Results   []export.Result `json:"results"`
	Summary   *export.Summary `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// taskStore 内存中的任务表
type taskStore struct {
	mu    sync.RWMutex
	tasks map[string]*ExportTask
}

func newTaskStore() *taskStore {
	return &taskStore{tasks: make(map[string]*ExportTask)}
}

func (s *taskStore) create(database, outputDir string) ExportTask {
	now := time.Now()
	task := &ExportTask{
		ID:        uuid.NewString(),
		Database:  database,
		OutputDir: outputDir,
		Status:    StatusPending,
		Message:   "任务已创建，等待执行",
		Results:   []export.Result{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	return task.snapshot()
}

// get 返回任务的副本
func (s *taskStore) get(id string) (ExportTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return ExportTask{}, false
	}
	return task.snapshot(), true
}

func (s *taskStore) update(id string, fn func(*ExportTask)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		fn(task)
		task.UpdatedAt = time.Now()
	}
}

func (t *ExportTask) snapshot() ExportTask {
	out := *t
	out.Results = append([]export.Result{}, t.Results...)
	if t.Summary != nil {
		s := *t.Summary
		out.Summary = &s
	}
	return out
}
