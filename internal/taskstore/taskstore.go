// Package taskstore defines the task-store collaborator interface (spec.md
// §6) consumed by the supervisor and metrics packages, plus an in-memory
// reference implementation used by tests. A production task store (the
// managed-list CRUD service) lives outside this module.
package taskstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/veritas-kanban/core/internal/model"
)

// Store is the task-store collaborator interface.
type Store interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	ListTasks(ctx context.Context) ([]*model.Task, error)
	ListArchivedTasks(ctx context.Context) ([]*model.Task, error)
}

// ErrNotFound is returned by GetTask/UpdateTask when no task with the
// given id exists.
var ErrNotFound = fmt.Errorf("task not found")

// InMemoryStore is a reference Store implementation backed by a map,
// sufficient for unit and acceptance tests that don't need a real
// persistence layer.
type InMemoryStore struct {
	mu       sync.Mutex
	tasks    map[string]*model.Task
	archived map[string]*model.Task
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:    make(map[string]*model.Task),
		archived: make(map[string]*model.Task),
	}
}

// Seed inserts or replaces a task, for test setup.
func (s *InMemoryStore) Seed(t *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *InMemoryStore) GetTask(_ context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *InMemoryStore) UpdateTask(_ context.Context, id string, patch model.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Attempt != nil {
		t.Attempt = patch.Attempt
	}
	return nil
}

func (s *InMemoryStore) ListTasks(_ context.Context) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (s *InMemoryStore) ListArchivedTasks(_ context.Context) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Task, 0, len(s.archived))
	for _, t := range s.archived {
		out = append(out, t)
	}
	return out, nil
}
