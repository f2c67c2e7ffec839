// internal/server/store.go
package server

import (
	"context"
	"sort"
	"sync"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// TaskRecord is the server-side view of one submitted task. The loop runs in
// a background goroutine; the record tracks its live state, any open approval
// request, and the final result.
type TaskRecord struct {
	Task   schemas.Task
	Cancel context.CancelFunc

	mu      sync.Mutex
	state   schemas.LoopState
	pending *schemas.PendingApproval
	respond chan bool
	result  *schemas.TaskResult
}

// State returns the record's current loop state.
func (r *TaskRecord) State() schemas.LoopState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState records a loop state transition.
func (r *TaskRecord) SetState(state schemas.LoopState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// Result returns the final result, or nil while the task is live.
func (r *TaskRecord) Result() *schemas.TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// SetResult stores the terminal result.
func (r *TaskRecord) SetResult(result schemas.TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = &result
	r.state = result.State
}

// OpenApproval publishes a pending approval and returns the channel the
// responder writes into. Any previous pending entry is superseded.
func (r *TaskRecord) OpenApproval(pending schemas.PendingApproval) chan bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &pending
	r.respond = make(chan bool, 1)
	return r.respond
}

// CloseApproval clears the pending approval once resolved.
func (r *TaskRecord) CloseApproval() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.respond = nil
}

// Pending returns the open approval, or nil.
func (r *TaskRecord) Pending() *schemas.PendingApproval {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Respond resolves the open approval. Returns false when none is open.
func (r *TaskRecord) Respond(approved bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.respond == nil {
		return false
	}
	select {
	case r.respond <- approved:
	default:
	}
	return true
}

// Store is an in-memory task registry. Tasks live for the process lifetime;
// there is deliberately no persistence layer behind it.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*TaskRecord
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*TaskRecord)}
}

// Add registers a new record under its task ID.
func (s *Store) Add(record *TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[record.Task.ID] = record
}

// Get looks a record up by task ID.
func (s *Store) Get(id string) (*TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.tasks[id]
	return record, ok
}

// List returns all records ordered by creation time, newest first.
func (s *Store) List() []*TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*TaskRecord, 0, len(s.tasks))
	for _, record := range s.tasks {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Task.CreatedAt.After(records[j].Task.CreatedAt)
	})
	return records
}

// CancelAll cancels every live task; used during server shutdown.
func (s *Store) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.tasks {
		if !record.State().Terminal() && record.Cancel != nil {
			record.Cancel()
		}
	}
}
