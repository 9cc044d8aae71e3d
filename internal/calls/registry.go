// Package calls tracks tool calls between the moment the model announces
// them and the moment their arguments are complete.
package calls

import (
	"errors"
	"sync"
)

var (
	ErrMissingCallID = errors.New("calls: call id is required")
	ErrMissingName   = errors.New("calls: function name is required")
	ErrDuplicateCall = errors.New("calls: call id already pending")
	ErrNotFound      = errors.New("calls: call id not found")
)

// Registry maps a pending call id to its function name. Each id resolves
// at most once.
type Registry struct {
	mu      sync.Mutex
	pending map[string]string
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]string)}
}

// Register keeps the first mapping when callID is already pending.
func (r *Registry) Register(callID, name string) error {
	if callID == "" {
		return ErrMissingCallID
	}
	if name == "" {
		return ErrMissingName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[callID]; ok {
		return ErrDuplicateCall
	}
	r.pending[callID] = name
	return nil
}

// Resolve removes callID and returns the function name it was registered
// with.
func (r *Registry) Resolve(callID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.pending[callID]
	if !ok {
		return "", ErrNotFound
	}
	delete(r.pending, callID)
	return name, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Reset drops every pending call and returns how many were released.
func (r *Registry) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	r.pending = make(map[string]string)
	return n
}
