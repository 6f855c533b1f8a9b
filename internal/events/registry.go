package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/uplinehq/upline-backend/internal/types"
)

// Handler processes one claimed reward event. The returned value is stored as
// the queue row's result on success.
type Handler interface {
	Type() string
	Run(ctx context.Context, event *types.RewardEvent) (any, error)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for event_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(eventType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}
