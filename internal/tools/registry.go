// Package tools holds the functions the model may call and runs those
// calls off the coordinator goroutine.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"parley/assistant/internal/realtime"
)

var (
	ErrUnknownTool      = errors.New("tools: unknown tool")
	ErrInvalidArguments = errors.New("tools: invalid arguments")
	ErrDuplicateTool    = errors.New("tools: tool already registered")
)

// Handler runs a tool with decoded arguments and returns its JSON output.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Executor runs a named tool with raw JSON arguments.
type Executor interface {
	Execute(ctx context.Context, name, argumentsJSON string) (string, error)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tools: register %q: name and handler are required", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Execute decodes argumentsJSON and calls the tool. An empty argument string
// is treated as an empty object.
func (r *Registry) Execute(ctx context.Context, name, argumentsJSON string) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	args := map[string]any{}
	if raw := strings.TrimSpace(argumentsJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
	}
	return t.Handler(ctx, args)
}

// Definitions returns the tool schema list for the session, sorted by name.
func (r *Registry) Definitions() []realtime.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]realtime.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, realtime.Tool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
