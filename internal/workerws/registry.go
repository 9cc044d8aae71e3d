package workerws

import (
	"context"
	"encoding/json"
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry keeps at most one capture device connection.
type Registry struct {
	mu       sync.Mutex
	conn     *ws.Conn
	deviceID string
}

func NewRegistry() *Registry { return &Registry{} }

// Replace sets the device connection and closes the previous one if present.
func (r *Registry) Replace(deviceID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	old := r.conn
	r.conn = c
	r.deviceID = deviceID
	r.mu.Unlock()
	if old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	return
}

func (r *Registry) Get() (*ws.Conn, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn, r.deviceID
}

// Remove clears the slot if c is still the registered connection.
func (r *Registry) Remove(c *ws.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != c {
		return false
	}
	r.conn = nil
	r.deviceID = ""
	return true
}

func (r *Registry) Connected() bool {
	c, _ := r.Get()
	return c != nil
}

// SendJSON is a no-op without a device.
func (r *Registry) SendJSON(ctx context.Context, v any) error {
	c, _ := r.Get()
	if c == nil {
		return nil
	}
	return c.Write(ctx, ws.MessageText, mustJSON(v))
}

func (r *Registry) SendBinary(ctx context.Context, b []byte) error {
	c, _ := r.Get()
	if c == nil {
		return ErrNoDevice
	}
	return c.Write(ctx, ws.MessageBinary, b)
}

// local helper
func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
