// Package registry tracks live client connections and owns their outbound
// queues. Rooms never hold transport handles; they address peers by
// connection id through a Registry, so a dead socket can never be reached
// through a stale pointer.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

var (
	ErrConnNotFound = errors.New("connection not registered")
	ErrQueueFull    = errors.New("send queue overflow")
	ErrConnClosed   = errors.New("connection closed")
)

// Conn is one registered connection. The transport layer drains Outbox from
// a writer goroutine; everything else enqueues through the Registry and must
// never block on a slow peer.
type Conn struct {
	ID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Outbox returns the frames queued for this connection.
func (c *Conn) Outbox() <-chan []byte { return c.send }

// Done is closed when the connection is deregistered or overflows.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close is idempotent and releases the writer goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Registry is the process-wide connection index. It is injected into the
// transport layer and the rooms at startup and torn down with the process.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	queueSize int
	log       *zap.Logger

	overflows uint64
}

func New(queueSize int, log *zap.Logger) *Registry {
	if queueSize <= 0 {
		queueSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		conns:     make(map[string]*Conn),
		queueSize: queueSize,
		log:       log.Named("registry"),
	}
}

// Register allocates an id and a bounded outbox for a fresh connection.
func (r *Registry) Register() *Conn {
	c := &Conn{
		ID:   uuid.NewString(),
		send: make(chan []byte, r.queueSize),
		done: make(chan struct{}),
	}
	r.mu.Lock()
	r.conns[c.ID] = c
	n := len(r.conns)
	r.mu.Unlock()
	r.log.Debug("connection registered", zap.String("conn_id", c.ID), zap.Int("total", n))
	return c
}

// Deregister removes and closes the connection. Safe to call twice.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if ok {
		c.Close()
		r.log.Debug("connection deregistered", zap.String("conn_id", id))
	}
}

// Send enqueues a pre-encoded frame. A full queue counts as a dead peer: the
// connection is closed and removed, and the caller should treat the player
// as disconnected.
func (r *Registry) Send(id string, frame []byte) error {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrConnNotFound
	}
	err := c.enqueue(frame)
	if errors.Is(err, ErrQueueFull) {
		r.mu.Lock()
		delete(r.conns, id)
		r.overflows++
		n := r.overflows
		r.mu.Unlock()
		c.Close()
		r.log.Warn("send queue overflow, dropping connection",
			zap.String("conn_id", id), zap.Uint64("overflows_total", n))
	}
	return err
}

// SendEvent encodes an event envelope and enqueues it.
func (r *Registry) SendEvent(id string, t protocol.MsgType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	return r.Send(id, frame)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll tears down every connection at process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
