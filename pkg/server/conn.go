package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/getmockd/stompd/pkg/metrics"
	"github.com/getmockd/stompd/pkg/protocol"
	"github.com/getmockd/stompd/pkg/registry"
)

// connection ties a transport to its engine. It is the registry Sender for
// the connection: Send may be called from any goroutine, everything else
// runs on the goroutine that currently drives the engine.
type connection struct {
	id        registry.ConnID
	session   string
	transport Transport
	engine    *protocol.Engine
	reg       *registry.Registry[string]
	log       *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	teardownOnce sync.Once
	done         chan struct{}
}

// Send writes one frame. A failed write closes the transport so the read
// loop notices and tears the connection down.
func (c *connection) Send(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.transport.WriteFrame(frame); err != nil {
		c.log.Debug("write failed, closing transport", "error", err)
		_ = c.transport.Close()
		return err
	}
	return nil
}

// handle processes one frame and reports whether the read loop should go on.
func (c *connection) handle(frame string) bool {
	if err := c.engine.Process(frame); err != nil {
		c.log.Error("frame rejected", "error", err)
		c.teardown()
		return false
	}
	if c.engine.ShouldTerminate() {
		c.teardown()
		return false
	}
	return true
}

// readFailed logs why the read loop ended.
func (c *connection) readFailed(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug("connection closed by peer")
	default:
		c.log.Debug("read failed", "error", err)
	}
}

// teardown releases everything the connection holds. Only the first call has
// an effect.
func (c *connection) teardown() {
	c.teardownOnce.Do(func() {
		c.engine.Close()
		c.reg.Disconnect(c.id)

		c.writeMu.Lock()
		c.closed.Store(true)
		_ = c.transport.Close()
		c.writeMu.Unlock()

		metrics.AddGauge(metrics.ConnectionsActive, -1, c.transport.Kind())
		c.log.Info("connection closed")
		close(c.done)
	})
}
