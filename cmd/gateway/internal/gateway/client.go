package gateway

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/hub"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/protocol"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     64,
		WriteWait:      5 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     50 * time.Second,
		MaxMessageSize: 512 * 1024,
	}
}

// ClientAdapter is one websocket connection. readPump owns registration state; writePump
// owns the socket's write side.
type ClientAdapter struct {
	id     string
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	pong   chan []byte
	logger *zap.Logger
	opts   Options

	done      chan struct{}
	closeOnce sync.Once
}

var _ hub.Client = (*ClientAdapter)(nil)

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, opts Options) *ClientAdapter {
	def := DefaultOptions()
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 1
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	c := &ClientAdapter{
		id:   uuid.NewString(),
		conn: conn,
		hub:  h,
		send: make(chan []byte, opts.SendBuffer),
		pong: make(chan []byte, 1),
		opts: opts,
		done: make(chan struct{}),
	}
	c.logger = logger.With(zap.String("client", c.id), zap.String("remote", conn.RemoteAddr().String()))
	return c
}

// Start registers the client and spawns its pumps.
func (c *ClientAdapter) Start() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close signals both pumps to stop. Safe to call more than once and from any goroutine.
func (c *ClientAdapter) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send queues a frame without blocking. A full buffer means the client is not keeping up.
func (c *ClientAdapter) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("Read error", zap.Error(err))
			}
			return
		}

		if header.Length > c.opts.MaxMessageSize {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		// Any inbound frame proves the peer is alive.
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			select {
			case c.pong <- payload:
			default: // a pong is already pending
			}
		case ws.OpText:
			c.handleControl(payload)
		}
	}
}

// handleControl applies a SUBSCRIBE or UNSUBSCRIBE frame. Everything else is ignored.
// Prices for new symbols arrive with the next tick's frame.
func (c *ClientAdapter) handleControl(payload []byte) {
	msg, ok := protocol.ParseControl(payload)
	if !ok {
		return
	}

	switch msg.Type {
	case protocol.TypeSubscribe:
		c.hub.Subscribe(c, msg.Data)
	case protocol.TypeUnsubscribe:
		c.hub.Unsubscribe(c, msg.Data)
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.conn.Write(ws.CompiledClose)
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				c.logger.Debug("Write error", zap.Error(err))
				c.Close()
				return
			}

		case payload := <-c.pong:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPong, payload); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
