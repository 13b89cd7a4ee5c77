package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxMessageSize = 4096

// ClientConfig bounds a connection's queue and socket timings.
type ClientConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	return c
}

// Conn is a websocket client with a bounded drop-oldest send queue. The
// send channel is never closed; done signals shutdown to both pumps.
type Conn struct {
	id   string
	ws   *websocket.Conn
	hub  *Hub
	cfg  ClientConfig
	send chan []byte

	enqMu     sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket connection.
func NewConn(id string, ws *websocket.Conn, hub *Hub, cfg ClientConfig) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		id:   id,
		ws:   ws,
		hub:  hub,
		cfg:  cfg,
		send: make(chan []byte, cfg.QueueSize),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Enqueue queues msg without blocking, discarding the oldest queued message
// when full. It reports whether a message was discarded.
func (c *Conn) Enqueue(msg []byte) bool {
	c.enqMu.Lock()
	defer c.enqMu.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	dropped := false
	for {
		select {
		case c.send <- msg:
			return dropped
		default:
		}
		select {
		case <-c.send:
			dropped = true
		default:
		}
	}
}

// Close stops the pumps; the write pump sends a close frame on its way out.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Start runs the read and write pumps.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		c.hub.Unregister(c)
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client payloads; it exists to process control frames
// and notice disconnects.
func (c *Conn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
