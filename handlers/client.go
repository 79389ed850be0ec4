// Package handlers client.go
package handlers

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

var ErrClientClosed = errors.New("client closed")

// Client is one websocket session. The room writes to it through Send; a
// single WritePump goroutine owns all writes to the socket.
type Client struct {
	ID    string
	Conn  *websocket.Conn
	Codec protocol.Codec

	send   chan []byte
	logger telemetry.Logger

	// The backlog is keyed per connection. Session ids come from the client
	// and can repeat across sockets.
	messageQueue *MessageQueue
	queueKey     string

	// mu orders Send against the pump draining the queue.
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
}

func NewClient(conn *websocket.Conn, id string, codec protocol.Codec, messageQueue *MessageQueue, logger telemetry.Logger) *Client {
	return &Client{
		ID:           id,
		Conn:         conn,
		Codec:        codec,
		send:         make(chan []byte, sendBufferSize),
		messageQueue: messageQueue,
		queueKey:     uuid.NewString(),
		logger:       telemetry.OrDefault(logger),
		done:         make(chan struct{}),
		closeCode:    websocket.CloseNormalClosure,
	}
}

// Send queues a frame without blocking. Once the send buffer is full frames
// go to the message queue, and once that is full Send fails.
func (c *Client) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	if c.messageQueue.QueueSize(c.queueKey) == 0 {
		select {
		case c.send <- message:
			return nil
		default:
			c.logger.Printf("send buffer is full, buffering message for client %s", c.ID)
		}
	}
	return c.messageQueue.Enqueue(c.queueKey, message)
}

// Close stops the write pump, which says goodbye with a normal closure.
func (c *Client) Close() error {
	c.CloseWith(websocket.CloseNormalClosure, "")
	return nil
}

// CloseWith stops the write pump and makes it send code and text in the
// close frame. Only the first call has any effect.
func (c *Client) CloseWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeText = code, text
		close(c.done)
		c.mu.Unlock()
	})
}

func (c *Client) messageType() int {
	if c.Codec != nil && c.Codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

// WritePump writes queued frames and keepalive pings until Close is called
// or a write fails. Frames still buffered at close are flushed first.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.messageQueue.ClearQueue(c.queueKey)
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(c.messageType(), message); err != nil {
				c.logger.Printf("error writing to websocket %s: %v", c.ID, err)
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
			if len(c.send) == 0 {
				if err := c.drainQueue(); err != nil {
					c.logger.Printf("error writing to websocket %s: %v", c.ID, err)
					c.CloseWith(websocket.CloseAbnormalClosure, "")
					return
				}
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Printf("ping %s failed: %v", c.ID, err)
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flushPending()
			c.mu.Lock()
			code, text := c.closeCode, c.closeText
			c.mu.Unlock()
			if code != websocket.CloseAbnormalClosure {
				_ = c.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
			}
			return
		}
	}
}

// drainQueue writes everything that overflowed into the message queue.
func (c *Client) drainQueue() error {
	c.mu.Lock()
	messages := c.messageQueue.Dequeue(c.queueKey)
	c.mu.Unlock()
	for _, message := range messages {
		if err := c.write(c.messageType(), message); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) flushPending() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(c.messageType(), message); err != nil {
				return
			}
		default:
			_ = c.drainQueue()
			return
		}
	}
}
