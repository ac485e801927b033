// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one socket connection. A client opened with a project ID
// receives that project's events; one opened without receives only
// global events.
type Client struct {
	ID        string
	ProjectID string
	Conn      *websocket.Conn
	Send      chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client
func NewClient(id, projectID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:        id,
		ProjectID: projectID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
	}
}

// Watches reports whether the client wants events for projectID
func (c *Client) Watches(projectID string) bool {
	return projectID == "" || c.ProjectID == projectID
}

// SendMessage queues a message for the write pump
func (c *Client) SendMessage(msg *WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return ErrClientBufferFull
	}
}

// SendEvent queues an event
func (c *Client) SendEvent(eventType string, payload interface{}) error {
	return c.SendMessage(&WSMessage{
		Kind: KindEvent,
		Event: &WSEvent{
			Type:    eventType,
			Payload: payload,
		},
	})
}

// SendResponse queues an RPC response
func (c *Client) SendResponse(id string, result interface{}, errMsg string) error {
	resp := &RPCResponse{ID: id}
	if errMsg != "" {
		resp.Error = errMsg
	} else {
		resp.Result = result
	}
	return c.SendMessage(&WSMessage{
		Kind:     KindResponse,
		Response: resp,
	})
}

// WritePump writes queued messages until the client is closed
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

var (
	ErrClientBufferFull = errors.New("client send buffer full")
	ErrClientClosed     = errors.New("client closed")
)
