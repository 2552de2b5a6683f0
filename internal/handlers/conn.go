package handlers

import (
	"context"
	"log"
)

// ClientConn is a single client's presence on the gateway. ID is the
// connection id used everywhere in the session core; GuestID is the
// longer-lived browser identity from the auth cookie, used for logging
// only (it is not a reconnect token).
type ClientConn struct {
	ID      string
	GuestID string
	Cancel  context.CancelFunc
	OutChan chan map[string]interface{}
}

// Write pushes a message onto the connection's OutChan non-blockingly.
// Logs if the channel is closed or full and the message is dropped.
func (c *ClientConn) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		event, _ := msg["type"].(string)
		log.Printf("ClientConn Write WARNING: OutChan for connection %s closed or full. Dropped event '%s'.", c.ID, event)
	}
}

// WriteEvent merges the payload under a "type" key and writes it.
func (c *ClientConn) WriteEvent(event string, payload map[string]interface{}) {
	msg := make(map[string]interface{}, len(payload)+1)
	msg["type"] = event
	for k, v := range payload {
		msg[k] = v
	}
	c.Write(msg)
}

// WriteError sends the uniform error envelope.
func (c *ClientConn) WriteError(message string) {
	c.WriteEvent("socket-error", map[string]interface{}{
		"message": message,
	})
}
