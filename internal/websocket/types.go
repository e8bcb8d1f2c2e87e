package websocket

import (
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetpipe/internal/errors"
)

// Message types understood by the live reload client.
const (
	MessageConnected = "connected"
	MessageCSS       = "css"
	MessageReload    = "reload"
	MessageError     = "error"
)

// Client represents a WebSocket client connection
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// UpdateMessage represents a message sent to the browser.
//
// A css message carries the stylesheet hrefs to swap in, an error message the
// diagnostics and the overlay markup to show.
type UpdateMessage struct {
	Type      string              `json:"type"`
	Hrefs     []string            `json:"hrefs,omitempty"`
	Content   string              `json:"content,omitempty"`
	Errors    []errors.BuildError `json:"errors,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}
