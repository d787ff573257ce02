package sui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SubscribeMethod is the JSON-RPC method that opens an event stream.
const SubscribeMethod = "suix_subscribeEvent"

// Conn is a message-oriented subscription connection.
type Conn interface {
	// ReadMessage blocks for the next frame. Returns websocket.TextMessage
	// or websocket.BinaryMessage as the message type.
	ReadMessage() (messageType int, data []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens subscription connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials websocket endpoints with gorilla/websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// NewWSDialer creates a dialer with the given handshake timeout.
func NewWSDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{HandshakeTimeout: handshakeTimeout}
}

// Dial opens a websocket connection.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with http %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// IsTextMessage reports whether a frame carries JSON text.
func IsTextMessage(messageType int) bool {
	return messageType == websocket.TextMessage
}

// SubscribeRequest builds the subscription request scoped to one Move module.
func SubscribeRequest(packageID, module string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  SubscribeMethod,
		"params": []any{
			map[string]any{
				"MoveModule": map[string]string{
					"package": packageID,
					"module":  module,
				},
			},
		},
	}
}

// FrameKind classifies inbound subscription frames.
type FrameKind int

const (
	FrameNotification FrameKind = iota
	FrameError
	FrameConfirmation
)

func (k FrameKind) String() string {
	switch k {
	case FrameNotification:
		return "notification"
	case FrameError:
		return "error"
	case FrameConfirmation:
		return "confirmation"
	}
	return "unknown"
}

// Frame is a classified subscription frame.
type Frame struct {
	Kind FrameKind
	// Method is set for notifications
	Method string
	// Payload holds params.result for notifications, the error object for
	// errors and the subscription id for confirmations.
	Payload json.RawMessage
}

// ErrUnrecognizedFrame is returned for JSON frames that are none of the known kinds.
var ErrUnrecognizedFrame = errors.New("unrecognized subscription frame")

// ParseFrame classifies a raw text frame. Notifications take precedence over
// error and result members.
func ParseFrame(data []byte) (*Frame, error) {
	var msg struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Error  json.RawMessage `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	switch {
	case msg.Method != "":
		var params struct {
			Result json.RawMessage `json:"result"`
		}
		if isNull(msg.Params) {
			return nil, fmt.Errorf("%w: notification without params", ErrUnrecognizedFrame)
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return nil, fmt.Errorf("parse notification params: %w", err)
		}
		if isNull(params.Result) {
			return nil, fmt.Errorf("%w: notification without result", ErrUnrecognizedFrame)
		}
		return &Frame{Kind: FrameNotification, Method: msg.Method, Payload: params.Result}, nil
	case !isNull(msg.Error):
		return &Frame{Kind: FrameError, Payload: msg.Error}, nil
	case !isNull(msg.Result):
		return &Frame{Kind: FrameConfirmation, Payload: msg.Result}, nil
	}
	return nil, ErrUnrecognizedFrame
}
