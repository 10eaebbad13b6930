package stream

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Subscription type tags sent in query frames.
const (
	TypeAssetPairsConfigUpdates    = "apcus"
	TypeAggregatedOrderBookUpdates = "aobus"
	TypeAddressUpdates             = "aus"
)

// Channel paths relative to the stream base URL.
const (
	pathAllTickers = "/ws2/allTickers"
	pathTicker     = "/ws2/ticker/"
	pathOrderBook  = "/v1"
)

// Defaults
const (
	DefaultBufferSize       = 256
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReconnectBase    = time.Second
	DefaultReconnectMax     = 60 * time.Second
	DefaultMinUptime        = 5 * time.Second
)

// Errors
var (
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrStaleConnection    = errors.New("connection stale (no ping)")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Query is the post-connect frame selecting a pair on a multiplexed channel.
type Query struct {
	S string `json:"S"`
	T string `json:"T"`
}

// State is the lifecycle state of a subscription.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HandshakeError reports an HTTP response that refused the WebSocket upgrade.
type HandshakeError struct {
	URL        string
	StatusCode int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake %s: status %d: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HandshakeError) Unwrap() error {
	return websocket.ErrBadHandshake
}

// permanent reports whether err ends a subscription instead of triggering a reconnect.
func permanent(err error) bool {
	var he *HandshakeError
	if errors.As(err, &he) {
		return he.StatusCode != http.StatusTooManyRequests && he.StatusCode < 500
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseProtocolError, websocket.CloseUnsupportedData, websocket.CloseInvalidFramePayloadData:
			return true
		}
	}

	return false
}
