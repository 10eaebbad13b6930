package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socketConfig configures a single WebSocket connection.
type socketConfig struct {
	URL          string
	Dialer       *websocket.Dialer
	Header       http.Header
	PingInterval time.Duration // How often we ping the server
	PingTimeout  time.Duration // Max time without ping/pong before the socket is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound frame buffer
	MinUptime    time.Duration // Open time after which the reconnect policy resets
}

// socket is one live connection. It is never reused: a reconnect dials a new one.
type socket struct {
	cfg    socketConfig
	logger *slog.Logger

	conn *websocket.Conn

	frames chan []byte
	done   chan struct{}

	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	err      error
	closed   bool
}

// dialSocket connects to cfg.URL and starts the read and heartbeat loops.
func dialSocket(ctx context.Context, cfg socketConfig, logger *slog.Logger) (*socket, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		}
	}

	d, release := abortable(ctx, dialer)
	conn, resp, err := d.DialContext(ctx, cfg.URL, cfg.Header)
	release()
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &HandshakeError{URL: cfg.URL, StatusCode: resp.StatusCode}
		}
		return nil, err
	}

	s := &socket{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		frames:   make(chan []byte, cfg.BufferSize),
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}

	// Server pings are answered and count as liveness.
	conn.SetPingHandler(func(data string) error {
		s.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	go s.readLoop()
	if cfg.PingInterval > 0 {
		go s.heartbeatLoop()
	}

	logger.Debug("websocket connected", "url", cfg.URL)

	return s, nil
}

// abortable returns a copy of d whose raw connections are closed when ctx is
// cancelled; gorilla applies ctx only as a deadline. release detaches ctx once
// the dial has returned.
func abortable(ctx context.Context, d *websocket.Dialer) (*websocket.Dialer, func()) {
	var (
		mu    sync.Mutex
		stops []func() bool
	)
	watch := func(conn net.Conn) {
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		mu.Lock()
		stops = append(stops, stop)
		mu.Unlock()
	}

	out := *d

	dial := d.NetDialContext
	if dial == nil && d.NetDial != nil {
		netDial := d.NetDial
		dial = func(_ context.Context, network, addr string) (net.Conn, error) {
			return netDial(network, addr)
		}
	}
	if dial == nil {
		var nd net.Dialer
		dial = nd.DialContext
	}
	out.NetDial = nil
	out.NetDialContext = func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		watch(conn)
		return conn, nil
	}

	if tlsDial := d.NetDialTLSContext; tlsDial != nil {
		out.NetDialTLSContext = func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			conn, err := tlsDial(dialCtx, network, addr)
			if err != nil {
				return nil, err
			}
			watch(conn)
			return conn, nil
		}
	}

	release := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, stop := range stops {
			stop()
		}
		stops = nil
	}
	return &out, release
}

func (s *socket) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Frames returns inbound data frames. It is closed when the socket dies; Err then reports why.
func (s *socket) Frames() <-chan []byte {
	return s.frames
}

// Err returns the failure that ended the socket, if any.
func (s *socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *socket) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Send writes a text frame.
func (s *socket) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and releases the connection. Safe to call more than once.
func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	return s.conn.Close()
}

// readLoop is the only writer of frames.
func (s *socket) readLoop() {
	defer close(s.frames)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				s.fail(ErrSubscriptionClosed)
			default:
				s.fail(err)
			}
			return
		}

		select {
		case s.frames <- data:
		case <-s.done:
			return
		}
	}
}

// heartbeatLoop pings the server and drops the connection when it goes quiet.
func (s *socket) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(s.cfg.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.Lock()
			lastSeen := s.lastSeen
			s.mu.Unlock()

			if time.Since(lastSeen) > s.cfg.PingTimeout {
				s.logger.Warn("no ping received, connection stale",
					"last_seen", lastSeen,
					"timeout", s.cfg.PingTimeout,
				)
				s.fail(ErrStaleConnection)
				s.conn.Close()
				return
			}
		}
	}
}
