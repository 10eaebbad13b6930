package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Subscription is a self-healing stream of values from one channel.
type Subscription[T any] struct {
	id     uuid.UUID
	cfg    socketConfig
	query  *Query
	pipe   *pipeline[T]
	policy backoff.BackOff
	logger *slog.Logger

	out  chan T
	done chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	err     error
	sock    *socket
	closing bool
}

func newSubscription[T any](
	ctx context.Context,
	cfg socketConfig,
	query *Query,
	matches TagMatcher,
	transform func([]byte) (T, error),
	policy backoff.BackOff,
	logger *slog.Logger,
) *Subscription[T] {
	id := uuid.New()
	logger = logger.With("subscription", id.String(), "url", cfg.URL)

	s := &Subscription[T]{
		id:     id,
		cfg:    cfg,
		query:  query,
		policy: policy,
		logger: logger,
		pipe: &pipeline[T]{
			query:     query,
			matches:   matches,
			transform: transform,
			logger:    logger,
		},
		out:   make(chan T, cfg.BufferSize),
		done:  make(chan struct{}),
		state: StateConnecting,
	}

	// ctx bounds the subscription's lifetime.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)

	return s
}

// ID identifies the subscription in logs.
func (s *Subscription[T]) ID() uuid.UUID {
	return s.id
}

// URL returns the channel URL.
func (s *Subscription[T]) URL() string {
	return s.cfg.URL
}

// Messages returns the value stream. It is closed when the subscription ends.
func (s *Subscription[T]) Messages() <-chan T {
	return s.out
}

// Done is closed when the subscription has terminated.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Subscription[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that terminated the subscription, or nil after a normal Close.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the socket and stops delivery. No value is delivered
// after Close returns, even when a reconnect was in flight. Safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closing = true
	sock := s.sock
	s.mu.Unlock()

	s.cancel()

	var err error
	if sock != nil {
		err = sock.Close()
	}

	s.wg.Wait()

	// Discard whatever the consumer has not read yet.
	for range s.out {
	}

	return err
}

func (s *Subscription[T]) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// run is the connection state machine. It owns out and done.
func (s *Subscription[T]) run(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.out)
		close(s.done)
	}()

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			s.logger.Debug("subscription closed")
			return
		}

		if permanent(err) {
			s.logger.Error("subscription terminated", "error", err)
			s.terminate(err)
			return
		}

		wait := s.policy.NextBackOff()
		if wait == backoff.Stop {
			s.logger.Error("giving up reconnect", "error", err)
			s.terminate(fmt.Errorf("%w: %w", ErrReconnectExhausted, err))
			return
		}

		s.setState(StateReconnecting)
		s.logger.Warn("connection lost, reconnecting",
			"error", err,
			"wait", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Subscription[T]) terminate(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// session runs one connection until it fails.
func (s *Subscription[T]) session(ctx context.Context) error {
	sock, err := dialSocket(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	defer sock.Close()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrSubscriptionClosed
	}
	s.sock = sock
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sock = nil
		s.mu.Unlock()
	}()

	if s.query != nil {
		payload, err := json.Marshal(s.query)
		if err != nil {
			return fmt.Errorf("marshal query: %w", err)
		}
		if err := sock.Send(payload); err != nil {
			return fmt.Errorf("send query: %w", err)
		}
	}

	s.setState(StateOpen)
	s.logger.Info("subscription open")

	// Only a connection that stayed up counts as recovered.
	opened := time.Now()
	defer func() {
		if time.Since(opened) >= s.cfg.MinUptime {
			s.policy.Reset()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sock.Frames():
			if !ok {
				if err := sock.Err(); err != nil {
					return err
				}
				return errors.New("socket closed")
			}

			v, ok := s.pipe.handle(frame)
			if !ok {
				continue
			}

			select {
			case s.out <- v:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
