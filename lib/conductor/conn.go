// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/hostsync/lib/clock"
	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/netutil"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	closeGracePeriod = time.Second

	// maxMessageSize bounds one inbound frame. Record batches grafted
	// through the admin interface travel outbound, so inbound frames
	// stay small.
	maxMessageSize = 16 << 20
)

// Options configures a connection.
type Options struct {
	// RequestTimeout bounds each round trip. Zero leaves only the
	// caller's context.
	RequestTimeout time.Duration

	// Retry controls dialing. The zero value makes one attempt.
	Retry RetryPolicy

	// Origin is sent on the handshake; conductors check it against
	// the interface's allowed origins. Defaults to "hostsync".
	Origin string

	Clock  clock.Clock
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Origin == "" {
		o.Origin = "hostsync"
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Retry.MaxAttempts == 0 && o.Retry.Interval == 0 {
		o.Retry = NoRetry()
	}
	return o
}

// conn is one websocket connection with request correlation.
type conn struct {
	url     string
	ws      *websocket.Conn
	timeout time.Duration
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan []byte
	closing bool

	done     chan struct{}
	doneOnce sync.Once
	doneErr  error
}

// dial connects to url, retrying per options.Retry.
func dial(ctx context.Context, url string, options Options) (*conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{"Origin": []string{options.Origin}}

	var ws *websocket.Conn
	err := retry(ctx, options.Clock, options.Retry, options.Logger, url, func(ctx context.Context) error {
		connection, response, err := dialer.DialContext(ctx, url, header)
		if response != nil && response.Body != nil {
			response.Body.Close()
		}
		if err != nil {
			return err
		}
		ws = connection
		return nil
	})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxMessageSize)

	c := &conn{
		url:     url,
		ws:      ws,
		timeout: options.RequestTimeout,
		logger:  options.Logger.With("url", url),
		pending: make(map[uint64]chan []byte),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop is the connection's single reader.
func (c *conn) readLoop() {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			switch {
			case closing:
				c.finish(ErrClosed)
			case netutil.IsExpectedCloseError(err) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("conductor closed the connection")
				c.finish(&ConnectionError{URL: c.url, Err: err})
			default:
				c.logger.Error("conductor connection failed", "error", err)
				c.finish(&ConnectionError{URL: c.url, Err: err})
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			c.logger.Debug("discarding non-binary frame", "frame_type", messageType)
			continue
		}

		var message Message
		if err := codec.Unmarshal(data, &message); err != nil {
			c.logger.Warn("discarding undecodable frame", "error", err)
			continue
		}
		switch message.Type {
		case MessageResponse:
			c.mu.Lock()
			waiter, ok := c.pending[message.ID]
			delete(c.pending, message.ID)
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("discarding response for unknown request", "id", message.ID)
				continue
			}
			waiter <- message.Data
		case MessageSignal:
			c.logger.Debug("discarding signal", "bytes", len(message.Data))
		default:
			c.logger.Debug("discarding frame", "message_type", message.Type)
		}
	}
}

func (c *conn) finish(err error) {
	c.doneOnce.Do(func() {
		c.doneErr = err
		close(c.done)
	})
}

// roundTrip sends one request and returns the raw response payload.
func (c *conn) roundTrip(ctx context.Context, requestType string, value any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload := Payload{Type: requestType}
	if value != nil {
		encoded, err := codec.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", requestType, err)
		}
		payload.Value = encoded
	}
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", requestType, err)
	}

	waiter := make(chan []byte, 1)
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = waiter
	c.mu.Unlock()

	frame, err := codec.Marshal(Message{Type: MessageRequest, ID: id, Data: data})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("encoding %s frame: %w", requestType, err)
	}
	if err := c.write(frame); err != nil {
		c.forget(id)
		select {
		case <-c.done:
			return nil, c.doneErr
		default:
		}
		return nil, &ConnectionError{URL: c.url, Err: err}
	}

	select {
	case response := <-waiter:
		return response, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("%s: %w", requestType, ctx.Err())
	case <-c.done:
		select {
		case response := <-waiter:
			return response, nil
		default:
		}
		return nil, c.doneErr
	}
}

func (c *conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// close tears the connection down without waiting for pending calls,
// which fail with ErrClosed.
func (c *conn) close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	c.writeMu.Unlock()
	closeErr := c.ws.Close()
	c.finish(ErrClosed)

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("sending close frame: %w", err)
	}
	if closeErr != nil && !netutil.IsExpectedCloseError(closeErr) {
		return closeErr
	}
	return nil
}

// expect decodes a response payload of wantType into result (which
// may be nil). Every other payload becomes a *ProtocolError.
func expect(requestType string, raw []byte, wantType string, result any) error {
	var payload Payload
	if err := codec.Unmarshal(raw, &payload); err != nil {
		return &ProtocolError{Request: requestType, Reason: "undecodable response: " + err.Error(), Raw: raw}
	}
	switch payload.Type {
	case wantType:
		if result == nil || len(payload.Value) == 0 {
			return nil
		}
		if err := codec.Unmarshal(payload.Value, result); err != nil {
			return &ProtocolError{Request: requestType, Reason: fmt.Sprintf("decoding %s: %v", wantType, err), Raw: raw}
		}
		return nil
	case ResponseError:
		conductorErr := &ConductorError{}
		if err := codec.Unmarshal(payload.Value, conductorErr); err != nil {
			return &ProtocolError{Request: requestType, Reason: "undecodable error response: " + err.Error(), Raw: raw}
		}
		return &ProtocolError{Request: requestType, Reason: "conductor error", Raw: raw, Err: conductorErr}
	default:
		return &ProtocolError{Request: requestType, Reason: fmt.Sprintf("unexpected response type %q, want %q", payload.Type, wantType), Raw: raw}
	}
}

// call is roundTrip followed by expect.
func (c *conn) call(ctx context.Context, requestType string, value any, wantType string, result any) error {
	raw, err := c.roundTrip(ctx, requestType, value)
	if err != nil {
		return err
	}
	return expect(requestType, raw, wantType, result)
}
