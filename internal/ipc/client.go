// Package ipc is the launcher's websocket channel to the backend sidecar.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/pkg/schema"
)

const (
	wsReadTimeout  = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	pingInterval   = 10 * time.Second
	messageBuffer  = 32
)

var ErrClosed = errors.New("ipc connection closed")

// EndpointURL builds the sidecar websocket URL.
func EndpointURL(host string, port int, path string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// Client is one authenticated websocket connection to the sidecar.
type Client struct {
	url    string
	logger *zap.Logger

	connMutex sync.Mutex
	conn      *websocket.Conn

	messages  chan schema.ServerMessage
	done      chan struct{}
	closeOnce sync.Once
	err       error
	wg        sync.WaitGroup
}

// Dial connects to rawURL, authenticating with token as the sidecar expects
// it: a "token" query parameter.
func Dial(ctx context.Context, rawURL, token string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse ipc url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// the url without the token is safe to log
	logger.Info("Connecting to sidecar websocket", zap.String("url", rawURL))
	conn, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	c := &Client{
		url:      rawURL,
		logger:   logger,
		conn:     conn,
		messages: make(chan schema.ServerMessage, messageBuffer),
		done:     make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingRoutine()

	logger.Info("Connected successfully")
	return c, nil
}

// Messages delivers server frames. It is closed when the connection ends.
func (c *Client) Messages() <-chan schema.ServerMessage {
	return c.messages
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, nil after a normal close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Send writes one action.
func (c *Client) Send(action string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	return c.write(func(conn *websocket.Conn) error {
		return conn.WriteJSON(schema.ClientMessage{Action: action, Payload: payload})
	})
}

func (c *Client) write(fn func(*websocket.Conn) error) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return fn(c.conn)
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			c.shutdown(err)
			return
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logger.Warn("WebSocket read timeout")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("WebSocket closed", zap.Error(err))
				err = nil
			default:
				select {
				case <-c.done:
					err = nil
				default:
					c.logger.Error("WebSocket read error", zap.Error(err))
				}
			}
			c.shutdown(err)
			return
		}

		msg, err := schema.ParseServerMessage(data)
		if err != nil {
			c.logger.Warn("Failed to parse sidecar message", zap.Error(err))
			continue
		}
		if msg.IsError() {
			c.logger.Warn("Sidecar reported error", zap.String("message", msg.Message))
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) pingRoutine() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := c.write(func(conn *websocket.Conn) error {
				return conn.WriteMessage(websocket.PingMessage, nil)
			})
			if err != nil && !errors.Is(err, ErrClosed) {
				c.logger.Warn("Failed to send ping", zap.Error(err))
			}
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Close sends a close frame and waits for the reader to stop.
func (c *Client) Close() error {
	c.connMutex.Lock()
	select {
	case <-c.done:
	default:
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	c.shutdown(nil)
	err := c.conn.Close()
	c.connMutex.Unlock()

	c.wg.Wait()
	c.logger.Info("Disconnected")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
