package saxo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/pkg/logger"
)

const packetBuffer = 256

// Transport dials upstream streaming connections over websocket.
type Transport struct {
	dialer       *websocket.Dialer
	pingInterval time.Duration
	logger       *logger.Logger
}

func NewTransport(pingInterval time.Duration, l *logger.Logger) *Transport {
	d := *websocket.DefaultDialer
	return &Transport{dialer: &d, pingInterval: pingInterval, logger: l}
}

// Open dials rawURL. The returned connection is not read until Read is called.
func (t *Transport) Open(ctx context.Context, rawURL string) (repository.StreamConn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stream connect: %w", err)
	}
	return &wsConn{conn: conn, pingInterval: t.pingInterval, logger: t.logger, closed: make(chan struct{})}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	pingInterval time.Duration
	logger       *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Read starts the read and ping loops. Packets are delivered in order and
// a slow consumer blocks the socket reader. A nil error on the error
// channel means the connection was closed locally. With pings enabled,
// a socket that answers no pong within two ping intervals is dropped.
func (c *wsConn) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	packets := make(chan []byte, packetBuffer)
	errs := make(chan error, 1)

	if c.pingInterval > 0 {
		pongWait := 2 * c.pingInterval
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.pingLoop(ctx)
	}

	go func() {
		defer close(packets)
		defer close(errs)
		for {
			kind, b, err := c.conn.ReadMessage()
			if err != nil {
				select {
				case <-c.closed:
					errs <- nil
				default:
					errs <- fmt.Errorf("stream read: %w", err)
				}
				return
			}
			if kind != websocket.BinaryMessage {
				c.logger.Debug("ignoring non-binary stream frame", logger.Int("kind", kind))
				continue
			}
			select {
			case packets <- b:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case <-c.closed:
				errs <- nil
				return
			}
		}
	}()

	return packets, errs
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("stream ping failed", logger.Error(err))
				return
			}
		}
	}
}

// Close sends a close frame and releases the socket. It is safe to call twice.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
