package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Ensure conn implements the interface.
var _ driven.Conn = (*conn)(nil)

const (
	// writeTimeout bounds one frame write when the caller has no deadline.
	writeTimeout = 10 * time.Second

	// readTimeout must exceed the relay's ping period.
	readTimeout = 60 * time.Second

	// maxMessageSize caps one inbound frame.
	maxMessageSize = 1 << 20
)

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{ws: ws}
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return c
}

// Send writes one message as a text frame.
func (c *conn) Send(ctx context.Context, msg domain.Message) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return c.classify(err)
	}
	return nil
}

// Receive blocks for the next message. Malformed frames are skipped.
func (c *conn) Receive(_ context.Context) (domain.Message, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return domain.Message{}, c.classify(err)
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := wire.DecodeMessage(data)
		if err != nil {
			logger.Debug("websocket: dropping frame: %v", err)
			continue
		}
		return msg, nil
	}
}

// Close sends a normal close frame and releases the socket.
func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}

// classify maps socket errors onto the domain sentinels the connection
// controller branches on.
func (c *conn) classify(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case wire.CloseAccessRevoked:
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, ce.Text)
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return fmt.Errorf("%w: %s", domain.ErrConnectionClosed, ce.Text)
		}
	}
	if c.closed.Load() {
		return domain.ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}
