package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/logger"
)

const (
	// writeWait bounds one frame write.
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent, pings included.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = pongWait * 9 / 10

	// closeGrace is how long a closing peer gets to answer the close frame.
	closeGrace = 2 * time.Second

	maxMessageSize = 1 << 20
)

// handleSocket joins the relay room before upgrading, so a caller without
// edit access gets a plain 403 rather than an open socket.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	documentID := mux.Vars(r)["id"]
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	peer, err := s.ports.Relay.Join(r.Context(), documentID, caller, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		peer.Leave()
		return
	}
	s.metrics.connections.Inc()

	limit := rate.Limit(s.opts.RateLimit)
	c := &socket{
		server:  s,
		ws:      ws,
		peer:    peer,
		limiter: rate.NewLimiter(limit, int(math.Ceil(2*s.opts.RateLimit))),
	}
	c.serve()
}

// socket pumps one websocket connection.
type socket struct {
	server  *Server
	ws      *websocket.Conn
	peer    driving.RelayPeer
	limiter *rate.Limiter
}

func (c *socket) serve() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump(ctx)
	c.peer.Leave()
	cancel()
	<-writerDone
	_ = c.ws.Close()
}

func (c *socket) readPump(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("relay: %s read: %v", c.peer.ClientID(), err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			c.server.metrics.dropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		msg, err := wire.DecodeMessage(data)
		if err != nil {
			c.server.metrics.dropped.WithLabelValues("malformed").Inc()
			continue
		}
		c.server.metrics.received.WithLabelValues(kindLabel(msg.Kind)).Inc()

		err = c.peer.Receive(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalidInput):
			c.server.metrics.dropped.WithLabelValues("rejected").Inc()
			logger.Debug("relay: %s: %v", c.peer.ClientID(), err)
		case errors.Is(err, domain.ErrConnectionClosed):
			return
		default:
			logger.Warn("relay: %s: %v", c.peer.ClientID(), err)
		}
	}
}

func (c *socket) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.peer.Outbound():
			data, err := wire.EncodeMessage(msg)
			if err != nil {
				logger.Warn("relay: encode %s: %v", msg.Kind, err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-c.peer.Done():
			c.closeWith(c.peer.CloseReason())
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

// closeWith sends a close frame matching why the relay ended the peer and
// drops the socket if the client does not answer in time.
func (c *socket) closeWith(reason error) {
	code, text := closeCode(reason)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	time.AfterFunc(closeGrace, func() { _ = c.ws.Close() })
}

func closeCode(reason error) (int, string) {
	switch {
	case errors.Is(reason, domain.ErrPermissionDenied):
		return wire.CloseAccessRevoked, "edit access revoked"
	case errors.Is(reason, domain.ErrConnectionClosed), reason == nil:
		return websocket.CloseGoingAway, "connection replaced or relay closing"
	default:
		return websocket.CloseTryAgainLater, "try again"
	}
}

// kindLabel bounds metric label cardinality to the known kinds.
func kindLabel(k domain.MessageKind) string {
	if k.IsValid() {
		return string(k)
	}
	return "other"
}
