package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/looplab/fsm"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Connection state machine events.
const (
	evConnect = "connect"
	evOpened  = "opened"
	evFail    = "fail"
	evClose   = "close"
	evDeny    = "deny"
)

// outboundQueueSize bounds messages waiting for the writer goroutine.
const outboundQueueSize = 64

var (
	stDisconnected     = domain.ConnDisconnected.String()
	stConnecting       = domain.ConnConnecting.String()
	stConnected        = domain.ConnConnected.String()
	stError            = domain.ConnError.String()
	stPermissionDenied = domain.ConnPermissionDenied.String()
)

func newConnectionFSM() *fsm.FSM {
	return fsm.NewFSM(
		stDisconnected,
		fsm.Events{
			{Name: evConnect, Src: []string{stDisconnected, stError}, Dst: stConnecting},
			{Name: evOpened, Src: []string{stConnecting}, Dst: stConnected},
			{Name: evFail, Src: []string{stConnecting, stConnected}, Dst: stError},
			{Name: evClose, Src: []string{stDisconnected, stConnecting, stConnected, stError}, Dst: stDisconnected},
			{Name: evDeny, Src: []string{stDisconnected, stConnecting, stConnected, stError}, Dst: stPermissionDenied},
		},
		fsm.Callbacks{},
	)
}

// linearBackOff waits base × attempt before each attempt.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// newReconnectPolicy allows maxAttempts automatic reconnections.
func newReconnectPolicy(base time.Duration, maxAttempts int) backoff.BackOff {
	if maxAttempts <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(&linearBackOff{base: base}, uint64(maxAttempts))
}

// ConnectionController owns the single connection of one client to one document.
//
// All methods must be called from the owning actor. Network I/O runs on
// helper goroutines that report back through post; results from a
// connection generation that has since been torn down are ignored.
type ConnectionController struct {
	ctx        context.Context
	documentID string
	dialer     driven.Dialer
	clock      Clock
	post       func(func())
	policy     backoff.BackOff
	machine    *fsm.FSM

	conn     driven.Conn
	outbound chan domain.Message
	cancel   context.CancelFunc
	gen      uint64

	attempts int
	lastErr  error
	manual   bool
	retry    timerSlot

	onMessage func(domain.Message)
	onChange  func(err error)
}

// ConnectionConfig configures a ConnectionController.
type ConnectionConfig struct {
	DocumentID  string
	Dialer      driven.Dialer
	Clock       Clock
	Post        func(func())
	BaseDelay   time.Duration
	MaxAttempts int

	// OnMessage receives inbound messages in arrival order.
	OnMessage func(domain.Message)

	// OnChange runs after every state change with the failure that caused it, if any.
	OnChange func(err error)
}

// NewConnectionController creates a controller in the disconnected state.
// ctx bounds every dial and connection it makes.
func NewConnectionController(ctx context.Context, cfg ConnectionConfig) *ConnectionController {
	return &ConnectionController{
		ctx:        ctx,
		documentID: cfg.DocumentID,
		dialer:     cfg.Dialer,
		clock:      cfg.Clock,
		post:       cfg.Post,
		policy:     newReconnectPolicy(cfg.BaseDelay, cfg.MaxAttempts),
		machine:    newConnectionFSM(),
		onMessage:  cfg.OnMessage,
		onChange:   cfg.OnChange,
	}
}

// State returns the current lifecycle state.
func (c *ConnectionController) State() domain.ConnectionState {
	return domain.ConnectionState(c.machine.Current())
}

// Status returns the observable controller state.
func (c *ConnectionController) Status() domain.ConnectionStatus {
	status := domain.ConnectionStatus{
		State:          c.State(),
		Attempts:       c.attempts,
		RetryScheduled: c.retry.pending(),
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// Connect starts a connection attempt unless one is already live or pending.
func (c *ConnectionController) Connect() error {
	switch c.State() {
	case domain.ConnPermissionDenied:
		return domain.ErrPermissionDenied
	case domain.ConnConnecting, domain.ConnConnected:
		return nil
	}
	c.manual = false
	c.retry.stop()
	c.dial()
	return nil
}

// Retry resets the attempt budget and connects again.
func (c *ConnectionController) Retry() error {
	if c.State().IsTerminal() {
		return domain.ErrPermissionDenied
	}
	c.attempts = 0
	c.policy.Reset()
	return c.Connect()
}

// Disconnect closes the connection and suppresses automatic reconnection
// until Connect or Retry is called.
func (c *ConnectionController) Disconnect() {
	c.manual = true
	c.retry.stop()
	c.teardown()
	if !c.State().IsTerminal() {
		c.fire(evClose)
	}
	c.changed(nil)
}

// Revoke moves to permission_denied, as when the server rejects the credential.
func (c *ConnectionController) Revoke(err error) {
	if c.State().IsTerminal() {
		return
	}
	c.fail(c.gen, err)
}

// Send queues a message for the writer. Returns false when not connected
// or when the queue is full.
func (c *ConnectionController) Send(msg domain.Message) bool {
	if c.State() != domain.ConnConnected || c.outbound == nil {
		return false
	}
	select {
	case c.outbound <- msg:
		return true
	default:
		logger.Warn("connection %s: outbound queue full, dropping %s", c.documentID, msg.Kind)
		return false
	}
}

func (c *ConnectionController) dial() {
	c.teardown()
	c.fire(evConnect)
	c.changed(nil)

	gen := c.gen
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel

	logger.Debug("connection %s: dialing (attempt %d)", c.documentID, c.attempts)
	go func() {
		conn, err := c.dialer.Dial(ctx, c.documentID)
		if err == nil && ctx.Err() != nil {
			_ = conn.Close()
			return
		}
		c.post(func() { c.dialed(ctx, gen, conn, err) })
	}()
}

// dialed runs on the owner once a dial returns. The read and write loops
// run under the dial context.
func (c *ConnectionController) dialed(ctx context.Context, gen uint64, conn driven.Conn, err error) {
	if gen != c.gen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.fail(gen, err)
		return
	}

	c.conn = conn
	c.outbound = make(chan domain.Message, outboundQueueSize)
	c.attempts = 0
	c.policy.Reset()
	c.lastErr = nil
	c.fire(evOpened)
	logger.Info("connection %s: connected", c.documentID)

	go c.readLoop(ctx, gen, conn)
	go c.writeLoop(ctx, gen, conn, c.outbound)

	c.changed(nil)
}

func (c *ConnectionController) readLoop(ctx context.Context, gen uint64, conn driven.Conn) {
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			c.post(func() { c.fail(gen, err) })
			return
		}
		c.post(func() {
			if gen == c.gen {
				c.onMessage(msg)
			}
		})
	}
}

func (c *ConnectionController) writeLoop(ctx context.Context, gen uint64, conn driven.Conn, out <-chan domain.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := conn.Send(ctx, msg); err != nil {
				c.post(func() { c.fail(gen, err) })
				return
			}
		}
	}
}

// fail handles the end of a connection generation.
func (c *ConnectionController) fail(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.teardown()
	c.lastErr = err

	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		c.retry.stop()
		c.fire(evDeny)
		logger.Warn("connection %s: permission denied", c.documentID)
		c.changed(err)
		return
	case errors.Is(err, domain.ErrConnectionClosed):
		c.fire(evClose)
		logger.Info("connection %s: closed", c.documentID)
	default:
		c.fire(evFail)
		logger.Warn("connection %s: %v", c.documentID, err)
	}

	c.scheduleReconnect()
	c.changed(err)
}

func (c *ConnectionController) scheduleReconnect() {
	if c.manual || c.ctx.Err() != nil {
		return
	}
	delay := c.policy.NextBackOff()
	if delay == backoff.Stop {
		logger.Info("connection %s: giving up after %d attempts", c.documentID, c.attempts)
		return
	}
	c.attempts++
	c.retry.schedule(c.clock, delay, c.post, c.dial)
}

// teardown closes the live connection and invalidates its generation.
func (c *ConnectionController) teardown() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.outbound = nil
}

// Shutdown closes everything for good.
func (c *ConnectionController) Shutdown() {
	c.manual = true
	c.retry.stop()
	c.teardown()
}

func (c *ConnectionController) fire(event string) {
	err := c.machine.Event(context.Background(), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	logger.Debug("connection %s: %s ignored in %s: %v", c.documentID, event, c.machine.Current(), err)
}

func (c *ConnectionController) changed(err error) {
	if c.onChange != nil {
		c.onChange(err)
	}
}
