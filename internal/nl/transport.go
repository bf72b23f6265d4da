// Package nl wraps a genetlink connection to the nl80211 family with the
// cancellable command/result bookkeeping and multicast event dispatch the
// STA/AP state machines need (spec §5). It follows the request/execute
// split the teacher's client_linux.go uses, generalized so commands can be
// cancelled mid-flight and asynchronous multicast notifications can be
// routed to per-ifindex handlers instead of a single blocking loop.
package nl

import (
	"context"
	"errors"
	"sync"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// ErrCancelled is delivered to a command's result callback when Cancel is
// called before the kernel replies.
var ErrCancelled = errors.New("nl: command cancelled")

// ErrClosed is returned by Send/RegisterMulticast once the Conn has been
// closed.
var ErrClosed = errors.New("nl: connection closed")

// CommandID identifies an in-flight command so it can be cancelled.
type CommandID uint64

// ResultFunc receives the outcome of a Send call: either the kernel's
// response messages, or an error (including ErrCancelled).
type ResultFunc func(msgs []genetlink.Message, err error)

// EventFunc receives a multicast notification message.
type EventFunc func(msg genetlink.Message)

// Conn is a cancellable nl80211 genetlink transport. One Conn is shared by
// every interface's STA/AP state machine in the daemon; cmd/windd dials it
// and closes it on shutdown.
type Conn struct {
	conn          *genetlink.Conn
	familyID      uint16
	familyVersion uint8

	groups map[string]uint32

	mu       sync.Mutex
	closed   bool
	nextID   CommandID
	inFlight map[CommandID]context.CancelFunc

	// frameHandlers routes NL80211_CMD_FRAME notifications (userspace
	// SME management frames: AP-role Authentication/(Re)Association/
	// Disassociation) to the per-ifindex AP FSM that registered for them.
	frameMu       sync.Mutex
	frameHandlers map[int][]func(frame []byte)

	mcastMu       sync.Mutex
	mcastHandlers map[string][]EventFunc
}

// Dial opens a genetlink connection and resolves the nl80211 family.
func Dial() (*Conn, error) {
	c, err := genetlink.Dial(nil)
	if err != nil {
		return nil, err
	}

	for _, o := range []netlink.ConnOption{
		netlink.ExtendedAcknowledge,
		netlink.GetStrictCheck,
	} {
		_ = c.SetOption(o, true)
	}

	conn, err := newConn(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

// NewForTest exposes newConn to other packages' tests that need to drive a
// Conn against a genltest fake family instead of a real kernel socket.
func NewForTest(c *genetlink.Conn) (*Conn, error) {
	return newConn(c)
}

// newConn resolves the nl80211 family on an already-dialed genetlink
// connection. Split out from Dial so tests can drive it with genltest
// instead of a real kernel socket, mirroring the teacher's
// newClient/initClient split.
func newConn(c *genetlink.Conn) (*Conn, error) {
	family, err := c.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]uint32, len(family.Groups))
	for _, g := range family.Groups {
		groups[g.Name] = g.ID
	}

	return &Conn{
		conn:          c,
		familyID:      family.ID,
		familyVersion: family.Version,
		groups:        groups,
		inFlight:      make(map[CommandID]context.CancelFunc),
		frameHandlers: make(map[int][]func(frame []byte)),
		mcastHandlers: make(map[string][]EventFunc),
	}, nil
}

// Close shuts down the underlying connection, cancelling every in-flight
// command with ErrCancelled.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	for _, cancel := range c.inFlight {
		cancel()
	}
	c.inFlight = make(map[CommandID]context.CancelFunc)
	c.mu.Unlock()
	return c.conn.Close()
}

// Send issues cmd with the given flags and attributes, invoking on_result
// once the kernel replies or the command is cancelled. It returns the
// CommandID that Cancel accepts.
func (c *Conn) Send(cmd uint8, flags netlink.HeaderFlags, ae *netlink.AttributeEncoder, onResult ResultFunc) (CommandID, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ctx, cancel := context.WithCancel(context.Background())
	c.inFlight[id] = cancel
	c.mu.Unlock()

	b, err := ae.Encode()
	if err != nil {
		c.finish(id)
		return 0, err
	}

	go func() {
		defer c.finish(id)

		msgs, err := c.conn.Execute(
			genetlink.Message{
				Header: genetlink.Header{Command: cmd, Version: c.familyVersion},
				Data:   b,
			},
			c.familyID,
			netlink.Request|flags,
		)

		select {
		case <-ctx.Done():
			onResult(nil, ErrCancelled)
		default:
			onResult(msgs, err)
		}
	}()

	return id, nil
}

func (c *Conn) finish(id CommandID) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

// Cancel aborts the in-flight command identified by id. Its ResultFunc, if
// it hasn't already run, will be invoked with ErrCancelled.
func (c *Conn) Cancel(id CommandID) {
	c.mu.Lock()
	cancel, ok := c.inFlight[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// FamilyID and FamilyVersion expose the resolved nl80211 family so command
// builders in this package can construct requests directly.
func (c *Conn) FamilyID() uint16      { return c.familyID }
func (c *Conn) FamilyVersion() uint8  { return c.familyVersion }

// MulticastGroupID resolves a multicast group name (e.g. "mlme", "config",
// "scan") to its kernel-assigned ID.
func (c *Conn) MulticastGroupID(name string) (uint32, bool) {
	id, ok := c.groups[name]
	return id, ok
}

// RegisterMulticast joins the named multicast group and adds handler to the
// multicast handlers Receive calls; the group is left again once ctx is
// cancelled. Receive passes every multicast message to every registered
// handler, whichever group it arrived on, so handlers filter by command.
func (c *Conn) RegisterMulticast(ctx context.Context, name string, handler EventFunc) error {
	groupID, ok := c.groups[name]
	if !ok {
		return errors.New("nl: multicast group not found: " + name)
	}
	if err := c.conn.JoinGroup(groupID); err != nil {
		return err
	}

	c.mcastMu.Lock()
	c.mcastHandlers[name] = append(c.mcastHandlers[name], handler)
	c.mcastMu.Unlock()

	go func() {
		<-ctx.Done()
		_ = c.conn.LeaveGroup(groupID)
	}()

	return nil
}

// RegisterFrameHandler routes every raw 802.11 frame the kernel delivers
// for ifindex via NL80211_CMD_FRAME (after the caller has asked for it with
// RegisterFrame) to handler. The AP FSM uses this to receive
// Authentication, (Re)Association Request and Disassociation frames under
// a userspace-managed SME; it is undone by UnregisterFrameHandler when the
// interface is torn down.
func (c *Conn) RegisterFrameHandler(ifindex int, handler func(frame []byte)) {
	c.frameMu.Lock()
	c.frameHandlers[ifindex] = append(c.frameHandlers[ifindex], handler)
	c.frameMu.Unlock()
}

// UnregisterFrameHandler removes every frame handler registered for ifindex.
func (c *Conn) UnregisterFrameHandler(ifindex int) {
	c.frameMu.Lock()
	delete(c.frameHandlers, ifindex)
	c.frameMu.Unlock()
}

// Receive blocks for the next multicast message across every joined group
// and passes it to every registered multicast handler, and an
// NL80211_CMD_FRAME message also to the frame handlers of its ifindex.
// Handlers run on the calling goroutine; cmd/windd calls Receive in a loop
// on one goroutine.
func (c *Conn) Receive() error {
	msgs, _, err := c.conn.Receive()
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		c.dispatch(msg)
	}
	return nil
}

func (c *Conn) dispatch(msg genetlink.Message) {
	if msg.Header.Command == unix.NL80211_CMD_FRAME {
		if ifindex, raw, err := ParseFrameEvent(msg); err == nil {
			c.frameMu.Lock()
			handlers := append([]func([]byte){}, c.frameHandlers[ifindex]...)
			c.frameMu.Unlock()
			for _, h := range handlers {
				h(raw)
			}
		}
	}

	c.mcastMu.Lock()
	handlers := make([]EventFunc, 0)
	for _, hs := range c.mcastHandlers {
		handlers = append(handlers, hs...)
	}
	c.mcastMu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}
