// Package sta implements the client connect/disconnect/Fast-BSS-Transition
// state machine (spec §4.6): it drives one Connection's CONNECT dispatch,
// validates the kernel's response IEs, hands off to the EAPoL supplicant
// for the 4-Way Handshake, and installs the resulting keys in the required
// order before declaring the link Operational.
package sta

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"github.com/mdlayher/wind/internal/eapol"
	"github.com/mdlayher/wind/internal/frame"
	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/ie"
	"github.com/mdlayher/wind/internal/nl"
	"github.com/mdlayher/wind/internal/rtnl"
)

// State is the connection's position in the spec §4.6 state machine.
type State int

const (
	Idle State = iota
	Connecting
	FourWay
	Operational
	Disconnecting
	FTAuthenticating
	FTReassociating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case FourWay:
		return "FourWay"
	case Operational:
		return "Operational"
	case Disconnecting:
		return "Disconnecting"
	case FTAuthenticating:
		return "FTAuthenticating"
	case FTReassociating:
		return "FTReassociating"
	default:
		return "Unknown"
	}
}

// Event is an upper-layer notification emitted as the connection
// progresses, per spec §6.
type Event int

const (
	EventConnecting Event = iota
	EventFourWayHandshake
	EventSettingKeys
	EventOperational
	EventDisconnectedByPeer
	EventDisconnectedBySME
	EventDisconnectedLostBeacon
	EventRssiLow
	EventRssiHigh
	EventRoamingCandidate
)

// Errors surfaced via the completion callback, per spec §7.
var (
	ErrAssociationFailed = errors.New("sta: association failed")
	ErrAuthenticationFailed = errors.New("sta: authentication failed")
	ErrHandshakeFailed    = errors.New("sta: 4-way handshake failed")
	ErrKeySettingFailed   = errors.New("sta: key installation failed")
	ErrAborted            = errors.New("sta: aborted by caller")
	ErrInProgress         = errors.New("sta: connection already in progress")
	ErrNotConnected       = errors.New("sta: not connected")
)

// BSS describes the target network for a Connect call.
type BSS struct {
	BSSID       net.HardwareAddr
	SSID        []byte
	Frequency   uint32
	Capability  uint16
	RSNE        []byte // nil for an open network
	MDE         []byte // non-nil only within an FT mobility domain
}

// ConnectParams bundles everything Connect needs, per spec §4.6.
type ConnectParams struct {
	BSS       BSS
	Handshake *handshake.Handshake // pre-populated with PMK, addresses, own IE
	OwnRSNE   []byte
	OwnMDE    []byte
}

// Conn drives a single STA-role connection attempt/active link on one
// interface. One Conn exists per Interface for its STA role's lifetime.
type Conn struct {
	nlc     *nl.Conn
	ifindex int
	ifname  string
	ownAddr net.HardwareAddr

	onEvent    func(Event)
	onComplete func(error)
	completed  bool

	state State
	bss   BSS
	hs    *handshake.Handshake
	supp  *eapol.Supplicant

	pendingCmd nl.CommandID
	havePending bool

	msg1SentAt time.Time

	r0khID []byte

	ft *ftTarget
}

// New creates a Conn bound to a netlink transport and interface.
func New(nlc *nl.Conn, ifindex int, ifname string, ownAddr net.HardwareAddr, onEvent func(Event)) *Conn {
	return &Conn{
		nlc:     nlc,
		ifindex: ifindex,
		ifname:  ifname,
		ownAddr: ownAddr,
		onEvent: onEvent,
		state:   Idle,
	}
}

// State returns the connection's current state.
func (c *Conn) State() State { return c.state }

func (c *Conn) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// complete invokes the completion callback at most once (spec §8 property
// 1), then leaves the connection Idle.
func (c *Conn) complete(err error) {
	if c.completed {
		return
	}
	c.completed = true
	c.state = Idle
	if c.onComplete != nil {
		cb := c.onComplete
		c.onComplete = nil
		cb(err)
	}
}

// Connect builds and dispatches the CONNECT netlink command.
func (c *Conn) Connect(params ConnectParams, onComplete func(error)) error {
	if c.state != Idle {
		return ErrInProgress
	}

	c.bss = params.BSS
	c.hs = params.Handshake
	c.onComplete = onComplete
	c.completed = false
	c.state = Connecting
	c.emit(EventConnecting)

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(c.ifindex))
	ae.Bytes(unix.NL80211_ATTR_MAC, params.BSS.BSSID)
	ae.Bytes(unix.NL80211_ATTR_SSID, params.BSS.SSID)
	ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, params.BSS.Frequency)
	ae.Uint32(unix.NL80211_ATTR_AUTH_TYPE, unix.NL80211_AUTHTYPE_OPEN_SYSTEM)

	if params.BSS.RSNE != nil {
		ae.Uint32(unix.NL80211_ATTR_WPA_VERSIONS, unix.NL80211_WPA_VERSION_2)
		ies := append([]byte(nil), params.OwnRSNE...)
		if params.OwnMDE != nil {
			ies = append(ies, params.OwnMDE...)
		}
		ae.Bytes(unix.NL80211_ATTR_IE, ies)
	}

	id, err := c.nlc.Send(unix.NL80211_CMD_CONNECT, netlink.Acknowledge, ae, func(msgs []genetlink.Message, err error) {
		c.havePending = false
		if err != nil {
			if err == nl.ErrCancelled {
				return
			}
			c.complete(fmt.Errorf("%w: %v", ErrAssociationFailed, err))
		}
		// Success here only means the kernel accepted the command; the
		// actual outcome arrives asynchronously as a CONNECT multicast
		// event delivered to HandleConnectEvent.
	})
	if err != nil {
		c.state = Idle
		return err
	}
	c.pendingCmd = id
	c.havePending = true
	return nil
}

// HandleConnectEvent processes the kernel's CONNECT multicast event,
// validating response IEs per spec §4.6 step 2.
func (c *Conn) HandleConnectEvent(status uint16, timedOut bool, responseIEs []byte) {
	if c.state != Connecting {
		return
	}
	c.havePending = false

	if timedOut || status != 0 {
		c.complete(fmt.Errorf("%w: status %d", ErrAssociationFailed, status))
		return
	}

	if c.bss.RSNE != nil {
		els, err := ie.All(responseIEs)
		if err != nil {
			c.deauthAndFail(fmt.Errorf("%w: %v", ErrAssociationFailed, err))
			return
		}

		rsnEl, ok := ie.Find(els, ie.TagRSN)
		if !ok {
			c.deauthAndFail(fmt.Errorf("%w: missing response RSNE", ErrAssociationFailed))
			return
		}

		if mdeEl, ok := ie.Find(els, ie.TagMobilityDomain); ok {
			if c.bss.MDE != nil && !ie.MDEBytesEqual(mdeEl.Data, c.bss.MDE[2:]) {
				c.deauthAndFail(fmt.Errorf("%w: MDE mismatch", ErrAssociationFailed))
				return
			}
		}

		if _, err := ie.ParseRSNE(rsnEl.Data); err != nil {
			c.deauthAndFail(fmt.Errorf("%w: invalid response RSNE", ErrAssociationFailed))
			return
		}

		c.state = FourWay
		c.emit(EventFourWayHandshake)
		c.supp = eapol.NewSupplicant(c.hs)
		return
	}

	// Open networks have no RSNA to negotiate: the kernel authorizes the
	// station as part of a successful CONNECT, so there are no keys to
	// install here.
	c.bringLinkUp()
}

func (c *Conn) deauthAndFail(err error) {
	c.sendDeauth(frame.ReasonUnspecified)
	c.complete(err)
}

// HandleEAPoLFrame feeds a received EAPoL-Key frame to the supplicant and
// returns the reply to transmit, if any.
func (c *Conn) HandleEAPoLFrame(raw []byte) ([]byte, error) {
	if c.state != FourWay || c.supp == nil {
		return nil, nil
	}

	f, err := eapol.Parse(raw)
	if err != nil {
		return nil, err
	}

	reply, done, err := c.supp.HandleMessage(f)
	if err != nil {
		c.deauthAndFail(fmt.Errorf("%w: %v", ErrHandshakeFailed, err))
		return nil, err
	}
	if done {
		c.finishKeySetup()
	}
	return reply, nil
}

// finishKeySetup installs PTK, GTK and IGTK in the required order (spec
// §5's ordering guarantee) then transitions to Operational.
func (c *Conn) finishKeySetup() {
	c.emit(EventSettingKeys)

	noop := func(_ []genetlink.Message, _ error) {}

	if c.hs.PTK() != nil {
		if _, err := c.nlc.NewKey(c.ifindex, nl.KeyTypePairwise, 0, cipherSuiteFor(c.bss), c.hs.PTK().TK, c.bss.BSSID, noop); err != nil {
			c.failKeySetting(err)
			return
		}
		if _, err := c.nlc.SetKey(c.ifindex, 0, true, false, noop); err != nil {
			c.failKeySetting(err)
			return
		}
	}

	if gtk := c.hs.GTK(); gtk != nil {
		if _, err := c.nlc.NewKey(c.ifindex, nl.KeyTypeGroup, uint8(gtk.Index), cipherSuiteFor(c.bss), gtk.Key, nil, noop); err != nil {
			c.failKeySetting(err)
			return
		}
	}
	if igtk := c.hs.IGTK(); igtk != nil {
		if _, err := c.nlc.NewKey(c.ifindex, nl.KeyTypeIGTK, uint8(igtk.Index), nl80211CipherSuite(ie.CipherBIPCMAC128), igtk.Key, nil, noop); err != nil {
			c.failKeySetting(err)
			return
		}
	}

	if _, err := c.nlc.SetStationAuthorized(c.ifindex, c.bss.BSSID, noop); err != nil {
		c.failKeySetting(err)
		return
	}

	c.bringLinkUp()
}

func (c *Conn) failKeySetting(err error) {
	c.deauthAndFail(fmt.Errorf("%w: %v", ErrKeySettingFailed, err))
}

func (c *Conn) bringLinkUp() {
	if c.ifname != "" {
		_ = rtnl.LinkUp(c.ifname)
	}
	c.state = Operational
	c.emit(EventOperational)
	c.complete(nil)
}

func (c *Conn) sendDeauth(reason frame.ReasonCode) {
	_, _ = c.nlc.Deauthenticate(c.ifindex, c.bss.BSSID, uint16(reason), func(_ []genetlink.Message, _ error) {})
}

// Disconnect always sends DEAUTHENTICATE with reason LEAVING; calling it
// twice produces exactly one frame on the wire (spec §8 property 8).
func (c *Conn) Disconnect() {
	if c.state == Idle || c.state == Disconnecting {
		return
	}
	c.state = Disconnecting
	if c.havePending {
		c.nlc.Cancel(c.pendingCmd)
		c.havePending = false
	}
	c.sendDeauth(frame.ReasonDeauthLeaving)
	c.complete(ErrAborted)
}

// nl80211CipherSuite encodes an ie.Cipher as the 32-bit 00-0F-AC cipher
// suite selector nl80211's NL80211_KEY_CIPHER attribute expects; the
// suite's low byte is the IEEE 802.11 cipher suite type, matching the
// numeric values of the Cipher constants themselves.
func nl80211CipherSuite(c ie.Cipher) uint32 {
	return 0x000fac00 | uint32(c)
}

func cipherSuiteFor(bss BSS) uint32 {
	if bss.RSNE == nil {
		return 0
	}
	r, err := ie.ParseRSNE(bss.RSNE)
	if err != nil || len(r.PairwiseList) == 0 {
		return nl80211CipherSuite(ie.CipherCCMP)
	}
	return nl80211CipherSuite(r.PairwiseList[0])
}
