// Package ap implements the soft-AP association state machine (spec §4.7):
// the per-Station Authentication/(Re)Association/Disassociation exchange
// over userspace-managed SME frames, the authenticator side of the 4-Way
// Handshake, AID assignment, and WSC Push-Button enrollment. It mirrors
// internal/sta's request/event split, but drives raw 802.11 frames built
// with internal/frame instead of letting the kernel build them, since the
// AP role's CONNECT-equivalent commands don't exist in nl80211 for
// Authentication/Association.
package ap

import (
	"bytes"
	"crypto/rand"
	"errors"
	"net"
	"time"

	"github.com/mdlayher/genetlink"

	"github.com/mdlayher/wind/internal/eapol"
	"github.com/mdlayher/wind/internal/frame"
	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/ie"
	"github.com/mdlayher/wind/internal/nl"
)

// Errors surfaced by AP operations, per spec §7.
var (
	ErrNoFreeAID  = errors.New("ap: no free association ID")
	ErrNotStarted = errors.New("ap: interface is not running as an AP")
)

// AID range, IEEE 802.11-2016 §9.4.1.8: 0 is reserved and the two high bits
// of the wire field are always set, so the usable range is 1..2007.
const (
	minAID = 1
	maxAID = 2007
)

// Event is an upper-layer notification emitted as the AP's state
// progresses, per spec §6.
type Event int

const (
	EventStarted Event = iota
	EventStartFailed
	EventStopping
	EventStationAdded
	EventStationRemoved
	EventRegistrationStart
	EventRegistrationSuccess
	EventPbcModeExit
)

// Config describes the network a soft-AP advertises.
type Config struct {
	SSID           []byte
	Frequency      uint32
	BeaconInterval uint32
	DTIMPeriod     uint32
	Capability     uint16
	Rates          []ie.Rate

	// RSNE is the data-only RSN element (tag/length stripped) this AP
	// requires, or nil for an open/WSC-only network.
	RSNE        []byte
	GroupCipher ie.Cipher

	// PMK is the pre-shared key used to seed every Station's Handshake on
	// the RSNE path. Ignored when RSNE is nil.
	PMK []byte

	// AllowedMACs restricts Authentication to the listed peers when
	// non-empty (spec §8 scenario S6's deny-list).
	AllowedMACs []net.HardwareAddr

	// MaxRetries overrides the authenticator's Msg1/Msg3 retransmit cap
	// (eapol.MaxRetries, which starts at eapol.DefaultMaxRetries) when
	// nonzero.
	MaxRetries int
}

func (c Config) authorized(mac net.HardwareAddr) bool {
	if len(c.AllowedMACs) == 0 {
		return true
	}
	for _, m := range c.AllowedMACs {
		if bytes.Equal(m, mac) {
			return true
		}
	}
	return false
}

// AP drives one interface's soft-AP role: its own Station table, AID
// allocator, group key, and WSC-PBC session. One AP exists per Interface
// for its AP role's lifetime.
type AP struct {
	nlc     *nl.Conn
	ifindex int
	ifname  string
	bssid   net.HardwareAddr
	cfg     Config

	onEvent func(Event)
	// eapolTx transmits an EAPoL-Key frame to mac over the interface's
	// control port; set by the caller, since EAPoL framing isn't carried
	// over nl80211 (spec §6).
	eapolTx func(mac net.HardwareAddr, frame []byte)

	started bool

	stations map[string]*Station
	nextAID  uint16

	gtk          []byte
	gtkRSC       [6]byte
	gtkInstalled bool

	pbc *pbcState
}

// New creates an AP bound to a netlink transport and interface. eapolTx is
// invoked whenever the authenticator needs to transmit an EAPoL-Key frame
// to an associated Station.
func New(nlc *nl.Conn, ifindex int, ifname string, bssid net.HardwareAddr, cfg Config, onEvent func(Event), eapolTx func(mac net.HardwareAddr, frame []byte)) *AP {
	return &AP{
		nlc:      nlc,
		ifindex:  ifindex,
		ifname:   ifname,
		bssid:    bssid,
		cfg:      cfg,
		onEvent:  onEvent,
		eapolTx:  eapolTx,
		stations: make(map[string]*Station),
	}
}

func (a *AP) emit(ev Event) {
	if a.onEvent != nil {
		a.onEvent(ev)
	}
}

// Start issues NL80211_CMD_START_AP with a beacon built from the current
// configuration and registers for the SME management frames this FSM
// handles itself.
func (a *AP) Start() error {
	head, tail := a.buildBeacon()

	done := make(chan error, 1)
	_, err := a.nlc.StartAP(a.ifindex, a.cfg.SSID, a.cfg.BeaconInterval, a.cfg.DTIMPeriod, head, tail, func(_ []genetlink.Message, err error) {
		done <- err
	})
	if err != nil {
		a.emit(EventStartFailed)
		return err
	}
	if err := <-done; err != nil {
		a.emit(EventStartFailed)
		return err
	}

	for _, sub := range []frame.Subtype{
		frame.SubtypeAuthentication,
		frame.SubtypeAssociationRequest,
		frame.SubtypeReassociationRequest,
		frame.SubtypeDisassociation,
		frame.SubtypeDeauthentication,
		frame.SubtypeProbeRequest,
	} {
		frameType := uint16(0)<<2 | uint16(sub)<<4
		regDone := make(chan error, 1)
		if _, err := a.nlc.RegisterFrame(a.ifindex, frameType, nil, func(_ []genetlink.Message, err error) {
			regDone <- err
		}); err != nil {
			a.emit(EventStartFailed)
			return err
		}
		if err := <-regDone; err != nil {
			a.emit(EventStartFailed)
			return err
		}
	}
	a.nlc.RegisterFrameHandler(a.ifindex, a.HandleFrame)

	a.started = true
	a.emit(EventStarted)
	return nil
}

// Stop tears down every Station and issues NL80211_CMD_STOP_AP.
func (a *AP) Stop() {
	if !a.started {
		return
	}
	a.emit(EventStopping)

	for key, st := range a.stations {
		st.secureErase()
		_, _ = a.nlc.DelStation(a.ifindex, st.MAC, func(_ []genetlink.Message, _ error) {})
		delete(a.stations, key)
	}

	a.nlc.UnregisterFrameHandler(a.ifindex)
	_, _ = a.nlc.StopAP(a.ifindex, func(_ []genetlink.Message, _ error) {})
	a.started = false
}

// Tick drives timers that don't originate from an inbound frame: per-
// station 4-Way Handshake retransmits and the WSC-PBC walk-time window.
func (a *AP) Tick(now time.Time) {
	for _, st := range a.stations {
		if st.auth == nil || st.State == StationRsna {
			continue
		}
		f, ok := st.auth.Retransmit(now)
		if !ok {
			a.teardownStation(st, frame.Reason4WayHandshakeTimeout)
			continue
		}
		if f != nil && a.eapolTx != nil {
			a.eapolTx(st.MAC, f)
		}
	}

	if a.pbc != nil && a.pbc.active && now.Sub(a.pbc.enteredAt) >= pbcWalkTime {
		a.ExitPBC(now)
	}
}

// HandleFrame is the entry point for every raw 802.11 frame the kernel
// delivers for this interface via NL80211_CMD_FRAME, registered with
// internal/nl in Start.
func (a *AP) HandleFrame(raw []byte) {
	if !a.started {
		return
	}
	hdr, body, err := frame.ParseHeader(raw)
	if err != nil {
		return
	}

	switch hdr.Subtype {
	case frame.SubtypeAuthentication:
		a.handleAuthentication(hdr, body)
	case frame.SubtypeAssociationRequest:
		a.handleAssociation(hdr, body, false)
	case frame.SubtypeReassociationRequest:
		a.handleAssociation(hdr, body, true)
	case frame.SubtypeDisassociation, frame.SubtypeDeauthentication:
		a.handlePeerTeardown(hdr, body)
	case frame.SubtypeProbeRequest:
		a.handleProbeRequest(hdr, body)
	}
}

// HandleEAPoLFrame feeds a received EAPoL-Key frame from mac's station to
// its authenticator.
func (a *AP) HandleEAPoLFrame(mac net.HardwareAddr, raw []byte) error {
	if !a.started {
		return ErrNotStarted
	}
	st, ok := a.stations[mac.String()]
	if !ok || st.auth == nil {
		return nil
	}

	f, err := eapol.Parse(raw)
	if err != nil {
		return err
	}

	reply, done, err := st.auth.HandleMessage(f)
	if err != nil {
		a.teardownStation(st, frame.ReasonMICFailure)
		return err
	}
	if reply != nil && a.eapolTx != nil {
		a.eapolTx(mac, reply)
	}
	if done {
		st.State = StationRsna
		_, _ = a.nlc.SetStationAuthorized(a.ifindex, mac, func(_ []genetlink.Message, _ error) {})
	}
	return nil
}

func (a *AP) station(mac net.HardwareAddr) (*Station, bool) {
	st, ok := a.stations[mac.String()]
	return st, ok
}

func (a *AP) sendFrame(dst net.HardwareAddr, subtype frame.Subtype, fixed, ies []byte, onResult func(err error)) {
	h := frame.BuildHeader(frame.Header{Subtype: subtype, DA: dst, SA: a.bssid, BSSID: a.bssid})
	body := append(append(append([]byte(nil), h...), fixed...), ies...)
	_, _ = a.nlc.Frame(a.ifindex, a.cfg.Frequency, body, func(_ []genetlink.Message, err error) {
		if onResult != nil {
			onResult(err)
		}
	})
}

// assignAID picks the lowest unused AID above the last one handed out,
// wrapping within 1..2007, so two simultaneously-associated Stations never
// share one (spec §8 property 7).
func (a *AP) assignAID() (uint16, error) {
	for i := 0; i < maxAID; i++ {
		a.nextAID++
		if a.nextAID > maxAID {
			a.nextAID = minAID
		}
		used := false
		for _, st := range a.stations {
			if st.AID == a.nextAID {
				used = true
				break
			}
		}
		if !used {
			return a.nextAID, nil
		}
	}
	return 0, ErrNoFreeAID
}

func (a *AP) teardownStation(st *Station, reason frame.ReasonCode) {
	a.sendFrame(st.MAC, frame.SubtypeDeauthentication, frame.BuildDeauthFixed(frame.DeauthFixed{Reason: reason}), nil, nil)
	st.secureErase()
	delete(a.stations, st.MAC.String())
	_, _ = a.nlc.DelStation(a.ifindex, st.MAC, func(_ []genetlink.Message, _ error) {})
	a.emit(EventStationRemoved)
}

func (a *AP) handlePeerTeardown(hdr frame.Header, _ []byte) {
	st, ok := a.station(hdr.SA)
	if !ok {
		return
	}
	st.secureErase()
	delete(a.stations, st.MAC.String())
	_, _ = a.nlc.DelStation(a.ifindex, st.MAC, func(_ []genetlink.Message, _ error) {})
	a.emit(EventStationRemoved)
}

func (a *AP) buildBeacon() (head, tail []byte) {
	head = make([]byte, 12)
	// 8-byte timestamp left zero; the driver fills it in on every beacon.
	putUint16(head[8:10], uint16(a.cfg.BeaconInterval))
	putUint16(head[10:12], a.cfg.Capability)

	tail = append(tail, ie.Build(ie.TagSSID, a.cfg.SSID)...)

	rates := a.cfg.Rates
	first, rest := rates, []ie.Rate(nil)
	if len(rates) > 8 {
		first, rest = rates[:8], rates[8:]
	}
	tail = append(tail, ie.Build(ie.TagSupportedRates, ie.BuildSupportedRates(first))...)
	if len(rest) > 0 {
		tail = append(tail, ie.Build(ie.TagExtendedRates, ie.BuildSupportedRates(rest))...)
	}

	if a.cfg.RSNE != nil {
		tail = append(tail, ie.Build(ie.TagRSN, a.cfg.RSNE)...)
	}

	if a.pbc != nil && a.pbc.active {
		tail = append(tail, ie.BuildWSCBeacon(&a.pbc.sr)...)
	}

	return head, tail
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// ensureGTK generates and installs the AP-wide GTK on first use, then reads
// back its Tx-RSC before calling ready, per spec §4.7's "GTK generation and
// Tx-RSC query" step. Concurrent callers while generation is already in
// flight are queued implicitly: handleAssociation only calls this from the
// single-threaded event loop.
func (a *AP) ensureGTK(ready func()) {
	if a.gtkInstalled {
		ready()
		return
	}

	gtk := make([]byte, 16)
	if _, err := rand.Read(gtk); err != nil {
		return
	}
	cipher := nl80211CipherSuite(a.cfg.GroupCipher)

	_, err := a.nlc.NewKey(a.ifindex, nl.KeyTypeGroup, 1, cipher, gtk, nil, func(_ []genetlink.Message, err error) {
		if err != nil {
			return
		}
		_, _ = a.nlc.GetKey(a.ifindex, 1, func(msgs []genetlink.Message, err error) {
			if err != nil {
				return
			}
			rsc, err := nl.ParseKeySeq(msgs)
			if err != nil {
				return
			}
			a.gtk = gtk
			a.gtkRSC = rsc
			a.gtkInstalled = true
			ready()
		})
	})
	if err != nil {
		return
	}
}

func nl80211CipherSuite(c ie.Cipher) uint32 {
	return 0x000fac00 | uint32(c)
}

func (a *AP) startAuthenticator(st *Station) {
	a.ensureGTK(func() {
		hs := handshake.New(ie.AKMPSK, 16)
		_ = hs.SetPMK(append([]byte(nil), a.cfg.PMK...))
		_ = hs.SetAuthenticatorAddress(a.bssid)
		_ = hs.SetSupplicantAddress(st.MAC)
		_ = hs.SetOwnIE(a.cfg.RSNE)
		_ = hs.SetAPIE(a.cfg.RSNE)

		st.hs = hs
		st.auth = eapol.NewAuthenticator(hs, 1, a.gtk, a.gtkRSC)
		if a.cfg.MaxRetries > 0 {
			st.auth.SetMaxRetries(a.cfg.MaxRetries)
		}

		msg1, err := st.auth.Start()
		if err != nil {
			return
		}
		if a.eapolTx != nil {
			a.eapolTx(st.MAC, msg1)
		}
	})
}
