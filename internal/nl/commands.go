package nl

import (
	"net"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// KeyType distinguishes pairwise, group and integrity-group keys for the
// NEW_KEY/SET_KEY/DEL_KEY family of commands.
type KeyType int

const (
	KeyTypePairwise KeyType = iota
	KeyTypeGroup
	KeyTypeIGTK
)

func encodeIfindex(ae *netlink.AttributeEncoder, ifindex int) {
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(ifindex))
}

// Authenticate issues NL80211_CMD_AUTHENTICATE for an Open System
// authentication against bssid/ssid on the given frequency.
func (c *Conn) Authenticate(ifindex int, bssid net.HardwareAddr, ssid []byte, freq uint32, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_MAC, bssid)
	ae.Bytes(unix.NL80211_ATTR_SSID, ssid)
	ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, freq)
	ae.Uint32(unix.NL80211_ATTR_AUTH_TYPE, unix.NL80211_AUTHTYPE_OPEN_SYSTEM)

	return c.Send(unix.NL80211_CMD_AUTHENTICATE, netlink.Acknowledge, ae, onResult)
}

// Associate issues NL80211_CMD_ASSOCIATE carrying the station's RSNE (and,
// on an FT reassociation, the MDE/FTE), letting the kernel build the
// (Re)Association Request frame.
func (c *Conn) Associate(ifindex int, bssid net.HardwareAddr, ssid []byte, freq uint32, ies []byte, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_MAC, bssid)
	ae.Bytes(unix.NL80211_ATTR_SSID, ssid)
	ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, freq)
	if len(ies) > 0 {
		ae.Bytes(unix.NL80211_ATTR_IE, ies)
	}

	return c.Send(unix.NL80211_CMD_ASSOCIATE, netlink.Acknowledge, ae, onResult)
}

// Deauthenticate issues NL80211_CMD_DEAUTHENTICATE with the given reason
// code.
func (c *Conn) Deauthenticate(ifindex int, bssid net.HardwareAddr, reason uint16, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_MAC, bssid)
	ae.Uint16(unix.NL80211_ATTR_REASON_CODE, reason)

	return c.Send(unix.NL80211_CMD_DEAUTHENTICATE, netlink.Acknowledge, ae, onResult)
}

// Disconnect issues NL80211_CMD_DISCONNECT, tearing down an already-
// CONNECT'd association.
func (c *Conn) Disconnect(ifindex int, reason uint16, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Uint16(unix.NL80211_ATTR_REASON_CODE, reason)

	return c.Send(unix.NL80211_CMD_DISCONNECT, netlink.Acknowledge, ae, onResult)
}

func keyTypeAttr(kt KeyType) uint32 {
	switch kt {
	case KeyTypeGroup, KeyTypeIGTK:
		return unix.NL80211_KEYTYPE_GROUP
	default:
		return unix.NL80211_KEYTYPE_PAIRWISE
	}
}

// NewKey issues NL80211_CMD_NEW_KEY to install a pairwise, group or IGTK
// key, identified by index and cipher suite. mac is nil for group/IGTK keys
// and the peer's address for pairwise keys.
func (c *Conn) NewKey(ifindex int, kt KeyType, index uint8, cipherSuite uint32, key []byte, mac net.HardwareAddr, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Nested(unix.NL80211_ATTR_KEY, func(nae *netlink.AttributeEncoder) error {
		nae.Uint8(unix.NL80211_KEY_IDX, index)
		nae.Bytes(unix.NL80211_KEY_DATA, key)
		nae.Uint32(unix.NL80211_KEY_CIPHER, cipherSuite)
		nae.Uint32(unix.NL80211_KEY_TYPE, keyTypeAttr(kt))
		if mac != nil {
			nae.Bytes(unix.NL80211_ATTR_MAC, mac)
		}
		return nil
	})

	return c.Send(unix.NL80211_CMD_NEW_KEY, netlink.Acknowledge, ae, onResult)
}

// SetKey issues NL80211_CMD_SET_KEY, used to mark the pairwise key as the
// default Tx key once installed (spec §4.5's NEW_KEY-then-SET_KEY
// ordering).
func (c *Conn) SetKey(ifindex int, index uint8, unicast, multicast bool, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Uint8(unix.NL80211_ATTR_KEY_IDX, index)
	if unicast {
		ae.Flag(unix.NL80211_ATTR_KEY_DEFAULT, true)
	}
	if multicast {
		ae.Flag(unix.NL80211_ATTR_KEY_DEFAULT_MGMT, true)
	}

	return c.Send(unix.NL80211_CMD_SET_KEY, netlink.Acknowledge, ae, onResult)
}

// DelKey issues NL80211_CMD_DEL_KEY, removing an installed key (teardown
// path).
func (c *Conn) DelKey(ifindex int, index uint8, mac net.HardwareAddr, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Uint8(unix.NL80211_ATTR_KEY_IDX, index)
	if mac != nil {
		ae.Bytes(unix.NL80211_ATTR_MAC, mac)
	}

	return c.Send(unix.NL80211_CMD_DEL_KEY, netlink.Acknowledge, ae, onResult)
}

// NewStation issues NL80211_CMD_NEW_STATION, registering a newly
// associated client with the kernel (AP role).
func (c *Conn) NewStation(ifindex int, mac net.HardwareAddr, aid uint16, supportedRates []byte, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_MAC, mac)
	ae.Nested(unix.NL80211_ATTR_STA_FLAGS2, func(nae *netlink.AttributeEncoder) error {
		return nil
	})
	ae.Uint16(unix.NL80211_ATTR_STA_AID, aid)
	if len(supportedRates) > 0 {
		ae.Bytes(unix.NL80211_ATTR_STA_SUPPORTED_RATES, supportedRates)
	}

	return c.Send(unix.NL80211_CMD_NEW_STATION, netlink.Acknowledge, ae, onResult)
}

// SetStationAuthorized issues NL80211_CMD_SET_STATION with the AUTHORIZED
// flag, the final step of both the STA and AP key-installation sequence
// (spec §4.5's "installed and SET_STATION AUTHORIZED" invariant).
func (c *Conn) SetStationAuthorized(ifindex int, mac net.HardwareAddr, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_MAC, mac)
	ae.Nested(unix.NL80211_ATTR_STA_FLAGS2, func(nae *netlink.AttributeEncoder) error {
		nae.Uint32(unix.NL80211_STA_FLAG_AUTHORIZED, 1)
		return nil
	})

	return c.Send(unix.NL80211_CMD_SET_STATION, netlink.Acknowledge, ae, onResult)
}

// DelStation issues NL80211_CMD_DEL_STATION, removing a disassociated
// client (AP role teardown).
func (c *Conn) DelStation(ifindex int, mac net.HardwareAddr, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	if mac != nil {
		ae.Bytes(unix.NL80211_ATTR_MAC, mac)
	}

	return c.Send(unix.NL80211_CMD_DEL_STATION, netlink.Acknowledge, ae, onResult)
}

// StartAP issues NL80211_CMD_START_AP, bringing up a soft-AP with the given
// beacon/probe-response/association-response IE tails.
func (c *Conn) StartAP(ifindex int, ssid []byte, beaconInterval, dtimPeriod uint32, beaconHead, beaconTail []byte, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_SSID, ssid)
	ae.Uint32(unix.NL80211_ATTR_BEACON_INTERVAL, beaconInterval)
	ae.Uint32(unix.NL80211_ATTR_DTIM_PERIOD, dtimPeriod)
	ae.Bytes(unix.NL80211_ATTR_BEACON_HEAD, beaconHead)
	ae.Bytes(unix.NL80211_ATTR_BEACON_TAIL, beaconTail)

	return c.Send(unix.NL80211_CMD_START_AP, netlink.Acknowledge, ae, onResult)
}

// StopAP issues NL80211_CMD_STOP_AP.
func (c *Conn) StopAP(ifindex int, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)

	return c.Send(unix.NL80211_CMD_STOP_AP, netlink.Acknowledge, ae, onResult)
}

// SetBeacon issues NL80211_CMD_SET_BEACON, used to rebuild the
// beacon/probe-response tail when entering or leaving WSC-PBC mode (spec
// §6's PBC monitor window).
func (c *Conn) SetBeacon(ifindex int, beaconHead, beaconTail []byte, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Bytes(unix.NL80211_ATTR_BEACON_HEAD, beaconHead)
	ae.Bytes(unix.NL80211_ATTR_BEACON_TAIL, beaconTail)

	return c.Send(unix.NL80211_CMD_SET_BEACON, netlink.Acknowledge, ae, onResult)
}

// RegisterFrame issues NL80211_CMD_REGISTER_FRAME, asking the kernel to
// deliver management frames matching frameType/match via the mlme
// multicast group instead of handling them itself (used for WSC probe
// requests and FT action frames).
func (c *Conn) RegisterFrame(ifindex int, frameType uint16, match []byte, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Uint16(unix.NL80211_ATTR_FRAME_TYPE, frameType)
	ae.Bytes(unix.NL80211_ATTR_FRAME_MATCH, match)

	return c.Send(unix.NL80211_CMD_REGISTER_FRAME, 0, ae, onResult)
}

// Frame issues NL80211_CMD_FRAME, transmitting a raw management frame the
// state machine built itself (used for WSC probe responses and FT action
// frames that the kernel's CONNECT/ASSOCIATE commands don't cover).
func (c *Conn) Frame(ifindex int, freq uint32, frame []byte, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, freq)
	ae.Bytes(unix.NL80211_ATTR_FRAME, frame)

	return c.Send(unix.NL80211_CMD_FRAME, netlink.Acknowledge, ae, onResult)
}

// SetCQM issues NL80211_CMD_SET_CQM, arming the kernel's connection-quality
// monitor (RSSI threshold events feed the roaming-candidate search).
func (c *Conn) SetCQM(ifindex int, rssiThreshold, rssiHysteresis uint32, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Nested(unix.NL80211_ATTR_CQM, func(nae *netlink.AttributeEncoder) error {
		nae.Uint32(unix.NL80211_ATTR_CQM_RSSI_THOLD, rssiThreshold)
		nae.Uint32(unix.NL80211_ATTR_CQM_RSSI_HYST, rssiHysteresis)
		return nil
	})

	return c.Send(unix.NL80211_CMD_SET_CQM, netlink.Acknowledge, ae, onResult)
}

// SetRekeyOffload issues NL80211_CMD_SET_REKEY_OFFLOAD, pushing the KEK,
// KCK and current replay counter into the kernel so it can perform Group
// Key Handshake rekeys while the interface is suspended.
func (c *Conn) SetRekeyOffload(ifindex int, kek, kck []byte, replayCounter uint64, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Nested(unix.NL80211_ATTR_REKEY_DATA, func(nae *netlink.AttributeEncoder) error {
		nae.Bytes(unix.NL80211_REKEY_DATA_KEK, kek)
		nae.Bytes(unix.NL80211_REKEY_DATA_KCK, kck)
		var rc [8]byte
		for i := 0; i < 8; i++ {
			rc[7-i] = byte(replayCounter >> (8 * i))
		}
		nae.Bytes(unix.NL80211_REKEY_DATA_REPLAY_CTR, rc[:])
		return nil
	})

	return c.Send(unix.NL80211_CMD_SET_REKEY_OFFLOAD, netlink.Acknowledge, ae, onResult)
}

// ParseFrameEvent extracts the ifindex and raw 802.11 frame bytes from an
// NL80211_CMD_FRAME (or _MLME_*) multicast notification.
func ParseFrameEvent(msg genetlink.Message) (ifindex int, frame []byte, err error) {
	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return 0, nil, err
	}

	for ad.Next() {
		switch ad.Type() {
		case unix.NL80211_ATTR_IFINDEX:
			ifindex = int(ad.Uint32())
		case unix.NL80211_ATTR_FRAME:
			frame = ad.Bytes()
		}
	}
	return ifindex, frame, ad.Err()
}

// GetKey issues NL80211_CMD_GET_KEY, used by the AP FSM to read back a
// group key's current Tx receive-sequence-counter before handing it to a
// newly associated station's authenticator (spec §4.7's "GTK generation
// and Tx-RSC query" step).
func (c *Conn) GetKey(ifindex int, index uint8, onResult ResultFunc) (CommandID, error) {
	ae := netlink.NewAttributeEncoder()
	encodeIfindex(ae, ifindex)
	ae.Uint8(unix.NL80211_ATTR_KEY_IDX, index)

	return c.Send(unix.NL80211_CMD_GET_KEY, netlink.Acknowledge, ae, onResult)
}

// ParseKeySeq extracts the NL80211_KEY_SEQ (Tx-RSC) sub-attribute from a
// GET_KEY reply.
func ParseKeySeq(msgs []genetlink.Message) ([6]byte, error) {
	var rsc [6]byte
	for _, msg := range msgs {
		ad, err := netlink.NewAttributeDecoder(msg.Data)
		if err != nil {
			return rsc, err
		}
		for ad.Next() {
			if ad.Type() != unix.NL80211_ATTR_KEY {
				continue
			}
			nad, err := netlink.NewAttributeDecoder(ad.Bytes())
			if err != nil {
				return rsc, err
			}
			for nad.Next() {
				if nad.Type() == unix.NL80211_KEY_SEQ {
					copy(rsc[:], nad.Bytes())
				}
			}
			if err := nad.Err(); err != nil {
				return rsc, err
			}
		}
		if err := ad.Err(); err != nil {
			return rsc, err
		}
	}
	return rsc, nil
}

// EventCommon holds the attributes common to the AUTHENTICATE, ASSOCIATE,
// CONNECT, DEAUTHENTICATE and DISASSOCIATE multicast events: which
// interface and peer they concern, the outcome, and any IEs the kernel
// collected along the way. Not every field is populated by every command.
type EventCommon struct {
	Ifindex   int
	MAC       net.HardwareAddr
	Status    uint16
	TimedOut  bool
	ReqIEs    []byte
	RespIEs   []byte
	Reason    uint16
}

// ParseEventCommon extracts EventCommon from an MLME multicast notification.
func ParseEventCommon(msg genetlink.Message) (EventCommon, error) {
	var ev EventCommon

	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return ev, err
	}

	for ad.Next() {
		switch ad.Type() {
		case unix.NL80211_ATTR_IFINDEX:
			ev.Ifindex = int(ad.Uint32())
		case unix.NL80211_ATTR_MAC:
			ev.MAC = net.HardwareAddr(append([]byte(nil), ad.Bytes()...))
		case unix.NL80211_ATTR_STATUS_CODE:
			ev.Status = ad.Uint16()
		case unix.NL80211_ATTR_TIMED_OUT:
			ev.TimedOut = true
		case unix.NL80211_ATTR_REQ_IE:
			ev.ReqIEs = ad.Bytes()
		case unix.NL80211_ATTR_RESP_IE:
			ev.RespIEs = ad.Bytes()
		case unix.NL80211_ATTR_REASON_CODE:
			ev.Reason = ad.Uint16()
		}
	}
	return ev, ad.Err()
}

// InterfaceEvent is the subset of attributes carried by an
// NL80211_CMD_NEW_INTERFACE/DEL_INTERFACE notification on the "config"
// multicast group.
type InterfaceEvent struct {
	Ifindex int
	Name    string
	IfType  uint32
}

// ParseInterfaceEvent extracts InterfaceEvent from a config-group
// notification.
func ParseInterfaceEvent(msg genetlink.Message) (InterfaceEvent, error) {
	var ev InterfaceEvent

	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return ev, err
	}

	for ad.Next() {
		switch ad.Type() {
		case unix.NL80211_ATTR_IFINDEX:
			ev.Ifindex = int(ad.Uint32())
		case unix.NL80211_ATTR_IFNAME:
			ev.Name = ad.String()
		case unix.NL80211_ATTR_IFTYPE:
			ev.IfType = ad.Uint32()
		}
	}
	return ev, ad.Err()
}
