package ap

import (
	"net"

	"github.com/mdlayher/wind/internal/eapol"
	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/ie"
)

// StationState is a client's position in the spec §4.7 per-station state
// machine.
type StationState int

const (
	StationNone StationState = iota
	StationAuthenticated
	StationAssociated
	StationRsna
)

func (s StationState) String() string {
	switch s {
	case StationNone:
		return "None"
	case StationAuthenticated:
		return "Authenticated"
	case StationAssociated:
		return "Associated"
	case StationRsna:
		return "Rsna"
	default:
		return "Unknown"
	}
}

// Station is one client's association record, owned exclusively by the AP
// it's associated to. It outlives a single Authentication/Association
// exchange for as long as the client stays associated.
type Station struct {
	MAC            net.HardwareAddr
	AID            uint16
	Capability     uint16
	ListenInterval uint16
	Rates          []ie.Rate
	State          StationState

	// AssocIEs is the (Re)Association Request's IE section, retained
	// verbatim for the life of the client (spec §3's Station record).
	AssocIEs []byte
	RSNE     []byte

	hs   *handshake.Handshake
	auth *eapol.Authenticator

	// wsc is set for a client associated under WSC-PBC enrollment; such a
	// station never enters StationRsna since the credential is delivered
	// directly in the Association Response rather than through a 4-Way
	// Handshake.
	wsc bool
}

// secureErase zeroizes the station's key material, per spec §9's mandatory
// explicit teardown step.
func (s *Station) secureErase() {
	if s.hs != nil {
		s.hs.SecureErase()
	}
}
