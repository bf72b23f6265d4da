// Package handshake holds the per-association key ladder described in spec
// §4.4: own/peer IEs, addresses, PMK, the derived PTK and FT PMK-R0/R1
// hierarchy, nonces, and the installed GTK/IGTK. It is pure data plus small
// derivation helpers — the EAPoL engine and STA/AP FSMs drive it, but it
// owns no netlink or timer state of its own.
package handshake

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"

	"github.com/mdlayher/wind/internal/ie"
	"github.com/mdlayher/wind/internal/wpacrypto"
)

// ErrFrozen is returned by every state-changing operation once InstallPTK
// has succeeded; per spec §4.4 the handshake is frozen at that point.
var ErrFrozen = errors.New("handshake: already installed, state is frozen")

// GTK is an installed group temporal key: its key index, raw bytes, and the
// receive sequence counter the kernel should start from.
type GTK struct {
	Index int
	Key   []byte
	RSC   [6]byte
}

// IGTK is an installed integrity group temporal key for management frame
// protection, analogous to GTK but keyed by IPN instead of RSC.
type IGTK struct {
	Index int
	Key   []byte
	IPN   [6]byte
}

// Handshake is the key ladder for one (supplicant, authenticator) pair,
// exclusively owned by its Connection (STA role) or Station (AP role).
type Handshake struct {
	ownIE []byte
	apIE  []byte

	ssid []byte
	aa   net.HardwareAddr
	spa  net.HardwareAddr

	akm ie.AKM

	pmk    []byte
	pmkSet bool

	anonce [32]byte
	snonce [32]byte
	haveANonce bool
	haveSNonce bool

	mde []byte
	fte []byte

	// FT key hierarchy.
	inFT        bool
	pmkR0       []byte
	pmkR0Name   []byte
	pmkR1       []byte
	pmkR1Name   []byte
	r0khID      []byte
	r1khID      []byte

	ptk         *wpacrypto.PTK
	ptkComplete bool

	gtk  *GTK
	igtk *IGTK

	tkLen int
}

// New creates an empty Handshake for the given AKM and pairwise-cipher
// temporal-key length (16 for CCMP/GCMP-128, 32 for GCMP-256/CCMP-256).
func New(akm ie.AKM, tkLen int) *Handshake {
	return &Handshake{akm: akm, tkLen: tkLen}
}

// SetPMK records the 32-byte PMK. Takes ownership of pmk; the caller must
// not reuse or zero it afterward except via the Handshake's own teardown.
func (h *Handshake) SetPMK(pmk []byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.pmk = pmk
	h.pmkSet = true
	return nil
}

// SetAuthenticatorAddress records the BSSID/AA used in PTK derivation.
func (h *Handshake) SetAuthenticatorAddress(aa net.HardwareAddr) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.aa = aa
	return nil
}

// SetSupplicantAddress records the STA's own address used in PTK
// derivation.
func (h *Handshake) SetSupplicantAddress(spa net.HardwareAddr) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.spa = spa
	return nil
}

// SetOwnIE records the raw RSNE/WPA-IE bytes this side advertised (the
// association request's RSNE on the STA side, or the beacon's on the AP
// side), used later for MIC input and Msg2/Msg3 RSNE-equality checks.
func (h *Handshake) SetOwnIE(b []byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.ownIE = append([]byte(nil), b...)
	return nil
}

// SetAPIE records the raw RSNE/WPA-IE bytes the AP advertised (the beacon's
// RSNE on the STA side), used by the supplicant to validate Msg3 (spec §4.5,
// §8 property 5).
func (h *Handshake) SetAPIE(b []byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.apIE = append([]byte(nil), b...)
	return nil
}

// SetSSID records the SSID used by the FT key hierarchy's PMK-R0
// derivation.
func (h *Handshake) SetSSID(ssid []byte) {
	h.ssid = append([]byte(nil), ssid...)
}

// SetMDE records the raw Mobility Domain Element bytes to echo verbatim in
// FT frames (spec §8 property 4).
func (h *Handshake) SetMDE(b []byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.mde = append([]byte(nil), b...)
	return nil
}

// SetFTE records the raw Fast BSS Transition element bytes most recently
// exchanged.
func (h *Handshake) SetFTE(b []byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.fte = append([]byte(nil), b...)
	return nil
}

// OwnIE, APIE, MDE and FTE return the last recorded raw element bytes.
func (h *Handshake) OwnIE() []byte { return h.ownIE }
func (h *Handshake) APIE() []byte  { return h.apIE }
func (h *Handshake) MDE() []byte   { return h.mde }
func (h *Handshake) FTE() []byte   { return h.fte }

// AKM returns the negotiated AKM suite driving this handshake's KDF choice.
func (h *Handshake) AKM() ie.AKM { return h.akm }

// ANonce/SNonce return the currently recorded nonces and whether each has
// been set.
func (h *Handshake) ANonce() ([32]byte, bool) { return h.anonce, h.haveANonce }
func (h *Handshake) SNonce() ([32]byte, bool) { return h.snonce, h.haveSNonce }

// SetANonce records a peer-supplied ANonce (supplicant role, on Msg1; or FT
// authenticate response).
func (h *Handshake) SetANonce(n [32]byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.anonce = n
	h.haveANonce = true
	return nil
}

// NewANonce generates a fresh CSPRNG ANonce (authenticator role, before
// Msg1).
func (h *Handshake) NewANonce() error {
	if h.ptkComplete {
		return ErrFrozen
	}
	if _, err := rand.Read(h.anonce[:]); err != nil {
		return fmt.Errorf("handshake: generate ANonce: %w", err)
	}
	h.haveANonce = true
	return nil
}

// NewSNonce generates a fresh CSPRNG SNonce (spec §4.4's new_snonce).
// Called by the supplicant before Msg2, and again by the STA FSM when
// starting an FT transition (spec §4.6 saves the old SNonce implicitly by
// having the caller read SNonce() first).
func (h *Handshake) NewSNonce() error {
	if h.ptkComplete {
		return ErrFrozen
	}
	if _, err := rand.Read(h.snonce[:]); err != nil {
		return fmt.Errorf("handshake: generate SNonce: %w", err)
	}
	h.haveSNonce = true
	return nil
}

// SetSNonce records a peer-supplied SNonce (authenticator role, on Msg2).
func (h *Handshake) SetSNonce(n [32]byte) error {
	if h.ptkComplete {
		return ErrFrozen
	}
	h.snonce = n
	h.haveSNonce = true
	return nil
}

// DerivePTK derives the PTK from the PMK, addresses and nonces recorded so
// far. Both nonces and both addresses must already be set.
func (h *Handshake) DerivePTK() error {
	if h.ptkComplete {
		return ErrFrozen
	}
	if !h.pmkSet || !h.haveANonce || !h.haveSNonce {
		return errors.New("handshake: DerivePTK called before PMK/nonces are set")
	}
	if h.aa == nil || h.spa == nil {
		return errors.New("handshake: DerivePTK called before addresses are set")
	}

	ptk, err := wpacrypto.DerivePTK(h.akm, h.pmk, h.aa, h.spa, h.anonce[:], h.snonce[:], h.tkLen)
	if err != nil {
		return err
	}
	h.ptk = ptk
	return nil
}

// PTK returns the derived PTK, or nil if DerivePTK hasn't run yet.
func (h *Handshake) PTK() *wpacrypto.PTK { return h.ptk }

// MIC computes the Key MIC over b using the derived KCK.
func (h *Handshake) MIC(b []byte) ([]byte, error) {
	if h.ptk == nil {
		return nil, errors.New("handshake: MIC requested before DerivePTK")
	}
	return wpacrypto.MIC(h.akm, h.ptk.KCK, b), nil
}

// VerifyMIC checks a peer-supplied MIC over b using the derived KCK.
func (h *Handshake) VerifyMIC(b, mic []byte) (bool, error) {
	if h.ptk == nil {
		return false, errors.New("handshake: VerifyMIC requested before DerivePTK")
	}
	return wpacrypto.VerifyMIC(h.akm, h.ptk.KCK, b, mic), nil
}

// InstallPTK freezes the handshake: once this returns nil, every other
// state-changing operation returns ErrFrozen (spec §4.4's invariant). It
// does not itself talk to the kernel — the FSM issues NEW_KEY/SET_KEY after
// this succeeds.
func (h *Handshake) InstallPTK() error {
	if h.ptk == nil {
		return errors.New("handshake: InstallPTK called before DerivePTK")
	}
	if h.ptkComplete {
		return ErrFrozen
	}
	h.ptkComplete = true
	return nil
}

// PTKInstalled reports whether InstallPTK has already succeeded.
func (h *Handshake) PTKInstalled() bool { return h.ptkComplete }

// UnfreezeForFT lifts the freeze ahead of a Fast BSS Transition: the
// existing PMK/PMK-R0 hierarchy and addresses carry over to the new
// association, but a fresh PTK must be derivable from a new SNonce/ANonce
// pair. It clears the stale PTK and GTK/IGTK so finishKeySetup reinstalls
// them from the FT exchange.
func (h *Handshake) UnfreezeForFT() {
	h.ptkComplete = false
	h.ptk = nil
	h.gtk = nil
	h.igtk = nil
	h.haveANonce = false
	h.haveSNonce = false
}

// InstallGTK records the group key delivered alongside PTK installation (or
// during a later Group Key Handshake rekey, which is allowed even after
// freeze since it doesn't touch the PTK).
func (h *Handshake) InstallGTK(index int, key []byte, rsc [6]byte) {
	h.gtk = &GTK{Index: index, Key: append([]byte(nil), key...), RSC: rsc}
}

// InstallIGTK records the management-frame-protection group key, analogous
// to InstallGTK.
func (h *Handshake) InstallIGTK(index int, key []byte, ipn [6]byte) {
	h.igtk = &IGTK{Index: index, Key: append([]byte(nil), key...), IPN: ipn}
}

// GTK/IGTK return the most recently installed group keys, or nil.
func (h *Handshake) GTK() *GTK   { return h.gtk }
func (h *Handshake) IGTK() *IGTK { return h.igtk }

// SetInFT marks this handshake as participating in an FT initial mobility
// domain association, per spec §3's Connection.in_ft flag.
func (h *Handshake) SetInFT(v bool) { h.inFT = v }

// InFT reports whether SetInFT(true) was called.
func (h *Handshake) InFT() bool { return h.inFT }

// DerivePMKR0 computes PMK-R0/PMK-R0-Name for the FT key hierarchy from the
// current PMK (used as XXKey), SSID, MDID, R0KH-ID and the STA's own
// address (S0KH-ID), per spec §4.6.
func (h *Handshake) DerivePMKR0(mdid uint16, r0khID []byte) error {
	if !h.pmkSet {
		return errors.New("handshake: DerivePMKR0 called before PMK is set")
	}
	h.r0khID = append([]byte(nil), r0khID...)
	h.pmkR0, h.pmkR0Name = wpacrypto.DerivePMKR0(h.pmk, h.ssid, mdid, h.r0khID, h.spa)
	return nil
}

// DerivePMKR1 computes PMK-R1/PMK-R1-Name from the already-derived PMK-R0,
// the target's R1KH-ID, and the STA's own address (S1KH-ID).
func (h *Handshake) DerivePMKR1(r1khID []byte) error {
	if h.pmkR0 == nil {
		return errors.New("handshake: DerivePMKR1 called before DerivePMKR0")
	}
	h.r1khID = append([]byte(nil), r1khID...)
	h.pmkR1, h.pmkR1Name = wpacrypto.DerivePMKR1(h.pmkR0, h.r1khID, h.spa)
	return nil
}

// PMKR0Name/PMKR1Name return the FT key-hierarchy names computed so far, or
// nil if not yet derived.
func (h *Handshake) PMKR0Name() []byte { return h.pmkR0Name }
func (h *Handshake) PMKR1Name() []byte { return h.pmkR1Name }

// PMKR1 returns the derived PMK-R1, used in place of the ordinary PMK when
// DerivePTK runs on the FT reassociation path.
func (h *Handshake) PMKR1() []byte { return h.pmkR1 }

// UsePMKR1AsPMK switches DerivePTK's input to the FT PMK-R1 instead of the
// original PMK, as required once the FT authenticate exchange completes and
// the STA proceeds straight to PTK derivation with no 4-Way Handshake.
func (h *Handshake) UsePMKR1AsPMK() error {
	if h.pmkR1 == nil {
		return errors.New("handshake: UsePMKR1AsPMK called before DerivePMKR1")
	}
	return h.SetPMK(append([]byte(nil), h.pmkR1...))
}

// UtilAPIEMatches compares two data-only RSNE blobs for semantic equality,
// optionally tolerating PMKID list differences (spec §4.4's
// util_ap_ie_matches). Legacy WPA1 vendor IEs are not parsed and never
// match.
func UtilAPIEMatches(a, b []byte, ignorePMKIDs bool) bool {
	return ie.IEsMatch(a, b, ie.MatchOptions{IgnorePMKIDs: ignorePMKIDs})
}

// SecureErase overwrites every key-material buffer held by the handshake
// with zeros before the Handshake is discarded, per spec §4.4's
// zeroization requirement and the testable property in spec §8 (PMK
// zeroization). Safe to call multiple times and on a partially-populated
// Handshake.
func (h *Handshake) SecureErase() {
	wpacrypto.Zero(h.pmk)
	wpacrypto.Zero(h.anonce[:])
	wpacrypto.Zero(h.snonce[:])
	wpacrypto.Zero(h.pmkR0)
	wpacrypto.Zero(h.pmkR1)

	if h.ptk != nil {
		wpacrypto.Zero(h.ptk.KCK)
		wpacrypto.Zero(h.ptk.KEK)
		wpacrypto.Zero(h.ptk.TK)
	}
	if h.gtk != nil {
		wpacrypto.Zero(h.gtk.Key)
	}
	if h.igtk != nil {
		wpacrypto.Zero(h.igtk.Key)
	}

	h.pmk = nil
	h.pmkSet = false
	h.ptk = nil
	h.ptkComplete = false
	h.gtk = nil
	h.igtk = nil
}
