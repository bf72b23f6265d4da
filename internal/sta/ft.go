package sta

import (
	"errors"
	"fmt"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"github.com/mdlayher/wind/internal/ie"
)

// ErrNotOperational is returned when an FT transition is requested outside
// of the Operational state.
var ErrNotOperational = errors.New("sta: FT transition requires an operational link")

// ErrMobilityDomainMismatch is returned when the target BSS's MDID doesn't
// match the current one; FT only applies within one mobility domain.
var ErrMobilityDomainMismatch = errors.New("sta: target BSS is outside the current mobility domain")

// ftTarget holds the state an in-flight FT transition needs between the
// Authenticate and Reassociate steps.
type ftTarget struct {
	bss    BSS
	mdid   uint16
	r0khID []byte
	r1khID []byte
}

// TransitionFT begins a Fast BSS Transition to target, per spec §4.6's FT
// path: it saves the current SNonce, generates a fresh one, and sends an FT
// Authenticate Request carrying PMK-R0-Name as the sole PMKID.
func (c *Conn) TransitionFT(target BSS, r0khID, r1khID []byte) error {
	if c.state != Operational {
		return ErrNotOperational
	}
	if c.bss.MDE == nil || target.MDE == nil {
		return ErrMobilityDomainMismatch
	}
	curMDE, err := ie.ParseMDE(c.bss.MDE[2:])
	if err != nil {
		return err
	}
	targetMDE, err := ie.ParseMDE(target.MDE[2:])
	if err != nil {
		return err
	}
	if curMDE.MDID != targetMDE.MDID {
		return ErrMobilityDomainMismatch
	}

	c.hs.UnfreezeForFT()

	if err := c.hs.DerivePMKR0(curMDE.MDID, r0khID); err != nil {
		return err
	}
	if err := c.hs.DerivePMKR1(r1khID); err != nil {
		return err
	}

	if err := c.hs.NewSNonce(); err != nil {
		return err
	}

	c.ft = &ftTarget{bss: target, mdid: curMDE.MDID, r0khID: r0khID, r1khID: r1khID}

	snonce, _ := c.hs.SNonce()
	rsne := ie.Build(ie.TagRSN, ie.BuildRSNE(&ie.RSNE{
		Version:      1,
		GroupCipher:  ie.CipherCCMP,
		PairwiseList: []ie.Cipher{ie.CipherCCMP},
		AKMList:      []ie.AKM{ie.AKMFTPSK},
		PMKIDs:       [][16]byte{pmkidFromName(c.hs.PMKR0Name())},
	}))

	fte := ie.Build(ie.TagFastTransition, ie.BuildFTE(&ie.FTE{
		SNonce: snonce,
		R0KHID: r0khID,
	}))

	authIEs := append(append([]byte(nil), rsne...), c.bss.MDE...)
	authIEs = append(authIEs, fte...)

	c.state = FTAuthenticating

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(c.ifindex))
	ae.Bytes(unix.NL80211_ATTR_MAC, target.BSSID)
	ae.Uint32(unix.NL80211_ATTR_AUTH_TYPE, authTypeFT)
	ae.Bytes(unix.NL80211_ATTR_IE, authIEs)

	_, err = c.nlc.Send(unix.NL80211_CMD_AUTHENTICATE, netlink.Acknowledge, ae, func(_ []genetlink.Message, err error) {
		if err != nil {
			c.deauthAndFail(fmt.Errorf("%w: %v", ErrAuthenticationFailed, err))
		}
	})
	return err
}

const authTypeFT = 2 // NL80211_AUTHTYPE_FT

// HandleFTAuthenticateEvent processes the kernel's AUTHENTICATE event during
// an FT transition: it parses the target's echoed RSNE/MDE/FTE, derives the
// PTK directly from PMK-R1 (no 4-Way Handshake), and sends the Reassociate
// Request with the full FT IE trio.
func (c *Conn) HandleFTAuthenticateEvent(status uint16, responseIEs []byte) {
	if c.state != FTAuthenticating || c.ft == nil {
		return
	}
	if status != 0 {
		c.deauthAndFail(fmt.Errorf("%w: FT authenticate status %d", ErrAuthenticationFailed, status))
		return
	}

	els, err := ie.All(responseIEs)
	if err != nil {
		c.deauthAndFail(fmt.Errorf("%w: %v", ErrAuthenticationFailed, err))
		return
	}
	mdeEl, ok := ie.Find(els, ie.TagMobilityDomain)
	if !ok || !ie.MDEBytesEqual(mdeEl.Data, c.bss.MDE[2:]) {
		c.deauthAndFail(fmt.Errorf("%w: FT MDE echo mismatch", ErrAuthenticationFailed))
		return
	}
	fteEl, ok := ie.Find(els, ie.TagFastTransition)
	if !ok {
		c.deauthAndFail(fmt.Errorf("%w: missing FTE in FT authenticate response", ErrAuthenticationFailed))
		return
	}
	fte, err := ie.ParseFTE(fteEl.Data)
	if err != nil {
		c.deauthAndFail(fmt.Errorf("%w: %v", ErrAuthenticationFailed, err))
		return
	}

	if err := c.hs.SetANonce(fte.ANonce); err != nil {
		c.deauthAndFail(err)
		return
	}
	if err := c.hs.UsePMKR1AsPMK(); err != nil {
		c.deauthAndFail(err)
		return
	}
	if err := c.hs.DerivePTK(); err != nil {
		c.deauthAndFail(fmt.Errorf("%w: %v", ErrAuthenticationFailed, err))
		return
	}

	snonce, _ := c.hs.SNonce()
	anonce, _ := c.hs.ANonce()
	reassocFTE := ie.Build(ie.TagFastTransition, ie.BuildFTE(&ie.FTE{
		ANonce: anonce,
		SNonce: snonce,
		R0KHID: c.ft.r0khID,
		R1KHID: c.ft.r1khID,
	}))

	rsne := ie.Build(ie.TagRSN, ie.BuildRSNE(&ie.RSNE{
		Version:      1,
		GroupCipher:  ie.CipherCCMP,
		PairwiseList: []ie.Cipher{ie.CipherCCMP},
		AKMList:      []ie.AKM{ie.AKMFTPSK},
		PMKIDs:       [][16]byte{pmkidFromName(c.hs.PMKR0Name())},
	}))

	// FTE MIC is computed over the five elements specified by IEEE
	// 802.11-2016 §13.8.4: MDE, FTE (zeroed MIC), RSNE, and the (re)assoc
	// request/response frame bodies are folded in by the kernel when it
	// builds the final frame; at this layer we compute it over the IE
	// trio the kernel will embed verbatim.
	micInput := append(append(append([]byte(nil), c.bss.MDE...), reassocFTE...), rsne...)
	mic, err := c.hs.MIC(micInput)
	if err != nil {
		c.deauthAndFail(err)
		return
	}
	fteWithMIC := append([]byte(nil), reassocFTE...)
	copy(fteWithMIC[4:20], mic) // tag(1) + length(1) + MIC-control(1) + MIC-count(1), then 16-byte MIC

	reassocIEs := append(append(append([]byte(nil), rsne...), c.bss.MDE...), fteWithMIC...)

	c.state = FTReassociating
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(c.ifindex))
	ae.Bytes(unix.NL80211_ATTR_MAC, c.ft.bss.BSSID)
	ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, c.ft.bss.Frequency)
	ae.Bytes(unix.NL80211_ATTR_IE, reassocIEs)

	if _, err := c.nlc.Send(unix.NL80211_CMD_ASSOCIATE, netlink.Acknowledge, ae, func(_ []genetlink.Message, err error) {
		if err != nil {
			c.deauthAndFail(fmt.Errorf("%w: %v", ErrAssociationFailed, err))
		}
	}); err != nil {
		c.deauthAndFail(err)
	}
}

// HandleFTAssociateEvent processes the kernel's ASSOCIATE event concluding
// an FT reassociation: on success it installs the PTK with no 4-Way
// Handshake, the whole point of FT (spec §4.6).
func (c *Conn) HandleFTAssociateEvent(status uint16) {
	if c.state != FTReassociating {
		return
	}
	if status != 0 {
		c.deauthAndFail(fmt.Errorf("%w: FT reassociate status %d", ErrAssociationFailed, status))
		return
	}

	c.bss = c.ft.bss
	c.ft = nil

	if err := c.hs.InstallPTK(); err != nil {
		c.failKeySetting(err)
		return
	}
	c.finishKeySetup()
}

// pmkidFromName truncates a 16-byte PMK-Name to use as the sole PMKID in an
// FT RSNE, per IEEE 802.11-2016 §13.5.
func pmkidFromName(name []byte) [16]byte {
	var pmkid [16]byte
	copy(pmkid[:], name)
	return pmkid
}
