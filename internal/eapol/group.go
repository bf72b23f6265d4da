package eapol

import (
	"time"

	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/wpacrypto"
)

// The Group Key Handshake rekeys the GTK/IGTK after the 4-Way Handshake has
// completed, reusing the same PTK, MIC algorithm and replay-counter space
// (spec §4.5's supplemented Group Key Handshake). It's a 2-message exchange:
// the authenticator pushes the new GTK, the supplicant acknowledges it.

// GroupState is the Group Key Handshake's progress.
type GroupState int

const (
	GroupIdle GroupState = iota
	GroupMsg1Sent
	GroupComplete
	GroupFailed
)

// GroupAuthenticator drives the authenticator side of a GTK/IGTK rekey. It
// shares the parent Handshake (and therefore the PTK) with the 4-Way
// Handshake that established it.
type GroupAuthenticator struct {
	hs *handshake.Handshake

	state   GroupState
	replay  uint64
	retries int

	maxRetries    int
	retryInterval time.Duration

	lastSent   []byte
	lastSentAt time.Time
}

// NewGroupAuthenticator creates a GroupAuthenticator. lastReplay is the last
// replay counter value used by the 4-Way Handshake (or a prior Group Key
// Handshake) on this PTK; it continues counting up from there.
func NewGroupAuthenticator(hs *handshake.Handshake, lastReplay uint64) *GroupAuthenticator {
	return &GroupAuthenticator{
		hs:            hs,
		replay:        lastReplay,
		maxRetries:    DefaultMaxRetries,
		retryInterval: DefaultRetryInterval,
	}
}

// Start builds Group Msg1 carrying a freshly wrapped GTK (and, if igtk is
// non-nil, an IGTK KDE alongside it).
func (g *GroupAuthenticator) Start(gtkKeyID int, gtk []byte, gtkRSC [6]byte, igtkKeyID uint16, igtk []byte, ipn [6]byte) ([]byte, error) {
	if g.state != GroupIdle {
		return nil, ErrUnexpectedMessage
	}
	if g.hs.PTK() == nil {
		return nil, ErrUnexpectedMessage
	}

	wrappedGTK, err := wpacrypto.KeyWrap(g.hs.PTK().KEK, gtk)
	if err != nil {
		return nil, err
	}
	keyData := BuildGTKKDE(gtkKeyID, true, wrappedGTK)

	if igtk != nil {
		wrappedIGTK, err := wpacrypto.KeyWrap(g.hs.PTK().KEK, igtk)
		if err != nil {
			return nil, err
		}
		keyData = append(keyData, BuildIGTKKDE(igtkKeyID, ipn, wrappedIGTK)...)
	}

	g.replay++
	msg1 := &Frame{
		KeyInfo:       descriptorVersion(g.hs.AKM()) | KeyInfoKeyACK | KeyInfoKeyMIC | KeyInfoSecure | KeyInfoEncryptedKeyData,
		ReplayCounter: g.replay,
		KeyData:       keyData,
	}
	mic, err := g.hs.MIC(BuildForMIC(msg1))
	if err != nil {
		return nil, err
	}
	copy(msg1.MIC[:], mic)

	b := Build(msg1)
	g.lastSent = b
	g.lastSentAt = time.Now()
	g.state = GroupMsg1Sent

	g.hs.InstallGTK(gtkKeyID, gtk, gtkRSC)
	if igtk != nil {
		g.hs.InstallIGTK(int(igtkKeyID), igtk, ipn)
	}

	return b, nil
}

// HandleMsg2 processes the supplicant's acknowledgment.
func (g *GroupAuthenticator) HandleMsg2(f *Frame) (done bool, err error) {
	if g.state != GroupMsg1Sent {
		return false, ErrUnexpectedMessage
	}
	if f.ReplayCounter != g.replay {
		return false, ErrStaleReplayCounter
	}

	check := *f
	check.MIC = [16]byte{}
	mic := f.MIC
	ok, err := g.hs.VerifyMIC(Build(&check), mic[:])
	if err != nil {
		return false, err
	}
	if !ok {
		g.state = GroupFailed
		return false, ErrMICVerification
	}

	g.state = GroupComplete
	return true, nil
}

// Retransmit resends Msg1 if the retry interval has elapsed.
func (g *GroupAuthenticator) Retransmit(now time.Time) (frame []byte, ok bool) {
	if g.state != GroupMsg1Sent {
		return nil, true
	}
	if now.Sub(g.lastSentAt) < g.retryInterval {
		return nil, true
	}
	g.retries++
	if g.retries > g.maxRetries {
		g.state = GroupFailed
		return nil, false
	}
	g.lastSentAt = now
	return g.lastSent, true
}

// LastReplay returns the replay counter value used by this exchange, so a
// subsequent Group Key Handshake (or a teardown that needs to report the
// final counter for rekey offload) can continue from it.
func (g *GroupAuthenticator) LastReplay() uint64 { return g.replay }

// GroupSupplicant drives the supplicant side of a GTK/IGTK rekey.
type GroupSupplicant struct {
	hs *handshake.Handshake
}

// NewGroupSupplicant creates a GroupSupplicant bound to hs.
func NewGroupSupplicant(hs *handshake.Handshake) *GroupSupplicant {
	return &GroupSupplicant{hs: hs}
}

// HandleMsg1 verifies and installs the pushed GTK/IGTK, returning Msg2.
func (s *GroupSupplicant) HandleMsg1(f *Frame) ([]byte, error) {
	check := *f
	check.MIC = [16]byte{}
	mic := f.MIC
	ok, err := s.hs.VerifyMIC(Build(&check), mic[:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMICVerification
	}

	kd, err := ParseKeyData(f.KeyData)
	if err != nil {
		return nil, err
	}
	if kd.GTK != nil {
		gtk, err := wpacrypto.KeyUnwrap(s.hs.PTK().KEK, kd.GTK.Key)
		if err != nil {
			return nil, err
		}
		var rsc [6]byte
		copy(rsc[:], f.RSC[:6])
		s.hs.InstallGTK(kd.GTK.KeyID, gtk, rsc)
	}
	if kd.IGTK != nil {
		igtk, err := wpacrypto.KeyUnwrap(s.hs.PTK().KEK, kd.IGTK.Key)
		if err != nil {
			return nil, err
		}
		s.hs.InstallIGTK(int(kd.IGTK.KeyID), igtk, kd.IGTK.IPN)
	}

	msg2 := &Frame{
		KeyInfo:       descriptorVersion(s.hs.AKM()) | KeyInfoKeyMIC | KeyInfoSecure,
		ReplayCounter: f.ReplayCounter,
	}
	mic2, err := s.hs.MIC(BuildForMIC(msg2))
	if err != nil {
		return nil, err
	}
	copy(msg2.MIC[:], mic2)
	return Build(msg2), nil
}
