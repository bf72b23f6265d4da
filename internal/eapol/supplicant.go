package eapol

import (
	"time"

	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/ie"
	"github.com/mdlayher/wind/internal/wpacrypto"
)

// SuppState is the 4-Way Handshake supplicant's progress.
type SuppState int

const (
	SuppIdle SuppState = iota
	SuppWaitMsg1
	SuppWaitMsg3
	SuppComplete
	SuppFailed
)

// Supplicant drives the supplicant side of the 4-Way Handshake: a STA
// connecting to an infrastructure BSS, or an AP's peer in the rare case of
// mesh-style mutual authentication (unused by this daemon but kept generic
// per spec §4.5's role split).
type Supplicant struct {
	hs *handshake.Handshake

	state SuppState

	lastProcessedReplay uint64
	haveProcessed        bool
	lastSent             []byte

	gtkInstalled bool
}

// NewSupplicant creates a Supplicant bound to hs, which must already have
// its PMK, addresses and own IE set.
func NewSupplicant(hs *handshake.Handshake) *Supplicant {
	return &Supplicant{hs: hs, state: SuppWaitMsg1}
}

// State returns the supplicant's current state.
func (s *Supplicant) State() SuppState { return s.state }

// HandleMessage processes a received Msg1 or Msg3 frame and returns the
// reply to send. done is true once Msg3 has been accepted, when the reply
// is Msg4; a retransmitted Msg3 with the same replay counter gets the same
// Msg4 again, also with done=true.
func (s *Supplicant) HandleMessage(f *Frame) (reply []byte, done bool, err error) {
	switch s.state {
	case SuppWaitMsg1:
		return s.handleMsg1(f)
	case SuppWaitMsg3:
		return s.handleMsg3(f)
	case SuppComplete:
		if f.ReplayCounter == s.lastProcessedReplay {
			return s.handleMsg3(f)
		}
		return nil, false, ErrUnexpectedMessage
	default:
		return nil, false, ErrUnexpectedMessage
	}
}

func (s *Supplicant) handleMsg1(f *Frame) ([]byte, bool, error) {
	if err := s.hs.SetANonce(f.Nonce); err != nil {
		return nil, false, err
	}
	if err := s.hs.NewSNonce(); err != nil {
		return nil, false, err
	}
	if err := s.hs.DerivePTK(); err != nil {
		return nil, false, err
	}

	snonce, _ := s.hs.SNonce()
	msg2 := &Frame{
		KeyInfo:       descriptorVersion(s.hs.AKM()) | KeyInfoKeyType | KeyInfoKeyMIC,
		KeyLength:     f.KeyLength,
		ReplayCounter: f.ReplayCounter,
		Nonce:         snonce,
		KeyData:       BuildRSNInKeyData(ie.Build(ie.TagRSN, s.hs.OwnIE())),
	}
	mic, err := s.hs.MIC(BuildForMIC(msg2))
	if err != nil {
		return nil, false, err
	}
	copy(msg2.MIC[:], mic)

	b := Build(msg2)
	s.lastSent = b
	s.lastProcessedReplay = f.ReplayCounter
	s.haveProcessed = true
	s.state = SuppWaitMsg3
	return b, false, nil
}

func (s *Supplicant) handleMsg3(f *Frame) ([]byte, bool, error) {
	if s.haveProcessed && f.ReplayCounter == s.lastProcessedReplay && s.gtkInstalled {
		// Idempotent retransmit: the authenticator didn't see our Msg4, so
		// it resent Msg3 with the same counter. Reply again without
		// rederiving or reinstalling anything.
		return s.lastSent, true, nil
	}
	if f.ReplayCounter <= s.lastProcessedReplay {
		return nil, false, ErrStaleReplayCounter
	}

	check := *f
	check.MIC = [16]byte{}
	mic := f.MIC
	ok, err := s.hs.VerifyMIC(Build(&check), mic[:])
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.state = SuppFailed
		return nil, false, ErrMICVerification
	}

	kd, err := ParseKeyData(f.KeyData)
	if err != nil {
		return nil, false, err
	}
	if kd.RSNE != nil && !handshake.UtilAPIEMatches(kd.RSNE, s.hs.APIE(), true) {
		s.state = SuppFailed
		return nil, false, ErrIEMismatch
	}

	if err := s.hs.InstallPTK(); err != nil {
		return nil, false, err
	}

	if kd.GTK != nil {
		gtk, err := wpacrypto.KeyUnwrap(s.hs.PTK().KEK, kd.GTK.Key)
		if err != nil {
			return nil, false, err
		}
		var rsc [6]byte
		copy(rsc[:], f.RSC[:6])
		s.hs.InstallGTK(kd.GTK.KeyID, gtk, rsc)
	}
	if kd.IGTK != nil {
		igtk, err := wpacrypto.KeyUnwrap(s.hs.PTK().KEK, kd.IGTK.Key)
		if err != nil {
			return nil, false, err
		}
		s.hs.InstallIGTK(int(kd.IGTK.KeyID), igtk, kd.IGTK.IPN)
	}
	s.gtkInstalled = true

	msg4 := &Frame{
		KeyInfo:       descriptorVersion(s.hs.AKM()) | KeyInfoKeyType | KeyInfoKeyMIC | KeyInfoSecure,
		KeyLength:     f.KeyLength,
		ReplayCounter: f.ReplayCounter,
	}
	mic4, err := s.hs.MIC(BuildForMIC(msg4))
	if err != nil {
		return nil, false, err
	}
	copy(msg4.MIC[:], mic4)

	b := Build(msg4)
	s.lastSent = b
	s.lastProcessedReplay = f.ReplayCounter
	s.state = SuppComplete
	return b, true, nil
}

// DeadlineExceeded reports whether waiting since sentAt has exceeded the
// default 4-Way Handshake timeout without a reply, signaling the STA FSM to
// tear the connection down with Reason4WayHandshakeTimeout.
func DeadlineExceeded(sentAt time.Time, now time.Time) bool {
	return now.Sub(sentAt) > DefaultRetryInterval*time.Duration(DefaultMaxRetries+1)
}
