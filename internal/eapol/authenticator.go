package eapol

import (
	"errors"
	"time"

	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/ie"
	"github.com/mdlayher/wind/internal/wpacrypto"
)

// AuthState is the 4-Way Handshake authenticator's progress.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthMsg1Sent
	AuthMsg3Sent
	AuthComplete
	AuthFailed
)

// DefaultRetryInterval and DefaultMaxRetries match the 1-second retransmit
// timer and 3-retry cap common to 802.11 4-Way Handshake implementations.
const (
	DefaultRetryInterval = 1 * time.Second
	DefaultMaxRetries    = 3
)

// MaxRetries is the retransmit cap new Authenticators pick up by default;
// cmd/windd sets it once at startup from --eapol-retries. Per-Authenticator
// callers that need a different value still have SetMaxRetries.
var MaxRetries = DefaultMaxRetries

// ErrHandshakeFailed is returned once the retry budget is exhausted without
// a valid response, or a peer MIC fails to verify.
var ErrHandshakeFailed = errors.New("eapol: handshake failed")

// ErrUnexpectedMessage is returned when a frame arrives that the state
// machine isn't currently expecting.
var ErrUnexpectedMessage = errors.New("eapol: unexpected message for current state")

// ErrStaleReplayCounter is returned when a received frame's replay counter
// doesn't match what's expected for either a fresh reply or an idempotent
// retransmit.
var ErrStaleReplayCounter = errors.New("eapol: stale or out-of-order replay counter")

// ErrMICVerification is returned when a peer-supplied Key MIC doesn't
// verify.
var ErrMICVerification = errors.New("eapol: MIC verification failed")

// ErrIEMismatch is returned when a peer's echoed RSNE doesn't match the one
// it originally advertised (spec §4.5 / §8 property 5).
var ErrIEMismatch = errors.New("eapol: RSNE in handshake doesn't match advertised IE")

// Authenticator drives the authenticator side of the 4-Way Handshake: the
// AP for an infrastructure BSS. One Authenticator exists per associated
// Station for the lifetime of its current PTK.
type Authenticator struct {
	hs *handshake.Handshake

	state   AuthState
	replay  uint64
	retries int

	maxRetries    int
	retryInterval time.Duration

	lastSent   []byte
	lastSentAt time.Time

	gtkKeyID int
	gtk      []byte
	gtkRSC   [6]byte
}

// NewAuthenticator creates an Authenticator bound to hs, which must already
// have its PMK, addresses and own/peer IEs set.
func NewAuthenticator(hs *handshake.Handshake, gtkKeyID int, gtk []byte, gtkRSC [6]byte) *Authenticator {
	return &Authenticator{
		hs:            hs,
		maxRetries:    MaxRetries,
		retryInterval: DefaultRetryInterval,
		gtkKeyID:      gtkKeyID,
		gtk:           gtk,
		gtkRSC:        gtkRSC,
	}
}

// State returns the authenticator's current state.
func (a *Authenticator) State() AuthState { return a.state }

// SetMaxRetries overrides the retransmit cap before the handshake starts,
// letting the daemon's --eapol-retries flag tune how many Msg1/Msg3 resends
// an authenticator tolerates before giving up on a peer.
func (a *Authenticator) SetMaxRetries(n int) {
	a.maxRetries = n
}

// Start generates the ANonce and builds Msg1.
func (a *Authenticator) Start() ([]byte, error) {
	if a.state != AuthIdle {
		return nil, ErrUnexpectedMessage
	}
	if err := a.hs.NewANonce(); err != nil {
		return nil, err
	}

	a.replay++
	anonce, _ := a.hs.ANonce()

	f := &Frame{
		KeyInfo:       descriptorVersion(a.hs.AKM()) | KeyInfoKeyType | KeyInfoKeyACK,
		KeyLength:     uint16(tkLenForAKM(a.hs)),
		ReplayCounter: a.replay,
		Nonce:         anonce,
	}
	b := Build(f)

	a.lastSent = b
	a.lastSentAt = time.Now()
	a.state = AuthMsg1Sent
	return b, nil
}

// HandleMessage processes a received Msg2 or Msg4 frame and returns the next
// frame to send, or nil with done=true once the handshake completes.
func (a *Authenticator) HandleMessage(f *Frame) (next []byte, done bool, err error) {
	switch a.state {
	case AuthMsg1Sent:
		return a.handleMsg2(f)
	case AuthMsg3Sent:
		return a.handleMsg4(f)
	default:
		return nil, false, ErrUnexpectedMessage
	}
}

func (a *Authenticator) handleMsg2(f *Frame) ([]byte, bool, error) {
	if f.ReplayCounter != a.replay {
		return nil, false, ErrStaleReplayCounter
	}

	if err := a.hs.SetSNonce(f.Nonce); err != nil {
		return nil, false, err
	}
	if err := a.hs.DerivePTK(); err != nil {
		return nil, false, err
	}

	mic := f.MIC
	check := *f
	check.MIC = [16]byte{}
	ok, err := a.hs.VerifyMIC(Build(&check), mic[:])
	if err != nil {
		return nil, false, err
	}
	if !ok {
		a.state = AuthFailed
		return nil, false, ErrMICVerification
	}

	kd, err := ParseKeyData(f.KeyData)
	if err != nil {
		return nil, false, err
	}
	if kd.RSNE != nil && !handshake.UtilAPIEMatches(kd.RSNE, a.hs.OwnIE(), false) {
		a.state = AuthFailed
		return nil, false, ErrIEMismatch
	}

	wrappedGTK, err := wpacrypto.KeyWrap(a.hs.PTK().KEK, a.gtk)
	if err != nil {
		return nil, false, err
	}

	a.replay++
	keyData := append(BuildRSNInKeyData(ie.Build(ie.TagRSN, a.hs.OwnIE())), BuildGTKKDE(a.gtkKeyID, true, wrappedGTK)...)

	msg3 := &Frame{
		KeyInfo: descriptorVersion(a.hs.AKM()) | KeyInfoKeyType | KeyInfoKeyACK |
			KeyInfoKeyMIC | KeyInfoInstall | KeyInfoSecure | KeyInfoEncryptedKeyData,
		KeyLength:     uint16(tkLenForAKM(a.hs)),
		ReplayCounter: a.replay,
		Nonce:         mustANonce(a.hs),
		KeyData:       keyData,
	}
	micBytes, err := a.hs.MIC(BuildForMIC(msg3))
	if err != nil {
		return nil, false, err
	}
	copy(msg3.MIC[:], micBytes)

	b := Build(msg3)
	a.lastSent = b
	a.lastSentAt = time.Now()
	a.state = AuthMsg3Sent
	return b, false, nil
}

func (a *Authenticator) handleMsg4(f *Frame) ([]byte, bool, error) {
	if f.ReplayCounter != a.replay {
		// Could be a duplicate Msg2 retransmit racing with our Msg3; treat
		// as stale rather than reprocessing Msg3's side effects.
		return nil, false, ErrStaleReplayCounter
	}

	check := *f
	check.MIC = [16]byte{}
	mic := f.MIC
	ok, err := a.hs.VerifyMIC(Build(&check), mic[:])
	if err != nil {
		return nil, false, err
	}
	if !ok {
		a.state = AuthFailed
		return nil, false, ErrMICVerification
	}

	if err := a.hs.InstallPTK(); err != nil {
		return nil, false, err
	}
	a.hs.InstallGTK(a.gtkKeyID, a.gtk, a.gtkRSC)

	a.state = AuthComplete
	return nil, true, nil
}

// Retransmit resends the last frame if the retry interval has elapsed,
// advancing the retry counter. It returns ok=false once the retry budget is
// exhausted, signaling the caller to tear down the handshake.
func (a *Authenticator) Retransmit(now time.Time) (frame []byte, ok bool) {
	if a.state != AuthMsg1Sent && a.state != AuthMsg3Sent {
		return nil, true
	}
	if now.Sub(a.lastSentAt) < a.retryInterval {
		return nil, true
	}
	a.retries++
	if a.retries > a.maxRetries {
		a.state = AuthFailed
		return nil, false
	}
	a.lastSentAt = now
	return a.lastSent, true
}

func descriptorVersion(akm ie.AKM) KeyInfo {
	switch akm {
	case ie.AKMPSK, ie.AKM8021X:
		return KeyInfoDescriptorHMACSHA1AES
	default:
		return KeyInfoDescriptorAESCMAC
	}
}

func tkLenForAKM(hs *handshake.Handshake) int {
	if hs.PTK() != nil {
		return len(hs.PTK().TK)
	}
	return 16
}

func mustANonce(hs *handshake.Handshake) [32]byte {
	n, _ := hs.ANonce()
	return n
}
