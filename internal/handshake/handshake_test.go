package handshake

import (
	"bytes"
	"testing"

	"github.com/mdlayher/wind/internal/ie"
)

func testHandshake(t *testing.T) *Handshake {
	t.Helper()
	h := New(ie.AKMPSK, 16)
	if err := h.SetPMK(bytes.Repeat([]byte{0x11}, 32)); err != nil {
		t.Fatalf("SetPMK: %v", err)
	}
	if err := h.SetAuthenticatorAddress([]byte{0x02, 0, 0, 0, 0, 1}); err != nil {
		t.Fatalf("SetAuthenticatorAddress: %v", err)
	}
	if err := h.SetSupplicantAddress([]byte{0x02, 0, 0, 0, 0, 2}); err != nil {
		t.Fatalf("SetSupplicantAddress: %v", err)
	}
	return h
}

func TestDerivePTKRequiresNoncesAndPMK(t *testing.T) {
	h := New(ie.AKMPSK, 16)
	if err := h.DerivePTK(); err == nil {
		t.Fatal("expected error deriving PTK with no PMK/addresses/nonces set")
	}
}

func TestDerivePTKThenInstallFreezes(t *testing.T) {
	h := testHandshake(t)
	if err := h.NewANonce(); err != nil {
		t.Fatalf("NewANonce: %v", err)
	}
	if err := h.NewSNonce(); err != nil {
		t.Fatalf("NewSNonce: %v", err)
	}
	if err := h.DerivePTK(); err != nil {
		t.Fatalf("DerivePTK: %v", err)
	}
	if h.PTK() == nil {
		t.Fatal("expected non-nil PTK after DerivePTK")
	}

	if err := h.InstallPTK(); err != nil {
		t.Fatalf("InstallPTK: %v", err)
	}
	if !h.PTKInstalled() {
		t.Fatal("expected PTKInstalled to report true")
	}

	// Every state-changing op must now report ErrFrozen.
	if err := h.SetPMK(bytes.Repeat([]byte{0x22}, 32)); err != ErrFrozen {
		t.Fatalf("expected ErrFrozen from SetPMK after install, got %v", err)
	}
	if err := h.NewSNonce(); err != ErrFrozen {
		t.Fatalf("expected ErrFrozen from NewSNonce after install, got %v", err)
	}
	if err := h.DerivePTK(); err != ErrFrozen {
		t.Fatalf("expected ErrFrozen from second DerivePTK, got %v", err)
	}
	if err := h.InstallPTK(); err != ErrFrozen {
		t.Fatalf("expected ErrFrozen from second InstallPTK, got %v", err)
	}
}

func TestMICRoundTripsThroughHandshake(t *testing.T) {
	h := testHandshake(t)
	if err := h.NewANonce(); err != nil {
		t.Fatalf("NewANonce: %v", err)
	}
	if err := h.NewSNonce(); err != nil {
		t.Fatalf("NewSNonce: %v", err)
	}
	if err := h.DerivePTK(); err != nil {
		t.Fatalf("DerivePTK: %v", err)
	}

	msg := []byte("eapol key frame body")
	mic, err := h.MIC(msg)
	if err != nil {
		t.Fatalf("MIC: %v", err)
	}
	ok, err := h.VerifyMIC(msg, mic)
	if err != nil {
		t.Fatalf("VerifyMIC: %v", err)
	}
	if !ok {
		t.Fatal("expected MIC to verify")
	}
}

func TestInstallGTKAndIGTKSurviveFreeze(t *testing.T) {
	h := testHandshake(t)
	if err := h.NewANonce(); err != nil {
		t.Fatalf("NewANonce: %v", err)
	}
	if err := h.NewSNonce(); err != nil {
		t.Fatalf("NewSNonce: %v", err)
	}
	if err := h.DerivePTK(); err != nil {
		t.Fatalf("DerivePTK: %v", err)
	}
	if err := h.InstallPTK(); err != nil {
		t.Fatalf("InstallPTK: %v", err)
	}

	h.InstallGTK(1, bytes.Repeat([]byte{0x33}, 16), [6]byte{0, 0, 0, 0, 0, 1})
	if h.GTK() == nil || h.GTK().Index != 1 {
		t.Fatal("expected GTK to be recorded after freeze")
	}

	h.InstallIGTK(4, bytes.Repeat([]byte{0x44}, 16), [6]byte{0, 0, 0, 0, 0, 1})
	if h.IGTK() == nil || h.IGTK().Index != 4 {
		t.Fatal("expected IGTK to be recorded after freeze")
	}
}

func TestFTKeyHierarchy(t *testing.T) {
	h := New(ie.AKMFTPSK, 16)
	if err := h.SetPMK(bytes.Repeat([]byte{0x55}, 32)); err != nil {
		t.Fatalf("SetPMK: %v", err)
	}
	h.SetSSID([]byte("Net"))
	if err := h.SetSupplicantAddress([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("SetSupplicantAddress: %v", err)
	}

	if err := h.DerivePMKR0(0x1234, []byte("r0kh")); err != nil {
		t.Fatalf("DerivePMKR0: %v", err)
	}
	if h.PMKR0Name() == nil {
		t.Fatal("expected PMK-R0-Name to be set")
	}

	if err := h.DerivePMKR1([]byte("r1kh00")); err != nil {
		t.Fatalf("DerivePMKR1: %v", err)
	}
	if h.PMKR1() == nil || h.PMKR1Name() == nil {
		t.Fatal("expected PMK-R1/PMK-R1-Name to be set")
	}

	if err := h.UsePMKR1AsPMK(); err != nil {
		t.Fatalf("UsePMKR1AsPMK: %v", err)
	}
	if !bytes.Equal(h.pmk, h.PMKR1()) {
		t.Fatal("expected PMK to be switched to PMK-R1")
	}
}

func TestUnfreezeForFTAllowsFreshPTK(t *testing.T) {
	h := testHandshake(t)
	if err := h.NewANonce(); err != nil {
		t.Fatalf("NewANonce: %v", err)
	}
	if err := h.NewSNonce(); err != nil {
		t.Fatalf("NewSNonce: %v", err)
	}
	if err := h.DerivePTK(); err != nil {
		t.Fatalf("DerivePTK: %v", err)
	}
	if err := h.InstallPTK(); err != nil {
		t.Fatalf("InstallPTK: %v", err)
	}
	firstTK := append([]byte(nil), h.PTK().TK...)

	h.UnfreezeForFT()
	if h.PTKInstalled() {
		t.Fatal("expected PTKInstalled to report false after UnfreezeForFT")
	}
	if err := h.NewSNonce(); err != nil {
		t.Fatalf("NewSNonce after unfreeze: %v", err)
	}
	if err := h.NewANonce(); err != nil {
		t.Fatalf("NewANonce after unfreeze: %v", err)
	}
	if err := h.DerivePTK(); err != nil {
		t.Fatalf("DerivePTK after unfreeze: %v", err)
	}
	if bytes.Equal(firstTK, h.PTK().TK) {
		t.Fatal("expected a fresh TK from new nonces after unfreeze")
	}
}

func TestDerivePMKR1BeforeR0Fails(t *testing.T) {
	h := New(ie.AKMFTPSK, 16)
	if err := h.DerivePMKR1([]byte("r1kh00")); err == nil {
		t.Fatal("expected error deriving PMK-R1 before PMK-R0")
	}
}

func TestUtilAPIEMatches(t *testing.T) {
	rsne := &ie.RSNE{
		Version:      1,
		GroupCipher:  ie.CipherCCMP,
		PairwiseList: []ie.Cipher{ie.CipherCCMP},
		AKMList:      []ie.AKM{ie.AKMPSK},
	}
	a := ie.BuildRSNE(rsne)

	rsneWithPMKID := *rsne
	rsneWithPMKID.PMKIDs = [][16]byte{{1, 2, 3}}
	b := ie.BuildRSNE(&rsneWithPMKID)

	if UtilAPIEMatches(a, b, false) {
		t.Fatal("expected strict comparison to reject differing PMKID lists")
	}
	if !UtilAPIEMatches(a, b, true) {
		t.Fatal("expected PMKID-tolerant comparison to accept differing PMKID lists")
	}
}

func TestSecureEraseZeroesKeyMaterial(t *testing.T) {
	h := testHandshake(t)
	if err := h.NewANonce(); err != nil {
		t.Fatalf("NewANonce: %v", err)
	}
	if err := h.NewSNonce(); err != nil {
		t.Fatalf("NewSNonce: %v", err)
	}
	if err := h.DerivePTK(); err != nil {
		t.Fatalf("DerivePTK: %v", err)
	}
	if err := h.InstallPTK(); err != nil {
		t.Fatalf("InstallPTK: %v", err)
	}
	h.InstallGTK(1, bytes.Repeat([]byte{0x33}, 16), [6]byte{})

	ptk := h.PTK()
	gtk := h.GTK()

	h.SecureErase()

	for _, b := range [][]byte{ptk.KCK, ptk.KEK, ptk.TK, gtk.Key} {
		for i, v := range b {
			if v != 0 {
				t.Fatalf("byte %d not zeroed after SecureErase: %x", i, v)
			}
		}
	}
	if h.PTK() != nil {
		t.Fatal("expected PTK reference to be cleared after SecureErase")
	}
	if h.GTK() != nil {
		t.Fatal("expected GTK reference to be cleared after SecureErase")
	}
}
