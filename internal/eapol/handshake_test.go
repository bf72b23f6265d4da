package eapol

import (
	"bytes"
	"testing"
	"time"

	"github.com/mdlayher/wind/internal/handshake"
	"github.com/mdlayher/wind/internal/ie"
)

func newTestHandshakePair(t *testing.T) (authHS, suppHS *handshake.Handshake) {
	t.Helper()

	pmk := bytes.Repeat([]byte{0x11}, 32)
	aa := []byte{0x02, 0, 0, 0, 0, 1}
	spa := []byte{0x02, 0, 0, 0, 0, 2}

	rsne := ie.BuildRSNE(&ie.RSNE{
		Version:      1,
		GroupCipher:  ie.CipherCCMP,
		PairwiseList: []ie.Cipher{ie.CipherCCMP},
		AKMList:      []ie.AKM{ie.AKMPSK},
	})

	authHS = handshake.New(ie.AKMPSK, 16)
	if err := authHS.SetPMK(append([]byte(nil), pmk...)); err != nil {
		t.Fatalf("auth SetPMK: %v", err)
	}
	if err := authHS.SetAuthenticatorAddress(aa); err != nil {
		t.Fatalf("auth SetAuthenticatorAddress: %v", err)
	}
	if err := authHS.SetSupplicantAddress(spa); err != nil {
		t.Fatalf("auth SetSupplicantAddress: %v", err)
	}
	if err := authHS.SetOwnIE(rsne); err != nil {
		t.Fatalf("auth SetOwnIE: %v", err)
	}

	suppHS = handshake.New(ie.AKMPSK, 16)
	if err := suppHS.SetPMK(append([]byte(nil), pmk...)); err != nil {
		t.Fatalf("supp SetPMK: %v", err)
	}
	if err := suppHS.SetAuthenticatorAddress(aa); err != nil {
		t.Fatalf("supp SetAuthenticatorAddress: %v", err)
	}
	if err := suppHS.SetSupplicantAddress(spa); err != nil {
		t.Fatalf("supp SetSupplicantAddress: %v", err)
	}
	if err := suppHS.SetOwnIE(rsne); err != nil {
		t.Fatalf("supp SetOwnIE: %v", err)
	}
	if err := suppHS.SetAPIE(rsne); err != nil {
		t.Fatalf("supp SetAPIE: %v", err)
	}

	return authHS, suppHS
}

func TestFullFourWayHandshake(t *testing.T) {
	authHS, suppHS := newTestHandshakePair(t)

	gtk := bytes.Repeat([]byte{0x99}, 16)
	auth := NewAuthenticator(authHS, 1, gtk, [6]byte{0, 0, 0, 0, 0, 1})
	supp := NewSupplicant(suppHS)

	msg1b, err := auth.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	msg1, err := Parse(msg1b)
	if err != nil {
		t.Fatalf("Parse msg1: %v", err)
	}

	msg2b, done, err := supp.HandleMessage(msg1)
	if err != nil || done {
		t.Fatalf("HandleMessage(msg1): done=%v err=%v", done, err)
	}
	msg2, err := Parse(msg2b)
	if err != nil {
		t.Fatalf("Parse msg2: %v", err)
	}

	msg3b, done, err := auth.HandleMessage(msg2)
	if err != nil || done {
		t.Fatalf("HandleMessage(msg2): done=%v err=%v", done, err)
	}
	msg3, err := Parse(msg3b)
	if err != nil {
		t.Fatalf("Parse msg3: %v", err)
	}

	msg4b, done, err := supp.HandleMessage(msg3)
	if err != nil {
		t.Fatalf("HandleMessage(msg3): %v", err)
	}
	if !done {
		t.Fatal("expected supplicant to be done after Msg3")
	}
	msg4, err := Parse(msg4b)
	if err != nil {
		t.Fatalf("Parse msg4: %v", err)
	}

	_, done, err = auth.HandleMessage(msg4)
	if err != nil {
		t.Fatalf("HandleMessage(msg4): %v", err)
	}
	if !done {
		t.Fatal("expected authenticator to be done after Msg4")
	}

	if !authHS.PTKInstalled() || !suppHS.PTKInstalled() {
		t.Fatal("expected both sides to have installed the PTK")
	}
	if !bytes.Equal(authHS.PTK().TK, suppHS.PTK().TK) {
		t.Fatal("expected both sides to derive the same PTK")
	}
	if suppHS.GTK() == nil || !bytes.Equal(suppHS.GTK().Key, gtk) {
		t.Fatal("expected supplicant to have installed the authenticator's GTK")
	}
}

func TestSupplicantRejectsBadMIC(t *testing.T) {
	authHS, suppHS := newTestHandshakePair(t)
	auth := NewAuthenticator(authHS, 1, bytes.Repeat([]byte{1}, 16), [6]byte{})
	supp := NewSupplicant(suppHS)

	msg1b, _ := auth.Start()
	msg1, _ := Parse(msg1b)

	msg2b, _, err := supp.HandleMessage(msg1)
	if err != nil {
		t.Fatalf("HandleMessage(msg1): %v", err)
	}
	msg2, _ := Parse(msg2b)

	msg3b, _, err := auth.HandleMessage(msg2)
	if err != nil {
		t.Fatalf("HandleMessage(msg2): %v", err)
	}
	msg3, _ := Parse(msg3b)
	msg3.MIC[0] ^= 0xff // tamper

	if _, _, err := supp.HandleMessage(msg3); err != ErrMICVerification {
		t.Fatalf("expected ErrMICVerification, got %v", err)
	}
	if supp.State() != SuppFailed {
		t.Fatalf("expected supplicant to be Failed, got %v", supp.State())
	}
}

func TestAuthenticatorRetransmitAndTimeout(t *testing.T) {
	authHS, _ := newTestHandshakePair(t)
	auth := NewAuthenticator(authHS, 1, bytes.Repeat([]byte{1}, 16), [6]byte{})
	auth.retryInterval = 0 // fire immediately in the test

	if _, err := auth.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	now := time.Now()
	for i := 0; i < DefaultMaxRetries; i++ {
		frame, ok := auth.Retransmit(now)
		if !ok || frame == nil {
			t.Fatalf("expected retransmit %d to succeed", i)
		}
	}
	if _, ok := auth.Retransmit(now); ok {
		t.Fatal("expected retry budget to be exhausted")
	}
	if auth.State() != AuthFailed {
		t.Fatalf("expected AuthFailed after exhausting retries, got %v", auth.State())
	}
}

func TestSupplicantIdempotentMsg3Retransmit(t *testing.T) {
	authHS, suppHS := newTestHandshakePair(t)
	gtk := bytes.Repeat([]byte{0x99}, 16)
	auth := NewAuthenticator(authHS, 1, gtk, [6]byte{})
	supp := NewSupplicant(suppHS)

	msg1b, _ := auth.Start()
	msg1, _ := Parse(msg1b)
	msg2b, _, _ := supp.HandleMessage(msg1)
	msg2, _ := Parse(msg2b)
	msg3b, _, _ := auth.HandleMessage(msg2)
	msg3, _ := Parse(msg3b)

	firstMsg4, done, err := supp.HandleMessage(msg3)
	if err != nil || !done {
		t.Fatalf("first Msg3: done=%v err=%v", done, err)
	}
	gtkAfterFirst := suppHS.GTK()

	// Authenticator didn't see our Msg4 and resends the identical Msg3.
	secondMsg4, done, err := supp.HandleMessage(msg3)
	if err != nil {
		t.Fatalf("retransmitted Msg3: %v", err)
	}
	if !done {
		t.Fatal("expected retransmitted Msg3 to still report done")
	}
	if !bytes.Equal(firstMsg4, secondMsg4) {
		t.Fatal("expected idempotent Msg4 reply on Msg3 retransmit")
	}
	if suppHS.GTK() != gtkAfterFirst {
		t.Fatal("expected GTK not to be reinstalled on Msg3 retransmit")
	}
}

func TestGroupKeyHandshake(t *testing.T) {
	authHS, suppHS := newTestHandshakePair(t)
	auth := NewAuthenticator(authHS, 1, bytes.Repeat([]byte{1}, 16), [6]byte{})
	supp := NewSupplicant(suppHS)

	msg1b, _ := auth.Start()
	msg1, _ := Parse(msg1b)
	msg2b, _, _ := supp.HandleMessage(msg1)
	msg2, _ := Parse(msg2b)
	msg3b, _, _ := auth.HandleMessage(msg2)
	msg3, _ := Parse(msg3b)
	msg4b, _, _ := supp.HandleMessage(msg3)
	msg4, _ := Parse(msg4b)
	if _, _, err := auth.HandleMessage(msg4); err != nil {
		t.Fatalf("completing 4-way: %v", err)
	}

	groupAuth := NewGroupAuthenticator(authHS, auth.replay)
	groupSupp := NewGroupSupplicant(suppHS)

	newGTK := bytes.Repeat([]byte{0xab}, 16)
	gmsg1b, err := groupAuth.Start(2, newGTK, [6]byte{0, 0, 0, 0, 0, 1}, 0, nil, [6]byte{})
	if err != nil {
		t.Fatalf("group Start: %v", err)
	}
	gmsg1, _ := Parse(gmsg1b)

	gmsg2b, err := groupSupp.HandleMsg1(gmsg1)
	if err != nil {
		t.Fatalf("group HandleMsg1: %v", err)
	}
	gmsg2, _ := Parse(gmsg2b)

	done, err := groupAuth.HandleMsg2(gmsg2)
	if err != nil {
		t.Fatalf("group HandleMsg2: %v", err)
	}
	if !done {
		t.Fatal("expected group key handshake to complete")
	}

	if !bytes.Equal(suppHS.GTK().Key, newGTK) {
		t.Fatal("expected supplicant to install the rotated GTK")
	}
	if !bytes.Equal(authHS.GTK().Key, newGTK) {
		t.Fatal("expected authenticator to record the rotated GTK")
	}
}
