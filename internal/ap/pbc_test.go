package ap

import (
	"net"
	"testing"
	"time"

	"github.com/mdlayher/genetlink"
	"golang.org/x/sys/unix"

	"github.com/mdlayher/wind/internal/frame"
	"github.com/mdlayher/wind/internal/ie"
)

func testSR() ie.WSCSelectedRegistrar {
	return ie.WSCSelectedRegistrar{
		Version:           2,
		SelectedRegistrar: true,
		DevicePasswordID:  ie.DevicePasswordIDPushButton,
		SSID:              "TestNet",
		AuthTypeFlags:     0x0001,
		EncrTypeFlags:     0x0001,
		NetworkKey:        []byte("supersecret12345"),
	}
}

func buildProbeReq(sa, bssid net.HardwareAddr, uuid [16]byte) []byte {
	h := frame.BuildHeader(frame.Header{Subtype: frame.SubtypeProbeRequest, DA: bssid, SA: sa, BSSID: bssid})
	wsc := ie.BuildWSCProbeRequest(&ie.WSCProbeRequest{
		Version:          2,
		UUID:             uuid,
		DevicePasswordID: ie.DevicePasswordIDPushButton,
		RequestType:      0,
	})
	return append(h, wsc...)
}

func TestPBCSessionOverlapExitsMode(t *testing.T) {
	fk := &fakeKernel{msgs: make(chan genetlink.Message, 64)}
	nlc := newTestConn(t, fk)
	defer nlc.Close()

	bssid := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	a := New(nlc, 3, "", bssid, testConfig(), nil, nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drainStart(t, fk.msgs)

	a.EnterPBC(testSR(), time.Now())
	expectCommand(t, fk.msgs, unix.NL80211_CMD_SET_BEACON)

	var uuid1, uuid2 [16]byte
	uuid1[0] = 1
	uuid2[0] = 2

	sta1 := net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
	sta2 := net.HardwareAddr{0x02, 0, 0, 0, 0, 3}

	a.HandleFrame(buildProbeReq(sta1, bssid, uuid1))
	if !a.pbc.active {
		t.Fatal("expected PBC session to remain active after one enrollee's probe")
	}

	a.HandleFrame(buildProbeReq(sta2, bssid, uuid2))
	if a.pbc.active {
		t.Fatal("expected PBC session to exit once a second, distinct enrollee is seen within the monitor window (S3)")
	}
	expectCommand(t, fk.msgs, unix.NL80211_CMD_SET_BEACON)
}

func TestWSCAssociationDeliversCredentialAndExitsPBC(t *testing.T) {
	fk := &fakeKernel{msgs: make(chan genetlink.Message, 64)}
	nlc := newTestConn(t, fk)
	defer nlc.Close()

	bssid := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	enrollee := net.HardwareAddr{0x02, 0, 0, 0, 0, 2}

	cfg := testConfig()
	cfg.RSNE = ie.BuildRSNE(&ie.RSNE{
		Version:      1,
		GroupCipher:  ie.CipherCCMP,
		PairwiseList: []ie.Cipher{ie.CipherCCMP},
		AKMList:      []ie.AKM{ie.AKMPSK},
	})

	a := New(nlc, 3, "", bssid, cfg, nil, nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drainStart(t, fk.msgs)

	a.EnterPBC(testSR(), time.Now())
	expectCommand(t, fk.msgs, unix.NL80211_CMD_SET_BEACON)

	a.HandleFrame(buildAuthReq(enrollee, bssid))
	expectCommand(t, fk.msgs, unix.NL80211_CMD_FRAME)

	ies := ie.Build(ie.TagSSID, []byte("TestNet"))
	ies = append(ies, ie.Build(ie.TagSupportedRates, ie.BuildSupportedRates([]ie.Rate{0x82}))...)
	wscIE := ie.BuildWSCProbeRequest(&ie.WSCProbeRequest{Version: 2, DevicePasswordID: ie.DevicePasswordIDPushButton})
	ies = append(ies, wscIE...)
	a.HandleFrame(buildAssocReq(enrollee, bssid, ies))

	resp := expectCommand(t, fk.msgs, unix.NL80211_CMD_FRAME)
	if len(frameAttr(t, resp)) == 0 {
		t.Fatal("expected an association response frame")
	}
	expectCommand(t, fk.msgs, unix.NL80211_CMD_NEW_STATION)
	expectCommand(t, fk.msgs, unix.NL80211_CMD_SET_BEACON) // PBC mode exit on enrollment success

	st, ok := a.station(enrollee)
	if !ok || !st.wsc {
		t.Fatal("expected a WSC-enrolled Station")
	}
	if st.State != StationAssociated {
		t.Fatalf("expected Associated (no RSNA for a WSC enrollee), got %v", st.State)
	}
	if a.pbc.active {
		t.Fatal("expected PBC mode to have exited after a successful enrollment")
	}
}
