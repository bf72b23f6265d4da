package ap

import (
	"time"

	"github.com/mdlayher/genetlink"

	"github.com/mdlayher/wind/internal/frame"
	"github.com/mdlayher/wind/internal/ie"
)

// PBC timing constants, Wi-Fi Alliance WSC 2.0 §11.3: the window a
// push-button session stays open, and the window within which two
// independent button presses are considered an overlapping session that
// must be rejected rather than arbitrarily picking one enrollee.
const (
	pbcWalkTime    = 120 * time.Second
	pbcMonitorTime = 120 * time.Second
)

// pbcState tracks one active WSC Push-Button Configuration session: the
// Selected Registrar attributes advertised in the beacon, and the set of
// enrollee probe requests seen within the monitor window (spec §4.7's
// session-overlap detection, §8 scenario S3).
type pbcState struct {
	active    bool
	enteredAt time.Time
	sr        ie.WSCSelectedRegistrar
	probes    map[string]pbcProbe
}

type pbcProbe struct {
	uuid     [16]byte
	lastSeen time.Time
}

// EnterPBC opens a Push-Button Configuration session advertising sr,
// rebuilding the beacon/probe-response tail to carry the Selected
// Registrar IE.
func (a *AP) EnterPBC(sr ie.WSCSelectedRegistrar, now time.Time) {
	a.pbc = &pbcState{
		active:    true,
		enteredAt: now,
		sr:        sr,
		probes:    make(map[string]pbcProbe),
	}
	a.rebuildBeacon()
}

// ExitPBC closes the active session, whatever the reason (walk-time
// expiry, overlap, or successful enrollment), and rebuilds the beacon
// without the Selected Registrar IE.
func (a *AP) ExitPBC(now time.Time) {
	if a.pbc == nil || !a.pbc.active {
		return
	}
	a.pbc.active = false
	a.rebuildBeacon()
	a.emit(EventPbcModeExit)
}

func (a *AP) rebuildBeacon() {
	head, tail := a.buildBeacon()
	_, _ = a.nlc.SetBeacon(a.ifindex, head, tail, func(_ []genetlink.Message, _ error) {})
}

// handleProbeRequest feeds a Probe Request's WSC IE, if any, into the
// active PBC session's overlap detector: more than one distinct enrollee
// UUID seen within pbcMonitorTime means two button presses raced and
// neither should be honored (spec §8 scenario S3).
func (a *AP) handleProbeRequest(hdr frame.Header, body []byte) {
	if a.pbc == nil || !a.pbc.active {
		return
	}

	els, err := ie.All(body)
	if err != nil {
		return
	}

	var wsc *ie.WSCProbeRequest
	for _, el := range els {
		if el.Tag != ie.TagVendorSpecific {
			continue
		}
		if data, ok := ie.IsWSCElement(el.Data); ok {
			wsc, err = ie.ParseWSCTLV(data)
			if err == nil {
				break
			}
		}
	}
	if wsc == nil || wsc.DevicePasswordID != ie.DevicePasswordIDPushButton {
		return
	}

	now := time.Now()
	a.purgeStaleProbes(now)

	for mac, p := range a.pbc.probes {
		if mac != hdr.SA.String() && p.uuid != wsc.UUID {
			a.ExitPBC(now)
			return
		}
	}

	a.pbc.probes[hdr.SA.String()] = pbcProbe{uuid: wsc.UUID, lastSeen: now}
}

func (a *AP) purgeStaleProbes(now time.Time) {
	for mac, p := range a.pbc.probes {
		if now.Sub(p.lastSeen) > pbcMonitorTime {
			delete(a.pbc.probes, mac)
		}
	}
}
