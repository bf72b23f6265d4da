package ap

import (
	"bytes"
	"net"
	"time"

	"github.com/mdlayher/genetlink"

	"github.com/mdlayher/wind/internal/frame"
	"github.com/mdlayher/wind/internal/ie"
)

// handleAssociation processes an incoming (Re)Association Request: the
// SSID/rate/security acceptance checks of spec §4.7, AID assignment, and
// the WSC-PBC-or-RSNE branch that decides whether a 4-Way Handshake
// follows or the credential is delivered directly in the response.
func (a *AP) handleAssociation(hdr frame.Header, body []byte, reassoc bool) {
	st, ok := a.station(hdr.SA)
	if !ok || st.State == StationNone {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusReassocNoAssoc, 0, nil)
		return
	}

	_, ies, err := frame.ParseAssocReqFixed(body, reassoc)
	if err != nil {
		return
	}

	els, err := ie.All(ies)
	if err != nil {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidIE, 0, nil)
		return
	}

	if ssidEl, ok := ie.Find(els, ie.TagSSID); ok && !bytes.Equal(ssidEl.Data, a.cfg.SSID) {
		// Not addressed to this AP's SSID; not our exchange to respond to.
		return
	}

	var peerRates []ie.Rate
	if el, ok := ie.Find(els, ie.TagSupportedRates); ok {
		peerRates = append(peerRates, ie.ParseSupportedRates(el.Data)...)
	}
	if el, ok := ie.Find(els, ie.TagExtendedRates); ok {
		peerRates = append(peerRates, ie.ParseSupportedRates(el.Data)...)
	}
	if !ie.HasCommonBasicRate(a.cfg.Rates, peerRates) {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusAssocDeniedRates, 0, nil)
		return
	}
	st.Rates = peerRates

	if a.pbc != nil && a.pbc.active {
		for _, el := range els {
			if el.Tag != ie.TagVendorSpecific {
				continue
			}
			if _, ok := ie.IsWSCElement(el.Data); ok {
				a.acceptWSC(st, hdr.SA, reassoc)
				return
			}
		}
	}

	if a.cfg.RSNE == nil {
		a.acceptOpen(st, hdr.SA, reassoc)
		return
	}

	rsnEl, ok := ie.Find(els, ie.TagRSN)
	if !ok {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidIE, 0, nil)
		return
	}
	peerRSNE, err := ie.ParseRSNE(rsnEl.Data)
	if err != nil {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidIE, 0, nil)
		return
	}
	cfgRSNE, err := ie.ParseRSNE(a.cfg.RSNE)
	if err != nil {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusAPUnableToHandle, 0, nil)
		return
	}

	if ie.PopCount(peerRSNE.PairwiseBitmap) != 1 || !ie.SubsetOf(peerRSNE.PairwiseBitmap, cfgRSNE.PairwiseBitmap) {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidPairwiseCipher, 0, nil)
		return
	}
	if !ie.SubsetOf(peerRSNE.AKMBitmap, cfgRSNE.AKMBitmap) {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidAKMP, 0, nil)
		return
	}
	if peerRSNE.GroupCipher != cfgRSNE.GroupCipher {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidGroupCipher, 0, nil)
		return
	}
	if cfgRSNE.Capabilities&ie.RSNCapMFPRequired != 0 && peerRSNE.Capabilities&ie.RSNCapMFPCapable == 0 {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidRSNIECap, 0, nil)
		return
	}
	if cfgRSNE.Capabilities&ie.RSNCapSPPAMSDURequired != 0 && peerRSNE.Capabilities&ie.RSNCapSPPAMSDUCap == 0 {
		a.respondAssoc(hdr.SA, reassoc, frame.StatusInvalidRSNIECap, 0, nil)
		return
	}

	a.acceptRSN(st, hdr.SA, reassoc, ies, rsnEl.Data)
}

func (a *AP) respondAssoc(dst net.HardwareAddr, reassoc bool, status frame.StatusCode, aid uint16, extraIEs []byte) {
	subtype := frame.SubtypeAssociationResponse
	if reassoc {
		subtype = frame.SubtypeReassociationResponse
	}
	fixed := frame.BuildAssocRespFixed(frame.AssocRespFixed{Capability: a.cfg.Capability, Status: status, AID: aid})
	a.sendFrame(dst, subtype, fixed, extraIEs, nil)
}

func (a *AP) acceptOpen(st *Station, mac net.HardwareAddr, reassoc bool) {
	aid, err := a.assignAID()
	if err != nil {
		a.respondAssoc(mac, reassoc, frame.StatusAPUnableToHandle, 0, nil)
		return
	}
	st.AID = aid
	st.State = StationAssociated
	a.respondAssoc(mac, reassoc, frame.StatusSuccess, aid, nil)
	a.finishAssociation(st)
}

func (a *AP) acceptWSC(st *Station, mac net.HardwareAddr, reassoc bool) {
	aid, err := a.assignAID()
	if err != nil {
		a.respondAssoc(mac, reassoc, frame.StatusAPUnableToHandle, 0, nil)
		return
	}
	st.AID = aid
	st.State = StationAssociated
	st.wsc = true

	credIE := ie.BuildWSCAssociationResponse(&a.pbc.sr)
	a.respondAssoc(mac, reassoc, frame.StatusSuccess, aid, credIE)
	a.emit(EventRegistrationStart)
	a.finishAssociation(st)

	delete(a.pbc.probes, mac.String())
	a.emit(EventRegistrationSuccess)
	a.ExitPBC(time.Now())
}

func (a *AP) acceptRSN(st *Station, mac net.HardwareAddr, reassoc bool, reqIEs, rsneData []byte) {
	aid, err := a.assignAID()
	if err != nil {
		a.respondAssoc(mac, reassoc, frame.StatusAPUnableToHandle, 0, nil)
		return
	}
	st.AID = aid
	st.State = StationAssociated
	st.AssocIEs = append([]byte(nil), reqIEs...)
	st.RSNE = append([]byte(nil), rsneData...)

	a.respondAssoc(mac, reassoc, frame.StatusSuccess, aid, nil)
	a.finishAssociation(st)
	a.startAuthenticator(st)
}

func (a *AP) finishAssociation(st *Station) {
	_, _ = a.nlc.NewStation(a.ifindex, st.MAC, st.AID, ie.BuildSupportedRates(st.Rates), func(_ []genetlink.Message, _ error) {})
	a.emit(EventStationAdded)
}
