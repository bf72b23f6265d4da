package ap

import (
	"github.com/mdlayher/wind/internal/frame"
)

// handleAuthentication processes an incoming Authentication frame: an
// Open-System authentication request. Per spec §4.7 this is where the
// allow-list deny check happens (scenario S6): a denied peer gets no
// Station record at all.
func (a *AP) handleAuthentication(hdr frame.Header, body []byte) {
	f, _, err := frame.ParseAuthFixed(body)
	if err != nil {
		return
	}
	if f.Algorithm != frame.AuthAlgorithmOpenSystem || f.Transaction != 1 {
		return
	}

	if !a.cfg.authorized(hdr.SA) {
		a.sendFrame(hdr.SA, frame.SubtypeAuthentication, frame.BuildAuthFixed(frame.AuthFixed{
			Algorithm:   frame.AuthAlgorithmOpenSystem,
			Transaction: 2,
			Status:      frame.StatusUnspecifiedFailure,
		}), nil, nil)
		return
	}

	st, ok := a.station(hdr.SA)
	if !ok {
		st = &Station{MAC: append([]byte(nil), hdr.SA...)}
		a.stations[st.MAC.String()] = st
	}
	st.State = StationAuthenticated

	a.sendFrame(hdr.SA, frame.SubtypeAuthentication, frame.BuildAuthFixed(frame.AuthFixed{
		Algorithm:   frame.AuthAlgorithmOpenSystem,
		Transaction: 2,
		Status:      frame.StatusSuccess,
	}), nil, nil)
}
