package frame

// ReasonCode is the reason value carried by Deauthentication and
// Disassociation frames, IEEE 802.11-2016 Table 9-45. The full catalog is
// carried here (SPEC_FULL §12) because every FSM teardown path in spec §4.6/
// §4.7 needs to choose a concrete value, not just LEAVING/UNSPECIFIED.
type ReasonCode uint16

// Reason codes, grounded on the teardown-path enum in the original
// implementation's mpdu.h.
const (
	ReasonUnspecified                 ReasonCode = 1
	ReasonPrevAuthNotValid            ReasonCode = 2
	ReasonDeauthLeaving               ReasonCode = 3
	ReasonDisassocDueToInactivity     ReasonCode = 4
	ReasonDisassocAPBusy              ReasonCode = 5
	ReasonClass2FromNonauthSTA        ReasonCode = 6
	ReasonClass3FromNonassocSTA       ReasonCode = 7
	ReasonDisassocSTAHasLeft          ReasonCode = 8
	ReasonSTAReqAssocWithoutAuth      ReasonCode = 9
	ReasonInvalidIE                   ReasonCode = 13
	ReasonMICFailure                  ReasonCode = 14
	Reason4WayHandshakeTimeout        ReasonCode = 15
	ReasonGroupKeyHandshakeTimeout    ReasonCode = 16
	ReasonIEDifferent                 ReasonCode = 17
	ReasonInvalidGroupCipher          ReasonCode = 18
	ReasonInvalidPairwiseCipher       ReasonCode = 19
	ReasonInvalidAKMP                 ReasonCode = 20
	ReasonUnsuppRSNVersion            ReasonCode = 21
	ReasonInvalidRSNIECap             ReasonCode = 22
	Reason8021XFailed                 ReasonCode = 23
	ReasonCipherSuiteRejected         ReasonCode = 24
)

// StatusCode is the status value carried by Authentication and
// (Re)Association Response frames, IEEE 802.11-2016 Table 9-46.
type StatusCode uint16

const (
	StatusSuccess                       StatusCode = 0
	StatusUnspecifiedFailure            StatusCode = 1
	StatusCapsUnsupported               StatusCode = 10
	StatusReassocNoAssoc                StatusCode = 11
	StatusAssocDenied                   StatusCode = 12
	StatusAuthAlgoUnsupported           StatusCode = 13
	StatusAuthSeqNumInvalid             StatusCode = 14
	StatusAuthRejected                  StatusCode = 15
	StatusAuthTimeout                   StatusCode = 16
	StatusAPUnableToHandle              StatusCode = 17
	StatusAssocDeniedRates              StatusCode = 18
	StatusInvalidIE                     StatusCode = 40
	StatusInvalidGroupCipher            StatusCode = 41
	StatusInvalidPairwiseCipher         StatusCode = 42
	StatusInvalidAKMP                   StatusCode = 43
	StatusUnsupportedRSNVersion         StatusCode = 44
	StatusInvalidRSNIECap               StatusCode = 45
)
