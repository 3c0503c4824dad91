package msg

// EventKind is the closed set of host-observable occurrences (spec §4.6,
// §7: "each delivered event corresponds to exactly one host-observable
// occurrence").
type EventKind int

const (
	EvtRxResponse EventKind = iota
	EvtRxReset
	EvtRxPing
	EvtRxData
	EvtRxCiphertext
	EvtGattConnect
	EvtGattDisconnect
	EvtLinkSuccess
	EvtOpenSuccess
	EvtOpenTimeout
	EvtPairingStart
	EvtPairingSuccess
	EvtPairingErr
	EvtPairingTimeout
	EvtStatusChk
	EvtStatusOK
	EvtStatusErr
	EvtStatusTimeout
	EvtLinkNumCmpReq
	EvtLinkPasskeyReq
	EvtHandlingErr
)

func (e EventKind) String() string {
	names := [...]string{
		"RX_RESPONSE", "RX_RESET", "RX_PING", "RX_DATA", "RX_CIPHERTEXT",
		"GATT_CONNECT", "GATT_DISCONNECT", "LINK_SUCCESS",
		"OPEN_SUCCESS", "OPEN_TIMEOUT",
		"PAIRING_START", "PAIRING_SUCCESS", "PAIRING_ERR", "PAIRING_TIMEOUT",
		"STATUS_CHK", "STATUS_OK", "STATUS_ERR", "STATUS_TIMEOUT",
		"LINK_NUM_CMP_REQ", "LINK_PASSKEY_REQ",
		"HANDLING_ERR",
	}
	if int(e) < 0 || int(e) >= len(names) {
		return "UNKNOWN_EVENT"
	}
	return names[e]
}

// Event is posted on the event queue and delivered to the host callback
// in arrival order per link (spec §4.6, §5).
type Event struct {
	Kind     EventKind
	DeviceID uint64
	Message  *Message
	Err      error

	// Code carries the 6-digit numeric-comparison code for
	// EvtLinkNumCmpReq; unused for every other EventKind.
	Code uint32
}

// EventCallback is the host-provided event sink (spec §6.2 event_cb).
// The event daemon invokes it serially; the host MUST NOT re-enter the
// engine from within the callback (spec §5, mirroring the ticket-store
// re-entrancy rule).
type EventCallback func(Event)
