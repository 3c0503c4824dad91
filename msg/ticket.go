package msg

// Ticket holds the long-lived authenticated session state for one remote
// device (spec §3). The zero value of the sequence-number pair means "no
// authenticated message has yet been sent/accepted" — see the Open
// Question decision on sequence-number indexing in SPEC_FULL.md §9.
type Ticket struct {
	OwnDeviceID      uint64
	RemoteDeviceID   uint64
	CipherKey        [32]byte
	OwnStatus        [32]byte
	RemoteStatusHash [32]byte
	MaxSeqNo         uint32
	TxSeqNo          uint32
	RxSeqNo          uint32

	// rxSeqSeen distinguishes "no inbound message ever accepted" from
	// "accepted seq_no 0", since seq_no 0 is itself a valid first value
	// (the fixed starting index, SPEC_FULL.md §9) and RxSeqNo can't
	// otherwise represent "below zero" in a uint32.
	rxSeqSeen bool
}

// Valid checks the ticket invariants from spec §3 that must hold at any
// point the engine hands a ticket to the store (CREATE/UPDATE).
func (t *Ticket) Valid() bool {
	if t.RemoteDeviceID == t.OwnDeviceID {
		return false
	}
	if t.TxSeqNo > t.MaxSeqNo+1 {
		return false
	}
	if t.RxSeqNo > t.MaxSeqNo && t.rxSeqSeen {
		return false
	}
	return true
}

// CanSend reports whether the ticket can mint one more authenticated
// message without exceeding MaxSeqNo (spec §4.5.4, §8 boundary case).
func (t *Ticket) CanSend() bool {
	return t.TxSeqNo <= t.MaxSeqNo
}

// NextSendSeq returns the seq_no to assign to the next outbound
// authenticated message; the caller must check CanSend first.
func (t *Ticket) NextSendSeq() uint32 {
	return t.TxSeqNo
}

// AdvanceSend records that seq_no was sent successfully.
func (t *Ticket) AdvanceSend(seqNo uint32) {
	t.TxSeqNo = seqNo + 1
}

// AcceptableRecv enforces strict-monotone ordering (spec §4.4 step 4,
// §8 "seq_no == rx_seq_no is rejected as replay").
func (t *Ticket) AcceptableRecv(seqNo uint32) bool {
	if !t.rxSeqSeen {
		return true
	}
	return seqNo > t.RxSeqNo
}

// AdvanceRecv records that seqNo was accepted from the peer.
func (t *Ticket) AdvanceRecv(seqNo uint32) {
	t.RxSeqNo = seqNo
	t.rxSeqSeen = true
}
