package msg

import "time"

// statusCheckState tracks one in-flight status-check transaction (spec
// §4.5.3): mutual proof that both sides still hold the cipher_key and
// status chain established at pairing (or the last rotation), ending in
// both sides rotating to a fresh status pair.
type statusCheckState struct {
	initiator    bool
	peerDeviceID uint64

	ownCandidate    [32]byte // this side's fresh new_status_candidate
	peerCandidate   [32]byte
	haveCandidates  bool

	deadline time.Time
}

// statusProofHash ties a freshly proposed candidate to the proposing
// side's established identity. Spec §4.5.3 describes this as
// SHA-256(candidate || the other party's ticket.own_status), which is
// unreproducible as written: the verifying side only ever holds a hash
// of the other party's own_status, never the raw bytes (spec §3 ticket
// invariant 3). Substituting that already-shared hash for the raw bytes
// makes the same proof independently computable on both ends — see the
// matching fix for CIPHERTEXT IV derivation and the own_status/
// remote_status_hash note in DESIGN.md.
func statusProofHash(candidate [32]byte, identityStatusHash [32]byte) [32]byte {
	buf := make([]byte, 64)
	copy(buf[:32], candidate[:])
	copy(buf[32:], identityStatusHash[:])
	return sha256Sum(buf)
}

// TxStatusCheck starts a status-check against the currently active peer
// (the device most recently established via pairing or an authenticated
// receive), per spec §6.2.
func (e *Engine) TxStatusCheck() error {
	e.mu.Lock()
	if e.connSts != ConnConnected || e.trnSts != TrnNone {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	if !e.statusChkOn {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	peerDeviceID := e.remoteDevID
	e.mu.Unlock()

	candidate, err := randomBytes(32)
	if err != nil {
		return err
	}
	sc := &statusCheckState{initiator: true, peerDeviceID: peerDeviceID}
	copy(sc.ownCandidate[:], candidate)

	e.mu.Lock()
	if e.trnSts != TrnNone {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	sc.deadline = time.Now().Add(e.cfg.StatusTimeout)
	e.trnSts = TrnStsChk
	e.trnStart = time.Now()
	e.trnDeadline = e.cfg.StatusTimeout
	e.statusCheck = sc
	e.mu.Unlock()

	if err := e.buildAuthenticated(KindStatusReq, candidate, peerDeviceID); err != nil {
		e.mu.Lock()
		e.trnSts = TrnNone
		e.statusCheck = nil
		e.mu.Unlock()
		return err
	}
	e.postEvent(Event{Kind: EvtStatusChk, DeviceID: peerDeviceID})
	return nil
}

// handleStatusMessage processes one inbound, already ticket-verified
// STATUS_REQ/STATUS_RSP1/STATUS_RSP2 message.
func (e *Engine) handleStatusMessage(m *Message) {
	switch m.Kind {
	case KindStatusReq:
		e.onStatusReq(m)
	case KindStatusRsp1:
		e.onStatusRsp1(m)
	case KindStatusRsp2:
		e.onStatusRsp2(m)
	}
}

func (e *Engine) onStatusReq(m *Message) {
	e.mu.Lock()
	if !e.statusChkOn || e.trnSts != TrnNone {
		e.mu.Unlock()
		return
	}
	if len(m.Payload) != 32 {
		e.mu.Unlock()
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: m.DeviceID, Err: newErrf(ErrInvalidLength, "status request payload %d bytes", len(m.Payload))})
		return
	}
	sc := &statusCheckState{initiator: false, peerDeviceID: m.DeviceID, deadline: time.Now().Add(e.cfg.StatusTimeout)}
	copy(sc.peerCandidate[:], m.Payload)
	e.trnSts = TrnStsChk
	e.trnStart = time.Now()
	e.trnDeadline = e.cfg.StatusTimeout
	e.statusCheck = sc
	e.mu.Unlock()

	ticket, err := e.store.Read(m.DeviceID)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrUnknownPeer, err))
		e.mu.Unlock()
		return
	}

	ownCandidate, err := randomBytes(32)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
		return
	}
	copy(sc.ownCandidate[:], ownCandidate)
	sc.haveCandidates = true

	identityHash := ticket.RemoteStatusHash // == SHA-256(initiator's established own_status)
	hash1 := statusProofHash(sc.peerCandidate, identityHash)

	payload := make([]byte, 64)
	copy(payload[:32], hash1[:])
	copy(payload[32:], ownCandidate)

	if err := e.buildAuthenticated(KindStatusRsp1, payload, m.DeviceID); err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
	}
}

func (e *Engine) onStatusRsp1(m *Message) {
	e.mu.Lock()
	if e.trnSts != TrnStsChk || e.statusCheck == nil || !e.statusCheck.initiator {
		e.mu.Unlock()
		return
	}
	sc := e.statusCheck
	if len(m.Payload) != 64 {
		e.failTransactionLocked(newErrf(ErrInvalidLength, "status response payload %d bytes", len(m.Payload)))
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ticket, err := e.store.Read(m.DeviceID)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrUnknownPeer, err))
		e.mu.Unlock()
		return
	}

	var hash1 [32]byte
	copy(hash1[:], m.Payload[:32])
	var peerCandidate [32]byte
	copy(peerCandidate[:], m.Payload[32:])

	expected := statusProofHash(sc.ownCandidate, sha256Sum(ticket.OwnStatus[:]))
	if !constantTimeEqual(expected[:], hash1[:]) {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrAuthFail, nil))
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.trnSts != TrnStsChk || e.statusCheck != sc {
		e.mu.Unlock()
		return
	}
	sc.peerCandidate = peerCandidate
	sc.haveCandidates = true
	e.mu.Unlock()

	hash2 := statusProofHash(peerCandidate, ticket.RemoteStatusHash)
	if err := e.buildAuthenticated(KindStatusRsp2, hash2[:], m.DeviceID); err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
		return
	}

	// Re-read: sending STATUS_RSP2 just advanced and persisted TxSeqNo.
	ticket, err = e.store.Read(m.DeviceID)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrUnknownPeer, err))
		e.mu.Unlock()
		return
	}
	newTicket := *ticket
	newTicket.OwnStatus = sc.ownCandidate
	newTicket.RemoteStatusHash = sha256Sum(peerCandidate[:])
	if err := e.store.Update(&newTicket); err != nil {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrStorage, err))
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.trnSts == TrnStsChk && e.statusCheck == sc {
		e.trnSts = TrnNone
		e.statusCheck = nil
		go e.postEvent(Event{Kind: EvtStatusOK, DeviceID: m.DeviceID})
	}
	e.mu.Unlock()
}

func (e *Engine) onStatusRsp2(m *Message) {
	e.mu.Lock()
	if e.trnSts != TrnStsChk || e.statusCheck == nil || e.statusCheck.initiator || !e.statusCheck.haveCandidates {
		e.mu.Unlock()
		return
	}
	sc := e.statusCheck
	if len(m.Payload) != 32 {
		e.failTransactionLocked(newErrf(ErrInvalidLength, "status response payload %d bytes", len(m.Payload)))
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ticket, err := e.store.Read(m.DeviceID)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrUnknownPeer, err))
		e.mu.Unlock()
		return
	}

	var hash2 [32]byte
	copy(hash2[:], m.Payload)
	expected := statusProofHash(sc.ownCandidate, sha256Sum(ticket.OwnStatus[:]))
	if !constantTimeEqual(expected[:], hash2[:]) {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrAuthFail, nil))
		e.mu.Unlock()
		return
	}

	newTicket := *ticket
	newTicket.OwnStatus = sc.ownCandidate
	newTicket.RemoteStatusHash = sha256Sum(sc.peerCandidate[:])
	if err := e.store.Update(&newTicket); err != nil {
		e.mu.Lock()
		e.failTransactionLocked(newErr(ErrStorage, err))
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.trnSts == TrnStsChk && e.statusCheck == sc {
		e.trnSts = TrnNone
		e.statusCheck = nil
		go e.postEvent(Event{Kind: EvtStatusOK, DeviceID: m.DeviceID})
	}
	e.mu.Unlock()
}
