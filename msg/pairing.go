package msg

import "time"

// pairingState tracks one in-flight Pairing transaction (spec §4.5.2).
// The client proposes an X25519 context and a candidate max_seq_no; the
// server answers with its own X25519 context. Once both public values
// have crossed the wire, both sides hold an identical cipher_key and can
// compute the same 6-digit verification digest from it plus both sides'
// fresh status nonces. The ticket is only created once both sides have
// sent AND received DIGEST_MATCH.
type pairingState struct {
	asClient bool

	clientCtx *x25519ClientCtx // set only on the client side

	haveSharedSecret bool
	cipherKey        [32]byte
	clientOwnStatus  [32]byte
	serverOwnStatus  [32]byte
	proposedMaxSeqNo uint32
	peerDeviceID     uint64

	sentVerdict bool
	sentMatch   bool
	recvMatch   bool

	deadline time.Time
}

const pairingReqPayloadSize = 36 + 4 + 32 // client pubkey wire + max_seq_no + client own_status
const pairingRspPayloadSize = 33 + 32     // server pubkey wire + server own_status

// TxPairingRequest starts pairing from the client side, proposing
// maxSeqNo as the ticket's eventual MaxSeqNo (spec §4.5.2, §6.2).
func (e *Engine) TxPairingRequest(maxSeqNo uint32) error {
	e.mu.Lock()
	if e.connSts != ConnConnected || e.trnSts != TrnNone {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	if !e.pairingOn {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}

	clientCtx, clientPubWire, err := x25519ClientContext()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ownStatus, err := randomBytes(32)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	ps := &pairingState{
		asClient:         true,
		clientCtx:        clientCtx,
		proposedMaxSeqNo: maxSeqNo,
		deadline:         time.Now().Add(e.cfg.PairingTimeout),
	}
	copy(ps.clientOwnStatus[:], ownStatus)
	e.trnSts = TrnPairing
	e.trnStart = time.Now()
	e.trnDeadline = e.cfg.PairingTimeout
	e.pairing = ps
	e.mu.Unlock()

	payload := make([]byte, pairingReqPayloadSize)
	copy(payload[:36], clientPubWire)
	putUint32BE(payload[36:40], maxSeqNo)
	copy(payload[40:72], ownStatus)

	if err := e.sendUnauthenticated(KindPairingReq, payload); err != nil {
		e.mu.Lock()
		e.trnSts = TrnNone
		e.pairing = nil
		e.mu.Unlock()
		return err
	}
	e.postEvent(Event{Kind: EvtPairingStart})
	return nil
}

// PairingDigest returns the 6-digit human-verifiable code for the
// in-flight pairing transaction, once both sides' public keys and status
// nonces have crossed the wire (spec §4.5.2). Hosts display this value
// out of band (e.g. next to the same code shown by the peer's host) and
// feed the user's verdict to TxPairingVerdict.
func (e *Engine) PairingDigest() (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trnSts != TrnPairing || e.pairing == nil || !e.pairing.haveSharedSecret {
		return 0, newErr(ErrInvalidState, nil)
	}
	return pairingDigest(e.pairing), nil
}

func pairingDigest(p *pairingState) uint32 {
	msg := make([]byte, 0, 32+32+32)
	msg = append(msg, p.cipherKey[:]...)
	msg = append(msg, p.clientOwnStatus[:]...)
	msg = append(msg, p.serverOwnStatus[:]...)
	sum := sha256Sum(msg)
	v := (uint32(sum[0])<<16 | uint32(sum[1])<<8 | uint32(sum[2])) >> 4 // top 20 bits
	return v % 1000000
}

// TxPairingVerdict submits the host's confirmation (or rejection) of the
// displayed pairing digest (spec §4.5.2, §6.2).
func (e *Engine) TxPairingVerdict(match bool) error {
	e.mu.Lock()
	if e.trnSts != TrnPairing || e.pairing == nil || !e.pairing.haveSharedSecret {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	p := e.pairing
	p.sentVerdict = true
	p.sentMatch = match
	shouldFinalize := match && p.recvMatch
	shouldFail := !match
	e.mu.Unlock()

	kind := KindDigestMatch
	if !match {
		kind = KindDigestErr
	}
	if err := e.sendUnauthenticated(kind, nil); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trnSts != TrnPairing || e.pairing != p {
		return nil
	}
	if shouldFail {
		e.failTransactionLocked(newErr(ErrAuthFail, nil))
		return nil
	}
	if shouldFinalize {
		e.finalizePairingLocked()
	}
	return nil
}

// handlePairingMessage processes one inbound PAIRING_REQ/PAIRING_RSP/
// DIGEST_MATCH/DIGEST_ERR frame.
func (e *Engine) handlePairingMessage(m *Message) {
	switch m.Kind {
	case KindPairingReq:
		e.onPairingReq(m)
	case KindPairingRsp:
		e.onPairingRsp(m)
	case KindDigestMatch:
		e.onDigestVerdict(m, true)
	case KindDigestErr:
		e.onDigestVerdict(m, false)
	}
}

func (e *Engine) onPairingReq(m *Message) {
	e.mu.Lock()
	if !e.pairingOn || e.trnSts != TrnNone {
		e.mu.Unlock()
		return
	}
	if len(m.Payload) != pairingReqPayloadSize {
		e.mu.Unlock()
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: m.DeviceID, Err: newErrf(ErrInvalidLength, "pairing request payload %d bytes", len(m.Payload))})
		return
	}
	if m.DeviceID == e.ownDeviceID {
		e.mu.Unlock()
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: m.DeviceID, Err: newErrf(ErrInvalidArg, "pairing request claims our own device_id")})
		return
	}
	e.trnSts = TrnPairing
	e.trnStart = time.Now()
	e.trnDeadline = e.cfg.PairingTimeout
	e.mu.Unlock()

	clientPubWire := m.Payload[:36]
	maxSeqNo := getUint32BE(m.Payload[36:40])
	var clientOwnStatus [32]byte
	copy(clientOwnStatus[:], m.Payload[40:72])

	serverCtx, serverPubWire, err := x25519ServerContext(clientPubWire)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
		return
	}
	serverOwnStatus, err := randomBytes(32)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
		return
	}

	ps := &pairingState{
		asClient:         false,
		haveSharedSecret: true,
		cipherKey:        serverCtx.shared,
		clientOwnStatus:  clientOwnStatus,
		proposedMaxSeqNo: maxSeqNo,
		peerDeviceID:     m.DeviceID,
		deadline:         time.Now().Add(e.cfg.PairingTimeout),
	}
	copy(ps.serverOwnStatus[:], serverOwnStatus)

	e.mu.Lock()
	if e.trnSts != TrnPairing {
		e.mu.Unlock()
		return
	}
	e.pairing = ps
	e.mu.Unlock()

	payload := make([]byte, pairingRspPayloadSize)
	copy(payload[:33], serverPubWire)
	copy(payload[33:65], serverOwnStatus)

	if err := e.sendUnauthenticated(KindPairingRsp, payload); err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
		return
	}
	e.postEvent(Event{Kind: EvtPairingStart})
}

func (e *Engine) onPairingRsp(m *Message) {
	e.mu.Lock()
	if e.trnSts != TrnPairing || e.pairing == nil || !e.pairing.asClient || e.pairing.haveSharedSecret {
		e.mu.Unlock()
		return
	}
	if len(m.Payload) != pairingRspPayloadSize {
		e.failTransactionLocked(newErrf(ErrInvalidLength, "pairing response payload %d bytes", len(m.Payload)))
		e.mu.Unlock()
		return
	}
	p := e.pairing
	e.mu.Unlock()

	serverPubWire := m.Payload[:33]
	var serverOwnStatus [32]byte
	copy(serverOwnStatus[:], m.Payload[33:65])

	shared, err := x25519ClientSecret(p.clientCtx, serverPubWire)
	if err != nil {
		e.mu.Lock()
		e.failTransactionLocked(err)
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trnSts != TrnPairing || e.pairing != p {
		return
	}
	p.cipherKey = shared
	p.serverOwnStatus = serverOwnStatus
	p.peerDeviceID = m.DeviceID
	p.haveSharedSecret = true
}

func (e *Engine) onDigestVerdict(m *Message, match bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trnSts != TrnPairing || e.pairing == nil {
		return
	}
	if !match {
		e.failTransactionLocked(newErr(ErrAuthFail, nil))
		return
	}
	p := e.pairing
	p.recvMatch = true
	if p.sentVerdict && p.sentMatch {
		e.finalizePairingLocked()
	}
}

// finalizePairingLocked creates the ticket and ends the transaction.
// Caller must hold e.mu and have confirmed both sides sent+received
// DIGEST_MATCH.
func (e *Engine) finalizePairingLocked() {
	p := e.pairing
	var ownStatus [32]byte
	var remoteStatusHash [32]byte
	if p.asClient {
		ownStatus = p.clientOwnStatus
		remoteStatusHash = sha256Sum(p.serverOwnStatus[:])
	} else {
		ownStatus = p.serverOwnStatus
		remoteStatusHash = sha256Sum(p.clientOwnStatus[:])
	}

	t := &Ticket{
		OwnDeviceID:      e.ownDeviceID,
		RemoteDeviceID:   p.peerDeviceID,
		CipherKey:        p.cipherKey,
		OwnStatus:        ownStatus,
		RemoteStatusHash: remoteStatusHash,
		MaxSeqNo:         p.proposedMaxSeqNo,
	}

	e.trnSts = TrnNone
	e.pairing = nil

	if !t.Valid() {
		go e.postEvent(Event{Kind: EvtPairingErr, DeviceID: p.peerDeviceID, Err: newErr(ErrInvalidArg, nil)})
		return
	}
	e.remoteDevID = p.peerDeviceID

	if err := e.store.Create(t); err != nil {
		go e.postEvent(Event{Kind: EvtPairingErr, DeviceID: p.peerDeviceID, Err: newErr(ErrStorage, err)})
		return
	}
	go e.postEvent(Event{Kind: EvtPairingSuccess, DeviceID: p.peerDeviceID})
}
