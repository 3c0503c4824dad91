package msg

import "crypto/hmac"

// authPreimage is the HMAC preimage from spec §4.4:
// kind || length || seq_no || device_id || payload.
func authPreimage(kind Kind, length uint16, seqNo uint32, deviceID uint64, payload []byte) []byte {
	buf := make([]byte, 1+2+4+8+len(payload))
	buf[0] = byte(kind)
	putUint16BE(buf[1:3], length)
	putUint32BE(buf[3:7], seqNo)
	putUint64BE(buf[7:15], deviceID)
	copy(buf[15:], payload)
	return buf
}

// deriveIV computes the CIPHERTEXT IV from the ticket's status pair and
// seq_no (spec §4.4 step 2). The literal spec formula, "ticket.own_status
// XOR ticket.remote_status_hash", is asymmetric between the two sides
// (each stores the *other's* status as a hash, never the raw bytes) and
// so cannot reproduce the same IV on both ends as written. This computes
// an epoch value both sides can derive identically — SHA-256(own_status)
// XOR remote_status_hash — which is the same 32 bytes on both peers
// because each side's remote_status_hash is exactly SHA-256(peer's
// own_status) (spec §3 ticket invariant 3). See the own_status/
// remote_status_hash note in DESIGN.md.
func deriveIV(ticket *Ticket, seqNo uint32) [16]byte {
	ownHash := sha256Sum(ticket.OwnStatus[:])
	var epoch [32]byte
	for i := range epoch {
		epoch[i] = ownHash[i] ^ ticket.RemoteStatusHash[i]
	}
	buf := make([]byte, 36)
	copy(buf[:32], epoch[:])
	putUint32BE(buf[32:], seqNo)
	full := sha256Sum(buf)
	var iv [16]byte
	copy(iv[:], full[:16])
	return iv
}

func (e *Engine) fillAuthTag(m *Message, ticket *Ticket) {
	if m.Kind.Authenticated() {
		m.AuthTag = hmacSHA256(ticket.CipherKey[:], authPreimage(m.Kind, m.Length, m.SeqNo, m.DeviceID, m.Payload))
		return
	}
	for i := range m.AuthTag {
		m.AuthTag[i] = e.cfg.AuthCheckValue
	}
}

// buildAuthenticated builds and sends DATA/CIPHERTEXT/STATUS_* messages,
// which require an existing ticket (spec §4.4 "Building a message").
func (e *Engine) buildAuthenticated(kind Kind, payload []byte, peerDeviceID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ticket, err := e.store.Read(peerDeviceID)
	if err != nil {
		return newErr(ErrUnknownPeer, err)
	}
	if !ticket.CanSend() {
		return newErr(ErrSeqExhausted, nil)
	}

	m := &Message{Kind: kind, DeviceID: e.ownDeviceID, SeqNo: ticket.NextSendSeq(), Payload: payload}

	if kind == KindCiphertext {
		iv := deriveIV(ticket, m.SeqNo)
		ct, err := aesCBCEncrypt(ticket.CipherKey[:], iv[:], pkcs7Pad(payload, 16))
		if err != nil {
			return err
		}
		m.Payload = ct
	}
	m.Length = uint16(len(m.Payload))
	e.fillAuthTag(m, ticket)

	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	if err := e.transport.Send(e.remoteAddr, frame); err != nil {
		return newErr(ErrTransport, err)
	}

	ticket.AdvanceSend(m.SeqNo)
	if err := e.store.Update(ticket); err != nil {
		return newErr(ErrStorage, err)
	}
	return nil
}

// sendUnauthenticated builds and sends a fixed-fill-tag message
// (RESET/PING/PAIRING_*/DIGEST_*/RESPONSE/STATUS_REQ is authenticated so
// excluded here) without touching any ticket.
func (e *Engine) sendUnauthenticated(kind Kind, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendUnauthenticatedLocked(kind, payload)
}

func (e *Engine) sendUnauthenticatedLocked(kind Kind, payload []byte) error {
	m := &Message{Kind: kind, DeviceID: e.ownDeviceID, SeqNo: 0, Payload: payload}
	m.Length = uint16(len(m.Payload))
	e.fillAuthTag(m, nil)
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	if err := e.transport.Send(e.remoteAddr, frame); err != nil {
		return newErr(ErrTransport, err)
	}
	return nil
}

// TxReset sends RESET and tears down any local transaction state.
func (e *Engine) TxReset() error {
	e.mu.Lock()
	if e.trnSts != TrnNone {
		e.failTransactionLocked(newErr(ErrInvalidState, nil))
	}
	e.mu.Unlock()
	return e.sendUnauthenticated(KindReset, nil)
}

// TxPing sends PING; the peer replies with RESPONSE (spec §4.4 Dispatch).
func (e *Engine) TxPing() error {
	return e.sendUnauthenticated(KindPing, nil)
}

// TxPlaintext sends an authenticated DATA message (spec §6.2).
func (e *Engine) TxPlaintext(deviceID uint64, payload []byte) error {
	return e.buildAuthenticated(KindData, payload, deviceID)
}

// TxCiphertext sends an authenticated+encrypted CIPHERTEXT message.
func (e *Engine) TxCiphertext(deviceID uint64, payload []byte) error {
	return e.buildAuthenticated(KindCiphertext, payload, deviceID)
}

// handleFrame is invoked by the receive daemon with one complete frame's
// bytes (spec §4.4 "Verifying an inbound message").
func (e *Engine) handleFrame(frame []byte) {
	m, err := DecodeFrame(frame, e.cfg.MaxLength)
	if err != nil {
		log.Debugf("frame codec error: %v", err)
		return
	}
	m.RxTimeMs = nowMs()

	if m.Kind.Authenticated() {
		if !e.verifyAuthenticated(m) {
			return
		}
	} else {
		e.checkAuthCheckValue(m)
	}

	e.dispatch(m)
}

func (e *Engine) checkAuthCheckValue(m *Message) {
	for _, b := range m.AuthTag {
		if b != e.cfg.AuthCheckValue {
			log.Warningf("kind %s carried non-standard auth-check fill (message accepted anyway)", m.Kind)
			return
		}
	}
}

// verifyAuthenticated implements spec §4.4 steps 2-6, returning true iff
// the message should proceed to dispatch.
func (e *Engine) verifyAuthenticated(m *Message) bool {
	ticket, err := e.store.Read(m.DeviceID)
	if err != nil {
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: m.DeviceID, Err: newErr(ErrUnknownPeer, nil)})
		return false
	}

	expected := hmacSHA256(ticket.CipherKey[:], authPreimage(m.Kind, m.Length, m.SeqNo, m.DeviceID, m.Payload))
	if !hmac.Equal(expected[:], m.AuthTag[:]) {
		e.noteFailure(m.DeviceID, ErrAuthFail)
		return false
	}
	if !ticket.AcceptableRecv(m.SeqNo) {
		e.noteFailure(m.DeviceID, ErrReplay)
		return false
	}

	if m.Kind == KindCiphertext {
		iv := deriveIV(ticket, m.SeqNo)
		plain, err := aesCBCDecrypt(ticket.CipherKey[:], iv[:], m.Payload)
		if err != nil {
			e.noteFailure(m.DeviceID, ErrDecryptFail)
			return false
		}
		unpadded, err := pkcs7Unpad(plain, 16)
		if err != nil {
			e.noteFailure(m.DeviceID, ErrDecryptFail)
			return false
		}
		m.Payload = unpadded
	}

	ticket.AdvanceRecv(m.SeqNo)
	if err := e.store.Update(ticket); err != nil {
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: m.DeviceID, Err: newErr(ErrStorage, err)})
		return false
	}
	e.failures.reset(m.DeviceID)

	e.mu.Lock()
	e.remoteDevID = m.DeviceID
	e.mu.Unlock()
	return true
}

func (e *Engine) noteFailure(deviceID uint64, kind ErrorKind) {
	log.Debugf("%s from device %x", kind, deviceID)
	if e.failures.recordFailure(deviceID) {
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: deviceID, Err: newErr(kind, nil)})
	}
}

// dispatch routes a verified message by kind (spec §4.4 Dispatch).
func (e *Engine) dispatch(m *Message) {
	switch m.Kind {
	case KindData:
		e.enqueueDecoded(m, EvtRxData)
	case KindCiphertext:
		e.enqueueDecoded(m, EvtRxCiphertext)
	case KindPing:
		e.postEvent(Event{Kind: EvtRxPing, DeviceID: m.DeviceID})
		if err := e.sendUnauthenticated(KindResponse, nil); err != nil {
			log.Warningf("PING auto-reply failed: %v", err)
		}
	case KindResponse:
		e.mu.Lock()
		if e.trnSts == TrnOpen {
			e.completeOpenLocked()
		}
		e.mu.Unlock()
		e.postEvent(Event{Kind: EvtRxResponse, DeviceID: m.DeviceID})
	case KindReset:
		e.mu.Lock()
		if e.trnSts != TrnNone {
			e.failTransactionLocked(newErr(ErrInvalidState, nil))
		}
		e.mu.Unlock()
		e.postEvent(Event{Kind: EvtRxReset, DeviceID: m.DeviceID})
	case KindPairingReq, KindPairingRsp, KindDigestMatch, KindDigestErr:
		e.handlePairingMessage(m)
	case KindStatusReq, KindStatusRsp1, KindStatusRsp2:
		e.handleStatusMessage(m)
	}
}

func (e *Engine) enqueueDecoded(m *Message, evt EventKind) {
	if !e.rxEnabledFor(m.Kind) {
		return
	}
	if err := sendTimeout(e.rxQueue, m, e.cfg.QueueTimeout); err != nil {
		e.postEvent(Event{Kind: EvtHandlingErr, DeviceID: m.DeviceID, Err: newErr(ErrQueueFull, nil)})
		return
	}
	e.postEvent(Event{Kind: evt, DeviceID: m.DeviceID, Message: m})
}

func (e *Engine) rxEnabledFor(k Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rxEnabled[k]
}
