package msg

import "time"

// Open is the link-establishment transaction (spec §4.5.1): the side
// that initiates (always the client, once GATT_CONNECT fires) sends PING
// and waits for the peer's RESPONSE before the link is considered usable
// for pairing or status-check. It exists to confirm the frame codec and
// GATT write path both work end to end before either side risks a more
// expensive transaction against stale state.

// Open starts the Open transaction. Only the client role initiates; the
// server role answers PING automatically from the normal dispatch path
// and never calls Open itself.
func (e *Engine) Open() error {
	e.mu.Lock()
	if e.connSts != ConnConnected {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	if e.trnSts != TrnNone {
		e.mu.Unlock()
		return newErr(ErrInvalidState, nil)
	}
	e.trnSts = TrnOpen
	e.trnStart = time.Now()
	e.trnDeadline = e.cfg.OpenTimeout
	e.mu.Unlock()

	if err := e.sendUnauthenticated(KindPing, nil); err != nil {
		e.mu.Lock()
		e.trnSts = TrnNone
		e.mu.Unlock()
		return err
	}
	return nil
}

// completeOpenLocked finalizes a successful Open transaction. Caller must
// hold e.mu.
func (e *Engine) completeOpenLocked() {
	e.trnSts = TrnNone
	go e.postEvent(Event{Kind: EvtOpenSuccess})
	go e.postEvent(Event{Kind: EvtLinkSuccess})
}
