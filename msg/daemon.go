package msg

import "time"

// receiveDaemon owns the Assembler exclusively: it drains byteQueue,
// reassembles frames, and verifies/dispatches each one as it completes.
// It also watches the single active transaction's deadline on a fixed
// tick, since nothing else polls for transaction timeouts (spec §4.6).
func (e *Engine) receiveDaemon() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.DaemonTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case chunk := <-e.byteQueue:
			frames, err := e.assembler.Feed(chunk)
			for _, f := range frames {
				e.handleFrame(f)
			}
			if err != nil {
				log.Debugf("reassembly error, buffer reset: %v", err)
			}
		case <-ticker.C:
			e.checkTransactionTimeout()
		}
	}
}

// checkTransactionTimeout fails the active transaction, if any, once its
// deadline has passed (spec §4.5: Open/Pairing 90s, status-check 5s).
func (e *Engine) checkTransactionTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trnSts == TrnNone {
		return
	}
	if time.Since(e.trnStart) < e.trnDeadline {
		return
	}

	switch e.trnSts {
	case TrnOpen:
		e.trnSts = TrnNone
		go e.postEvent(Event{Kind: EvtOpenTimeout})
	case TrnPairing:
		e.pairing = nil
		e.trnSts = TrnNone
		go e.postEvent(Event{Kind: EvtPairingTimeout})
	case TrnStsChk:
		e.statusCheck = nil
		e.trnSts = TrnNone
		go e.postEvent(Event{Kind: EvtStatusTimeout})
	}
}

// eventDaemon serializes delivery of posted events to the host callback,
// one at a time, in the order they were posted (spec §4.6, §5: the host
// must not re-enter the engine from inside eventCb).
func (e *Engine) eventDaemon() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case evt := <-e.eventQueue:
			if e.eventCb != nil {
				e.eventCb(evt)
			}
		}
	}
}
