package msg

import (
	"sync"
	"time"
)

// Transport is the narrow sending half of the BLE adapter contract the
// core consumes (spec §6.1): hand it one already-framed message, it
// chunks per the negotiated MTU and writes each chunk as one GATT
// attribute write/notify. The concrete implementation lives in package
// adapter; engine_test.go uses an in-memory pipe implementation instead
// of real BLE hardware.
type Transport interface {
	Send(peerAddress [6]byte, frame []byte) error
}

// Engine is the explicit, host-owned handle that replaces the teacher's
// file-local globals-plus-recursive-mutex (design note in spec §9): one
// Engine per BLE link, passed to the receive and event daemons by the
// host rather than reached via package state.
type Engine struct {
	cfg         Config
	role        Role
	ownDeviceID uint64
	store       TicketStore
	transport   Transport
	eventCb     EventCallback

	mu           sync.Mutex
	rxEnabled    [kindCount]bool
	pairingOn    bool
	statusChkOn  bool
	connSts      ConnectionSts
	trnSts       TransactionSts
	remoteAddr   [6]byte
	remoteDevID  uint64
	trnStart     time.Time
	trnDeadline  time.Duration
	pairing      *pairingState
	statusCheck  *statusCheckState

	assembler *Assembler
	failures  *failureTracker

	byteQueue  chan []byte
	rxQueue    chan *Message
	eventQueue chan Event

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine constructs an Engine for either role (spec §6.2 init_server /
// init_client share all logic past role-specific adapter setup, which is
// the caller's responsibility in package adapter).
func NewEngine(cfg Config, role Role, ownDeviceID uint64, store TicketStore, transport Transport, eventCb EventCallback) *Engine {
	e := &Engine{
		cfg:         cfg,
		role:        role,
		ownDeviceID: ownDeviceID,
		store:       store,
		transport:   transport,
		eventCb:     eventCb,
		connSts:     ConnDisconnected,
		trnSts:      TrnNone,
		pairingOn:   true,
		statusChkOn: true,
		assembler:   NewAssembler(cfg.MaxLength),
		failures:    newFailureTracker(cfg.FailureTrackerSize, cfg.ConsecutiveFailureThreshold),
		byteQueue:   make(chan []byte, cfg.ByteQueueSize),
		rxQueue:     make(chan *Message, cfg.RxQueueSize),
		eventQueue:  make(chan Event, cfg.EventQueueSize),
		stopCh:      make(chan struct{}),
	}
	for k := Kind(0); k < kindCount; k++ {
		e.rxEnabled[k] = true
	}
	return e
}

// Start launches the receive and event daemons (spec §4.6).
func (e *Engine) Start() {
	e.wg.Add(2)
	go e.receiveDaemon()
	go e.eventDaemon()
}

// Close cancels any running transaction, stops the daemons, and resets
// connection state to the disconnected terminal state (spec §5
// Cancellation).
func (e *Engine) Close() error {
	e.mu.Lock()
	e.connSts = ConnDisconnected
	if e.trnSts != TrnNone {
		e.failTransactionLocked(newErr(ErrInvalidState, nil))
	}
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	return nil
}

func (e *Engine) EnableRx(k Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k.Valid() {
		e.rxEnabled[k] = true
	}
}

func (e *Engine) DisableRx(k Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k.Valid() {
		e.rxEnabled[k] = false
	}
}

func (e *Engine) ConfigurePairing(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pairingOn = enabled
}

func (e *Engine) ConfigureStatusCheck(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusChkOn = enabled
}

func (e *Engine) IsPaired(deviceID uint64) bool {
	_, err := e.store.Read(deviceID)
	return err == nil
}

func (e *Engine) ConnectionSts() ConnectionSts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connSts
}

func (e *Engine) TransactionSts() TransactionSts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trnSts
}

// RxMsg pops one decoded message, blocking up to timeout (spec §6.2).
func (e *Engine) RxMsg(timeout time.Duration) (*Message, error) {
	return recvTimeout(e.rxQueue, timeout)
}

func (e *Engine) DeleteMessage(m *Message) {
	// Messages are owned byte sequences with no external resources to
	// release; deletion is purely a host-side ownership transfer
	// (spec §3 Lifecycles). Present for API parity with spec §6.2.
}

func (e *Engine) DeleteTicket(deviceID uint64) error {
	if err := e.store.Delete(deviceID); err != nil {
		return newErr(ErrStorage, err)
	}
	return nil
}

// ClearStatus zeroes a ticket's rotating status fields, forcing the next
// status-check to fully re-establish freshness rather than trusting any
// cached value (spec §6.2 clear_status; rotation itself still only
// happens inside a successful status-check, per the Open Question
// decision in SPEC_FULL.md §9).
func (e *Engine) ClearStatus(deviceID uint64) error {
	t, err := e.store.Read(deviceID)
	if err != nil {
		return newErr(ErrUnknownPeer, err)
	}
	t.OwnStatus = [32]byte{}
	t.RemoteStatusHash = [32]byte{}
	if err := e.store.Update(t); err != nil {
		return newErr(ErrStorage, err)
	}
	return nil
}

// OnAttributeWrite is called by the adapter on every inbound GATT
// attribute write (spec §6.1 set_attribute_write_handler); it enqueues
// the raw bytes for the receive daemon.
func (e *Engine) OnAttributeWrite(peerAddress [6]byte, data []byte) error {
	if err := sendTimeout(e.byteQueue, append([]byte(nil), data...), e.cfg.QueueTimeout); err != nil {
		return err
	}
	e.mu.Lock()
	e.remoteAddr = peerAddress
	e.mu.Unlock()
	return nil
}

// OnConnecting marks a central's outbound connection attempt (spec §3):
// the host calls this right before calling the adapter's Connect, so it
// precedes the adapter's connection handler and any link-layer pairing
// delegation. The server role has no equivalent — a peripheral only
// learns of a link once the central is already connected.
func (e *Engine) OnConnecting(peerAddress [6]byte) {
	e.mu.Lock()
	e.remoteAddr = peerAddress
	e.connSts = ConnConnecting
	e.mu.Unlock()
}

// OnNumericComparisonRequest is called by the adapter's pairing delegate
// when the underlying BLE stack's link-layer pairing needs the host to
// confirm a numeric-comparison code (spec §6.1) before the GATT link is
// usable. The host resolves the request with OnLinkPairingResolved.
func (e *Engine) OnNumericComparisonRequest(peerAddress [6]byte, code uint32) {
	e.mu.Lock()
	e.remoteAddr = peerAddress
	e.connSts = ConnWaitNumChk
	e.mu.Unlock()
	e.postEvent(Event{Kind: EvtLinkNumCmpReq, Code: code})
}

// OnPasskeyEntryRequest is called by the adapter's pairing delegate when
// the underlying BLE stack's link-layer pairing expects a host-entered
// passkey (spec §6.1). The host resolves the request with
// OnLinkPairingResolved.
func (e *Engine) OnPasskeyEntryRequest(peerAddress [6]byte) {
	e.mu.Lock()
	e.remoteAddr = peerAddress
	e.connSts = ConnWaitPasskey
	e.mu.Unlock()
	e.postEvent(Event{Kind: EvtLinkPasskeyReq})
}

// OnLinkPairingResolved is called once the host has answered a pending
// OnNumericComparisonRequest or OnPasskeyEntryRequest and the adapter has
// reported the link-layer pairing outcome. ok=false moves the link to
// ConnError rather than back to ConnDisconnected, so the host can
// distinguish a failed pairing attempt from a link that was never
// brought up (spec §3).
func (e *Engine) OnLinkPairingResolved(peerAddress [6]byte, ok bool) {
	e.mu.Lock()
	if e.connSts != ConnWaitNumChk && e.connSts != ConnWaitPasskey {
		e.mu.Unlock()
		return
	}
	if !ok {
		e.connSts = ConnError
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.OnConnect(peerAddress)
}

// OnConnect/OnDisconnect are called by the adapter's connection handler
// (spec §6.1 set_connection_handler).
func (e *Engine) OnConnect(peerAddress [6]byte) {
	e.mu.Lock()
	e.remoteAddr = peerAddress
	e.connSts = ConnConnected
	e.mu.Unlock()
	e.postEvent(Event{Kind: EvtGattConnect})
}

func (e *Engine) OnDisconnect(peerAddress [6]byte) {
	e.mu.Lock()
	e.connSts = ConnDisconnected
	if e.trnSts != TrnNone {
		e.failTransactionLocked(newErr(ErrInvalidState, nil))
	}
	e.assembler.Reset()
	e.mu.Unlock()
	e.postEvent(Event{Kind: EvtGattDisconnect})
}

func (e *Engine) postEvent(evt Event) {
	for attempt := 0; attempt <= e.cfg.MaxEventRetry; attempt++ {
		if err := sendTimeout(e.eventQueue, evt, e.cfg.QueueTimeout); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Warningf("dropping event %s after %d retries: queue full", evt.Kind, e.cfg.MaxEventRetry)
}

// failTransactionLocked resets transaction state and emits the matching
// terminal event. Caller must hold e.mu.
func (e *Engine) failTransactionLocked(cause error) {
	switch e.trnSts {
	case TrnPairing:
		e.pairing = nil
		go e.postEvent(Event{Kind: EvtPairingErr, Err: cause})
	case TrnStsChk:
		e.statusCheck = nil
		go e.postEvent(Event{Kind: EvtStatusErr, Err: cause})
	}
	e.trnSts = TrnNone
}
