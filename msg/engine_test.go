package msg

import (
	"sync"
	"testing"
	"time"
)

// pipeTransport wires one Engine's outbound frames directly into another
// Engine's OnAttributeWrite, standing in for the BLE adapter in these
// in-process tests. It also remembers the last frame sent so a test can
// replay it at the transport layer, the same way a malicious or buggy
// peer could resend a captured frame over the air.
type pipeTransport struct {
	peer *Engine

	mu        sync.Mutex
	lastFrame []byte
}

func (p *pipeTransport) Send(peerAddress [6]byte, frame []byte) error {
	p.mu.Lock()
	p.lastFrame = append([]byte(nil), frame...)
	p.mu.Unlock()
	return p.peer.OnAttributeWrite(peerAddress, frame)
}

func (p *pipeTransport) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.lastFrame...)
}

var clientAddr = [6]byte{0, 0, 0, 0, 0, 1}
var serverAddr = [6]byte{0, 0, 0, 0, 0, 2}

func newEnginePair(t *testing.T) (client, server *Engine, clientTransport, serverTransport *pipeTransport, clientEvents, serverEvents chan Event) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StatusTimeout = 2 * time.Second
	cfg.ConsecutiveFailureThreshold = 1

	clientEvents = make(chan Event, 256)
	serverEvents = make(chan Event, 256)

	client = NewEngine(cfg, RoleClient, 1, NewMemTicketStore(), nil, func(e Event) { clientEvents <- e })
	server = NewEngine(cfg, RoleServer, 2, NewMemTicketStore(), nil, func(e Event) { serverEvents <- e })

	clientTransport = &pipeTransport{peer: server}
	serverTransport = &pipeTransport{peer: client}
	client.transport = clientTransport
	server.transport = serverTransport

	client.Start()
	server.Start()

	client.OnConnect(serverAddr)
	server.OnConnect(clientAddr)

	return
}

func waitForEvent(t *testing.T, events chan Event, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-events:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", kind)
			return Event{}
		}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not satisfied within %s", timeout)
}

func completePairing(t *testing.T, client, server *Engine, clientEvents, serverEvents chan Event, maxSeqNo uint32) {
	t.Helper()
	if err := client.TxPairingRequest(maxSeqNo); err != nil {
		t.Fatalf("TxPairingRequest: %v", err)
	}
	waitForEvent(t, clientEvents, EvtPairingStart, time.Second)
	waitForEvent(t, serverEvents, EvtPairingStart, time.Second)

	var clientDigest, serverDigest uint32
	waitUntil(t, time.Second, func() bool {
		d, err := client.PairingDigest()
		clientDigest = d
		return err == nil
	})
	waitUntil(t, time.Second, func() bool {
		d, err := server.PairingDigest()
		serverDigest = d
		return err == nil
	})
	if clientDigest != serverDigest {
		t.Fatalf("digest mismatch before verdict: client=%d server=%d", clientDigest, serverDigest)
	}
	if clientDigest >= 1000000 {
		t.Fatalf("digest %d outside the documented 6-digit range", clientDigest)
	}

	if err := server.TxPairingVerdict(true); err != nil {
		t.Fatalf("server TxPairingVerdict: %v", err)
	}
	if err := client.TxPairingVerdict(true); err != nil {
		t.Fatalf("client TxPairingVerdict: %v", err)
	}

	waitForEvent(t, clientEvents, EvtPairingSuccess, time.Second)
	waitForEvent(t, serverEvents, EvtPairingSuccess, time.Second)
}

func TestEnginePairingAndCiphertextRoundTrip(t *testing.T) {
	client, server, _, _, clientEvents, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	completePairing(t, client, server, clientEvents, serverEvents, 1000)

	if !client.IsPaired(2) {
		t.Fatalf("client should consider device 2 paired")
	}
	if !server.IsPaired(1) {
		t.Fatalf("server should consider device 1 paired")
	}

	payload := []byte("hello over an encrypted link")
	if err := client.TxCiphertext(2, payload); err != nil {
		t.Fatalf("TxCiphertext: %v", err)
	}
	waitForEvent(t, serverEvents, EvtRxCiphertext, time.Second)

	m, err := server.RxMsg(time.Second)
	if err != nil {
		t.Fatalf("RxMsg: %v", err)
	}
	if string(m.Payload) != string(payload) {
		t.Fatalf("payload = %q, want %q", m.Payload, payload)
	}
}

func TestEnginePlaintextRoundTrip(t *testing.T) {
	client, server, _, _, clientEvents, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	completePairing(t, client, server, clientEvents, serverEvents, 1000)

	payload := []byte("plaintext status line")
	if err := server.TxPlaintext(1, payload); err != nil {
		t.Fatalf("TxPlaintext: %v", err)
	}
	waitForEvent(t, clientEvents, EvtRxData, time.Second)

	m, err := client.RxMsg(time.Second)
	if err != nil {
		t.Fatalf("RxMsg: %v", err)
	}
	if string(m.Payload) != string(payload) {
		t.Fatalf("payload = %q, want %q", m.Payload, payload)
	}
}

func TestEngineReplayRejected(t *testing.T) {
	client, server, clientTransport, _, clientEvents, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	completePairing(t, client, server, clientEvents, serverEvents, 1000)

	if err := client.TxCiphertext(2, []byte("one time only")); err != nil {
		t.Fatalf("TxCiphertext: %v", err)
	}
	waitForEvent(t, serverEvents, EvtRxCiphertext, time.Second)
	if _, err := server.RxMsg(time.Second); err != nil {
		t.Fatalf("RxMsg: %v", err)
	}

	replay := clientTransport.last()
	if err := server.OnAttributeWrite(clientAddr, replay); err != nil {
		t.Fatalf("OnAttributeWrite: %v", err)
	}
	evt := waitForEvent(t, serverEvents, EvtHandlingErr, time.Second)
	ce, ok := evt.Err.(*CoreError)
	if !ok || ce.Kind != ErrReplay {
		t.Fatalf("got error %v, want ErrReplay", evt.Err)
	}
}

func TestEnginePairingDigestMismatchAborts(t *testing.T) {
	client, server, _, _, clientEvents, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	if err := client.TxPairingRequest(1000); err != nil {
		t.Fatalf("TxPairingRequest: %v", err)
	}
	waitForEvent(t, clientEvents, EvtPairingStart, time.Second)
	waitForEvent(t, serverEvents, EvtPairingStart, time.Second)

	waitUntil(t, time.Second, func() bool {
		_, err := client.PairingDigest()
		return err == nil
	})
	waitUntil(t, time.Second, func() bool {
		_, err := server.PairingDigest()
		return err == nil
	})

	if err := client.TxPairingVerdict(false); err != nil {
		t.Fatalf("client TxPairingVerdict: %v", err)
	}
	waitForEvent(t, clientEvents, EvtPairingErr, time.Second)
	waitForEvent(t, serverEvents, EvtPairingErr, time.Second)

	if client.IsPaired(2) {
		t.Fatalf("client should not be paired after a digest mismatch")
	}
	if server.IsPaired(1) {
		t.Fatalf("server should not be paired after a digest mismatch")
	}
}

func TestEngineStatusCheckRotatesTicket(t *testing.T) {
	client, server, _, _, clientEvents, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	completePairing(t, client, server, clientEvents, serverEvents, 1000)

	before, err := client.store.Read(2)
	if err != nil {
		t.Fatalf("Read ticket before status check: %v", err)
	}

	if err := client.TxStatusCheck(); err != nil {
		t.Fatalf("TxStatusCheck: %v", err)
	}
	waitForEvent(t, clientEvents, EvtStatusChk, time.Second)
	waitForEvent(t, clientEvents, EvtStatusOK, 2*time.Second)
	waitForEvent(t, serverEvents, EvtStatusOK, 2*time.Second)

	after, err := client.store.Read(2)
	if err != nil {
		t.Fatalf("Read ticket after status check: %v", err)
	}
	if after.OwnStatus == before.OwnStatus {
		t.Fatalf("own_status did not rotate")
	}
	if after.RemoteStatusHash == before.RemoteStatusHash {
		t.Fatalf("remote_status_hash did not rotate")
	}

	serverTicket, err := server.store.Read(1)
	if err != nil {
		t.Fatalf("Read server ticket: %v", err)
	}
	if serverTicket.RemoteStatusHash != sha256Sum(after.OwnStatus[:]) {
		t.Fatalf("server's view of client's status hash does not match client's rotated own_status")
	}
}

// TestEnginePairingRejectsSpoofedOwnDeviceID exercises the self-ticket
// guard in onPairingReq: a PAIRING_REQ claiming the server's own
// device_id is rejected with INVALID_ARG before any ECDH work, no
// pairing transaction starts, and no ticket for that device_id exists.
// The Ticket.Valid() check in finalizePairingLocked is not reached here.
func TestEnginePairingRejectsSpoofedOwnDeviceID(t *testing.T) {
	client, server, _, _, _, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	spoofed := &Message{
		Kind:     KindPairingReq,
		DeviceID: server.ownDeviceID, // claims to be the server itself
		SeqNo:    0,
		Payload:  make([]byte, pairingReqPayloadSize),
	}
	client.fillAuthTag(spoofed, nil)
	frame, err := EncodeFrame(spoofed)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	if err := server.OnAttributeWrite(clientAddr, frame); err != nil {
		t.Fatalf("OnAttributeWrite: %v", err)
	}

	evt := waitForEvent(t, serverEvents, EvtHandlingErr, time.Second)
	if !isErrKind(evt.Err, ErrInvalidArg) {
		t.Fatalf("got error %v, want ErrInvalidArg", evt.Err)
	}
	if server.TransactionSts() != TrnNone {
		t.Fatalf("server should not have entered a pairing transaction")
	}
	if server.IsPaired(server.ownDeviceID) {
		t.Fatalf("server must never create a ticket for its own device_id")
	}
}

// TestEngineSeqExhaustion drives spec.md §8 scenario 6 end to end through
// two real Engines: once a ticket's max_seq_no is reached, a further
// TxPlaintext fails with ErrSeqExhausted and the peer has accepted
// exactly the messages sent before exhaustion.
func TestEngineSeqExhaustion(t *testing.T) {
	client, server, _, _, clientEvents, serverEvents := newEnginePair(t)
	defer client.Close()
	defer server.Close()

	const maxSeqNo = 2 // allows seq_no 0, 1, 2: exactly three sends
	completePairing(t, client, server, clientEvents, serverEvents, maxSeqNo)

	for i := 0; i < 3; i++ {
		if err := client.TxPlaintext(2, []byte{byte(i)}); err != nil {
			t.Fatalf("TxPlaintext #%d: %v", i, err)
		}
		waitForEvent(t, serverEvents, EvtRxData, time.Second)
		m, err := server.RxMsg(time.Second)
		if err != nil {
			t.Fatalf("RxMsg #%d: %v", i, err)
		}
		if len(m.Payload) != 1 || m.Payload[0] != byte(i) {
			t.Fatalf("message #%d payload = %v, want [%d]", i, m.Payload, i)
		}
	}

	err := client.TxPlaintext(2, []byte("one too many"))
	if !isErrKind(err, ErrSeqExhausted) {
		t.Fatalf("4th send: got %v, want ErrSeqExhausted", err)
	}
}

// TestEngineLinkPairingDelegationStates drives a central's link through
// every ConnectionSts value the link-layer pairing delegation sets: an
// accepted numeric comparison ending in ConnConnected, then a rejected
// passkey entry ending in ConnError.
func TestEngineLinkPairingDelegationStates(t *testing.T) {
	cfg := DefaultConfig()
	client := NewEngine(cfg, RoleClient, 1, NewMemTicketStore(), &pipeTransport{}, func(Event) {})
	client.Start()
	defer client.Close()

	if client.ConnectionSts() != ConnDisconnected {
		t.Fatalf("initial ConnectionSts = %s, want DISCONNECTED", client.ConnectionSts())
	}

	client.OnConnecting(serverAddr)
	if client.ConnectionSts() != ConnConnecting {
		t.Fatalf("ConnectionSts = %s, want CONNECTING", client.ConnectionSts())
	}

	client.OnNumericComparisonRequest(serverAddr, 123456)
	if client.ConnectionSts() != ConnWaitNumChk {
		t.Fatalf("ConnectionSts = %s, want WAIT_NUM_CHK", client.ConnectionSts())
	}

	client.OnLinkPairingResolved(serverAddr, true)
	if client.ConnectionSts() != ConnConnected {
		t.Fatalf("ConnectionSts = %s, want CONNECTED after accepted comparison", client.ConnectionSts())
	}

	client.OnDisconnect(serverAddr)
	client.OnConnecting(serverAddr)
	client.OnPasskeyEntryRequest(serverAddr)
	if client.ConnectionSts() != ConnWaitPasskey {
		t.Fatalf("ConnectionSts = %s, want WAIT_PASSKEY", client.ConnectionSts())
	}

	client.OnLinkPairingResolved(serverAddr, false)
	if client.ConnectionSts() != ConnError {
		t.Fatalf("ConnectionSts = %s, want ERROR after rejected passkey", client.ConnectionSts())
	}
}
