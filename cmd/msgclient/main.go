// Command msgclient hosts the central/client half of a secure BLE
// messaging link: it scans for the advertised service, connects to the
// first peer found, and runs the Open transaction, exposing its state to
// cmd/blectl over a control socket. It does not start pairing or
// status-check transactions itself.
// Adapted from the teacher's krd daemon main in the same way as
// cmd/msgserver, generalized to the central role.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	uuid "github.com/satori/go.uuid"

	"krypt.co/blemsg/adapter"
	"krypt.co/blemsg/control"
	"krypt.co/blemsg/msg"
)

const (
	serviceUUIDStr = "eebdf2c0-1c9d-4f52-8b1d-6a1f6e5e1a10"
	charUUIDStr    = "eebdf2c1-1c9d-4f52-8b1d-6a1f6e5e1a10"
)

func main() {
	deviceID := flag.Uint64("device-id", 0, "this client's own device id")
	ticketDir := flag.String("ticket-dir", "/var/lib/blemsg/tickets", "directory holding persisted session tickets")
	socketPath := flag.String("socket", "/tmp/blemsg-ctl.sock", "control socket path")
	flag.Parse()

	if *deviceID == 0 {
		fmt.Fprintln(os.Stderr, "msgclient: -device-id is required")
		os.Exit(1)
	}

	dev, err := newDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgclient: opening BLE device: %v\n", err)
		os.Exit(1)
	}
	ble := adapter.NewBLEAdapter(dev)

	store := msg.FileTicketStore{Dir: *ticketDir}

	engine := msg.InitClient(msg.DefaultConfig(), *deviceID, store, ble, func(evt msg.Event) {
		fmt.Printf("event: %s device=%x\n", evt.Kind, evt.DeviceID)
	})

	ble.SetAttributeWriteHandler(engine.OnAttributeWrite)
	ble.SetConnectionHandler(engine.OnConnect, engine.OnDisconnect)
	// Unattended: accept the link-layer numeric-comparison code and
	// reject any passkey-entry request, same rationale as cmd/msgserver.
	ble.SetPairingDelegateHandler(
		func(peerAddress [6]byte, code uint32, confirm func(bool)) {
			engine.OnNumericComparisonRequest(peerAddress, code)
			engine.OnLinkPairingResolved(peerAddress, true)
			confirm(true)
		},
		func(peerAddress [6]byte, provide func(uint32, bool)) {
			engine.OnPasskeyEntryRequest(peerAddress)
			engine.OnLinkPairingResolved(peerAddress, false)
			provide(0, false)
		},
	)

	svcUUID := uuid.FromStringOrNil(serviceUUIDStr)
	charUUID := uuid.FromStringOrNil(charUUIDStr)
	if err := ble.InitClient(svcUUID, charUUID); err != nil {
		fmt.Fprintf(os.Stderr, "msgclient: preparing scan: %v\n", err)
		os.Exit(1)
	}

	var connectOnce sync.Once
	if err := ble.StartScan(func(peerAddress [6]byte, localName string) {
		connectOnce.Do(func() {
			go func() {
				if err := ble.StopScan(); err != nil {
					fmt.Fprintf(os.Stderr, "msgclient: stop scan: %v\n", err)
				}
				engine.OnConnecting(peerAddress)
				if err := ble.Connect(peerAddress); err != nil {
					fmt.Fprintf(os.Stderr, "msgclient: connect to %x: %v\n", peerAddress, err)
					return
				}
				if err := engine.Open(); err != nil {
					fmt.Fprintf(os.Stderr, "msgclient: open: %v\n", err)
				}
			}()
		})
	}); err != nil {
		fmt.Fprintf(os.Stderr, "msgclient: scan: %v\n", err)
		os.Exit(1)
	}

	listener, err := control.Listen(*socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgclient: control socket: %v\n", err)
		os.Exit(1)
	}
	ctlServer := control.NewServer(engine, listener)
	go func() {
		if err := ctlServer.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "msgclient: control server stopped: %v\n", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	listener.Close()
	engine.Close()
	ble.Close()
}
