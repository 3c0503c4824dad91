// Command msgserver hosts the peripheral/server half of a secure BLE
// messaging link: it advertises the GATT service, accepts one central's
// connection, and answers pairing and status-check transactions,
// exposing its state to cmd/blectl over a control socket. Structure is
// adapted from the teacher's krd daemon main (now absorbed into this
// package plus package control), rebuilt around package msg instead of
// the teacher's SSH-agent protocol.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
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
	deviceID := flag.Uint64("device-id", 0, "this server's own device id")
	ticketDir := flag.String("ticket-dir", "/var/lib/blemsg/tickets", "directory holding persisted session tickets")
	localName := flag.String("name", "blemsg-server", "advertised BLE local name")
	socketPath := flag.String("socket", "/tmp/blemsg-ctl.sock", "control socket path")
	flag.Parse()

	if *deviceID == 0 {
		fmt.Fprintln(os.Stderr, "msgserver: -device-id is required")
		os.Exit(1)
	}

	dev, err := newDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgserver: opening BLE device: %v\n", err)
		os.Exit(1)
	}
	ble := adapter.NewBLEAdapter(dev)

	store := msg.FileTicketStore{Dir: *ticketDir}

	engine := msg.InitServer(msg.DefaultConfig(), *deviceID, store, ble, func(evt msg.Event) {
		fmt.Printf("event: %s device=%x\n", evt.Kind, evt.DeviceID)
	})

	ble.SetAttributeWriteHandler(engine.OnAttributeWrite)
	ble.SetConnectionHandler(func(peerAddress [6]byte) {
		if err := engine.OpenServer(peerAddress); err != nil {
			fmt.Fprintf(os.Stderr, "msgserver: open_server: %v\n", err)
		}
	}, engine.OnDisconnect)
	// This daemon runs headless, so the link-layer numeric-comparison
	// code is accepted automatically rather than surfaced to an
	// operator; a passkey-entry request has no unattended answer and is
	// always rejected.
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
	if err := ble.InitServer(svcUUID, charUUID, *localName); err != nil {
		fmt.Fprintf(os.Stderr, "msgserver: advertising service: %v\n", err)
		os.Exit(1)
	}

	listener, err := control.Listen(*socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgserver: control socket: %v\n", err)
		os.Exit(1)
	}
	ctlServer := control.NewServer(engine, listener)
	go func() {
		if err := ctlServer.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "msgserver: control server stopped: %v\n", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	listener.Close()
	engine.Close()
	ble.Close()
}
