// Package adapter implements the narrow BLE GATT collaborator the
// messaging core treats as an external dependency (spec §6.1): nothing
// in package msg imports package adapter (BLEAdapter satisfies
// msg.Transport structurally), so the core stays testable against an
// in-memory Transport.
package adapter

import uuid "github.com/satori/go.uuid"

// Adapter is the full contract a concrete BLE stack must satisfy to
// drive an Engine: GATT lifecycle plus the write/connection callbacks
// the core installs once at startup.
type Adapter interface {
	// InitServer brings up the peripheral role: advertise serviceUUID
	// with a single writable+notifiable characteristic.
	InitServer(serviceUUID uuid.UUID, charUUID uuid.UUID, localName string) error

	// InitClient brings up the central role, ready to scan and connect.
	InitClient(serviceUUID uuid.UUID, charUUID uuid.UUID) error

	StartScan(onDiscover func(peerAddress [6]byte, localName string)) error
	StopScan() error

	Connect(peerAddress [6]byte) error
	Disconnect(peerAddress [6]byte) error

	// WriteAttribute fragments data per the negotiated MTU and writes
	// each chunk as one GATT attribute write (central) or notification
	// (peripheral) to peerAddress.
	WriteAttribute(peerAddress [6]byte, data []byte) error

	// MTU reports the current negotiated MTU for peerAddress, falling
	// back to a conservative default before negotiation completes.
	MTU(peerAddress [6]byte) int

	SetAttributeWriteHandler(h func(peerAddress [6]byte, data []byte))
	SetConnectionHandler(onConnect, onDisconnect func(peerAddress [6]byte))

	// SetPairingDelegateHandler installs the host's callbacks for the
	// underlying BLE stack's own link-layer pairing (spec §6.1 pairing
	// delegation), distinct from the application-level Pairing
	// transaction package msg drives over the GATT link once connected.
	// onNumericComparison is called with a 6-digit comparison code and a
	// confirm function the host must call with the user's accept/reject
	// decision; onPasskeyEntry is called when the peer expects a typed
	// passkey, with a provide function the host must call with the
	// entered passkey (or ok=false to abort). Either handler may be nil
	// if the adapter never needs it.
	SetPairingDelegateHandler(
		onNumericComparison func(peerAddress [6]byte, code uint32, confirm func(accept bool)),
		onPasskeyEntry func(peerAddress [6]byte, provide func(passkey uint32, ok bool)),
	)

	Close() error
}

// Chunk splits frame into pieces no larger than mtu bytes, the unit of
// one GATT attribute write/notification (spec §4.1). The peer's
// msg.Assembler reconstitutes the original frame boundary from the
// fixed-size header alone, so chunk boundaries need not align with
// frame boundaries.
func Chunk(mtu int, frame []byte) [][]byte {
	if mtu <= 0 {
		mtu = 1
	}
	if len(frame) == 0 {
		return nil
	}
	var chunks [][]byte
	for off := 0; off < len(frame); off += mtu {
		end := off + mtu
		if end > len(frame) {
			end = len(frame)
		}
		chunks = append(chunks, append([]byte(nil), frame[off:end]...))
	}
	return chunks
}
