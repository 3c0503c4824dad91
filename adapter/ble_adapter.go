package adapter

import (
	"context"
	"sync"

	"github.com/currantlabs/ble"
	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"
)

var log = logging.MustGetLogger("blemsg/adapter")

const defaultMTU = 256

// BLEAdapter is the default Adapter, built on the teacher's own BLE
// library (github.com/currantlabs/ble). It generalizes the teacher's
// BluetoothPeripheral (agent/bluetooth.go), which only ever drove
// peripheral/server mode, to also run the central/client half: scanning,
// connecting, and writing characteristics on a discovered peripheral.
type BLEAdapter struct {
	device ble.Device

	mu         sync.Mutex
	role       adapterRole
	svcUUID    ble.UUID
	charUUID   ble.UUID
	mtu        map[[6]byte]int
	addrs      map[string][6]byte // ble.Addr.String() -> fixed address, for the central role
	cln        map[[6]byte]ble.Client
	charByPer  map[[6]byte]*ble.Characteristic

	writeHandler      func(peerAddress [6]byte, data []byte)
	connectHandler    func(peerAddress [6]byte)
	disconnectHandler func(peerAddress [6]byte)

	numCmpHandler  func(peerAddress [6]byte, code uint32, confirm func(accept bool))
	passkeyHandler func(peerAddress [6]byte, provide func(passkey uint32, ok bool))

	notify map[[6]byte]chan []byte // peripheral role: per-subscriber outbound queue
}

type adapterRole int

const (
	roleUnset adapterRole = iota
	rolePeripheral
	roleCentral
)

// NewBLEAdapter wraps an already-opened ble.Device (platform-specific
// construction, e.g. darwin's or linux's default HCI device, lives in the
// host binary per the teacher's own main()-side device setup).
func NewBLEAdapter(device ble.Device) *BLEAdapter {
	ble.SetDefaultDevice(device)
	return &BLEAdapter{
		device:    device,
		mtu:       map[[6]byte]int{},
		addrs:     map[string][6]byte{},
		cln:       map[[6]byte]ble.Client{},
		charByPer: map[[6]byte]*ble.Characteristic{},
		notify:    map[[6]byte]chan []byte{},
	}
}

func (a *BLEAdapter) SetAttributeWriteHandler(h func(peerAddress [6]byte, data []byte)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeHandler = h
}

func (a *BLEAdapter) SetConnectionHandler(onConnect, onDisconnect func(peerAddress [6]byte)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectHandler = onConnect
	a.disconnectHandler = onDisconnect
}

// SetPairingDelegateHandler stores the host's link-layer pairing
// callbacks. github.com/currantlabs/ble's own SMP implementation
// (linux/hci/smp.go) always replies pairingFailed rather than surfacing
// a real numeric-comparison or passkey-entry exchange to the host, so
// neither handler is invoked by this adapter today; they are stored so a
// future SMP-capable build (or a test adapter standing in for one) can
// drive them without an Adapter interface change.
func (a *BLEAdapter) SetPairingDelegateHandler(
	onNumericComparison func(peerAddress [6]byte, code uint32, confirm func(accept bool)),
	onPasskeyEntry func(peerAddress [6]byte, provide func(passkey uint32, ok bool)),
) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.numCmpHandler = onNumericComparison
	a.passkeyHandler = onPasskeyEntry
}

func (a *BLEAdapter) MTU(peerAddress [6]byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.mtu[peerAddress]; ok {
		return m
	}
	return defaultMTU
}

// InitServer advertises serviceUUID with one characteristic that accepts
// writes and delivers notifications, adapted from BluetoothPeripheral's
// written/notify pair (agent/bluetooth.go) generalized from one fixed
// hardcoded characteristic UUID to the caller-supplied pair.
func (a *BLEAdapter) InitServer(serviceUUID, charUUID uuid.UUID, localName string) error {
	a.mu.Lock()
	a.role = rolePeripheral
	a.mu.Unlock()

	svcUUID, err := ble.Parse(serviceUUID.String())
	if err != nil {
		return err
	}
	chUUID, err := ble.Parse(charUUID.String())
	if err != nil {
		return err
	}

	svc := ble.NewService(svcUUID)
	char := ble.NewCharacteristic(chUUID)
	char.HandleWrite(ble.WriteHandlerFunc(a.onWrite))
	char.HandleNotify(ble.NotifyHandlerFunc(a.onNotifySubscribe))
	char.HandleIndicate(ble.NotifyHandlerFunc(a.onNotifySubscribe))
	svc.AddCharacteristic(char)

	if err := a.device.AddService(svc); err != nil {
		return err
	}
	return a.device.AdvertiseNameAndServices(context.Background(), localName, svcUUID)
}

func (a *BLEAdapter) onWrite(req ble.Request, rsp ble.ResponseWriter) {
	addr := rawAddr(req.Conn().RemoteAddr())
	a.mu.Lock()
	h := a.writeHandler
	a.mu.Unlock()
	if h != nil {
		h(addr, append([]byte(nil), req.Data()...))
	}
}

func (a *BLEAdapter) onNotifySubscribe(req ble.Request, n ble.Notifier) {
	addr := rawAddr(req.Conn().RemoteAddr())
	ch := make(chan []byte, 32)
	a.mu.Lock()
	a.notify[addr] = ch
	connectHandler := a.connectHandler
	a.mu.Unlock()
	if connectHandler != nil {
		connectHandler(addr)
	}

	defer func() {
		a.mu.Lock()
		delete(a.notify, addr)
		disconnectHandler := a.disconnectHandler
		a.mu.Unlock()
		if disconnectHandler != nil {
			disconnectHandler(addr)
		}
	}()

	for {
		select {
		case <-n.Context().Done():
			return
		case chunk := <-ch:
			if _, err := n.Write(chunk); err != nil {
				log.Warningf("notify write failed for %x: %v", addr, err)
				return
			}
		}
	}
}

// InitClient prepares the central role to scan for serviceUUID and later
// write/subscribe on charUUID once connected.
func (a *BLEAdapter) InitClient(serviceUUID, charUUID uuid.UUID) error {
	svcUUID, err := ble.Parse(serviceUUID.String())
	if err != nil {
		return err
	}
	chUUID, err := ble.Parse(charUUID.String())
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.role = roleCentral
	a.svcUUID = svcUUID
	a.charUUID = chUUID
	a.mu.Unlock()
	return nil
}

func (a *BLEAdapter) StartScan(onDiscover func(peerAddress [6]byte, localName string)) error {
	ctx := ble.WithSigHandler(context.Background(), nil)
	return a.device.Scan(ctx, true, func(adv ble.Advertisement) {
		addr := rawAddr(adv.Addr())
		a.mu.Lock()
		a.addrs[adv.Addr().String()] = addr
		a.mu.Unlock()
		if onDiscover != nil {
			onDiscover(addr, adv.LocalName())
		}
	})
}

func (a *BLEAdapter) StopScan() error {
	return a.device.StopScanning()
}

func (a *BLEAdapter) Connect(peerAddress [6]byte) error {
	cln, err := a.device.Dial(context.Background(), macAddr(peerAddress))
	if err != nil {
		return err
	}

	a.mu.Lock()
	svcUUID, charUUID := a.svcUUID, a.charUUID
	a.mu.Unlock()

	svcs, err := cln.DiscoverServices([]ble.UUID{svcUUID})
	if err != nil {
		cln.CancelConnection()
		return err
	}
	if len(svcs) == 0 {
		cln.CancelConnection()
		return errNotConnected
	}
	chars, err := cln.DiscoverCharacteristics([]ble.UUID{charUUID}, svcs[0])
	if err != nil || len(chars) == 0 {
		cln.CancelConnection()
		if err != nil {
			return err
		}
		return errNotConnected
	}
	char := chars[0]

	if err := cln.Subscribe(char, false, func(data []byte) {
		a.mu.Lock()
		h := a.writeHandler
		a.mu.Unlock()
		if h != nil {
			h(peerAddress, append([]byte(nil), data...))
		}
	}); err != nil {
		cln.CancelConnection()
		return err
	}

	a.mu.Lock()
	a.cln[peerAddress] = cln
	a.charByPer[peerAddress] = char
	connectHandler := a.connectHandler
	a.mu.Unlock()
	if connectHandler != nil {
		connectHandler(peerAddress)
	}
	return nil
}

func (a *BLEAdapter) Disconnect(peerAddress [6]byte) error {
	a.mu.Lock()
	cln, ok := a.cln[peerAddress]
	delete(a.cln, peerAddress)
	disconnectHandler := a.disconnectHandler
	a.mu.Unlock()
	if !ok {
		return nil
	}
	err := cln.CancelConnection()
	if disconnectHandler != nil {
		disconnectHandler(peerAddress)
	}
	return err
}

func (a *BLEAdapter) WriteAttribute(peerAddress [6]byte, data []byte) error {
	a.mu.Lock()
	role := a.role
	a.mu.Unlock()

	for _, chunk := range Chunk(a.MTU(peerAddress), data) {
		if role == rolePeripheral {
			a.mu.Lock()
			ch, ok := a.notify[peerAddress]
			a.mu.Unlock()
			if !ok {
				return errNoSubscriber
			}
			ch <- chunk
			continue
		}

		a.mu.Lock()
		cln, ok := a.cln[peerAddress]
		char := a.charByPer[peerAddress]
		a.mu.Unlock()
		if !ok || char == nil {
			return errNotConnected
		}
		if err := cln.WriteCharacteristic(char, chunk, true); err != nil {
			return err
		}
	}
	return nil
}

func (a *BLEAdapter) Close() error {
	return a.device.Stop()
}

// Send implements msg.Transport, so a *BLEAdapter can be handed to
// msg.NewEngine/InitServer/InitClient directly without an adapter shim.
func (a *BLEAdapter) Send(peerAddress [6]byte, frame []byte) error {
	return a.WriteAttribute(peerAddress, frame)
}
