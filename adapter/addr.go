package adapter

import (
	"errors"
	"fmt"
	"net"

	"github.com/currantlabs/ble"
)

var (
	errNoSubscriber = errors.New("adapter: no notification subscriber for peer")
	errNotConnected = errors.New("adapter: peer not connected")
)

// rawAddr converts a ble.Addr (a MAC-formatted string under the hood) to
// the fixed-size address the core keys connections by (spec §3
// peer_address).
func rawAddr(addr ble.Addr) [6]byte {
	var out [6]byte
	hw, err := net.ParseMAC(addr.String())
	if err != nil || len(hw) != 6 {
		return out
	}
	copy(out[:], hw)
	return out
}

// macAddr is the inverse of rawAddr, used to dial a peer by the address
// the host previously observed via StartScan.
func macAddr(addr [6]byte) ble.Addr {
	s := fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
	return ble.NewAddr(s)
}
