// +build darwin

package main

import (
	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/darwin"
)

// newDevice opens the platform CoreBluetooth device, adapted from the
// teacher's per-platform bluetooth_linux.go/bluetooth_darwin.go split.
func newDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
