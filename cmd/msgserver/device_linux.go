// +build linux

package main

import (
	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/linux"
)

// newDevice opens the platform HCI device, adapted from the teacher's
// per-platform bluetooth_linux.go/bluetooth_darwin.go split.
func newDevice() (ble.Device, error) {
	return linux.NewDevice()
}
