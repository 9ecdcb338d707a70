//go:build darwin
// +build darwin

package ble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// newDevice returns the ble.Device for the current OS
func newDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
