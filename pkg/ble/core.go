package ble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// coreMethods wraps the ble package level calls so tests can inject fakes
type coreMethods interface {
	SetDefaultDevice() error
	Dial(context.Context, ble.Addr) (ble.Client, error)
	Pair(ble.Client) error
}

type realCoreMethods struct{}

func (bc *realCoreMethods) SetDefaultDevice() error {
	device, err := newDevice()
	if err != nil {
		return errors.Wrap(err, "NewDevice issue: ")
	}
	ble.SetDefaultDevice(device)
	return nil
}

func (bc *realCoreMethods) Dial(ctx context.Context, addr ble.Addr) (ble.Client, error) {
	return ble.Dial(ctx, addr)
}

// pairable is implemented by clients whose HCI layer exposes bonding
type pairable interface {
	Pair() error
}

func (bc *realCoreMethods) Pair(cln ble.Client) error {
	if p, ok := cln.(pairable); ok {
		return p.Pair()
	}
	// stack has no pairing entry point; the mug accepts unpaired sessions
	return nil
}
