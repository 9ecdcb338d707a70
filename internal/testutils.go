package internal

import (
	"sync"

	"github.com/go-ble/ble"
)

// TestServiceUUID stands in for the mug's GATT service in tests
const TestServiceUUID = "fc543622-236c-4c94-8fa9-944a3e5353fa"

// GetTestProfile builds a discoverable profile with one service holding a
// characteristic per given UUID
func GetTestProfile(charUUIDs []string) *ble.Profile {
	chars := make([]*ble.Characteristic, 0, len(charUUIDs))
	for _, u := range charUUIDs {
		chars = append(chars, &ble.Characteristic{UUID: ble.MustParse(u)})
	}
	svc := &ble.Service{UUID: ble.MustParse(TestServiceUUID), Characteristics: chars}
	return &ble.Profile{Services: []*ble.Service{svc}}
}

// TestListener counts link state callbacks
type TestListener struct {
	Mutex         sync.Mutex
	Connects      int
	Disconnects   int
	LastSessionID string
}

func (l *TestListener) OnConnected(sessionID string) {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()
	l.Connects++
	l.LastSessionID = sessionID
}

func (l *TestListener) OnDisconnected() {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()
	l.Disconnects++
}
