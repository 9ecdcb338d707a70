package internal

import (
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// CharWrite records one characteristic write made through the dummy client
type CharWrite struct {
	UUID         string
	Value        []byte
	WithResponse bool
}

// DummyCoreClient is a ble.Client double backed by per-characteristic read
// buffers. Tests seed reads with SetReadData, inspect Writes, and fire
// notifications with Notify.
type DummyCoreClient struct {
	addr    string
	profile *ble.Profile

	Mutex        sync.Mutex
	ReadData     map[string][]byte
	Writes       []CharWrite
	handlers     map[string]ble.NotificationHandler
	disconnected chan struct{}
	closeOnce    sync.Once
}

// NewDummyCoreClient returns a dummy client that discovers the given profile
func NewDummyCoreClient(addr string, profile *ble.Profile) *DummyCoreClient {
	return &DummyCoreClient{
		addr:         addr,
		profile:      profile,
		ReadData:     map[string][]byte{},
		handlers:     map[string]ble.NotificationHandler{},
		disconnected: make(chan struct{}),
	}
}

// NormalizeUUID converts a UUID string to the go-ble comparison form
func NormalizeUUID(u string) string {
	return strings.ToLower(strings.Replace(u, "-", "", -1))
}

// SetReadData seeds the bytes returned by reads of one characteristic
func (c *DummyCoreClient) SetReadData(uuid string, data []byte) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.ReadData[NormalizeUUID(uuid)] = data
}

// Notify delivers a notification to the handler subscribed on the characteristic
func (c *DummyCoreClient) Notify(uuid string, data []byte) {
	c.Mutex.Lock()
	h := c.handlers[NormalizeUUID(uuid)]
	c.Mutex.Unlock()
	if h != nil {
		h(data)
	}
}

// DropLink simulates the peripheral closing the connection
func (c *DummyCoreClient) DropLink() {
	c.closeOnce.Do(func() { close(c.disconnected) })
}

func (c *DummyCoreClient) Addr() ble.Addr        { return ble.NewAddr(c.addr) }
func (c *DummyCoreClient) Name() string          { return "EMBER" }
func (c *DummyCoreClient) Profile() *ble.Profile { return c.profile }

func (c *DummyCoreClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	return c.profile, nil
}

func (c *DummyCoreClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	return c.profile.Services, nil
}

func (c *DummyCoreClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	return nil, nil
}

func (c *DummyCoreClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	return s.Characteristics, nil
}

func (c *DummyCoreClient) DiscoverDescriptors(filter []ble.UUID, char *ble.Characteristic) ([]*ble.Descriptor, error) {
	return nil, nil
}

func (c *DummyCoreClient) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	data, ok := c.ReadData[NormalizeUUID(char.UUID.String())]
	if !ok {
		return nil, errors.Errorf("no read data for %s", char.UUID.String())
	}
	return data, nil
}

func (c *DummyCoreClient) ReadLongCharacteristic(char *ble.Characteristic) ([]byte, error) {
	return c.ReadCharacteristic(char)
}

func (c *DummyCoreClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.Writes = append(c.Writes, CharWrite{
		UUID:         NormalizeUUID(char.UUID.String()),
		Value:        value,
		WithResponse: !noRsp,
	})
	return nil
}

func (c *DummyCoreClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error)  { return nil, nil }
func (c *DummyCoreClient) WriteDescriptor(d *ble.Descriptor, v []byte) error { return nil }
func (c *DummyCoreClient) ReadRSSI() int                                     { return -60 }
func (c *DummyCoreClient) ExchangeMTU(rxMTU int) (txMTU int, err error)      { return rxMTU, nil }

func (c *DummyCoreClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.handlers[NormalizeUUID(char.UUID.String())] = h
	return nil
}

func (c *DummyCoreClient) Unsubscribe(char *ble.Characteristic, ind bool) error {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	delete(c.handlers, NormalizeUUID(char.UUID.String()))
	return nil
}

func (c *DummyCoreClient) ClearSubscriptions() error {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.handlers = map[string]ble.NotificationHandler{}
	return nil
}

func (c *DummyCoreClient) CancelConnection() error {
	c.DropLink()
	return nil
}

func (c *DummyCoreClient) Disconnected() <-chan struct{} { return c.disconnected }
func (c *DummyCoreClient) Conn() ble.Conn                { return nil }
