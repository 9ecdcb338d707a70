package ble

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/Krajiyah/mug-sdk/internal"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

const (
	testAddr        = "11:22:33:44:55:66"
	testCharUUID    = "fc540001-236c-4c94-8fa9-944a3e5353fa"
	testNotifyUUID  = "fc540012-236c-4c94-8fa9-944a3e5353fa"
	testMissingUUID = "fc5400ff-236c-4c94-8fa9-944a3e5353fa"
)

var testCharUUIDs = []string{testCharUUID, testNotifyUUID, testMissingUUID}

type testCoreMethods struct {
	mutex        sync.Mutex
	profile      *ble.Profile
	seed         map[string][]byte
	dialAttempts int
	failures     int
	dialErr      error
	permanentErr error
	pairErr      error
	last         *DummyCoreClient
}

func (m *testCoreMethods) SetDefaultDevice() error { return nil }

func (m *testCoreMethods) Dial(_ context.Context, _ ble.Addr) (ble.Client, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dialAttempts++
	if m.permanentErr != nil {
		return nil, m.permanentErr
	}
	if m.failures > 0 {
		m.failures--
		return nil, m.dialErr
	}
	cln := NewDummyCoreClient(testAddr, m.profile)
	for u, d := range m.seed {
		cln.SetReadData(u, d)
	}
	m.last = cln
	return cln, nil
}

func (m *testCoreMethods) Pair(_ ble.Client) error { return m.pairErr }

func (m *testCoreMethods) lastClient() *DummyCoreClient {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.last
}

func (m *testCoreMethods) attempts() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.dialAttempts
}

func newTestMethods() *testCoreMethods {
	return &testCoreMethods{
		// the profile intentionally omits testMissingUUID
		profile: GetTestProfile([]string{testCharUUID, testNotifyUUID}),
		seed:    map[string][]byte{},
	}
}

func newTestConnection(t *testing.T, methods *testCoreMethods, listener Listener) *RealConnection {
	c, err := newRealConnection(testAddr, testCharUUIDs, listener, nil, methods)
	assert.NilError(t, err)
	return c
}

func cacheSize(c *RealConnection) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.characteristics)
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConnectBuildsHandleCache(t *testing.T) {
	methods := newTestMethods()
	listener := &TestListener{}
	c := newTestConnection(t, methods, listener)
	assert.NilError(t, c.Connect(context.Background()))
	assert.Equal(t, 2, cacheSize(c))
	assert.Equal(t, true, c.IsConnected())
	// one dial before pairing, one after
	assert.Equal(t, 2, methods.attempts())
	assert.Equal(t, 2, listener.Connects)
}

func TestConnectRetriesTransientFailures(t *testing.T) {
	methods := newTestMethods()
	methods.failures = 3
	methods.dialErr = errors.New("ATT request timed out")
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))
	assert.Equal(t, 5, methods.attempts())
}

func TestConnectRetryBound(t *testing.T) {
	methods := newTestMethods()
	methods.permanentErr = errors.New("peer disconnected early")
	c := newTestConnection(t, methods, nil)
	err := c.Connect(context.Background())
	assert.Assert(t, err != nil)
	assert.Equal(t, ErrConnectionFailed, errors.Cause(err))
	assert.Equal(t, maxConnectAttempts, methods.attempts())
}

func TestConnectFailsFastOnOtherErrors(t *testing.T) {
	methods := newTestMethods()
	methods.permanentErr = errors.New("operation not permitted")
	c := newTestConnection(t, methods, nil)
	err := c.Connect(context.Background())
	assert.ErrorContains(t, err, "not permitted")
	assert.Equal(t, 1, methods.attempts())
}

func TestConnectToleratesAlreadyPaired(t *testing.T) {
	methods := newTestMethods()
	methods.pairErr = errors.New("management error: status 19")
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))
}

func TestConnectPairingFailure(t *testing.T) {
	methods := newTestMethods()
	methods.pairErr = errors.New("authentication failed")
	c := newTestConnection(t, methods, nil)
	err := c.Connect(context.Background())
	assert.Assert(t, err != nil)
	assert.Equal(t, ErrPairingFailed, errors.Cause(err))
}

func TestReadAndWrite(t *testing.T) {
	methods := newTestMethods()
	methods.seed[testCharUUID] = []byte("EMBER")
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))

	data, err := c.ReadCharacteristic(testCharUUID)
	assert.NilError(t, err)
	assert.DeepEqual(t, []byte("EMBER"), data)

	assert.NilError(t, c.WriteCharacteristic(testCharUUID, []byte{1, 2}, true))
	cln := methods.lastClient()
	cln.Mutex.Lock()
	defer cln.Mutex.Unlock()
	assert.Equal(t, 1, len(cln.Writes))
	assert.DeepEqual(t, []byte{1, 2}, cln.Writes[0].Value)
	assert.Equal(t, true, cln.Writes[0].WithResponse)
}

func TestResolveUnknownCharacteristic(t *testing.T) {
	methods := newTestMethods()
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))
	_, err := c.ReadCharacteristic(testMissingUUID)
	assert.Assert(t, err != nil)
	assert.Equal(t, ErrUnknownCharacteristic, errors.Cause(err))
}

func TestCacheClearedOnLinkDrop(t *testing.T) {
	methods := newTestMethods()
	listener := &TestListener{}
	c := newTestConnection(t, methods, listener)
	assert.NilError(t, c.Connect(context.Background()))
	assert.Equal(t, 2, cacheSize(c))

	methods.lastClient().DropLink()
	assert.Equal(t, false, c.IsConnected())
	waitFor(t, func() bool { return cacheSize(c) == 0 })
	waitFor(t, func() bool {
		listener.Mutex.Lock()
		defer listener.Mutex.Unlock()
		return listener.Disconnects == 1
	})
}

func TestReadReconnectsAfterLinkDrop(t *testing.T) {
	methods := newTestMethods()
	methods.seed[testCharUUID] = []byte{0x02, 0x08}
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))
	attempts := methods.attempts()

	methods.lastClient().DropLink()
	waitFor(t, func() bool { return cacheSize(c) == 0 })

	data, err := c.ReadCharacteristic(testCharUUID)
	assert.NilError(t, err)
	assert.DeepEqual(t, []byte{0x02, 0x08}, data)
	assert.Equal(t, attempts+1, methods.attempts())
	assert.Equal(t, 2, cacheSize(c))
}

func TestIsConnectedBeforeAnyDial(t *testing.T) {
	c := newTestConnection(t, newTestMethods(), nil)
	assert.Equal(t, false, c.IsConnected())
}

func TestDisconnectClearsCache(t *testing.T) {
	methods := newTestMethods()
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))
	assert.NilError(t, c.Disconnect())
	assert.Equal(t, 0, cacheSize(c))
	assert.Equal(t, false, c.IsConnected())
}

func TestSubscribeRoutesNotifications(t *testing.T) {
	methods := newTestMethods()
	c := newTestConnection(t, methods, nil)
	assert.NilError(t, c.Connect(context.Background()))

	received := make(chan []byte, 1)
	assert.NilError(t, c.Subscribe(testNotifyUUID, func(data []byte) { received <- data }))
	methods.lastClient().Notify(testNotifyUUID, []byte{0x04})
	select {
	case data := <-received:
		assert.DeepEqual(t, []byte{0x04}, data)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestWriteEmptyData(t *testing.T) {
	c := newTestConnection(t, newTestMethods(), nil)
	err := c.WriteCharacteristic(testCharUUID, nil, true)
	assert.ErrorContains(t, err, "empty data")
}
