package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	maxConnectAttempts = 10
	dialTimeout        = 10 * time.Second
)

var (
	// ErrConnectionFailed indicates the link could not be established within the
	// retry bound. The caller may retry the whole operation.
	ErrConnectionFailed = errors.New("could not establish connection")
	// ErrPairingFailed indicates the device rejected pairing for a reason other
	// than being already paired.
	ErrPairingFailed = errors.New("pairing rejected")
	// ErrUnknownCharacteristic indicates a UUID was not found during discovery,
	// which usually means a firmware or protocol version mismatch.
	ErrUnknownCharacteristic = errors.New("characteristic not discovered on device")
)

// Listener is notified of link state changes
type Listener interface {
	OnConnected(sessionID string)
	OnDisconnected()
}

// Connection owns the physical link to one device and the per-connection
// characteristic handle cache. It is not safe for concurrent callers without
// external synchronization, except that notification handlers may fire at any time.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	ReadCharacteristic(uuid string) ([]byte, error)
	WriteCharacteristic(uuid string, data []byte, withResponse bool) error
	Subscribe(uuid string, handler func(data []byte)) error
}

// RealConnection is the Connection implementation over the go-ble stack
type RealConnection struct {
	addr     string
	wanted   map[string]bool
	methods  coreMethods
	listener Listener
	logger   *logrus.Logger

	mutex           sync.Mutex
	cln             ble.Client
	characteristics map[string]*ble.Characteristic
	sessionID       string
}

// NewRealConnection prepares the default BLE device and returns a connection
// that will cache handles for the given characteristic UUIDs after each dial.
// The listener may be nil.
func NewRealConnection(addr string, charUUIDs []string, listener Listener, logger *logrus.Logger) (*RealConnection, error) {
	return newRealConnection(addr, charUUIDs, listener, logger, &realCoreMethods{})
}

func newRealConnection(addr string, charUUIDs []string, listener Listener, logger *logrus.Logger, methods coreMethods) (*RealConnection, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	wanted := map[string]bool{}
	for _, u := range charUUIDs {
		wanted[normalizeUUID(u)] = true
	}
	c := &RealConnection{
		addr:     addr,
		wanted:   wanted,
		methods:  methods,
		listener: listener,
		logger:   logger,
	}
	if err := c.methods.SetDefaultDevice(); err != nil {
		return nil, errors.Wrap(err, "SetDefaultDevice issue: ")
	}
	return c, nil
}

// normalizeUUID converts a UUID string to the go-ble comparison form (lowercase, no dashes)
func normalizeUUID(u string) string {
	return strings.ToLower(strings.Replace(u, "-", "", -1))
}

// Connect establishes the link: bounded-retry dial, security elevation, then
// one more dial since pairing can reset the session, then handle discovery.
func (c *RealConnection) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.dialLocked(ctx); err != nil {
		return err
	}
	if err := c.pairLocked(); err != nil {
		return err
	}
	if err := c.dialLocked(ctx); err != nil {
		return err
	}
	return c.buildCacheLocked()
}

func (c *RealConnection) dialLocked(ctx context.Context) error {
	if c.cln != nil {
		c.cln.CancelConnection()
		c.cln = nil
		c.characteristics = nil
	}
	c.sessionID = uuid.New().String()
	log := c.logger.WithFields(logrus.Fields{"addr": c.addr, "session": c.sessionID})
	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "Dial issue: ")
		}
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		cln, err := c.methods.Dial(dialCtx, ble.NewAddr(c.addr))
		cancel()
		if err == nil {
			c.cln = cln
			go c.watchDisconnect(cln)
			log.WithField("attempt", attempt).Debug("Dialed mug")
			if c.listener != nil {
				c.listener.OnConnected(c.sessionID)
			}
			return nil
		}
		if !isDisconnectError(err) {
			return errors.Wrap(err, "Dial issue: ")
		}
		lastErr = err
		log.WithField("attempt", attempt).Debug("Transient dial failure, retrying")
	}
	return errors.Wrapf(ErrConnectionFailed, "Dial issue after %d attempts: %v", maxConnectAttempts, lastErr)
}

func (c *RealConnection) pairLocked() error {
	err := c.methods.Pair(c.cln)
	if err == nil {
		return nil
	}
	if isAlreadyPaired(err) {
		c.logger.WithField("addr", c.addr).Debug("Link already paired")
		return nil
	}
	return errors.Wrapf(ErrPairingFailed, "Pair issue: %v", err)
}

func (c *RealConnection) watchDisconnect(cln ble.Client) {
	<-cln.Disconnected()
	c.mutex.Lock()
	stale := c.cln != cln
	if !stale {
		c.cln = nil
		c.characteristics = nil
	}
	c.mutex.Unlock()
	if stale {
		return
	}
	c.logger.WithField("addr", c.addr).Info("Mug disconnected")
	if c.listener != nil {
		c.listener.OnDisconnected()
	}
}

func (c *RealConnection) buildCacheLocked() error {
	if c.cln == nil {
		return errors.Wrap(ErrConnectionFailed, "no active session")
	}
	p, err := c.cln.DiscoverProfile(true)
	if err != nil {
		return errors.Wrap(err, "DiscoverProfile issue: ")
	}
	cache := map[string]*ble.Characteristic{}
	for _, s := range p.Services {
		for _, char := range s.Characteristics {
			u := normalizeUUID(char.UUID.String())
			if c.wanted[u] {
				cache[u] = char
			}
		}
	}
	c.characteristics = cache
	c.logger.WithField("count", len(cache)).Debug("Built characteristic handle cache")
	return nil
}

// ensureLocked lazily re-establishes the bare link and rebuilds the handle
// cache. It does not re-elevate security or re-subscribe; that only happens
// through Connect.
func (c *RealConnection) ensureLocked() error {
	if !c.isConnectedLocked() {
		if err := c.dialLocked(context.Background()); err != nil {
			return err
		}
	}
	if len(c.characteristics) == 0 {
		return c.buildCacheLocked()
	}
	return nil
}

func (c *RealConnection) resolveLocked(u string) (*ble.Characteristic, error) {
	if char, ok := c.characteristics[normalizeUUID(u)]; ok {
		return char, nil
	}
	return nil, errors.Wrapf(ErrUnknownCharacteristic, "uuid %s", u)
}

func (c *RealConnection) isConnectedLocked() bool {
	if c.cln == nil {
		// session never started, or already torn down
		return false
	}
	select {
	case <-c.cln.Disconnected():
		return false
	default:
		return true
	}
}

// IsConnected reports the live link state
func (c *RealConnection) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isConnectedLocked()
}

// Disconnect tears the link down unconditionally and clears the handle cache
func (c *RealConnection) Disconnect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var err error
	if c.cln != nil {
		err = c.cln.CancelConnection()
		c.cln = nil
	}
	c.characteristics = nil
	if err != nil {
		return errors.Wrap(err, "CancelConnection issue: ")
	}
	return nil
}

// ReadCharacteristic reads the raw value of a characteristic, reconnecting first if needed
func (c *RealConnection) ReadCharacteristic(u string) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.ensureLocked(); err != nil {
		return nil, err
	}
	char, err := c.resolveLocked(u)
	if err != nil {
		return nil, err
	}
	data, err := c.cln.ReadCharacteristic(char)
	if err != nil {
		return nil, errors.Wrap(err, "ReadCharacteristic issue: ")
	}
	c.logger.WithFields(logrus.Fields{"uuid": u, "bytes": len(data)}).Debug("Read characteristic")
	return data, nil
}

// WriteCharacteristic writes raw bytes to a characteristic, reconnecting first if needed
func (c *RealConnection) WriteCharacteristic(u string, data []byte, withResponse bool) error {
	if len(data) == 0 {
		return errors.New("empty data to write")
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.ensureLocked(); err != nil {
		return err
	}
	char, err := c.resolveLocked(u)
	if err != nil {
		return err
	}
	if err := c.cln.WriteCharacteristic(char, data, !withResponse); err != nil {
		return errors.Wrap(err, "WriteCharacteristic issue: ")
	}
	c.logger.WithFields(logrus.Fields{"uuid": u, "bytes": len(data)}).Debug("Wrote characteristic")
	return nil
}

// Subscribe enables notifications on a characteristic. The stack writes the
// enable value to the CCCD with acknowledgment; the handler runs on the
// transport's notification goroutine.
func (c *RealConnection) Subscribe(u string, handler func(data []byte)) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.ensureLocked(); err != nil {
		return err
	}
	char, err := c.resolveLocked(u)
	if err != nil {
		return err
	}
	if err := c.cln.Subscribe(char, false, ble.NotificationHandler(handler)); err != nil {
		return errors.Wrap(err, "Subscribe issue: ")
	}
	c.logger.WithField("uuid", u).Debug("Subscribed to notifications")
	return nil
}

func isAlreadyPaired(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already paired") ||
		strings.Contains(msg, "status 19")
}

func isDisconnectError(err error) bool {
	if errors.Cause(err) == context.DeadlineExceeded {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"disconnect", "connection canceled", "connection reset", "timed out", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
