package mug

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Krajiyah/mug-sdk/pkg/ble"
)

// Client is the public surface for tracking and controlling one mug
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	RefreshAll() error
	RefreshOne(attr Attribute) error
	SetLEDColor(color Color) error
	SetTargetTemp(temp float64) error
	SetName(name string) error
	PendingUpdates() []Attribute
	HasPendingUpdates() bool
	LatestPushEvent() (PushEvent, bool)
	State() State
}

// MugClient holds the state snapshot for one mug and orchestrates the
// connection, the characteristic registry, and the notification router.
// Refresh and write calls block; callers wanting periodic refreshes run them
// on their own goroutine and must not overlap calls on one client.
type MugClient struct {
	addr   string
	conn   ble.Connection
	router *Router
	logger *logrus.Logger

	mutex sync.Mutex
	state *State
}

// NewClient returns a client for the mug at the given address. Each client
// gets a fresh State; nothing is shared across instances.
func NewClient(addr string, logger *logrus.Logger) (*MugClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	conn, err := ble.NewRealConnection(addr, CharacteristicUUIDs(), nil, logger)
	if err != nil {
		return nil, err
	}
	return NewClientWithConnection(addr, conn, logger), nil
}

// NewClientWithConnection returns a client over an injected connection
func NewClientWithConnection(addr string, conn ble.Connection, logger *logrus.Logger) *MugClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MugClient{
		addr:   addr,
		conn:   conn,
		router: NewRouter(CharPushEvent, logger),
		logger: logger,
		state:  newState(),
	}
}

// Connect establishes the link and subscribes the router to push events
func (c *MugClient) Connect(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	err := c.conn.Subscribe(CharPushEvent, func(data []byte) {
		c.router.HandleNotification(CharPushEvent, data)
	})
	if err != nil {
		return err
	}
	c.logger.WithField("addr", c.addr).Info("Subscribed to push events")
	return nil
}

// Disconnect tears down the link
func (c *MugClient) Disconnect() error {
	return c.conn.Disconnect()
}

// IsConnected reports the live link state
func (c *MugClient) IsConnected() bool {
	return c.conn.IsConnected()
}

// RefreshOne re-reads a single attribute from the device and stores it if it changed
func (c *MugClient) RefreshOne(attr Attribute) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry, ok := lookupAttr(attr)
	if !ok {
		return errors.Wrapf(ErrUnknownAttribute, "%s", attr)
	}
	return c.refreshEntry(entry)
}

// RefreshAll re-reads every registered attribute. Attributes that are set once
// from the device and immutable afterwards are skipped when already populated.
// Per-attribute decode failures are aggregated and do not abort the pass;
// transport failures do.
func (c *MugClient) RefreshAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var decodeFailures []string
	for _, entry := range registry {
		err := c.refreshEntry(entry)
		if err == nil {
			continue
		}
		if _, ok := err.(*DecodeError); ok {
			decodeFailures = append(decodeFailures, err.Error())
			continue
		}
		return err
	}
	if len(decodeFailures) > 0 {
		return errors.Errorf("refresh issues: %s", strings.Join(decodeFailures, "; "))
	}
	return nil
}

func (c *MugClient) refreshEntry(entry registryEntry) error {
	if immutableAttrs.Contains(string(entry.attr)) && entry.isSet(c.state) {
		c.logger.WithField("attr", string(entry.attr)).Debug("Skipping immutable attribute")
		return nil
	}
	raw, err := c.conn.ReadCharacteristic(entry.uuid)
	if err != nil {
		return err
	}
	changed, err := entry.decode(c.state, raw)
	if err != nil {
		return &DecodeError{Attr: entry.attr, Length: len(raw), Cause: err}
	}
	if changed {
		c.logger.WithField("attr", string(entry.attr)).Info("Attribute changed")
	}
	return nil
}

// SetLEDColor writes a new LED colour to the mug
func (c *MugClient) SetLEDColor(color Color) error {
	return c.write(AttrLEDColor, color)
}

// SetTargetTemp writes a new target temperature (degrees celsius) to the mug
func (c *MugClient) SetTargetTemp(temp float64) error {
	return c.write(AttrTargetTemp, temp)
}

// SetName writes a new name to the mug. Names are 1-16 characters from the
// set the firmware accepts; anything else fails validation before any write.
func (c *MugClient) SetName(name string) error {
	return c.write(AttrName, name)
}

func (c *MugClient) write(attr Attribute, v interface{}) error {
	entry, ok := lookupAttr(attr)
	if !ok || entry.encode == nil {
		return errors.Wrapf(ErrUnknownAttribute, "%s is not writable", attr)
	}
	payload, err := entry.encode(v)
	if err != nil {
		return err
	}
	if err := c.conn.WriteCharacteristic(entry.uuid, payload, true); err != nil {
		return err
	}
	c.logger.WithField("attr", string(attr)).Debug("Wrote attribute")
	return nil
}

// PendingUpdates drains and returns the attributes made stale by push events
// since the last drain
func (c *MugClient) PendingUpdates() []Attribute {
	return c.router.Drain()
}

// HasPendingUpdates reports whether the dirty set holds more than one entry.
// The threshold matches the vendor app's behavior; use PendingUpdates to see
// every queued attribute.
func (c *MugClient) HasPendingUpdates() bool {
	return c.router.Len() > 1
}

// LatestPushEvent returns the most recent push event code, for diagnostics
func (c *MugClient) LatestPushEvent() (PushEvent, bool) {
	return c.router.LatestEvent()
}

// State returns a snapshot of the mug's current state
func (c *MugClient) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state.clone()
}
