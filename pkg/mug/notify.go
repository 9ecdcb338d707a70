package mug

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
)

// PushEvent is an enum for the event codes the mug notifies with
type PushEvent int

const (
	PushEventBatteryChanged PushEvent = iota + 1
	PushEventChargerConnected
	PushEventChargerDisconnected
	PushEventTargetTempChanged
	PushEventDrinkTempChanged
	PushEventAuthInfoNotFound
	PushEventLiquidLevelChanged
	PushEventLiquidStateChanged
	PushEventBatteryVoltageChanged
)

func (e PushEvent) String() string {
	switch e {
	case PushEventBatteryChanged:
		return "BatteryChanged"
	case PushEventChargerConnected:
		return "ChargerConnected"
	case PushEventChargerDisconnected:
		return "ChargerDisconnected"
	case PushEventTargetTempChanged:
		return "TargetTempChanged"
	case PushEventDrinkTempChanged:
		return "DrinkTempChanged"
	case PushEventAuthInfoNotFound:
		return "AuthInfoNotFound"
	case PushEventLiquidLevelChanged:
		return "LiquidLevelChanged"
	case PushEventLiquidStateChanged:
		return "LiquidStateChanged"
	case PushEventBatteryVoltageChanged:
		return "BatteryVoltageChanged"
	}
	return "Unknown"
}

// Router receives push notifications from the mug and accumulates the set of
// attributes whose cached value went stale. Notifications arrive on the
// transport's callback goroutine, so the dirty set is mutex guarded; marks
// racing a Drain are never lost and never double reported.
type Router struct {
	pushUUID string
	logger   *logrus.Logger
	mutex    sync.Mutex
	pending  mapset.Set
	latest   PushEvent
	seen     bool
}

// NewRouter returns a router that accepts notifications on the given UUID
func NewRouter(pushUUID string, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Router{
		pushUUID: pushUUID,
		logger:   logger,
		pending:  mapset.NewThreadUnsafeSet(),
	}
}

// HandleNotification classifies one notification. Anything unexpected is
// logged and dropped; the router never fails.
func (r *Router) HandleNotification(uuid string, data []byte) {
	if uuid != r.pushUUID {
		r.logger.WithField("uuid", uuid).Warn("Notification on unexpected characteristic")
		return
	}
	if len(data) == 0 {
		r.logger.Warn("Empty push event payload")
		return
	}
	event := PushEvent(data[0])
	r.logger.WithField("event", event.String()).Info("Push event received from mug")

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.latest = event
	r.seen = true
	switch event {
	case PushEventBatteryChanged, PushEventChargerConnected, PushEventChargerDisconnected:
		r.pending.Add(string(AttrBattery))
	case PushEventTargetTempChanged:
		r.pending.Add(string(AttrTargetTemp))
	case PushEventDrinkTempChanged:
		r.pending.Add(string(AttrCurrentTemp))
	case PushEventAuthInfoNotFound:
		r.logger.Warn("Auth info missing")
	case PushEventLiquidLevelChanged:
		r.pending.Add(string(AttrLiquidLevel))
	case PushEventLiquidStateChanged:
		r.pending.Add(string(AttrLiquidState))
	case PushEventBatteryVoltageChanged:
		r.pending.Add(string(AttrBatteryVoltage))
	default:
		r.logger.WithField("code", int(event)).Warn("Unrecognized push event")
	}
}

// Drain atomically empties the dirty set and returns its prior contents
func (r *Router) Drain() []Attribute {
	r.mutex.Lock()
	old := r.pending
	r.pending = mapset.NewThreadUnsafeSet()
	r.mutex.Unlock()

	attrs := make([]Attribute, 0, old.Cardinality())
	for v := range old.Iter() {
		attrs = append(attrs, Attribute(v.(string)))
	}
	return attrs
}

// Len returns the current size of the dirty set
func (r *Router) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.pending.Cardinality()
}

// LatestEvent returns the most recent event code, if any arrived yet
func (r *Router) LatestEvent() (PushEvent, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.latest, r.seen
}
