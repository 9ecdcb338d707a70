package mug

import (
	"fmt"

	"github.com/Krajiyah/mug-sdk/pkg/codec"
)

// LiquidState is an enum for what the mug is doing with its contents
type LiquidState int

const (
	LiquidStateUnknown LiquidState = iota
	LiquidStateEmpty
	LiquidStateFilling
	LiquidStateColdNoControl
	LiquidStateCooling
	LiquidStateHeating
	LiquidStateAtTarget
	LiquidStateWarmNoControl
)

var liquidStateLabels = map[LiquidState]string{
	LiquidStateUnknown:       "Unknown",
	LiquidStateEmpty:         "Empty",
	LiquidStateFilling:       "Filling",
	LiquidStateColdNoControl: "Cold (No control)",
	LiquidStateCooling:       "Cooling",
	LiquidStateHeating:       "Heating",
	LiquidStateAtTarget:      "At Target",
	LiquidStateWarmNoControl: "Warm (No control)",
}

// String returns the human readable label for the liquid state
func (s LiquidState) String() string {
	if label, ok := liquidStateLabels[s]; ok {
		return label
	}
	return liquidStateLabels[LiquidStateUnknown]
}

// Color is the RGBA colour of the mug's LED
type Color struct {
	R, G, B, A uint8
}

// Hex returns the colour as an RGBA hex string
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// State is the live snapshot of a single mug. A fresh instance is allocated
// per client; it is mutated only by the client after successful reads.
type State struct {
	Name           string
	ID             string
	SerialNumber   string
	LEDColor       Color
	LiquidState    LiquidState
	LiquidLevel    *int
	CurrentTemp    *float64
	TargetTemp     *float64
	TempUnit       codec.TempUnit
	Battery        *codec.BatteryInfo
	UDSK           string
	DSK            string
	Firmware       *codec.FirmwareInfo
	DateTimeZone   string
	BatteryVoltage string
}

func newState() *State {
	return &State{
		LEDColor: Color{255, 255, 255, 255},
		TempUnit: codec.Celsius,
	}
}

// LiquidStateLabel returns the human readable label for the current liquid state
func (s *State) LiquidStateLabel() string {
	return s.LiquidState.String()
}

// clone returns a deep copy so callers can hold a snapshot while refreshes continue
func (s *State) clone() State {
	out := *s
	if s.LiquidLevel != nil {
		v := *s.LiquidLevel
		out.LiquidLevel = &v
	}
	if s.CurrentTemp != nil {
		v := *s.CurrentTemp
		out.CurrentTemp = &v
	}
	if s.TargetTemp != nil {
		v := *s.TargetTemp
		out.TargetTemp = &v
	}
	if s.Battery != nil {
		v := *s.Battery
		out.Battery = &v
	}
	if s.Firmware != nil {
		v := *s.Firmware
		out.Firmware = &v
	}
	return out
}
