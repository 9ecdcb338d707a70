package mug

import (
	"regexp"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/Krajiyah/mug-sdk/pkg/codec"
)

const (
	// CharMugName is the UUID for the mug's name as a byte string (read/write)
	CharMugName = "fc540001-236c-4c94-8fa9-944a3e5353fa"
	// CharCurrentTemp is the UUID for the drink temperature (read)
	CharCurrentTemp = "fc540002-236c-4c94-8fa9-944a3e5353fa"
	// CharTargetTemp is the UUID for the target temperature (read/write)
	CharTargetTemp = "fc540003-236c-4c94-8fa9-944a3e5353fa"
	// CharTempUnit is the UUID for the temperature unit flag, 0 means celsius (read/write)
	CharTempUnit = "fc540004-236c-4c94-8fa9-944a3e5353fa"
	// CharLiquidLevel is the UUID for the liquid level, between 0 and 30 (read)
	CharLiquidLevel = "fc540005-236c-4c94-8fa9-944a3e5353fa"
	// CharTimeDateZone is the UUID for the mug's date, time, and zone (read/write)
	CharTimeDateZone = "fc540006-236c-4c94-8fa9-944a3e5353fa"
	// CharBattery is the UUID for battery info: percent byte then charging flag byte (read)
	CharBattery = "fc540007-236c-4c94-8fa9-944a3e5353fa"
	// CharLiquidState is the UUID for what the mug is doing with the liquid (read)
	CharLiquidState = "fc540008-236c-4c94-8fa9-944a3e5353fa"
	// CharVolume is the UUID for volume, unused on this mug (read)
	CharVolume = "fc540009-236c-4c94-8fa9-944a3e5353fa"
	// CharLastLocation is the UUID the vendor app writes the last known location to (write)
	CharLastLocation = "fc54000a-236c-4c94-8fa9-944a3e5353fa"
	// CharAcceleration is the UUID for acceleration, unused on this mug (read)
	CharAcceleration = "fc54000b-236c-4c94-8fa9-944a3e5353fa"
	// CharFirmware is the UUID for firmware, hardware, and bootloader versions (read)
	CharFirmware = "fc54000c-236c-4c94-8fa9-944a3e5353fa"
	// CharMugID is the UUID for the mug's unique id and serial number (read)
	CharMugID = "fc54000d-236c-4c94-8fa9-944a3e5353fa"
	// CharDSK is the UUID for the device security key the vendor app uses for auth (read)
	CharDSK = "fc54000e-236c-4c94-8fa9-944a3e5353fa"
	// CharUDSK is the UUID for the user security key the vendor app uses for auth (read/write)
	CharUDSK = "fc54000f-236c-4c94-8fa9-944a3e5353fa"
	// CharControlRegisterAddress is the UUID for the temp lock control register address (read/write)
	CharControlRegisterAddress = "fc540010-236c-4c94-8fa9-944a3e5353fa"
	// CharControlRegisterData is the UUID for battery charge info (read/write)
	CharControlRegisterData = "fc540011-236c-4c94-8fa9-944a3e5353fa"
	// CharPushEvent is the UUID the mug notifies on when characteristics change (notify/read)
	CharPushEvent = "fc540012-236c-4c94-8fa9-944a3e5353fa"
	// CharStatistics is the UUID the mug streams stats bytes on (notify)
	CharStatistics = "fc540013-236c-4c94-8fa9-944a3e5353fa"
	// CharLED is the UUID for the RGBA colour of the LED (read/write)
	CharLED = "fc540014-236c-4c94-8fa9-944a3e5353fa"
)

// Attribute is the logical name of one refreshable piece of mug state
type Attribute string

const (
	AttrName           Attribute = "name"
	AttrMugID          Attribute = "mugID"
	AttrLEDColor       Attribute = "ledColor"
	AttrLiquidLevel    Attribute = "liquidLevel"
	AttrLiquidState    Attribute = "liquidState"
	AttrCurrentTemp    Attribute = "currentTemp"
	AttrTargetTemp     Attribute = "targetTemp"
	AttrTempUnit       Attribute = "tempUnit"
	AttrBattery        Attribute = "battery"
	AttrUDSK           Attribute = "udsk"
	AttrDSK            Attribute = "dsk"
	AttrFirmware       Attribute = "firmware"
	AttrDateTimeZone   Attribute = "dateTimeZone"
	AttrBatteryVoltage Attribute = "batteryVoltage"
)

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9,.\[\]#()!"';:|\-_+<>%= ]{1,16}$`)

// immutableAttrs are set once from the device and never overwritten afterwards
var immutableAttrs = mapset.NewSet(string(AttrMugID), string(AttrDSK))

type decodeFunc func(s *State, data []byte) (changed bool, err error)
type encodeFunc func(v interface{}) ([]byte, error)

// registryEntry ties one attribute to its characteristic UUID and codec pair
type registryEntry struct {
	attr   Attribute
	uuid   string
	decode decodeFunc
	encode encodeFunc // nil for read-only attributes
	isSet  func(s *State) bool
}

// registry is the single source of truth mapping attributes to characteristics.
// It is read-only at runtime; order is the refresh order.
var registry = []registryEntry{
	{attr: AttrName, uuid: CharMugName, decode: decodeName, encode: encodeName,
		isSet: func(s *State) bool { return s.Name != "" }},
	{attr: AttrMugID, uuid: CharMugID, decode: decodeMugID,
		isSet: func(s *State) bool { return s.ID != "" }},
	{attr: AttrLEDColor, uuid: CharLED, decode: decodeLEDColor, encode: encodeLEDColor,
		isSet: func(s *State) bool { return true }},
	{attr: AttrLiquidLevel, uuid: CharLiquidLevel, decode: decodeLiquidLevel,
		isSet: func(s *State) bool { return s.LiquidLevel != nil }},
	{attr: AttrLiquidState, uuid: CharLiquidState, decode: decodeLiquidState,
		isSet: func(s *State) bool { return s.LiquidState != LiquidStateUnknown }},
	{attr: AttrCurrentTemp, uuid: CharCurrentTemp, decode: decodeCurrentTemp,
		isSet: func(s *State) bool { return s.CurrentTemp != nil }},
	{attr: AttrTargetTemp, uuid: CharTargetTemp, decode: decodeTargetTemp, encode: encodeTargetTemp,
		isSet: func(s *State) bool { return s.TargetTemp != nil }},
	{attr: AttrTempUnit, uuid: CharTempUnit, decode: decodeTempUnit,
		isSet: func(s *State) bool { return true }},
	{attr: AttrBattery, uuid: CharBattery, decode: decodeBattery,
		isSet: func(s *State) bool { return s.Battery != nil }},
	{attr: AttrUDSK, uuid: CharUDSK, decode: decodeUDSK,
		isSet: func(s *State) bool { return s.UDSK != "" }},
	{attr: AttrDSK, uuid: CharDSK, decode: decodeDSK,
		isSet: func(s *State) bool { return s.DSK != "" }},
	{attr: AttrFirmware, uuid: CharFirmware, decode: decodeFirmware,
		isSet: func(s *State) bool { return s.Firmware != nil }},
	{attr: AttrDateTimeZone, uuid: CharTimeDateZone, decode: decodeDateTimeZone,
		isSet: func(s *State) bool { return s.DateTimeZone != "" }},
	{attr: AttrBatteryVoltage, uuid: CharControlRegisterData, decode: decodeBatteryVoltage,
		isSet: func(s *State) bool { return s.BatteryVoltage != "" }},
}

func lookupAttr(attr Attribute) (registryEntry, bool) {
	for _, e := range registry {
		if e.attr == attr {
			return e, true
		}
	}
	return registryEntry{}, false
}

// Attributes returns all registered attribute names in refresh order
func Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(registry))
	for _, e := range registry {
		attrs = append(attrs, e.attr)
	}
	return attrs
}

// CharacteristicUUIDs returns the UUIDs the client needs handles for: every
// registered attribute plus the push event channel
func CharacteristicUUIDs() []string {
	uuids := make([]string, 0, len(registry)+1)
	for _, e := range registry {
		uuids = append(uuids, e.uuid)
	}
	return append(uuids, CharPushEvent)
}

func decodeName(s *State, data []byte) (bool, error) {
	v := codec.Text(data)
	if s.Name == v {
		return false, nil
	}
	s.Name = v
	return true, nil
}

func encodeName(v interface{}) ([]byte, error) {
	name, ok := v.(string)
	if !ok {
		return nil, &ValidationError{Field: "name", Reason: "value must be a string"}
	}
	if !nameRegex.MatchString(name) {
		return nil, &ValidationError{Field: "name", Reason: "must be 1-16 characters from the allowed set"}
	}
	return codec.EncodeText(name), nil
}

func decodeMugID(s *State, data []byte) (bool, error) {
	id, err := codec.DecodeMugID(data)
	if err != nil {
		return false, err
	}
	if s.ID == id.ID && s.SerialNumber == id.SerialNumber {
		return false, nil
	}
	s.ID = id.ID
	s.SerialNumber = id.SerialNumber
	return true, nil
}

func decodeLEDColor(s *State, data []byte) (bool, error) {
	if len(data) < 4 {
		return false, errors.Errorf("led payload too short (%d bytes)", len(data))
	}
	v := Color{data[0], data[1], data[2], data[3]}
	if s.LEDColor == v {
		return false, nil
	}
	s.LEDColor = v
	return true, nil
}

func encodeLEDColor(v interface{}) ([]byte, error) {
	color, ok := v.(Color)
	if !ok {
		return nil, &ValidationError{Field: "ledColor", Reason: "value must be a Color"}
	}
	return codec.EncodeColor(color.R, color.G, color.B, color.A), nil
}

func decodeLiquidLevel(s *State, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, errors.New("liquid level payload is empty")
	}
	v := int(codec.LittleEndianUint(data))
	if s.LiquidLevel != nil && *s.LiquidLevel == v {
		return false, nil
	}
	s.LiquidLevel = &v
	return true, nil
}

func decodeLiquidState(s *State, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, errors.New("liquid state payload is empty")
	}
	v := LiquidState(codec.LittleEndianUint(data))
	if s.LiquidState == v {
		return false, nil
	}
	s.LiquidState = v
	return true, nil
}

func decodeCurrentTemp(s *State, data []byte) (bool, error) {
	v, err := codec.DecodeTemperature(data, s.TempUnit)
	if err != nil {
		return false, err
	}
	if s.CurrentTemp != nil && *s.CurrentTemp == v {
		return false, nil
	}
	s.CurrentTemp = &v
	return true, nil
}

func decodeTargetTemp(s *State, data []byte) (bool, error) {
	v, err := codec.DecodeTemperature(data, s.TempUnit)
	if err != nil {
		return false, err
	}
	if s.TargetTemp != nil && *s.TargetTemp == v {
		return false, nil
	}
	s.TargetTemp = &v
	return true, nil
}

func encodeTargetTemp(v interface{}) ([]byte, error) {
	temp, ok := v.(float64)
	if !ok {
		return nil, &ValidationError{Field: "targetTemp", Reason: "value must be a float64"}
	}
	data, err := codec.EncodeTemperature(temp)
	if err != nil {
		return nil, &ValidationError{Field: "targetTemp", Reason: err.Error()}
	}
	return data, nil
}

func decodeTempUnit(s *State, data []byte) (bool, error) {
	v, err := codec.DecodeTempUnit(data)
	if err != nil {
		return false, err
	}
	if s.TempUnit == v {
		return false, nil
	}
	s.TempUnit = v
	return true, nil
}

func decodeBattery(s *State, data []byte) (bool, error) {
	v, err := codec.DecodeBatteryInfo(data)
	if err != nil {
		return false, err
	}
	if s.Battery != nil && *s.Battery == v {
		return false, nil
	}
	s.Battery = &v
	return true, nil
}

func decodeUDSK(s *State, data []byte) (bool, error) {
	v := codec.EncodeByteString(data)
	if s.UDSK == v {
		return false, nil
	}
	s.UDSK = v
	return true, nil
}

func decodeDSK(s *State, data []byte) (bool, error) {
	v := codec.EncodeByteString(data)
	if s.DSK == v {
		return false, nil
	}
	s.DSK = v
	return true, nil
}

func decodeFirmware(s *State, data []byte) (bool, error) {
	v, err := codec.DecodeFirmwareInfo(data)
	if err != nil {
		return false, err
	}
	if s.Firmware != nil && *s.Firmware == v {
		return false, nil
	}
	s.Firmware = &v
	return true, nil
}

func decodeDateTimeZone(s *State, data []byte) (bool, error) {
	v := codec.Text(data)
	if s.DateTimeZone == v {
		return false, nil
	}
	s.DateTimeZone = v
	return true, nil
}

func decodeBatteryVoltage(s *State, data []byte) (bool, error) {
	v := codec.Text(data)
	if s.BatteryVoltage == v {
		return false, nil
	}
	s.BatteryVoltage = v
	return true, nil
}
