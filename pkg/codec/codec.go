package codec

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// TempUnit is an enum for the temperature unit the mug reports in
type TempUnit int

const (
	// Celsius indicates temperatures are in degrees celsius (the mug's raw unit)
	Celsius TempUnit = iota
	// Fahrenheit indicates temperatures are converted to degrees fahrenheit
	Fahrenheit
)

func (u TempUnit) String() string {
	return []string{"C", "F"}[u]
}

// BatteryInfo is the decoded battery characteristic payload
type BatteryInfo struct {
	Percent        float64
	OnChargingBase bool
}

// MugID is the decoded mug id characteristic payload
type MugID struct {
	ID           string
	SerialNumber string
}

// FirmwareInfo is the decoded firmware (OTA) characteristic payload
type FirmwareInfo struct {
	Firmware   int
	Hardware   int
	Bootloader int
}

// byteStringPadding is appended before base64 encoding, as the vendor app does
var byteStringPadding = []byte("===")

// LittleEndianUint converts a little endian byte sequence of any length to an unsigned int
func LittleEndianUint(data []byte) uint64 {
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// BigEndianUint converts a big endian byte sequence of any length to an unsigned int
func BigEndianUint(data []byte) uint64 {
	var v uint64
	for i := 0; i < len(data); i++ {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// Text converts a characteristic payload to a string
func Text(data []byte) string {
	return string(data)
}

// EncodeText converts a string to a characteristic payload
func EncodeText(s string) []byte {
	return []byte(s)
}

// EncodeByteString converts bytes to the modified base64 form the mug uses for ids and keys
func EncodeByteString(data []byte) string {
	padded := make([]byte, 0, len(data)+len(byteStringPadding))
	padded = append(padded, data...)
	padded = append(padded, byteStringPadding...)
	return base64.StdEncoding.EncodeToString(padded)
}

// DecodeTemperature converts a raw temperature payload (hundredths of a degree
// celsius, little endian) to a float in the given unit, rounded to 2 decimals
func DecodeTemperature(data []byte, unit TempUnit) (float64, error) {
	if len(data) < 2 {
		return 0, errors.Errorf("temperature payload too short (%d bytes)", len(data))
	}
	temp := float64(LittleEndianUint(data)) * 0.01
	if unit == Fahrenheit {
		temp = temp*9/5 + 32
	}
	return round2(temp), nil
}

// EncodeTemperature converts a temperature in degrees celsius to the raw 2 byte payload
func EncodeTemperature(temp float64) ([]byte, error) {
	raw := math.Round(temp / 0.01)
	if raw < 0 || raw > math.MaxUint16 {
		return nil, errors.Errorf("temperature %.2f out of encodable range", temp)
	}
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, uint16(raw))
	return data, nil
}

// DecodeTempUnit converts the raw unit flag to a TempUnit (0 is celsius)
func DecodeTempUnit(data []byte) (TempUnit, error) {
	if len(data) == 0 {
		return Celsius, errors.New("temperature unit payload is empty")
	}
	if LittleEndianUint(data) == 0 {
		return Celsius, nil
	}
	return Fahrenheit, nil
}

// DecodeBatteryInfo converts the raw battery payload (percent byte, charging flag byte)
func DecodeBatteryInfo(data []byte) (BatteryInfo, error) {
	if len(data) < 2 {
		return BatteryInfo{}, errors.Errorf("battery payload too short (%d bytes)", len(data))
	}
	return BatteryInfo{
		Percent:        round2(float64(data[0])),
		OnChargingBase: data[1] == 1,
	}, nil
}

// DecodeMugID converts the raw mug id payload: 6 id bytes, one framing byte
// which is skipped, then the serial number as text
func DecodeMugID(data []byte) (MugID, error) {
	if len(data) < 7 {
		return MugID{}, errors.Errorf("mug id payload too short (%d bytes)", len(data))
	}
	return MugID{
		ID:           EncodeByteString(data[:6]),
		SerialNumber: Text(data[7:]),
	}, nil
}

// DecodeFirmwareInfo converts the raw firmware payload: three sequential 2 byte
// big endian fields (firmware, hardware, bootloader)
func DecodeFirmwareInfo(data []byte) (FirmwareInfo, error) {
	if len(data) < 6 {
		return FirmwareInfo{}, errors.Errorf("firmware payload too short (%d bytes)", len(data))
	}
	return FirmwareInfo{
		Firmware:   int(binary.BigEndian.Uint16(data[0:2])),
		Hardware:   int(binary.BigEndian.Uint16(data[2:4])),
		Bootloader: int(binary.BigEndian.Uint16(data[4:6])),
	}, nil
}

// EncodeColor converts RGBA components to the raw 4 byte LED payload
func EncodeColor(r, g, b, a uint8) []byte {
	return []byte{r, g, b, a}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
