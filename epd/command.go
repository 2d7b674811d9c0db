package epd

import "fmt"

// Command is an opcode understood by the SSD1681 class controller used on
// the 1.54" (B) v2 panel.
type Command byte

// Commands
const (
	DriverOutputControl            Command = 0x01
	DeepSleepMode                  Command = 0x10
	DataEntryModeSetting           Command = 0x11
	SwReset                        Command = 0x12
	TemperatureSensorSelection     Command = 0x18
	TemperatureSensorControl       Command = 0x1A
	MasterActivation               Command = 0x20
	DisplayUpdateControl2          Command = 0x22
	WriteRAM                       Command = 0x24 // achromatic (black/white) plane
	WriteRAM2                      Command = 0x26 // chromatic (red) plane
	WriteLUTRegister               Command = 0x32
	BorderWaveformControl          Command = 0x3C
	SetRAMXAddressStartEndPosition Command = 0x44
	SetRAMYAddressStartEndPosition Command = 0x45
	SetRAMXAddressCounter          Command = 0x4E
	SetRAMYAddressCounter          Command = 0x4F
	Nop                            Command = 0xFF
)

var commandNames = map[Command]string{
	DriverOutputControl:            "DriverOutputControl",
	DeepSleepMode:                  "DeepSleepMode",
	DataEntryModeSetting:           "DataEntryModeSetting",
	SwReset:                        "SwReset",
	TemperatureSensorSelection:     "TemperatureSensorSelection",
	TemperatureSensorControl:       "TemperatureSensorControl",
	MasterActivation:               "MasterActivation",
	DisplayUpdateControl2:          "DisplayUpdateControl2",
	WriteRAM:                       "WriteRAM",
	WriteRAM2:                      "WriteRAM2",
	WriteLUTRegister:               "WriteLUTRegister",
	BorderWaveformControl:          "BorderWaveformControl",
	SetRAMXAddressStartEndPosition: "SetRAMXAddressStartEndPosition",
	SetRAMYAddressStartEndPosition: "SetRAMYAddressStartEndPosition",
	SetRAMXAddressCounter:          "SetRAMXAddressCounter",
	SetRAMYAddressCounter:          "SetRAMYAddressCounter",
	Nop:                            "Nop",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}
