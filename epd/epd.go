package epd

import (
	"fmt"
	"image"
	"sort"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// EPD is a full-frame tri-color panel.
type EPD interface {
	Init() error
	UpdateFrame(black []byte) error
	UpdateColorFrame(black, chromatic []byte) error
	DisplayFrame() error
	ClearFrame() error
	SetBackgroundColor(c TriColor)
	Sleep() error
	WakeUp() error
	Bounds() image.Rectangle
	// Close puts the panel to sleep and releases the bus.
	Close() error
	// Release releases the bus without sleeping the panel.
	Release() error
}

// SPIConfig is how a panel is wired.
type SPIConfig struct {
	Port  spi.Port
	MaxHz physic.Frequency // 0 for the panel default
	DC    gpio.PinOut
	CS    gpio.PinOut // nil or gpio.INVALID when the port drives chip select
	RST   gpio.PinOut
	BUSY  gpio.PinIn
	Opts  *Opts
}

var epdTypes = map[string]func(SPIConfig) (EPD, error){
	"154b_v2": NewEPD154BV2FromSPI,
}

// SupportedTypes lists the names accepted by NewEPDFromSPI.
func SupportedTypes() []string {
	retval := make([]string, 0, len(epdTypes))
	for k := range epdTypes {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// NewEPDFromSPI builds and initializes the panel named epdType.
func NewEPDFromSPI(epdType string, cfg SPIConfig) (EPD, error) {
	if v, ok := epdTypes[epdType]; ok {
		return v(cfg)
	}
	return nil, fmt.Errorf("unknown epd type %q", epdType)
}

// NewEPD154BV2FromSPI connects to a 1.54" (B) v2 panel and initializes it.
// On error a cfg.Port implementing spi.PortCloser has been closed.
func NewEPD154BV2FromSPI(cfg SPIConfig) (EPD, error) {
	bus, err := NewSPIBusFromPort(cfg.Port, cfg.MaxHz, cfg.DC, cfg.CS, cfg.RST, cfg.BUSY, singleByteWrite)
	if err != nil {
		return nil, err
	}
	d, err := New(bus, cfg.Opts)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return d, nil
}

var _ EPD = &Dev{}
