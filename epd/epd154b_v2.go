package epd

// Based on the Waveshare 1.54" (B) v2 reference sequence. The controller is
// SSD1681 compatible: two RAM planes, byte granular X addressing, busy high
// while working.

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/AndreRenaud/epd1in54b/internal/log"
)

// Panel geometry and bus characteristics of the 1.54" (B) v2.
const (
	Width  = 200
	Height = 200

	DefaultBackgroundColor = White

	// PlaneSize is the byte length of one full frame plane.
	PlaneSize = (Width + 7) / 8 * Height

	isBusyLow       = false
	singleByteWrite = true
)

// Register values sent during init and refresh.
const (
	dataEntryXIncYInc     = 0x03
	borderWaveform        = 0x05
	internalTempSensor    = 0x80
	displayUpdateFullTemp = 0xF7 // load temperature, full refresh waveform
	deepSleepMode1        = 0x01
)

const (
	resetInitial = 10 * time.Millisecond
	resetPulse   = 10 * time.Millisecond

	defaultPollInterval = 10 * time.Millisecond
)

var (
	// ErrInvalidWindow is returned when a RAM window does not satisfy
	// start < end on both axes. Nothing is sent to the panel.
	ErrInvalidWindow = errors.New("epd: invalid ram window")
	// ErrBufferSize is returned when a plane buffer is not PlaneSize bytes.
	ErrBufferSize = errors.New("epd: invalid buffer size")
	// ErrUnsupported is returned by operations this panel driver does not
	// implement. It never touches the bus.
	ErrUnsupported = errors.New("epd: unsupported operation")
	// ErrBusyTimeout is returned when Opts.BusyTimeout expires while waiting
	// for the panel.
	ErrBusyTimeout = errors.New("epd: timed out waiting for busy line")
	// ErrNotInitialized is returned when the panel has not been (re)initialized
	// since construction or since a failed sequence.
	ErrNotInitialized = errors.New("epd: panel not initialized")
	// ErrSleeping is returned by frame operations while the panel is in deep
	// sleep. Call WakeUp first.
	ErrSleeping = errors.New("epd: panel is sleeping")
)

// State is the driver's view of the controller.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateIdle
	StateBusy
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateSleeping:
		return "sleeping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RefreshLUT selects a refresh waveform profile.
type RefreshLUT int

const (
	RefreshFull RefreshLUT = iota
	RefreshQuick
)

// Opts tunes the busy wait. The zero value polls every 10ms and waits
// forever.
type Opts struct {
	// PollInterval between busy line reads. Defaults to 10ms.
	PollInterval time.Duration
	// BusyTimeout bounds every busy wait when positive.
	BusyTimeout time.Duration
}

// Dev drives a Waveshare 1.54" (B) v2 tri-color panel.
//
// Dev is not safe for concurrent use. Multi-transaction sequences must not be
// interleaved with other calls on the same bus.
type Dev struct {
	bus   Bus
	opts  Opts
	state State

	background TriColor
}

// New binds bus, resets the panel and runs the init sequence. opts may be nil.
func New(bus Bus, opts *Opts) (*Dev, error) {
	if bus == nil {
		return nil, errors.New("epd: bus is required")
	}
	d := &Dev{
		bus:        bus,
		background: DefaultBackgroundColor,
	}
	if opts != nil {
		d.opts = *opts
	}
	if d.opts.PollInterval <= 0 {
		d.opts.PollInterval = defaultPollInterval
	}
	log.Debug("epd: create 154b_v2 instance", "busy_timeout", d.opts.BusyTimeout)
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// Init resets the controller and programs it for full-frame tri-color use.
// It can be called at any time to recover from an error.
func (d *Dev) Init() error {
	d.state = StateInitializing
	if err := d.init(); err != nil {
		d.state = StateUninitialized
		return err
	}
	d.state = StateIdle
	return nil
}

func (d *Dev) init() error {
	if err := d.bus.Reset(resetInitial, resetPulse); err != nil {
		return fmt.Errorf("epd: reset: %w", err)
	}
	log.Debug("epd: reset done")
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	if err := d.command(SwReset); err != nil {
		return err
	}
	if err := d.waitUntilIdle(); err != nil {
		return err
	}

	// A[7:0], 0..A[8], B[2:0] with A = gate lines - 1.
	if err := d.cmdWithData(DriverOutputControl, []byte{byte(Height - 1), byte((Height - 1) >> 8), 0x00}); err != nil {
		return err
	}
	if err := d.cmdWithData(DataEntryModeSetting, []byte{dataEntryXIncYInc}); err != nil {
		return err
	}
	if err := d.setRAMArea(0, 0, Width-1, Height-1); err != nil {
		return err
	}
	if err := d.cmdWithData(BorderWaveformControl, []byte{borderWaveform}); err != nil {
		return err
	}
	if err := d.cmdWithData(TemperatureSensorSelection, []byte{internalTempSensor}); err != nil {
		return err
	}
	if err := d.cmdWithData(TemperatureSensorControl, []byte{0xB1, 0x20}); err != nil {
		return err
	}
	if err := d.setRAMCounter(0, 0); err != nil {
		return err
	}
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	log.Debug("epd: init done")
	return nil
}

// begin checks the driver may issue a frame sequence and marks it busy.
func (d *Dev) begin() error {
	switch d.state {
	case StateIdle:
		d.state = StateBusy
		return nil
	case StateSleeping:
		return ErrSleeping
	default:
		return ErrNotInitialized
	}
}

// end records the outcome of a sequence started with begin. A failed sequence
// leaves the controller in an unknown state, so it must be initialized again.
func (d *Dev) end(err error) error {
	if err != nil {
		d.state = StateUninitialized
		return err
	}
	d.state = StateIdle
	return nil
}

// UpdateFrame writes buf to the achromatic (black/white) plane.
func (d *Dev) UpdateFrame(buf []byte) error {
	return d.UpdateAchromaticFrame(buf)
}

// UpdateAchromaticFrame writes black to the achromatic plane. A set bit is
// white.
func (d *Dev) UpdateAchromaticFrame(black []byte) error {
	if err := checkPlane(black); err != nil {
		return err
	}
	if err := d.begin(); err != nil {
		return err
	}
	return d.end(d.writePlane(WriteRAM, black))
}

// UpdateChromaticFrame writes chromatic to the chromatic (red) plane. A set
// bit is coloured.
func (d *Dev) UpdateChromaticFrame(chromatic []byte) error {
	if err := checkPlane(chromatic); err != nil {
		return err
	}
	if err := d.begin(); err != nil {
		return err
	}
	return d.end(d.writePlane(WriteRAM2, chromatic))
}

// UpdateColorFrame writes both planes, achromatic first.
func (d *Dev) UpdateColorFrame(black, chromatic []byte) error {
	if err := checkPlane(black); err != nil {
		return err
	}
	if err := checkPlane(chromatic); err != nil {
		return err
	}
	if err := d.begin(); err != nil {
		return err
	}
	return d.end(d.writeColor(black, chromatic))
}

func (d *Dev) writeColor(black, chromatic []byte) error {
	if err := d.writePlane(WriteRAM, black); err != nil {
		return err
	}
	return d.writePlane(WriteRAM2, chromatic)
}

func (d *Dev) writePlane(cmd Command, buf []byte) error {
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	if err := d.useFullFrame(); err != nil {
		return err
	}
	return d.cmdWithData(cmd, buf)
}

// UpdatePartialFrame is not supported by this panel driver and always returns
// ErrUnsupported without touching the bus.
func (d *Dev) UpdatePartialFrame(buf []byte, x, y, width, height int) error {
	return fmt.Errorf("%w: partial frame update", ErrUnsupported)
}

// SetLUT is not supported by this panel driver and always returns
// ErrUnsupported without touching the bus.
func (d *Dev) SetLUT(lut RefreshLUT) error {
	return fmt.Errorf("%w: custom refresh lut", ErrUnsupported)
}

// DisplayFrame refreshes the panel from RAM.
func (d *Dev) DisplayFrame() error {
	if err := d.begin(); err != nil {
		return err
	}
	return d.end(d.displayFrame())
}

func (d *Dev) displayFrame() error {
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	if err := d.cmdWithData(DisplayUpdateControl2, []byte{displayUpdateFullTemp}); err != nil {
		return err
	}
	if err := d.command(MasterActivation); err != nil {
		return err
	}
	// Master activation must not be interrupted while the panel redraws, so
	// the very next transaction is a terminating no-op.
	return d.command(Nop)
}

// UpdateAndDisplayFrame writes buf to the achromatic plane and refreshes.
func (d *Dev) UpdateAndDisplayFrame(buf []byte) error {
	if err := checkPlane(buf); err != nil {
		return err
	}
	if err := d.begin(); err != nil {
		return err
	}
	if err := d.writePlane(WriteRAM, buf); err != nil {
		return d.end(err)
	}
	return d.end(d.displayFrame())
}

// UpdateAndDisplayColorFrame writes both planes and refreshes.
func (d *Dev) UpdateAndDisplayColorFrame(black, chromatic []byte) error {
	if err := checkPlane(black); err != nil {
		return err
	}
	if err := checkPlane(chromatic); err != nil {
		return err
	}
	if err := d.begin(); err != nil {
		return err
	}
	if err := d.writeColor(black, chromatic); err != nil {
		return d.end(err)
	}
	return d.end(d.displayFrame())
}

// ClearFrame fills both RAM planes according to the background color. It does
// not refresh the panel.
func (d *Dev) ClearFrame() error {
	if err := d.begin(); err != nil {
		return err
	}
	return d.end(d.clearFrame())
}

func (d *Dev) clearFrame() error {
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	if err := d.useFullFrame(); err != nil {
		return err
	}

	n := Width / 8 * Height
	if d.background == Chromatic {
		// Waveshare's sequence sends twice the plane size to the achromatic
		// RAM here.
		if err := d.command(WriteRAM); err != nil {
			return err
		}
		if err := d.dataRepeat(0xFF, 2*n); err != nil {
			return err
		}
	} else {
		if err := d.command(WriteRAM); err != nil {
			return err
		}
		if err := d.dataRepeat(d.background.Byte(), n); err != nil {
			return err
		}
	}
	if err := d.command(WriteRAM2); err != nil {
		return err
	}
	return d.dataRepeat(0x00, n)
}

// Sleep puts the controller into deep sleep mode 1. Only WakeUp brings it
// back.
func (d *Dev) Sleep() error {
	if err := d.begin(); err != nil {
		return err
	}
	err := d.waitUntilIdle()
	if err == nil {
		err = d.cmdWithData(DeepSleepMode, []byte{deepSleepMode1})
	}
	if err != nil {
		return d.end(err)
	}
	d.state = StateSleeping
	log.Debug("epd: sleeping")
	return nil
}

// WakeUp leaves deep sleep. The controller has no wake opcode; this is a full
// Init.
func (d *Dev) WakeUp() error {
	return d.Init()
}

// WaitUntilIdle blocks until the busy line reports idle.
func (d *Dev) WaitUntilIdle() error {
	return d.waitUntilIdle()
}

func (d *Dev) waitUntilIdle() error {
	ctx := context.Background()
	if d.opts.BusyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.BusyTimeout)
		defer cancel()
	}
	if err := d.bus.WaitUntilIdle(ctx, isBusyLow, d.opts.PollInterval); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrBusyTimeout, d.opts.BusyTimeout)
		}
		return fmt.Errorf("epd: busy wait: %w", err)
	}
	return nil
}

// useFullFrame selects the whole RAM and moves the cursor to its start.
func (d *Dev) useFullFrame() error {
	if err := d.setRAMArea(0, 0, Width-1, Height-1); err != nil {
		return err
	}
	return d.setRAMCounter(0, 0)
}

func (d *Dev) setRAMArea(startX, startY, endX, endY int) error {
	if startX >= endX || startY >= endY {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d)", ErrInvalidWindow, startX, startY, endX, endY)
	}
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	// X is addressed in bytes; the low 3 bits are dropped.
	if err := d.cmdWithData(SetRAMXAddressStartEndPosition, []byte{byte(startX >> 3), byte(endX >> 3)}); err != nil {
		return err
	}
	// A[7:0], 0..A[8] for start and end.
	return d.cmdWithData(SetRAMYAddressStartEndPosition, []byte{
		byte(startY), byte(startY >> 8),
		byte(endY), byte(endY >> 8),
	})
}

func (d *Dev) setRAMCounter(x, y int) error {
	if err := d.waitUntilIdle(); err != nil {
		return err
	}
	if err := d.cmdWithData(SetRAMXAddressCounter, []byte{byte(x >> 3)}); err != nil {
		return err
	}
	return d.cmdWithData(SetRAMYAddressCounter, []byte{byte(y), byte(y >> 8)})
}

func (d *Dev) command(cmd Command) error {
	if err := d.bus.SendCommand(byte(cmd)); err != nil {
		return fmt.Errorf("epd: %s: %w", cmd, err)
	}
	return nil
}

func (d *Dev) cmdWithData(cmd Command, data []byte) error {
	if err := d.command(cmd); err != nil {
		return err
	}
	if err := d.bus.SendData(data); err != nil {
		return fmt.Errorf("epd: %s data: %w", cmd, err)
	}
	return nil
}

func (d *Dev) dataRepeat(value byte, n int) error {
	if err := d.bus.SendDataRepeat(value, n); err != nil {
		return fmt.Errorf("epd: fill 0x%02X x%d: %w", value, n, err)
	}
	return nil
}

func checkPlane(buf []byte) error {
	if len(buf) != PlaneSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(buf), PlaneSize)
	}
	return nil
}

// SetBackgroundColor sets the color ClearFrame fills with.
func (d *Dev) SetBackgroundColor(c TriColor) {
	d.background = c
}

// BackgroundColor returns the color ClearFrame fills with.
func (d *Dev) BackgroundColor() TriColor {
	return d.background
}

// State returns the driver's view of the controller.
func (d *Dev) State() State {
	return d.state
}

func (d *Dev) Width() int {
	return Width
}

func (d *Dev) Height() int {
	return Height
}

func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// Close puts an idle panel into deep sleep and closes the bus if it is an
// io.Closer.
func (d *Dev) Close() error {
	var err error
	if d.state == StateIdle {
		err = d.Sleep()
	}
	if rerr := d.Release(); err == nil {
		err = rerr
	}
	return err
}

// Release closes the bus if it is an io.Closer and leaves the panel as it is,
// still refreshed and awake. The Dev cannot be used afterwards.
func (d *Dev) Release() error {
	if d.state != StateSleeping {
		d.state = StateUninitialized
	}
	if c, ok := d.bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("epd.Dev{154b_v2, %dx%d, %s}", Width, Height, d.state)
}
