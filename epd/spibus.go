package epd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// resetSettle is how long the controller needs after the reset line returns
// high before it accepts commands.
const resetSettle = 200 * time.Millisecond

// maxBurst caps a single Tx when the bus is not in single byte mode.
const maxBurst = 4096

// SPIBus implements Bus on a periph.io connection plus four GPIO lines.
type SPIBus struct {
	c    conn.Conn
	dc   gpio.PinOut
	cs   gpio.PinOut // nil when the SPI port drives chip select itself
	rst  gpio.PinOut
	busy gpio.PinIn

	singleByte bool
	closer     io.Closer
	sleep      func(time.Duration)
}

// NewSPIBus wires an already connected conn.Conn to the control lines.
//
// When singleByte is set every data byte is its own transfer with chip select
// toggled around it, which some controllers require.
func NewSPIBus(c conn.Conn, dc, cs, rst gpio.PinOut, busy gpio.PinIn, singleByte bool) (*SPIBus, error) {
	if dc == nil || dc == gpio.INVALID {
		return nil, errors.New("epd: dc pin is required")
	}
	if rst == nil || rst == gpio.INVALID {
		return nil, errors.New("epd: rst pin is required")
	}
	if busy == nil || busy == gpio.INVALID {
		return nil, errors.New("epd: busy pin is required")
	}
	if cs == gpio.INVALID {
		cs = nil
	}

	b := &SPIBus{
		c:          c,
		dc:         dc,
		cs:         cs,
		rst:        rst,
		busy:       busy,
		singleByte: singleByte,
		sleep:      time.Sleep,
	}

	if err := rst.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("epd: rst: %w", err)
	}
	if err := dc.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("epd: dc: %w", err)
	}
	if err := b.chipSelect(false); err != nil {
		return nil, err
	}
	if err := busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("epd: busy: %w", err)
	}
	return b, nil
}

// NewSPIBusFromPort connects to p in mode 0 with 8 bit words at up to maxHz
// (20MHz when zero) and wires it with NewSPIBus. If p is a spi.PortCloser it is
// owned by the returned bus and closed by Close, or closed here on error.
func NewSPIBusFromPort(p spi.Port, maxHz physic.Frequency, dc, cs, rst gpio.PinOut, busy gpio.PinIn, singleByte bool) (*SPIBus, error) {
	if p == nil {
		return nil, errors.New("epd: spi port is required")
	}
	pc, _ := p.(spi.PortCloser)
	if maxHz == 0 {
		maxHz = 20 * physic.MegaHertz
	}
	c, err := p.Connect(maxHz, spi.Mode0, 8)
	if err != nil {
		if pc != nil {
			pc.Close()
		}
		return nil, fmt.Errorf("epd: spi connect: %w", err)
	}
	b, err := NewSPIBus(c, dc, cs, rst, busy, singleByte)
	if err != nil {
		if pc != nil {
			pc.Close()
		}
		return nil, err
	}
	if pc != nil {
		b.closer = pc
	}
	return b, nil
}

func (b *SPIBus) chipSelect(active bool) error {
	if b.cs == nil {
		return nil
	}
	l := gpio.High
	if active {
		l = gpio.Low
	}
	if err := b.cs.Out(l); err != nil {
		return fmt.Errorf("epd: cs: %w", err)
	}
	return nil
}

// tx runs one chip-select framed transfer with dc set to l.
func (b *SPIBus) tx(l gpio.Level, w []byte) error {
	if err := b.dc.Out(l); err != nil {
		return fmt.Errorf("epd: dc: %w", err)
	}
	if err := b.chipSelect(true); err != nil {
		return err
	}
	err := b.c.Tx(w, nil)
	if cerr := b.chipSelect(false); err == nil {
		err = cerr
	}
	return err
}

// SendCommand implements CommandSender.
func (b *SPIBus) SendCommand(cmd byte) error {
	return b.tx(gpio.Low, []byte{cmd})
}

// SendData implements DataSender.
func (b *SPIBus) SendData(data []byte) error {
	if b.singleByte {
		for i := range data {
			if err := b.tx(gpio.High, data[i:i+1]); err != nil {
				return err
			}
		}
		return nil
	}
	for len(data) > 0 {
		n := len(data)
		if n > maxBurst {
			n = maxBurst
		}
		if err := b.tx(gpio.High, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// SendDataRepeat implements DataSender.
func (b *SPIBus) SendDataRepeat(value byte, n int) error {
	if n <= 0 {
		return nil
	}
	if b.singleByte {
		one := []byte{value}
		for i := 0; i < n; i++ {
			if err := b.tx(gpio.High, one); err != nil {
				return err
			}
		}
		return nil
	}
	chunk := n
	if chunk > maxBurst {
		chunk = maxBurst
	}
	buf := bytes.Repeat([]byte{value}, chunk)
	for n > 0 {
		m := n
		if m > chunk {
			m = chunk
		}
		if err := b.tx(gpio.High, buf[:m]); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

// Reset implements Resetter.
func (b *SPIBus) Reset(initial, pulse time.Duration) error {
	if err := b.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: rst: %w", err)
	}
	b.sleep(initial)
	if err := b.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd: rst: %w", err)
	}
	b.sleep(pulse)
	if err := b.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: rst: %w", err)
	}
	b.sleep(resetSettle)
	return nil
}

// WaitUntilIdle implements BusyWaiter.
func (b *SPIBus) WaitUntilIdle(ctx context.Context, isBusyLow bool, poll time.Duration) error {
	busyLevel := gpio.High
	if isBusyLow {
		busyLevel = gpio.Low
	}
	var t *time.Timer
	for b.busy.Read() == busyLevel {
		if poll <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		if t == nil {
			t = time.NewTimer(poll)
			defer t.Stop()
		} else {
			t.Reset(poll)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Close releases the SPI port if NewSPIBusFromPort opened it.
func (b *SPIBus) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

func (b *SPIBus) String() string {
	return fmt.Sprintf("epd.SPIBus{%s, dc:%s, rst:%s, busy:%s}", b.c, b.dc, b.rst, b.busy)
}
