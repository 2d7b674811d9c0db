package epd

import (
	"context"
	"time"
)

// CommandSender sends a single opcode with the data/command line low.
type CommandSender interface {
	SendCommand(cmd byte) error
}

// DataSender sends payload bytes with the data/command line high.
type DataSender interface {
	SendData(data []byte) error
	// SendDataRepeat sends value n times.
	SendDataRepeat(value byte, n int) error
}

// Resetter drives the reset line: high for initial, low for pulse, then high
// again until the controller has settled.
type Resetter interface {
	Reset(initial, pulse time.Duration) error
}

// BusyWaiter blocks until the busy line reports idle, polling every poll.
//
// isBusyLow selects the polarity: when true the controller is busy while the
// line is low. It returns ctx.Err() if ctx is done first.
type BusyWaiter interface {
	WaitUntilIdle(ctx context.Context, isBusyLow bool, poll time.Duration) error
}

// Bus is everything a panel driver needs from the wiring.
type Bus interface {
	CommandSender
	DataSender
	Resetter
	BusyWaiter
}
