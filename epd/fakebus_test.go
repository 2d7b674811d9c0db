package epd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type opKind int

const (
	opReset opKind = iota
	opWait
	opCmd
	opData
)

type op struct {
	kind opKind
	cmd  Command
	data []byte
}

func (o op) String() string {
	switch o.kind {
	case opReset:
		return "reset"
	case opWait:
		return "wait"
	case opCmd:
		return o.cmd.String()
	default:
		if len(o.data) > 8 {
			return fmt.Sprintf("data[%d]", len(o.data))
		}
		return fmt.Sprintf("data%X", o.data)
	}
}

// fakeBus records every transaction the driver issues.
type fakeBus struct {
	ops []op

	stuck     bool    // busy line never goes idle
	stuckIn   int     // when > 0, the busy line sticks from that wait on
	failCmd   Command // SendCommand fails for this opcode when failArmed
	failArmed bool
	closed    bool
}

var errFakeTx = errors.New("fake tx failure")

func (f *fakeBus) SendCommand(cmd byte) error {
	if f.failArmed && Command(cmd) == f.failCmd {
		return errFakeTx
	}
	f.ops = append(f.ops, op{kind: opCmd, cmd: Command(cmd)})
	return nil
}

func (f *fakeBus) SendData(data []byte) error {
	f.ops = append(f.ops, op{kind: opData, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeBus) SendDataRepeat(value byte, n int) error {
	f.ops = append(f.ops, op{kind: opData, data: bytes.Repeat([]byte{value}, n)})
	return nil
}

func (f *fakeBus) Reset(initial, pulse time.Duration) error {
	f.ops = append(f.ops, op{kind: opReset})
	return nil
}

func (f *fakeBus) WaitUntilIdle(ctx context.Context, isBusyLow bool, poll time.Duration) error {
	f.ops = append(f.ops, op{kind: opWait})
	if f.stuckIn > 0 {
		f.stuckIn--
		f.stuck = f.stuckIn == 0
	}
	if f.stuck {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeBus) Close() error {
	f.closed = true
	return nil
}

// take returns the recorded ops and clears the log.
func (f *fakeBus) take() []op {
	ops := f.ops
	f.ops = nil
	return ops
}

// transactions drops busy waits, leaving only what went over the wire.
func transactions(ops []op) []op {
	var out []op
	for _, o := range ops {
		if o.kind == opCmd || o.kind == opData {
			out = append(out, o)
		}
	}
	return out
}

func describe(ops []op) string {
	s := make([]string, len(ops))
	for i, o := range ops {
		s[i] = o.String()
	}
	return strings.Join(s, " ")
}

func cmd(c Command) op { return op{kind: opCmd, cmd: c} }

func data(b ...byte) op { return op{kind: opData, data: b} }

func wait() op { return op{kind: opWait} }

func equalOps(a, b []op) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].kind != b[i].kind || a[i].cmd != b[i].cmd || !bytes.Equal(a[i].data, b[i].data) {
			return false
		}
	}
	return true
}
