//go:build rp2040

package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/jangala-dev/tinygo-uartx/uartx"
	"machine"
)

var errUnknownUART = errors.New("bridge: unknown uart id (want \"uart0\" or \"uart1\")")

// rp2UARTPort adapts a *uartx.UART to io.ReadWriteCloser: Write is a
// direct passthrough, Read blocks on the context-aware receive the
// way the teacher's rp2SerialPort wraps RecvSomeContext, and Close is
// a no-op since the UART peripheral is shared, long-lived hardware.
type rp2UARTPort struct {
	ctx context.Context
	hw  *uartx.UART
}

func (p *rp2UARTPort) Read(buf []byte) (int, error) {
	return p.hw.RecvSomeContext(p.ctx, buf)
}

func (p *rp2UARTPort) Write(buf []byte) (int, error) {
	return p.hw.Write(buf)
}

func (p *rp2UARTPort) Close() error { return nil }

// dialRP2UART opens uart0 or uart1 against u's pin/baud settings. It's
// wired into UARTDial by cmd/*-main at the composition root, the same
// injection seam the teacher uses for platform-specific dial code.
func dialRP2UART(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch u.ID {
	case "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, errUnknownUART
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	return &rp2UARTPort{ctx: ctx, hw: hw}, nil
}

func init() {
	UARTDial = dialRP2UART
}
