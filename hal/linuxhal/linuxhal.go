// Package linuxhal binds an SX1280 engine to Linux spidev and GPIO
// character devices through periph.io. It supplies the bus transport, the
// busy and reset lines, and a goroutine that forwards DIO1 edges to the
// engine's interrupt entry point.
package linuxhal

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Pins names the host resources wired to the chip.
type Pins struct {
	// SPIDev is the spireg name of the bus, e.g. "/dev/spidev0.0".
	SPIDev string
	// Busy, IRQ and Reset are gpioreg names, e.g. "GPIO23".
	Busy  string
	IRQ   string
	Reset string
	// SPIHz overrides the bus clock. Zero selects 8 MHz; the chip tops
	// out at 18 MHz.
	SPIHz physic.Frequency
}

// HAL owns the opened host resources for one chip.
type HAL struct {
	port  spi.PortCloser
	conn  spi.Conn
	busy  gpio.PinIO
	irq   gpio.PinIO
	reset gpio.PinIO
	halt  chan struct{}
}

// Open claims the SPI port and GPIO lines. Call Close to release them.
func Open(pins Pins) (*HAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(pins.SPIDev)
	if err != nil {
		return nil, err
	}
	hz := pins.SPIHz
	if hz == 0 {
		hz = 8 * physic.MegaHertz
	}
	conn, err := port.Connect(hz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, err
	}
	h := &HAL{port: port, conn: conn, halt: make(chan struct{})}

	if h.busy = gpioreg.ByName(pins.Busy); h.busy == nil {
		port.Close()
		return nil, fmt.Errorf("busy pin %q not found", pins.Busy)
	}
	if err := h.busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		port.Close()
		return nil, err
	}
	if h.irq = gpioreg.ByName(pins.IRQ); h.irq == nil {
		port.Close()
		return nil, fmt.Errorf("irq pin %q not found", pins.IRQ)
	}
	if err := h.irq.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		port.Close()
		return nil, err
	}
	if h.reset = gpioreg.ByName(pins.Reset); h.reset == nil {
		port.Close()
		return nil, fmt.Errorf("reset pin %q not found", pins.Reset)
	}
	if err := h.reset.Out(gpio.High); err != nil {
		port.Close()
		return nil, err
	}
	return h, nil
}

// Tx performs one full-duplex bus transfer.
func (h *HAL) Tx(w, r []byte) error { return h.conn.Tx(w, r) }

// Busy samples the chip's busy line.
func (h *HAL) Busy() bool { return h.busy.Read() == gpio.High }

// Reset drives the chip's active-low reset line.
func (h *HAL) Reset(level bool) {
	if level {
		h.reset.Out(gpio.High)
	} else {
		h.reset.Out(gpio.Low)
	}
}

// WatchIRQ blocks on DIO1 rising edges and calls notify for each one until
// Close. Run it on its own goroutine:
//
//	go hal.WatchIRQ(dev.NotifyIRQ)
func (h *HAL) WatchIRQ(notify func()) {
	for {
		select {
		case <-h.halt:
			return
		default:
		}
		// Time out periodically so Close is noticed on a quiet line.
		if h.irq.WaitForEdge(100 * time.Millisecond) {
			notify()
		}
	}
}

// Close stops the edge watcher and releases the port and pins.
func (h *HAL) Close() error {
	select {
	case <-h.halt:
		return errors.New("linuxhal: already closed")
	default:
		close(h.halt)
	}
	h.irq.Halt()
	return h.port.Close()
}
