// Package sx1280 drives the Semtech SX1280 2.4 GHz multi-mode transceiver
// over a synchronous serial bus and exposes it as a packet send/receive
// endpoint. The engine serializes all chip access behind one exclusive lock,
// tracks the half-duplex operating state (standby/rx/tx) and services the
// chip's completion interrupts from a single worker goroutine.
package sx1280

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/radiolink/sx1280/sxll"
	"golang.org/x/exp/constraints"
)

var (
	// ErrBusyTimeout is returned when the chip's busy line never deasserts
	// within the configured bound. The current operation is aborted and no
	// retry is attempted.
	ErrBusyTimeout = errors.New("sx1280: busy line timeout")
	// ErrChipStatus is returned when the post-reset status byte reports an
	// invalid circuit mode or a failed command. It aborts Init.
	ErrChipStatus = errors.New("sx1280: bad chip status")
	// ErrTxBusy is returned by SendPacket while a packet is outstanding.
	ErrTxBusy = errors.New("sx1280: transmission in progress")
	// ErrUninitialized is returned when the engine is used before Init.
	ErrUninitialized = errors.New("sx1280: device uninitialized")
	// ErrFrequencyRange is returned for carrier frequencies outside the
	// chip's 2.4-2.5 GHz band.
	ErrFrequencyRange = errors.New("sx1280: frequency outside 2.4-2.5 GHz")
	// ErrInvalidMode is returned for packet modes the chip does not have.
	ErrInvalidMode = errors.New("sx1280: invalid packet mode")
)

// Transport is the synchronous bus transfer the engine runs on, typically an
// SPI connection. Tx transfers len(w) bytes; r receives the byte clocked in
// for every byte clocked out and may be nil for write-only commands. When
// both are non-nil they must be the same length.
type Transport interface {
	Tx(w, r []byte) error
}

// TransceiverState is the engine's operating state.
type TransceiverState uint8

const (
	StateStandby TransceiverState = iota
	StateRx
	StateTx
)

func (s TransceiverState) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateRx:
		return "rx"
	case StateTx:
		return "tx"
	}
	return "unknown"
}

// Config carries the collaborators and initial chip configuration for one
// attached SX1280.
type Config struct {
	Transport Transport
	// Busy samples the chip's busy line; true means the chip cannot accept
	// a transaction yet.
	Busy func() bool
	// Reset drives the reset line; false asserts reset (active low).
	Reset func(bool)
	// Chip is the initial chip configuration. Nil selects DefaultChipConfig.
	Chip *ChipConfig
	// BusyTimeout bounds the busy wait preceding every transaction.
	// Defaults to 10ms.
	BusyTimeout time.Duration
	// StartupTimeout bounds the busy wait following hardware reset.
	// Defaults to 2ms.
	StartupTimeout time.Duration
	Logger         *slog.Logger
}

type event uint8

const (
	evSubmit event = iota // pending packet ready for the transmit pipeline
	evIRQ                 // interrupt line asserted
)

// Device is the control engine for one attached SX1280. All chip I/O and
// configuration state is serialized behind mu; the worker goroutine is the
// sole consumer of the event queue, so pipeline work and completion handling
// never run concurrently with each other.
type Device struct {
	tr   Transport
	busy func() bool
	rst  outputPin

	busyTimeout    time.Duration
	startupTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	cfg     ChipConfig
	pb      sxll.PeriodBase
	pbCount uint16
	state   TransceiverState
	// txIdle is closed whenever state is not Tx and replaced with a fresh
	// channel on entering Tx. Idle waiters block on it.
	txIdle  chan struct{}
	stats   DeviceStats
	recv    func(pkt []byte) error
	txReady func()
	running bool

	initialized atomic.Bool
	// txArmed guards the single in-flight packet slot. Set on the
	// submission path, cleared by the worker on completion or drop.
	txArmed atomic.Bool
	txPkt   []byte

	events chan event
	quit   chan struct{}

	// Scratch transfer buffers: longest command header (SetDioIrqParams,
	// 9 bytes) plus a full data buffer.
	wbuf [16 + sxll.BufferSize]byte
	rbuf [16 + sxll.BufferSize]byte
}

type outputPin func(bool)

// New creates an engine for the given collaborators. The chip is untouched
// until Init.
func New(cfg Config) (*Device, error) {
	switch {
	case cfg.Transport == nil:
		return nil, errors.New("sx1280: nil transport")
	case cfg.Busy == nil:
		return nil, errors.New("sx1280: nil busy sampler")
	case cfg.Reset == nil:
		return nil, errors.New("sx1280: nil reset driver")
	}
	chip := cfg.Chip
	if chip == nil {
		chip = DefaultChipConfig()
	}
	if chip.Mode > sxll.ModeFLRC {
		return nil, ErrInvalidMode
	}
	pb, count, err := sxll.SplitTimeout(chip.Timeout)
	if err != nil {
		return nil, err
	}
	if !within(chip.FrequencyHz, freqMinHz, freqMaxHz) {
		return nil, ErrFrequencyRange
	}
	if _, err := sxll.PowerCode(chip.PowerDBm); err != nil {
		return nil, err
	}
	if _, err := sxll.RampTimeCode(chip.RampTimeUs); err != nil {
		return nil, err
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 10 * time.Millisecond
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 2 * time.Millisecond
	}
	d := &Device{
		tr:             cfg.Transport,
		busy:           cfg.Busy,
		rst:            cfg.Reset,
		busyTimeout:    cfg.BusyTimeout,
		startupTimeout: cfg.StartupTimeout,
		logger:         cfg.Logger,
		cfg:            *chip,
		pb:             pb,
		pbCount:        count,
		state:          StateStandby,
		txIdle:         make(chan struct{}),
		events:         make(chan event, 16),
	}
	close(d.txIdle) // not transmitting
	return d, nil
}

// Init resets the chip, validates its post-reset status and programs the
// configured mode, then arms the receiver and starts the worker. A failed
// Init leaves the engine unusable; busy-timeout and bad-status errors here
// are fatal to the attach.
func (d *Device) Init() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized.Load() {
		return errors.New("sx1280: already initialized")
	}
	d.info("Init:start", slog.String("mode", d.cfg.Mode.String()))
	start := time.Now()

	d.reset()
	if err = d.waitNotBusy(d.startupTimeout); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	st, err := d.getStatus()
	if err != nil {
		return err
	}
	if !st.OK() {
		return fmt.Errorf("%w: circuit mode %s, command status %s",
			ErrChipStatus, st.CircuitMode().String(), st.CommandStatus().String())
	}
	if err = d.setup(d.cfg.Mode); err != nil {
		return err
	}
	if d.cfg.Mode != sxll.ModeRanging {
		if err = d.armRx(); err != nil {
			return err
		}
	}
	if !d.running {
		d.quit = make(chan struct{})
		go d.worker()
		d.running = true
	}
	d.initialized.Store(true)
	d.info("Init:done", slog.Duration("took", time.Since(start)))
	return nil
}

// Close parks the chip in standby and stops the worker. Interrupts and
// submissions arriving afterwards are ignored.
func (d *Device) Close() error {
	if !d.initialized.CompareAndSwap(true, false) {
		return nil
	}
	close(d.quit)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.releaseTxSlot()
	err := d.setStandby(sxll.StandbyRC)
	d.setState(StateStandby)
	return err
}

// reset pulses the active-low reset line and restores engine state to match
// the chip's power-on defaults. Caller holds mu.
func (d *Device) reset() {
	d.rst(false)
	time.Sleep(time.Millisecond)
	d.rst(true)
	time.Sleep(5 * time.Millisecond)
	d.releaseTxSlot()
	d.setState(StateStandby)
}

// waitNotBusy blocks until the chip deasserts its busy line, spinning for
// the expected-fast first 50us and then sleeping in small increments until
// the timeout. Every bus transaction is preceded by this wait.
func (d *Device) waitNotBusy(timeout time.Duration) error {
	if !d.busy() {
		return nil
	}
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		if !d.busy() {
			return nil
		}
		now := time.Now()
		if !now.Before(deadline) {
			return ErrBusyTimeout
		}
		if now.Sub(start) > 50*time.Microsecond {
			time.Sleep(30 * time.Microsecond)
		}
	}
}

// setState records a state transition and maintains the tx-idle wake
// channel: entering Tx opens a fresh channel, leaving Tx closes it, waking
// every idle waiter at once. Caller holds mu.
func (d *Device) setState(s TransceiverState) {
	if d.state == s {
		return
	}
	d.trace("state",
		slog.String("from", d.state.String()),
		slog.String("to", s.String()),
	)
	wasTx := d.state == StateTx
	d.state = s
	if s == StateTx {
		d.txIdle = make(chan struct{})
	} else if wasTx {
		close(d.txIdle)
	}
}

// waitIdle blocks until the engine is not transmitting. On success it
// returns holding mu; on context cancellation it returns the context error
// without the lock and without having touched chip state.
func (d *Device) waitIdle(ctx context.Context) error {
	d.mu.Lock()
	for d.state == StateTx {
		ch := d.txIdle
		d.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		// Recheck under the lock: a submission may have re-entered Tx
		// between the wake and the reacquire.
		d.mu.Lock()
	}
	return nil
}

// waitIdleIfMode behaves like waitIdle when mode is the currently active
// packet mode, and locks without waiting otherwise: configuration for an
// inactive mode may change while a different mode is mid-transmission.
func (d *Device) waitIdleIfMode(ctx context.Context, mode sxll.Mode) error {
	d.mu.Lock()
	for d.cfg.Mode == mode && d.state == StateTx {
		ch := d.txIdle
		d.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		d.mu.Lock()
	}
	return nil
}

// acquireStandby waits for idle and drops the chip into XOSC standby,
// required before reprogramming the active modulation mode. Returns holding
// mu on success.
func (d *Device) acquireStandby(ctx context.Context) error {
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	if err := d.setStandby(sxll.StandbyXOSC); err != nil {
		d.mu.Unlock()
		return err
	}
	d.setState(StateStandby)
	return nil
}

// armRx programs packet parameters for a full-size payload and opens the
// receive window. Caller holds mu.
func (d *Device) armRx() error {
	pp := d.cfg.packetParams()
	_, max := sxll.PayloadBounds(d.cfg.Mode)
	pp.SetPayloadLength(uint8(max))
	if err := d.setPacketParams(&pp); err != nil {
		return err
	}
	if err := d.setRx(d.pb, d.pbCount); err != nil {
		return err
	}
	d.setState(StateRx)
	return nil
}

// setup programs the chip for a packet mode from scratch: packet type,
// frequency, buffer base, modulation and packet parameters, mode-specific
// registers, tx parameters and the interrupt routing. Caller holds mu and
// the chip is in a standby mode.
func (d *Device) setup(mode sxll.Mode) error {
	if err := d.setStandby(sxll.StandbyRC); err != nil {
		return err
	}
	if err := d.setPacketType(mode); err != nil {
		return err
	}
	if got, err := d.getPacketType(); err != nil {
		return err
	} else if got != mode {
		return fmt.Errorf("%w: packet type readback %s, want %s", ErrChipStatus, got.String(), mode.String())
	}
	if err := d.setRfFrequency(sxll.FreqToPLL(d.cfg.FrequencyHz)); err != nil {
		return err
	}
	// Both directions base at zero. The half-duplex discipline guarantees
	// the 256-byte data buffer is never read and written at the same time.
	if err := d.setBufferBaseAddress(0, 0); err != nil {
		return err
	}
	mp := d.cfg.modulationParams()
	if err := d.setModulationParams(&mp); err != nil {
		return err
	}
	pp := d.cfg.packetParams()
	if err := d.setPacketParams(&pp); err != nil {
		return err
	}
	if err := d.applyModeRegisters(mode); err != nil {
		return err
	}
	power, _ := sxll.PowerCode(d.cfg.PowerDBm)
	ramp, _ := sxll.RampTimeCode(d.cfg.RampTimeUs)
	if err := d.setTxParams(power, ramp); err != nil {
		return err
	}
	irqMask := sxll.IrqTxDone | sxll.IrqRxDone | sxll.IrqRxTxTimeout | sxll.IrqRxErrors
	return d.setDioIrqParams(irqMask, [3]sxll.IrqStatus{irqMask, 0, 0})
}

// applyModeRegisters writes the register-backed settings SetPacketParams
// does not cover: sync words and CRC seeding for GFSK/FLRC, addressing and
// calibration for ranging. Caller holds mu.
func (d *Device) applyModeRegisters(mode sxll.Mode) error {
	switch mode {
	case sxll.ModeGFSK:
		g := &d.cfg.GFSK
		if err := d.writeRegister(sxll.RegSyncAddress1, g.SyncWord1[:]...); err != nil {
			return err
		}
		if err := d.writeRegister(sxll.RegCRCInitialValue, byte(g.CRCSeed>>8), byte(g.CRCSeed)); err != nil {
			return err
		}
		return d.writeRegister(sxll.RegCRCPolynomial, byte(g.CRCPolynomial>>8), byte(g.CRCPolynomial))
	case sxll.ModeFLRC:
		f := &d.cfg.FLRC
		if err := d.writeRegister(sxll.RegSyncAddress1, f.SyncWord1[:]...); err != nil {
			return err
		}
		return d.writeRegister(sxll.RegCRCInitialValue, byte(f.CRCSeed>>8), byte(f.CRCSeed))
	case sxll.ModeRanging:
		r := &d.cfg.Ranging
		if err := d.writeRegister(sxll.RegRangingDeviceAddress,
			byte(r.SlaveAddress>>24), byte(r.SlaveAddress>>16),
			byte(r.SlaveAddress>>8), byte(r.SlaveAddress)); err != nil {
			return err
		}
		if err := d.writeRegister(sxll.RegRangingRequestAddress,
			byte(r.MasterAddress>>24), byte(r.MasterAddress>>16),
			byte(r.MasterAddress>>8), byte(r.MasterAddress)); err != nil {
			return err
		}
		if err := d.writeRegister(sxll.RegRangingCalibration+1,
			byte(r.Calibration>>8), byte(r.Calibration)); err != nil {
			return err
		}
		return d.setRangingRole(r.Role)
	}
	return nil
}

// worker drains the event queue. It is the only goroutine that performs
// pipeline work and completion handling.
func (d *Device) worker() {
	for {
		select {
		case <-d.quit:
			return
		case ev := <-d.events:
			switch ev {
			case evSubmit:
				d.transmitPending()
			case evIRQ:
				d.serviceIRQ()
			}
		}
	}
}

// releaseTxSlot frees the single in-flight packet slot. Caller holds mu.
func (d *Device) releaseTxSlot() {
	d.txPkt = nil
	d.txArmed.Store(false)
}

// State returns the engine's current operating state.
func (d *Device) State() TransceiverState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

const (
	freqMinHz = 2_400_000_000
	freqMaxHz = 2_500_000_000
)

// within returns v in [lo, hi].
func within[T constraints.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}
