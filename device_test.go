package sx1280

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radiolink/sx1280/sxll"
)

// chipSim emulates the SX1280's command interface well enough to exercise
// the engine: it tracks issued opcodes, stores the data buffer and
// registers, and lets tests raise interrupt flags.
type chipSim struct {
	mu       sync.Mutex
	status   sxll.Status
	irq      sxll.IrqStatus
	buffer   [sxll.BufferSize]byte
	regs     map[uint16]byte
	ops      []sxll.Opcode
	failOps  map[sxll.Opcode]error
	busyFor  int // busy() returns true this many more times
	rxLen    uint8
	rxOff    uint8
	pktStat  [5]byte
	pktType  uint8
	lastFreq uint32
}

func newChipSim() *chipSim {
	return &chipSim{
		// Standby RC, last command processed.
		status:  sxll.Status(uint8(sxll.CircuitStandbyRC)<<5 | uint8(sxll.CmdStatusTxProcessed)<<2),
		regs:    make(map[uint16]byte),
		failOps: make(map[sxll.Opcode]error),
	}
}

func (c *chipSim) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	op := sxll.Opcode(w[0])
	c.ops = append(c.ops, op)
	if err := c.failOps[op]; err != nil {
		return err
	}
	switch op {
	case sxll.CmdGetStatus:
		r[0] = byte(c.status)
	case sxll.CmdGetIrqStatus:
		binary.BigEndian.PutUint16(r[2:4], uint16(c.irq))
	case sxll.CmdClrIrqStatus:
		c.irq &^= sxll.IrqStatus(binary.BigEndian.Uint16(w[1:3]))
	case sxll.CmdWriteBuffer:
		copy(c.buffer[w[1]:], w[2:])
	case sxll.CmdReadBuffer:
		copy(r[3:], c.buffer[w[1]:])
	case sxll.CmdGetRxBufferStatus:
		r[2], r[3] = c.rxLen, c.rxOff
	case sxll.CmdGetPacketStatus:
		copy(r[2:], c.pktStat[:])
	case sxll.CmdWriteRegister:
		addr := binary.BigEndian.Uint16(w[1:3])
		for i, b := range w[3:] {
			c.regs[addr+uint16(i)] = b
		}
	case sxll.CmdReadRegister:
		addr := binary.BigEndian.Uint16(w[1:3])
		for i := range r[4:] {
			r[4+i] = c.regs[addr+uint16(i)]
		}
	case sxll.CmdSetPacketType:
		c.pktType = w[1]
	case sxll.CmdGetPacketType:
		r[2] = c.pktType
	case sxll.CmdSetRfFrequency:
		c.lastFreq = uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
	}
	return nil
}

func (c *chipSim) busyLine() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busyFor > 0 {
		c.busyFor--
		return true
	}
	return false
}

func (c *chipSim) resetLine(bool) {}

// raise sets interrupt flags as the chip would on completion.
func (c *chipSim) raise(irq sxll.IrqStatus) {
	c.mu.Lock()
	c.irq |= irq
	c.mu.Unlock()
}

// count returns how many times op was issued.
func (c *chipSim) count(op sxll.Opcode) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (c *chipSim) payload(n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, n)
	copy(out, c.buffer[:n])
	return out
}

func newTestDevice(t *testing.T, chip *ChipConfig) (*Device, *chipSim) {
	t.Helper()
	sim := newChipSim()
	d, err := New(Config{
		Transport: sim,
		Busy:      sim.busyLine,
		Reset:     sim.resetLine,
		Chip:      chip,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, sim
}

// waitFor polls cond until it holds or the test deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitProgramsChip(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	for _, op := range []sxll.Opcode{
		sxll.CmdSetStandby, sxll.CmdSetPacketType, sxll.CmdSetRfFrequency,
		sxll.CmdSetBufferBaseAddress, sxll.CmdSetModulationParams,
		sxll.CmdSetPacketParams, sxll.CmdSetTxParams, sxll.CmdSetDioIrqParams,
		sxll.CmdSetRx,
	} {
		if sim.count(op) == 0 {
			t.Errorf("Init never issued %#x", uint8(op))
		}
	}
	if got := d.State(); got != StateRx {
		t.Errorf("state after Init = %v, want rx", got)
	}
	if want := sxll.FreqToPLL(2_400_000_000); sim.lastFreq != want {
		t.Errorf("pll word = %#x, want %#x", sim.lastFreq, want)
	}
}

func TestInitRejectsBadStatus(t *testing.T) {
	sim := newChipSim()
	sim.status = sxll.Status(uint8(sxll.CircuitStandbyRC)<<5 | uint8(sxll.CmdStatusProcessingError)<<2)
	d, err := New(Config{Transport: sim, Busy: sim.busyLine, Reset: sim.resetLine})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); !errors.Is(err, ErrChipStatus) {
		t.Fatalf("Init = %v, want ErrChipStatus", err)
	}
}

func TestInitBusyTimeout(t *testing.T) {
	sim := newChipSim()
	sim.busyFor = 1 << 30 // stuck busy
	d, err := New(Config{
		Transport:      sim,
		Busy:           sim.busyLine,
		Reset:          sim.resetLine,
		StartupTimeout: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); !errors.Is(err, ErrBusyTimeout) {
		t.Fatalf("Init = %v, want ErrBusyTimeout", err)
	}
	// The stuck busy line must abort before any bus transfer.
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if len(sim.ops) != 0 {
		t.Errorf("bus transfers attempted while busy: %v", sim.ops)
	}
}

func TestNewValidatesChipConfig(t *testing.T) {
	sim := newChipSim()
	base := Config{Transport: sim, Busy: sim.busyLine, Reset: sim.resetLine}

	cfg := base
	bad := *DefaultChipConfig()
	bad.FrequencyHz = 1_000_000_000
	cfg.Chip = &bad
	if _, err := New(cfg); !errors.Is(err, ErrFrequencyRange) {
		t.Errorf("out of band frequency: %v", err)
	}

	bad = *DefaultChipConfig()
	bad.PowerDBm = 14
	cfg.Chip = &bad
	if _, err := New(cfg); err == nil {
		t.Error("power above 13 dBm accepted")
	}

	bad = *DefaultChipConfig()
	bad.RampTimeUs = 5
	cfg.Chip = &bad
	if _, err := New(cfg); err == nil {
		t.Error("odd ramp time accepted")
	}
}

func TestSetFrequencyBlocksDuringTx(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	if err := d.SendPacket([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tx start", func() bool { return d.State() == StateTx })

	done := make(chan error, 1)
	go func() {
		done <- d.SetFrequency(context.Background(), 2_450_000_000)
	}()
	select {
	case err := <-done:
		t.Fatalf("SetFrequency returned %v while transmitting", err)
	case <-time.After(20 * time.Millisecond):
	}

	sim.raise(sxll.IrqTxDone)
	d.NotifyIRQ()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if want := sxll.FreqToPLL(2_450_000_000); sim.lastFreq != want {
		t.Errorf("pll word = %#x, want %#x", sim.lastFreq, want)
	}
	if got := d.Frequency(); got != 2_450_000_000 {
		t.Errorf("Frequency() = %d", got)
	}
}

func TestSetTxPowerCancelDuringTx(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	if err := d.SendPacket([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tx start", func() bool { return d.State() == StateTx })
	before := sim.count(sxll.CmdSetTxParams)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.SetTxPower(ctx, 0) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("SetTxPower = %v, want context.Canceled", err)
	}
	// The abandoned wait must not have touched the chip.
	if got := sim.count(sxll.CmdSetTxParams); got != before {
		t.Errorf("SetTxParams issued %d times during canceled wait, want %d", got, before)
	}

	// The engine must remain usable.
	sim.raise(sxll.IrqTxDone)
	d.NotifyIRQ()
	waitFor(t, "rx rearm", func() bool { return d.State() == StateRx })
	if err := d.SetTxPower(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
}

func TestInactiveModeConfigDoesNotWait(t *testing.T) {
	d, sim := newTestDevice(t, nil) // LoRa active
	if err := d.SendPacket([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tx start", func() bool { return d.State() == StateTx })

	cfg := DefaultChipConfig().GFSK
	cfg.SyncWord1 = [5]byte{0xDD, 0xA0, 0x96, 0x69, 0xDD}
	done := make(chan error, 1)
	go func() { done <- d.SetGFSKConfig(context.Background(), cfg) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("GFSK config blocked on a LoRa transmission")
	}

	sim.raise(sxll.IrqTxDone)
	d.NotifyIRQ()
	waitFor(t, "rx rearm", func() bool { return d.State() == StateRx })

	// Switching to GFSK must program the stored sync word.
	if err := d.SetMode(context.Background(), sxll.ModeGFSK); err != nil {
		t.Fatal(err)
	}
	sim.mu.Lock()
	sw := sim.regs[sxll.RegSyncAddress1]
	sim.mu.Unlock()
	if sw != 0xDD {
		t.Errorf("sync word register = %#x, want 0xDD", sw)
	}
}

func TestSetModeRoundTrip(t *testing.T) {
	d, _ := newTestDevice(t, nil)
	for _, mode := range []sxll.Mode{sxll.ModeGFSK, sxll.ModeFLRC, sxll.ModeLoRa} {
		if err := d.SetMode(context.Background(), mode); err != nil {
			t.Fatalf("SetMode(%v): %v", mode, err)
		}
		if got := d.Mode(); got != mode {
			t.Errorf("Mode() = %v, want %v", got, mode)
		}
		if got := d.State(); got != StateRx {
			t.Errorf("state after SetMode(%v) = %v, want rx", mode, got)
		}
	}
	if err := d.SetMode(context.Background(), sxll.Mode(7)); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("SetMode(7) = %v, want ErrInvalidMode", err)
	}
}

func TestSetTimeoutReissuesRx(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	before := sim.count(sxll.CmdSetRx)
	if err := d.SetTimeout(context.Background(), 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if got := sim.count(sxll.CmdSetRx); got != before+1 {
		t.Errorf("SetRx issued %d times, want %d", got, before+1)
	}
}

func TestSetPreambleBits(t *testing.T) {
	d, sim := newTestDevice(t, nil) // LoRa active
	ctx := context.Background()
	before := sim.count(sxll.CmdSetPacketParams)
	if err := d.SetPreambleBits(ctx, sxll.ModeLoRa, 48); err != nil {
		t.Fatal(err)
	}
	// Active mode: packet parameters are reissued.
	if got := sim.count(sxll.CmdSetPacketParams); got <= before {
		t.Error("packet params not reissued for active mode")
	}
	before = sim.count(sxll.CmdSetPacketParams)
	if err := d.SetPreambleBits(ctx, sxll.ModeGFSK, 16); err != nil {
		t.Fatal(err)
	}
	// Inactive mode: stored only.
	if got := sim.count(sxll.CmdSetPacketParams); got != before {
		t.Error("packet params reissued for inactive mode")
	}
	if err := d.SetPreambleBits(ctx, sxll.ModeGFSK, 17); !errors.Is(err, sxll.ErrPreambleBits) {
		t.Errorf("odd gfsk preamble: %v", err)
	}
	if err := d.SetPreambleBits(ctx, sxll.ModeGFSK, 260); !errors.Is(err, sxll.ErrPreambleBits) {
		t.Errorf("oversize gfsk preamble: %v", err)
	}
	if err := d.SetPreambleBits(ctx, sxll.ModeLoRa, 17); !errors.Is(err, sxll.ErrPreambleBits) {
		t.Errorf("odd lora preamble: %v", err)
	}
}

func TestSetCRCAndWhitening(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	ctx := context.Background()
	if err := d.SetCRC(ctx, sxll.ModeGFSK, sxll.CRC1Byte, 0x1234, 0x8005); err != nil {
		t.Fatal(err)
	}
	if err := d.SetMode(ctx, sxll.ModeGFSK); err != nil {
		t.Fatal(err)
	}
	sim.mu.Lock()
	seedHi := sim.regs[sxll.RegCRCInitialValue]
	polyHi := sim.regs[sxll.RegCRCPolynomial]
	sim.mu.Unlock()
	if seedHi != 0x12 || polyHi != 0x80 {
		t.Errorf("crc regs = %#x %#x, want 0x12 0x80", seedHi, polyHi)
	}
	if err := d.SetWhitening(ctx, sxll.ModeGFSK, false); err != nil {
		t.Fatal(err)
	}
	if err := d.SetWhitening(ctx, sxll.ModeLoRa, true); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("lora whitening: %v", err)
	}
}

func TestContinuousWave(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	if err := d.ContinuousWave(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sim.count(sxll.CmdSetTxContinuousWave) != 1 {
		t.Error("continuous wave command not issued")
	}
	if got := d.State(); got != StateStandby {
		t.Errorf("state = %v, want standby", got)
	}
	// Packet operation resumes on a mode switch.
	if err := d.SetMode(context.Background(), sxll.ModeLoRa); err != nil {
		t.Fatal(err)
	}
	if got := d.State(); got != StateRx {
		t.Errorf("state after SetMode = %v, want rx", got)
	}
}

func TestFirmwareVersion(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	sim.mu.Lock()
	sim.regs[sxll.RegFirmwareVersion] = 0xA9
	sim.regs[sxll.RegFirmwareVersion+1] = 0xB5
	sim.mu.Unlock()
	v, err := d.FirmwareVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xA9B5 {
		t.Errorf("firmware version = %#x", v)
	}
}
