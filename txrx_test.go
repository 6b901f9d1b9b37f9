package sx1280

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/radiolink/sx1280/sxll"
)

func TestSendPacketRoundTrip(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	ready := make(chan struct{}, 4)
	d.TxReadyHandle(func() { ready <- struct{}{} })

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	if err := d.SendPacket(payload); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tx start", func() bool { return d.State() == StateTx })
	if got := sim.payload(len(payload)); !bytes.Equal(got, payload) {
		t.Errorf("chip buffer = % x, want % x", got, payload)
	}
	if sim.count(sxll.CmdSetTx) != 1 {
		t.Errorf("SetTx issued %d times, want 1", sim.count(sxll.CmdSetTx))
	}

	// Only one packet may be in flight.
	if err := d.SendPacket([]byte{1}); !errors.Is(err, ErrTxBusy) {
		t.Fatalf("second SendPacket = %v, want ErrTxBusy", err)
	}

	sim.raise(sxll.IrqTxDone)
	d.NotifyIRQ()
	waitFor(t, "rx rearm", func() bool { return d.State() == StateRx })
	<-ready

	st := d.Stats()
	if st.TxPackets != 1 || st.TxBytes != uint64(len(payload)) {
		t.Errorf("stats = %+v", st)
	}
	// Slot free again.
	if err := d.SendPacket([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
}

func TestSendPacketBounds(t *testing.T) {
	d, sim := newTestDevice(t, nil) // LoRa: 1..255
	ready := make(chan struct{}, 4)
	d.TxReadyHandle(func() { ready <- struct{}{} })

	if err := d.SendPacket([]byte{}); err != nil {
		t.Fatal(err) // rejected asynchronously, SendPacket itself accepts
	}
	<-ready
	if st := d.Stats(); st.TxDropped != 1 || st.TxPackets != 0 {
		t.Errorf("stats after empty lora payload = %+v", st)
	}
	if sim.count(sxll.CmdSetTx) != 0 || sim.count(sxll.CmdWriteBuffer) != 0 {
		t.Error("chip I/O issued for an invalid payload")
	}
	if got := d.State(); got != StateRx {
		t.Errorf("state = %v, want rx", got)
	}

	// FLRC rejects payloads under 6 bytes.
	if err := d.SetMode(context.Background(), sxll.ModeFLRC); err != nil {
		t.Fatal(err)
	}
	if err := d.SendPacket([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	<-ready
	if st := d.Stats(); st.TxDropped != 2 {
		t.Errorf("stats after short flrc payload = %+v", st)
	}
}

func TestSendPacketTxTimeout(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	if err := d.SendPacket([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tx start", func() bool { return d.State() == StateTx })
	sim.raise(sxll.IrqRxTxTimeout)
	d.NotifyIRQ()
	waitFor(t, "rx rearm", func() bool { return d.State() == StateRx })
	st := d.Stats()
	if st.TxDropped != 1 || st.TxPackets != 0 {
		t.Errorf("stats after tx timeout = %+v", st)
	}
}

func TestSendPacketRangingDrops(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	if err := d.SetMode(context.Background(), sxll.ModeRanging); err != nil {
		t.Fatal(err)
	}
	if got := d.State(); got != StateStandby {
		t.Fatalf("ranging state = %v, want standby", got)
	}
	ready := make(chan struct{}, 1)
	d.TxReadyHandle(func() { ready <- struct{}{} })
	if err := d.SendPacket([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	<-ready
	if st := d.Stats(); st.TxDropped != 1 {
		t.Errorf("stats = %+v", st)
	}
	if sim.count(sxll.CmdSetTx) != 0 {
		t.Error("SetTx issued in ranging mode")
	}
}

func TestSendPacketUninitialized(t *testing.T) {
	sim := newChipSim()
	d, err := New(Config{Transport: sim, Busy: sim.busyLine, Reset: sim.resetLine})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SendPacket([]byte{1}); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("SendPacket = %v, want ErrUninitialized", err)
	}
}

func TestReceivePacket(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	var mu sync.Mutex
	var got []byte
	d.RecvPacketHandle(func(pkt []byte) error {
		mu.Lock()
		got = pkt
		mu.Unlock()
		return nil
	})

	payload := []byte{0x45, 0x00, 0x00, 0x1C, 0xAA}
	sim.mu.Lock()
	copy(sim.buffer[:], payload)
	sim.rxLen = uint8(len(payload))
	sim.rxOff = 0
	sim.pktStat = [5]byte{100, 0x14, 0, 0, 0} // rssi -50, snr 5
	sim.mu.Unlock()
	sim.raise(sxll.IrqRxDone)
	d.NotifyIRQ()

	waitFor(t, "rx delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})
	mu.Lock()
	if !bytes.Equal(got, payload) {
		t.Errorf("delivered % x, want % x", got, payload)
	}
	mu.Unlock()
	st := d.Stats()
	if st.RxPackets != 1 || st.RxBytes != uint64(len(payload)) {
		t.Errorf("stats = %+v", st)
	}
	// The window reopens after delivery.
	waitFor(t, "rx rearm", func() bool { return sim.count(sxll.CmdSetRx) >= 2 })
}

func TestReceiveCrcErrorDiscards(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	var delivered atomic.Bool
	d.RecvPacketHandle(func(pkt []byte) error {
		delivered.Store(true)
		return nil
	})
	before := sim.count(sxll.CmdSetRx)
	reads := sim.count(sxll.CmdReadBuffer)

	sim.mu.Lock()
	sim.rxLen = 10
	sim.mu.Unlock()
	sim.raise(sxll.IrqRxDone | sxll.IrqCrcError)
	d.NotifyIRQ()

	waitFor(t, "rx rearm", func() bool { return sim.count(sxll.CmdSetRx) > before })
	if delivered.Load() {
		t.Error("corrupt packet was delivered")
	}
	if sim.count(sxll.CmdReadBuffer) != reads {
		t.Error("buffer read for a corrupt packet")
	}
	if st := d.Stats(); st.RxErrors != 1 || st.RxPackets != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestReceiveTimeoutRearms(t *testing.T) {
	d, sim := newTestDevice(t, nil)
	var delivered atomic.Bool
	d.RecvPacketHandle(func(pkt []byte) error {
		delivered.Store(true)
		return nil
	})
	before := sim.count(sxll.CmdSetRx)
	sim.raise(sxll.IrqRxTxTimeout)
	d.NotifyIRQ()
	waitFor(t, "rx rearm", func() bool { return sim.count(sxll.CmdSetRx) > before })
	if delivered.Load() {
		t.Error("timeout delivered a packet")
	}
	if st := d.Stats(); st.RxPackets != 0 || st.RxErrors != 0 {
		t.Errorf("stats = %+v", st)
	}
	if got := d.State(); got != StateRx {
		t.Errorf("state = %v, want rx", got)
	}
}

func TestIrqBeforeInitIgnored(t *testing.T) {
	sim := newChipSim()
	d, err := New(Config{Transport: sim, Busy: sim.busyLine, Reset: sim.resetLine})
	if err != nil {
		t.Fatal(err)
	}
	d.NotifyIRQ() // reset strobe, must not queue
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if got := d.State(); got != StateRx {
		t.Errorf("state = %v, want rx", got)
	}
}
