package sx1280

import (
	"log/slog"

	"github.com/radiolink/sx1280/sxll"
)

// SendPacket submits pkt for transmission and returns without blocking.
// Only one packet may be in flight; ErrTxBusy tells the caller to pause
// until the ready callback fires. Ownership of pkt passes to the engine
// until completion.
func (d *Device) SendPacket(pkt []byte) error {
	if !d.initialized.Load() {
		return ErrUninitialized
	}
	if !d.txArmed.CompareAndSwap(false, true) {
		return ErrTxBusy
	}
	d.txPkt = pkt
	select {
	case d.events <- evSubmit:
	default:
		// Cannot happen while the slot admits one packet at a time, but
		// never block the caller on a full queue.
		d.mu.Lock()
		d.releaseTxSlot()
		d.mu.Unlock()
		return ErrTxBusy
	}
	return nil
}

// TxReadyHandle registers the callback invoked, outside the engine lock,
// whenever the in-flight slot frees up: after TxDone, a transmit timeout or
// a drop. Callers typically resume their upstream queue here.
func (d *Device) TxReadyHandle(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txReady = fn
}

// transmitPending runs on the worker: it validates the pending packet,
// loads it into the chip and starts the transmission. Invalid or unsendable
// packets are dropped, counted, and the slot is released so the sender can
// resume.
func (d *Device) transmitPending() {
	notify := false
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		if notify {
			d.notifyTxReady()
		}
	}()
	pkt := d.txPkt
	if pkt == nil {
		d.warn("transmit scheduled without a pending packet")
		return
	}
	mode := d.cfg.Mode
	if mode == sxll.ModeRanging {
		d.stats.TxDropped++
		d.releaseTxSlot()
		notify = true
		d.warn("dropping packet, ranging mode carries no payloads")
		return
	}
	min, max := sxll.PayloadBounds(mode)
	if !within(len(pkt), min, max) {
		d.stats.TxDropped++
		d.releaseTxSlot()
		notify = true
		d.warn("dropping packet, size out of bounds",
			slog.Int("len", len(pkt)),
			slog.String("mode", mode.String()),
		)
		return
	}
	if err := d.startTx(pkt); err != nil {
		d.stats.TxDropped++
		d.releaseTxSlot()
		notify = true
		d.logerr("transmit start failed", slog.String("err", err.Error()))
		return
	}
	d.setState(StateTx)
	d.debug("tx started", slog.Int("len", len(pkt)))
}

// startTx loads the payload at buffer offset zero, patches the payload
// length into the packet parameters and issues SetTx. Order matters: the
// chip latches the length when the transmission starts. Caller holds mu.
func (d *Device) startTx(pkt []byte) error {
	if err := d.writeBuffer(0, pkt); err != nil {
		return err
	}
	pp := d.cfg.packetParams()
	pp.SetPayloadLength(uint8(len(pkt)))
	if err := d.setPacketParams(&pp); err != nil {
		return err
	}
	return d.setTx(d.pb, d.pbCount)
}

// notifyTxReady invokes the ready callback. Must be called without mu held;
// the callback is free to call SendPacket again.
func (d *Device) notifyTxReady() {
	d.mu.Lock()
	fn := d.txReady
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
