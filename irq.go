package sx1280

import (
	"log/slog"

	"github.com/radiolink/sx1280/sxll"
)

// NotifyIRQ signals that the chip's interrupt line asserted. Safe to call
// from an interrupt service routine or a pin-watching goroutine; it never
// blocks. Interrupts arriving while one is already queued coalesce, which
// is harmless since the flag register is read at service time. Interrupts
// before Init are strobes from the reset pulse and are ignored.
func (d *Device) NotifyIRQ() {
	if !d.initialized.Load() {
		return
	}
	select {
	case d.events <- evIRQ:
	default:
	}
}

// RecvPacketHandle registers the callback that receives inbound payloads.
// The engine retains no reference to the slice after the callback returns,
// so the handler may keep it.
func (d *Device) RecvPacketHandle(fn func(pkt []byte) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recv = fn
}

// serviceIRQ runs on the worker: it reads the interrupt flags, clears all
// of them before dispatch so a flag is never serviced twice, and routes
// completion handling by the engine's operating state.
func (d *Device) serviceIRQ() {
	notify := false
	d.mu.Lock()
	irq, err := d.getIrqStatus()
	if err != nil {
		d.mu.Unlock()
		d.logerr("irq status read failed", slog.String("err", err.Error()))
		return
	}
	if err := d.clearIrqStatus(sxll.IrqAll); err != nil {
		d.logerr("irq clear failed", slog.String("err", err.Error()))
	}
	d.trace("irq", slog.String("flags", irq.String()), slog.String("state", d.state.String()))
	switch d.state {
	case StateTx:
		notify = d.finishTx(irq)
	case StateRx:
		d.finishRx(irq)
	default:
		d.warn("interrupt while standby", slog.String("flags", irq.String()))
	}
	d.mu.Unlock()
	if notify {
		d.notifyTxReady()
	}
}

// finishTx completes the in-flight transmission, frees the slot and rearms
// the receiver. Rearming leaves Tx state, which wakes every idle waiter.
// Caller holds mu; reports whether the ready callback should fire.
func (d *Device) finishTx(irq sxll.IrqStatus) bool {
	if irq&(sxll.IrqTxDone|sxll.IrqRxTxTimeout) == 0 {
		d.warn("unexpected irq while transmitting", slog.String("flags", irq.String()))
		return false
	}
	if irq&sxll.IrqTxDone != 0 {
		d.stats.TxPackets++
		d.stats.TxBytes += uint64(len(d.txPkt))
		d.debug("tx done", slog.Int("len", len(d.txPkt)))
	} else {
		d.stats.TxDropped++
		d.warn("tx timed out")
	}
	d.releaseTxSlot()
	if err := d.armRx(); err != nil {
		d.logerr("rx rearm after tx failed", slog.String("err", err.Error()))
		d.setState(StateStandby)
	}
	return true
}

// finishRx handles a receive-window interrupt: a completed packet, a timed
// out window, or noise. The window is reopened in every case.
// Caller holds mu.
func (d *Device) finishRx(irq sxll.IrqStatus) {
	switch {
	case irq&sxll.IrqRxDone != 0:
		d.receivePacket(irq)
	case irq&sxll.IrqRxTxTimeout != 0:
		d.trace("rx window timed out")
	default:
		d.debug("unexpected irq while receiving", slog.String("flags", irq.String()))
	}
	if err := d.armRx(); err != nil {
		d.logerr("rx rearm failed", slog.String("err", err.Error()))
		d.setState(StateStandby)
	}
}

// receivePacket drains one received payload out of the chip and hands it to
// the registered callback. Packets flagged with integrity errors are
// counted and discarded without a buffer read. Caller holds mu.
func (d *Device) receivePacket(irq sxll.IrqStatus) {
	ps, err := d.getPacketStatus()
	if err != nil {
		d.stats.RxDropped++
		d.logerr("packet status read failed", slog.String("err", err.Error()))
		return
	}
	if irq&sxll.IrqRxErrors != 0 {
		d.stats.RxErrors++
		d.debug("rx integrity failure",
			slog.String("flags", (irq & sxll.IrqRxErrors).String()),
			slog.Int("rssi", ps.RSSIdBm()),
		)
		return
	}
	rbs, err := d.getRxBufferStatus()
	if err != nil {
		d.stats.RxDropped++
		d.logerr("rx buffer status read failed", slog.String("err", err.Error()))
		return
	}
	pkt := make([]byte, rbs.PayloadLength)
	if err := d.readBuffer(rbs.StartOffset, pkt); err != nil {
		d.stats.RxDropped++
		d.logerr("rx buffer read failed", slog.String("err", err.Error()))
		return
	}
	d.stats.RxPackets++
	d.stats.RxBytes += uint64(len(pkt))
	d.debug("rx done",
		slog.Int("len", len(pkt)),
		slog.Int("rssi", ps.RSSIdBm()),
		slog.String("payload", classifyPayload(pkt)),
	)
	if d.recv == nil {
		d.trace("no recv handler, packet discarded")
		return
	}
	if err := d.recv(pkt); err != nil {
		d.logerr("recv handler", slog.String("err", err.Error()))
	}
}

// classifyPayload guesses the payload family from the leading version
// nibble, for diagnostics only.
func classifyPayload(pkt []byte) string {
	if len(pkt) == 0 {
		return "empty"
	}
	switch pkt[0] >> 4 {
	case 4:
		return "ipv4"
	case 6:
		return "ipv6"
	}
	return "other"
}
